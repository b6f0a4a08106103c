package cache

import (
	"context"
	"time"
)

// Cache 缓存接口；实现需并发安全
type Cache interface {
	// Get 获取缓存值
	Get(ctx context.Context, key string) (any, bool)

	// Set 设置缓存值，expiration<=0 表示不过期
	Set(ctx context.Context, key string, value any, expiration time.Duration) error

	// Delete 删除缓存
	Delete(ctx context.Context, key string) error

	// Exists 检查键是否存在
	Exists(ctx context.Context, key string) bool

	// Keys 返回当前所有键，顺序不保证
	Keys(ctx context.Context) []string

	// Clear 清空当前命名空间
	Clear(ctx context.Context) error

	// Close 释放连接
	Close() error
}

// Config 缓存配置
type Config struct {
	// gocache / redis / lru
	Type      string `env:"CACHE_TYPE"`
	Namespace string
	Redis     RedisConfig
	LRUSize   int `env:"CACHE_LRU_SIZE"`
	// lru 的统一过期时间
	LRUTTL time.Duration
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr         string        `env:"REDIS_ADDR"`
	Password     string        `env:"REDIS_PASSWORD"`
	DB           int           `env:"REDIS_DB"`
	PoolSize     int           `env:"REDIS_POOL_SIZE"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT"`
}
