package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCache Redis缓存实现，所有键带命名空间前缀
type redisCache struct {
	client    *redis.Client
	namespace string
}

// NewRedisCache 创建 Redis 缓存并 Ping
func NewRedisCache(cfg RedisConfig, namespace string) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisCacheFromClient(client, namespace), nil
}

// NewRedisCacheFromClient 复用已有客户端
func NewRedisCacheFromClient(client *redis.Client, namespace string) Cache {
	if namespace == "" {
		namespace = "rescuedesk"
	}
	return &redisCache{client: client, namespace: namespace + ":"}
}

func (rc *redisCache) key(k string) string { return rc.namespace + k }

func (rc *redisCache) Get(ctx context.Context, key string) (any, bool) {
	raw, err := rc.client.Get(ctx, rc.key(key)).Result()
	if err != nil {
		return nil, false
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw, true
	}
	return value, true
}

func (rc *redisCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	if expiration < 0 {
		expiration = 0
	}
	return rc.client.Set(ctx, rc.key(key), data, expiration).Err()
}

func (rc *redisCache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, rc.key(key)).Err()
}

func (rc *redisCache) Exists(ctx context.Context, key string) bool {
	n, err := rc.client.Exists(ctx, rc.key(key)).Result()
	return err == nil && n > 0
}

func (rc *redisCache) scan(ctx context.Context) []string {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := rc.client.Scan(ctx, cursor, rc.namespace+"*", 200).Result()
		if err != nil {
			return keys
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys
		}
		cursor = next
	}
}

func (rc *redisCache) Keys(ctx context.Context) []string {
	raw := rc.scan(ctx)
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		out = append(out, k[len(rc.namespace):])
	}
	return out
}

// Clear 只删除本命名空间下的键
func (rc *redisCache) Clear(ctx context.Context) error {
	keys := rc.scan(ctx)
	if len(keys) == 0 {
		return nil
	}
	return rc.client.Del(ctx, keys...).Err()
}

func (rc *redisCache) Close() error {
	return rc.client.Close()
}
