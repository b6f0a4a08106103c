package cache

import (
	"fmt"
	"strings"
)

// NewCache 按类型创建缓存实例
func NewCache(cfg Config) (Cache, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "gocache", "local":
		return NewGoCache(cfg.LRUTTL), nil
	case "lru":
		return NewLRUCache(cfg.LRUSize, cfg.LRUTTL), nil
	case "redis":
		return NewRedisCache(cfg.Redis, cfg.Namespace)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
