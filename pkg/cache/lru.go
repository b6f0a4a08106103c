package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// lruCache 容量受限的本地缓存，所有键共享同一 TTL
type lruCache struct {
	lru *expirable.LRU[string, any]
}

// NewLRUCache size<=0 时取 1024；ttl<=0 表示不过期
func NewLRUCache(size int, ttl time.Duration) Cache {
	if size <= 0 {
		size = 1024
	}
	if ttl < 0 {
		ttl = 0
	}
	return &lruCache{lru: expirable.NewLRU[string, any](size, nil, ttl)}
}

func (l *lruCache) Get(_ context.Context, key string) (any, bool) {
	return l.lru.Get(key)
}

// Set 单键过期时间由 LRU 统一控制
func (l *lruCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	l.lru.Add(key, value)
	return nil
}

func (l *lruCache) Delete(_ context.Context, key string) error {
	l.lru.Remove(key)
	return nil
}

func (l *lruCache) Exists(_ context.Context, key string) bool {
	return l.lru.Contains(key)
}

func (l *lruCache) Keys(_ context.Context) []string {
	return l.lru.Keys()
}

func (l *lruCache) Clear(_ context.Context) error {
	l.lru.Purge()
	return nil
}

func (l *lruCache) Close() error {
	l.lru.Purge()
	return nil
}
