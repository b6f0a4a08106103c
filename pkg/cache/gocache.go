package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// goCacheWrapper go-cache包装器
type goCacheWrapper struct {
	cache *gocache.Cache
}

// NewGoCache 创建基于 go-cache 的本地缓存，defaultTTL<=0 表示默认不过期
func NewGoCache(defaultTTL time.Duration) Cache {
	exp := gocache.NoExpiration
	if defaultTTL > 0 {
		exp = defaultTTL
	}
	return &goCacheWrapper{cache: gocache.New(exp, time.Minute)}
}

func (gc *goCacheWrapper) Get(_ context.Context, key string) (any, bool) {
	return gc.cache.Get(key)
}

func (gc *goCacheWrapper) Set(_ context.Context, key string, value any, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = gocache.DefaultExpiration
	}
	gc.cache.Set(key, value, expiration)
	return nil
}

func (gc *goCacheWrapper) Delete(_ context.Context, key string) error {
	gc.cache.Delete(key)
	return nil
}

func (gc *goCacheWrapper) Exists(_ context.Context, key string) bool {
	_, found := gc.cache.Get(key)
	return found
}

func (gc *goCacheWrapper) Keys(_ context.Context) []string {
	items := gc.cache.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return keys
}

func (gc *goCacheWrapper) Clear(_ context.Context) error {
	gc.cache.Flush()
	return nil
}

func (gc *goCacheWrapper) Close() error {
	gc.cache.Flush()
	return nil
}
