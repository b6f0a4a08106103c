package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"RescueDesk/pkg/cache"

	"github.com/gin-gonic/gin"
)

type IdempotencyConfig struct {
	HeaderName string        // Idempotency-Key 的请求头名
	TTL        time.Duration // 重复请求的拒绝窗口
	Store      cache.Cache   // 默认 go-cache，多实例时传 Redis
	// HashBody 没有请求头时以 方法+路径+请求体 的哈希作为键
	HashBody bool
}

// IdempotencyMiddleware 窗口内相同键的请求返回 409；处理失败(5xx)时释放键以便重试
func IdempotencyMiddleware(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "Idempotency-Key"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Store == nil {
		cfg.Store = cache.NewGoCache(cfg.TTL)
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if key == "" && cfg.HashBody {
			b, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(b))
			h := sha256.New()
			h.Write([]byte(c.Request.Method + " " + c.Request.URL.Path + "\n"))
			h.Write(b)
			key = hex.EncodeToString(h.Sum(nil))
		}
		if key == "" {
			c.Next()
			return
		}
		key = "idem:" + OperatorID(c) + ":" + key

		ctx := context.WithoutCancel(c.Request.Context())
		if cfg.Store.Exists(ctx, key) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"success": false, "error": "duplicate request"})
			return
		}
		_ = cfg.Store.Set(ctx, key, time.Now().Unix(), cfg.TTL)

		c.Next()

		if c.Writer.Status() >= http.StatusInternalServerError {
			_ = cfg.Store.Delete(ctx, key)
		}
	}
}
