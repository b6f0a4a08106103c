package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"RescueDesk/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimiterConfig 写路径限流配置
//
// Rate: "60-M"；PerOperator 为 true 时按调度员计数，无调度员标识的请求按 IP
// AllowCIDRs: ["10.0.0.0/8"] 不受限制
// SkipPaths: ["/health"] 前缀匹配
type RateLimiterConfig struct {
	Rate        string   `json:"rate"`
	PerOperator bool     `json:"per_operator"`
	AllowCIDRs  []string `json:"allow_cidrs"`
	SkipPaths   []string `json:"skip_paths"`
	AddHeaders  bool     `json:"add_headers"`
}

// MetricsObserver 指标上报接口
type MetricsObserver interface {
	OnAllow(route string)
	OnDeny(route string)
}

type promObserver struct{ m *metrics.Metrics }

// NewMetricsObserver 上报到 rescuedesk_rate_limit_total
func NewMetricsObserver(m *metrics.Metrics) MetricsObserver { return promObserver{m: m} }

func (p promObserver) OnAllow(route string) { p.m.RateLimit(route, "allow") }
func (p promObserver) OnDeny(route string)  { p.m.RateLimit(route, "deny") }

// RateLimiter 配置可在运行时替换，计数保存在 store 中
type RateLimiter struct {
	mu       sync.RWMutex
	cfg      RateLimiterConfig
	store    limiter.Store
	lim      *limiter.Limiter
	allow    []*net.IPNet
	observer MetricsObserver
}

// NewRateLimiter store 为 nil 时使用内存存储
func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) *RateLimiter {
	if store == nil {
		store = memory.NewStore()
	}
	l := &RateLimiter{store: store}
	l.UpdateConfig(cfg)
	return l
}

// NewRedisStore 多个调度台实例共享计数
func NewRedisStore(client *redis.Client, prefix string) (limiter.Store, error) {
	return sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
}

func (l *RateLimiter) WithObserver(observer MetricsObserver) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observer = observer
	return l
}

// UpdateConfig 无法解析的速率按 60-M 处理
func (l *RateLimiter) UpdateConfig(cfg RateLimiterConfig) {
	r, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		r = limiter.Rate{Period: time.Minute, Limit: 60}
	}
	var allow []*net.IPNet
	for _, s := range cfg.AllowCIDRs {
		if _, n, err := net.ParseCIDR(strings.TrimSpace(s)); err == nil {
			allow = append(allow, n)
		}
	}
	l.mu.Lock()
	l.cfg, l.lim, l.allow = cfg, limiter.New(l.store, r), allow
	l.mu.Unlock()
}

func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		l.mu.RLock()
		cfg, lim, allow, obs := l.cfg, l.lim, l.allow, l.observer
		l.mu.RUnlock()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		for _, p := range cfg.SkipPaths {
			if p != "" && strings.HasPrefix(route, p) {
				c.Next()
				return
			}
		}
		ip := strings.TrimPrefix(c.ClientIP(), "::ffff:")
		if pip := net.ParseIP(ip); pip != nil {
			for _, n := range allow {
				if n.Contains(pip) {
					c.Next()
					return
				}
			}
		}

		key := "ip:" + ip
		if op := OperatorID(c); cfg.PerOperator && op != "" {
			key = "op:" + op
		}
		lctx, err := lim.Get(c, key)
		if err != nil {
			// 存储不可用时放行
			c.Next()
			return
		}
		wait := time.Until(time.Unix(lctx.Reset, 0))
		if wait < 0 {
			wait = 0
		}
		if cfg.AddHeaders {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			c.Header("X-RateLimit-Reset", strconv.Itoa(int(wait.Seconds())))
		}
		if lctx.Reached {
			if obs != nil {
				obs.OnDeny(route)
			}
			c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": http.StatusTooManyRequests, "msg": "too many requests"})
			return
		}
		if obs != nil {
			obs.OnAllow(route)
		}
		c.Next()
	}
}
