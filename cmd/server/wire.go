package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"RescueDesk/internal/changefeed"
	"RescueDesk/internal/dashboard"
	"RescueDesk/internal/geo"
	"RescueDesk/internal/models"
	"RescueDesk/internal/rowstore"
	"RescueDesk/pkg/config"
	"RescueDesk/pkg/logger"
	"RescueDesk/pkg/metrics"
	"RescueDesk/pkg/middleware"
	"RescueDesk/pkg/search"
	"RescueDesk/pkg/storage"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// migrate 告警表、操作日志以及两张人员表
func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.Migrate()...); err != nil {
		return err
	}
	for _, table := range []string{dashboard.HelperTable, dashboard.ResponderTable} {
		if err := db.Table(table).AutoMigrate(&models.PersonnelRecord{}); err != nil {
			return fmt.Errorf("migrate %s: %w", table, err)
		}
	}
	return nil
}

// redisClient 缓存或变更源使用 redis 时才创建
func redisClient(cfg *config.Config) *redis.Client {
	if !strings.EqualFold(cfg.Cache.Type, "redis") && !strings.EqualFold(cfg.ChangeFeed, "redis") && !strings.EqualFold(cfg.RateLimitStore, "redis") {
		return nil
	}
	rc := cfg.Cache.Redis
	return redis.NewClient(&redis.Options{
		Addr:         rc.Addr,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
	})
}

// openFeed 行存储与变更源。能发布的源包装进行存储，写操作在本进程内立即回显
func openFeed(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (rowstore.Store, changefeed.Source, error) {
	var store rowstore.Store
	switch strings.ToLower(cfg.RowStore) {
	case "", "gorm":
		store = rowstore.NewGormStore(db)
	case "rest":
		if cfg.RestURL == "" {
			return nil, nil, fmt.Errorf("ROWSTORE=rest requires REST_URL")
		}
		store = rowstore.NewRestStore(cfg.RestURL, cfg.RestAPIKey, &http.Client{Timeout: 15 * time.Second})
	default:
		return nil, nil, fmt.Errorf("unsupported row store: %s", cfg.RowStore)
	}

	var (
		source changefeed.Source
		pub    changefeed.Publisher
	)
	switch strings.ToLower(cfg.ChangeFeed) {
	case "", "memory":
		bus := changefeed.NewMemoryBus()
		source, pub = bus, bus
	case "redis":
		rs := changefeed.NewRedisSource(rdb, cfg.FeedPrefix)
		source, pub = rs, rs
	case "mqtt":
		ms, err := changefeed.NewMQTTSource(changefeed.MQTTConfig{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.FeedPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		source, pub = ms, ms
	case "kafka":
		source = changefeed.NewKafkaSource(changefeed.KafkaConfig{
			Brokers:     cfg.KafkaBrokers,
			TopicPrefix: cfg.KafkaTopicPrefix,
			GroupID:     cfg.KafkaGroup,
		})
	case "realtime":
		source = changefeed.NewRealtimeSource(cfg.RealtimeURL, cfg.RestAPIKey)
	default:
		return nil, nil, fmt.Errorf("unsupported change feed: %s", cfg.ChangeFeed)
	}
	if pub != nil {
		store = rowstore.WithPublisher(store, pub)
	}
	logger.Info("data layer ready",
		zap.String("rowstore", cfg.RowStore),
		zap.String("changefeed", cfg.ChangeFeed),
		zap.Bool("echo", pub != nil))
	return store, source, nil
}

func openSearch() (search.Engine, error) {
	return search.New(search.Config{
		DefaultSearchFields: []string{"title", "description", "address", "user", "notes"},
		QueryTimeout:        2 * time.Second,
	}, search.BuildIndexMapping(""))
}

// mediaLocator 未配置 MinIO 时返回 nil，媒体地址原样输出
func mediaLocator(cfg *config.Config) (storage.Locator, error) {
	if !cfg.Minio.Enabled() {
		return nil, nil
	}
	loc, err := storage.NewMinioLocator(cfg.Minio)
	if err != nil {
		return nil, err
	}
	return loc, nil
}

func geoClient(cfg *config.Config, m *metrics.Metrics) *geo.Client {
	gc := geo.DefaultConfig()
	if cfg.OSRMURL != "" {
		gc.OSRMURL = cfg.OSRMURL
	}
	if cfg.NominatimURL != "" {
		gc.NominatimURL = cfg.NominatimURL
	}
	if cfg.GeoRate > 0 {
		gc.Rate = cfg.GeoRate
	}
	return geo.NewClient(gc, m)
}

// rateLimiter 写路径限流；RATE_LIMIT 为空时不启用
func rateLimiter(cfg *config.Config, rdb *redis.Client, m *metrics.Metrics) (*middleware.RateLimiter, error) {
	if cfg.RateLimit == "" {
		return nil, nil
	}
	var store limiter.Store
	if rdb != nil && strings.EqualFold(cfg.RateLimitStore, "redis") {
		s, err := middleware.NewRedisStore(rdb, "rescuedesk:limiter")
		if err != nil {
			return nil, err
		}
		store = s
	}
	l := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:        cfg.RateLimit,
		PerOperator: true,
		AddHeaders:  true,
	}, store)
	return l.WithObserver(middleware.NewMetricsObserver(m)), nil
}
