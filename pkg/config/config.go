package config

import (
	"os"
	"time"

	"RescueDesk/pkg/cache"
	"RescueDesk/pkg/logger"
	"RescueDesk/pkg/notification"
	"RescueDesk/pkg/storage"
	"RescueDesk/pkg/util"

	"go.uber.org/zap"
)

// Config 进程配置
type Config struct {
	Addr      string `env:"ADDR"`
	Mode      string `env:"MODE"`
	APIPrefix string `env:"API_PREFIX"`
	Log       logger.LogConfig

	DBDriver   string `env:"DB_DRIVER"`
	DSN        string `env:"DSN"`
	RowStore   string `env:"ROWSTORE"`
	RestURL    string `env:"REST_URL"`
	RestAPIKey string `env:"REST_API_KEY"`

	ChangeFeed       string   `env:"CHANGEFEED"`
	KafkaBrokers     []string `env:"KAFKA_BROKERS"`
	KafkaTopicPrefix string   `env:"KAFKA_TOPIC_PREFIX"`
	KafkaGroup       string   `env:"KAFKA_GROUP"`
	MQTTBroker       string   `env:"MQTT_BROKER"`
	MQTTClientID     string   `env:"MQTT_CLIENT_ID"`
	MQTTUsername     string   `env:"MQTT_USERNAME"`
	MQTTPassword     string   `env:"MQTT_PASSWORD"`
	FeedPrefix       string   `env:"CHANGEFEED_PREFIX"`
	RealtimeURL      string   `env:"REALTIME_URL"`

	AlertTable          string `env:"ALERT_TABLE"`
	AlertOrderColumn    string `env:"ALERT_ORDER_COLUMN"`
	AlertFallbackColumn string `env:"ALERT_FALLBACK_ORDER_COLUMN"`
	SnapshotPageSize    int    `env:"SNAPSHOT_PAGE_SIZE"`
	RefreshSchedule     string `env:"REFRESH_SCHEDULE"`

	DetectInterval time.Duration `env:"DETECT_INTERVAL"`
	DetectMode     string        `env:"DETECT_MODE"`
	FocusDwell     time.Duration `env:"FOCUS_DWELL"`
	FocusZoom      float64       `env:"FOCUS_ZOOM"`
	FlyDurationMs  int           `env:"FLY_DURATION_MS"`
	RecentWindow   time.Duration `env:"RECENT_WINDOW"`

	Cache cache.Config

	OSRMURL      string  `env:"OSRM_URL"`
	NominatimURL string  `env:"NOMINATIM_URL"`
	GeoRate      float64 `env:"GEO_RATE"`

	Minio storage.MinioConfig
	JPush notification.JPushConfig

	NotifyLang     string `env:"NOTIFY_LANG"`
	RateLimit      string `env:"RATE_LIMIT"`
	RateLimitStore string `env:"RATE_LIMIT_STORE"`
}

var GlobalConfig *Config

// Load 加载 .env 后读取环境变量
func Load() (*Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := util.LoadEnv(env); err != nil {
		zap.L().Info("env file not loaded", zap.Error(err))
	}

	cfg := &Config{
		Addr:      util.GetEnv("ADDR", ":8080"),
		Mode:      util.GetEnv("MODE", "release"),
		APIPrefix: util.GetEnv("API_PREFIX", "/api"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL", "info"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},

		DBDriver:   util.GetEnv("DB_DRIVER", "sqlite"),
		DSN:        util.GetEnv("DSN"),
		RowStore:   util.GetEnv("ROWSTORE", "gorm"),
		RestURL:    util.GetEnv("REST_URL"),
		RestAPIKey: util.GetEnv("REST_API_KEY"),

		ChangeFeed:       util.GetEnv("CHANGEFEED", "memory"),
		KafkaBrokers:     util.GetSliceEnv("KAFKA_BROKERS"),
		KafkaTopicPrefix: util.GetEnv("KAFKA_TOPIC_PREFIX", "rescuedesk.public"),
		KafkaGroup:       util.GetEnv("KAFKA_GROUP", "rescuedesk"),
		MQTTBroker:       util.GetEnv("MQTT_BROKER"),
		MQTTClientID:     util.GetEnv("MQTT_CLIENT_ID", "rescuedesk"),
		MQTTUsername:     util.GetEnv("MQTT_USERNAME"),
		MQTTPassword:     util.GetEnv("MQTT_PASSWORD"),
		FeedPrefix:       util.GetEnv("CHANGEFEED_PREFIX"),
		RealtimeURL:      util.GetEnv("REALTIME_URL"),

		AlertTable:          util.GetEnv("ALERT_TABLE", "sos_alerts"),
		AlertOrderColumn:    util.GetEnv("ALERT_ORDER_COLUMN", "triggered_at"),
		AlertFallbackColumn: util.GetEnv("ALERT_FALLBACK_ORDER_COLUMN", "created_at"),
		SnapshotPageSize:    int(util.GetIntEnv("SNAPSHOT_PAGE_SIZE", 1000)),
		RefreshSchedule:     util.GetEnv("REFRESH_SCHEDULE"),

		DetectInterval: util.GetDurationEnv("DETECT_INTERVAL", 500*time.Millisecond),
		DetectMode:     util.GetEnv("DETECT_MODE", "both"),
		FocusDwell:     util.GetDurationEnv("FOCUS_DWELL", 15*time.Second),
		FocusZoom:      util.GetFloatEnv("FOCUS_ZOOM", 16),
		FlyDurationMs:  int(util.GetIntEnv("FLY_DURATION_MS", 1500)),
		RecentWindow:   util.GetDurationEnv("RECENT_WINDOW", 24*time.Hour),

		Cache: cache.Config{
			Type:      util.GetEnv("CACHE_TYPE", "gocache"),
			Namespace: util.GetEnv("CACHE_NAMESPACE", "rescuedesk:notified"),
			Redis: cache.RedisConfig{
				Addr:     util.GetEnv("REDIS_ADDR", "localhost:6379"),
				Password: util.GetEnv("REDIS_PASSWORD"),
				DB:       int(util.GetIntEnv("REDIS_DB")),
			},
			LRUSize: int(util.GetIntEnv("CACHE_LRU_SIZE", 4096)),
		},

		OSRMURL:      util.GetEnv("OSRM_URL", "https://router.project-osrm.org"),
		NominatimURL: util.GetEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		GeoRate:      util.GetFloatEnv("GEO_RATE", 1),

		Minio: storage.MinioConfig{
			Endpoint:  util.GetEnv("MINIO_ENDPOINT"),
			AccessKey: util.GetEnv("MINIO_ACCESS_KEY"),
			SecretKey: util.GetEnv("MINIO_SECRET_KEY"),
			Bucket:    util.GetEnv("MINIO_BUCKET", "sos-media"),
			UseSSL:    util.GetBoolEnv("MINIO_USE_SSL"),
			URLExpiry: util.GetDurationEnv("MINIO_URL_EXPIRY", time.Hour),
		},
		JPush: notification.JPushConfig{
			AppKey:       util.GetEnv("JPUSH_APP_KEY"),
			MasterSecret: util.GetEnv("JPUSH_MASTER_SECRET"),
		},

		NotifyLang:     util.GetEnv("NOTIFY_LANG", "en"),
		RateLimit:      util.GetEnv("RATE_LIMIT", "60-M"),
		RateLimitStore: util.GetEnv("RATE_LIMIT_STORE", "memory"),
	}
	GlobalConfig = cfg
	return cfg, nil
}
