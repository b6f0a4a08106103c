package storage

import (
	"context"
	"net/url"
	"strings"
	"time"

	"RescueDesk/internal/models"
	"RescueDesk/pkg/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type MinioConfig struct {
	Endpoint  string        `env:"MINIO_ENDPOINT"`
	AccessKey string        `env:"MINIO_ACCESS_KEY"`
	SecretKey string        `env:"MINIO_SECRET_KEY"`
	Bucket    string        `env:"MINIO_BUCKET"`
	UseSSL    bool          `env:"MINIO_USE_SSL"`
	Region    string        `env:"MINIO_REGION"`
	URLExpiry time.Duration `env:"MINIO_URL_EXPIRY"`
}

// Enabled 是否配置了 endpoint
func (c MinioConfig) Enabled() bool { return c.Endpoint != "" }

// Locator 把媒体定位符解析为可直接访问的 URL
type Locator interface {
	Resolve(ctx context.Context, locator string) (string, error)
}

// MinioLocator 对象键签发临时 GET 链接；绝对 http(s) 地址原样返回
type MinioLocator struct {
	cfg MinioConfig
	cli *minio.Client
}

func NewMinioLocator(cfg MinioConfig) (*MinioLocator, error) {
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = time.Hour
	}
	if cfg.Region == "" {
		// 固定 region，签名时不必查询 bucket location
		cfg.Region = "us-east-1"
	}
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &MinioLocator{cfg: cfg, cli: cli}, nil
}

// splitLocator 支持 s3://bucket/key、minio://bucket/key、bucket 内相对键
func (m *MinioLocator) splitLocator(locator string) (bucket, key string, ok bool) {
	s := strings.TrimSpace(locator)
	if s == "" {
		return "", "", false
	}
	for _, scheme := range []string{"s3://", "minio://"} {
		if rest, found := strings.CutPrefix(s, scheme); found {
			b, k, _ := strings.Cut(rest, "/")
			return b, k, b != "" && k != ""
		}
	}
	if strings.Contains(s, "://") {
		return "", "", false
	}
	return m.cfg.Bucket, strings.TrimLeft(s, "/"), true
}

func (m *MinioLocator) Resolve(ctx context.Context, locator string) (string, error) {
	bucket, key, ok := m.splitLocator(locator)
	if !ok {
		return locator, nil
	}
	u, err := m.cli.PresignedGetObject(ctx, bucket, key, m.cfg.URLExpiry, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// ResolveMedia 返回解析后的副本；失败的条目保留原始定位符
func ResolveMedia(ctx context.Context, loc Locator, media []models.Media) []models.Media {
	out := make([]models.Media, len(media))
	copy(out, media)
	if loc == nil {
		return out
	}
	for i := range out {
		u, err := loc.Resolve(ctx, out[i].URL)
		if err != nil {
			logger.Warn("media url not resolved", zap.String("media", out[i].ID), zap.Error(err))
			continue
		}
		out[i].URL = u
	}
	return out
}
