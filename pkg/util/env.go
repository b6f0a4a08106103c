package util

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv 按环境加载 .env.<env>，再加载 .env；已存在的环境变量不会被覆盖
func LoadEnv(env string) error {
	var files []string
	if env != "" {
		if _, err := os.Stat(".env." + env); err == nil {
			files = append(files, ".env."+env)
		}
	}
	if _, err := os.Stat(".env"); err == nil {
		files = append(files, ".env")
	}
	if len(files) == 0 {
		return fmt.Errorf("no env file for %q", env)
	}
	return godotenv.Load(files...)
}

// GetEnv 读取字符串环境变量，可选默认值
func GetEnv(key string, def ...string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	if len(def) > 0 {
		return def[0]
	}
	return ""
}

func GetIntEnv(key string, def ...int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		if len(def) > 0 {
			return def[0]
		}
		return 0
	}
	n, err := cast.ToInt64E(v)
	if err != nil && len(def) > 0 {
		return def[0]
	}
	return n
}

func GetBoolEnv(key string, def ...bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return len(def) > 0 && def[0]
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return len(def) > 0 && def[0]
	}
	return b
}

func GetFloatEnv(key string, def ...float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		if len(def) > 0 {
			return def[0]
		}
		return 0
	}
	f, err := cast.ToFloat64E(v)
	if err != nil && len(def) > 0 {
		return def[0]
	}
	return f
}

// GetDurationEnv 支持 "500ms"、"15s"，纯数字按毫秒处理
func GetDurationEnv(key string, def ...time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		if len(def) > 0 {
			return def[0]
		}
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := cast.ToInt64E(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	if len(def) > 0 {
		return def[0]
	}
	return 0
}

// GetSliceEnv 逗号分隔
func GetSliceEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(GetEnv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
