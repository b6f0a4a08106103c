package websocket

import (
	"fmt"
	"time"

	"RescueDesk/pkg/util"
)

// Config WebSocket配置
type Config struct {
	// 最大连接数
	MaxConnections int64
	// 心跳间隔
	HeartbeatInterval time.Duration
	// 连接超时时间
	ConnectionTimeout time.Duration
	// 消息缓冲区大小
	MessageBufferSize int
	ReadBufferSize    int
	WriteBufferSize   int
	MaxMessageSize    int
	EnableCompression bool
	// 发送缓冲区满时丢弃，否则最多等待 SendTimeout
	DropOnFull  bool
	SendTimeout time.Duration
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:    DefaultMaxConnections,
		HeartbeatInterval: DefaultHeartbeatInterval * time.Second,
		ConnectionTimeout: DefaultConnectionTimeout * time.Second,
		MessageBufferSize: DefaultMessageBufferSize,
		ReadBufferSize:    DefaultReadBufferSize,
		WriteBufferSize:   DefaultWriteBufferSize,
		MaxMessageSize:    DefaultMaxMessageSize,
		EnableCompression: true,
		DropOnFull:        true,
		SendTimeout:       50 * time.Millisecond,
	}
}

// LoadConfigFromEnv 从环境变量加载WebSocket配置
func LoadConfigFromEnv() *Config {
	config := DefaultConfig()
	config.MaxConnections = util.GetIntEnv(EnvWebSocketMaxConnections, config.MaxConnections)
	if v := util.GetIntEnv(EnvWebSocketHeartbeatInterval); v > 0 {
		config.HeartbeatInterval = time.Duration(v) * time.Second
	}
	if v := util.GetIntEnv(EnvWebSocketConnectionTimeout); v > 0 {
		config.ConnectionTimeout = time.Duration(v) * time.Second
	}
	config.MessageBufferSize = int(util.GetIntEnv(EnvWebSocketMessageBufferSize, int64(config.MessageBufferSize)))
	config.MaxMessageSize = int(util.GetIntEnv(EnvWebSocketMaxMessageSize, int64(config.MaxMessageSize)))
	config.EnableCompression = util.GetBoolEnv(EnvWebSocketEnableCompression, config.EnableCompression)
	config.DropOnFull = util.GetBoolEnv(EnvWebSocketDropOnFull, config.DropOnFull)
	return config
}

// ValidateConfig 校验配置
func ValidateConfig(config *Config) error {
	if config.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be positive")
	}
	if config.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	if config.ConnectionTimeout <= config.HeartbeatInterval {
		return fmt.Errorf("connection timeout must exceed heartbeat interval")
	}
	if config.MessageBufferSize <= 0 {
		return fmt.Errorf("message buffer size must be positive")
	}
	return nil
}
