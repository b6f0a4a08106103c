package websocket

// 消息类型
const (
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeSetMarkers   = "set_markers"
	MessageTypeFlyTo        = "fly_to"
	MessageTypeMarkerClick  = "marker_click"
	MessageTypeView         = "view"
	MessageTypeNotification = "notification"
	MessageTypeError        = "error"
)

// 默认配置值
const (
	DefaultMaxConnections    = 1000
	DefaultHeartbeatInterval = 30
	DefaultConnectionTimeout = 60
	DefaultMessageBufferSize = 256
	DefaultReadBufferSize    = 1024
	DefaultWriteBufferSize   = 4096
	DefaultMaxMessageSize    = 4096
)

// 环境变量配置键
const (
	EnvWebSocketMaxConnections    = "WEBSOCKET_MAX_CONNECTIONS"
	EnvWebSocketHeartbeatInterval = "WEBSOCKET_HEARTBEAT_INTERVAL"
	EnvWebSocketConnectionTimeout = "WEBSOCKET_CONNECTION_TIMEOUT"
	EnvWebSocketMessageBufferSize = "WEBSOCKET_MESSAGE_BUFFER_SIZE"
	EnvWebSocketEnableCompression = "WEBSOCKET_ENABLE_COMPRESSION"
	EnvWebSocketDropOnFull        = "WEBSOCKET_DROP_ON_FULL"
	EnvWebSocketMaxMessageSize    = "WEBSOCKET_MAX_MESSAGE_SIZE"
)

// 错误消息
const (
	ErrConnectionLimitExceeded = "连接数已达到上限"
	ErrInvalidMessageType      = "无效的消息类型"
	ErrSendBufferFull          = "发送缓冲区已满"
)

// 路由路径
const (
	RouteWebSocket      = "/ws"
	RouteWebSocketStats = "/ws/stats"
)
