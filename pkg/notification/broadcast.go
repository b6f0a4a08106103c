package notification

import (
	"context"

	"RescueDesk/pkg/sse"
	"RescueDesk/pkg/websocket"
)

// SSESink 推送到 /events 订阅者
func SSESink(hub *sse.Hub) Sink {
	return FuncSink{SinkName: "sse", Fn: func(_ context.Context, msg Message) error {
		return hub.PublishJSON(sse.EventNotification, msg)
	}}
}

// WebSocketSink 推送到地图连接
func WebSocketSink(hub *websocket.Hub) Sink {
	return FuncSink{SinkName: "websocket", Fn: func(_ context.Context, msg Message) error {
		return hub.BroadcastJSON(websocket.MessageTypeNotification, msg)
	}}
}
