package dashboard

import (
	"encoding/json"
	"sync"
	"time"

	"RescueDesk/internal/models"
	"RescueDesk/internal/view"
	"RescueDesk/pkg/logger"
	"RescueDesk/pkg/websocket"

	"go.uber.org/zap"
)

// 地图组件 WebSocket 消息类型
const (
	MsgSetMarkers  = "set_markers"
	MsgFlyTo       = "fly_to"
	MsgMarkerClick = "marker_click"
)

// FlyTo fly_to 消息负载
type FlyTo struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Zoom       float64 `json:"zoom"`
	DurationMs int64   `json:"duration_ms"`
}

type markerClick struct {
	ID string `json:"id"`
}

// HubSurface 通过 WebSocket 驱动浏览器中的地图组件。标记集合以 GeoJSON 发送并为新连接补发
type HubSurface struct {
	hub *websocket.Hub

	mu      sync.RWMutex
	onClick []func(string)
}

func NewHubSurface(hub *websocket.Hub) *HubSurface {
	s := &HubSurface{hub: hub}
	hub.Handle(MsgMarkerClick, s.handleClick)
	return s
}

func (s *HubSurface) SetMarkers(markers []models.Marker) {
	if err := s.hub.BroadcastState(MsgSetMarkers, view.FeatureCollection(markers)); err != nil {
		logger.Warn("push markers failed", zap.Int("markers", len(markers)), zap.Error(err))
	}
}

func (s *HubSurface) FlyTo(target models.Coordinate, zoom float64, duration time.Duration) {
	msg := FlyTo{Lat: target.Lat, Lng: target.Lng, Zoom: zoom, DurationMs: duration.Milliseconds()}
	if err := s.hub.BroadcastJSON(MsgFlyTo, msg); err != nil {
		logger.Warn("fly to failed", zap.String("target", target.String()), zap.Error(err))
	}
}

func (s *HubSurface) OnMarkerClick(fn func(markerID string)) {
	s.mu.Lock()
	s.onClick = append(s.onClick, fn)
	s.mu.Unlock()
}

func (s *HubSurface) handleClick(conn *websocket.Connection, msg websocket.Message) {
	var in markerClick
	if err := json.Unmarshal(msg.Data, &in); err != nil || in.ID == "" {
		logger.Debug("bad marker click", zap.String("conn", conn.ID), zap.Error(err))
		return
	}
	s.mu.RLock()
	fns := make([]func(string), len(s.onClick))
	copy(fns, s.onClick)
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(in.ID)
	}
}
