package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)
	assert.NotNil(t, hub)
	assert.Equal(t, int64(DefaultMaxConnections), hub.config.MaxConnections)
	assert.Equal(t, 30*time.Second, hub.config.HeartbeatInterval)

	hub.Close()
	hub.Close()
}

func TestHubConnectionManagement(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	conn := &Connection{ID: "test_conn_1", UserID: "op1", IsAlive: true, Send: make(chan []byte, 4)}

	hub.register <- conn
	time.Sleep(100 * time.Millisecond) // 等待处理
	assert.Equal(t, int64(1), hub.GetConnectionCount())

	hub.unregister <- conn
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(0), hub.GetConnectionCount())
}

func TestBroadcastReachesConnections(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	conn := &Connection{ID: "c1", IsAlive: true, Send: make(chan []byte, 4)}
	hub.register <- conn
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, hub.BroadcastJSON(MessageTypeFlyTo, map[string]float64{"lat": 1, "lng": 2}))

	select {
	case raw := <-conn.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, MessageTypeFlyTo, msg.Type)
		assert.JSONEq(t, `{"lat":1,"lng":2}`, string(msg.Data))
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}
}

func TestStateReplayedOnRegister(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	require.NoError(t, hub.BroadcastState(MessageTypeSetMarkers, []string{"sos:a1"}))
	time.Sleep(50 * time.Millisecond)

	late := &Connection{ID: "late", IsAlive: true, Send: make(chan []byte, 4)}
	hub.register <- late

	select {
	case raw := <-late.Send:
		assert.Contains(t, string(raw), "sos:a1")
	case <-time.After(time.Second):
		t.Fatal("state not replayed")
	}
}

func TestConnectionLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnections = 1
	hub := NewHub(cfg)
	defer hub.Close()

	hub.register <- &Connection{ID: "a", IsAlive: true, Send: make(chan []byte, 1)}
	hub.register <- &Connection{ID: "b", IsAlive: true, Send: make(chan []byte, 1)}
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), hub.GetConnectionCount())
}

func TestMarkerClickDispatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil)
	defer hub.Close()

	clicked := make(chan string, 1)
	hub.Handle(MessageTypeMarkerClick, func(conn *Connection, msg Message) {
		var body struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(msg.Data, &body)
		clicked <- body.ID + "@" + msg.From
	})

	r := gin.New()
	RegisterRoutes(r, NewHandler(hub))
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + RouteWebSocket + "?operator=op7"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(map[string]any{"type": MessageTypePing}))
	var pong Message
	require.NoError(t, ws.ReadJSON(&pong))
	assert.Equal(t, MessageTypePong, pong.Type)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": MessageTypeMarkerClick, "data": map[string]string{"id": "sos:a1"}}))
	select {
	case got := <-clicked:
		assert.Equal(t, "sos:a1@op7", got)
	case <-time.After(time.Second):
		t.Fatal("marker click not dispatched")
	}
}

func TestStatsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil)
	defer hub.Close()

	r := gin.New()
	RegisterRoutes(r, NewHandler(hub))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, RouteWebSocketStats, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["total_connections"])
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(DefaultConfig()))
	bad := DefaultConfig()
	bad.ConnectionTimeout = bad.HeartbeatInterval
	assert.Error(t, ValidateConfig(bad))
}
