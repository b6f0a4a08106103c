package changefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"RescueDesk/internal/models"
	"RescueDesk/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// RealtimeSource 托管后端的 realtime websocket（Phoenix channel 协议），每个订阅一条连接
type RealtimeSource struct {
	endpoint  string
	apiKey    string
	schema    string
	heartbeat time.Duration
	dialer    *websocket.Dialer
}

func NewRealtimeSource(endpoint, apiKey string) *RealtimeSource {
	return &RealtimeSource{
		endpoint:  endpoint,
		apiKey:    apiKey,
		schema:    "public",
		heartbeat: 30 * time.Second,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

// realtimeChange 同时兼容新版 postgres_changes 与旧版 INSERT/UPDATE/DELETE 事件负载
type realtimeChange struct {
	Data *realtimeChange `json:"data,omitempty"`

	Type      string     `json:"type"`
	EventType string     `json:"eventType"`
	Table     string     `json:"table"`
	Record    models.Row `json:"record"`
	OldRecord models.Row `json:"old_record"`
	New       models.Row `json:"new"`
	Old       models.Row `json:"old"`
	Commit    string     `json:"commit_timestamp"`
}

// decodeRealtime 非数据消息返回 ok=false
func decodeRealtime(table string, m phxMessage) (Event, bool) {
	switch m.Event {
	case "postgres_changes", "INSERT", "UPDATE", "DELETE":
	default:
		return Event{}, false
	}
	var c realtimeChange
	if err := json.Unmarshal(m.Payload, &c); err != nil {
		return Event{}, false
	}
	if c.Data != nil {
		c = *c.Data
	}
	kindStr := c.Type
	if kindStr == "" {
		kindStr = c.EventType
	}
	if kindStr == "" {
		kindStr = m.Event
	}
	kind, ok := ParseKind(kindStr)
	if !ok {
		return Event{}, false
	}
	e := Event{Table: table, Kind: kind, New: c.Record, Old: c.OldRecord, At: time.Now().UTC()}
	if e.New == nil {
		e.New = c.New
	}
	if e.Old == nil {
		e.Old = c.Old
	}
	if ts, err := time.Parse(time.RFC3339Nano, c.Commit); err == nil {
		e.At = ts.UTC()
	}
	return e, e.Validate() == nil
}

func (s *RealtimeSource) Subscribe(ctx context.Context, table string, filter *Filter) (*Subscription, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if s.apiKey != "" {
		q.Set("apikey", s.apiKey)
	}
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()

	conn, _, err := s.dialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		return nil, err
	}

	topic := "realtime:" + s.schema + ":" + table
	var (
		ref     atomic.Int64
		writeMu sync.Mutex
	)
	send := func(event string, payload any) error {
		data, _ := json.Marshal(payload)
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(phxMessage{Topic: topic, Event: event, Payload: data, Ref: strconv.FormatInt(ref.Add(1), 10)})
	}

	change := map[string]any{"event": "*", "schema": s.schema, "table": table}
	if filter != nil && filter.Column != "" {
		change["filter"] = filter.String()
	}
	if err := send("phx_join", map[string]any{"config": map[string]any{"postgres_changes": []any{change}}}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	sub := newSubscription(table, filter, func() {
		cancel()
		_ = send("phx_leave", map[string]any{})
		_ = conn.Close()
	})

	go func() {
		t := time.NewTicker(s.heartbeat)
		defer t.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-t.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				err := conn.WriteJSON(phxMessage{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage(`{}`), Ref: strconv.FormatInt(ref.Add(1), 10)})
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	go func() {
		defer sub.Unsubscribe()
		for {
			var m phxMessage
			if err := conn.ReadJSON(&m); err != nil {
				if loopCtx.Err() == nil {
					logger.Warn("realtime connection closed", zap.String("table", table), zap.Error(err))
				}
				return
			}
			if m.Event == "phx_reply" || m.Event == "system" || m.Topic == "phoenix" {
				continue
			}
			if e, ok := decodeRealtime(table, m); ok && !sub.deliver(loopCtx, e) {
				return
			}
		}
	}()
	return sub, nil
}

func (s *RealtimeSource) Close() error { return nil }
