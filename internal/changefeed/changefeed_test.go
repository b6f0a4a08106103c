package changefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"RescueDesk/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case e, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
	return Event{}
}

func TestMemoryBusOrderAndFilter(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx := context.Background()

	all, err := bus.Subscribe(ctx, "sos_alerts", nil)
	require.NoError(t, err)
	active, err := bus.Subscribe(ctx, "sos_alerts", &Filter{Column: "status", Value: "active"})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{Table: "sos_alerts", Kind: KindInsert, New: models.Row{"id": "a1", "status": "active"}}))
	require.NoError(t, bus.Publish(ctx, Event{Table: "sos_alerts", Kind: KindUpdate, New: models.Row{"id": "a1", "status": "resolved"}}))
	require.NoError(t, bus.Publish(ctx, Event{Table: "helpers", Kind: KindInsert, New: models.Row{"id": "h1"}}))

	assert.Equal(t, KindInsert, recv(t, all).Kind)
	e := recv(t, all)
	assert.Equal(t, KindUpdate, e.Kind)
	assert.Equal(t, "a1", e.ID())
	assert.False(t, e.At.IsZero())

	assert.Equal(t, KindInsert, recv(t, active).Kind)
	select {
	case e := <-active.Events():
		t.Fatalf("unexpected event %+v", e)
	default:
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()
	sub, err := bus.Subscribe(ctx, "sos_alerts", nil)
	require.NoError(t, err)

	sub.Unsubscribe()
	sub.Unsubscribe()

	_, ok := <-sub.Events()
	assert.False(t, ok)
	require.NoError(t, bus.Publish(ctx, Event{Table: "sos_alerts", Kind: KindInsert, New: models.Row{"id": "a1"}}))

	require.NoError(t, bus.Close())
	_, err = bus.Subscribe(ctx, "sos_alerts", nil)
	assert.Error(t, err)
}

func TestPublishRejectsEventWithoutID(t *testing.T) {
	bus := NewMemoryBus()
	err := bus.Publish(context.Background(), Event{Table: "sos_alerts", Kind: KindInsert, New: models.Row{"status": "active"}})
	assert.Error(t, err)
}

func TestFilterDeleteUsesOld(t *testing.T) {
	f := &Filter{Column: "status", Value: "active"}
	assert.True(t, f.Matches(Event{Kind: KindDelete, Old: models.Row{"id": "a1", "status": "active"}}))
	assert.True(t, f.Matches(Event{Kind: KindDelete, Old: models.Row{"id": "a1"}}))
	assert.False(t, f.Matches(Event{Kind: KindUpdate, New: models.Row{"id": "a1", "status": "resolved"}}))
	assert.Equal(t, "status=eq.active", f.String())
}

func TestDecodeDebezium(t *testing.T) {
	msg := `{"schema":{},"payload":{"before":{"id":"a1","status":"active"},"after":{"id":"a1","status":"resolved"},"op":"u","ts_ms":1767225600000}}`
	e, ok, err := DecodeDebezium("sos_alerts", []byte(msg))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, KindUpdate, e.Kind)
	assert.Equal(t, "resolved", e.New["status"])
	assert.Equal(t, "active", e.Old["status"])
	assert.Equal(t, time.UnixMilli(1767225600000).UTC(), e.At)

	flat := `{"before":{"id":"a2"},"after":null,"op":"d"}`
	e, ok, err = DecodeDebezium("sos_alerts", []byte(flat))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, KindDelete, e.Kind)
	assert.Equal(t, "a2", e.ID())

	_, ok, err = DecodeDebezium("sos_alerts", nil)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, err = DecodeDebezium("sos_alerts", []byte(`{"payload":{"op":"x"}}`))
	assert.Error(t, err)
}

func TestDecodeRealtimeFormats(t *testing.T) {
	modern := phxMessage{Event: "postgres_changes", Payload: json.RawMessage(
		`{"data":{"type":"INSERT","table":"sos_alerts","record":{"id":"a1"},"commit_timestamp":"2026-01-01T00:00:00Z"}}`)}
	e, ok := decodeRealtime("sos_alerts", modern)
	require.True(t, ok)
	assert.Equal(t, KindInsert, e.Kind)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), e.At)

	legacy := phxMessage{Event: "DELETE", Payload: json.RawMessage(`{"old_record":{"id":"a1"}}`)}
	e, ok = decodeRealtime("sos_alerts", legacy)
	require.True(t, ok)
	assert.Equal(t, KindDelete, e.Kind)

	_, ok = decodeRealtime("sos_alerts", phxMessage{Event: "presence_state"})
	assert.False(t, ok)
}

func TestRealtimeSourceJoinAndReceive(t *testing.T) {
	joined := make(chan phxMessage, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("apikey"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var join phxMessage
		if conn.ReadJSON(&join) != nil {
			return
		}
		joined <- join
		_ = conn.WriteJSON(phxMessage{Topic: join.Topic, Event: "phx_reply", Payload: json.RawMessage(`{"status":"ok"}`), Ref: join.Ref})
		_ = conn.WriteJSON(phxMessage{Topic: join.Topic, Event: "postgres_changes", Payload: json.RawMessage(
			`{"data":{"type":"UPDATE","record":{"id":"a1","status":"resolved"},"old_record":{"id":"a1"}}}`)})
		for {
			var m phxMessage
			if conn.ReadJSON(&m) != nil {
				return
			}
			joined <- m
		}
	}))
	defer srv.Close()

	src := NewRealtimeSource("ws"+strings.TrimPrefix(srv.URL, "http"), "key")
	sub, err := src.Subscribe(context.Background(), "sos_alerts", &Filter{Column: "status", Value: "resolved"})
	require.NoError(t, err)

	join := <-joined
	assert.Equal(t, "phx_join", join.Event)
	assert.Equal(t, "realtime:public:sos_alerts", join.Topic)
	assert.Contains(t, string(join.Payload), "status=eq.resolved")

	e := recv(t, sub)
	assert.Equal(t, KindUpdate, e.Kind)
	assert.Equal(t, "resolved", e.New["status"])

	sub.Unsubscribe()
	sub.Unsubscribe()
	select {
	case leave := <-joined:
		assert.Equal(t, "phx_leave", leave.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("no phx_leave")
	}
}
