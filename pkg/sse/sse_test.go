package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishNumbersEvents(t *testing.T) {
	h := NewHub(time.Second)
	c := h.AddClient("a")

	first := h.Publish(EventView, `{"v":1}`)
	second := h.Publish(EventNotification, `{"n":1}`)
	assert.Equal(t, uint64(1), first.ID)
	assert.Equal(t, uint64(2), second.ID)

	msg := <-c.ch
	assert.Equal(t, "id: 1\nevent: view\ndata: {\"v\":1}\n\n", msg)
	assert.Len(t, h.since(1), 1)
}

func TestHistoryBounded(t *testing.T) {
	h := NewHub(time.Second)
	for i := 0; i < 100; i++ {
		h.Publish(EventView, "{}")
	}
	assert.Len(t, h.since(0), 64)
}

func TestGroups(t *testing.T) {
	h := NewHub(time.Second)
	a := h.AddClient("a")
	b := h.AddClient("b")
	h.Join("a", "ops")

	h.SendToGroup("ops", EventNotification, "x")
	assert.Len(t, a.ch, 1)
	assert.Len(t, b.ch, 0)

	h.Leave("a", "ops")
	h.SendToGroup("ops", EventNotification, "y")
	assert.Len(t, a.ch, 1)

	h.RemoveClient("a")
	assert.Equal(t, 1, h.ClientCount())
}

func TestServeReplaysAfterLastEventID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(time.Second)
	h.Publish(EventView, `"one"`)
	h.Publish(EventView, `"two"`)

	r := gin.New()
	r.GET("/events", func(c *gin.Context) { h.Serve(c, "cli") })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	body := w.Body.String()
	require.Contains(t, body, "retry: 5000")
	assert.Contains(t, body, `data: "two"`)
	assert.False(t, strings.Contains(body, `data: "one"`))
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
}
