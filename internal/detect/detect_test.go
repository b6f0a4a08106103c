package detect

import (
	"context"
	"sync"
	"testing"
	"time"

	"RescueDesk/internal/models"
	"RescueDesk/internal/reconciler"
	"RescueDesk/pkg/cache"
	"RescueDesk/pkg/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	alerts  []string
	tracked []string
}

func (r *recorder) NotifyAlert(_ context.Context, a models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a.ID)
	return nil
}

func (r *recorder) Track(id string) (models.Marker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked = append(r.tracked, id)
	return models.Marker{ID: "track:" + id}, nil
}

func (r *recorder) notified() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.alerts...)
}

func active(id string) models.Row {
	return models.Row{"id": id, "status": "active", "latitude": -6.2, "longitude": 106.8, "category": "medical"}
}

func newObserver(t *testing.T, mode Mode) (*Observer, *reconciler.Table[models.Alert], *recorder) {
	t.Helper()
	alerts := reconciler.NewAlertTable("sos_alerts")
	rec := &recorder{}
	o := New(Config{Mode: mode}, alerts, cache.NewGoCache(0), rec, rec, nil)
	return o, alerts, rec
}

func TestExactlyOnceNotification(t *testing.T) {
	o, alerts, rec := newObserver(t, ModePoll)
	ctx := context.Background()
	alerts.Hydrate([]models.Row{active("a3")})

	assert.Equal(t, []string{"a3"}, o.Sweep(ctx))
	require.NoError(t, alerts.ApplyUpdate(models.Row{"id": "a3", "description": "still waiting"}))
	assert.Empty(t, o.Sweep(ctx))

	assert.Equal(t, []string{"a3"}, rec.notified())
	assert.Equal(t, []string{"a3"}, rec.tracked)
}

func TestSkipsWithoutCoordinatesOrInactive(t *testing.T) {
	o, alerts, rec := newObserver(t, ModePoll)
	alerts.Hydrate([]models.Row{
		{"id": "a1", "status": "active"},
		{"id": "a2", "status": "assigned", "latitude": 1.0, "longitude": 1.0},
		{"id": "a3", "status": "resolved", "latitude": 1.0, "longitude": 1.0},
		{"id": "a4", "status": "pending", "latitude": 1.0, "longitude": 1.0},
	})
	assert.Equal(t, []string{"a4"}, o.Sweep(context.Background()))
	assert.Equal(t, []string{"a4"}, rec.notified())
}

func TestPauseDoesNotRecord(t *testing.T) {
	o, alerts, rec := newObserver(t, ModeBoth)
	ctx := context.Background()
	o.Pause()
	alerts.Hydrate([]models.Row{active("a1")})
	require.NoError(t, alerts.ApplyInsert(active("a2")))

	assert.Empty(t, o.Sweep(ctx))
	assert.False(t, o.Notified(ctx, "a1"))
	assert.Zero(t, o.NotifiedCount(ctx))

	o.Resume()
	assert.ElementsMatch(t, []string{"a1", "a2"}, o.Sweep(ctx))
	assert.Len(t, rec.notified(), 2)
}

func TestEventModeNotifiesOnInsert(t *testing.T) {
	o, alerts, rec := newObserver(t, ModeEvent)
	alerts.Hydrate(nil)

	require.NoError(t, alerts.ApplyInsert(active("a1")))
	assert.Equal(t, []string{"a1"}, rec.notified())

	require.NoError(t, alerts.ApplyUpdate(models.Row{"id": "a1", "priority": "high"}))
	assert.Empty(t, o.Sweep(context.Background()))
	assert.Equal(t, []string{"a1"}, rec.notified())
}

func TestPollModeIgnoresEvents(t *testing.T) {
	_, alerts, rec := newObserver(t, ModePoll)
	alerts.Hydrate(nil)
	require.NoError(t, alerts.ApplyInsert(active("a1")))
	assert.Empty(t, rec.notified())
}

func TestResetClearsNotifiedSet(t *testing.T) {
	o, alerts, rec := newObserver(t, ModePoll)
	ctx := context.Background()
	alerts.Hydrate([]models.Row{active("a1")})
	o.Sweep(ctx)
	require.True(t, o.Notified(ctx, "a1"))

	alerts.Reset()
	assert.False(t, o.Notified(ctx, "a1"))

	alerts.Hydrate([]models.Row{active("a1")})
	assert.Equal(t, []string{"a1"}, o.Sweep(ctx))
	assert.Equal(t, []string{"a1", "a1"}, rec.notified())
}

func TestStartPolls(t *testing.T) {
	alerts := reconciler.NewAlertTable("sos_alerts")
	rec := &recorder{}
	sched := scheduler.New()
	defer sched.Stop()

	o := New(Config{Mode: ModePoll, Interval: 5 * time.Millisecond}, alerts, cache.NewGoCache(0), rec, nil, sched)
	o.Start()
	o.Start()
	defer o.Stop()

	alerts.Hydrate([]models.Row{active("a1")})
	assert.Eventually(t, func() bool { return len(rec.notified()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, rec.notified(), 1)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("POLL")
	require.NoError(t, err)
	assert.Equal(t, ModePoll, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeBoth, m)

	_, err = ParseMode("sometimes")
	assert.Error(t, err)
}
