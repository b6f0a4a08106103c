package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"RescueDesk/internal/changefeed"
	"RescueDesk/internal/models"
	"RescueDesk/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(id, status, category string, ts int64) models.Row {
	return models.Row{
		"id":           id,
		"status":       status,
		"category":     category,
		"triggered_at": time.Unix(ts, 0).UTC().Format(time.RFC3339),
		"latitude":     -6.2,
		"longitude":    106.8,
	}
}

func ids(t *Table[models.Alert]) []string { return t.IDs() }

func TestStateMachine(t *testing.T) {
	tbl := NewAlertTable("sos_alerts")
	assert.Equal(t, Uninitialized, tbl.State())

	tbl.BeginHydrate()
	assert.Equal(t, Hydrating, tbl.State())

	tbl.Hydrate([]models.Row{row("a1", "active", "medical", 100)})
	assert.Equal(t, Live, tbl.State())

	tbl.BeginHydrate()
	assert.Equal(t, Live, tbl.State())

	tbl.Reset()
	assert.Equal(t, Uninitialized, tbl.State())
	assert.Zero(t, tbl.Len())
}

func TestHydrateIdempotent(t *testing.T) {
	tbl := NewAlertTable("sos_alerts")
	snap := []models.Row{row("a1", "active", "medical", 200), row("a2", "active", "fire", 100)}

	tbl.BeginHydrate()
	assert.Equal(t, 2, tbl.Hydrate(snap))
	assert.Equal(t, 0, tbl.Hydrate(snap))

	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"a1", "a2"}, ids(tbl))
}

func TestInsertPrependsAndReplacesInPlace(t *testing.T) {
	tbl := NewAlertTable("sos_alerts")
	tbl.Hydrate([]models.Row{row("a1", "active", "medical", 200), row("a2", "active", "fire", 100)})

	require.NoError(t, tbl.ApplyInsert(row("a3", "active", "crime", 300)))
	assert.Equal(t, []string{"a3", "a1", "a2"}, ids(tbl))

	// 与快照竞争的重复插入只替换，不重复
	require.NoError(t, tbl.ApplyInsert(row("a2", "assigned", "fire", 100)))
	assert.Equal(t, []string{"a3", "a1", "a2"}, ids(tbl))
	a2, ok := tbl.Get("a2")
	require.True(t, ok)
	assert.Equal(t, models.StatusAssigned, a2.Status)
}

func TestUpdatePreservesUnseenFields(t *testing.T) {
	tbl := NewAlertTable("sos_alerts")
	tbl.Hydrate([]models.Row{{"id": "a1", "status": "active", "category": "medical"}})

	require.NoError(t, tbl.ApplyUpdate(models.Row{"id": "a1", "status": "resolved"}))

	a1, ok := tbl.Get("a1")
	require.True(t, ok)
	assert.Equal(t, models.StatusResolved, a1.Status)
	assert.Equal(t, "medical", a1.Category)

	raw, _ := tbl.Row("a1")
	assert.Equal(t, models.Row{"id": "a1", "status": "resolved", "category": "medical"}, raw)
}

func TestUpdateDoesNotReorder(t *testing.T) {
	tbl := NewAlertTable("sos_alerts")
	tbl.Hydrate([]models.Row{row("a1", "active", "medical", 300), row("a2", "active", "fire", 200), row("a3", "active", "crime", 100)})

	require.NoError(t, tbl.ApplyUpdate(models.Row{"id": "a3", "status": "assigned"}))
	assert.Equal(t, []string{"a1", "a2", "a3"}, ids(tbl))
}

func TestUpdateUnknownIDInserts(t *testing.T) {
	tbl := NewAlertTable("sos_alerts")
	tbl.Hydrate([]models.Row{row("a1", "active", "medical", 100)})

	require.NoError(t, tbl.ApplyUpdate(row("a9", "active", "fire", 50)))
	assert.Equal(t, []string{"a9", "a1"}, ids(tbl))
}

func TestDeleteAbsentIsNoop(t *testing.T) {
	tbl := NewAlertTable("sos_alerts")
	tbl.Hydrate([]models.Row{row("a1", "active", "medical", 100)})
	v := tbl.Version()

	tbl.ApplyDelete("missing")
	assert.Equal(t, 1, tbl.Len())
	assert.Equal(t, v, tbl.Version())

	tbl.ApplyDelete("a1")
	assert.Zero(t, tbl.Len())
	_, ok := tbl.Get("a1")
	assert.False(t, ok)
}

func TestInsertWithoutIDRejected(t *testing.T) {
	tbl := NewAlertTable("sos_alerts")
	err := tbl.ApplyInsert(models.Row{"status": "active"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeMalformedRow))
	assert.Zero(t, tbl.Len())
}

func TestLiveEventsDuringHydration(t *testing.T) {
	tbl := NewAlertTable("sos_alerts")
	tbl.BeginHydrate()

	// 快照进行中到达的事件先生效
	require.NoError(t, tbl.ApplyInsert(row("a2", "assigned", "fire", 200)))
	require.NoError(t, tbl.ApplyInsert(row("a5", "active", "crime", 500)))

	stale := []models.Row{row("a1", "active", "medical", 300), row("a2", "active", "fire", 200)}
	assert.Equal(t, 1, tbl.Hydrate(stale))

	assert.Equal(t, []string{"a5", "a2", "a1"}, ids(tbl))
	a2, _ := tbl.Get("a2")
	assert.Equal(t, models.StatusAssigned, a2.Status)
	assert.Equal(t, Live, tbl.State())
}

func TestDeleteDuringHydrationNotResurrected(t *testing.T) {
	tbl := NewAlertTable("sos_alerts")
	tbl.BeginHydrate()

	tbl.ApplyDelete("a1")
	added := tbl.Hydrate([]models.Row{row("a1", "active", "medical", 100), row("a2", "active", "fire", 200)})
	assert.Equal(t, 1, added)
	_, ok := tbl.Get("a1")
	assert.False(t, ok)
	assert.Equal(t, []string{"a2"}, ids(tbl))

	// 进入 live 后删除记录清空，之后的插入正常生效
	require.NoError(t, tbl.ApplyInsert(row("a1", "active", "medical", 300)))
	_, ok = tbl.Get("a1")
	assert.True(t, ok)
}

func TestReinsertAfterDeleteDuringHydration(t *testing.T) {
	tbl := NewAlertTable("sos_alerts")
	tbl.BeginHydrate()

	tbl.ApplyDelete("a1")
	require.NoError(t, tbl.ApplyInsert(row("a1", "assigned", "medical", 300)))
	assert.Zero(t, tbl.Hydrate([]models.Row{row("a1", "active", "medical", 100)}))

	a1, ok := tbl.Get("a1")
	require.True(t, ok)
	assert.Equal(t, models.StatusAssigned, a1.Status)
}

func TestTerminalStatusNotRevived(t *testing.T) {
	tbl := NewAlertTable("sos_alerts")
	tbl.Hydrate([]models.Row{row("a1", "active", "medical", 100)})

	require.NoError(t, tbl.ApplyUpdate(models.Row{"id": "a1", "status": "resolved", "resolved_at": "2024-01-01T00:10:00Z"}))
	require.NoError(t, tbl.ApplyUpdate(models.Row{"id": "a1", "status": "active"}))

	a1, _ := tbl.Get("a1")
	assert.Equal(t, models.StatusResolved, a1.Status)
	require.NotNil(t, a1.ResolvedAt)

	// 终态之间允许转换
	require.NoError(t, tbl.ApplyUpdate(models.Row{"id": "a1", "status": "cancelled"}))
	a1, _ = tbl.Get("a1")
	assert.Equal(t, models.StatusCancelled, a1.Status)
}

func TestSnapshotIsCopy(t *testing.T) {
	tbl := NewAlertTable("sos_alerts")
	tbl.Hydrate([]models.Row{row("a1", "active", "medical", 100)})

	snap := tbl.Snapshot()
	snap[0].Category = "mutated"
	raw, _ := tbl.Row("a1")
	raw["category"] = "mutated"

	a1, _ := tbl.Get("a1")
	assert.Equal(t, "medical", a1.Category)
	again, _ := tbl.Row("a1")
	assert.Equal(t, "medical", again["category"])
}

func TestOnChangeOrder(t *testing.T) {
	tbl := NewAlertTable("sos_alerts")
	var got []ChangeKind
	tbl.OnChange(func(c Change[models.Alert]) { got = append(got, c.Kind) })

	tbl.Hydrate([]models.Row{row("a1", "active", "medical", 100)})
	_ = tbl.ApplyInsert(row("a2", "active", "fire", 200))
	_ = tbl.ApplyUpdate(models.Row{"id": "a2", "status": "assigned"})
	tbl.ApplyDelete("a1")
	tbl.ApplyDelete("a1")
	tbl.Reset()

	assert.Equal(t, []ChangeKind{ChangeHydrate, ChangeInsert, ChangeUpdate, ChangeDelete, ChangeReset}, got)
}

func TestApplyEvent(t *testing.T) {
	tbl := NewAlertTable("sos_alerts")
	tbl.Hydrate(nil)

	require.NoError(t, tbl.Apply(changefeed.Event{Table: "sos_alerts", Kind: changefeed.KindInsert, New: row("a1", "active", "medical", 100)}))
	require.NoError(t, tbl.Apply(changefeed.Event{Table: "sos_alerts", Kind: changefeed.KindUpdate,
		New: models.Row{"status": "assigned"}, Old: models.Row{"id": "a1"}}))
	a1, _ := tbl.Get("a1")
	assert.Equal(t, models.StatusAssigned, a1.Status)

	require.NoError(t, tbl.Apply(changefeed.Event{Table: "sos_alerts", Kind: changefeed.KindDelete, Old: models.Row{"id": "a1"}}))
	assert.Zero(t, tbl.Len())
}

func TestConcurrentUpdatesSameID(t *testing.T) {
	tbl := NewTable("helpers", PersonnelDecoder(models.RoleHelper))
	tbl.Hydrate([]models.Row{{"id": "h1", "name": "Budi"}})

	var wg sync.WaitGroup
	keys := []string{"phone", "organization", "status", "role"}
	for _, k := range keys {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			_ = tbl.ApplyUpdate(models.Row{"id": "h1", k: "x-" + k})
		}(k)
	}
	wg.Wait()

	raw, ok := tbl.Row("h1")
	require.True(t, ok)
	for _, k := range keys {
		assert.Equal(t, "x-"+k, raw[k], k)
	}
	assert.Equal(t, "Budi", raw["name"])
}

func TestBinderAppliesAndCloses(t *testing.T) {
	bus := changefeed.NewMemoryBus()
	tbl := NewAlertTable("sos_alerts")
	tbl.Hydrate(nil)

	b := NewBinder(bus)
	require.NoError(t, b.Bind(context.Background(), nil, tbl))

	require.NoError(t, bus.Publish(context.Background(), changefeed.Event{
		Table: "sos_alerts", Kind: changefeed.KindInsert, New: row("a1", "active", "medical", 100),
	}))
	assert.Eventually(t, func() bool { return tbl.Len() == 1 }, time.Second, 5*time.Millisecond)

	b.Close()
	b.Close()

	require.NoError(t, bus.Publish(context.Background(), changefeed.Event{
		Table: "sos_alerts", Kind: changefeed.KindInsert, New: row("a2", "active", "fire", 200),
	}))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, tbl.Len())
}

func TestBinderResubscribes(t *testing.T) {
	bus := changefeed.NewMemoryBus()
	tbl := NewAlertTable("sos_alerts")
	tbl.Hydrate(nil)

	resubscribed := make(chan string, 1)
	b := NewBinder(bus)
	b.MinBackoff = time.Millisecond
	b.OnResubscribe = func(table string) { resubscribed <- table }
	require.NoError(t, b.Bind(context.Background(), nil, tbl))
	defer b.Close()

	// 模拟服务端断开
	b.mu.Lock()
	sub := b.subs["sos_alerts"]
	b.mu.Unlock()
	sub.Unsubscribe()

	select {
	case table := <-resubscribed:
		assert.Equal(t, "sos_alerts", table)
	case <-time.After(time.Second):
		t.Fatal("binder did not resubscribe")
	}

	require.NoError(t, bus.Publish(context.Background(), changefeed.Event{
		Table: "sos_alerts", Kind: changefeed.KindInsert, New: row("a1", "active", "medical", 100),
	}))
	assert.Eventually(t, func() bool { return tbl.Len() == 1 }, time.Second, 5*time.Millisecond)
}
