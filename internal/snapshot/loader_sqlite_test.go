package snapshot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"RescueDesk/internal/rowstore"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestFallbackFromCamelCaseOrderColumn(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE sos_alerts (id TEXT PRIMARY KEY, status TEXT, category TEXT, created_at TEXT)`).Error)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Exec(`INSERT INTO sos_alerts (id, status, category, created_at) VALUES (?, 'active', 'medical', ?)`,
			fmt.Sprintf("a%d", i), base.Add(time.Duration(i)*time.Minute).Format(time.RFC3339)).Error)
	}

	cfg := DefaultConfig()
	cfg.OrderColumn = "triggeredAt"
	res := NewLoader(rowstore.NewGormStore(db), cfg, nil).Load(context.Background(), Filter{})
	require.Nil(t, res.Failure)
	assert.Equal(t, "created_at", res.OrderColumn)
	require.Len(t, res.Alerts, 3)
	assert.Equal(t, "a2", res.Alerts[0].ID)
	assertDescending(t, res.Alerts)
}
