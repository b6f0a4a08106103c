package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("RD_INT", "42")
	t.Setenv("RD_BOOL", "true")
	t.Setenv("RD_DUR", "500ms")
	t.Setenv("RD_DUR_MS", "1500")
	t.Setenv("RD_LIST", "a, b,,c ")
	t.Setenv("RD_BAD_INT", "x")

	assert.Equal(t, int64(42), GetIntEnv("RD_INT"))
	assert.Equal(t, int64(7), GetIntEnv("RD_MISSING", 7))
	assert.Equal(t, int64(9), GetIntEnv("RD_BAD_INT", 9))
	assert.True(t, GetBoolEnv("RD_BOOL"))
	assert.True(t, GetBoolEnv("RD_MISSING", true))
	assert.Equal(t, 500*time.Millisecond, GetDurationEnv("RD_DUR"))
	assert.Equal(t, 1500*time.Millisecond, GetDurationEnv("RD_DUR_MS"))
	assert.Equal(t, 15*time.Second, GetDurationEnv("RD_MISSING", 15*time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, GetSliceEnv("RD_LIST"))
	assert.Equal(t, "fallback", GetEnv("RD_MISSING", "fallback"))
}

func TestSignals(t *testing.T) {
	s := NewSignals()
	var got []any
	s.Connect("alert.new", func(sender any, params ...any) { panic("boom") })
	s.Connect("alert.new", func(sender any, params ...any) { got = append(got, params...) })

	s.Emit("alert.new", nil, "a1")
	assert.Equal(t, []any{"a1"}, got)

	s.Clear("alert.new")
	s.Emit("alert.new", nil, "a2")
	assert.Len(t, got, 1)
}

func TestOpenDatabaseDefaultsToMemorySqlite(t *testing.T) {
	db, err := OpenDatabase("", "", false)
	require.NoError(t, err)
	var n int
	require.NoError(t, db.Raw("SELECT 1").Scan(&n).Error)
	assert.Equal(t, 1, n)
}
