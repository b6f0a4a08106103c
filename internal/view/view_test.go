package view

import (
	"encoding/json"
	"testing"
	"time"

	"RescueDesk/internal/models"
	"RescueDesk/internal/reconciler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func alert(id string, st models.Status, loc *models.Coordinate, ago time.Duration) models.Alert {
	return models.Alert{
		ID:          id,
		Category:    "medical",
		Priority:    3,
		Status:      st,
		Location:    loc,
		TriggeredAt: now.Add(-ago),
	}
}

func TestNoCoordinateExclusion(t *testing.T) {
	in := Input{Alerts: []models.Alert{
		alert("a1", models.StatusActive, models.NewCoordinate(-6.2, 106.8), time.Minute),
		alert("a2", models.StatusActive, nil, time.Minute),
		alert("a3", models.StatusAssigned, models.NewCoordinate(-6.3, 106.9), time.Minute),
	}}

	v := Build(in, Options{Now: now})
	require.Len(t, v.Markers, 2)
	for _, m := range v.Markers {
		assert.NotEqual(t, "a2", m.SourceID)
	}
	assert.Len(t, v.Filtered, 3)
}

func TestNoCoordinateFromRow(t *testing.T) {
	a, _ := models.AlertFromRow(models.Row{"id": "a2", "status": "active", "latitude": nil, "longitude": 106.8})
	_, ok := AlertMarker(a)
	assert.False(t, ok)

	a, _ = models.AlertFromRow(models.Row{"id": "a4", "status": "active", "longitude": 106.8})
	_, ok = AlertMarker(a)
	assert.False(t, ok)
}

func TestOneMarkerPerEntity(t *testing.T) {
	loc := models.NewCoordinate(1, 1)
	in := Input{
		Alerts: []models.Alert{
			alert("a1", models.StatusActive, loc, 0),
			alert("a2", models.StatusResolved, loc, 0),
		},
		Helpers: []models.Personnel{
			{ID: "h1", Name: "Budi", Location: loc},
			{ID: "h1", Name: "Budi", Location: loc},
			{ID: "h2", Name: "Sari"},
		},
	}
	v := Build(in, Options{Now: now, ShowResolved: true, ShowHelpers: true})
	ids := make(map[string]int)
	for _, m := range v.Markers {
		ids[m.ID]++
	}
	assert.Equal(t, map[string]int{"sos:a1": 1, "sos:a2": 1, "helper:h1": 1}, ids)

	v = Build(in, Options{Now: now})
	require.Len(t, v.Markers, 1)
	assert.Equal(t, "sos:a1", v.Markers[0].ID)
}

func TestStatsConsistency(t *testing.T) {
	loc := models.NewCoordinate(1, 1)
	in := Input{Alerts: []models.Alert{
		alert("a1", models.StatusActive, loc, time.Minute),
		alert("a2", models.StatusResolved, nil, 2*time.Hour),
		alert("a3", models.StatusCancelled, loc, 48*time.Hour),
		alert("a4", models.StatusTimeout, loc, 30*time.Hour),
		alert("a5", models.StatusAssigned, loc, 10*time.Minute),
	}}

	s := ComputeStats(in, now, DefaultRecentWindow)
	sum := 0
	for _, n := range s.ByStatus {
		sum += n
	}
	assert.Equal(t, s.Total, sum)
	assert.Len(t, s.ByStatus, len(models.AllStatuses))
	assert.Zero(t, s.AvgResponseMinutes)
	assert.Equal(t, 3, s.Recent)
	assert.Equal(t, 2, s.LastHour)
	assert.Equal(t, 4, s.WithLocation)
	assert.Equal(t, 5, s.ByPriority["medium"])

	empty := ComputeStats(Input{}, now, DefaultRecentWindow)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.AvgResponseMinutes)
	assert.Equal(t, 0, empty.ByStatus[models.StatusActive])
}

func TestAverageResponseTime(t *testing.T) {
	a1 := alert("a1", models.StatusAssigned, nil, time.Hour)
	t1 := a1.TriggeredAt.Add(10 * time.Minute)
	a1.AssignedAt = &t1
	a2 := alert("a2", models.StatusAssigned, nil, time.Hour)
	t2 := a2.TriggeredAt.Add(20 * time.Minute)
	a2.AssignedAt = &t2
	a3 := alert("a3", models.StatusActive, nil, time.Hour)

	s := ComputeStats(Input{Alerts: []models.Alert{a1, a2, a3}}, now, DefaultRecentWindow)
	assert.InDelta(t, 15.0, s.AvgResponseMinutes, 1e-9)
	assert.Equal(t, 2, s.Responded)
}

func TestBuildDoesNotMutateInput(t *testing.T) {
	loc := models.NewCoordinate(1, 1)
	alerts := []models.Alert{alert("a1", models.StatusActive, loc, 0)}
	alerts[0].Media = []models.Media{{ID: "m1", URL: "https://x/m1.jpg"}}
	in := Input{Alerts: alerts}

	v := Build(in, Options{Now: now})
	v.Filtered[0].Media[0].URL = "changed"
	v.Filtered[0].Location.Lat = 50

	assert.Equal(t, "https://x/m1.jpg", alerts[0].Media[0].URL)
	assert.Equal(t, 1.0, alerts[0].Location.Lat)
}

func TestFilters(t *testing.T) {
	a1 := alert("a1", models.StatusActive, nil, 0)
	a1.Description = "Banjir di Kampung Melayu"
	a2 := alert("a2", models.StatusActive, nil, 0)
	a2.Category = "fire"
	a3 := alert("a3", models.StatusResolved, nil, 0)
	in := Input{Alerts: []models.Alert{a1, a2, a3}}

	v := Build(in, Options{Now: now, Categories: []string{"FIRE"}})
	require.Len(t, v.Filtered, 1)
	assert.Equal(t, "a2", v.Filtered[0].ID)

	v = Build(in, Options{Now: now, Text: "kampung"})
	require.Len(t, v.Filtered, 1)
	assert.Equal(t, "a1", v.Filtered[0].ID)

	v = Build(in, Options{Now: now, Statuses: []models.Status{models.StatusResolved}})
	require.Len(t, v.Filtered, 1)
	assert.Equal(t, "a3", v.Filtered[0].ID)

	assert.Len(t, v.Active, 2)
	assert.Len(t, v.Resolved, 1)
}

func TestClusters(t *testing.T) {
	markers := []models.Marker{
		{ID: "m1", Position: models.Coordinate{Lat: -6.2000, Lng: 106.8000}},
		{ID: "m2", Position: models.Coordinate{Lat: -6.2001, Lng: 106.8001}},
		{ID: "m3", Position: models.Coordinate{Lat: 40.7, Lng: -74.0}},
	}
	cs := Clusters(markers, 10)
	require.Len(t, cs, 2)
	assert.Equal(t, 2, cs[0].Count)
	assert.ElementsMatch(t, []string{"m1", "m2"}, cs[0].MarkerIDs)
	assert.InDelta(t, -6.20005, cs[0].Position.Lat, 1e-4)
	assert.Equal(t, 1, cs[1].Count)
	assert.Equal(t, markers[2].Position, cs[1].Position)
}

func TestLevelForViewport(t *testing.T) {
	city := LevelForViewport(Viewport{LatMin: -6.4, LngMin: 106.6, LatMax: -6.0, LngMax: 107.0})
	country := LevelForViewport(Viewport{LatMin: -11, LngMin: 95, LatMax: 6, LngMax: 141})
	assert.Greater(t, city, country)
	assert.GreaterOrEqual(t, country, minLevel)
	assert.LessOrEqual(t, city, maxLevel)
}

func TestFeatureCollection(t *testing.T) {
	fc := FeatureCollection([]models.Marker{
		{ID: "sos:a1", Type: models.MarkerSOS, Position: models.Coordinate{Lat: -6.2, Lng: 106.8}, SourceID: "a1", Status: "active"},
	})
	raw, err := json.Marshal(fc)
	require.NoError(t, err)

	var out struct {
		Type     string `json:"type"`
		Features []struct {
			ID       string `json:"id"`
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "FeatureCollection", out.Type)
	require.Len(t, out.Features, 1)
	assert.Equal(t, []float64{106.8, -6.2}, out.Features[0].Geometry.Coordinates)
	assert.Equal(t, "active", out.Features[0].Properties["status"])
}

func TestLiveRebuildsOnChange(t *testing.T) {
	alerts := reconciler.NewAlertTable("sos_alerts")
	helpers := reconciler.NewTable("helpers", reconciler.PersonnelDecoder(models.RoleHelper))
	l := NewLive(alerts, helpers, nil, DefaultOptions(), nil)
	l.Clock = func() time.Time { return now }

	var versions []uint64
	l.OnView(func(v View) { versions = append(versions, v.Version) })

	alerts.Hydrate([]models.Row{{"id": "a1", "status": "active", "latitude": 1.0, "longitude": 2.0}})
	require.NoError(t, alerts.ApplyInsert(models.Row{"id": "a2", "status": "active"}))
	require.NoError(t, helpers.ApplyInsert(models.Row{"id": "h1", "name": "Budi", "lat": 1.5, "lng": 2.5}))

	v := l.Current()
	assert.Equal(t, 2, v.Stats.Total)
	assert.Len(t, v.Markers, 2)
	assert.Len(t, versions, 3)

	l.SetExtraMarkers(func() []models.Marker {
		return []models.Marker{{ID: "focus:x", Type: models.MarkerFocus, Position: models.Coordinate{Lat: 3, Lng: 4}}}
	})
	opts := DefaultOptions()
	opts.ShowHelpers = false
	v = l.SetOptions(opts)
	require.Len(t, v.Markers, 2)
	assert.Equal(t, "focus:x", v.Markers[1].ID)
	assert.Greater(t, v.Version, versions[2])
}
