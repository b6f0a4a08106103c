package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"RescueDesk/internal/changefeed"
	"RescueDesk/internal/dashboard"
	"RescueDesk/internal/detect"
	"RescueDesk/internal/models"
	"RescueDesk/internal/rowstore"
	"RescueDesk/pkg/cache"
	"RescueDesk/pkg/metrics"
	"RescueDesk/pkg/search"
	"RescueDesk/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() { gin.SetMode(gin.TestMode) }

func ptr(f float64) *float64 { return &f }

type env struct {
	db  *gorm.DB
	svc *dashboard.Service
	r   *gin.Engine
}

func newEnv(t *testing.T) env {
	t.Helper()
	db, err := util.OpenDatabase("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared", false)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.Migrate()...))
	require.NoError(t, db.Table(dashboard.HelperTable).AutoMigrate(&models.PersonnelRecord{}))
	require.NoError(t, db.Table(dashboard.ResponderTable).AutoMigrate(&models.PersonnelRecord{}))

	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create([]models.AlertRecord{
		{ID: "a1", Category: "medical", Status: "active", Latitude: ptr(-6.2), Longitude: ptr(106.8), Address: "Jalan Sudirman", TriggeredAt: base},
		{ID: "a2", Category: "fire", Status: "resolved", Latitude: ptr(-6.3), Longitude: ptr(106.9), TriggeredAt: base.Add(time.Minute)},
	}).Error)
	require.NoError(t, db.Table(dashboard.HelperTable).Create(&models.PersonnelRecord{
		ID: "h1", Name: "Budi", Status: "available", Latitude: ptr(-6.21), Longitude: ptr(106.81),
	}).Error)

	bus := changefeed.NewMemoryBus()
	engine, err := search.New(search.Config{DefaultSearchFields: []string{"title", "description", "address", "user", "notes"}}, search.BuildIndexMapping(""))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	cfg := dashboard.DefaultConfig()
	cfg.Detect = detect.Config{Mode: detect.ModeEvent}
	svc, err := dashboard.New(cfg, dashboard.Deps{
		Store:   rowstore.WithPublisher(rowstore.NewGormStore(db), bus),
		Source:  bus,
		Search:  engine,
		Signals: util.NewSignals(),
	})
	require.NoError(t, err)
	t.Cleanup(svc.Dispose)
	require.NoError(t, svc.Connect(context.Background()))

	r := gin.New()
	NewHandlers(db, svc, Options{
		Idempotency: cache.NewGoCache(time.Minute),
		Metrics:     metrics.NewMetrics(),
	}).Register(r)
	return env{db: db, svc: svc, r: r}
}

func (e env) do(method, path, body string, hdr ...string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestListAlertsHidesResolvedByDefault(t *testing.T) {
	e := newEnv(t)

	w, body := e.do(http.MethodGet, "/api/alerts", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Len(t, data["alerts"], 1)
	assert.Nil(t, data["failure"])

	_, body = e.do(http.MethodGet, "/api/alerts?show_resolved=true", "")
	assert.Len(t, body["data"].(map[string]any)["alerts"], 2)
}

func TestGetAlertNotFound(t *testing.T) {
	e := newEnv(t)

	w, _ := e.do(http.MethodGet, "/api/alerts/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := e.do(http.MethodGet, "/api/alerts/a1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a1", body["data"].(map[string]any)["id"])
}

func TestUpdateStatusWritesOperatorAction(t *testing.T) {
	e := newEnv(t)

	w, _ := e.do(http.MethodPost, "/api/alerts/a1/status", `{"status":"resolved","notes":"handled"}`, "X-Operator-ID", "op-7")
	require.Equal(t, http.StatusOK, w.Code)

	a, ok := e.svc.Alerts().Get("a1")
	require.True(t, ok)
	assert.Equal(t, models.StatusResolved, a.Status)

	var n int64
	require.NoError(t, e.db.Model(&models.OperatorAction{}).Where("operator = ? AND alert_id = ?", "op-7", "a1").Count(&n).Error)
	assert.EqualValues(t, 1, n)

	// 已结束的警报不能回到进行中
	w, _ = e.do(http.MethodPost, "/api/alerts/a1/status", `{"status":"active"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = e.do(http.MethodPost, "/api/alerts/a1/status", `{"status":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDuplicateIdempotencyKeyRejected(t *testing.T) {
	e := newEnv(t)

	w, _ := e.do(http.MethodPost, "/api/track/a1", "", "Idempotency-Key", "k1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a1", e.svc.Focus().TrackedID())

	w, _ = e.do(http.MethodPost, "/api/track/a1", "", "Idempotency-Key", "k1")
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = e.do(http.MethodDelete, "/api/track/a1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(http.MethodDelete, "/api/track/a1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkersAndClusters(t *testing.T) {
	e := newEnv(t)

	w, body := e.do(http.MethodGet, "/api/markers", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "FeatureCollection", body["type"])

	w, body = e.do(http.MethodGet, "/api/clusters?bbox=-7,106,-6,107", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotZero(t, body["data"].(map[string]any)["level"])

	w, _ = e.do(http.MethodPost, "/api/focus", `{"lat":91,"lng":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNearestAndRouteFallback(t *testing.T) {
	e := newEnv(t)

	w, body := e.do(http.MethodGet, "/api/alerts/a1/nearest", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)

	w, _ = e.do(http.MethodGet, "/api/route?from=bad", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 未配置地理服务时返回直线估算
	w, body = e.do(http.MethodGet, "/api/route?from=-6.2,106.8&to=-6.3,106.9", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["data"].(map[string]any)["estimated"])
}

func TestDetectionPauseResume(t *testing.T) {
	e := newEnv(t)

	w, body := e.do(http.MethodPost, "/api/detection/pause", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["data"].(map[string]any)["paused"])

	w, body = e.do(http.MethodPost, "/api/detection/resume", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["data"].(map[string]any)["paused"])
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)

	w, body := e.do(http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 2, body["alerts"])

	w, _ = e.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
