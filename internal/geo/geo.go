// Package geo 路线与地理编码查询。远端服务可能很慢或失败，调用方总能拿到可用的结果。
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"RescueDesk/internal/models"
	"RescueDesk/pkg/cache"
	"RescueDesk/pkg/errors"
	"RescueDesk/pkg/logger"
	"RescueDesk/pkg/metrics"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// UserAgent Nominatim 使用政策要求
const UserAgent = "RescueDesk/1.0"

// Config 远端服务地址与限流参数
type Config struct {
	OSRMURL      string
	NominatimURL string
	// Rate 每秒请求数，<=0 不限流
	Rate      float64
	CacheSize int
	CacheTTL  time.Duration
	Timeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		OSRMURL:      "https://router.project-osrm.org",
		NominatimURL: "https://nominatim.openstreetmap.org",
		Rate:         1,
		CacheSize:    1024,
		CacheTTL:     10 * time.Minute,
		Timeout:      10 * time.Second,
	}
}

// Route 路线结果；Estimated 为 true 表示远端失败后的直线估算
type Route struct {
	DistanceMeters  float64             `json:"distance_m"`
	DurationSeconds float64             `json:"duration_s"`
	Polyline        []models.Coordinate `json:"polyline"`
	Estimated       bool                `json:"estimated"`
}

// Place 地理编码结果
type Place struct {
	Position models.Coordinate `json:"position"`
	Label    string            `json:"label"`
	Kind     string            `json:"kind,omitempty"`
}

// Client 同时实现路线与地理编码
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	cache   cache.Cache
	metrics *metrics.Metrics
}

func NewClient(cfg Config, m *metrics.Metrics) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		cache:   cache.NewLRUCache(cfg.CacheSize, cfg.CacheTTL),
		metrics: m,
	}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route 查询驾车路线。远端失败时返回直线估算和错误，估算结果总是可用
func (c *Client) Route(ctx context.Context, from, to models.Coordinate) (Route, error) {
	if !from.Valid() || !to.Valid() {
		return Route{}, errors.WithCodef(errors.CodeInvalidArgument, "invalid route endpoints %s -> %s", from, to)
	}
	key := "route:" + from.String() + ";" + to.String()
	if v, ok := c.cache.Get(ctx, key); ok {
		c.metrics.GeoRequest("route", "cache")
		return v.(Route), nil
	}

	endpoint := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		strings.TrimRight(c.cfg.OSRMURL, "/"), from.Lng, from.Lat, to.Lng, to.Lat)
	var resp osrmResponse
	err := c.getJSON(ctx, endpoint, &resp)
	if err == nil && (resp.Code != "Ok" || len(resp.Routes) == 0) {
		err = errors.WithCodef(errors.CodeTransientFetch, "osrm: %s %s", resp.Code, resp.Message)
	}
	if err != nil {
		c.metrics.GeoRequest("route", "fallback")
		logger.Warn("route lookup failed, using straight line", zap.Error(err))
		return StraightLine(from, to), err
	}

	best := resp.Routes[0]
	r := Route{DistanceMeters: best.Distance, DurationSeconds: best.Duration}
	for _, pt := range best.Geometry.Coordinates {
		if len(pt) >= 2 {
			r.Polyline = append(r.Polyline, models.Coordinate{Lat: pt[1], Lng: pt[0]})
		}
	}
	_ = c.cache.Set(ctx, key, r, 0)
	c.metrics.GeoRequest("route", "ok")
	return r, nil
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	Category    string `json:"category"`
}

// Geocode 文本地址查询。失败时返回空结果和错误
func (c *Client) Geocode(ctx context.Context, text string) ([]Place, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	key := "geocode:" + models.FoldText(text)
	if v, ok := c.cache.Get(ctx, key); ok {
		c.metrics.GeoRequest("geocode", "cache")
		return v.([]Place), nil
	}

	q := url.Values{}
	q.Set("q", text)
	q.Set("format", "jsonv2")
	q.Set("limit", "5")
	endpoint := strings.TrimRight(c.cfg.NominatimURL, "/") + "/search?" + q.Encode()

	var raw []nominatimPlace
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		c.metrics.GeoRequest("geocode", "error")
		logger.Warn("geocode failed", zap.String("q", text), zap.Error(err))
		return []Place{}, err
	}
	places := make([]Place, 0, len(raw))
	for _, p := range raw {
		lat, lng, ok := parseLatLng(p.Lat, p.Lon)
		if !ok {
			continue
		}
		kind := p.Type
		if kind == "" {
			kind = p.Category
		}
		places = append(places, Place{Position: models.Coordinate{Lat: lat, Lng: lng}, Label: p.DisplayName, Kind: kind})
	}
	_ = c.cache.Set(ctx, key, places, 0)
	c.metrics.GeoRequest("geocode", "ok")
	return places, nil
}

func parseLatLng(lat, lng string) (float64, float64, bool) {
	r := models.Row{"lat": lat, "lng": lng}
	c := models.CoordinateFromRow(r)
	if c == nil {
		return 0, 0, false
	}
	return c.Lat, c.Lng, true
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, errors.CodeTransientFetch, "rate limit wait")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidArgument, "build request")
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CodeTransientFetch, "geo request")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errors.Wrap(err, errors.CodeTransientFetch, "read geo response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		// OSRM 对无路线返回 400 且带 JSON 说明
		if json.Unmarshal(body, out) == nil && resp.StatusCode == http.StatusBadRequest {
			return nil
		}
		return errors.WithCodef(errors.CodeTransientFetch, "geo service status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, errors.CodeTransientFetch, "decode geo response")
	}
	return nil
}
