package models

import (
	"fmt"
	"math"

	"github.com/spf13/cast"
)

// Coordinate WGS84 坐标
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinate) Valid() bool {
	return !math.IsNaN(c.Lat) && !math.IsNaN(c.Lng) &&
		c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

func (c Coordinate) String() string { return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng) }

// NewCoordinate 校验范围，非法返回 nil
func NewCoordinate(lat, lng float64) *Coordinate {
	c := Coordinate{Lat: lat, Lng: lng}
	if !c.Valid() {
		return nil
	}
	return &c
}

var (
	latKeys = []string{"latitude", "lat", "location_lat"}
	lngKeys = []string{"longitude", "lng", "lon", "long", "location_lng"}
)

// CoordinateFromRow 顶层经纬度优先，其次是嵌套 location 对象或 GeoJSON Point。
// 任一分量缺失即视为无坐标，不会回退到默认位置。
func CoordinateFromRow(r Row) *Coordinate {
	lat, okLat := r.Float(latKeys...)
	lng, okLng := r.Float(lngKeys...)
	if okLat && okLng {
		return NewCoordinate(lat, lng)
	}
	nested, ok := r.Lookup("location", "coordinates", "position", "geo")
	if !ok {
		return nil
	}
	m, ok := nested.(map[string]any)
	if !ok {
		if row, isRow := nested.(Row); isRow {
			m = row
		} else {
			return nil
		}
	}
	inner := Row(m)
	if pt, ok := inner["coordinates"].([]any); ok && len(pt) == 2 {
		// GeoJSON 顺序为 [lng, lat]
		lng, errLng := cast.ToFloat64E(pt[0])
		lat, errLat := cast.ToFloat64E(pt[1])
		if errLng != nil || errLat != nil {
			return nil
		}
		return NewCoordinate(lat, lng)
	}
	lat, okLat = inner.Float(latKeys...)
	lng, okLng = inner.Float(lngKeys...)
	if okLat && okLng {
		return NewCoordinate(lat, lng)
	}
	return nil
}

// MarkerType 地图标记类型
type MarkerType string

const (
	MarkerSOS       MarkerType = "sos"
	MarkerHelper    MarkerType = "helper"
	MarkerResponder MarkerType = "responder"
	MarkerHospital  MarkerType = "hospital"
	MarkerUser      MarkerType = "user"
	MarkerSearch    MarkerType = "search"
	MarkerFocus     MarkerType = "focus"
)

// Marker 可渲染的地图点；ID 唯一标识一个渲染槽位
type Marker struct {
	ID       string     `json:"id"`
	Type     MarkerType `json:"type"`
	Position Coordinate `json:"position"`
	SourceID string     `json:"source_id,omitempty"`
	Label    string     `json:"label,omitempty"`
	Status   string     `json:"status,omitempty"`
	Priority string     `json:"priority,omitempty"`
	// Tracked 持久跟踪标记为 true，临时聚焦为 false
	Tracked bool `json:"tracked,omitempty"`
}
