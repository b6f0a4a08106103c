package view

import (
	"sort"

	"RescueDesk/internal/models"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

const (
	expectedCells = 16
	minLevel      = 2
	maxLevel      = 18
)

// Cluster 同一 s2 单元内的标记集合
type Cluster struct {
	Cell      string            `json:"cell"`
	Level     int               `json:"level"`
	Position  models.Coordinate `json:"position"`
	Count     int               `json:"count"`
	MarkerIDs []string          `json:"marker_ids"`
}

// Viewport 地图可视范围
type Viewport struct {
	LatMin, LngMin, LatMax, LngMax float64
}

// LevelForViewport 选择使视口大约被 expectedCells 个单元覆盖的层级
func LevelForViewport(vp Viewport) int {
	minLL := s2.LatLngFromDegrees(vp.LatMin, vp.LngMin)
	maxLL := s2.LatLngFromDegrees(vp.LatMax, vp.LngMax)
	rect := s2.Rect{
		Lat: r1.Interval{Lo: minLL.Lat.Radians(), Hi: maxLL.Lat.Radians()},
		Lng: s1.Interval{Lo: minLL.Lng.Radians(), Hi: maxLL.Lng.Radians()},
	}
	area := rect.Area()
	center := s2.CellIDFromLatLng(s2.LatLngFromDegrees((vp.LatMin+vp.LatMax)/2, (vp.LngMin+vp.LngMax)/2))
	for lv := maxLevel; lv >= minLevel; lv-- {
		if area/s2.CellFromCellID(center.Parent(lv)).ApproxArea() < expectedCells {
			return lv
		}
	}
	return minLevel
}

// Clusters 按 s2 单元分组；单个标记保留原坐标，多个标记取球面质心
func Clusters(markers []models.Marker, level int) []Cluster {
	if level < minLevel {
		level = minLevel
	}
	if level > maxLevel {
		level = maxLevel
	}
	type acc struct {
		sum r3.Vector
		ids []string
		pos models.Coordinate
	}
	cells := make(map[s2.CellID]*acc)
	var order []s2.CellID
	for _, m := range markers {
		if !m.Position.Valid() {
			continue
		}
		ll := s2.LatLngFromDegrees(m.Position.Lat, m.Position.Lng)
		cell := s2.CellIDFromLatLng(ll).Parent(level)
		a, ok := cells[cell]
		if !ok {
			a = &acc{pos: m.Position}
			cells[cell] = a
			order = append(order, cell)
		}
		a.sum = a.sum.Add(s2.PointFromLatLng(ll).Vector)
		a.ids = append(a.ids, m.ID)
	}

	out := make([]Cluster, 0, len(cells))
	for _, cell := range order {
		a := cells[cell]
		c := Cluster{Cell: cell.ToToken(), Level: level, Count: len(a.ids), MarkerIDs: a.ids, Position: a.pos}
		if c.Count > 1 && a.sum.Norm() > 0 {
			ll := s2.LatLngFromPoint(s2.Point{Vector: a.sum.Normalize()})
			c.Position = models.Coordinate{Lat: ll.Lat.Degrees(), Lng: ll.Lng.Degrees()}
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
