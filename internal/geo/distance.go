package geo

import (
	"sort"

	"RescueDesk/internal/models"

	"github.com/golang/geo/s2"
)

const (
	earthRadiusMeters = 6371008.8
	// 直线估算使用的城市平均车速
	estimateSpeedMps = 30 * 1000.0 / 3600.0
)

// DistanceMeters 球面大圆距离
func DistanceMeters(a, b models.Coordinate) float64 {
	pa := s2.LatLngFromDegrees(a.Lat, a.Lng)
	pb := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return pa.Distance(pb).Radians() * earthRadiusMeters
}

// StraightLine 远端不可用时的估算路线
func StraightLine(from, to models.Coordinate) Route {
	d := DistanceMeters(from, to)
	return Route{
		DistanceMeters:  d,
		DurationSeconds: d / estimateSpeedMps,
		Polyline:        []models.Coordinate{from, to},
		Estimated:       true,
	}
}

// Candidate 候选人员及其距离
type Candidate struct {
	Personnel      models.Personnel `json:"personnel"`
	DistanceMeters float64          `json:"distance_m"`
}

// NearestPersonnel 按距离排序有坐标且不离线的人员，limit<=0 返回全部
func NearestPersonnel(target models.Coordinate, people []models.Personnel, limit int) []Candidate {
	out := make([]Candidate, 0, len(people))
	for _, p := range people {
		if p.Location == nil || p.Status == models.PersonnelOffline {
			continue
		}
		out = append(out, Candidate{Personnel: p, DistanceMeters: DistanceMeters(target, *p.Location)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
