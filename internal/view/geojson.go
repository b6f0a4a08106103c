package view

import (
	"RescueDesk/internal/models"

	geojson "github.com/paulmach/go.geojson"
)

// FeatureCollection 地图组件使用的 GeoJSON，坐标顺序为 [lng, lat]
func FeatureCollection(markers []models.Marker) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range markers {
		f := geojson.NewPointFeature([]float64{m.Position.Lng, m.Position.Lat})
		f.ID = m.ID
		f.SetProperty("type", string(m.Type))
		f.SetProperty("source_id", m.SourceID)
		if m.Label != "" {
			f.SetProperty("label", m.Label)
		}
		if m.Status != "" {
			f.SetProperty("status", m.Status)
		}
		if m.Priority != "" {
			f.SetProperty("priority", m.Priority)
		}
		if m.Tracked {
			f.SetProperty("tracked", true)
		}
		fc.AddFeature(f)
	}
	return fc
}

// ClusterCollection 聚合结果的 GeoJSON
func ClusterCollection(clusters []Cluster) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, c := range clusters {
		f := geojson.NewPointFeature([]float64{c.Position.Lng, c.Position.Lat})
		f.ID = c.Cell
		f.SetProperty("count", c.Count)
		f.SetProperty("level", c.Level)
		fc.AddFeature(f)
	}
	return fc
}
