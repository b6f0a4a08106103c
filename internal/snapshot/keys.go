package snapshot

import "RescueDesk/internal/models"

// KeyExtractor 从关联行中取出所属警报 ID 的一种方式
type KeyExtractor struct {
	Name    string
	Extract func(models.Row) string
}

func column(name string) KeyExtractor {
	return KeyExtractor{Name: name, Extract: func(r models.Row) string { return r.String(name) }}
}

// DefaultMediaKeys 历史上出现过的外键列名，按优先级排列
func DefaultMediaKeys() []KeyExtractor {
	return []KeyExtractor{
		column("alert_id"),
		column("sos_alert_id"),
		column("sos_id"),
		column("emergency_id"),
		column("alertId"),
	}
}

// MatchKeys 返回行匹配到的全部警报 ID（去重，保持提取器顺序）。
// 同一行在多个键名下指向不同警报时全部保留。
func MatchKeys(r models.Row, extractors []KeyExtractor) []string {
	var out []string
	seen := make(map[string]bool, len(extractors))
	for _, ex := range extractors {
		if id := ex.Extract(r); id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// MediaIndex 警报 ID 到媒体列表的索引
type MediaIndex map[string][]models.Media

// BuildMediaIndex 按提取器并集建立索引；同一警报下按媒体 ID 去重
func BuildMediaIndex(rows []models.Row, extractors []KeyExtractor) MediaIndex {
	idx := make(MediaIndex)
	seen := make(map[string]map[string]bool)
	for _, r := range rows {
		m, ok := models.MediaFromRow(r)
		if !ok {
			continue
		}
		for _, alertID := range MatchKeys(r, extractors) {
			if seen[alertID] == nil {
				seen[alertID] = make(map[string]bool)
			}
			if seen[alertID][m.ID] {
				continue
			}
			seen[alertID][m.ID] = true
			item := m
			item.AlertID = alertID
			idx[alertID] = append(idx[alertID], item)
		}
	}
	return idx
}
