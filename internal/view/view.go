// Package view 把当前集合投影为地图标记、统计和筛选后的列表。Build 为纯函数，不修改输入。
package view

import (
	"strings"
	"time"

	"RescueDesk/internal/models"
)

// DefaultRecentWindow 最近窗口统计的默认跨度
const DefaultRecentWindow = 24 * time.Hour

// Options 展示过滤条件
type Options struct {
	ShowHelpers    bool
	ShowResponders bool
	ShowResolved   bool
	Statuses       []models.Status
	Categories     []string
	Text           string
	// Now 为零值时使用 time.Now
	Now          time.Time
	RecentWindow time.Duration
	// ClusterLevel > 0 时按该 s2 层级聚合标记
	ClusterLevel int
	// Extra 追加在数据标记之后的标记（聚焦、搜索结果等）
	Extra []models.Marker
}

func DefaultOptions() Options {
	return Options{ShowHelpers: true, ShowResponders: true, RecentWindow: DefaultRecentWindow}
}

// Input 构建视图所需的集合快照
type Input struct {
	Alerts     []models.Alert
	Helpers    []models.Personnel
	Responders []models.Personnel
}

// View 派生结果
type View struct {
	Markers  []models.Marker `json:"markers"`
	Stats    Stats           `json:"stats"`
	Active   []models.Alert  `json:"active"`
	Resolved []models.Alert  `json:"resolved"`
	Filtered []models.Alert  `json:"filtered"`
	Clusters []Cluster       `json:"clusters,omitempty"`
	Version  uint64          `json:"version"`
	BuiltAt  time.Time       `json:"built_at"`
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

func (o Options) window() time.Duration {
	if o.RecentWindow <= 0 {
		return DefaultRecentWindow
	}
	return o.RecentWindow
}

// Matches 单条警报是否通过过滤
func (o Options) Matches(a models.Alert) bool {
	if !o.ShowResolved && a.Status.Terminal() && !containsStatus(o.Statuses, a.Status) {
		return false
	}
	if len(o.Statuses) > 0 && !containsStatus(o.Statuses, a.Status) {
		return false
	}
	if len(o.Categories) > 0 {
		found := false
		for _, c := range o.Categories {
			if strings.EqualFold(c, a.Category) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return o.Text == "" || a.MatchesText(o.Text)
}

func containsStatus(list []models.Status, s models.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Build 全量重算
func Build(in Input, opts Options) View {
	now := opts.now()
	v := View{
		Stats:   ComputeStats(in, now, opts.window()),
		BuiltAt: now,
	}
	for _, a := range in.Alerts {
		if a.Status.Terminal() {
			v.Resolved = append(v.Resolved, a.Clone())
		} else {
			v.Active = append(v.Active, a.Clone())
		}
		if !opts.Matches(a) {
			continue
		}
		v.Filtered = append(v.Filtered, a.Clone())
		if m, ok := AlertMarker(a); ok {
			v.Markers = append(v.Markers, m)
		}
	}
	if opts.ShowHelpers {
		v.Markers = append(v.Markers, personnelMarkers(in.Helpers, models.MarkerHelper)...)
	}
	if opts.ShowResponders {
		v.Markers = append(v.Markers, personnelMarkers(in.Responders, models.MarkerResponder)...)
	}
	v.Markers = append(v.Markers, opts.Extra...)
	if opts.ClusterLevel > 0 {
		v.Clusters = Clusters(v.Markers, opts.ClusterLevel)
	}
	return v
}

// AlertMarker 无坐标的警报不产生标记
func AlertMarker(a models.Alert) (models.Marker, bool) {
	if a.Location == nil || !a.Location.Valid() {
		return models.Marker{}, false
	}
	return models.Marker{
		ID:       string(models.MarkerSOS) + ":" + a.ID,
		Type:     models.MarkerSOS,
		Position: *a.Location,
		SourceID: a.ID,
		Label:    a.Title(),
		Status:   string(a.Status),
		Priority: a.Priority.String(),
	}, true
}

func personnelMarkers(people []models.Personnel, typ models.MarkerType) []models.Marker {
	var out []models.Marker
	seen := make(map[string]bool, len(people))
	for _, p := range people {
		if p.Location == nil || !p.Location.Valid() || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, models.Marker{
			ID:       string(typ) + ":" + p.ID,
			Type:     typ,
			Position: *p.Location,
			SourceID: p.ID,
			Label:    p.Name,
			Status:   string(p.Status),
		})
	}
	return out
}
