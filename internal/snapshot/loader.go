// Package snapshot 从行存储批量读取初始快照：分页、回退排序列、客户端关联媒体。
package snapshot

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"RescueDesk/internal/models"
	"RescueDesk/internal/rowstore"
	"RescueDesk/pkg/errors"
	"RescueDesk/pkg/logger"
	"RescueDesk/pkg/metrics"

	"go.uber.org/zap"
)

// MediaKey 快照行中关联媒体所在的键
const MediaKey = "media"

// Config 表名与列名均可配置，适配不同版本的后端结构
type Config struct {
	AlertTable          string
	FallbackAlertTable  string
	OrderColumn         string
	FallbackOrderColumn string
	MediaTable          string
	FallbackMediaTable  string
	MediaKeys           []KeyExtractor
	// PageSize 后端单次返回的行数上限
	PageSize int
	// MaxPages 防止异常后端导致无限翻页
	MaxPages int
}

func DefaultConfig() Config {
	return Config{
		AlertTable:          "sos_alerts",
		FallbackAlertTable:  "alerts",
		OrderColumn:         "triggered_at",
		FallbackOrderColumn: "created_at",
		MediaTable:          "media",
		FallbackMediaTable:  "alert_media",
		MediaKeys:           DefaultMediaKeys(),
		PageSize:            1000,
		MaxPages:            100,
	}
}

// Filter 可选过滤条件
type Filter struct {
	Statuses []models.Status
	From     *time.Time
	To       *time.Time
	Text     string
}

// Matches 客户端侧判断
func (f Filter) Matches(a models.Alert) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if a.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.From != nil && a.TriggeredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && a.TriggeredAt.After(*f.To) {
		return false
	}
	return a.MatchesText(f.Text)
}

// Result 读路径从不返回 error；Failure 非空表示结果被降级为空
type Result struct {
	// Rows 原始警报行，MediaKey 下附带关联媒体，按触发时间降序
	Rows []models.Row
	// Alerts 与 Rows 一一对应的投影
	Alerts      []models.Alert
	OrderColumn string
	Table       string
	Failure     *errors.Error
}

// Loader 快照加载器；可重复调用，相同过滤条件得到等价结果
type Loader struct {
	store   rowstore.Store
	cfg     Config
	metrics *metrics.Metrics
}

func NewLoader(store rowstore.Store, cfg Config, m *metrics.Metrics) *Loader {
	def := DefaultConfig()
	if cfg.AlertTable == "" {
		cfg.AlertTable = def.AlertTable
	}
	if cfg.OrderColumn == "" {
		cfg.OrderColumn = def.OrderColumn
	}
	if cfg.MediaTable == "" {
		cfg.MediaTable = def.MediaTable
	}
	if len(cfg.MediaKeys) == 0 {
		cfg.MediaKeys = def.MediaKeys
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	return &Loader{store: store, cfg: cfg, metrics: m}
}

func (l *Loader) Config() Config { return l.cfg }

// plan 一次查询尝试；失败后按缺失列调整
type plan struct {
	table    string
	order    string
	statuses []models.Status
}

// Load 读取警报快照
func (l *Loader) Load(ctx context.Context, f Filter) Result {
	start := time.Now()
	p := plan{table: l.cfg.AlertTable, order: l.cfg.OrderColumn, statuses: f.Statuses}

	rows, p, err := l.fetchWithFallback(ctx, p, f)
	if err != nil {
		e, _ := errors.As(err)
		if e == nil {
			e = errors.Wrap(err, errors.CodeTransientFetch, "load alerts")
		}
		logger.Warn("snapshot degraded to empty result",
			zap.String("table", p.table), zap.Int("code", errors.GetCode(err)), zap.Error(err))
		l.metrics.SnapshotFailure(p.table, strconv.Itoa(errors.GetCode(err)))
		return Result{Table: p.table, OrderColumn: p.order, Failure: e}
	}

	rows = dedupe(rows)
	media := l.loadMedia(ctx)

	res := Result{Table: p.table, OrderColumn: p.order}
	for _, r := range rows {
		alert, issues := models.AlertFromRow(r)
		if alert.ID == "" {
			logger.Warn("skip alert row without id", zap.String("table", p.table))
			continue
		}
		if len(issues) > 0 {
			logger.Debug("alert row defaulted", zap.String("id", alert.ID), zap.Strings("fields", issues))
		}
		if !f.Matches(alert) {
			continue
		}
		joined := mergeMedia(alert.Media, media[alert.ID])
		alert.Media = joined
		out := r.Clone()
		out[MediaKey] = joined
		res.Rows = append(res.Rows, out)
		res.Alerts = append(res.Alerts, alert)
	}
	sortByTrigger(&res)
	l.metrics.SnapshotLoaded(p.table, len(res.Rows), time.Since(start))
	return res
}

// fetchWithFallback 每个缺失的排序列、过滤列或表各允许一次回退
func (l *Loader) fetchWithFallback(ctx context.Context, p plan, f Filter) ([]models.Row, plan, error) {
	usedOrderFallback, usedTableFallback := false, false
	for {
		rows, err := l.fetchAll(ctx, p, f)
		if err == nil {
			return rows, p, nil
		}
		if !errors.HasCode(err, errors.CodeSchemaMismatch) {
			return nil, p, err
		}
		col := rowstore.ErrorColumn(err)
		switch {
		case strings.EqualFold(col, "status") && len(p.statuses) > 0:
			// 状态列过滤改为客户端执行
			p.statuses = nil
		case col != "" && strings.EqualFold(col, p.order) && !usedOrderFallback && l.cfg.FallbackOrderColumn != "":
			usedOrderFallback = true
			logger.Warn("order column missing, using fallback",
				zap.String("table", p.table), zap.String("column", p.order), zap.String("fallback", l.cfg.FallbackOrderColumn))
			p.order = l.cfg.FallbackOrderColumn
		case col == "" && !usedTableFallback && l.cfg.FallbackAlertTable != "":
			usedTableFallback = true
			logger.Warn("alert table missing, using fallback",
				zap.String("table", p.table), zap.String("fallback", l.cfg.FallbackAlertTable))
			p.table = l.cfg.FallbackAlertTable
		case col == "" && !usedOrderFallback && l.cfg.FallbackOrderColumn != "":
			usedOrderFallback = true
			p.order = l.cfg.FallbackOrderColumn
		default:
			return nil, p, err
		}
		l.metrics.SnapshotFallback(p.table)
	}
}

func (l *Loader) query(p plan, f Filter, offset int) rowstore.Query {
	q := rowstore.Query{
		Table:      p.table,
		OrderBy:    p.order,
		Descending: true,
		Offset:     offset,
		Limit:      l.cfg.PageSize,
	}
	if len(p.statuses) > 0 {
		q.Filters = append(q.Filters, rowstore.Filter{Column: "status", Op: rowstore.OpIn, Value: models.StatusAliases(p.statuses...)})
	}
	if f.From != nil {
		q.Filters = append(q.Filters, rowstore.Filter{Column: p.order, Op: rowstore.OpGte, Value: f.From.UTC()})
	}
	if f.To != nil {
		q.Filters = append(q.Filters, rowstore.Filter{Column: p.order, Op: rowstore.OpLte, Value: f.To.UTC()})
	}
	return q
}

// fetchAll 满页则继续请求下一页，直到出现短页
func (l *Loader) fetchAll(ctx context.Context, p plan, f Filter) ([]models.Row, error) {
	var all []models.Row
	for page := 0; page < l.cfg.MaxPages; page++ {
		rows, err := l.store.Fetch(ctx, l.query(p, f, page*l.cfg.PageSize))
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if len(rows) < l.cfg.PageSize {
			return all, nil
		}
	}
	logger.Warn("snapshot page limit reached", zap.String("table", p.table), zap.Int("rows", len(all)))
	return all, nil
}

// loadMedia 媒体读取失败不影响警报本身
func (l *Loader) loadMedia(ctx context.Context) MediaIndex {
	tables := []string{l.cfg.MediaTable}
	if l.cfg.FallbackMediaTable != "" {
		tables = append(tables, l.cfg.FallbackMediaTable)
	}
	for i, table := range tables {
		rows, err := l.fetchAll(ctx, plan{table: table, order: "id"}, Filter{})
		if err == nil {
			return BuildMediaIndex(rows, l.cfg.MediaKeys)
		}
		if errors.HasCode(err, errors.CodeSchemaMismatch) && i+1 < len(tables) {
			continue
		}
		logger.Warn("media join skipped", zap.String("table", table), zap.Error(err))
		break
	}
	return MediaIndex{}
}

// LoadRows 读取任意表的全部行（人员表等），失败返回空并记录日志
func (l *Loader) LoadRows(ctx context.Context, table string) []models.Row {
	rows, err := l.fetchAll(ctx, plan{table: table, order: "id"}, Filter{})
	if err != nil {
		logger.Warn("table load degraded to empty result", zap.String("table", table), zap.Error(err))
		l.metrics.SnapshotFailure(table, strconv.Itoa(errors.GetCode(err)))
		return nil
	}
	return dedupe(rows)
}

// dedupe 跨页重复的行保留第一次出现
func dedupe(rows []models.Row) []models.Row {
	seen := make(map[string]bool, len(rows))
	out := rows[:0]
	for _, r := range rows {
		id := r.ID()
		if id != "" {
			if seen[id] {
				continue
			}
			seen[id] = true
		}
		out = append(out, r)
	}
	return out
}

func mergeMedia(inline, joined []models.Media) []models.Media {
	if len(inline) == 0 {
		return joined
	}
	seen := make(map[string]bool, len(inline)+len(joined))
	out := make([]models.Media, 0, len(inline)+len(joined))
	for _, list := range [][]models.Media{joined, inline} {
		for _, m := range list {
			if (m.ID != "" && seen["id:"+m.ID]) || (m.URL != "" && seen["url:"+m.URL]) {
				continue
			}
			if m.ID != "" {
				seen["id:"+m.ID] = true
			}
			if m.URL != "" {
				seen["url:"+m.URL] = true
			}
			out = append(out, m)
		}
	}
	return out
}

// sortByTrigger 稳定排序，后端已排好序时不改变顺序
func sortByTrigger(res *Result) {
	idx := make([]int, len(res.Alerts))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return res.Alerts[idx[i]].TriggeredAt.After(res.Alerts[idx[j]].TriggeredAt)
	})
	rows := make([]models.Row, len(idx))
	alerts := make([]models.Alert, len(idx))
	for i, k := range idx {
		rows[i] = res.Rows[k]
		alerts[i] = res.Alerts[k]
	}
	res.Rows, res.Alerts = rows, alerts
}
