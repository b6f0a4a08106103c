package dashboard

import (
	"context"
	"sync"
	"time"

	"RescueDesk/internal/models"
	"RescueDesk/internal/reconciler"
	"RescueDesk/pkg/errors"
	"RescueDesk/pkg/logger"
	"RescueDesk/pkg/search"

	"go.uber.org/zap"
)

const indexTimeout = 5 * time.Second

// AlertIndex 跟随警报表维护全文索引，文本先做变音折叠
type AlertIndex struct {
	engine search.Engine
	alerts *reconciler.Table[models.Alert]

	mu  sync.Mutex
	ids map[string]struct{}
}

func NewAlertIndex(engine search.Engine, alerts *reconciler.Table[models.Alert]) *AlertIndex {
	ix := &AlertIndex{engine: engine, alerts: alerts, ids: make(map[string]struct{})}
	alerts.OnChange(ix.onChange)
	return ix
}

func alertDoc(a models.Alert) search.Doc {
	return search.Doc{
		ID:   a.ID,
		Type: search.DocTypeAlert,
		Fields: map[string]any{
			"title":        models.FoldText(a.Title()),
			"description":  models.FoldText(a.Description),
			"address":      models.FoldText(a.Address),
			"user":         models.FoldText(a.UserName + " " + a.UserID),
			"notes":        models.FoldText(a.ResolutionNotes),
			"category":     a.Category,
			"status":       string(a.Status),
			"priority":     float64(a.Priority),
			"triggered_at": a.TriggeredAt,
		},
	}
}

func (ix *AlertIndex) onChange(ch reconciler.Change[models.Alert]) {
	ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()
	var err error
	switch ch.Kind {
	case reconciler.ChangeInsert, reconciler.ChangeUpdate:
		err = ix.engine.Index(ctx, alertDoc(ch.Item))
		ix.track(ch.ID)
	case reconciler.ChangeDelete:
		err = ix.engine.Delete(ctx, ch.ID)
		ix.untrack(ch.ID)
	case reconciler.ChangeHydrate:
		err = ix.Reindex(ctx)
	case reconciler.ChangeReset:
		err = ix.clear(ctx)
	}
	if err != nil {
		logger.Warn("alert index update failed", zap.String("kind", string(ch.Kind)), zap.String("id", ch.ID), zap.Error(err))
	}
}

func (ix *AlertIndex) track(id string) {
	ix.mu.Lock()
	ix.ids[id] = struct{}{}
	ix.mu.Unlock()
}

func (ix *AlertIndex) untrack(id string) {
	ix.mu.Lock()
	delete(ix.ids, id)
	ix.mu.Unlock()
}

// Reindex 批量写入当前表中的全部警报
func (ix *AlertIndex) Reindex(ctx context.Context) error {
	items := ix.alerts.Snapshot()
	docs := make([]search.Doc, 0, len(items))
	for _, a := range items {
		docs = append(docs, alertDoc(a))
	}
	if err := ix.engine.IndexBatch(ctx, docs); err != nil {
		return err
	}
	ix.mu.Lock()
	for _, a := range items {
		ix.ids[a.ID] = struct{}{}
	}
	ix.mu.Unlock()
	return nil
}

func (ix *AlertIndex) clear(ctx context.Context) error {
	ix.mu.Lock()
	ids := make([]string, 0, len(ix.ids))
	for id := range ix.ids {
		ids = append(ids, id)
	}
	ix.ids = make(map[string]struct{})
	ix.mu.Unlock()
	for _, id := range ids {
		if err := ix.engine.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Query 全文检索参数
type Query struct {
	Text     string
	Statuses []models.Status
	Category string
	Fuzzy    int
	Size     int
}

// SearchResult 命中的警报按相关度排序
type SearchResult struct {
	Total  uint64                        `json:"total"`
	Alerts []models.Alert                `json:"alerts"`
	Facets map[string]search.FacetResult `json:"facets,omitempty"`
}

// Search 命中后从表中取最新状态；索引中存在但表中已删除的条目被跳过
func (ix *AlertIndex) Search(ctx context.Context, q Query) (SearchResult, error) {
	req := search.SearchRequest{
		Keyword: models.FoldText(q.Text),
		Fuzzy:   q.Fuzzy,
		Prefix:  true,
		Size:    q.Size,
		Facets: []search.FacetRequest{
			{Name: "status", Field: "status", Size: 8},
			{Name: "category", Field: "category", Size: 16},
		},
	}
	if req.Size <= 0 {
		req.Size = 50
	}
	if len(q.Statuses) > 0 || q.Category != "" {
		req.MustTerms = map[string][]string{}
		for _, st := range q.Statuses {
			req.MustTerms["status"] = append(req.MustTerms["status"], string(st))
		}
		if q.Category != "" {
			req.MustTerms["category"] = []string{q.Category}
		}
	}
	res, err := ix.engine.Search(ctx, req)
	if err != nil {
		return SearchResult{}, errors.Wrap(err, errors.CodeTransientFetch, "search alerts")
	}
	out := SearchResult{Total: res.Total, Facets: res.Facets, Alerts: make([]models.Alert, 0, len(res.Hits))}
	for _, h := range res.Hits {
		if a, ok := ix.alerts.Get(h.ID); ok {
			out.Alerts = append(out.Alerts, a)
		}
	}
	return out, nil
}

// Suggest 地址与标题补全
func (ix *AlertIndex) Suggest(ctx context.Context, prefix string, size int) ([]string, error) {
	return ix.engine.Suggest(ctx, "address", models.FoldText(prefix), size)
}
