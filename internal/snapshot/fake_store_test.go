package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"RescueDesk/internal/models"
	"RescueDesk/internal/rowstore"
	"RescueDesk/pkg/errors"

	"github.com/spf13/cast"
)

// fakeStore 模拟托管后端：表与列存在性、排序、分页、下推过滤
type fakeStore struct {
	mu      sync.Mutex
	tables  map[string][]models.Row
	columns map[string]map[string]bool
	fail    error
	queries []rowstore.Query
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: map[string][]models.Row{}, columns: map[string]map[string]bool{}}
}

func (s *fakeStore) addTable(name string, cols ...string) {
	s.columns[name] = map[string]bool{}
	for _, c := range cols {
		s.columns[name][c] = true
	}
	s.tables[name] = nil
}

func (s *fakeStore) add(table string, rows ...models.Row) {
	s.tables[table] = append(s.tables[table], rows...)
}

func missingColumn(table, col string) error {
	return errors.WithCodef(errors.CodeSchemaMismatch, "column %s.%s does not exist", table, col).
		WithContext("table", table).WithContext("column", col)
}

func (s *fakeStore) Fetch(_ context.Context, q rowstore.Query) ([]models.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.fail != nil {
		return nil, s.fail
	}
	cols, ok := s.columns[q.Table]
	if !ok {
		return nil, errors.WithCodef(errors.CodeSchemaMismatch, "relation %s does not exist", q.Table).WithContext("table", q.Table)
	}
	if q.OrderBy != "" && !cols[q.OrderBy] {
		return nil, missingColumn(q.Table, q.OrderBy)
	}
	var out []models.Row
	for _, r := range s.tables[q.Table] {
		keep := true
		for _, f := range q.Filters {
			if !cols[f.Column] {
				return nil, missingColumn(q.Table, f.Column)
			}
			if !match(r[f.Column], f) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r.Clone())
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, b := less(out[i][q.OrderBy], out[j][q.OrderBy])
			if q.Descending {
				return b
			}
			return a
		})
	}
	if q.Offset >= len(out) {
		return []models.Row{}, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func less(a, b any) (bool, bool) {
	if ta, ok := models.ParseTime(a); ok {
		tb, _ := models.ParseTime(b)
		return ta.Before(tb), tb.Before(ta)
	}
	sa, sb := cast.ToString(a), cast.ToString(b)
	return sa < sb, sb < sa
}

func match(v any, f rowstore.Filter) bool {
	switch f.Op {
	case rowstore.OpIn:
		for _, want := range cast.ToStringSlice(f.Value) {
			if cast.ToString(v) == want {
				return true
			}
		}
		return false
	case rowstore.OpGte, rowstore.OpLte:
		tv, _ := models.ParseTime(v)
		tf, _ := models.ParseTime(f.Value)
		if f.Op == rowstore.OpGte {
			return !tv.Before(tf)
		}
		return !tv.After(tf)
	}
	return cast.ToString(v) == cast.ToString(f.Value)
}

func (s *fakeStore) Update(context.Context, string, string, models.Row) (models.Row, error) {
	return nil, fmt.Errorf("read only")
}

func (s *fakeStore) Insert(context.Context, string, models.Row) (models.Row, error) {
	return nil, fmt.Errorf("read only")
}

var base = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func alertRow(i int, col string) models.Row {
	return models.Row{
		"id":       fmt.Sprintf("a%04d", i),
		"status":   "active",
		"category": "medical",
		col:        base.Add(time.Duration(i) * time.Second),
	}
}
