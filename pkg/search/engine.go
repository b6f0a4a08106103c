package search

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

var ErrClosed = errors.New("search engine closed")

const batchSize = 200

type Engine interface {
	Index(ctx context.Context, doc Doc) error
	IndexBatch(ctx context.Context, docs []Doc) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, req SearchRequest) (SearchResult, error)
	Suggest(ctx context.Context, field, prefix string, size int) ([]string, error)
	Close() error
}

type bleveEngine struct {
	cfg    Config
	index  bleve.Index
	mu     sync.RWMutex
	closed bool
}

// New 内存索引，进程重启后由快照重建
func New(cfg Config, m mapping.IndexMapping) (Engine, error) {
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, err
	}
	return &bleveEngine{cfg: cfg, index: idx}, nil
}

func (e *bleveEngine) guard() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

// withTimeout QueryTimeout<=0 时不限时
func (e *bleveEngine) withTimeout(ctx context.Context, fn func() error) error {
	if e.cfg.QueryTimeout <= 0 {
		return fn()
	}
	c, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	select {
	case <-c.Done():
		return c.Err()
	case err := <-ch:
		return err
	}
}

func (e *bleveEngine) Index(ctx context.Context, doc Doc) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.withTimeout(ctx, func() error {
		return e.index.Index(doc.ID, doc.data())
	})
}

// IndexBatch 分批提交，不受 QueryTimeout 限制
func (e *bleveEngine) IndexBatch(ctx context.Context, docs []Doc) error {
	if err := e.guard(); err != nil {
		return err
	}
	for i := 0; i < len(docs); i += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := i + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		b := e.index.NewBatch()
		for _, d := range docs[i:end] {
			if err := b.Index(d.ID, d.data()); err != nil {
				return err
			}
		}
		if err := e.index.Batch(b); err != nil {
			return err
		}
	}
	return nil
}

func (e *bleveEngine) Delete(ctx context.Context, id string) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.withTimeout(ctx, func() error {
		return e.index.Delete(id)
	})
}

func (e *bleveEngine) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	if err := e.guard(); err != nil {
		return SearchResult{}, err
	}
	sr := bleve.NewSearchRequest(buildQuery(req, e.cfg.DefaultSearchFields))
	sr.Size = req.Size
	if sr.Size <= 0 {
		sr.Size = 10
	}
	if req.From > 0 {
		sr.From = req.From
	}
	if len(req.Facets) > 0 {
		sr.Facets = make(bleve.FacetsRequest, len(req.Facets))
		for _, f := range req.Facets {
			size := f.Size
			if size <= 0 {
				size = 10
			}
			sr.Facets[f.Name] = bleve.NewFacetRequest(f.Field, size)
		}
	}

	var res *bleve.SearchResult
	err := e.withTimeout(ctx, func() error {
		r, err := e.index.Search(sr)
		res = r
		return err
	})
	if err != nil {
		return SearchResult{}, err
	}

	out := SearchResult{Total: res.Total, Hits: make([]Hit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		out.Hits = append(out.Hits, Hit{ID: h.ID, Score: h.Score})
	}
	if len(res.Facets) > 0 {
		out.Facets = make(map[string]FacetResult, len(res.Facets))
		for name, fr := range res.Facets {
			ft := FacetResult{Total: fr.Total}
			if fr.Terms != nil {
				for _, t := range fr.Terms.Terms() {
					ft.Terms = append(ft.Terms, FacetTerm{Term: t.Term, Count: t.Count})
				}
			}
			out.Facets[name] = ft
		}
	}
	return out, nil
}

func (e *bleveEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.index.Close()
}

// Suggest 按前缀返回字段的不重复取值
func (e *bleveEngine) Suggest(ctx context.Context, field, prefix string, size int) ([]string, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 5
	}
	pq := bleve.NewPrefixQuery(strings.ToLower(prefix))
	pq.SetField(field)
	sr := bleve.NewSearchRequest(pq)
	sr.Size = size * 4
	sr.Fields = []string{field}

	var res *bleve.SearchResult
	err := e.withTimeout(ctx, func() error {
		r, err := e.index.Search(sr)
		res = r
		return err
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, hit := range res.Hits {
		v, ok := hit.Fields[field].(string)
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) == size {
			break
		}
	}
	return out, nil
}

func (d Doc) data() map[string]any {
	data := make(map[string]any, len(d.Fields)+1)
	for k, v := range d.Fields {
		data[k] = v
	}
	if d.Type != "" {
		data["type"] = d.Type
	}
	return data
}
