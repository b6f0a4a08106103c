package search

import "time"

type Config struct {
	DefaultSearchFields []string
	QueryTimeout        time.Duration
}

type Doc struct {
	ID     string
	Type   string
	Fields map[string]any
}

// FacetRequest 按字段聚合取值
type FacetRequest struct {
	Name  string
	Field string
	Size  int
}

type SearchRequest struct {
	// 关键字在默认字段上做 match；Fuzzy>0 时容忍拼写误差
	Keyword string
	Fuzzy   int
	// 单词关键字额外做前缀匹配，用于输入中的补全
	Prefix bool

	// 同一字段内取值为或，字段之间为且
	MustTerms map[string][]string

	Facets []FacetRequest

	From int
	Size int
}

type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}
type FacetTerm struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}
type FacetResult struct {
	Total int         `json:"total"`
	Terms []FacetTerm `json:"terms"`
}
type SearchResult struct {
	Total  uint64                 `json:"total"`
	Hits   []Hit                  `json:"hits"`
	Facets map[string]FacetResult `json:"facets,omitempty"`
}
