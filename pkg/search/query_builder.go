package search

import (
	"strings"

	"github.com/blevesearch/bleve/v2"
	q "github.com/blevesearch/bleve/v2/search/query"
)

func buildQuery(req SearchRequest, fields []string) q.Query {
	var must []q.Query

	if kw := strings.TrimSpace(req.Keyword); kw != "" {
		if len(fields) == 0 {
			fields = []string{""}
		}
		alts := make([]q.Query, 0, len(fields)*2)
		for _, f := range fields {
			mq := bleve.NewMatchQuery(kw)
			mq.SetOperator(q.MatchQueryOperatorAnd)
			if f != "" {
				mq.SetField(f)
			}
			if req.Fuzzy > 0 {
				mq.SetFuzziness(req.Fuzzy)
			}
			alts = append(alts, mq)
			if req.Prefix && !strings.Contains(kw, " ") {
				pq := bleve.NewPrefixQuery(strings.ToLower(kw))
				if f != "" {
					pq.SetField(f)
				}
				alts = append(alts, pq)
			}
		}
		must = append(must, bleve.NewDisjunctionQuery(alts...))
	}

	for f, vs := range req.MustTerms {
		if len(vs) == 0 {
			continue
		}
		qs := make([]q.Query, 0, len(vs))
		for _, v := range vs {
			tq := bleve.NewTermQuery(v)
			tq.SetField(f)
			qs = append(qs, tq)
		}
		must = append(must, bleve.NewDisjunctionQuery(qs...))
	}

	if len(must) == 0 {
		return bleve.NewMatchAllQuery()
	}
	return bleve.NewConjunctionQuery(must...)
}
