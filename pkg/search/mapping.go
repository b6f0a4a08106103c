package search

import (
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// DocTypeAlert 警报文档类型
const DocTypeAlert = "alert"

// BuildIndexMapping 警报索引映射：文本字段分词，状态类字段按关键词
func BuildIndexMapping(defaultAnalyzer string) *mapping.IndexMappingImpl {
	if defaultAnalyzer == "" {
		defaultAnalyzer = standard.Name
	}
	idx := mapping.NewIndexMapping()
	idx.DefaultAnalyzer = defaultAnalyzer
	idx.TypeField = "type"

	text := mapping.NewTextFieldMapping()
	text.Store = true
	text.Index = true
	text.Analyzer = defaultAnalyzer
	text.IncludeInAll = true
	text.IncludeTermVectors = true

	kw := mapping.NewTextFieldMapping()
	kw.Store = true
	kw.Index = true
	kw.Analyzer = keyword.Name

	num := mapping.NewNumericFieldMapping()
	num.Store = true
	num.Index = true
	dt := mapping.NewDateTimeFieldMapping()
	dt.Store = true
	dt.Index = true

	alert := mapping.NewDocumentMapping()
	alert.Dynamic = false
	alert.AddFieldMappingsAt("title", text)
	alert.AddFieldMappingsAt("description", text)
	alert.AddFieldMappingsAt("address", text)
	alert.AddFieldMappingsAt("user", text)
	alert.AddFieldMappingsAt("notes", text)
	alert.AddFieldMappingsAt("category", kw)
	alert.AddFieldMappingsAt("status", kw)
	alert.AddFieldMappingsAt("priority", num)
	alert.AddFieldMappingsAt("triggered_at", dt)
	idx.AddDocumentMapping(DocTypeAlert, alert)

	def := mapping.NewDocumentMapping()
	def.Dynamic = false
	idx.DefaultMapping = def
	return idx
}
