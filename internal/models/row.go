package models

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gorm.io/datatypes"
)

// Row 后端返回的一行原始数据
type Row map[string]any

// ID 主键统一转为字符串
func (r Row) ID() string {
	if r == nil {
		return ""
	}
	v, ok := r["id"]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}

// Clone 浅拷贝
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge 返回合并后的新行，patch 中出现的键覆盖原值，其余保留
func (r Row) Merge(patch Row) Row {
	out := r.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Lookup 按候选键顺序取第一个非空值
func (r Row) Lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

func (r Row) String(keys ...string) string {
	v, ok := r.Lookup(keys...)
	if !ok {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}

func (r Row) Float(keys ...string) (float64, bool) {
	v, ok := r.Lookup(keys...)
	if !ok {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (r Row) Time(keys ...string) (time.Time, bool) {
	v, ok := r.Lookup(keys...)
	if !ok {
		return time.Time{}, false
	}
	return ParseTime(v)
}

// TimePtr 缺失时返回 nil
func (r Row) TimePtr(keys ...string) *time.Time {
	t, ok := r.Time(keys...)
	if !ok {
		return nil
	}
	return &t
}

// ParseTime 兼容 time.Time、RFC3339/常见 SQL 格式字符串、秒或毫秒时间戳
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return t.UTC(), !t.IsZero()
	case int, int32, int64, float64, float32, uint, uint32, uint64, json.Number:
		n, err := cast.ToInt64E(t)
		if err != nil || n <= 0 {
			return time.Time{}, false
		}
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	parsed, err := cast.ToTimeE(v)
	if err != nil || parsed.IsZero() {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

// asRows 把 JSON 数组形态的值统一解为行列表，兼容字符串、[]byte、datatypes.JSON
func asRows(v any) []Row {
	switch t := v.(type) {
	case nil:
		return nil
	case []Row:
		return t
	case []map[string]any:
		out := make([]Row, len(t))
		for i := range t {
			out[i] = Row(t[i])
		}
		return out
	case []any:
		out := make([]Row, 0, len(t))
		for _, item := range t {
			switch m := item.(type) {
			case map[string]any:
				out = append(out, Row(m))
			case Row:
				out = append(out, m)
			}
		}
		return out
	case datatypes.JSON:
		return asRows([]byte(t))
	case string:
		return asRows([]byte(t))
	case []byte:
		var arr []map[string]any
		if len(t) == 0 || json.Unmarshal(t, &arr) != nil {
			return nil
		}
		return asRows(arr)
	}
	return nil
}

// asStrings 兼容 JSON 字符串数组和逗号分隔
func asStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(cast.ToString(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case datatypes.JSON:
		return asStrings(string(t))
	case []byte:
		return asStrings(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if strings.HasPrefix(s, "[") {
			var arr []string
			if json.Unmarshal([]byte(s), &arr) == nil {
				return arr
			}
		}
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return nil
}
