package models

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldText 小写并去除变音符号，"Émergence" 与 "emergence" 等价
func FoldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// MatchesText 在描述、地址、类别、用户名与 ID 中做子串匹配，空查询总是匹配
func (a Alert) MatchesText(q string) bool {
	q = FoldText(q)
	if q == "" {
		return true
	}
	for _, field := range []string{a.Description, a.Address, a.Category, a.UserName, a.UserID, a.ID, a.ResolutionNotes} {
		if strings.Contains(FoldText(field), q) {
			return true
		}
	}
	return false
}

// StatusAliases 返回映射到给定规范状态的全部原始取值，用于下推过滤
func StatusAliases(statuses ...Status) []string {
	want := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []string
	for raw, st := range statusAliases {
		if want[st] {
			out = append(out, raw)
		}
	}
	return out
}
