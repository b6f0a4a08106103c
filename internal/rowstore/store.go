// Package rowstore 远端行存储的抽象：按表读取、更新、插入原始行。
package rowstore

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"RescueDesk/internal/models"
	"RescueDesk/pkg/errors"
)

// Op 过滤运算
type Op string

const (
	OpEq    Op = "eq"
	OpIn    Op = "in"
	OpGte   Op = "gte"
	OpLte   Op = "lte"
	OpILike Op = "ilike"
)

// Filter 单列过滤条件；OpIn 的 Value 为 []any 或 []string
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Query 一次分页读取
type Query struct {
	Table      string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Offset     int
	Limit      int
}

// Store 行存储。读失败返回带 CodeSchemaMismatch 或 CodeTransientFetch 的 *errors.Error。
type Store interface {
	Fetch(ctx context.Context, q Query) ([]models.Row, error)
	Update(ctx context.Context, table, id string, patch models.Row) (models.Row, error)
	Insert(ctx context.Context, table string, row models.Row) (models.Row, error)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdent(kind, name string) error {
	if !identRe.MatchString(name) {
		return errors.WithCodef(errors.CodeInvalidArgument, "invalid %s name %q", kind, name)
	}
	return nil
}

// Validate 校验表名、列名与运算符
func (q Query) Validate() error {
	if err := checkIdent("table", q.Table); err != nil {
		return err
	}
	if q.OrderBy != "" {
		if err := checkIdent("column", q.OrderBy); err != nil {
			return err
		}
	}
	for _, f := range q.Filters {
		if err := checkIdent("column", f.Column); err != nil {
			return err
		}
		switch f.Op {
		case OpEq, OpIn, OpGte, OpLte, OpILike:
		default:
			return errors.WithCodef(errors.CodeInvalidArgument, "unsupported filter op %q", f.Op)
		}
	}
	return nil
}

var missingColumnPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)no such column: (?:\w+\.)?(\w+)`),
	regexp.MustCompile(`(?i)column "?(?:\w+\.)?(\w+)"? does not exist`),
	regexp.MustCompile(`(?i)unknown column '(?:\w+\.)?(\w+)'`),
	regexp.MustCompile(`(?i)could not find the '(\w+)' column`),
}

var missingTablePatterns = []string{
	"no such table",
	"doesn't exist",
	"could not find the table",
	"relation",
}

// MissingColumn 从驱动错误信息中提取缺失列名，保留原始大小写
func MissingColumn(msg string) (string, bool) {
	for _, re := range missingColumnPatterns {
		if m := re.FindStringSubmatch(msg); len(m) == 2 {
			return m[1], true
		}
	}
	return "", false
}

func missingTable(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range missingTablePatterns {
		if strings.Contains(lower, p) && (p != "relation" || strings.Contains(lower, "does not exist")) {
			return true
		}
	}
	return false
}

// schemaMismatch 构造带 table/column 上下文的 SchemaMismatch
func schemaMismatch(err error, table, column string) *errors.Error {
	e := errors.Wrapf(err, errors.CodeSchemaMismatch, "schema mismatch on %s", table).WithContext("table", table)
	if column != "" {
		e = e.WithContext("column", column)
	}
	return e
}

func transient(err error, table string) *errors.Error {
	return errors.Wrapf(err, errors.CodeTransientFetch, "fetch %s failed", table).WithContext("table", table)
}

// ErrorColumn 返回 SchemaMismatch 错误涉及的列名
func ErrorColumn(err error) string {
	e, ok := errors.As(err)
	if !ok {
		return ""
	}
	for e != nil {
		if v, ok := e.ContextValue("column"); ok {
			return v
		}
		next, ok := errors.As(e.Err)
		if !ok {
			break
		}
		e = next
	}
	return ""
}

func notFound(table, id string) *errors.Error {
	return errors.WithCode(errors.CodeNotFound, fmt.Sprintf("%s row %s not found", table, id)).WithContext("table", table)
}
