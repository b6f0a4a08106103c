package rowstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"RescueDesk/internal/models"
	"RescueDesk/pkg/errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 基于 gorm 的行存储，支持 sqlite / mysql / postgres
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB 暴露底层连接，供迁移使用
func (s *GormStore) DB() *gorm.DB { return s.db }

func (s *GormStore) Fetch(ctx context.Context, q Query) ([]models.Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	tx := s.db.WithContext(ctx).Table(q.Table)
	for _, f := range q.Filters {
		tx = tx.Where(filterExpr(f))
	}
	if q.OrderBy != "" {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: q.OrderBy}, Desc: q.Descending})
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}

	var raw []map[string]any
	if err := tx.Find(&raw).Error; err != nil {
		return nil, classify(err, q.Table)
	}
	rows := make([]models.Row, len(raw))
	for i, r := range raw {
		rows[i] = normalize(r)
	}
	return rows, nil
}

func (s *GormStore) Update(ctx context.Context, table, id string, patch models.Row) (models.Row, error) {
	if err := checkIdent("table", table); err != nil {
		return nil, err
	}
	values := make(map[string]any, len(patch))
	for k, v := range patch {
		if k == "id" {
			continue
		}
		if err := checkIdent("column", k); err != nil {
			return nil, err
		}
		values[k] = v
	}
	if len(values) == 0 {
		return nil, errors.WithCode(errors.CodeInvalidArgument, "empty patch")
	}
	res := s.db.WithContext(ctx).Table(table).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return nil, classify(res.Error, table)
	}
	if res.RowsAffected == 0 {
		return nil, notFound(table, id)
	}
	return s.get(ctx, table, id)
}

func (s *GormStore) Insert(ctx context.Context, table string, row models.Row) (models.Row, error) {
	if err := checkIdent("table", table); err != nil {
		return nil, err
	}
	id := row.ID()
	if id == "" {
		return nil, errors.WithCode(errors.CodeInvalidArgument, "insert requires id")
	}
	values := make(map[string]any, len(row))
	for k, v := range row {
		if err := checkIdent("column", k); err != nil {
			return nil, err
		}
		values[k] = v
	}
	if err := s.db.WithContext(ctx).Table(table).Create(values).Error; err != nil {
		return nil, classify(err, table)
	}
	return s.get(ctx, table, id)
}

func (s *GormStore) get(ctx context.Context, table, id string) (models.Row, error) {
	rows, err := s.Fetch(ctx, Query{Table: table, Filters: []Filter{{Column: "id", Op: OpEq, Value: id}}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound(table, id)
	}
	return rows[0], nil
}

func filterExpr(f Filter) clause.Expression {
	col := clause.Column{Name: f.Column}
	switch f.Op {
	case OpIn:
		return clause.IN{Column: col, Values: toSlice(f.Value)}
	case OpGte:
		return clause.Gte{Column: col, Value: f.Value}
	case OpLte:
		return clause.Lte{Column: col, Value: f.Value}
	case OpILike:
		return clause.Expr{SQL: "LOWER(?) LIKE ?", Vars: []any{col, "%" + strings.ToLower(fmt.Sprint(f.Value)) + "%"}}
	}
	return clause.Eq{Column: col, Value: f.Value}
}

func toSlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out
	}
	return []any{v}
}

// normalize 驱动返回的 []byte 转字符串，便于后续统一解码
func normalize(r map[string]any) models.Row {
	for k, v := range r {
		if b, ok := v.([]byte); ok {
			r[k] = string(b)
		}
	}
	return models.Row(r)
}

// classify 区分结构不匹配与其他错误
func classify(err error, table string) error {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42703":
			col, _ := MissingColumn(pgErr.Message)
			return schemaMismatch(err, table, col)
		case "42P01":
			return schemaMismatch(err, table, "")
		}
		return transient(err, table)
	}
	var myErr *mysql.MySQLError
	if stderrors.As(err, &myErr) {
		switch myErr.Number {
		case 1054:
			col, _ := MissingColumn(myErr.Message)
			return schemaMismatch(err, table, col)
		case 1146:
			return schemaMismatch(err, table, "")
		}
		return transient(err, table)
	}
	if col, ok := MissingColumn(err.Error()); ok {
		return schemaMismatch(err, table, col)
	}
	if missingTable(err.Error()) {
		return schemaMismatch(err, table, "")
	}
	return transient(err, table)
}
