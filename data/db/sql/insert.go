package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	core "joinery/data/db"
	"joinery/data/db/dialect"
)

type insertBuilder struct {
	db      core.IQuerier
	dialect dialect.Dialect

	table   string
	columns []string
	rows    [][]any
}

func (b *insertBuilder) Columns(cols ...string) IInsertBuilder {
	b.columns = cols
	return b
}

func (b *insertBuilder) Values(vals ...any) IInsertBuilder {
	if len(vals) == 0 {
		return b
	}
	b.rows = append(b.rows, vals)
	return b
}

// Build 生成多行 INSERT；表名与列名不安全或行宽不匹配属于调用方缺陷，直接 panic。
func (b *insertBuilder) Build() (string, []any) {
	if len(b.columns) == 0 {
		panic("insertBuilder: Columns is required")
	}
	if len(b.rows) == 0 {
		panic("insertBuilder: at least one row is required")
	}
	if !IsSafeIdentifier(b.table) {
		panic("insertBuilder: unsafe table name " + b.table)
	}

	quoted := make([]string, len(b.columns))
	for i, col := range b.columns {
		if !IsSafeName(col) {
			panic("insertBuilder: unsafe column name " + col)
		}
		quoted[i] = b.dialect.QuoteIdentifier(col)
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(b.columns)), ", ") + ")"
	groups := make([]string, len(b.rows))
	args := make([]any, 0, len(b.rows)*len(b.columns))
	for i, row := range b.rows {
		if len(row) != len(b.columns) {
			panic(fmt.Sprintf("insertBuilder: row %d has %d values for %d columns", i, len(row), len(b.columns)))
		}
		groups[i] = placeholder
		args = append(args, row...)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		b.dialect.QuoteIdentifier(b.table),
		strings.Join(quoted, ", "),
		strings.Join(groups, ", "),
	)
	return query, args
}

func (b *insertBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args := b.Build()
	return b.db.Exec(ctx, q, args...)
}
