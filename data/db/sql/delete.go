package sql

import (
	"context"
	"database/sql"
	"strings"

	core "joinery/data/db"
	"joinery/data/db/dialect"
)

type deleteBuilder struct {
	db      core.IQuerier
	dialect dialect.Dialect

	table string
	where []string
	args  []any
	limit int
}

// Where 追加条件；cond 为 "col = ?" 形式时列名按方言加引号。
func (b *deleteBuilder) Where(cond string, args ...any) IDeleteBuilder {
	if cond == "" {
		return b
	}
	if col, ok := strings.CutSuffix(cond, " = ?"); ok && IsSafeIdentifier(col) {
		cond = b.dialect.QuoteIdentifier(col) + " = ?"
	}
	b.where = append(b.where, cond)
	b.args = append(b.args, args...)
	return b
}

func (b *deleteBuilder) Limit(n int) IDeleteBuilder {
	b.limit = n
	return b
}

// Build 生成 DELETE；不带条件的整表删除被视为误用并 panic。
func (b *deleteBuilder) Build() (string, []any) {
	if !IsSafeIdentifier(b.table) {
		panic("deleteBuilder: unsafe table name " + b.table)
	}
	if len(b.where) == 0 {
		panic("deleteBuilder: delete without where is not allowed")
	}

	var sb strings.Builder
	args := make([]any, len(b.args), len(b.args)+1)
	copy(args, b.args)

	sb.WriteString("DELETE FROM ")
	sb.WriteString(b.dialect.QuoteIdentifier(b.table))
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(b.where, " AND "))

	if b.limit > 0 && b.dialect.SupportsDeleteLimit() {
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}

	return sb.String(), args
}

func (b *deleteBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args := b.Build()
	return b.db.Exec(ctx, q, args...)
}
