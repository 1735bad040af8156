package basic

import (
	"context"
	"database/sql"

	core "joinery/data/db"
	"joinery/data/db/dialect"
)

// Tx 委托给 *sql.Tx，占位符按方言改写
type Tx struct {
	tx      *sql.Tx
	dialect dialect.Dialect
}

var _ core.ITransaction = (*Tx)(nil)

func (t *Tx) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := t.tx.QueryContext(ctx, t.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return &Row{row: t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)}
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// GetDialectName 使事务内的写入沿用同一方言
func (t *Tx) GetDialectName() string {
	return string(t.dialect.Name())
}
