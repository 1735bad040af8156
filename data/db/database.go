// Package db 提供关联查询执行所需的最小数据库抽象
//
// 别名与 JOIN 解析本身不做 I/O；此包仅供 query 层执行已拼装好的 SELECT
// 与中间表写入，并在测试中以 sqlite 驱动端到端验证结果组装。
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// IQuerier 执行语句的最小接口，IDatabase 与 ITransaction 均满足
type IQuerier interface {
	Query(ctx context.Context, query string, args ...any) (IRows, error)
	QueryRow(ctx context.Context, query string, args ...any) IRow
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// IDatabase 连接池
type IDatabase interface {
	IQuerier

	Begin(ctx context.Context) (ITransaction, error)
	Ping(ctx context.Context) error
	Close() error
}

// ITransaction 事务；不支持嵌套
type ITransaction interface {
	IQuerier

	Commit() error
	Rollback() error
}

// IDialectNameProvider 可选接口：返回 "sqlite"、"postgres"、"mysql" 等方言名
type IDialectNameProvider interface {
	GetDialectName() string
}

// IRows 查询结果集；hydrate 依赖 Columns 按别名标签切分行
type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
	Columns() ([]string, error)
}

// IRow 单行结果接口
type IRow interface {
	Scan(dest ...any) error
	Err() error
}

// DBConfig 数据库配置
type DBConfig struct {
	Driver string // 需已注册，默认 sqlite
	DSN    string // sqlite 可用 ":memory:"

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// InTx 在事务中执行 fn：fn 返回 nil 时提交，返回错误或 panic 时回滚
func InTx(ctx context.Context, database IDatabase, fn func(tx ITransaction) error) (err error) {
	tx, err := database.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}
