package sql

import (
	"context"
	"database/sql"

	core "joinery/data/db"
	"joinery/data/db/dialect"
)

// ISql 提供写入侧 SQL 构建与执行接口。
//
// 读取侧（带关联 JOIN 的 SELECT）由 data/orm/query 组装，这里只负责
// 插入模型行与维护多对多中间表行。
type ISql interface {
	InsertInto(table string) IInsertBuilder
	DeleteFrom(table string) IDeleteBuilder
}

// IInsertBuilder 构建 INSERT 语句。
type IInsertBuilder interface {
	Columns(cols ...string) IInsertBuilder
	Values(vals ...any) IInsertBuilder
	Build() (query string, args []any)
	Exec(ctx context.Context) (sql.Result, error)
}

// IDeleteBuilder 构建 DELETE 语句。
type IDeleteBuilder interface {
	Where(cond string, args ...any) IDeleteBuilder
	// Limit 仅在方言支持 DELETE ... LIMIT 时生效
	Limit(n int) IDeleteBuilder
	Build() (query string, args []any)
	Exec(ctx context.Context) (sql.Result, error)
}

type sqlImpl struct {
	db      core.IQuerier
	dialect dialect.Dialect
}

// New 创建 ISql 实例；db 可以是连接池也可以是事务。
func New(db core.IQuerier) ISql {
	return &sqlImpl{
		db:      db,
		dialect: dialect.FromDatabase(db),
	}
}

func (s *sqlImpl) InsertInto(table string) IInsertBuilder {
	return &insertBuilder{
		db:      s.db,
		dialect: s.dialect,
		table:   table,
	}
}

func (s *sqlImpl) DeleteFrom(table string) IDeleteBuilder {
	return &deleteBuilder{
		db:      s.db,
		dialect: s.dialect,
		table:   table,
	}
}
