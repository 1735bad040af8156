// Package dialect 描述各数据库在标识符引用、占位符与约束错误上的差异
package dialect

import (
	"strconv"
	"strings"

	core "joinery/data/db"
)

// Name 标准化的数据库方言名称
type Name string

const (
	NameMySQL    Name = "mysql"
	NameSQLite   Name = "sqlite"
	NamePostgres Name = "postgres"
	NameUnknown  Name = ""
)

type traits struct {
	quote        string
	numbered     bool     // $1, $2 ...
	deleteLimit  bool
	uniqueMarker []string // 小写匹配
}

var registry = map[Name]traits{
	NameMySQL:    {quote: "`", deleteLimit: true, uniqueMarker: []string{"duplicate entry", "duplicate key"}},
	NameSQLite:   {quote: `"`, uniqueMarker: []string{"unique constraint failed"}},
	NamePostgres: {quote: `"`, numbered: true, uniqueMarker: []string{"duplicate key", "unique constraint"}},
	NameUnknown:  {uniqueMarker: []string{"duplicate key", "unique constraint"}},
}

var aliases = map[string]Name{
	"mysql":      NameMySQL,
	"sqlite":     NameSQLite,
	"sqlite3":    NameSQLite,
	"postgres":   NamePostgres,
	"postgresql": NamePostgres,
	"pgx":        NamePostgres,
}

// Dialect 当前连接的方言；零值为 Unknown，不引用标识符也不改写占位符
type Dialect struct {
	name Name
}

// New 按 driver 名构造（大小写不敏感）
func New(driver string) Dialect {
	return Dialect{name: aliases[strings.ToLower(strings.TrimSpace(driver))]}
}

// FromDatabase 从连接或事务推断方言；未实现 IDialectNameProvider 时返回 Unknown
func FromDatabase(db core.IQuerier) Dialect {
	if p, ok := db.(core.IDialectNameProvider); ok {
		return New(p.GetDialectName())
	}
	return Dialect{}
}

func (d Dialect) Name() Name { return d.name }

// QuoteIdentifier 逐段引用带点限定名，如 "aaab_companys"."name"
func (d Dialect) QuoteIdentifier(name string) string {
	q := registry[d.name].quote
	if name == "" || q == "" {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p != "" {
			parts[i] = q + p + q
		}
	}
	return strings.Join(parts, ".")
}

// Rebind 把 ? 依次改写为方言占位符。不识别字符串字面量中的 ?，调用方应始终参数化传值。
func (d Dialect) Rebind(query string) string {
	if !registry[d.name].numbered || !strings.Contains(query, "?") {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r != '?' {
			sb.WriteRune(r)
			continue
		}
		n++
		sb.WriteString("$" + strconv.Itoa(n))
	}
	return sb.String()
}

// SupportsDeleteLimit SQLite 需编译选项 SQLITE_ENABLE_UPDATE_DELETE_LIMIT，按不支持处理
func (d Dialect) SupportsDeleteLimit() bool {
	return registry[d.name].deleteLimit
}

// IsUniqueViolation 按驱动错误消息识别主键或唯一键冲突
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range registry[d.name].uniqueMarker {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
