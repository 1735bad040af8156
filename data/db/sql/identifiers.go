package sql

import "strings"

// IsSafeIdentifier 判断标识符是否为“安全的数据库标识符”。
//
// 允许形式：
//   - 单一标识符：foo, bar_1
//   - 带点的限定名：ab12_users.company
//
// 每段首字符必须是 [A-Za-z_]，后续字符为 [A-Za-z0-9_]。
// 只做 ASCII 校验，足以拦截空格、分号、引号等注入片段。
func IsSafeIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if !IsSafeName(part) {
			return false
		}
	}
	return true
}

// IsSafeName 判断不带点的单段名称（表名、列名、别名令牌）是否安全。
func IsSafeName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch == '_':
		case ch >= '0' && ch <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// reservedWords 各方言共同保留、不加引号就无法作为表名或列名出现的关键字（小写）。
// 读取侧的 SELECT/JOIN 片段不加引号，因此声明期必须拒绝这些名称。
var reservedWords = map[string]struct{}{
	"all": {}, "alter": {}, "and": {}, "as": {}, "asc": {}, "between": {}, "by": {},
	"case": {}, "check": {}, "collate": {}, "column": {}, "constraint": {}, "create": {},
	"cross": {}, "default": {}, "delete": {}, "desc": {}, "distinct": {}, "drop": {},
	"else": {}, "end": {}, "except": {}, "exists": {}, "foreign": {}, "from": {},
	"full": {}, "group": {}, "having": {}, "in": {}, "index": {}, "inner": {},
	"insert": {}, "intersect": {}, "into": {}, "is": {}, "join": {}, "key": {},
	"left": {}, "like": {}, "limit": {}, "natural": {}, "not": {}, "null": {},
	"offset": {}, "on": {}, "or": {}, "order": {}, "outer": {}, "primary": {},
	"references": {}, "right": {}, "select": {}, "set": {}, "table": {}, "then": {},
	"to": {}, "union": {}, "unique": {}, "update": {}, "using": {}, "values": {},
	"when": {}, "where": {}, "with": {},
}

// IsReservedWord 判断名称是否为 SQL 保留字（大小写不敏感）。
func IsReservedWord(name string) bool {
	_, ok := reservedWords[strings.ToLower(name)]
	return ok
}

// IsPlainName 判断名称能否不加引号直接写进 SQL：IsSafeName 且不是保留字。
func IsPlainName(name string) bool {
	return IsSafeName(name) && !IsReservedWord(name)
}
