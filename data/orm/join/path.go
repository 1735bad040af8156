package join

import "strings"

// Path 从根模型出发的关联名序列。
type Path []string

// ParsePath 解析 "a.b.c" 或 "a__b__c" 形式的路径；空段被忽略。
func ParsePath(s string) Path {
	sep := "."
	if strings.Contains(s, "__") {
		sep = "__"
	}
	var p Path
	for _, hop := range strings.Split(s, sep) {
		if hop = strings.TrimSpace(hop); hop != "" {
			p = append(p, hop)
		}
	}
	return p
}

// ParsePaths 依次解析多条路径。
func ParsePaths(ss ...string) []Path {
	out := make([]Path, 0, len(ss))
	for _, s := range ss {
		out = append(out, ParsePath(s))
	}
	return out
}

// String 返回以点分隔的路径签名，根为空串。
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Prefix 返回前 n 跳组成的新路径。
func (p Path) Prefix(n int) Path {
	out := make(Path, n)
	copy(out, p[:n])
	return out
}
