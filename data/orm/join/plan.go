package join

import (
	"joinery/data/orm"
	"joinery/data/orm/alias"
	"joinery/data/orm/fragment"
)

// Node JOIN 树上的一个挂载点。根节点 Relation 为空、Alias 为空。
type Node struct {
	Path     Path
	Model    *orm.ModelMeta
	Relation *orm.RelationMeta
	Alias    alias.Token
	Parent   *Node
	Children []*Node

	// Columns 本节点选出的列（按表中顺序）
	Columns []string

	// 多对多挂载点的中间表别名与选出的中间表列
	ThroughAlias   alias.Token
	ThroughColumns []string
}

// Table 返回节点在 SQL 中的表名（带别名）。
func (n *Node) Table() string {
	return fragment.TableAlias(string(n.Alias), n.Model.Table)
}

// ThroughTable 返回中间表在 SQL 中的名称；非多对多节点返回空串。
func (n *Node) ThroughTable() string {
	if n.ThroughAlias == "" {
		return ""
	}
	return fragment.TableAlias(string(n.ThroughAlias), n.Relation.Through.Table)
}

// Label 返回本节点列在结果集中的输出名。
func (n *Node) Label(column string) string {
	return fragment.ColumnLabel(string(n.Alias), column)
}

// ThroughLabel 返回中间表列在结果集中的输出名。
func (n *Node) ThroughLabel(column string) string {
	return fragment.ColumnLabel(string(n.ThroughAlias), column)
}

// IsRoot 是否为根节点。
func (n *Node) IsRoot() bool {
	return n.Parent == nil
}

// Join 一条 LEFT OUTER JOIN 子句。
type Join struct {
	Table   string
	Alias   alias.Token
	On      string
	Path    Path
	Through bool
}

// Reference 返回 "<table> <alias>_<table>"。
func (j Join) Reference() string {
	return fragment.TableReference(string(j.Alias), j.Table)
}

// SQL 返回完整的 JOIN 子句。
func (j Join) SQL() string {
	return "LEFT OUTER JOIN " + j.Reference() + " ON " + j.On
}

// Plan 一次查询的 JOIN 解析结果：去重后的 JOIN 树、JOIN 子句序列与带别名的列清单。
type Plan struct {
	Root    *orm.ModelMeta
	From    string
	Joins   []Join
	Columns []string

	// Nodes 以路径签名（根为空串）索引全部节点
	Nodes map[string]*Node

	root  *Node
	order []*Node
}

// Tree 返回根节点。
func (p *Plan) Tree() *Node {
	return p.root
}

// Node 按路径查找节点。
func (p *Plan) Node(path Path) (*Node, bool) {
	n, ok := p.Nodes[path.String()]
	return n, ok
}

// Walk 按创建顺序（父节点先于子节点）遍历全部节点。
func (p *Plan) Walk(fn func(*Node)) {
	for _, n := range p.order {
		fn(n)
	}
}

// AliasMap 返回路径签名到目标表令牌的映射，不含根。
func (p *Plan) AliasMap() map[string]alias.Token {
	out := make(map[string]alias.Token, len(p.Nodes))
	for sig, n := range p.Nodes {
		if !n.IsRoot() {
			out[sig] = n.Alias
		}
	}
	return out
}

// ThroughAliasMap 返回多对多路径签名到中间表令牌的映射。
func (p *Plan) ThroughAliasMap() map[string]alias.Token {
	out := make(map[string]alias.Token)
	for sig, n := range p.Nodes {
		if n.ThroughAlias != "" {
			out[sig] = n.ThroughAlias
		}
	}
	return out
}

// HasToMany 是否存在会导致根行重复的一对多/多对多挂载。
func (p *Plan) HasToMany() bool {
	for _, n := range p.order {
		if n.Relation != nil && n.Relation.ToMany() {
			return true
		}
	}
	return false
}
