// Package join 把根模型上的一组关联路径解析为去重后的 JOIN 树。
//
// 解析是按查询进行的纯计算，不同查询可完全并行；只有遇到尚未注册的关联时
// 才会触发一次注册表写入。
package join

import (
	"context"

	"joinery/data/orm"
	"joinery/data/orm/alias"
	"joinery/data/orm/fragment"
	"joinery/errors"
	"joinery/logging"
)

// Option 配置 Resolver。
type Option func(*Resolver)

// WithLogger 设置日志。
func WithLogger(logger logging.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Resolver 关联路径解析器。
type Resolver struct {
	registry *alias.Registry
	logger   logging.Logger
}

// NewResolver 创建解析器。
func NewResolver(registry *alias.Registry, opts ...Option) *Resolver {
	r := &Resolver{
		registry: registry,
		logger:   logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry 返回解析器使用的别名注册表。
func (r *Resolver) Registry() *alias.Registry {
	return r.registry
}

// ResolveOption 单次解析的选项。
type ResolveOption func(*resolveOptions)

type resolveOptions struct {
	fields map[string][]string
}

// WithFields 只选出 path 所指节点的部分字段（字段名）；主键总是保留。path 为空串表示根。
func WithFields(path string, fields ...string) ResolveOption {
	return func(o *resolveOptions) {
		if o.fields == nil {
			o.fields = make(map[string][]string)
		}
		sig := ParsePath(path).String()
		o.fields[sig] = append(o.fields[sig], fields...)
	}
}

type resolveState struct {
	plan    *Plan
	opts    resolveOptions
	mounted map[alias.Key]int
	// labels 输出列标签 -> 产生它的 "表别名.列"
	labels map[string]string
}

// Resolve 解析 paths 并返回 JOIN 计划。
//
// 每条路径的每一跳都必须是当前模型上已声明的关联，否则返回 ErrCodeRelationNotFound。
// 共享前缀的路径复用同一组节点与别名，每个前缀只产生一次 JOIN。
func (r *Resolver) Resolve(root *orm.ModelMeta, paths []Path, opts ...ResolveOption) (*Plan, error) {
	if root == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "根模型为空")
	}

	st := &resolveState{mounted: make(map[alias.Key]int), labels: make(map[string]string)}
	for _, opt := range opts {
		opt(&st.opts)
	}

	rootNode := &Node{Path: Path{}, Model: root}
	st.plan = &Plan{
		Root:  root,
		From:  root.Table,
		Nodes: map[string]*Node{"": rootNode},
		root:  rootNode,
	}
	if err := st.selectColumns(rootNode); err != nil {
		return nil, err
	}
	st.plan.order = append(st.plan.order, rootNode)

	for _, path := range paths {
		if len(path) == 0 {
			return nil, errors.NewErrorf(errors.ErrCodeInvalidInput, "%s: 关联路径为空", root.Name)
		}
		current := rootNode
		for i, hop := range path {
			prefix := path.Prefix(i + 1)
			if node, ok := st.plan.Nodes[prefix.String()]; ok {
				current = node
				continue
			}
			node, err := r.mount(st, current, hop, prefix)
			if err != nil {
				return nil, err
			}
			current = node
		}
	}

	for sig := range st.opts.fields {
		if _, ok := st.plan.Nodes[sig]; !ok {
			return nil, errors.NewErrorf(errors.ErrCodeInvalidInput, "字段子集指向未请求的路径 %q", sig)
		}
	}

	r.logger.Debug(context.Background(), "关联路径解析完成",
		logging.String("root", root.Name),
		logging.Int("paths", len(paths)),
		logging.Int("joins", len(st.plan.Joins)),
	)
	return st.plan, nil
}

func (r *Resolver) mount(st *resolveState, parent *Node, hop string, prefix Path) (*Node, error) {
	rel, ok := parent.Model.Relation(hop)
	if !ok {
		return nil, errors.NewErrorf(errors.ErrCodeRelationNotFound,
			"模型 %s 上不存在关联 %q（路径 %s）", parent.Model.Name, hop, prefix).
			WithContext("model", parent.Model.Name).
			WithContext("path", prefix.String())
	}

	key := alias.Key{Model: parent.Model.Name, Relation: hop}
	n := st.mounted[key]
	st.mounted[key]++

	tok, err := r.token(parent.Model, rel, key, n)
	if err != nil {
		return nil, err
	}

	node := &Node{
		Path:     prefix,
		Model:    rel.Target,
		Relation: rel,
		Alias:    tok,
		Parent:   parent,
	}

	targetPK := rel.Target.PrimaryKeyColumn()
	parentPK := parent.Model.PrimaryKeyColumn()

	switch {
	case rel.Kind == orm.KindManyToMany:
		throughKey := key
		throughKey.Through = true
		throughTok, err := r.registry.Variant(throughKey, n)
		if err != nil {
			return nil, err
		}
		node.ThroughAlias = throughTok
		throughTable := node.ThroughTable()

		st.plan.Joins = append(st.plan.Joins,
			Join{
				Table:   rel.Through.Table,
				Alias:   throughTok,
				On:      fragment.JoinCondition(throughTable, rel.ThroughSourceColumn, parent.Table(), parentPK),
				Path:    prefix,
				Through: true,
			},
			Join{
				Table: rel.Target.Table,
				Alias: tok,
				On:    fragment.JoinCondition(node.Table(), targetPK, throughTable, rel.ThroughTargetColumn),
				Path:  prefix,
			},
		)

	case rel.Reverse:
		st.plan.Joins = append(st.plan.Joins, Join{
			Table: rel.Target.Table,
			Alias: tok,
			On:    fragment.JoinCondition(node.Table(), rel.Column, parent.Table(), parentPK),
			Path:  prefix,
		})

	default:
		st.plan.Joins = append(st.plan.Joins, Join{
			Table: rel.Target.Table,
			Alias: tok,
			On:    fragment.JoinCondition(node.Table(), targetPK, parent.Table(), rel.Column),
			Path:  prefix,
		})
	}

	if err := st.selectColumns(node); err != nil {
		return nil, err
	}

	parent.Children = append(parent.Children, node)
	st.plan.Nodes[prefix.String()] = node
	st.plan.order = append(st.plan.order, node)
	return node, nil
}

// token 返回关联第 n 次挂载的令牌，基础键缺失时先按声明注册。
func (r *Resolver) token(model *orm.ModelMeta, rel *orm.RelationMeta, key alias.Key, n int) (alias.Token, error) {
	tok := r.registry.Lookup(key.Model, key.Relation)
	if tok == "" {
		if err := r.registry.Register(model, rel.Name, rel.ReverseName); err != nil {
			return "", err
		}
	}
	if n == 0 && tok != "" {
		return tok, nil
	}
	return r.registry.Variant(key, n)
}

func (st *resolveState) selectColumns(node *Node) error {
	model := node.Model
	subset, err := columnSubset(model, st.opts.fields[node.Path.String()])
	if err != nil {
		return err
	}

	node.Columns = filterColumns(model.Columns(), subset)
	if err := st.claimLabels(node.Alias, model.Table, node.Columns); err != nil {
		return err
	}
	st.plan.Columns = append(st.plan.Columns,
		fragment.ColumnReferences(string(node.Alias), model.Table, model.Columns(), subset)...)

	if node.ThroughAlias != "" {
		through := node.Relation.Through
		node.ThroughColumns = through.Columns()
		if err := st.claimLabels(node.ThroughAlias, through.Table, node.ThroughColumns); err != nil {
			return err
		}
		st.plan.Columns = append(st.plan.Columns,
			fragment.ColumnReferences(string(node.ThroughAlias), through.Table, through.Columns(), nil)...)
	}
	return nil
}

// claimLabels 登记一组输出列标签；根表列名与 "<令牌>_<列>" 撞名时返回 ErrCodeAliasConflict，
// 否则结果组装会静默取错列。
func (st *resolveState) claimLabels(tok alias.Token, table string, columns []string) error {
	for _, col := range columns {
		label := fragment.ColumnLabel(string(tok), col)
		ref := fragment.TableAlias(string(tok), table) + "." + col
		if prev, taken := st.labels[label]; taken {
			return errors.NewErrorf(errors.ErrCodeAliasConflict,
				"输出列标签 %q 同时对应 %s 与 %s", label, prev, ref).
				WithContext("label", label)
		}
		st.labels[label] = ref
	}
	return nil
}

func columnSubset(model *orm.ModelMeta, fields []string) ([]string, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	cols := []string{model.PrimaryKeyColumn()}
	for _, name := range fields {
		f, ok := model.Field(name)
		if !ok {
			return nil, errors.NewErrorf(errors.ErrCodeInvalidInput, "模型 %s 上不存在字段 %q", model.Name, name).
				WithContext("model", model.Name)
		}
		cols = append(cols, f.Column)
	}
	return cols, nil
}

func filterColumns(columns, subset []string) []string {
	if len(subset) == 0 {
		return columns
	}
	keep := make(map[string]struct{}, len(subset))
	for _, c := range subset {
		keep[c] = struct{}{}
	}
	out := make([]string, 0, len(subset))
	for _, c := range columns {
		if _, ok := keep[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
