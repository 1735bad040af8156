package orm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	dbsql "joinery/data/db/sql"
	"joinery/errors"
	"joinery/logging"
)

// FieldDef 声明一个普通字段。Column 为空时与 Name 相同。
type FieldDef struct {
	Name          string
	Column        string
	Type          FieldType
	PrimaryKey    bool
	AutoIncrement bool
	Nullable      bool
}

// RelationDef 声明一条正向关联。
type RelationDef struct {
	Name   string
	Kind   RelationKind
	Target string
	// Through 多对多必填：中间模型名
	Through string
	// ReverseName 目标模型上反向关联的名称，默认 lower(源模型名)+"s"
	ReverseName string
	// Column 外键列名，默认与 Name 相同
	Column string
	// Type 可选：显式声明的外键类型，必须与目标主键类型一致
	Type FieldType
	// 中间表上指向源/目标的列名，默认分别为 lower(源模型名)、lower(目标模型名)
	ThroughSourceColumn string
	ThroughTargetColumn string
}

// ModelDef 声明一个模型。Table 为空时默认 lower(Name)+"s"；未声明主键时自动补充自增 id。
type ModelDef struct {
	Name      string
	Table     string
	Fields    []FieldDef
	Relations []RelationDef
}

// RelationRegistrar 接收每条正向关联的注册，通常由别名注册表实现。
type RelationRegistrar interface {
	Register(source *ModelMeta, relation, reverse string) error
}

// SchemaOption 配置 Schema。
type SchemaOption func(*Schema)

// WithLogger 设置声明期日志。
func WithLogger(logger logging.Logger) SchemaOption {
	return func(s *Schema) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Schema 收集模型声明并在 Finalize 时解析关联、补全反向关联、校验定义。
//
// Finalize 之后模型元信息不可变；所有定义错误都在此阶段以 ErrCodeDefinition 返回，
// 保证在任何查询执行之前暴露。
type Schema struct {
	mu        sync.RWMutex
	models    map[string]*ModelMeta
	relations map[string][]RelationDef
	order     []string
	finalized bool

	// failed Finalize 中途失败后模型已部分改写，之后的 Define/Finalize 一律返回该错误
	failed error
	logger logging.Logger
}

// NewSchema 创建空的模型集合。
func NewSchema(opts ...SchemaOption) *Schema {
	s := &Schema{
		models:    make(map[string]*ModelMeta),
		relations: make(map[string][]RelationDef),
		logger:    logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Define 声明一个或多个模型。关联目标可以在之后声明，直到 Finalize 才解析。
func (s *Schema) Define(defs ...ModelDef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed != nil {
		return s.failed
	}
	if s.finalized {
		return errors.NewError(errors.ErrCodeDefinition, "schema 已完成定义，不能再声明模型")
	}
	for _, def := range defs {
		meta, err := buildModel(def)
		if err != nil {
			return err
		}
		if _, exists := s.models[meta.Name]; exists {
			return definitionError(def.Name, "", "模型重复声明")
		}
		s.models[meta.Name] = meta
		s.relations[meta.Name] = def.Relations
		s.order = append(s.order, meta.Name)
	}
	return nil
}

// Finalize 解析全部关联并把正向关联交给 registrar 注册别名（registrar 可为 nil）。
//
// 失败不可重试：同一个 Schema 之后的 Define/Finalize 都返回首次失败的错误。
func (s *Schema) Finalize(registrar RelationRegistrar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed != nil {
		return s.failed
	}
	if s.finalized {
		return nil
	}
	if err := s.finalize(registrar); err != nil {
		s.failed = err
		return err
	}
	return nil
}

func (s *Schema) finalize(registrar RelationRegistrar) error {

	var forward []*RelationMeta
	for _, name := range s.order {
		source := s.models[name]
		for _, def := range s.relations[name] {
			rel, err := s.resolveForward(source, def)
			if err != nil {
				return err
			}
			forward = append(forward, rel)
		}
	}

	for _, rel := range forward {
		if err := attachReverse(rel); err != nil {
			return err
		}
	}

	if registrar != nil {
		for _, rel := range forward {
			if err := registrar.Register(rel.Source, rel.Name, rel.ReverseName); err != nil {
				return err
			}
		}
	}

	s.finalized = true
	s.logger.Info(context.Background(), "模型关联定义完成",
		logging.Int("models", len(s.order)),
		logging.Int("relations", len(forward)),
	)
	return nil
}

// Model 按名称查找模型。
func (s *Schema) Model(name string) (*ModelMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[name]
	return m, ok
}

// MustModel 按名称查找模型，不存在时 panic（用于声明期常量化引用）。
func (s *Schema) MustModel(name string) *ModelMeta {
	m, ok := s.Model(name)
	if !ok {
		panic(fmt.Sprintf("orm: model %q is not declared", name))
	}
	return m
}

// Models 按声明顺序返回全部模型。
func (s *Schema) Models() []*ModelMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ModelMeta, len(s.order))
	for i, name := range s.order {
		out[i] = s.models[name]
	}
	return out
}

// Finalized 是否已完成定义。
func (s *Schema) Finalized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalized
}

func buildModel(def ModelDef) (*ModelMeta, error) {
	if !dbsql.IsSafeName(def.Name) {
		return nil, definitionError(def.Name, "", "模型名不合法")
	}
	table := def.Table
	if table == "" {
		table = strings.ToLower(def.Name) + "s"
	}
	if !dbsql.IsPlainName(table) {
		return nil, definitionError(def.Name, "", fmt.Sprintf("表名 %q 不合法或为 SQL 保留字", table))
	}

	meta := &ModelMeta{
		Name:        def.Name,
		Table:       table,
		Relations:   make(map[string]*RelationMeta),
		fieldIndex:  make(map[string]int),
		columnIndex: make(map[string]int),
	}

	for _, fd := range def.Fields {
		f := FieldMeta{
			Name:          fd.Name,
			Column:        fd.Column,
			Type:          fd.Type,
			PrimaryKey:    fd.PrimaryKey,
			AutoIncrement: fd.AutoIncrement,
			Nullable:      fd.Nullable,
		}
		if f.Column == "" {
			f.Column = f.Name
		}
		if f.Type == "" {
			f.Type = TypeString
		}
		if err := checkFieldFree(meta, f); err != nil {
			return nil, err
		}
		if f.PrimaryKey {
			if meta.PrimaryKey != "" {
				return nil, definitionError(def.Name, f.Name, "只能声明一个主键")
			}
			meta.PrimaryKey = f.Name
		}
		meta.addField(f)
	}

	if meta.PrimaryKey == "" {
		id := FieldMeta{Name: "id", Column: "id", Type: TypeInteger, PrimaryKey: true, AutoIncrement: true}
		if err := checkFieldFree(meta, id); err != nil {
			return nil, definitionError(def.Name, "id", "未声明主键且已有名为 id 的非主键字段")
		}
		meta.PrimaryKey = id.Name
		meta.Fields = append([]FieldMeta{id}, meta.Fields...)
		reindex(meta)
	}
	return meta, nil
}

func (s *Schema) resolveForward(source *ModelMeta, def RelationDef) (*RelationMeta, error) {
	if !dbsql.IsSafeName(def.Name) {
		return nil, definitionError(source.Name, def.Name, "关联名不合法")
	}
	if _, exists := source.Relations[def.Name]; exists {
		return nil, definitionError(source.Name, def.Name, "关联重复声明")
	}
	target, ok := s.models[def.Target]
	if !ok {
		return nil, definitionError(source.Name, def.Name, fmt.Sprintf("目标模型 %q 未声明", def.Target))
	}

	rel := &RelationMeta{
		Name:        def.Name,
		Kind:        def.Kind,
		Source:      source,
		Target:      target,
		ReverseName: def.ReverseName,
	}
	if rel.ReverseName == "" {
		rel.ReverseName = strings.ToLower(source.Name) + "s"
	}
	if !dbsql.IsSafeName(rel.ReverseName) {
		return nil, definitionError(source.Name, def.Name, fmt.Sprintf("反向名 %q 不合法", rel.ReverseName))
	}

	targetPK := target.PrimaryKeyField()
	switch def.Kind {
	case KindForeignKey:
		rel.Column = def.Column
		if rel.Column == "" {
			rel.Column = def.Name
		}
		if def.Type != "" && def.Type != targetPK.Type {
			return nil, definitionError(source.Name, def.Name,
				fmt.Sprintf("外键类型 %s 与 %s 主键类型 %s 不一致", def.Type, target.Name, targetPK.Type))
		}
		fk := FieldMeta{Name: def.Name, Column: rel.Column, Type: targetPK.Type, Nullable: true, Relation: def.Name}
		if err := checkFieldFree(source, fk); err != nil {
			return nil, err
		}
		source.addField(fk)

	case KindManyToMany:
		through, ok := s.models[def.Through]
		if def.Through == "" || !ok {
			return nil, definitionError(source.Name, def.Name, fmt.Sprintf("多对多关联的中间模型 %q 未声明", def.Through))
		}
		if _, exists := source.Field(def.Name); exists {
			return nil, definitionError(source.Name, def.Name, "关联名与已有字段冲突")
		}
		rel.Through = through
		rel.ThroughSourceColumn = def.ThroughSourceColumn
		if rel.ThroughSourceColumn == "" {
			rel.ThroughSourceColumn = strings.ToLower(source.Name)
		}
		rel.ThroughTargetColumn = def.ThroughTargetColumn
		if rel.ThroughTargetColumn == "" {
			rel.ThroughTargetColumn = strings.ToLower(target.Name)
		}
		if rel.ThroughSourceColumn == rel.ThroughTargetColumn {
			return nil, definitionError(source.Name, def.Name, "中间表两侧外键列同名，自关联多对多需显式指定列名")
		}
		sourcePK := source.PrimaryKeyField()
		for _, f := range []FieldMeta{
			{Name: rel.ThroughSourceColumn, Column: rel.ThroughSourceColumn, Type: sourcePK.Type},
			{Name: rel.ThroughTargetColumn, Column: rel.ThroughTargetColumn, Type: targetPK.Type},
		} {
			if err := checkFieldFree(through, f); err != nil {
				return nil, err
			}
			through.addField(f)
		}

	default:
		return nil, definitionError(source.Name, def.Name, fmt.Sprintf("未知关联类型 %q", def.Kind))
	}

	source.addRelation(rel)
	return rel, nil
}

// attachReverse 在目标模型上生成对称的反向关联，名称冲突即为定义错误。
func attachReverse(rel *RelationMeta) error {
	target := rel.Target
	if _, exists := target.Relations[rel.ReverseName]; exists {
		return definitionError(target.Name, rel.ReverseName,
			fmt.Sprintf("反向名与已有关联冲突（来自 %s.%s），请为关联指定不同的反向名", rel.Source.Name, rel.Name))
	}
	if _, exists := target.Field(rel.ReverseName); exists {
		return definitionError(target.Name, rel.ReverseName,
			fmt.Sprintf("反向名与已有字段冲突（来自 %s.%s）", rel.Source.Name, rel.Name))
	}

	target.addRelation(&RelationMeta{
		Name:                rel.ReverseName,
		Kind:                rel.Kind,
		Source:              target,
		Target:              rel.Source,
		Through:             rel.Through,
		ReverseName:         rel.Name,
		Reverse:             true,
		Column:              rel.Column,
		ThroughSourceColumn: rel.ThroughTargetColumn,
		ThroughTargetColumn: rel.ThroughSourceColumn,
	})
	return nil
}

func checkFieldFree(m *ModelMeta, f FieldMeta) error {
	if !dbsql.IsSafeName(f.Name) {
		return definitionError(m.Name, f.Name, "字段名不合法")
	}
	if !dbsql.IsPlainName(f.Column) {
		return definitionError(m.Name, f.Name, fmt.Sprintf("列名 %q 不合法或为 SQL 保留字", f.Column))
	}
	if _, exists := m.fieldIndex[f.Name]; exists {
		return definitionError(m.Name, f.Name, "字段重复声明")
	}
	if _, exists := m.columnIndex[f.Column]; exists {
		return definitionError(m.Name, f.Name, fmt.Sprintf("列 %q 已被占用", f.Column))
	}
	return nil
}

func reindex(m *ModelMeta) {
	m.fieldIndex = make(map[string]int, len(m.Fields))
	m.columnIndex = make(map[string]int, len(m.Fields))
	for i, f := range m.Fields {
		m.fieldIndex[f.Name] = i
		m.columnIndex[f.Column] = i
	}
}

func definitionError(model, name, msg string) error {
	err := errors.NewErrorf(errors.ErrCodeDefinition, "%s: %s", qualified(model, name), msg)
	return err.WithContext("model", model)
}

func qualified(model, name string) string {
	if name == "" {
		return model
	}
	return model + "." + name
}
