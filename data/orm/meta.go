package orm

// FieldType 表示字段的逻辑类型，用于校验外键与目标主键是否一致。
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeText     FieldType = "text"
	TypeInteger  FieldType = "integer"
	TypeFloat    FieldType = "float"
	TypeBool     FieldType = "bool"
	TypeDateTime FieldType = "datetime"
)

// RelationKind 表示关联类型。
type RelationKind string

const (
	KindForeignKey RelationKind = "foreign_key"
	KindManyToMany RelationKind = "many_to_many"
)

// FieldMeta 描述字段元信息。
type FieldMeta struct {
	Name          string
	Column        string
	Type          FieldType
	PrimaryKey    bool
	AutoIncrement bool
	Nullable      bool
	// Relation 非空时表示该列是对应外键关联的承载列
	Relation string
}

// ModelMeta 描述模型级别元信息。
//
// 由 Schema 在声明期构建，Finalize 之后只读，可被任意多个查询并发共享。
type ModelMeta struct {
	Name       string
	Table      string
	Fields     []FieldMeta
	PrimaryKey string

	// Relations 以关联名索引，包含正向声明的关联与自动生成的反向关联
	Relations     map[string]*RelationMeta
	RelationOrder []string

	fieldIndex  map[string]int
	columnIndex map[string]int
}

// Field 按字段名查找字段。
func (m *ModelMeta) Field(name string) (FieldMeta, bool) {
	i, ok := m.fieldIndex[name]
	if !ok {
		return FieldMeta{}, false
	}
	return m.Fields[i], true
}

// FieldByColumn 按列名查找字段。
func (m *ModelMeta) FieldByColumn(column string) (FieldMeta, bool) {
	i, ok := m.columnIndex[column]
	if !ok {
		return FieldMeta{}, false
	}
	return m.Fields[i], true
}

// Columns 按声明顺序返回全部列名。
func (m *ModelMeta) Columns() []string {
	cols := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		cols[i] = f.Column
	}
	return cols
}

// PrimaryKeyField 返回主键字段。
func (m *ModelMeta) PrimaryKeyField() FieldMeta {
	f, _ := m.Field(m.PrimaryKey)
	return f
}

// PrimaryKeyColumn 返回主键列名。
func (m *ModelMeta) PrimaryKeyColumn() string {
	return m.PrimaryKeyField().Column
}

// Relation 按名称查找关联。
func (m *ModelMeta) Relation(name string) (*RelationMeta, bool) {
	rel, ok := m.Relations[name]
	return rel, ok
}

func (m *ModelMeta) addField(f FieldMeta) {
	m.fieldIndex[f.Name] = len(m.Fields)
	m.columnIndex[f.Column] = len(m.Fields)
	m.Fields = append(m.Fields, f)
}

func (m *ModelMeta) addRelation(rel *RelationMeta) {
	m.Relations[rel.Name] = rel
	m.RelationOrder = append(m.RelationOrder, rel.Name)
}

// RelationMeta 描述一条关联（正向或反向）。
//
// 正反两侧成对出现：若 A.r 指向 B，则 B.Relations[r.ReverseName] 存在、Reverse 为 true 且指回 A。
type RelationMeta struct {
	Name        string
	Kind        RelationKind
	Source      *ModelMeta
	Target      *ModelMeta
	Through     *ModelMeta
	ReverseName string
	Reverse     bool

	// Column 为外键列名，位于持有外键的一侧：正向时在 Source 表，反向时在 Target 表
	Column string

	// 多对多中间表上分别指向 Source 与 Target 主键的列
	ThroughSourceColumn string
	ThroughTargetColumn string
}

// ToMany 是否为一对多或多对多（结果需要聚合为集合）。
func (r *RelationMeta) ToMany() bool {
	return r.Kind == KindManyToMany || r.Reverse
}

// Inverse 返回对侧关联。
func (r *RelationMeta) Inverse() *RelationMeta {
	if r.Target == nil {
		return nil
	}
	return r.Target.Relations[r.ReverseName]
}
