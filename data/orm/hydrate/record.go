package hydrate

import "joinery/data/orm"

// Record 组装后的一条模型记录。
//
// Values 以字段名为键；一对一关联放在 One，一对多/多对多关联放在 Many，
// 多对多挂载的目标记录通过 Through 携带对应的中间表记录。
type Record struct {
	Model   *orm.ModelMeta
	Values  map[string]any
	Through *Record

	one       map[string]*Record
	many      map[string][]*Record
	manyIndex map[string]map[any]struct{}
}

func newRecord(model *orm.ModelMeta) *Record {
	return &Record{
		Model:  model,
		Values: make(map[string]any, len(model.Fields)),
	}
}

// Get 返回字段值。
func (r *Record) Get(field string) any {
	return r.Values[field]
}

// PK 返回主键值。
func (r *Record) PK() any {
	return r.Values[r.Model.PrimaryKey]
}

// One 返回一对一关联的记录，未加载或为空时返回 nil。
func (r *Record) One(relation string) *Record {
	return r.one[relation]
}

// Many 返回一对多/多对多关联的记录集合，按首次出现的顺序排列。
func (r *Record) Many(relation string) []*Record {
	return r.many[relation]
}

// Loaded 关联是否已被组装（即使结果为空）。
func (r *Record) Loaded(relation string) bool {
	if _, ok := r.one[relation]; ok {
		return true
	}
	_, ok := r.many[relation]
	return ok
}

func (r *Record) setOne(relation string, child *Record) *Record {
	if r.one == nil {
		r.one = make(map[string]*Record)
	}
	if existing := r.one[relation]; existing != nil {
		return existing
	}
	r.one[relation] = child
	return child
}

// markLoaded 让一对多关联在没有任何行命中时也返回空集合而不是未加载
func (r *Record) markLoaded(relation string, toMany bool) {
	if toMany {
		if r.many == nil {
			r.many = make(map[string][]*Record)
		}
		if _, ok := r.many[relation]; !ok {
			r.many[relation] = []*Record{}
		}
		return
	}
	if r.one == nil {
		r.one = make(map[string]*Record)
	}
	if _, ok := r.one[relation]; !ok {
		r.one[relation] = nil
	}
}

// addMany 按主键去重追加，返回集合中代表该主键的记录
func (r *Record) addMany(relation string, child *Record) *Record {
	if r.many == nil {
		r.many = make(map[string][]*Record)
	}
	if r.manyIndex == nil {
		r.manyIndex = make(map[string]map[any]struct{})
	}
	idx := r.manyIndex[relation]
	if idx == nil {
		idx = make(map[any]struct{})
		r.manyIndex[relation] = idx
	}
	pk := child.PK()
	if _, ok := idx[pk]; ok {
		for _, existing := range r.many[relation] {
			if existing.PK() == pk {
				return existing
			}
		}
	}
	idx[pk] = struct{}{}
	r.many[relation] = append(r.many[relation], child)
	return child
}
