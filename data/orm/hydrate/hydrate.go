// Package hydrate 把带别名列的扁平结果行折叠为嵌套记录。
//
// 列按 JOIN 计划中每个节点的别名切片；根记录按主键合并，子集合按父记录内的主键去重，
// LEFT JOIN 未命中（主键为 NULL）的片段连同其子树一起跳过。
package hydrate

import (
	"joinery/data/db"
	"joinery/data/orm"
	"joinery/data/orm/join"
	"joinery/errors"
)

type slot struct {
	field string
	pos   int
}

type segment struct {
	node    *join.Node
	slots   []slot
	pkPos   int
	through []slot
}

// Hydrate 消费 rows 并按 plan 组装根记录，顺序为根主键首次出现的顺序。调用方负责关闭 rows。
func Hydrate(plan *join.Plan, rows db.IRows) ([]*Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "读取结果列失败")
	}
	positions := make(map[string]int, len(columns))
	for i, c := range columns {
		positions[c] = i
	}

	segments := make(map[*join.Node]*segment, len(plan.Nodes))
	var buildErr error
	plan.Walk(func(n *join.Node) {
		if buildErr != nil {
			return
		}
		seg, err := newSegment(n, positions)
		if err != nil {
			buildErr = err
			return
		}
		segments[n] = seg
	})
	if buildErr != nil {
		return nil, buildErr
	}

	var (
		roots   []*Record
		rootIdx = make(map[any]*Record)
		values  = make([]any, len(columns))
		dest    = make([]any, len(columns))
	)
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeDatabase, "扫描结果行失败")
		}

		rootSeg := segments[plan.Tree()]
		pk := normalize(values[rootSeg.pkPos])
		if pk == nil {
			continue
		}
		root, ok := rootIdx[pk]
		if !ok {
			root = rootSeg.record(values)
			rootIdx[pk] = root
			roots = append(roots, root)
		}
		fold(root, plan.Tree(), segments, values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "遍历结果行失败")
	}
	return roots, nil
}

func fold(parent *Record, node *join.Node, segments map[*join.Node]*segment, values []any) {
	for _, child := range node.Children {
		rel := child.Relation
		parent.markLoaded(rel.Name, rel.ToMany())

		seg := segments[child]
		if normalize(values[seg.pkPos]) == nil {
			continue
		}

		rec := seg.record(values)
		if rel.ToMany() {
			rec = parent.addMany(rel.Name, rec)
		} else {
			rec = parent.setOne(rel.Name, rec)
		}
		backLink(rec, parent, rel.Inverse())
		fold(rec, child, segments, values)
	}
}

// backLink 在子记录上填充指回父记录的反向关联
func backLink(child, parent *Record, inverse *orm.RelationMeta) {
	if inverse == nil {
		return
	}
	if inverse.ToMany() {
		child.addMany(inverse.Name, parent)
	} else {
		child.setOne(inverse.Name, parent)
	}
}

func newSegment(n *join.Node, positions map[string]int) (*segment, error) {
	seg := &segment{node: n, pkPos: -1}
	pkCol := n.Model.PrimaryKeyColumn()
	for _, col := range n.Columns {
		label := n.Label(col)
		pos, ok := positions[label]
		if !ok {
			return nil, errors.NewErrorf(errors.ErrCodeInvalidInput, "结果集中缺少列 %q（路径 %s）", label, n.Path)
		}
		f, _ := n.Model.FieldByColumn(col)
		seg.slots = append(seg.slots, slot{field: f.Name, pos: pos})
		if col == pkCol {
			seg.pkPos = pos
		}
	}
	if seg.pkPos < 0 {
		return nil, errors.NewErrorf(errors.ErrCodeInvalidInput, "路径 %q 未选出主键列 %s", n.Path.String(), pkCol)
	}

	if n.ThroughAlias != "" {
		through := n.Relation.Through
		for _, col := range n.ThroughColumns {
			label := n.ThroughLabel(col)
			pos, ok := positions[label]
			if !ok {
				return nil, errors.NewErrorf(errors.ErrCodeInvalidInput, "结果集中缺少中间表列 %q（路径 %s）", label, n.Path)
			}
			f, _ := through.FieldByColumn(col)
			seg.through = append(seg.through, slot{field: f.Name, pos: pos})
		}
	}
	return seg, nil
}

func (s *segment) record(values []any) *Record {
	rec := newRecord(s.node.Model)
	for _, sl := range s.slots {
		rec.Values[sl.field] = normalize(values[sl.pos])
	}
	if len(s.through) > 0 {
		through := newRecord(s.node.Relation.Through)
		for _, sl := range s.through {
			through.Values[sl.field] = normalize(values[sl.pos])
		}
		rec.Through = through
	}
	return rec
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
