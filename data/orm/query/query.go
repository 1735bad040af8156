// Package query 组装并执行带关联预加载的 SELECT，并维护多对多中间表行。
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"joinery/cache"
	"joinery/data/db"
	"joinery/data/db/dialect"
	dbsql "joinery/data/db/sql"
	"joinery/data/orm"
	"joinery/data/orm/hydrate"
	"joinery/data/orm/join"
	"joinery/errors"
	"joinery/logging"
)

// PlanCache 按 (根模型, 路径, 字段子集) 缓存 JOIN 计划
type PlanCache = cache.Cache[string, *join.Plan]

// Option 配置 QuerySet
type Option func(*QuerySet)

// WithLogger 设置日志
func WithLogger(logger logging.Logger) Option {
	return func(q *QuerySet) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithPlanCache 启用计划缓存
func WithPlanCache(c *PlanCache) Option {
	return func(q *QuerySet) {
		q.plans = c
	}
}

// QuerySet 针对一个根模型的查询。SelectRelated/Only 返回新的 QuerySet，原对象不变，可安全复用。
type QuerySet struct {
	db       db.IDatabase
	resolver *join.Resolver
	model    *orm.ModelMeta

	related []string
	fields  map[string][]string

	plans  *PlanCache
	logger logging.Logger
}

// New 创建 QuerySet
func New(database db.IDatabase, resolver *join.Resolver, model *orm.ModelMeta, opts ...Option) *QuerySet {
	q := &QuerySet{
		db:       database,
		resolver: resolver,
		model:    model,
		logger:   logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Model 返回根模型
func (q *QuerySet) Model() *orm.ModelMeta {
	return q.model
}

// SelectRelated 追加需要预加载的关联路径（"a.b" 或 "a__b"）
func (q *QuerySet) SelectRelated(paths ...string) *QuerySet {
	c := q.clone()
	for _, p := range paths {
		if sig := join.ParsePath(p).String(); sig != "" {
			c.related = append(c.related, sig)
		}
	}
	return c
}

// Only 限定 path 所指节点只选出 fields（主键总会选出）；path 为空串表示根模型
func (q *QuerySet) Only(path string, fields ...string) *QuerySet {
	c := q.clone()
	sig := join.ParsePath(path).String()
	c.fields[sig] = append(c.fields[sig], fields...)
	return c
}

func (q *QuerySet) clone() *QuerySet {
	c := *q
	c.related = append([]string(nil), q.related...)
	c.fields = make(map[string][]string, len(q.fields))
	for k, v := range q.fields {
		c.fields[k] = append([]string(nil), v...)
	}
	return &c
}

// Plan 解析（或从缓存取出）当前 QuerySet 的 JOIN 计划
func (q *QuerySet) Plan() (*join.Plan, error) {
	resolve := func() (*join.Plan, error) {
		opts := make([]join.ResolveOption, 0, len(q.fields))
		for path, fields := range q.fields {
			opts = append(opts, join.WithFields(path, fields...))
		}
		return q.resolver.Resolve(q.model, join.ParsePaths(q.related...), opts...)
	}
	if q.plans == nil {
		return resolve()
	}
	return q.plans.GetOrLoad(q.planKey(), resolve)
}

func (q *QuerySet) planKey() string {
	var sb strings.Builder
	sb.WriteString(q.model.Name)
	sb.WriteString("|")
	sb.WriteString(strings.Join(q.related, ","))

	paths := make([]string, 0, len(q.fields))
	for p := range q.fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fields := append([]string(nil), q.fields[p]...)
		sort.Strings(fields)
		fmt.Fprintf(&sb, "|%s=%s", p, strings.Join(fields, ","))
	}
	return sb.String()
}

// Build 生成 SELECT 语句
func (q *QuerySet) Build() (string, []any, *join.Plan, error) {
	return q.build(0)
}

func (q *QuerySet) build(limit uint64) (string, []any, *join.Plan, error) {
	plan, err := q.Plan()
	if err != nil {
		return "", nil, nil, err
	}

	pkCol := q.model.PrimaryKeyColumn()
	rootPK := plan.From + "." + pkCol

	b := sq.Select(plan.Columns...).From(plan.From)
	for _, j := range plan.Joins {
		b = b.JoinClause(j.SQL())
	}
	if limit > 0 {
		if plan.HasToMany() {
			// 一对多展开会复制根行，LIMIT 必须作用在根主键上
			b = b.Where(fmt.Sprintf("%s IN (SELECT %s FROM %s ORDER BY %s LIMIT %d)",
				rootPK, pkCol, plan.From, pkCol, limit))
		} else {
			b = b.Limit(limit)
		}
	}
	// 根主键之后按各集合节点主键排序，使子集合顺序稳定
	orderBy := []string{rootPK}
	plan.Walk(func(n *join.Node) {
		if n.Relation != nil && n.Relation.ToMany() {
			orderBy = append(orderBy, n.Table()+"."+n.Model.PrimaryKeyColumn())
		}
	})
	b = b.OrderBy(orderBy...)

	query, args, err := b.ToSql()
	if err != nil {
		return "", nil, nil, errors.WrapError(err, errors.ErrCodeInternal, "组装 SELECT 失败")
	}
	return query, args, plan, nil
}

// All 执行查询并组装全部根记录
func (q *QuerySet) All(ctx context.Context) ([]*hydrate.Record, error) {
	return q.fetch(ctx, 0)
}

// First 返回按主键排序的第一条根记录及其全部预加载关联；没有记录时返回 ErrCodeNotFound
func (q *QuerySet) First(ctx context.Context) (*hydrate.Record, error) {
	records, err := q.fetch(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.NewErrorf(errors.ErrCodeNotFound, "%s: 记录未找到", q.model.Name)
	}
	return records[0], nil
}

func (q *QuerySet) fetch(ctx context.Context, limit uint64) ([]*hydrate.Record, error) {
	query, args, plan, err := q.build(limit)
	if err != nil {
		return nil, err
	}

	ctx = logging.NewContext(ctx, logging.String("model", q.model.Name))
	start := time.Now()
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapDatabaseError(q.logContext(ctx), err, "select "+q.model.Table)
	}
	defer rows.Close()

	records, err := hydrate.Hydrate(plan, rows)
	if err != nil {
		return nil, err
	}
	q.logger.Debug(ctx, "关联查询完成",
		logging.Strings("related", q.related),
		logging.Int("joins", len(plan.Joins)),
		logging.Int("records", len(records)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return records, nil
}

// Count 返回根模型的行数
func (q *QuerySet) Count(ctx context.Context) (int64, error) {
	query, args, err := sq.Select("COUNT(*)").From(q.model.Table).ToSql()
	if err != nil {
		return 0, errors.WrapError(err, errors.ErrCodeInternal, "组装 COUNT 失败")
	}
	var n int64
	if err := q.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.WrapDatabaseError(q.logContext(ctx), err, "count "+q.model.Table)
	}
	return n, nil
}

// Delete 按主键删除一行；不存在时返回 ErrCodeNotFound
func (q *QuerySet) Delete(ctx context.Context, pk any) error {
	res, err := dbsql.New(q.db).DeleteFrom(q.model.Table).
		Where(q.model.PrimaryKeyColumn()+" = ?", pk).
		Exec(ctx)
	if err != nil {
		return q.writeError(ctx, err, "delete "+q.model.Table)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewErrorf(errors.ErrCodeNotFound, "%s: 主键 %v 不存在", q.model.Name, pk)
	}
	return nil
}

// Create 插入一行；values 以字段名为键
func (q *QuerySet) Create(ctx context.Context, values map[string]any) error {
	if len(values) == 0 {
		return errors.NewErrorf(errors.ErrCodeInvalidInput, "%s: 没有要插入的字段", q.model.Name)
	}
	cols := make([]string, 0, len(values))
	vals := make([]any, 0, len(values))
	for _, f := range q.model.Fields {
		if v, ok := values[f.Name]; ok {
			cols = append(cols, f.Column)
			vals = append(vals, v)
		}
	}
	if len(cols) != len(values) {
		for name := range values {
			if _, ok := q.model.Field(name); !ok {
				return errors.NewErrorf(errors.ErrCodeInvalidInput, "%s: 未知字段 %q", q.model.Name, name)
			}
		}
	}

	_, err := dbsql.New(q.db).InsertInto(q.model.Table).Columns(cols...).Values(vals...).Exec(ctx)
	return q.writeError(ctx, err, "insert "+q.model.Table)
}

// Link 在多对多关联的中间表中插入一行 (sourcePK, targetPK)
func (q *QuerySet) Link(ctx context.Context, relation string, sourcePK, targetPK any) error {
	rel, err := q.manyToMany(relation)
	if err != nil {
		return err
	}
	_, err = dbsql.New(q.db).InsertInto(rel.Through.Table).
		Columns(rel.ThroughSourceColumn, rel.ThroughTargetColumn).
		Values(sourcePK, targetPK).
		Exec(ctx)
	return q.writeError(ctx, err, "link "+rel.Through.Table)
}

// Unlink 删除中间表中的 (sourcePK, targetPK) 行；不存在时返回 ErrCodeNotFound
func (q *QuerySet) Unlink(ctx context.Context, relation string, sourcePK, targetPK any) error {
	rel, err := q.manyToMany(relation)
	if err != nil {
		return err
	}
	res, err := dbsql.New(q.db).DeleteFrom(rel.Through.Table).
		Where(rel.ThroughSourceColumn+" = ?", sourcePK).
		Where(rel.ThroughTargetColumn+" = ?", targetPK).
		Limit(1).
		Exec(ctx)
	if err != nil {
		return q.writeError(ctx, err, "unlink "+rel.Through.Table)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewErrorf(errors.ErrCodeNotFound, "%s.%s: 关联行不存在", q.model.Name, relation)
	}
	return nil
}

// SetLinks 在一个事务内把 sourcePK 的多对多目标替换为 targetPKs；targetPKs 为空即清空
func (q *QuerySet) SetLinks(ctx context.Context, relation string, sourcePK any, targetPKs ...any) error {
	rel, err := q.manyToMany(relation)
	if err != nil {
		return err
	}
	err = db.InTx(ctx, q.db, func(tx db.ITransaction) error {
		w := dbsql.New(tx)
		if _, err := w.DeleteFrom(rel.Through.Table).
			Where(rel.ThroughSourceColumn+" = ?", sourcePK).
			Exec(ctx); err != nil {
			return err
		}
		if len(targetPKs) == 0 {
			return nil
		}
		ins := w.InsertInto(rel.Through.Table).Columns(rel.ThroughSourceColumn, rel.ThroughTargetColumn)
		for _, pk := range targetPKs {
			ins = ins.Values(sourcePK, pk)
		}
		_, err := ins.Exec(ctx)
		return err
	})
	return q.writeError(ctx, err, "set links "+rel.Through.Table)
}

func (q *QuerySet) manyToMany(relation string) (*orm.RelationMeta, error) {
	rel, ok := q.model.Relation(relation)
	if !ok {
		return nil, errors.NewErrorf(errors.ErrCodeRelationNotFound, "模型 %s 上不存在关联 %q", q.model.Name, relation)
	}
	if rel.Kind != orm.KindManyToMany {
		return nil, errors.NewErrorf(errors.ErrCodeInvalidInput, "%s.%s 不是多对多关联", q.model.Name, relation)
	}
	return rel, nil
}

func (q *QuerySet) writeError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	if dialect.FromDatabase(q.db).IsUniqueViolation(err) {
		return errors.WrapError(err, errors.ErrCodeDuplicate, operation)
	}
	return errors.WrapDatabaseError(q.logContext(ctx), err, operation)
}

// logContext 让错误包装沿用 QuerySet 的 Logger
func (q *QuerySet) logContext(ctx context.Context) context.Context {
	return logging.ContextWithLogger(ctx, q.logger)
}
