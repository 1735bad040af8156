// Package app 按配置装配数据库、模型定义、别名注册表、解析器与查询入口
package app

import (
	"context"
	"strings"

	_ "modernc.org/sqlite"

	"joinery/cache"
	"joinery/config"
	core "joinery/data/db"
	"joinery/data/db/basic"
	"joinery/data/orm"
	"joinery/data/orm/alias"
	"joinery/data/orm/join"
	"joinery/data/orm/query"
	"joinery/errors"
	"joinery/logging"
)

// App 一组模型定义及其查询运行时
type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *basic.DB
	schema   *orm.Schema
	registry *alias.Registry
	resolver *join.Resolver
	plans    *query.PlanCache
}

// New 连接数据库并完成模型定义；cfg 为 nil 时使用 config.Default()。
//
// 模型定义错误在此返回，保证任何查询执行之前暴露。
func New(cfg *config.Config, models ...orm.ModelDef) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "配置无效")
	}

	logger := logging.NewStdLogger(cfg.Log.Prefix).WithLevel(logging.ParseLevel(cfg.Log.Level))

	registry := alias.New(
		alias.WithGenerator(NewGenerator(cfg.Alias)),
		alias.WithLogger(logger),
	)
	schema := orm.NewSchema(orm.WithLogger(logger))
	if err := schema.Define(models...); err != nil {
		return nil, err
	}
	if err := schema.Finalize(registry); err != nil {
		return nil, err
	}

	db, err := basic.New(core.DBConfig{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, errors.WrapDatabaseError(context.Background(), err, "open "+cfg.Database.Driver)
	}

	a := &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		schema:   schema,
		registry: registry,
		resolver: join.NewResolver(registry, join.WithLogger(logger)),
	}
	if cfg.PlanCache.MaxSize > 0 {
		a.plans = cache.New[string, *join.Plan](cache.Config{Name: "join_plans", MaxSize: cfg.PlanCache.MaxSize})
	}

	logger.Info(context.Background(), "应用初始化完成",
		logging.String("driver", cfg.Database.Driver),
		logging.String("alias_strategy", cfg.Alias.Strategy),
		logging.Int("aliases", registry.Len()),
	)
	return a, nil
}

// NewGenerator 按配置选择令牌生成器
func NewGenerator(cfg config.AliasConfig) alias.Generator {
	if strings.EqualFold(cfg.Strategy, config.StrategyRandom) {
		return alias.NewRandomGenerator(cfg.MaxAttempts)
	}
	return alias.NewCounterGenerator(cfg.MinWidth)
}

// Query 返回模型的查询入口；模型未声明时返回 ErrCodeNotFound
func (a *App) Query(model string) (*query.QuerySet, error) {
	m, ok := a.schema.Model(model)
	if !ok {
		return nil, errors.NewErrorf(errors.ErrCodeNotFound, "模型 %q 未声明", model)
	}
	opts := []query.Option{query.WithLogger(a.logger)}
	if a.plans != nil {
		opts = append(opts, query.WithPlanCache(a.plans))
	}
	return query.New(a.db, a.resolver, m, opts...), nil
}

func (a *App) Config() *config.Config      { return a.config }
func (a *App) DB() *basic.DB               { return a.db }
func (a *App) Schema() *orm.Schema         { return a.schema }
func (a *App) Registry() *alias.Registry   { return a.registry }
func (a *App) Resolver() *join.Resolver    { return a.resolver }
func (a *App) PlanCache() *query.PlanCache { return a.plans }

// Close 关闭数据库连接
func (a *App) Close() error {
	return a.db.Close()
}
