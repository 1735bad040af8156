// Package alias 维护 (模型, 关联) 到别名令牌的映射。
//
// 注册表在模型声明期写入，查询期被大量并发读取；写入互斥，读取之间互不阻塞。
// 令牌只增不删，在注册表生命周期内保持稳定。
package alias

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"joinery/data/orm"
	"joinery/errors"
	"joinery/logging"
)

// Token 别名令牌：小写字母开头，仅含小写字母与数字，可直接用作 SQL 标识符前缀。
type Token string

func (t Token) String() string { return string(t) }

// Key 别名键。
//
// Through 为 true 时表示多对多关联的中间表挂载点，与目标表挂载点处于不同命名空间；
// Variant > 0 表示同一关联在一棵 JOIN 树中被第 n 次挂载（如自关联链 parent.parent）。
type Key struct {
	Model    string
	Relation string
	Through  bool
	Variant  int
}

func (k Key) String() string {
	s := k.Model + "_" + k.Relation
	if k.Through {
		s += "[through]"
	}
	if k.Variant > 0 {
		s += fmt.Sprintf("#%d", k.Variant)
	}
	return s
}

// Base 返回去掉 Variant 的键。
func (k Key) Base() Key {
	k.Variant = 0
	return k
}

// Option 配置 Registry。
type Option func(*Registry)

// WithGenerator 替换令牌生成器，默认使用 CounterGenerator。
func WithGenerator(g Generator) Option {
	return func(r *Registry) {
		if g != nil {
			r.gen = g
		}
	}
}

// WithLogger 设置日志。
func WithLogger(logger logging.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry 别名注册表。显式构造、按引用传递，不存在进程级单例。
type Registry struct {
	mu     sync.RWMutex
	tokens map[Key]Token
	owners map[Token]Key
	gen    Generator
	logger logging.Logger
}

// New 创建空注册表。
func New(opts ...Option) *Registry {
	r := &Registry{
		tokens: make(map[Key]Token),
		owners: make(map[Token]Key),
		gen:    NewCounterGenerator(DefaultMinWidth),
		logger: logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register 为关联的正反两侧分配令牌；多对多关联额外为两侧的中间表挂载点分配令牌。
//
// 已存在的一侧保持原令牌不变，因此重复调用是幂等的。
func (r *Registry) Register(source *orm.ModelMeta, relation, reverse string) error {
	if source == nil {
		return errors.NewError(errors.ErrCodeDefinition, "注册关联时源模型为空")
	}
	if reverse == "" {
		return errors.NewErrorf(errors.ErrCodeDefinition, "%s.%s: 关联缺少反向名", source.Name, relation).
			WithContext("model", source.Name)
	}
	rel, ok := source.Relation(relation)
	if !ok {
		return errors.NewErrorf(errors.ErrCodeDefinition, "%s.%s: 关联未声明", source.Name, relation).
			WithContext("model", source.Name)
	}
	if rel.ReverseName != reverse {
		return errors.NewErrorf(errors.ErrCodeDefinition, "%s.%s: 反向名 %q 与声明的 %q 不一致",
			source.Name, relation, reverse, rel.ReverseName).
			WithContext("model", source.Name)
	}

	keys := []Key{
		{Model: source.Name, Relation: relation},
		{Model: rel.Target.Name, Relation: reverse},
	}
	if rel.Kind == orm.KindManyToMany {
		keys = append(keys,
			Key{Model: source.Name, Relation: relation, Through: true},
			Key{Model: rel.Target.Name, Relation: reverse, Through: true},
		)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		if _, err := r.ensureLocked(key); err != nil {
			return err
		}
	}
	return nil
}

// Lookup 返回 (model, relation) 目标表挂载点的令牌；未注册时返回空令牌。
func (r *Registry) Lookup(model, relation string) Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tokens[Key{Model: model, Relation: relation}]
}

// LookupThrough 返回多对多关联中间表挂载点的令牌；未注册时返回空令牌。
func (r *Registry) LookupThrough(model, relation string) Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tokens[Key{Model: model, Relation: relation, Through: true}]
}

// Contains 是否已为 key 分配令牌。
func (r *Registry) Contains(key Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tokens[key]
	return ok
}

// TokenFor 返回 key 的令牌，未注册时返回 ErrCodeNotFound。
func (r *Registry) TokenFor(key Key) (Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.tokens[key]
	if !ok {
		return "", errors.NewErrorf(errors.ErrCodeNotFound, "别名键 %s 未注册", key)
	}
	return tok, nil
}

// Variant 返回 key 第 n 次挂载使用的令牌，必要时惰性创建；n == 0 即基础键本身。
//
// 基础键必须已经注册。
func (r *Registry) Variant(key Key, n int) (Token, error) {
	if n < 0 {
		return "", errors.NewErrorf(errors.ErrCodeInvalidInput, "别名键 %s 的变体序号不能为负: %d", key, n)
	}
	base := key.Base()
	variant := base
	variant.Variant = n

	r.mu.RLock()
	tok, ok := r.tokens[variant]
	_, hasBase := r.tokens[base]
	r.mu.RUnlock()
	if ok {
		return tok, nil
	}
	if !hasBase {
		return "", errors.NewErrorf(errors.ErrCodeNotFound, "别名键 %s 未注册", base)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLocked(variant)
}

// Owner 反查令牌所属的键，可据此区分目标表与中间表命名空间。
func (r *Registry) Owner(tok Token) (Key, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.owners[tok]
	return key, ok
}

// Len 已分配的令牌数。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}

// Snapshot 返回全部映射的副本。
func (r *Registry) Snapshot() map[Key]Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.tokens)
}

// ensureLocked 调用方必须持有写锁
func (r *Registry) ensureLocked(key Key) (Token, error) {
	if tok, ok := r.tokens[key]; ok {
		return tok, nil
	}

	tok := r.gen.Next(func(t Token) bool {
		_, used := r.owners[t]
		return used
	})
	if !validToken(tok) {
		return "", errors.NewErrorf(errors.ErrCodeAliasConflict, "生成的令牌 %q 不是合法标识符前缀", tok).
			WithContext("key", key.String())
	}
	if owner, used := r.owners[tok]; used {
		return "", errors.NewErrorf(errors.ErrCodeAliasConflict, "令牌 %q 已分配给 %s，不能再分配给 %s", tok, owner, key).
			WithContext("key", key.String())
	}

	r.tokens[key] = tok
	r.owners[tok] = key
	r.logger.Debug(context.Background(), "分配别名令牌",
		logging.String("key", key.String()),
		logging.String("token", string(tok)),
	)
	return tok, nil
}

func validToken(t Token) bool {
	if t == "" || t[0] < 'a' || t[0] > 'z' {
		return false
	}
	for i := 1; i < len(t); i++ {
		c := t[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
