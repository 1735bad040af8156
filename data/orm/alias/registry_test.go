package alias

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"joinery/data/orm"
	"joinery/errors"
	"joinery/logging"
)

func companySchema(t *testing.T, reg *Registry) *orm.Schema {
	t.Helper()
	s := orm.NewSchema(orm.WithLogger(logging.NewNoopLogger()))
	require.NoError(t, s.Define(
		orm.ModelDef{Name: "Company", Fields: []orm.FieldDef{{Name: "name", PrimaryKey: true}}},
		orm.ModelDef{Name: "UserRoleCompany"},
		orm.ModelDef{
			Name:   "User",
			Fields: []orm.FieldDef{{Name: "registrationnumber", PrimaryKey: true}},
			Relations: []orm.RelationDef{
				{Name: "company", Kind: orm.KindForeignKey, Target: "Company"},
				{Name: "company2", Kind: orm.KindForeignKey, Target: "Company", ReverseName: "secondary_users"},
				{Name: "roleforcompanies", Kind: orm.KindManyToMany, Target: "Company", Through: "UserRoleCompany", ReverseName: "role_users"},
			},
		},
	))
	require.NoError(t, s.Finalize(reg))
	return s
}

func newTestRegistry(opts ...Option) *Registry {
	return New(append([]Option{WithLogger(logging.NewNoopLogger())}, opts...)...)
}

func TestRegistry_RegisterIsSymmetric(t *testing.T) {
	reg := newTestRegistry()
	companySchema(t, reg)

	pairs := [][2]string{
		{"User", "company"}, {"Company", "users"},
		{"User", "company2"}, {"Company", "secondary_users"},
		{"User", "roleforcompanies"}, {"Company", "role_users"},
	}
	for _, p := range pairs {
		assert.NotEmpty(t, reg.Lookup(p[0], p[1]), "%s.%s", p[0], p[1])
	}
	assert.NotEmpty(t, reg.LookupThrough("User", "roleforcompanies"))
	assert.NotEmpty(t, reg.LookupThrough("Company", "role_users"))
	assert.Empty(t, reg.LookupThrough("User", "company"))
	assert.Empty(t, reg.Lookup("User", "missing"))

	// 3 条关联 × 2 方向 + 多对多中间表 2 个挂载点
	assert.Equal(t, 8, reg.Len())
}

func TestRegistry_TokensAreDistinct(t *testing.T) {
	for name, gen := range map[string]Generator{
		"counter": NewCounterGenerator(0),
		"random":  NewRandomGenerator(0),
	} {
		t.Run(name, func(t *testing.T) {
			reg := newTestRegistry(WithGenerator(gen))
			companySchema(t, reg)

			seen := make(map[Token]Key)
			for key, tok := range reg.Snapshot() {
				prev, dup := seen[tok]
				require.False(t, dup, "%s 与 %s 共用令牌 %s", key, prev, tok)
				seen[tok] = key
				assert.True(t, validToken(tok), string(tok))

				owner, ok := reg.Owner(tok)
				require.True(t, ok)
				assert.Equal(t, key, owner)
			}
		})
	}
}

func TestRegistry_CounterTokensAreReproducible(t *testing.T) {
	a := newTestRegistry()
	b := newTestRegistry()
	companySchema(t, a)
	companySchema(t, b)

	assert.Equal(t, a.Snapshot(), b.Snapshot())
	assert.Equal(t, Token("aaaa"), a.Lookup("User", "company"))
	assert.Equal(t, Token("aaab"), a.Lookup("Company", "users"))
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	reg := newTestRegistry()
	s := companySchema(t, reg)
	before := reg.Snapshot()

	user := s.MustModel("User")
	require.NoError(t, reg.Register(user, "company", "users"))
	require.NoError(t, reg.Register(s.MustModel("Company"), "users", "company"))

	assert.Equal(t, before, reg.Snapshot())
}

func TestRegistry_RegisterErrors(t *testing.T) {
	reg := newTestRegistry()
	s := companySchema(t, reg)
	user := s.MustModel("User")

	err := reg.Register(user, "company", "")
	assert.True(t, errors.IsDefinition(err))

	err = reg.Register(user, "nope", "users")
	assert.True(t, errors.IsDefinition(err))

	err = reg.Register(user, "company", "wrong_name")
	assert.True(t, errors.IsDefinition(err))

	err = reg.Register(nil, "company", "users")
	assert.True(t, errors.IsDefinition(err))
}

func TestRegistry_TokenForAndContains(t *testing.T) {
	reg := newTestRegistry()
	companySchema(t, reg)

	key := Key{Model: "User", Relation: "company"}
	assert.True(t, reg.Contains(key))
	tok, err := reg.TokenFor(key)
	require.NoError(t, err)
	assert.Equal(t, reg.Lookup("User", "company"), tok)

	missing := Key{Model: "User", Relation: "company", Through: true}
	assert.False(t, reg.Contains(missing))
	_, err = reg.TokenFor(missing)
	assert.True(t, errors.IsNotFound(err))
}

func TestRegistry_Variant(t *testing.T) {
	reg := newTestRegistry()
	companySchema(t, reg)

	key := Key{Model: "User", Relation: "company"}
	base, err := reg.Variant(key, 0)
	require.NoError(t, err)
	assert.Equal(t, reg.Lookup("User", "company"), base)

	v1, err := reg.Variant(key, 1)
	require.NoError(t, err)
	assert.NotEqual(t, base, v1)

	again, err := reg.Variant(Key{Model: "User", Relation: "company", Variant: 3}, 1)
	require.NoError(t, err)
	assert.Equal(t, v1, again)

	owner, ok := reg.Owner(v1)
	require.True(t, ok)
	assert.Equal(t, 1, owner.Variant)
	assert.Equal(t, key, owner.Base())

	_, err = reg.Variant(Key{Model: "Ghost", Relation: "x"}, 1)
	assert.True(t, errors.IsNotFound(err))
	_, err = reg.Variant(key, -1)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))
}

func TestRegistry_ThroughNamespaceIsSeparable(t *testing.T) {
	reg := newTestRegistry()
	companySchema(t, reg)

	target := reg.Lookup("User", "roleforcompanies")
	through := reg.LookupThrough("User", "roleforcompanies")
	require.NotEqual(t, target, through)

	k1, _ := reg.Owner(target)
	k2, _ := reg.Owner(through)
	assert.False(t, k1.Through)
	assert.True(t, k2.Through)
	assert.Equal(t, "User_roleforcompanies[through]", k2.String())
}

type fixedGenerator struct{ tok Token }

func (g fixedGenerator) Next(func(Token) bool) Token { return g.tok }

func TestRegistry_GeneratorConflictIsAnInvariantViolation(t *testing.T) {
	reg := newTestRegistry(WithGenerator(fixedGenerator{tok: "same"}))
	s := orm.NewSchema(orm.WithLogger(logging.NewNoopLogger()))
	require.NoError(t, s.Define(
		orm.ModelDef{Name: "Company"},
		orm.ModelDef{Name: "User", Relations: []orm.RelationDef{{Name: "company", Kind: orm.KindForeignKey, Target: "Company"}}},
	))

	err := s.Finalize(reg)
	require.Error(t, err)
	assert.True(t, errors.IsAliasConflict(err))

	bad := newTestRegistry(WithGenerator(fixedGenerator{tok: "1_abc"}))
	err = bad.Register(s.MustModel("User"), "company", "users")
	assert.True(t, errors.IsAliasConflict(err))
}

func TestEncodeShortlex(t *testing.T) {
	assert.Equal(t, "aaaa", encodeShortlex(0, 4))
	assert.Equal(t, "aaab", encodeShortlex(1, 4))
	assert.Equal(t, "aaba", encodeShortlex(26, 4))
	assert.Equal(t, "zzzz", encodeShortlex(26*26*26*26-1, 4))
	assert.Equal(t, "aaaaa", encodeShortlex(26*26*26*26, 4))
}

func TestRandomGenerator_RetriesAndDerives(t *testing.T) {
	draws := []string{"ab12cd", "ab12cd", "xy0000"}
	g := &RandomGenerator{maxAttempts: 3, draw: func() string {
		d := draws[0]
		if len(draws) > 1 {
			draws = draws[1:]
		}
		return d
	}}
	taken := map[Token]bool{"ab12cd": true}
	assert.Equal(t, Token("xy0000"), g.Next(func(t Token) bool { return taken[t] }))

	stuck := &RandomGenerator{maxAttempts: 2, draw: func() string { return "ab12cd" }}
	taken["ab12cd1"] = true
	assert.Equal(t, Token("ab12cd2"), stuck.Next(func(t Token) bool { return taken[t] }))

	tok := NewRandomGenerator(0).Next(func(Token) bool { return false })
	assert.Len(t, string(tok), 6)
	assert.True(t, validToken(tok))
}

func TestRegistry_ConcurrentRegisterAndLookup(t *testing.T) {
	reg := newTestRegistry()
	s := orm.NewSchema(orm.WithLogger(logging.NewNoopLogger()))

	const n = 32
	defs := []orm.ModelDef{{Name: "Hub"}}
	for i := 0; i < n; i++ {
		defs = append(defs, orm.ModelDef{
			Name:      fmt.Sprintf("Leaf%d", i),
			Relations: []orm.RelationDef{{Name: "hub", Kind: orm.KindForeignKey, Target: "Hub"}},
		})
	}
	require.NoError(t, s.Define(defs...))
	require.NoError(t, s.Finalize(nil))

	var wg sync.WaitGroup
	for round := 0; round < 4; round++ {
		for i := 0; i < n; i++ {
			wg.Add(2)
			leaf := s.MustModel(fmt.Sprintf("Leaf%d", i))
			go func() {
				defer wg.Done()
				assert.NoError(t, reg.Register(leaf, "hub", leaf.Relations["hub"].ReverseName))
			}()
			go func() {
				defer wg.Done()
				_ = reg.Lookup(leaf.Name, "hub")
			}()
		}
	}
	wg.Wait()

	assert.Equal(t, 2*n, reg.Len())
	tokens := make(map[Token]struct{})
	for _, tok := range reg.Snapshot() {
		tokens[tok] = struct{}{}
	}
	assert.Len(t, tokens, 2*n)
}
