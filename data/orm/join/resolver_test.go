package join

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"joinery/data/orm"
	"joinery/data/orm/alias"
	"joinery/errors"
	"joinery/logging"
)

type fixture struct {
	schema   *orm.Schema
	registry *alias.Registry
	resolver *Resolver
}

func newFixture(t *testing.T, register bool) *fixture {
	t.Helper()
	noop := logging.NewNoopLogger()
	reg := alias.New(alias.WithLogger(noop))
	s := orm.NewSchema(orm.WithLogger(noop))
	require.NoError(t, s.Define(
		orm.ModelDef{Name: "Company", Fields: []orm.FieldDef{{Name: "name", PrimaryKey: true}}},
		orm.ModelDef{Name: "UserRoleCompany"},
		orm.ModelDef{
			Name: "User",
			Fields: []orm.FieldDef{
				{Name: "registrationnumber", PrimaryKey: true},
				{Name: "name"},
			},
			Relations: []orm.RelationDef{
				{Name: "company", Kind: orm.KindForeignKey, Target: "Company"},
				{Name: "company2", Kind: orm.KindForeignKey, Target: "Company", ReverseName: "secondary_users"},
				{Name: "roleforcompanies", Kind: orm.KindManyToMany, Target: "Company", Through: "UserRoleCompany", ReverseName: "role_users"},
			},
		},
		orm.ModelDef{
			Name:      "Category",
			Fields:    []orm.FieldDef{{Name: "name"}},
			Relations: []orm.RelationDef{{Name: "parent", Kind: orm.KindForeignKey, Target: "Category", ReverseName: "children"}},
		},
	))
	var registrar orm.RelationRegistrar
	if register {
		registrar = reg
	}
	require.NoError(t, s.Finalize(registrar))
	return &fixture{schema: s, registry: reg, resolver: NewResolver(reg, WithLogger(noop))}
}

func joinSQL(p *Plan) []string {
	out := make([]string, len(p.Joins))
	for i, j := range p.Joins {
		out[i] = j.SQL()
	}
	return out
}

func TestParsePath(t *testing.T) {
	assert.Equal(t, Path{"roleforcompanies", "users"}, ParsePath("roleforcompanies.users"))
	assert.Equal(t, Path{"roleforcompanies", "users"}, ParsePath("roleforcompanies__users"))
	assert.Equal(t, Path{"company"}, ParsePath(" company "))
	assert.Nil(t, ParsePath(""))
	assert.Equal(t, "a.b", Path{"a", "b"}.String())
	assert.Len(t, ParsePaths("a", "b.c"), 2)
}

func TestResolve_CompanyUserScenario(t *testing.T) {
	f := newFixture(t, true)
	user := f.schema.MustModel("User")

	plan, err := f.resolver.Resolve(user, ParsePaths("company", "company2", "roleforcompanies"))
	require.NoError(t, err)

	assert.Equal(t, "users", plan.From)
	assert.Equal(t, []string{
		"LEFT OUTER JOIN companys aaaa_companys ON aaaa_companys.name = users.company",
		"LEFT OUTER JOIN companys aaac_companys ON aaac_companys.name = users.company2",
		"LEFT OUTER JOIN userrolecompanys aaag_userrolecompanys ON aaag_userrolecompanys.user = users.registrationnumber",
		"LEFT OUTER JOIN companys aaae_companys ON aaae_companys.name = aaag_userrolecompanys.company",
	}, joinSQL(plan))

	assert.Equal(t, []string{
		"users.registrationnumber AS registrationnumber",
		"users.name AS name",
		"users.company AS company",
		"users.company2 AS company2",
		"aaaa_companys.name AS aaaa_name",
		"aaac_companys.name AS aaac_name",
		"aaae_companys.name AS aaae_name",
		"aaag_userrolecompanys.id AS aaag_id",
		"aaag_userrolecompanys.user AS aaag_user",
		"aaag_userrolecompanys.company AS aaag_company",
	}, plan.Columns)

	aliases := plan.AliasMap()
	assert.Len(t, aliases, 3)
	assert.NotEqual(t, aliases["company"], aliases["company2"])
	assert.NotEqual(t, aliases["company"], aliases["roleforcompanies"])
	assert.NotEqual(t, aliases["company2"], aliases["roleforcompanies"])
	assert.Equal(t, map[string]alias.Token{"roleforcompanies": "aaag"}, plan.ThroughAliasMap())

	assert.Equal(t, f.registry.Lookup("User", "company"), aliases["company"])
	assert.Equal(t, f.registry.LookupThrough("User", "roleforcompanies"), plan.ThroughAliasMap()["roleforcompanies"])
}

func TestResolve_ManyToManyExpandsToTwoJoins(t *testing.T) {
	f := newFixture(t, true)

	plan, err := f.resolver.Resolve(f.schema.MustModel("Company"), []Path{{"role_users"}})
	require.NoError(t, err)

	require.Len(t, plan.Joins, 2)
	assert.True(t, plan.Joins[0].Through)
	assert.False(t, plan.Joins[1].Through)
	assert.Equal(t, "LEFT OUTER JOIN userrolecompanys aaah_userrolecompanys ON aaah_userrolecompanys.company = companys.name", plan.Joins[0].SQL())
	assert.Equal(t, "LEFT OUTER JOIN users aaaf_users ON aaaf_users.registrationnumber = aaah_userrolecompanys.user", plan.Joins[1].SQL())

	assert.Contains(t, plan.AliasMap(), "role_users")
	assert.Contains(t, plan.ThroughAliasMap(), "role_users")
	assert.True(t, plan.HasToMany())
}

func TestResolve_SharedPrefixIsDeduplicated(t *testing.T) {
	f := newFixture(t, true)
	user := f.schema.MustModel("User")

	plan, err := f.resolver.Resolve(user, ParsePaths(
		"roleforcompanies.users",
		"roleforcompanies__secondary_users",
		"roleforcompanies",
	))
	require.NoError(t, err)

	assert.Len(t, plan.Joins, 4)
	assert.Len(t, plan.Nodes, 4)

	shared, ok := plan.Node(Path{"roleforcompanies"})
	require.True(t, ok)
	assert.Len(t, shared.Children, 2)
	assert.Same(t, shared, plan.Nodes["roleforcompanies.users"].Parent)
	assert.Same(t, shared, plan.Nodes["roleforcompanies.secondary_users"].Parent)

	single, err := f.resolver.Resolve(user, ParsePaths("roleforcompanies"))
	require.NoError(t, err)
	assert.Equal(t, single.AliasMap()["roleforcompanies"], plan.AliasMap()["roleforcompanies"])
	assert.Equal(t, single.ThroughAliasMap(), plan.ThroughAliasMap())

	assert.Equal(t, "LEFT OUTER JOIN users aaab_users ON aaab_users.company = aaae_companys.name", plan.Joins[2].SQL())
	assert.False(t, plan.Tree().Children[0].IsRoot())
}

func TestResolve_SelfReferenceGetsDistinctAliases(t *testing.T) {
	f := newFixture(t, true)
	category := f.schema.MustModel("Category")

	plan, err := f.resolver.Resolve(category, ParsePaths("parent.parent", "children"))
	require.NoError(t, err)

	// Company/User 关联先注册了 8 个令牌
	assert.Equal(t, []string{
		"LEFT OUTER JOIN categorys aaai_categorys ON aaai_categorys.id = categorys.parent",
		"LEFT OUTER JOIN categorys aaak_categorys ON aaak_categorys.id = aaai_categorys.parent",
		"LEFT OUTER JOIN categorys aaaj_categorys ON aaaj_categorys.parent = categorys.id",
	}, joinSQL(plan))

	parent, _ := plan.Node(Path{"parent"})
	grand, _ := plan.Node(Path{"parent", "parent"})
	assert.NotEqual(t, parent.Alias, grand.Alias)
	assert.NotEqual(t, category.Table, parent.Table())
	assert.Equal(t, "aaai_categorys", parent.Table())

	owner, ok := f.registry.Owner(grand.Alias)
	require.True(t, ok)
	assert.Equal(t, alias.Key{Model: "Category", Relation: "parent", Variant: 1}, owner)
}

func TestResolve_LazyRegistration(t *testing.T) {
	f := newFixture(t, false)
	require.Zero(t, f.registry.Len())

	plan, err := f.resolver.Resolve(f.schema.MustModel("User"), ParsePaths("roleforcompanies", "company"))
	require.NoError(t, err)

	assert.Equal(t, 6, f.registry.Len())
	assert.Equal(t, alias.Token("aaaa"), plan.AliasMap()["roleforcompanies"])
	assert.Equal(t, alias.Token("aaac"), plan.ThroughAliasMap()["roleforcompanies"])
	assert.Equal(t, alias.Token("aaab"), f.registry.Lookup("Company", "role_users"))
	assert.Equal(t, alias.Token("aaae"), plan.AliasMap()["company"])
}

func TestResolve_Errors(t *testing.T) {
	f := newFixture(t, true)
	user := f.schema.MustModel("User")

	_, err := f.resolver.Resolve(user, ParsePaths("company.nope"))
	require.Error(t, err)
	assert.True(t, errors.IsRelationNotFound(err))
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "company.nope", appErr.Details()["path"])

	_, err = f.resolver.Resolve(user, []Path{{}})
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))

	_, err = f.resolver.Resolve(nil, nil)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))

	_, err = f.resolver.Resolve(user, ParsePaths("company"), WithFields("company2", "name"))
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))

	_, err = f.resolver.Resolve(user, nil, WithFields("", "missing"))
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))
}

func TestResolve_ColumnLabelCollision(t *testing.T) {
	noop := logging.NewNoopLogger()
	reg := alias.New(alias.WithLogger(noop))
	s := orm.NewSchema(orm.WithLogger(noop))
	require.NoError(t, s.Define(
		orm.ModelDef{Name: "Company", Fields: []orm.FieldDef{{Name: "name", PrimaryKey: true}}},
		orm.ModelDef{
			Name:      "User",
			Fields:    []orm.FieldDef{{Name: "aaaa_name"}},
			Relations: []orm.RelationDef{{Name: "company", Kind: orm.KindForeignKey, Target: "Company"}},
		},
	))
	require.NoError(t, s.Finalize(reg))
	require.Equal(t, alias.Token("aaaa"), reg.Lookup("User", "company"))
	r := NewResolver(reg, WithLogger(noop))
	user := s.MustModel("User")

	_, err := r.Resolve(user, ParsePaths("company"))
	require.Error(t, err)
	assert.True(t, errors.IsAliasConflict(err))
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "aaaa_name", appErr.Details()["label"])

	plan, err := r.Resolve(user, nil)
	require.NoError(t, err)
	assert.Contains(t, plan.Columns, "users.aaaa_name AS aaaa_name")
}

func TestResolve_WithFields(t *testing.T) {
	f := newFixture(t, true)

	plan, err := f.resolver.Resolve(f.schema.MustModel("User"), ParsePaths("company"), WithFields("", "name"))
	require.NoError(t, err)

	assert.Equal(t, []string{"registrationnumber", "name"}, plan.Tree().Columns)
	assert.Equal(t, []string{
		"users.registrationnumber AS registrationnumber",
		"users.name AS name",
		"aaaa_companys.name AS aaaa_name",
	}, plan.Columns)
}

func TestResolve_ConcurrentPlansAgree(t *testing.T) {
	f := newFixture(t, false)
	user := f.schema.MustModel("User")
	paths := ParsePaths("company", "company2", "roleforcompanies.users")

	const workers = 16
	plans := make([]*Plan, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := f.resolver.Resolve(user, paths)
			assert.NoError(t, err)
			plans[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range plans[1:] {
		require.NotNil(t, p)
		assert.Equal(t, joinSQL(plans[0]), joinSQL(p))
	}
}
