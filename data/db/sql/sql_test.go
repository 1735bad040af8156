package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "joinery/data/db"
)

// dialectQuerier 只提供方言名，用于检查生成的语句
type dialectQuerier struct {
	core.IQuerier
	name string
}

func (d dialectQuerier) GetDialectName() string { return d.name }

func TestIsSafeIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"users", true},
		{"aaab_companies.name", true},
		{"_private", true},
		{"1users", false},
		{"users;drop", false},
		{"users.", false},
		{"", false},
		{"user name", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSafeIdentifier(tt.in))
		})
	}
	assert.False(t, IsSafeName("a.b"))
}

func TestInsertBuilder_Build(t *testing.T) {
	b := New(nil).InsertInto("userrolecompanys").
		Columns("user", "company").
		Values("00-00000", "Acme").
		Values("00-00000", "Globex")

	query, args := b.Build()
	assert.Equal(t, "INSERT INTO userrolecompanys (user, company) VALUES (?, ?), (?, ?)", query)
	assert.Equal(t, []any{"00-00000", "Acme", "00-00000", "Globex"}, args)
}

func TestInsertBuilder_PanicsOnMismatch(t *testing.T) {
	b := New(nil).InsertInto("t").Columns("a", "b").Values(1)
	assert.Panics(t, func() { b.Build() })

	unsafe := New(nil).InsertInto("t; drop").Columns("a").Values(1)
	assert.Panics(t, func() { unsafe.Build() })
}

func TestDeleteBuilder_Build(t *testing.T) {
	b := New(nil).DeleteFrom("links").
		Where("user = ?", "u1").
		Where("company = ?", "c1").
		Limit(1)

	query, args := b.Build()
	assert.Equal(t, "DELETE FROM links WHERE user = ? AND company = ?", query)
	assert.Equal(t, []any{"u1", "c1"}, args)

	require.Panics(t, func() { New(nil).DeleteFrom("links").Build() })
}

func TestDeleteBuilder_LimitFollowsDialect(t *testing.T) {
	mysql := New(dialectQuerier{name: "mysql"}).DeleteFrom("links").
		Where("user = ?", "u1").
		Limit(1)
	query, args := mysql.Build()
	assert.Equal(t, "DELETE FROM `links` WHERE `user` = ? LIMIT ?", query)
	assert.Equal(t, []any{"u1", 1}, args)

	sqlite := New(dialectQuerier{name: "sqlite"}).DeleteFrom("links").
		Where("user = ?", "u1").
		Limit(1)
	query, args = sqlite.Build()
	assert.NotContains(t, query, "LIMIT")
	assert.Equal(t, []any{"u1"}, args)
}
