package dialect

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebind_Postgres(t *testing.T) {
	d := New("postgres")
	got := d.Rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)")
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)", got)
}

func TestRebind_NoChangeForMySQLSQLite(t *testing.T) {
	orig := "DELETE FROM t WHERE id = ? AND name = ?"
	for _, name := range []string{"mysql", "sqlite", "unknown"} {
		assert.Equal(t, orig, New(name).Rebind(orig), name)
	}
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		dialect string
		in      string
		want    string
	}{
		{"sqlite", "users", `"users"`},
		{"postgres", "ab_users.company", `"ab_users"."company"`},
		{"mysql", "users.name", "`users`.`name`"},
		{"unknown", "users.name", "users.name"},
		{"sqlite", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.dialect+"/"+tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.dialect).QuoteIdentifier(tt.in))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, New("sqlite").IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: t.id (1555)")))
	assert.False(t, New("sqlite").IsUniqueViolation(errors.New("no such table: t")))
	assert.False(t, New("sqlite").IsUniqueViolation(nil))
	assert.True(t, New("mysql").IsUniqueViolation(errors.New("Error 1062: Duplicate entry 'x'")))
}

func TestNew_Aliases(t *testing.T) {
	assert.Equal(t, NameSQLite, New("SQLite3").Name())
	assert.Equal(t, NamePostgres, New("postgresql").Name())
	assert.Equal(t, NameUnknown, FromDatabase(nil).Name())
	assert.False(t, New("sqlite").SupportsDeleteLimit())
}
