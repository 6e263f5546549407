package tenantdb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botflow/engine/internal/tenantdb"
)

func mustParse(t *testing.T, input string) tenantdb.Expr {
	t.Helper()
	expr, err := tenantdb.ParseFilter(input)
	require.NoError(t, err)
	return expr
}

func TestEmptyFilterMatchesAll(t *testing.T) {
	expr := mustParse(t, "   ")
	assert.True(t, expr.Match(tenantdb.Record{"name": "Ada"}))
	assert.True(t, expr.Match(tenantdb.Record{}))
}

func TestEquality(t *testing.T) {
	expr := mustParse(t, "name = 'Ada'")
	assert.True(t, expr.Match(tenantdb.Record{"name": "Ada"}))
	assert.False(t, expr.Match(tenantdb.Record{"name": "Grace"}))
	assert.False(t, expr.Match(tenantdb.Record{}))

	neq := mustParse(t, "name != 'Ada'")
	assert.False(t, neq.Match(tenantdb.Record{"name": "Ada"}))
	assert.True(t, neq.Match(tenantdb.Record{"name": "Grace"}))
}

func TestUnquotedValue(t *testing.T) {
	expr := mustParse(t, "count = 3")
	assert.True(t, expr.Match(tenantdb.Record{"count": "3"}))
	assert.False(t, expr.Match(tenantdb.Record{"count": "4"}))
}

func TestQuotedEscapes(t *testing.T) {
	expr := mustParse(t, "name = 'O''Brien'")
	assert.True(t, expr.Match(tenantdb.Record{"name": "O'Brien"}))
}

func TestLike(t *testing.T) {
	expr := mustParse(t, "email LIKE '%@example.com'")
	assert.True(t,
		expr.Match(tenantdb.Record{"email": "ada@example.com"}))
	assert.False(t,
		expr.Match(tenantdb.Record{"email": "ada@example.org"}))

	mid := mustParse(t, "name LIKE 'A%a'")
	assert.True(t, mid.Match(tenantdb.Record{"name": "Ada"}))
	assert.True(t, mid.Match(tenantdb.Record{"name": "Aurora"}))
	assert.False(t, mid.Match(tenantdb.Record{"name": "Grace"}))

	caseSensitive := mustParse(t, "name LIKE 'ada%'")
	assert.False(t, caseSensitive.Match(tenantdb.Record{"name": "Ada"}))
}

func TestILike(t *testing.T) {
	expr := mustParse(t, "name ILIKE 'ada%'")
	assert.True(t, expr.Match(tenantdb.Record{"name": "Ada Lovelace"}))
	assert.True(t, expr.Match(tenantdb.Record{"name": "ADA"}))
	assert.False(t, expr.Match(tenantdb.Record{"name": "Grace"}))
}

func TestConjunction(t *testing.T) {
	expr := mustParse(t, "role = 'admin' AND name != 'Ada'")
	assert.True(t,
		expr.Match(tenantdb.Record{"role": "admin", "name": "Grace"}))
	assert.False(t,
		expr.Match(tenantdb.Record{"role": "admin", "name": "Ada"}))
	assert.False(t,
		expr.Match(tenantdb.Record{"role": "user", "name": "Grace"}))
}

func TestLowercaseKeywords(t *testing.T) {
	expr := mustParse(t, "role = 'admin' and name like 'A%'")
	assert.True(t,
		expr.Match(tenantdb.Record{"role": "admin", "name": "Ada"}))
}

func TestSyntaxErrors(t *testing.T) {
	for _, input := range []string{
		"name",
		"name =",
		"name ~ 'Ada'",
		"name = 'Ada' AND",
		"name = 'unterminated",
		"= 'Ada'",
		"name = 'Ada' garbage",
	} {
		_, err := tenantdb.ParseFilter(input)
		assert.Error(t, err, "input %q", input)
	}
}
