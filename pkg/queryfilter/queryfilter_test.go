package queryfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_SimpleEq(t *testing.T) {
	sql, args := Compile(Query{Filter: Eq("state", "active")}, 1)
	assert.Equal(t, "WHERE state = $1 LIMIT 1000", sql)
	require.Len(t, args, 1)
	assert.Equal(t, "active", args[0])
}

func TestCompile_AndOr(t *testing.T) {
	expr := And(
		Eq("instance_id", "inst1"),
		Or(Eq("state", "active"), Eq("state", "pending")),
	)
	sql, args := Compile(Query{Filter: expr}, 1)
	assert.Equal(t, "WHERE (instance_id = $1) AND ((state = $2) OR (state = $3)) LIMIT 1000", sql)
	assert.Equal(t, []any{"inst1", "active", "pending"}, args)
}

func TestCompile_Not(t *testing.T) {
	sql, args := Compile(Query{Filter: Not(Eq("state", "removed"))}, 1)
	assert.Equal(t, "WHERE NOT (state = $1) LIMIT 1000", sql)
	assert.Equal(t, []any{"removed"}, args)
}

func TestCompile_In(t *testing.T) {
	sql, args := Compile(Query{Filter: In("id", []string{"a", "b"})}, 1)
	assert.Equal(t, "WHERE id = ANY($1) LIMIT 1000", sql)
	assert.Equal(t, [][]string{{"a", "b"}}[0], args[0])
}

func TestCompile_StartsWithEscapesWildcards(t *testing.T) {
	sql, args := Compile(Query{Filter: StartsWith("username", "100%_done")}, 1)
	assert.Equal(t, "WHERE username ILIKE $1 LIMIT 1000", sql)
	assert.Equal(t, `100\%\_done%`, args[0])
}

func TestCompile_IsNull(t *testing.T) {
	sql, args := Compile(Query{Filter: IsNull("removed_at")}, 1)
	assert.Equal(t, "WHERE removed_at IS NULL LIMIT 1000", sql)
	assert.Empty(t, args)
}

func TestCompile_OrderAndPagination(t *testing.T) {
	q := Query{
		Filter: Eq("org_id", "org1"),
		Order:  []Order{{Column: "updated_at", Desc: true}, {Column: "id"}},
		Limit:  25,
		Offset: 50,
	}
	sql, args := Compile(q, 1)
	assert.Equal(t, "WHERE org_id = $1 ORDER BY updated_at DESC, id ASC LIMIT 25 OFFSET 50", sql)
	assert.Equal(t, []any{"org1"}, args)
}

func TestCompile_LimitClampedToMax(t *testing.T) {
	sql, _ := Compile(Query{Limit: 5000}, 1)
	assert.Contains(t, sql, "LIMIT 1000")
}

func TestCompile_NegativeLimitUsesMax(t *testing.T) {
	sql, _ := Compile(Query{Limit: -1}, 1)
	assert.Contains(t, sql, "LIMIT 1000")
}

func TestCompile_ArgStartOffsetsPlaceholders(t *testing.T) {
	sql, args := Compile(Query{Filter: Eq("state", "active")}, 3)
	assert.Equal(t, "WHERE state = $3 LIMIT 1000", sql)
	assert.Equal(t, []any{"active"}, args)
}

func TestCompile_NoFilterNoOrder(t *testing.T) {
	sql, args := Compile(Query{}, 1)
	assert.Equal(t, "LIMIT 1000", sql)
	assert.Empty(t, args)
}
