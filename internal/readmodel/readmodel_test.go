package readmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"iamcore/pkg/queryfilter"
)

func TestUserFilter_ExcludesTombstonesByDefault(t *testing.T) {
	expr := UserFilter{}.expr()
	sql, args := queryfilter.Compile(queryfilter.Query{Filter: expr}, 1)
	assert.Equal(t, "WHERE state <> $1 LIMIT 1000", sql)
	assert.Equal(t, []any{"removed"}, args)
}

func TestUserFilter_IncludeRemovedDropsTombstoneClause(t *testing.T) {
	expr := UserFilter{IncludeRemoved: true}.expr()
	assert.Nil(t, expr)
}

func TestUserFilter_CombinesConditions(t *testing.T) {
	expr := UserFilter{OrgID: "org1", UsernamePrefix: "ad"}.expr()
	sql, args := queryfilter.Compile(queryfilter.Query{Filter: expr}, 1)
	assert.Equal(t, "WHERE ((org_id = $1) AND (username ILIKE $2)) AND (state <> $3) LIMIT 1000", sql)
	assert.Equal(t, []any{"org1", "ad%", "removed"}, args)
}

func TestCombineAnd_NilOptionalReturnsFixedOnly(t *testing.T) {
	fixed := queryfilter.Eq("instance_id", "inst1")
	assert.Equal(t, fixed, combineAnd(fixed, nil))
}

func TestCombineAnd_CombinesBoth(t *testing.T) {
	fixed := queryfilter.Eq("instance_id", "inst1")
	optional := queryfilter.Eq("state", "active")
	expr := combineAnd(fixed, optional)
	sql, args := queryfilter.Compile(queryfilter.Query{Filter: expr}, 1)
	assert.Equal(t, "WHERE (instance_id = $1) AND (state = $2) LIMIT 1000", sql)
	assert.Equal(t, []any{"inst1", "active"}, args)
}

func TestJSONStringSlice_ScanNilAndBytes(t *testing.T) {
	var s jsonStringSlice
	assert.NoError(t, s.Scan(nil))
	assert.Nil(t, []string(s))

	assert.NoError(t, s.Scan([]byte(`["a","b"]`)))
	assert.Equal(t, []string{"a", "b"}, []string(s))
}
