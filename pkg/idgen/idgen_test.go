package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_NextID_Monotonic(t *testing.T) {
	g, err := NewGenerator(1)
	require.NoError(t, err)

	var last uint64
	for i := 0; i < 100; i++ {
		id, err := g.NextID()
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
}

func TestGenerator_DistinctWorkers_NoCollision(t *testing.T) {
	g1, err := NewGenerator(1)
	require.NoError(t, err)
	g2, err := NewGenerator(2)
	require.NoError(t, err)

	seen := make(map[uint64]bool)
	for i := 0; i < 50; i++ {
		id1, err := g1.NextID()
		require.NoError(t, err)
		id2, err := g2.NextID()
		require.NoError(t, err)
		assert.False(t, seen[id1])
		assert.False(t, seen[id2])
		assert.NotEqual(t, id1, id2)
		seen[id1] = true
		seen[id2] = true
	}
}

func TestGenerator_NewPrefixedID(t *testing.T) {
	g, err := NewGenerator(1)
	require.NoError(t, err)

	id, err := g.NewPrefixedID("org")
	require.NoError(t, err)
	assert.Contains(t, id, "org_")

	id2, err := g.NewPrefixedID("Org!! 123")
	require.NoError(t, err)
	assert.Contains(t, id2, "org123_")
}

func TestSanitizePrefix(t *testing.T) {
	assert.Equal(t, "abc_123", sanitizePrefix("ABC_123"))
	assert.Equal(t, "abc123", sanitizePrefix("abc-123!"))
}
