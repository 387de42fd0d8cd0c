package txstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashLockKey_Deterministic(t *testing.T) {
	a := HashLockKey("users", "instance-1")
	b := HashLockKey("users", "instance-1")
	assert.Equal(t, a, b)
}

func TestHashLockKey_DistinctInputs(t *testing.T) {
	a := HashLockKey("users", "instance-1")
	b := HashLockKey("users", "instance-2")
	c := HashLockKey("orgs", "instance-1")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, b, c)
}

func TestHashLockKey_NoSeparatorCollision(t *testing.T) {
	// "ab"+"c" and "a"+"bc" must not collide despite concatenation.
	a := HashLockKey("ab", "c")
	b := HashLockKey("a", "bc")
	assert.NotEqual(t, a, b)
}
