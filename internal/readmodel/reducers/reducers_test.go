package reducers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONArray_NilBecomesEmptyArray(t *testing.T) {
	data, err := jsonArray(nil)
	assert.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestJSONArray_PreservesOrder(t *testing.T) {
	data, err := jsonArray([]string{"b", "a"})
	assert.NoError(t, err)
	assert.JSONEq(t, `["b","a"]`, string(data))
}
