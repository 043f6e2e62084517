package medicine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNames(t *testing.T) {
	names := Names()
	assert.Len(t, names, 20)
	assert.Equal(t, "Paracetamol", names[0])
	assert.Equal(t, "Clopidogrel", names[19])

	names[0] = "mutated"
	assert.Equal(t, "Paracetamol", Names()[0])
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("Ibuprofen"))
	assert.False(t, Contains("ibuprofen"))
	assert.False(t, Contains("Aspirin"))
	assert.False(t, Contains(""))
}
