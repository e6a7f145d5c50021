package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlmostEqual(t *testing.T) {
	assert.True(t, AlmostEqual(0.1+0.2, 0.3))
	assert.True(t, AlmostEqual(3.0000000000000004, 3))
	assert.True(t, AlmostEqual(1e12+1e-4, 1e12))
	assert.False(t, AlmostEqual(2.001, 2))
	assert.False(t, AlmostEqual(1e-6, 0))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 1.13, RoundTo(1.125001, 2))
	assert.Equal(t, 2.0, RoundTo(1.99999, 3))
}
