package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinBurst(t *testing.T) {
	l := NewLimiter(3600, 5)
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("alice"), "request %d", i)
	}
	assert.False(t, l.Allow("alice"))
}

func TestTokensReflectConsumption(t *testing.T) {
	l := NewLimiter(3600, 5)
	assert.InDelta(t, 5, l.Tokens("alice"), 0.1)

	for i := 0; i < 5; i++ {
		l.Allow("alice")
	}
	assert.Less(t, l.Tokens("alice"), 1.0)
}

func TestSubjectsAreIndependent(t *testing.T) {
	l := NewLimiter(3600, 1)
	assert.True(t, l.Allow("alice"))
	assert.False(t, l.Allow("alice"))
	assert.True(t, l.Allow("bob"))
}
