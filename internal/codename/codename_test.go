package codename

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReturnsWordPair(t *testing.T) {
	g := New()
	name, err := g.Generate(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, name)
	assert.Regexp(t, `^[a-z]+-[a-z]+$`, name)
}

func TestGenerateAvoidsExisting(t *testing.T) {
	g := New()
	existing := map[string]bool{}
	for i := 0; i < 200; i++ {
		name, err := g.Generate(existing)
		require.NoError(t, err)
		assert.False(t, existing[name], "returned an in-use codename %q", name)
		existing[name] = true
	}
}

func TestGenerateSaltedFallback(t *testing.T) {
	g := &Generator{
		words: func() string { return "amber-otter" },
		salt:  func() string { return "0z" },
		now:   time.Now,
	}
	existing := map[string]bool{"amber-otter": true}

	name, err := g.Generate(existing)
	require.NoError(t, err)
	assert.Equal(t, "amber-otter-0z", name)
}

func TestGenerateTimestampFallback(t *testing.T) {
	fixed := time.UnixMilli(1700000000123)
	g := &Generator{
		words: func() string { return "amber-otter" },
		salt:  func() string { return "0z" },
		now:   func() time.Time { return fixed },
	}
	// Every fresh pair and the salted pair collide, forcing the
	// timestamp-suffixed rung.
	existing := map[string]bool{
		"amber-otter":    true,
		"amber-otter-0z": true,
	}

	name, err := g.Generate(existing)
	require.NoError(t, err)

	ts := "amber-otter-" + timestampSuffix(fixed)
	assert.Equal(t, ts, name)
}

func TestGenerateEmptyWordFailsLoudly(t *testing.T) {
	g := &Generator{
		words: func() string { return "" },
		salt:  func() string { return "0z" },
		now:   time.Now,
	}
	_, err := g.Generate(nil)
	assert.Error(t, err)
}

func timestampSuffix(t time.Time) string {
	s := formatBase36(t.UnixMilli())
	return s[len(s)-2:]
}

func formatBase36(v int64) string {
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	if v == 0 {
		return "0"
	}
	var out []byte
	for v > 0 {
		out = append([]byte{digits[v%36]}, out...)
		v /= 36
	}
	return string(out)
}
