package agent

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeScalarsPassThrough(t *testing.T) {
	assert.Nil(t, Sanitize(nil))
	assert.Equal(t, "hi", Sanitize("hi"))
	assert.Equal(t, 42, Sanitize(42))
	assert.Equal(t, 4.2, Sanitize(4.2))
	assert.Equal(t, true, Sanitize(true))
}

func TestSanitizeError(t *testing.T) {
	got := Sanitize(errors.New("it broke")).(map[string]any)
	assert.Equal(t, "it broke", got["message"])
	assert.NotEmpty(t, got["name"])
	assert.Contains(t, got, "stack")
}

func TestSanitizeBigInt(t *testing.T) {
	v, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	assert.Equal(t, "123456789012345678901234567890", Sanitize(v))
}

func TestSanitizeFunction(t *testing.T) {
	got := Sanitize(func() {})
	_, isString := got.(string)
	assert.True(t, isString)
}

func TestSanitizeMixedStructureIsSerializable(t *testing.T) {
	huge, _ := new(big.Int).SetString("987654321098765432109876543210", 10)
	input := map[string]any{
		"err":    errors.New("deep failure"),
		"big":    huge,
		"plain":  map[string]any{"k": "v", "n": 7},
		"listed": []any{errors.New("inner"), "ok", 3},
	}

	got := Sanitize(input)

	raw, err := json.Marshal(got)
	require.NoError(t, err, "sanitized value must always marshal")

	m := got.(map[string]any)
	errObj := m["err"].(map[string]any)
	assert.Equal(t, "deep failure", errObj["message"])
	assert.Contains(t, errObj, "name")
	assert.Contains(t, errObj, "stack")
	assert.Equal(t, "987654321098765432109876543210", m["big"])
	assert.NotEmpty(t, raw)
}

func TestSanitizeStructViaJSONRoundTrip(t *testing.T) {
	type point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	got := Sanitize(point{X: 1, Y: 2})
	assert.Equal(t, map[string]any{"x": 1.0, "y": 2.0}, got)
}

func TestSanitizeUnmarshalableFallsBackToString(t *testing.T) {
	got := Sanitize(make(chan int))
	_, isString := got.(string)
	assert.True(t, isString)
}
