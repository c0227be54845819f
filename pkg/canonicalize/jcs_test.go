package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCSKeyOrderIndependence(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1}
	b := map[string]any{"a": 1, "b": 2}

	ca, err := JCS(a)
	require.NoError(t, err)
	cb, err := JCS(b)
	require.NoError(t, err)

	assert.Equal(t, ca, cb)
	assert.JSONEq(t, `{"a":1,"b":2}`, string(ca))
}

func TestCanonicalHashStable(t *testing.T) {
	type rec struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	h1, err := CanonicalHash(rec{Name: "x", Count: 3})
	require.NoError(t, err)
	h2, err := CanonicalHash(rec{Name: "x", Count: 3})
	require.NoError(t, err)
	h3, err := CanonicalHash(rec{Name: "x", Count: 4})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Contains(t, h1, "sha256:")
}

func TestJCSRejectsUnmarshalable(t *testing.T) {
	_, err := JCS(make(chan int))
	assert.Error(t, err)
}
