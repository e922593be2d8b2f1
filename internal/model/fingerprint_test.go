package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_StableAndStructural(t *testing.T) {
	a := NewQuery("q")
	a.Pipeline[0].Fields = append(a.Pipeline[0].Fields, &Reference{Path: "name"})
	b := a.Clone()

	assert.Equal(t, MustFingerprint(a), MustFingerprint(b))
	assert.Len(t, MustFingerprint(a), 64)

	b.Pipeline[0].Fields = append(b.Pipeline[0].Fields, &Reference{Path: "state"})
	assert.NotEqual(t, MustFingerprint(a), MustFingerprint(b))
}

func TestFingerprint_NFCNormalised(t *testing.T) {
	// "é" precomposed vs "e" + combining acute accent.
	a := NewQuery("caf\u00e9")
	b := NewQuery("cafe\u0301")
	assert.Equal(t, MustFingerprint(a), MustFingerprint(b))
}

func TestFingerprint_NilQuery(t *testing.T) {
	_, err := Fingerprint(nil)
	require.Error(t, err)
}

func TestArgumentsFingerprint(t *testing.T) {
	a, err := ArgumentsFingerprint(map[string]string{"x": "1", "y": "'a'"})
	require.NoError(t, err)
	b, err := ArgumentsFingerprint(map[string]string{"y": "'a'", "x": "1"})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	empty, err := ArgumentsFingerprint(nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, empty)
}
