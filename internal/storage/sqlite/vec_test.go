package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3.125, 0}

	blob, err := serializeVector(in)
	require.NoError(t, err)
	assert.Len(t, blob, len(in)*4)

	out, err := deserializeVector(blob)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestVectorEmpty(t *testing.T) {
	blob, err := serializeVector(nil)
	require.NoError(t, err)
	assert.Nil(t, blob)

	vec, err := deserializeVector(nil)
	require.NoError(t, err)
	assert.Nil(t, vec)
}

func TestDeserializeVectorRejectsTornBlob(t *testing.T) {
	_, err := deserializeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
