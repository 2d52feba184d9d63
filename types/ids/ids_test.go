package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripHex(t *testing.T) {
	id := NewID([]byte("record"))
	parsed, err := FromString(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Len(t, id.String(), HexLen)
	assert.False(t, id.IsEmpty())
	assert.True(t, Empty.IsEmpty())
}

func TestFromStringRejects(t *testing.T) {
	_, err := FromString("abc")
	assert.Error(t, err)
	_, err = FromString(string(make([]byte, HexLen)))
	assert.Error(t, err)
}

func TestDeriveIsSalted(t *testing.T) {
	content := []byte(`{"record_id":"r1"}`)
	assert.NotEqual(t, Derive(content), Derive(content))
	assert.Equal(t, Digest(content), NewID(content).String())
}
