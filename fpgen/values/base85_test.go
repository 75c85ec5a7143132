package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeToken_Zero(t *testing.T) {
	t.Parallel()

	n, err := DecodeToken("00000")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestDecodeToken_Known(t *testing.T) {
	t.Parallel()

	// "0000A" encodes the integer 10 under this alphabet (digit 'A' is
	// index 10), matching a 5-char group with no value above 255.
	n, err := DecodeToken("0000A")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), n)
}

func TestDecodeToken_Monotonic(t *testing.T) {
	t.Parallel()

	a, err := DecodeToken("00001")
	require.NoError(t, err)
	b, err := DecodeToken("00002")
	require.NoError(t, err)
	assert.Less(t, a, b)
}

func TestDecodeToken_InvalidCharacter(t *testing.T) {
	t.Parallel()

	_, err := DecodeToken("00 00")
	assert.Error(t, err)
}

func TestDecodeToken_PartialGroup(t *testing.T) {
	t.Parallel()

	// A 1-char token is padded with four '~' (value 84) characters,
	// same trailing-pad trim rule as Python's base64.b85decode.
	n, err := DecodeToken("0")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}
