package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key, err := DeriveKey("hunter2", []byte("salt"))
	require.NoError(t, err)

	sealed, err := Seal([]byte("pinned"), key)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "pinned")

	plain, err := Open(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, "pinned", string(plain))

	again, err := Seal([]byte("pinned"), key)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce is random")
}

func TestDeriveKeyDeterministic(t *testing.T) {
	a, err := DeriveKey("pw", []byte("s"))
	require.NoError(t, err)
	b, err := DeriveKey("pw", []byte("s"))
	require.NoError(t, err)
	c, err := DeriveKey("pw", []byte("other"))
	require.NoError(t, err)
	assert.Equal(t, *a, *b)
	assert.NotEqual(t, *a, *c)
}

func TestOpenWrongKey(t *testing.T) {
	good, _ := DeriveKey("right", nil)
	bad, _ := DeriveKey("wrong", nil)
	sealed, err := Seal([]byte("x"), good)
	require.NoError(t, err)

	_, err = Open(sealed, bad)
	assert.ErrorIs(t, err, ErrOpen)

	_, err = Open(sealed[:10], good)
	assert.Error(t, err)
}
