package keys

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrivateKey(t *testing.T) {
	k, err := NewPrivateKey()
	require.NoError(t, err)

	pub := k.PubKey()
	assert.True(t, pub.IsCompressed())
	assert.Len(t, pub, 33)
	assert.True(t, k.VerifyPubKey(pub))
	assert.Len(t, k.Bytes(), SecretSize)
}

func TestPrivateKeyFromBytes(t *testing.T) {
	secret := bytes.Repeat([]byte{0xAB}, SecretSize)

	compressed, err := PrivateKeyFromBytes(secret, true)
	require.NoError(t, err)
	uncompressed, err := PrivateKeyFromBytes(secret, false)
	require.NoError(t, err)

	assert.Equal(t, secret, compressed.Bytes())
	assert.Len(t, uncompressed.PubKey(), 65)
	assert.NotEqual(t, compressed.PubKey().ID(), uncompressed.PubKey().ID())
	assert.False(t, compressed.VerifyPubKey(uncompressed.PubKey()))
}

func TestPrivateKeyFromBytes_Invalid(t *testing.T) {
	_, err := PrivateKeyFromBytes(make([]byte, 31), true)
	assert.ErrorIs(t, err, ErrInvalidSecret)
	_, err = PrivateKeyFromBytes(make([]byte, SecretSize), true)
	assert.ErrorIs(t, err, ErrInvalidSecret)
}

func TestPrivateKeyFromBytes_OutOfRange(t *testing.T) {
	order, err := hex.DecodeString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141")
	require.NoError(t, err)
	belowOrder := bytes.Clone(order)
	belowOrder[SecretSize-1]--

	tests := []struct {
		name   string
		secret []byte
	}{
		{"curve order", order},
		{"all ones", bytes.Repeat([]byte{0xFF}, SecretSize)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PrivateKeyFromBytes(tt.secret, true)
			assert.ErrorIs(t, err, ErrInvalidSecret)
		})
	}

	k, err := PrivateKeyFromBytes(belowOrder, true)
	require.NoError(t, err)
	assert.Equal(t, belowOrder, k.Bytes())
}

func TestPubKey_IDAndHash(t *testing.T) {
	k, err := PrivateKeyFromBytes(bytes.Repeat([]byte{0x01}, SecretSize), true)
	require.NoError(t, err)
	pub := k.PubKey()

	assert.Equal(t, pub.ID(), pub.ID())
	assert.Len(t, pub.Hash(), 32)

	parsed, err := ParseKeyID(pub.ID().String())
	require.NoError(t, err)
	assert.Equal(t, pub.ID(), parsed)
}

func TestParsePubKey(t *testing.T) {
	k, err := NewPrivateKey()
	require.NoError(t, err)

	pub, err := ParsePubKey(k.PubKey())
	require.NoError(t, err)
	assert.Equal(t, k.PubKey(), pub)

	_, err = ParsePubKey([]byte{0x02, 0x01})
	assert.ErrorIs(t, err, ErrInvalidPubKey)
}

func TestParseKeyID_Invalid(t *testing.T) {
	_, err := ParseKeyID("zz")
	assert.Error(t, err)
	_, err = ParseKeyID("abcd")
	assert.Error(t, err)
}
