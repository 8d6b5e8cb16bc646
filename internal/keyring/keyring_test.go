package keyring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestPassphraseRoundTrip(t *testing.T) {
	keyring.MockInit()

	const id = "9b7c1f0e-wallet"
	assert.False(t, HasPassphrase(id))

	_, err := GetPassphrase(id)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, SavePassphrase(id, []byte("correct horse")))
	assert.True(t, HasPassphrase(id))

	got, err := GetPassphrase(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("correct horse"), got)

	require.NoError(t, DeletePassphrase(id))
	assert.False(t, HasPassphrase(id))
	assert.NoError(t, DeletePassphrase(id))
}
