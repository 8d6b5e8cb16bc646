package core

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/illarion/walletcrypt/internal/crypto"
	"github.com/illarion/walletcrypt/internal/keys"
	"github.com/illarion/walletcrypt/internal/keystore"
	"github.com/illarion/walletcrypt/internal/security"
	"github.com/illarion/walletcrypt/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOpts = Options{Rounds: 1}

func createWallet(t *testing.T) (*Wallet, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := Create(dir, testOpts)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w, dir
}

func reopen(t *testing.T, w *Wallet) *Wallet {
	t.Helper()
	require.NoError(t, w.Close())
	w2, err := Open(w.Dir(), testOpts)
	require.NoError(t, err)
	t.Cleanup(func() { w2.Close() })
	return w2
}

func TestCreateAndOpen(t *testing.T) {
	w, dir := createWallet(t)
	assert.Equal(t, keystore.StatePlaintext, w.State())

	_, err := Create(dir, testOpts)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = Open(t.TempDir(), testOpts)
	assert.ErrorIs(t, err, ErrNotInitialized)

	id, err := w.ID()
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestPlaintextKeysPersist(t *testing.T) {
	w, _ := createWallet(t)

	secret := bytes.Repeat([]byte{0x21}, keys.SecretSize)
	imported, err := w.ImportKey(secret, false)
	require.NoError(t, err)
	generated, err := w.NewKey()
	require.NoError(t, err)

	w = reopen(t, w)

	got, err := w.DumpKey(imported)
	require.NoError(t, err)
	assert.Equal(t, secret, got)

	_, err = w.DumpKey(generated)
	require.NoError(t, err)

	infos, err := w.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	for _, info := range infos {
		assert.False(t, info.Encrypted)
		if info.ID == imported {
			assert.Len(t, info.PubKey, 65)
		}
	}
}

func TestImportKeyRejectsBadSecret(t *testing.T) {
	w, _ := createWallet(t)
	_, err := w.ImportKey(make([]byte, 16), true)
	assert.ErrorIs(t, err, keys.ErrInvalidSecret)

	// Secrets at or above the curve order must not be reduced into a different key.
	_, err = w.ImportKey(bytes.Repeat([]byte{0xFF}, keys.SecretSize), true)
	assert.ErrorIs(t, err, keys.ErrInvalidSecret)
	assert.Empty(t, w.vault.KeyIDs())
}

func TestEncryptWallet(t *testing.T) {
	w, dir := createWallet(t)

	secret := bytes.Repeat([]byte{0x5c}, keys.SecretSize)
	id, err := w.ImportKey(secret, true)
	require.NoError(t, err)

	require.NoError(t, w.Encrypt([]byte("correct horse")))
	assert.Equal(t, keystore.StateLocked, w.State())

	_, err = w.DumpKey(id)
	assert.ErrorIs(t, err, ErrLocked)

	assert.ErrorIs(t, w.Unlock([]byte("wrong"), false), ErrWrongPassphrase)
	require.NoError(t, w.Unlock([]byte("correct horse"), false))
	assert.Equal(t, keystore.StateUnlocked, w.State())

	got, err := w.DumpKey(id)
	require.NoError(t, err)
	assert.Equal(t, secret, got)

	raw, err := os.ReadFile(filepath.Join(dir, WalletFile))
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, secret), "plaintext secret left in wallet file")

	w = reopen(t, w)
	assert.Equal(t, keystore.StateLocked, w.State())
	require.NoError(t, w.Unlock([]byte("correct horse"), false))
	got, err = w.DumpKey(id)
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestEncryptTwice(t *testing.T) {
	w, _ := createWallet(t)
	require.NoError(t, w.Encrypt([]byte("pass")))
	assert.ErrorIs(t, w.Encrypt([]byte("pass")), ErrAlreadyEncrypted)
}

func TestEncryptRequiresPassphrase(t *testing.T) {
	w, _ := createWallet(t)
	assert.ErrorIs(t, w.Encrypt(nil), ErrPassphraseRequired)
	assert.Equal(t, keystore.StatePlaintext, w.State())
}

func TestEncryptEmptyWalletCreatesKey(t *testing.T) {
	w, _ := createWallet(t)
	require.NoError(t, w.Encrypt([]byte("pass")))

	st, err := w.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Keys)
	assert.Equal(t, 1, st.MasterKeys)

	require.NoError(t, w.Unlock([]byte("pass"), false))
}

func TestUnlockPlaintextWallet(t *testing.T) {
	w, _ := createWallet(t)
	assert.ErrorIs(t, w.Unlock([]byte("pass"), false), ErrNotEncrypted)
	assert.ErrorIs(t, w.Lock(false), ErrNotEncrypted)
}

func TestNewKeyRequiresFullUnlock(t *testing.T) {
	w, _ := createWallet(t)
	require.NoError(t, w.Encrypt([]byte("pass")))

	_, err := w.NewKey()
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, w.Unlock([]byte("pass"), true))
	assert.Equal(t, keystore.StateUnlockedMixingOnly, w.State())
	_, err = w.NewKey()
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, w.Unlock([]byte("pass"), false))
	id, err := w.NewKey()
	require.NoError(t, err)
	want, err := w.DumpKey(id)
	require.NoError(t, err)

	w = reopen(t, w)
	require.NoError(t, w.Unlock([]byte("pass"), false))
	got, err := w.DumpKey(id)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMixingOnlyBlocksDump(t *testing.T) {
	w, _ := createWallet(t)
	id, err := w.NewKey()
	require.NoError(t, err)
	require.NoError(t, w.Encrypt([]byte("pass")))

	require.NoError(t, w.Unlock([]byte("pass"), false))
	require.NoError(t, w.Lock(true))
	assert.Equal(t, keystore.StateUnlockedMixingOnly, w.State())

	_, err = w.DumpKey(id)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, w.Lock(false))
	assert.Equal(t, keystore.StateLocked, w.State())
}

func TestChangePassphrase(t *testing.T) {
	w, _ := createWallet(t)
	id, err := w.NewKey()
	require.NoError(t, err)
	require.NoError(t, w.Encrypt([]byte("old")))

	assert.ErrorIs(t, w.ChangePassphrase([]byte("nope"), []byte("new")), ErrWrongPassphrase)

	require.NoError(t, w.ChangePassphrase([]byte("old"), []byte("new")))
	assert.Equal(t, keystore.StateLocked, w.State())

	w = reopen(t, w)
	assert.ErrorIs(t, w.Unlock([]byte("old"), false), ErrWrongPassphrase)
	require.NoError(t, w.Unlock([]byte("new"), false))
	_, err = w.DumpKey(id)
	assert.NoError(t, err)
}

func TestChangePassphraseKeepsUnlockedState(t *testing.T) {
	w, _ := createWallet(t)
	require.NoError(t, w.Encrypt([]byte("old")))
	require.NoError(t, w.Unlock([]byte("old"), true))

	require.NoError(t, w.ChangePassphrase([]byte("old"), []byte("new")))
	assert.Equal(t, keystore.StateUnlockedMixingOnly, w.State())
}

func TestUnlockReportsCorruption(t *testing.T) {
	w, dir := createWallet(t)
	for i := 0; i < 2; i++ {
		_, err := w.NewKey()
		require.NoError(t, err)
	}
	require.NoError(t, w.Encrypt([]byte("pass")))
	require.NoError(t, w.Close())

	// Plant an entry wrapped under some other master key.
	db, err := storage.Open(filepath.Join(dir, WalletFile))
	require.NoError(t, err)
	key, err := keys.NewPrivateKey()
	require.NoError(t, err)
	pub := key.PubKey()
	otherMaster, err := crypto.GenerateRandom(crypto.KeySize)
	require.NoError(t, err)
	ct, err := crypto.WrapSecret(otherMaster, key.Bytes(), pub.Hash())
	require.NoError(t, err)
	require.NoError(t, db.PutCryptedKey(storage.CryptedKeyRecord{ID: pub.ID(), PubKey: pub, Ciphertext: ct}))
	require.NoError(t, db.Close())

	w, err = Open(dir, testOpts)
	require.NoError(t, err)
	defer w.Close()

	err = w.Unlock([]byte("pass"), false)
	assert.ErrorIs(t, err, ErrFatalCorruption)
	assert.Equal(t, keystore.StateLocked, w.State())
}

func TestWatchOnlyAndLabels(t *testing.T) {
	w, _ := createWallet(t)
	owned, err := w.NewKey()
	require.NoError(t, err)

	other, err := keys.NewPrivateKey()
	require.NoError(t, err)
	watched, err := w.AddWatchOnly(other.PubKey())
	require.NoError(t, err)

	_, err = w.AddWatchOnly([]byte{0x02, 0x01})
	assert.ErrorIs(t, err, keys.ErrInvalidPubKey)

	require.NoError(t, w.SetLabel(owned, "savings"))
	require.NoError(t, w.SetLabel(watched, "cold storage"))
	assert.ErrorIs(t, w.SetLabel(keys.KeyID{}, "x"), ErrKeyNotFound)

	require.NoError(t, w.Encrypt([]byte("pass")))
	w = reopen(t, w)

	label, err := w.Label(owned)
	require.NoError(t, err)
	assert.Equal(t, "savings", label)

	label, err = w.Label(keys.KeyID{})
	require.NoError(t, err)
	assert.Empty(t, label)

	infos, err := w.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, owned, infos[0].ID)
	assert.True(t, infos[0].Encrypted)
	assert.Equal(t, "savings", infos[0].Label)
	assert.Equal(t, watched, infos[1].ID)
	assert.True(t, infos[1].WatchOnly)
	assert.False(t, infos[1].Encrypted)
	assert.Equal(t, "cold storage", infos[1].Label)

	_, err = w.DumpKey(watched)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestStatus(t *testing.T) {
	var states []keystore.State
	dir := t.TempDir()
	w, err := Create(dir, Options{Rounds: 1, OnStatusChange: func(s keystore.State) { states = append(states, s) }})
	require.NoError(t, err)
	defer w.Close()

	_, err = w.NewKey()
	require.NoError(t, err)

	st, err := w.Status()
	require.NoError(t, err)
	assert.Equal(t, keystore.StatePlaintext, st.State)
	assert.Equal(t, 1, st.Keys)
	assert.Equal(t, 0, st.MasterKeys)
	assert.False(t, st.Created.IsZero())

	require.NoError(t, w.Encrypt([]byte("pass")))
	require.NoError(t, w.Unlock([]byte("pass"), false))
	require.NoError(t, w.Lock(false))
	assert.Equal(t, []keystore.State{keystore.StateUnlocked, keystore.StateLocked}, states)
}

func TestStatusCallbackMayUseWallet(t *testing.T) {
	var w *Wallet
	var seen []keystore.State
	opts := Options{Rounds: 1, OnStatusChange: func(keystore.State) {
		st, err := w.Status()
		if assert.NoError(t, err) {
			seen = append(seen, st.State)
		}
	}}
	w, err := Create(t.TempDir(), opts)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Encrypt([]byte("pass")))

	done := make(chan error, 1)
	go func() {
		if err := w.Unlock([]byte("pass"), false); err != nil {
			done <- err
			return
		}
		if err := w.ChangePassphrase([]byte("pass"), []byte("new")); err != nil {
			done <- err
			return
		}
		done <- w.Lock(false)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("wallet operation blocked inside status callback")
	}
	require.NotEmpty(t, seen)
	assert.Equal(t, keystore.StateUnlocked, seen[0])
	assert.Equal(t, keystore.StateLocked, seen[len(seen)-1])
}

func TestConcurrentLockAndDump(t *testing.T) {
	w, _ := createWallet(t)
	secret := bytes.Repeat([]byte{0x42}, keys.SecretSize)
	id, err := w.ImportKey(secret, true)
	require.NoError(t, err)
	require.NoError(t, w.Encrypt([]byte("pass")))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			assert.NoError(t, w.Unlock([]byte("pass"), false))
			assert.NoError(t, w.Lock(true))
			_ = w.State()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			got, err := w.DumpKey(id)
			if err != nil {
				assert.ErrorIs(t, err, ErrLocked)
				continue
			}
			assert.Equal(t, secret, got)
		}
	}()
	wg.Wait()
}

func TestExportAndDiff(t *testing.T) {
	w, _ := createWallet(t)
	_, err := w.NewKey()
	require.NoError(t, err)

	require.NoError(t, w.ExportPublicKeys("exports/keys.json", []byte("export pass")))

	d, err := w.DiffExport("exports/keys.json", []byte("export pass"))
	require.NoError(t, err)
	assert.True(t, d.Empty())
	assert.True(t, d.SameWallet)

	added, err := w.NewKey()
	require.NoError(t, err)

	d, err = w.DiffExport("exports/keys.json", []byte("export pass"))
	require.NoError(t, err)
	require.Len(t, d.Added, 1)
	assert.Contains(t, d.Added[0], added.String())
	assert.Empty(t, d.Removed)
	assert.NotEmpty(t, d.Patch)

	d, err = w.DiffExport("exports/keys.json", []byte("wrong"))
	if err != nil {
		assert.ErrorIs(t, err, ErrWrongPassphrase)
	} else {
		assert.False(t, d.Empty())
	}
}

func TestDiffRejectsExcessiveRounds(t *testing.T) {
	w, dir := createWallet(t)
	_, err := w.NewKey()
	require.NoError(t, err)
	require.NoError(t, w.ExportPublicKeys("keys.json", []byte("export pass")))

	path := filepath.Join(dir, "keys.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var f map[string]any
	require.NoError(t, json.Unmarshal(data, &f))
	f["rounds"] = math.MaxUint32
	data, err = json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, err = w.DiffExport("keys.json", []byte("export pass"))
	assert.ErrorIs(t, err, ErrInvalidExport)
}

func TestExportConfinedToWalletDir(t *testing.T) {
	w, _ := createWallet(t)
	err := w.ExportPublicKeys("../keys.json", []byte("pass"))
	assert.ErrorIs(t, err, security.ErrPathEscapes)

	_, err = w.DiffExport("missing.json", []byte("pass"))
	assert.Error(t, err)
}
