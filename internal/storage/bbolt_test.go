package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/illarion/walletcrypt/internal/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Storage {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "wallet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Initialize())
	return db
}

func testKey(t *testing.T) (keys.KeyID, keys.PubKey, []byte) {
	t.Helper()
	k, err := keys.NewPrivateKey()
	require.NoError(t, err)
	pub := k.PubKey()
	return pub.ID(), pub, k.Bytes()
}

func TestOpenAndInitialize(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "wallet.db"))
	require.NoError(t, err)
	defer db.Close()

	initialized, err := db.IsInitialized()
	require.NoError(t, err)
	assert.False(t, initialized)

	require.NoError(t, db.Initialize())

	initialized, err = db.IsInitialized()
	require.NoError(t, err)
	assert.True(t, initialized)

	id, err := db.WalletID()
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	created, err := db.GetCreated()
	require.NoError(t, err)
	assert.False(t, created.IsZero())

	encrypted, err := db.IsEncrypted()
	require.NoError(t, err)
	assert.False(t, encrypted)
}

func TestKeyRecords(t *testing.T) {
	db := openTestDB(t)
	id, pub, secret := testKey(t)

	before, err := db.GetModified()
	require.NoError(t, err)

	require.NoError(t, db.PutKey(KeyRecord{ID: id, PubKey: pub, Secret: secret}))

	records, err := db.Keys()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, pub, records[0].PubKey)
	assert.Equal(t, secret, records[0].Secret)

	after, err := db.GetModified()
	require.NoError(t, err)
	assert.False(t, after.Before(before))
}

func TestPutKeyRejectsEmptyPubKey(t *testing.T) {
	db := openTestDB(t)
	err := db.PutKey(KeyRecord{Secret: make([]byte, 32)})
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestDecodeDetectsMismatchedID(t *testing.T) {
	id, _, _ := testKey(t)
	_, other, _ := testKey(t)

	value, err := encodeKeyValue(other, []byte("payload"))
	require.NoError(t, err)

	_, _, _, err = decodeKeyValue(id[:], value)
	assert.ErrorIs(t, err, ErrCorruptRecord)

	_, _, _, err = decodeKeyValue(id[:], []byte{40, 1, 2})
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestWatchOnly(t *testing.T) {
	db := openTestDB(t)
	_, pub, _ := testKey(t)

	require.NoError(t, db.PutWatchOnly(pub))

	pubs, err := db.WatchOnly()
	require.NoError(t, err)
	assert.Equal(t, []keys.PubKey{pub}, pubs)
}

func TestCommitEncryption(t *testing.T) {
	db := openTestDB(t)

	var crypted []CryptedKeyRecord
	for i := 0; i < 3; i++ {
		id, pub, secret := testKey(t)
		require.NoError(t, db.PutKey(KeyRecord{ID: id, PubKey: pub, Secret: secret}))
		crypted = append(crypted, CryptedKeyRecord{ID: id, PubKey: pub, Ciphertext: bytes.Repeat([]byte{byte(i)}, 48)})
	}

	mk := MasterKeyRecord{
		CryptedKey: bytes.Repeat([]byte{0xcc}, 48),
		Salt:       bytes.Repeat([]byte{0x01}, 16),
		Rounds:     1000,
	}
	mkID, err := db.CommitEncryption(mk, crypted)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), mkID)

	plain, err := db.Keys()
	require.NoError(t, err)
	assert.Empty(t, plain)

	stored, err := db.CryptedKeys()
	require.NoError(t, err)
	assert.ElementsMatch(t, crypted, stored)

	masters, err := db.MasterKeys()
	require.NoError(t, err)
	require.Len(t, masters, 1)
	assert.Equal(t, mkID, masters[0].ID)
	assert.Equal(t, mk.CryptedKey, masters[0].CryptedKey)
	assert.Equal(t, mk.Salt, masters[0].Salt)
	assert.Equal(t, uint32(1000), masters[0].Rounds)

	encrypted, err := db.IsEncrypted()
	require.NoError(t, err)
	assert.True(t, encrypted)
}

func TestUpdateMasterKey(t *testing.T) {
	db := openTestDB(t)

	id, err := db.CommitEncryption(MasterKeyRecord{CryptedKey: []byte("old"), Salt: []byte("salt"), Rounds: 1}, nil)
	require.NoError(t, err)

	require.NoError(t, db.UpdateMasterKey(MasterKeyRecord{ID: id, CryptedKey: []byte("new"), Salt: []byte("salt2"), Rounds: 2}))

	masters, err := db.MasterKeys()
	require.NoError(t, err)
	require.Len(t, masters, 1)
	assert.Equal(t, []byte("new"), masters[0].CryptedKey)
	assert.Equal(t, uint32(2), masters[0].Rounds)

	err = db.UpdateMasterKey(MasterKeyRecord{ID: id + 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLabels(t *testing.T) {
	db := openTestDB(t)
	id, _, _ := testKey(t)

	_, err := db.GetLabel(id)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.PutLabel(id, []byte("obfuscated")))

	got, err := db.GetLabel(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("obfuscated"), got)

	all, err := db.Labels()
	require.NoError(t, err)
	assert.Equal(t, map[keys.KeyID][]byte{id: []byte("obfuscated")}, all)
}

func TestCompactDropsFreedSecrets(t *testing.T) {
	db := openTestDB(t)

	id, pub, secret := testKey(t)
	require.NoError(t, db.PutKey(KeyRecord{ID: id, PubKey: pub, Secret: secret}))

	_, err := db.CommitEncryption(MasterKeyRecord{CryptedKey: []byte("mk"), Salt: []byte("salt"), Rounds: 1},
		[]CryptedKeyRecord{{ID: id, PubKey: pub, Ciphertext: bytes.Repeat([]byte{0x5a}, 48)}})
	require.NoError(t, err)
	require.NoError(t, db.Compact())

	raw, err := os.ReadFile(db.Path())
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, secret), "plaintext secret survived compaction")

	// Sequence survives compaction so master key ids are never reused.
	next, err := db.CommitEncryption(MasterKeyRecord{CryptedKey: []byte("mk2"), Salt: []byte("salt"), Rounds: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), next)
}

func TestCompactReopensAfterFailedReplace(t *testing.T) {
	db := openTestDB(t)
	id, pub, secret := testKey(t)
	require.NoError(t, db.PutKey(KeyRecord{ID: id, PubKey: pub, Secret: secret}))

	calls := 0
	rename = func(oldPath, newPath string) error {
		calls++
		if calls == 2 {
			return errors.New("disk full")
		}
		return os.Rename(oldPath, newPath)
	}
	t.Cleanup(func() { rename = os.Rename })

	err := db.Compact()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to replace database")

	records, err := db.Keys()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	require.NoError(t, db.PutLabel(id, []byte("after")))

	_, err = os.Stat(db.Path() + ".compact")
	assert.True(t, os.IsNotExist(err))
}

func TestCompactReopensAfterFailedBackup(t *testing.T) {
	db := openTestDB(t)
	rename = func(string, string) error { return errors.New("read-only") }
	t.Cleanup(func() { rename = os.Rename })

	require.Error(t, db.Compact())
	_, err := db.WalletID()
	require.NoError(t, err)
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.db")
	id, pub, secret := testKey(t)

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	walletID, err := db.WalletID()
	require.NoError(t, err)
	require.NoError(t, db.PutKey(KeyRecord{ID: id, PubKey: pub, Secret: secret}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	gotID, err := db.WalletID()
	require.NoError(t, err)
	assert.Equal(t, walletID, gotID)

	records, err := db.Keys()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, secret, records[0].Secret)
}
