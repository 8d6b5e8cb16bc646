package core

import (
	"errors"
	"fmt"

	"github.com/illarion/walletcrypt/internal/crypto"
	"github.com/illarion/walletcrypt/internal/keys"
	"github.com/illarion/walletcrypt/internal/keystore"
	"github.com/illarion/walletcrypt/internal/storage"
)

// KeyInfo describes a key without exposing its secret.
type KeyInfo struct {
	ID        keys.KeyID
	PubKey    keys.PubKey
	Encrypted bool
	WatchOnly bool
	Label     string
}

// NewKey generates a compressed key and stores it. An encrypted wallet must
// be fully unlocked.
func (w *Wallet) NewKey() (keys.KeyID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.newKeyLocked()
}

func (w *Wallet) newKeyLocked() (keys.KeyID, error) {
	key, err := keys.NewPrivateKey()
	if err != nil {
		return keys.KeyID{}, err
	}
	return w.addKeyLocked(key)
}

// ImportKey stores a raw 32-byte secret. The caller keeps ownership of secret.
func (w *Wallet) ImportKey(secret []byte, compressed bool) (keys.KeyID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key, err := keys.PrivateKeyFromBytes(secret, compressed)
	if err != nil {
		return keys.KeyID{}, err
	}
	return w.addKeyLocked(key)
}

func (w *Wallet) addKeyLocked(key *keys.PrivateKey) (keys.KeyID, error) {
	pub := key.PubKey()
	id := pub.ID()

	if !w.vault.IsCrypted() {
		secret := key.Bytes()
		defer crypto.ClearBytes(secret)

		if err := w.vault.AddKeyPubKey(key, pub); err != nil {
			return id, err
		}
		if err := w.db.PutKey(storage.KeyRecord{ID: id, PubKey: pub, Secret: secret}); err != nil {
			return id, w.persistFailed(err)
		}
		return id, nil
	}

	if err := w.vault.AddKeyPubKey(key, pub); err != nil {
		key.Zero()
		return id, err
	}
	entry, ok := w.vault.CryptedKey(id)
	if !ok {
		return id, fmt.Errorf("key %s missing after add", id)
	}
	if err := w.db.PutCryptedKey(storage.CryptedKeyRecord{ID: id, PubKey: entry.PubKey, Ciphertext: entry.Ciphertext}); err != nil {
		return id, w.persistFailed(err)
	}
	return id, nil
}

// persistFailed reloads the vault so memory matches the wallet file. An
// encrypted wallet comes back locked.
func (w *Wallet) persistFailed(err error) error {
	err = fmt.Errorf("failed to write key: %w", err)
	if reloadErr := w.reload(); reloadErr != nil {
		return errors.Join(err, reloadErr)
	}
	return err
}

// AddWatchOnly records a public key the wallet tracks without its secret.
func (w *Wallet) AddWatchOnly(pubKey []byte) (keys.KeyID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pub, err := keys.ParsePubKey(pubKey)
	if err != nil {
		return keys.KeyID{}, err
	}
	if err := w.db.PutWatchOnly(pub); err != nil {
		return keys.KeyID{}, fmt.Errorf("failed to write watch-only key: %w", err)
	}
	w.vault.AddWatchOnly(pub)
	return pub.ID(), nil
}

// DumpKey returns the raw secret for id. The caller must wipe it. Encrypted
// wallets must be fully unlocked.
func (w *Wallet) DumpKey(id keys.KeyID) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.vault.State() == keystore.StateUnlockedMixingOnly {
		return nil, ErrLocked
	}
	key, err := w.vault.GetKey(id)
	if err != nil {
		return nil, err
	}
	defer key.Zero()
	return key.Bytes(), nil
}

// List returns every owned key followed by every watch-only key.
func (w *Wallet) List() ([]KeyInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	labels, err := w.db.Labels()
	if err != nil {
		return nil, err
	}

	encrypted := w.vault.IsCrypted()
	var infos []KeyInfo
	add := func(id keys.KeyID, watchOnly bool) error {
		pub, err := w.vault.GetPubKey(id)
		if err != nil {
			return fmt.Errorf("key %s: %w", id, err)
		}
		info := KeyInfo{ID: id, PubKey: pub, Encrypted: encrypted && !watchOnly, WatchOnly: watchOnly}
		if data, ok := labels[id]; ok {
			if info.Label, err = w.decodeLabel(data); err != nil {
				return fmt.Errorf("label for %s: %w", id, err)
			}
		}
		infos = append(infos, info)
		return nil
	}

	for _, id := range w.vault.KeyIDs() {
		if err := add(id, false); err != nil {
			return nil, err
		}
	}
	for _, id := range w.vault.WatchOnlyIDs() {
		if w.vault.HaveKey(id) {
			continue
		}
		if err := add(id, true); err != nil {
			return nil, err
		}
	}
	return infos, nil
}

// SetLabel attaches a label to a known key. Labels are obfuscated with the
// legacy fixed-key cipher, which hides them from casual inspection but is
// not confidential.
func (w *Wallet) SetLabel(id keys.KeyID, label string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.vault.HaveKey(id) && !w.vault.IsWatchOnly(id) {
		return ErrKeyNotFound
	}
	data, err := w.legacy.Encrypt([]byte(label))
	if err != nil {
		return err
	}
	return w.db.PutLabel(id, data)
}

// Label returns the label for id, or "" if none is set.
func (w *Wallet) Label(id keys.KeyID) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := w.db.GetLabel(id)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return w.decodeLabel(data)
}

func (w *Wallet) decodeLabel(data []byte) (string, error) {
	label, err := w.legacy.Decrypt(data)
	if err != nil {
		return "", err
	}
	return string(label), nil
}
