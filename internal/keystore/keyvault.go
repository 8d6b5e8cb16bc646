package keystore

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/illarion/walletcrypt/internal/crypto"
	"github.com/illarion/walletcrypt/internal/keys"
)

// State is the lock state of a KeyVault.
type State int

const (
	StatePlaintext State = iota
	StateLocked
	StateUnlocked
	StateUnlockedMixingOnly
)

func (s State) String() string {
	switch s {
	case StatePlaintext:
		return "plaintext"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	case StateUnlockedMixingOnly:
		return "unlocked (mixing only)"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EncryptedEntry is a public key and its secret wrapped under the master key.
type EncryptedEntry struct {
	PubKey     keys.PubKey
	Ciphertext []byte
}

func (e EncryptedEntry) clone() EncryptedEntry {
	return EncryptedEntry{
		PubKey:     append(keys.PubKey(nil), e.PubKey...),
		Ciphertext: append([]byte(nil), e.Ciphertext...),
	}
}

// KeyVault stores signing keys in plaintext or encrypted form.
type KeyVault struct {
	mu sync.Mutex

	useCrypto         bool
	mixingOnly        bool
	thoroughlyChecked bool
	masterKey         *memguard.Enclave

	plain     map[keys.KeyID]*keys.PrivateKey
	crypted   map[keys.KeyID]EncryptedEntry
	watchOnly map[keys.KeyID]keys.PubKey

	observers []func()
	logger    *slog.Logger
}

// New creates an empty KeyVault in the plaintext state.
func New(opts ...Option) *KeyVault {
	v := &KeyVault{
		plain:     make(map[keys.KeyID]*keys.PrivateKey),
		crypted:   make(map[keys.KeyID]EncryptedEntry),
		watchOnly: make(map[keys.KeyID]keys.PubKey),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// State returns the current lock state.
func (v *KeyVault) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *KeyVault) stateLocked() State {
	switch {
	case !v.useCrypto:
		return StatePlaintext
	case v.masterKey == nil:
		return StateLocked
	case v.mixingOnly:
		return StateUnlockedMixingOnly
	default:
		return StateUnlocked
	}
}

// IsCrypted reports whether the vault is in encrypted mode.
func (v *KeyVault) IsCrypted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.useCrypto
}

// IsLocked reports whether the vault is encrypted and holds no master key.
func (v *KeyVault) IsLocked() bool {
	return v.State() == StateLocked
}

// EnableEncryption switches the vault to encrypted mode. It is a no-op when
// already encrypted, and fails with ErrAlreadyKeyed while plaintext keys
// exist, since they would become unreachable.
func (v *KeyVault) EnableEncryption() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.enableEncryptionLocked()
}

func (v *KeyVault) enableEncryptionLocked() error {
	if len(v.plain) > 0 {
		return ErrAlreadyKeyed
	}
	if !v.useCrypto {
		v.useCrypto = true
		v.logger.Debug("key store switched to encrypted mode")
	}
	return nil
}

// EncryptKeys wraps every plaintext key under masterKey and moves the vault
// to the locked state. Either every key is migrated or the vault is left
// untouched in the plaintext state. The caller keeps ownership of masterKey.
func (v *KeyVault) EncryptKeys(masterKey []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.useCrypto || len(v.crypted) > 0 {
		return ErrAlreadyEncrypted
	}
	if len(masterKey) != crypto.KeySize {
		return fmt.Errorf("%w: master key must be %d bytes", crypto.ErrInvalidParameter, crypto.KeySize)
	}

	crypted := make(map[keys.KeyID]EncryptedEntry, len(v.plain))
	for id, key := range v.plain {
		entry, err := encryptKey(masterKey, key, key.PubKey())
		if err != nil {
			return fmt.Errorf("encrypting key %s: %w", id, err)
		}
		crypted[id] = entry
	}

	for id, key := range v.plain {
		key.Zero()
		delete(v.plain, id)
	}
	v.crypted = crypted
	v.useCrypto = true
	v.masterKey = nil
	v.mixingOnly = false

	v.logger.Debug("key store encrypted", "keys", len(crypted))
	return nil
}

// Lock discards the master key. With allowMixing the master key is kept and
// the vault moves to the restricted mixing-only state instead.
func (v *KeyVault) Lock(allowMixing bool) error {
	err := func() error {
		v.mu.Lock()
		defer v.mu.Unlock()

		if !v.useCrypto {
			return ErrNotEncrypted
		}
		if !allowMixing {
			v.masterKey = nil
		}
		v.mixingOnly = allowMixing

		v.logger.Debug("key store locked", "state", v.stateLocked())
		return nil
	}()
	if err != nil {
		return err
	}

	v.notify()
	return nil
}

// Unlock validates masterKey against the stored entries and, if it
// matches, keeps it as the active master key. Unlock takes ownership of
// masterKey and wipes it on every path.
//
// Entries are tried in identifier order. The first successful unlock checks
// every entry. Later unlocks stop at the first entry that decrypts. A key that decrypts some entries but not
// others returns a *CorruptionError.
func (v *KeyVault) Unlock(masterKey []byte, forMixingOnly bool) error {
	defer crypto.ClearBytes(masterKey)

	err := func() error {
		v.mu.Lock()
		defer v.mu.Unlock()

		if !v.useCrypto {
			return ErrNotEncrypted
		}
		if len(masterKey) != crypto.KeySize {
			return fmt.Errorf("%w: master key must be %d bytes", crypto.ErrInvalidParameter, crypto.KeySize)
		}

		ids := make([]keys.KeyID, 0, len(v.crypted))
		for id := range v.crypted {
			ids = append(ids, id)
		}
		sortIDs(ids)

		matched, failed := 0, 0
		for _, id := range ids {
			key, err := decryptKey(masterKey, v.crypted[id])
			if err != nil {
				v.logger.Debug("entry failed to decrypt", "key_id", id.String(), "error", err)
				failed++
				continue
			}
			key.Zero()
			matched++
			if v.thoroughlyChecked {
				break
			}
		}

		if matched > 0 && failed > 0 {
			v.logger.Error("key store is probably corrupted: some keys decrypt but not all",
				"decrypted", matched, "failed", failed)
			return &CorruptionError{Matched: matched, Failed: failed}
		}
		if matched == 0 {
			return ErrWrongPassphrase
		}

		v.masterKey = memguard.NewEnclave(masterKey)
		v.mixingOnly = forMixingOnly
		v.thoroughlyChecked = true

		v.logger.Debug("key store unlocked", "state", v.stateLocked())
		return nil
	}()
	if err != nil {
		return err
	}

	v.notify()
	return nil
}

// AddKeyPubKey stores key under pub's identifier. In encrypted mode the vault
// must be fully unlocked; the key is wrapped and then zeroed. The vault takes
// ownership of key.
func (v *KeyVault) AddKeyPubKey(key *keys.PrivateKey, pub keys.PubKey) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !key.VerifyPubKey(pub) {
		return ErrKeyMismatch
	}
	id := pub.ID()

	if !v.useCrypto {
		v.plain[id] = key
		return nil
	}
	if v.masterKey == nil || v.mixingOnly {
		return ErrLocked
	}

	mk, err := v.masterKey.Open()
	if err != nil {
		return fmt.Errorf("opening master key: %w", err)
	}
	defer mk.Destroy()

	entry, err := encryptKey(mk.Bytes(), key, pub)
	if err != nil {
		return err
	}
	key.Zero()
	v.crypted[id] = entry
	return nil
}

// AddCryptedKey stores an already wrapped key, switching the vault to
// encrypted mode if needed.
func (v *KeyVault) AddCryptedKey(pub keys.PubKey, ciphertext []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.enableEncryptionLocked(); err != nil {
		return err
	}
	entry := EncryptedEntry{PubKey: pub, Ciphertext: ciphertext}.clone()
	v.crypted[pub.ID()] = entry
	return nil
}

// AddWatchOnly records a public key the wallet watches but cannot sign for.
func (v *KeyVault) AddWatchOnly(pub keys.PubKey) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.watchOnly[pub.ID()] = append(keys.PubKey(nil), pub...)
}

// GetKey returns a copy of the private key for id. The caller must Zero it.
func (v *KeyVault) GetKey(id keys.KeyID) (*keys.PrivateKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.useCrypto {
		key, ok := v.plain[id]
		if !ok {
			return nil, ErrKeyNotFound
		}
		secret := key.Bytes()
		defer crypto.ClearBytes(secret)
		return keys.PrivateKeyFromBytes(secret, key.IsCompressed())
	}

	if v.masterKey == nil {
		return nil, ErrLocked
	}
	entry, ok := v.crypted[id]
	if !ok {
		return nil, ErrKeyNotFound
	}

	mk, err := v.masterKey.Open()
	if err != nil {
		return nil, fmt.Errorf("opening master key: %w", err)
	}
	defer mk.Destroy()

	return decryptKey(mk.Bytes(), entry)
}

// GetPubKey returns the public key for id. It works in every state and
// falls back to watch-only keys.
func (v *KeyVault) GetPubKey(id keys.KeyID) (keys.PubKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.useCrypto {
		if key, ok := v.plain[id]; ok {
			return key.PubKey(), nil
		}
	} else if entry, ok := v.crypted[id]; ok {
		return append(keys.PubKey(nil), entry.PubKey...), nil
	}

	if pub, ok := v.watchOnly[id]; ok {
		return append(keys.PubKey(nil), pub...), nil
	}
	return nil, ErrKeyNotFound
}

// HaveKey reports whether a private key is stored for id.
func (v *KeyVault) HaveKey(id keys.KeyID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.useCrypto {
		_, ok := v.plain[id]
		return ok
	}
	_, ok := v.crypted[id]
	return ok
}

// IsWatchOnly reports whether id is a watch-only key.
func (v *KeyVault) IsWatchOnly(id keys.KeyID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.watchOnly[id]
	return ok
}

// KeyIDs returns the identifiers of all private keys, sorted.
func (v *KeyVault) KeyIDs() []keys.KeyID {
	v.mu.Lock()
	defer v.mu.Unlock()

	var ids []keys.KeyID
	if v.useCrypto {
		for id := range v.crypted {
			ids = append(ids, id)
		}
	} else {
		for id := range v.plain {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids
}

// WatchOnlyIDs returns the identifiers of all watch-only keys, sorted.
func (v *KeyVault) WatchOnlyIDs() []keys.KeyID {
	v.mu.Lock()
	defer v.mu.Unlock()

	ids := make([]keys.KeyID, 0, len(v.watchOnly))
	for id := range v.watchOnly {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// CryptedKey returns a copy of the encrypted entry for id.
func (v *KeyVault) CryptedKey(id keys.KeyID) (EncryptedEntry, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entry, ok := v.crypted[id]
	if !ok {
		return EncryptedEntry{}, false
	}
	return entry.clone(), true
}

// CryptedKeys returns copies of all encrypted entries keyed by identifier.
func (v *KeyVault) CryptedKeys() map[keys.KeyID]EncryptedEntry {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make(map[keys.KeyID]EncryptedEntry, len(v.crypted))
	for id, entry := range v.crypted {
		out[id] = entry.clone()
	}
	return out
}

func (v *KeyVault) notify() {
	for _, fn := range v.observers {
		fn()
	}
}

func encryptKey(masterKey []byte, key *keys.PrivateKey, pub keys.PubKey) (EncryptedEntry, error) {
	secret := key.Bytes()
	defer crypto.ClearBytes(secret)

	ciphertext, err := crypto.WrapSecret(masterKey, secret, pub.Hash())
	if err != nil {
		return EncryptedEntry{}, err
	}
	return EncryptedEntry{
		PubKey:     append(keys.PubKey(nil), pub...),
		Ciphertext: ciphertext,
	}, nil
}

func decryptKey(masterKey []byte, entry EncryptedEntry) (*keys.PrivateKey, error) {
	secret, err := crypto.UnwrapSecret(masterKey, entry.Ciphertext, entry.PubKey.Hash())
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(secret)

	key, err := keys.PrivateKeyFromBytes(secret, entry.PubKey.IsCompressed())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crypto.ErrIntegrity, err)
	}
	if !key.VerifyPubKey(entry.PubKey) {
		key.Zero()
		return nil, fmt.Errorf("%w: %w", crypto.ErrIntegrity, ErrKeyMismatch)
	}
	return key, nil
}

func sortIDs(ids []keys.KeyID) {
	slices.SortFunc(ids, func(a, b keys.KeyID) int {
		return bytes.Compare(a[:], b[:])
	})
}
