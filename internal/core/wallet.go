package core

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/illarion/walletcrypt/internal/crypto"
	"github.com/illarion/walletcrypt/internal/keys"
	"github.com/illarion/walletcrypt/internal/keystore"
	"github.com/illarion/walletcrypt/internal/security"
	"github.com/illarion/walletcrypt/internal/storage"
)

const (
	WalletFile     = "wallet.db"
	FilePermSecure = 0600 // File: owner rw only
)

// Options configures a Wallet.
type Options struct {
	// Rounds is the derive iteration count for new master key records.
	Rounds uint32
	Logger *slog.Logger
	// OnStatusChange runs after every successful lock or unlock, once the
	// wallet's own lock has been released. It may call back into the Wallet.
	OnStatusChange func(keystore.State)
}

func (o Options) withDefaults() Options {
	if o.Rounds == 0 {
		o.Rounds = crypto.DefaultRounds
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Wallet is an open wallet directory.
type Wallet struct {
	mu sync.Mutex

	dir        string
	db         *storage.Storage
	vault      *keystore.KeyVault
	masterKeys []storage.MasterKeyRecord
	legacy     *crypto.LegacyCipher
	validator  *security.PathValidator
	opts       Options
	closed     bool
	// pending holds state changes seen under mu, delivered by unlock.
	pending []keystore.State
}

// Create initializes a new plaintext wallet in dir.
func Create(dir string, opts Options) (*Wallet, error) {
	path := filepath.Join(dir, WalletFile)
	if _, err := os.Stat(path); err == nil {
		return nil, ErrAlreadyExists
	}

	db, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	if err := db.Initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return newWallet(dir, db, opts)
}

// Open loads an existing wallet from dir.
func Open(dir string, opts Options) (*Wallet, error) {
	path := filepath.Join(dir, WalletFile)
	if _, err := os.Stat(path); err != nil {
		return nil, ErrNotInitialized
	}

	db, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	initialized, err := db.IsInitialized()
	if err != nil || !initialized {
		db.Close()
		return nil, ErrNotInitialized
	}

	return newWallet(dir, db, opts)
}

func newWallet(dir string, db *storage.Storage, opts Options) (*Wallet, error) {
	w := &Wallet{dir: dir, db: db, opts: opts.withDefaults()}

	legacy, err := crypto.NewLegacyCipher()
	if err != nil {
		db.Close()
		return nil, err
	}
	w.legacy = legacy

	validator, err := security.New(dir)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to initialize path validator: %w", err)
	}
	w.validator = validator

	if err := w.reload(); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// Close releases the wallet file and wipes in-memory secrets.
func (w *Wallet) Close() error {
	w.mu.Lock()
	defer w.unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.vault != nil && w.vault.IsCrypted() {
		_ = w.vault.Lock(false)
	}
	if w.legacy != nil {
		w.legacy.Destroy()
	}
	if w.validator != nil {
		w.validator.Close()
	}
	return w.db.Close()
}

// Dir returns the wallet directory.
func (w *Wallet) Dir() string {
	return w.dir
}

// ID returns the wallet's UUID.
func (w *Wallet) ID() (string, error) {
	return w.db.WalletID()
}

// State returns the key store lock state.
func (w *Wallet) State() keystore.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.vault.State()
}

// unlock releases mu and then delivers any queued state changes.
func (w *Wallet) unlock() {
	pending := w.pending
	w.pending = nil
	w.mu.Unlock()

	if w.opts.OnStatusChange == nil {
		return
	}
	for _, state := range pending {
		w.opts.OnStatusChange(state)
	}
}

// reload rebuilds the vault from the wallet file, discarding in-memory state.
func (w *Wallet) reload() error {
	vault, masterKeys, err := w.load()
	if err != nil {
		return err
	}
	w.vault = vault
	w.masterKeys = masterKeys
	return nil
}

func (w *Wallet) load() (*keystore.KeyVault, []storage.MasterKeyRecord, error) {
	var vault *keystore.KeyVault
	vault = keystore.New(
		keystore.WithLogger(w.opts.Logger),
		keystore.WithStatusObserver(func() {
			state := vault.State()
			w.opts.Logger.Info("wallet lock state changed", "state", state.String())
			w.pending = append(w.pending, state)
		}),
	)

	masterKeys, err := w.db.MasterKeys()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load master keys: %w", err)
	}

	plain, err := w.db.Keys()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load keys: %w", err)
	}
	defer func() {
		for _, rec := range plain {
			crypto.ClearBytes(rec.Secret)
		}
	}()
	if len(masterKeys) > 0 && len(plain) > 0 {
		return nil, nil, fmt.Errorf("%w: plaintext keys in encrypted wallet", storage.ErrCorruptRecord)
	}

	for _, rec := range plain {
		key, err := keys.PrivateKeyFromBytes(rec.Secret, rec.PubKey.IsCompressed())
		if err != nil {
			return nil, nil, fmt.Errorf("key %s: %w", rec.ID, err)
		}
		if err := vault.AddKeyPubKey(key, rec.PubKey); err != nil {
			return nil, nil, fmt.Errorf("key %s: %w", rec.ID, err)
		}
	}

	crypted, err := w.db.CryptedKeys()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load encrypted keys: %w", err)
	}
	for _, rec := range crypted {
		if err := vault.AddCryptedKey(rec.PubKey, rec.Ciphertext); err != nil {
			return nil, nil, fmt.Errorf("key %s: %w", rec.ID, err)
		}
	}
	if len(masterKeys) > 0 {
		if err := vault.EnableEncryption(); err != nil {
			return nil, nil, err
		}
	}

	watch, err := w.db.WatchOnly()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load watch-only keys: %w", err)
	}
	for _, pub := range watch {
		vault.AddWatchOnly(pub)
	}

	return vault, masterKeys, nil
}

// Encrypt wraps every key under a new random master key and leaves the
// wallet locked. An empty wallet gets a fresh key first so the passphrase
// can be verified later.
func (w *Wallet) Encrypt(passphrase []byte) error {
	w.mu.Lock()
	defer w.unlock()

	if w.vault.IsCrypted() {
		return ErrAlreadyEncrypted
	}
	if len(passphrase) == 0 {
		return ErrPassphraseRequired
	}

	if len(w.vault.KeyIDs()) == 0 {
		if _, err := w.newKeyLocked(); err != nil {
			return fmt.Errorf("failed to create initial key: %w", err)
		}
	}

	masterKey, err := crypto.GenerateRandom(crypto.KeySize)
	if err != nil {
		return fmt.Errorf("failed to generate master key: %w", err)
	}
	defer crypto.ClearBytes(masterKey)

	rec, err := w.wrapMasterKey(masterKey, passphrase)
	if err != nil {
		return err
	}

	if err := w.vault.EncryptKeys(masterKey); err != nil {
		return fmt.Errorf("failed to encrypt keys: %w", err)
	}

	entries := w.vault.CryptedKeys()
	records := make([]storage.CryptedKeyRecord, 0, len(entries))
	for id, entry := range entries {
		records = append(records, storage.CryptedKeyRecord{ID: id, PubKey: entry.PubKey, Ciphertext: entry.Ciphertext})
	}

	id, err := w.db.CommitEncryption(rec, records)
	if err != nil {
		if reloadErr := w.reload(); reloadErr != nil {
			return errors.Join(fmt.Errorf("failed to write encrypted keys: %w", err), reloadErr)
		}
		return fmt.Errorf("failed to write encrypted keys: %w", err)
	}
	rec.ID = id
	w.masterKeys = append(w.masterKeys, rec)
	w.opts.Logger.Info("wallet encrypted", "keys", len(records), "rounds", rec.Rounds)

	if err := w.db.Compact(); err != nil {
		return fmt.Errorf("wallet encrypted but compaction failed, plaintext keys may remain on disk: %w", err)
	}
	return nil
}

// Unlock tries the passphrase against every master key record.
func (w *Wallet) Unlock(passphrase []byte, mixingOnly bool) error {
	w.mu.Lock()
	defer w.unlock()

	if !w.vault.IsCrypted() {
		return ErrNotEncrypted
	}
	_, masterKey, err := w.unlockLocked(passphrase, mixingOnly)
	crypto.ClearBytes(masterKey)
	return err
}

// unlockLocked returns the index of the matching master key record and a
// copy of the master key the caller must wipe.
func (w *Wallet) unlockLocked(passphrase []byte, mixingOnly bool) (int, []byte, error) {
	for i, rec := range w.masterKeys {
		masterKey, err := w.unwrapMasterKey(rec, passphrase)
		if err != nil {
			w.opts.Logger.Debug("master key record rejected passphrase", "record", rec.ID, "error", err)
			continue
		}

		candidate := append([]byte(nil), masterKey...)
		err = w.vault.Unlock(candidate, mixingOnly)
		switch {
		case err == nil:
			return i, masterKey, nil
		case errors.Is(err, ErrWrongPassphrase):
			crypto.ClearBytes(masterKey)
			continue
		default:
			crypto.ClearBytes(masterKey)
			return -1, nil, err
		}
	}
	return -1, nil, ErrWrongPassphrase
}

// Lock discards the master key, or restricts the wallet to mixing when
// mixingOnly is set.
func (w *Wallet) Lock(mixingOnly bool) error {
	w.mu.Lock()
	defer w.unlock()
	return w.vault.Lock(mixingOnly)
}

// ChangePassphrase re-wraps the master key under newPassphrase and returns
// the wallet to its previous lock state.
func (w *Wallet) ChangePassphrase(oldPassphrase, newPassphrase []byte) error {
	w.mu.Lock()
	defer w.unlock()

	if !w.vault.IsCrypted() {
		return ErrNotEncrypted
	}
	if len(newPassphrase) == 0 {
		return ErrPassphraseRequired
	}
	prior := w.vault.State()

	idx, masterKey, err := w.unlockLocked(oldPassphrase, false)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(masterKey)
	defer w.restoreState(prior)
	old := w.masterKeys[idx]

	rec, err := w.wrapMasterKey(masterKey, newPassphrase)
	if err != nil {
		return err
	}
	rec.ID = old.ID

	if err := w.db.UpdateMasterKey(rec); err != nil {
		return fmt.Errorf("failed to store master key: %w", err)
	}
	w.masterKeys[idx] = rec
	w.opts.Logger.Info("passphrase changed", "record", rec.ID)
	return nil
}

func (w *Wallet) restoreState(prior keystore.State) {
	var err error
	switch prior {
	case keystore.StateLocked:
		err = w.vault.Lock(false)
	case keystore.StateUnlockedMixingOnly:
		err = w.vault.Lock(true)
	}
	if err != nil {
		w.opts.Logger.Warn("failed to restore lock state", "state", prior.String(), "error", err)
	}
}

func (w *Wallet) wrapMasterKey(masterKey, passphrase []byte) (storage.MasterKeyRecord, error) {
	kdf, err := crypto.NewKDF(w.opts.Rounds)
	if err != nil {
		return storage.MasterKeyRecord{}, fmt.Errorf("failed to create KDF: %w", err)
	}
	c, err := kdf.Derive(passphrase)
	if err != nil {
		return storage.MasterKeyRecord{}, fmt.Errorf("failed to derive key: %w", err)
	}
	defer c.Destroy()

	wrapped, err := c.Encrypt(masterKey)
	if err != nil {
		return storage.MasterKeyRecord{}, fmt.Errorf("failed to wrap master key: %w", err)
	}
	return storage.MasterKeyRecord{
		CryptedKey: wrapped,
		Salt:       kdf.Salt,
		Method:     kdf.Method,
		Rounds:     kdf.Rounds,
	}, nil
}

func (w *Wallet) unwrapMasterKey(rec storage.MasterKeyRecord, passphrase []byte) ([]byte, error) {
	kdf := crypto.KDF{Salt: rec.Salt, Rounds: rec.Rounds, Method: rec.Method}
	c, err := kdf.Derive(passphrase)
	if err != nil {
		return nil, err
	}
	defer c.Destroy()

	masterKey, err := c.Decrypt(rec.CryptedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrongPassphrase, err)
	}
	if len(masterKey) != crypto.KeySize {
		crypto.ClearBytes(masterKey)
		return nil, fmt.Errorf("%w: master key is %d bytes", ErrWrongPassphrase, len(masterKey))
	}
	return masterKey, nil
}

// Compact rewrites the wallet file to drop freed pages.
func (w *Wallet) Compact() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.db.Compact()
}

// Status summarizes the wallet without needing a passphrase.
type Status struct {
	WalletID   string
	State      keystore.State
	Keys       int
	WatchOnly  int
	MasterKeys int
	Created    time.Time
	Modified   time.Time
}

// Status returns a summary of the wallet.
func (w *Wallet) Status() (*Status, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id, err := w.db.WalletID()
	if err != nil {
		return nil, err
	}
	created, err := w.db.GetCreated()
	if err != nil {
		return nil, err
	}
	modified, err := w.db.GetModified()
	if err != nil {
		return nil, err
	}

	return &Status{
		WalletID:   id,
		State:      w.vault.State(),
		Keys:       len(w.vault.KeyIDs()),
		WatchOnly:  len(w.vault.WatchOnlyIDs()),
		MasterKeys: len(w.masterKeys),
		Created:    created,
		Modified:   modified,
	}, nil
}
