package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/illarion/walletcrypt/internal/crypto"
)

const (
	exportVersion = 1
	// maxExportRounds bounds the derive work an export file can demand.
	maxExportRounds = 10 * crypto.DefaultRounds
)

// exportFile is the on-disk envelope of a public key inventory export.
type exportFile struct {
	Version  int       `json:"version"`
	WalletID string    `json:"wallet_id"`
	Created  time.Time `json:"created"`
	Salt     []byte    `json:"salt"`
	Rounds   uint32    `json:"rounds"`
	Payload  []byte    `json:"payload"`
}

// inventory renders one line per key: id, public key, and "watch" for
// watch-only keys. Lines follow List order.
func (w *Wallet) inventory() (string, error) {
	infos, err := w.List()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, info := range infos {
		b.WriteString(info.ID.String())
		b.WriteByte(' ')
		b.WriteString(info.PubKey.String())
		if info.WatchOnly {
			b.WriteString(" watch")
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// ExportPublicKeys writes the public key inventory to path inside the
// wallet directory, encrypted under a key derived from passphrase.
func (w *Wallet) ExportPublicKeys(path string, passphrase []byte) error {
	if len(passphrase) == 0 {
		return ErrPassphraseRequired
	}
	text, err := w.inventory()
	if err != nil {
		return err
	}
	walletID, err := w.ID()
	if err != nil {
		return err
	}

	kdf, err := crypto.NewKDF(w.opts.Rounds)
	if err != nil {
		return fmt.Errorf("failed to create KDF: %w", err)
	}
	c, err := kdf.Derive(passphrase)
	if err != nil {
		return fmt.Errorf("failed to derive key: %w", err)
	}
	defer c.Destroy()

	payload, err := crypto.EncryptAES256(c.Key(), c.IV(), []byte(text))
	if err != nil {
		return fmt.Errorf("failed to encrypt export: %w", err)
	}

	data, err := json.MarshalIndent(exportFile{
		Version:  exportVersion,
		WalletID: walletID,
		Created:  time.Now().UTC(),
		Salt:     kdf.Salt,
		Rounds:   kdf.Rounds,
		Payload:  payload,
	}, "", "  ")
	if err != nil {
		return err
	}

	if err := w.validator.WriteFile(path, data, FilePermSecure); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	w.opts.Logger.Debug("exported public keys", "path", path)
	return nil
}

// readExport decrypts an export file and returns its inventory text.
func (w *Wallet) readExport(path string, passphrase []byte) (string, *exportFile, error) {
	data, err := w.validator.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read export: %w", err)
	}

	var f exportFile
	if err := json.Unmarshal(data, &f); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidExport, err)
	}
	if f.Version != exportVersion {
		return "", nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidExport, f.Version)
	}

	if limit := max(maxExportRounds, w.opts.Rounds); f.Rounds > limit {
		return "", nil, fmt.Errorf("%w: %d rounds exceeds limit %d", ErrInvalidExport, f.Rounds, limit)
	}

	c, err := crypto.DeriveKey(passphrase, f.Salt, f.Rounds)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidExport, err)
	}
	defer c.Destroy()

	text, err := crypto.DecryptAES256(c.Key(), c.IV(), f.Payload)
	if errors.Is(err, crypto.ErrCipher) {
		return "", nil, fmt.Errorf("%w: %w", ErrWrongPassphrase, err)
	}
	if err != nil {
		return "", nil, err
	}
	return string(text), &f, nil
}

// DiffExport compares an export file against the current inventory.
func (w *Wallet) DiffExport(path string, passphrase []byte) (*InventoryDiff, error) {
	exported, f, err := w.readExport(path, passphrase)
	if err != nil {
		return nil, err
	}
	current, err := w.inventory()
	if err != nil {
		return nil, err
	}

	walletID, err := w.ID()
	if err != nil {
		return nil, err
	}
	if f.WalletID != walletID {
		w.opts.Logger.Warn("export belongs to a different wallet", "export_wallet", f.WalletID, "wallet", walletID)
	}

	d := diffInventory(exported, current)
	d.ExportCreated = f.Created
	d.SameWallet = f.WalletID == walletID
	return d, nil
}
