// Package keyring keeps wallet passphrases in the OS keyring, keyed by
// wallet id.
package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const serviceName = "walletcrypt"

// ErrNotFound is returned when no passphrase is stored for the wallet.
var ErrNotFound = keyring.ErrNotFound

// SavePassphrase stores a wallet passphrase in the OS keyring
func SavePassphrase(walletID string, passphrase []byte) error {
	return keyring.Set(serviceName, walletID, string(passphrase))
}

// GetPassphrase retrieves a wallet passphrase from the OS keyring
func GetPassphrase(walletID string) ([]byte, error) {
	s, err := keyring.Get(serviceName, walletID)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// DeletePassphrase removes a wallet passphrase from the OS keyring.
// Deleting a missing entry is not an error.
func DeletePassphrase(walletID string) error {
	err := keyring.Delete(serviceName, walletID)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// HasPassphrase checks if a passphrase is stored for the wallet
func HasPassphrase(walletID string) bool {
	_, err := keyring.Get(serviceName, walletID)
	return err == nil
}
