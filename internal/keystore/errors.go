package keystore

import (
	"errors"
	"fmt"
)

var (
	// ErrWrongPassphrase indicates the candidate master key decrypts no entries.
	ErrWrongPassphrase = errors.New("wrong passphrase")
	// ErrFatalCorruption indicates the candidate master key decrypts some
	// entries but not others. The stored key set is inconsistent and needs
	// manual intervention.
	ErrFatalCorruption = errors.New("key store corrupted: some keys decrypt but not all")
	// ErrLocked indicates the operation requires an unlocked key store.
	ErrLocked = errors.New("key store is locked")
	// ErrAlreadyKeyed indicates plaintext keys exist and would be lost by
	// switching to encrypted mode without encrypting them.
	ErrAlreadyKeyed = errors.New("key store holds plaintext keys")
	// ErrAlreadyEncrypted indicates the key store is already in encrypted mode.
	ErrAlreadyEncrypted = errors.New("key store is already encrypted")
	// ErrNotEncrypted indicates the operation requires encrypted mode.
	ErrNotEncrypted = errors.New("key store is not encrypted")
	// ErrKeyNotFound indicates no key is stored under the identifier.
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyMismatch indicates a private key does not match its public key.
	ErrKeyMismatch = errors.New("private key does not match public key")
)

// CorruptionError reports how many entries a candidate master key
// decrypted and how many it failed on. It matches ErrFatalCorruption.
type CorruptionError struct {
	Matched int
	Failed  int
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("%s (%d decrypted, %d failed)", ErrFatalCorruption, e.Matched, e.Failed)
}

func (e *CorruptionError) Unwrap() error {
	return ErrFatalCorruption
}
