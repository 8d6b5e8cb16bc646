package core

import (
	"errors"

	"github.com/illarion/walletcrypt/internal/keystore"
)

var (
	ErrNotInitialized     = errors.New("wallet not initialized")
	ErrAlreadyExists      = errors.New("wallet already exists")
	ErrPassphraseRequired = errors.New("passphrase required")
	ErrInvalidExport      = errors.New("invalid export file")
)

// Key store errors surfaced unchanged by Wallet operations.
var (
	ErrWrongPassphrase  = keystore.ErrWrongPassphrase
	ErrFatalCorruption  = keystore.ErrFatalCorruption
	ErrLocked           = keystore.ErrLocked
	ErrAlreadyEncrypted = keystore.ErrAlreadyEncrypted
	ErrNotEncrypted     = keystore.ErrNotEncrypted
	ErrKeyNotFound      = keystore.ErrKeyNotFound
)
