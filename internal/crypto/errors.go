package crypto

import "errors"

var (
	// ErrDerivation indicates bad derivation parameters or a KDF failure.
	ErrDerivation = errors.New("key derivation failed")
	// ErrCipher indicates the cipher could not be set up or the ciphertext
	// is malformed (length or padding).
	ErrCipher = errors.New("cipher operation failed")
	// ErrIntegrity indicates a decrypted payload has the wrong size or shape.
	ErrIntegrity = errors.New("decrypted secret failed integrity check")
	// ErrInvalidParameter indicates a caller-supplied key or IV has the wrong size.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrUnsupportedMethod indicates an unknown key derivation method.
	ErrUnsupportedMethod = errors.New("unsupported key derivation method")
)
