// Package keys wraps the secp256k1 signing key primitives the key store
// treats as opaque: key generation, public key serialization, identifiers.
package keys

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/crypto/ripemd160"
)

// SecretSize is the length of a serialized private key.
const SecretSize = 32

var (
	ErrInvalidSecret = errors.New("invalid private key")
	ErrInvalidPubKey = errors.New("invalid public key")
)

// KeyID is the HASH160 of a serialized public key.
type KeyID [ripemd160.Size]byte

// String returns the hex encoding of the identifier.
func (id KeyID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseKeyID parses a hex-encoded key identifier.
func ParseKeyID(s string) (KeyID, error) {
	var id KeyID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid key id %q: %w", s, err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("invalid key id %q: want %d bytes, got %d", s, len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// PubKey is a serialized secp256k1 public key, 33 bytes compressed or 65
// bytes uncompressed.
type PubKey []byte

// ParsePubKey validates a serialized public key.
func ParsePubKey(b []byte) (PubKey, error) {
	if _, err := btcec.ParsePubKey(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPubKey, err)
	}
	return PubKey(append([]byte(nil), b...)), nil
}

// ID returns the HASH160 identifier used to index the key.
func (p PubKey) ID() KeyID {
	sha := sha256.Sum256(p)
	h := ripemd160.New()
	h.Write(sha[:])
	var id KeyID
	copy(id[:], h.Sum(nil))
	return id
}

// Hash returns the double SHA-256 of the public key. Its leading bytes are
// the IV for the key's encrypted secret.
func (p PubKey) Hash() []byte {
	return chainhash.DoubleHashB(p)
}

// IsCompressed reports whether the key uses the 33-byte encoding.
func (p PubKey) IsCompressed() bool {
	return len(p) == btcec.PubKeyBytesLenCompressed
}

// String returns the hex encoding of the public key.
func (p PubKey) String() string {
	return hex.EncodeToString(p)
}

// PrivateKey is a secp256k1 signing key together with the public key
// encoding it was created for.
type PrivateKey struct {
	key        *btcec.PrivateKey
	compressed bool
}

// NewPrivateKey generates a new random key using the compressed encoding.
func NewPrivateKey() (*PrivateKey, error) {
	k, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating private key: %w", err)
	}
	return &PrivateKey{key: k, compressed: true}, nil
}

// PrivateKeyFromBytes builds a key from a 32-byte secret. The caller keeps
// ownership of secret.
func PrivateKeyFromBytes(secret []byte, compressed bool) (*PrivateKey, error) {
	if len(secret) != SecretSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSecret, SecretSize, len(secret))
	}
	var scalar btcec.ModNScalar
	overflow := scalar.SetByteSlice(secret)
	zero := scalar.IsZero()
	scalar.Zero()
	if overflow {
		return nil, fmt.Errorf("%w: not below the curve order", ErrInvalidSecret)
	}
	if zero {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidSecret)
	}
	k, _ := btcec.PrivKeyFromBytes(secret)
	return &PrivateKey{key: k, compressed: compressed}, nil
}

// Bytes returns a copy of the 32-byte secret. The caller must wipe it.
func (k *PrivateKey) Bytes() []byte {
	return k.key.Serialize()
}

// IsCompressed reports whether PubKey uses the compressed encoding.
func (k *PrivateKey) IsCompressed() bool {
	return k.compressed
}

// PubKey returns the serialized public key.
func (k *PrivateKey) PubKey() PubKey {
	if k.compressed {
		return k.key.PubKey().SerializeCompressed()
	}
	return k.key.PubKey().SerializeUncompressed()
}

// VerifyPubKey reports whether pub belongs to this private key.
func (k *PrivateKey) VerifyPubKey(pub PubKey) bool {
	return bytes.Equal(k.PubKey(), pub)
}

// Zero clears the private scalar.
func (k *PrivateKey) Zero() {
	k.key.Zero()
}
