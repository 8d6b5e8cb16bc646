package crypto

import (
	"crypto/sha512"
	"fmt"
)

const (
	KeySize       = 32    // AES-256 key size
	SaltSize      = 16    // Wallet salt size in bytes
	DefaultRounds = 25000 // Default derive iterations for new master key records

	// MethodEVPSHA512 is EVP_BytesToKey with SHA-512, the only defined method.
	MethodEVPSHA512 uint32 = 0

	evpSaltLen   = 8  // EVP_BytesToKey only mixes PKCS5_SALT_LEN salt bytes
	ivBufferSize = 32 // IV buffer reserved by the derivation; AES-CBC reads 16
)

// KDF handles key derivation from passphrases
type KDF struct {
	Salt   []byte
	Rounds uint32
	Method uint32
}

// NewKDF creates a new KDF with a random salt
func NewKDF(rounds uint32) (*KDF, error) {
	salt, err := GenerateRandom(SaltSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	return &KDF{
		Salt:   salt,
		Rounds: rounds,
		Method: MethodEVPSHA512,
	}, nil
}

// Derive derives a Crypter from a passphrase using the KDF parameters.
func (k *KDF) Derive(passphrase []byte) (*Crypter, error) {
	if k.Method != MethodEVPSHA512 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedMethod, k.Method)
	}
	return DeriveKey(passphrase, k.Salt, k.Rounds)
}

// DeriveKey derives the key and IV for passphrase with method 0.
// It requires rounds >= 1 and a SaltSize salt.
func DeriveKey(passphrase, salt []byte, rounds uint32) (*Crypter, error) {
	if rounds < 1 {
		return nil, fmt.Errorf("%w: rounds must be at least 1", ErrDerivation)
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrDerivation, SaltSize, len(salt))
	}
	return bytesToKey(passphrase, salt, rounds)
}

// bytesToKey is EVP_BytesToKey(EVP_aes_256_cbc(), EVP_sha512(), ...).
// A SHA-512 digest covers the whole key and IV, so a single block is computed.
func bytesToKey(passphrase, salt []byte, rounds uint32) (*Crypter, error) {
	if len(salt) < evpSaltLen {
		return nil, fmt.Errorf("%w: salt shorter than %d bytes", ErrDerivation, evpSaltLen)
	}

	h := sha512.New()
	h.Write(passphrase)
	h.Write(salt[:evpSaltLen])
	digest := h.Sum(nil)
	defer ClearBytes(digest)

	for i := uint32(1); i < rounds; i++ {
		next := sha512.Sum512(digest)
		copy(digest, next[:])
		ClearBytes(next[:])
	}

	c := &Crypter{}
	if len(digest) < KeySize+ivBufferSize {
		c.Destroy()
		return nil, fmt.Errorf("%w: digest too short", ErrDerivation)
	}
	copy(c.key[:], digest[:KeySize])
	copy(c.iv[:], digest[KeySize:KeySize+ivBufferSize])
	c.keySet = true
	return c, nil
}
