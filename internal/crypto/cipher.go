package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"fmt"
)

// BlockSize is the AES block size and the length of the IV used by CBC.
const BlockSize = aes.BlockSize

// Crypter holds derived key material for AES-256-CBC.
type Crypter struct {
	key    [KeySize]byte
	iv     [ivBufferSize]byte
	keySet bool
}

// NewCrypter creates a Crypter from an explicit key and IV. The IV may be
// BlockSize bytes or a full 32-byte hash; only the first BlockSize bytes are used.
func NewCrypter(key, iv []byte) (*Crypter, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidParameter, KeySize, len(key))
	}
	if len(iv) != BlockSize && len(iv) != ivBufferSize {
		return nil, fmt.Errorf("%w: iv must be %d or %d bytes, got %d", ErrInvalidParameter, BlockSize, ivBufferSize, len(iv))
	}

	c := &Crypter{keySet: true}
	copy(c.key[:], key)
	copy(c.iv[:], iv)
	return c, nil
}

// Key returns the derived key. The slice aliases the Crypter's storage and is
// zeroed by Destroy.
func (c *Crypter) Key() []byte {
	return c.key[:]
}

// IV returns the IV used by the cipher.
func (c *Crypter) IV() []byte {
	return c.iv[:BlockSize]
}

// Encrypt encrypts plaintext using AES-256-CBC
func (c *Crypter) Encrypt(plaintext []byte) ([]byte, error) {
	if !c.keySet {
		return nil, fmt.Errorf("%w: key not set", ErrCipher)
	}
	return EncryptCBC(c.key[:], c.iv[:BlockSize], plaintext)
}

// Decrypt decrypts ciphertext using AES-256-CBC
func (c *Crypter) Decrypt(ciphertext []byte) ([]byte, error) {
	if !c.keySet {
		return nil, fmt.Errorf("%w: key not set", ErrCipher)
	}
	return DecryptCBC(c.key[:], c.iv[:BlockSize], ciphertext)
}

// Destroy clears the crypter's key and IV from memory
func (c *Crypter) Destroy() {
	ClearBytes(c.key[:])
	ClearBytes(c.iv[:])
	c.keySet = false
}

// EncryptCBC encrypts plaintext with AES-256-CBC and PKCS#7 padding.
// The output is always longer than the input and a multiple of BlockSize.
func EncryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil || len(key) != KeySize {
		return nil, fmt.Errorf("%w: failed to create cipher", ErrCipher)
	}
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes", ErrCipher, BlockSize)
	}

	pad := BlockSize - len(plaintext)%BlockSize
	out := make([]byte, len(plaintext)+pad)
	copy(out, plaintext)
	for i := len(plaintext); i < len(out); i++ {
		out[i] = byte(pad)
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, out)
	return out, nil
}

// DecryptCBC decrypts AES-256-CBC ciphertext and strips PKCS#7 padding.
// A bad length or padding, which is what a wrong key usually produces,
// returns ErrCipher.
func DecryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil || len(key) != KeySize {
		return nil, fmt.Errorf("%w: failed to create cipher", ErrCipher)
	}
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes", ErrCipher, BlockSize)
	}
	if len(ciphertext) == 0 || len(ciphertext)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a positive multiple of %d", ErrCipher, len(ciphertext), BlockSize)
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)

	pad := int(out[len(out)-1])
	if pad == 0 || pad > BlockSize {
		ClearBytes(out)
		return nil, fmt.Errorf("%w: bad padding", ErrCipher)
	}
	good := 1
	for _, b := range out[len(out)-pad:] {
		good &= subtle.ConstantTimeByteEq(b, byte(pad))
	}
	if good != 1 {
		ClearBytes(out)
		return nil, fmt.Errorf("%w: bad padding", ErrCipher)
	}

	ClearBytes(out[len(out)-pad:])
	return out[:len(out)-pad], nil
}
