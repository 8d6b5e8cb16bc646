package crypto

import "fmt"

// SecretSize is the length of a raw signing key secret.
const SecretSize = 32

// WrapSecret encrypts a signing key secret under the master key. The IV is
// the first BlockSize bytes of pubKeyHash, so wrapping is deterministic per key.
func WrapSecret(masterKey, secret, pubKeyHash []byte) ([]byte, error) {
	c, err := secretCrypter(masterKey, pubKeyHash)
	if err != nil {
		return nil, err
	}
	defer c.Destroy()

	return c.Encrypt(secret)
}

// UnwrapSecret decrypts a wrapped signing key secret. A result that is not
// SecretSize bytes is treated like a padding failure and returns ErrIntegrity.
func UnwrapSecret(masterKey, ciphertext, pubKeyHash []byte) ([]byte, error) {
	c, err := secretCrypter(masterKey, pubKeyHash)
	if err != nil {
		return nil, err
	}
	defer c.Destroy()

	secret, err := c.Decrypt(ciphertext)
	if err != nil {
		return nil, err
	}
	if len(secret) != SecretSize {
		ClearBytes(secret)
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrIntegrity, len(secret), SecretSize)
	}
	return secret, nil
}

func secretCrypter(masterKey, pubKeyHash []byte) (*Crypter, error) {
	if len(pubKeyHash) < BlockSize {
		return nil, fmt.Errorf("%w: public key hash must be at least %d bytes", ErrInvalidParameter, BlockSize)
	}
	return NewCrypter(masterKey, pubKeyHash[:BlockSize])
}

// EncryptAES256 encrypts plaintext with a caller-supplied key and IV.
func EncryptAES256(key, iv, plaintext []byte) ([]byte, error) {
	if err := checkExplicitParams(key, iv); err != nil {
		return nil, err
	}
	return EncryptCBC(key, iv, plaintext)
}

// DecryptAES256 decrypts ciphertext with a caller-supplied key and IV.
func DecryptAES256(key, iv, ciphertext []byte) ([]byte, error) {
	if err := checkExplicitParams(key, iv); err != nil {
		return nil, err
	}
	return DecryptCBC(key, iv, ciphertext)
}

func checkExplicitParams(key, iv []byte) error {
	if len(key) != KeySize || len(iv) != BlockSize {
		return fmt.Errorf("%w: key %d bytes (want %d), iv %d bytes (want %d)",
			ErrInvalidParameter, len(key), KeySize, len(iv), BlockSize)
	}
	return nil
}
