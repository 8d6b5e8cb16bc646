package crypto

const (
	legacyPassphrase = "biblepay"
	legacySalt       = "eb5a781ea9da2ef36"
)

// LegacyCipher reproduces the fixed-passphrase payload cipher used by older
// wallets for non-key data such as labels. The key is derived from a
// hardcoded passphrase, so this is obfuscation, not confidentiality. Never
// use it for key material.
type LegacyCipher struct {
	c *Crypter
}

// NewLegacyCipher derives the fixed legacy key and IV.
func NewLegacyCipher() (*LegacyCipher, error) {
	c, err := bytesToKey([]byte(legacyPassphrase), []byte(legacySalt), 1)
	if err != nil {
		return nil, err
	}
	return &LegacyCipher{c: c}, nil
}

// Encrypt obfuscates a payload.
func (l *LegacyCipher) Encrypt(plaintext []byte) ([]byte, error) {
	return l.c.Encrypt(plaintext)
}

// Decrypt reverses Encrypt.
func (l *LegacyCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	return l.c.Decrypt(ciphertext)
}

// Destroy clears the derived key.
func (l *LegacyCipher) Destroy() {
	l.c.Destroy()
}
