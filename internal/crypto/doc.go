// Package crypto provides the wallet's symmetric encryption layer.
//
// Key derivation follows OpenSSL's EVP_BytesToKey with SHA-512 and
// AES-256-CBC (derivation method 0):
//   - D = SHA512(passphrase || salt[:8]), then D = SHA512(D) rounds-1 times
//   - key = D[0:32], IV buffer = D[32:64] (only the first 16 bytes are used)
//
// Encryption uses AES-256-CBC with PKCS#7 padding. There is no
// authentication tag; a wrong key is detected through padding and size
// checks on decryption.
//
// Per-key secrets are wrapped under the wallet master key with an IV taken
// from the public key hash, so the same key always yields the same
// ciphertext.
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Call Crypter.Destroy() when done with encryption operations
package crypto
