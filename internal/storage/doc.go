// Package storage provides the BBolt wallet file for walletcrypt.
//
// Database structure uses six buckets:
//   - config: wallet id, format version, timestamps
//   - keys: plaintext key records (public key and raw secret)
//   - ckeys: encrypted key records (public key and wrapped secret)
//   - watch: watch-only public keys
//   - mkeys: master key records (master key wrapped under a passphrase)
//   - labels: obfuscated key labels
//
// Public keys are stored unencrypted next to every secret so list and
// status work without a passphrase.
//
// BBolt provides ACID transactions, file locking, and corruption detection.
// Deleting plaintext keys only frees their pages, so CommitEncryption is
// followed by Compact to rewrite the file without them.
package storage
