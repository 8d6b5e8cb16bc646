// Package core provides the wallet operations behind the walletcrypt CLI.
//
// A Wallet ties the bbolt wallet file to an in-memory KeyVault:
//   - Create/Open: create or load a wallet directory
//   - NewKey/ImportKey/AddWatchOnly: add keys, persisted in plaintext or
//     encrypted form depending on the wallet state
//   - Encrypt: wrap every key under a random master key, itself wrapped
//     under a passphrase-derived key
//   - Unlock/Lock: move between locked, unlocked and mixing-only states
//   - ChangePassphrase: re-wrap the master key under a new passphrase
//   - ExportPublicKeys/DiffExport: passphrase-protected public key
//     inventory files and line diffs against the live wallet
//
// List and Status read public data only and never need a passphrase.
package core
