// Package keystore holds a wallet's signing keys, either in plaintext or
// encrypted under a master key, and enforces the lock/unlock lifecycle.
//
// States:
//   - Plaintext: keys are held directly; the initial state
//   - Locked: keys are encrypted and no master key is held
//   - Unlocked: the master key is held and all operations are allowed
//   - UnlockedMixingOnly: the master key is held but new keys cannot be added
//
// The Plaintext to Locked transition is one way. After it, the plaintext
// key map stays empty for the lifetime of the KeyVault.
//
// All state is guarded by one mutex. Status observers run after the mutex
// is released.
package keystore
