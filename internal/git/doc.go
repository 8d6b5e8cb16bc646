// Package git checks whether wallet files are exposed to a git repository.
//
// A plaintext wallet committed to git leaks every key in it. An encrypted
// wallet is safer but still hands an attacker unlimited offline guesses, so
// both should be ignored.
package git
