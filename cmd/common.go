package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/illarion/walletcrypt/internal/core"
	"github.com/illarion/walletcrypt/internal/keyring"
	"github.com/illarion/walletcrypt/internal/keystore"
	"github.com/spf13/viper"
)

// getPassphrase resolves the wallet passphrase from the environment, the
// OS keyring, or a prompt. The caller must wipe the result.
func getPassphrase(w *core.Wallet, prompt string) ([]byte, error) {
	if p := viper.GetString("passphrase"); p != "" {
		return []byte(p), nil
	}

	if w != nil {
		if id, err := w.ID(); err == nil {
			if p, err := keyring.GetPassphrase(id); err == nil {
				logger.Debug("using passphrase from keyring", "wallet", id)
				return p, nil
			}
		}
	}

	return core.ReadPassphrase(prompt)
}

// getNewPassphrase reads a passphrase that is about to be set from the
// config key envKey, or prompts twice.
func getNewPassphrase(envKey, prompt string) ([]byte, error) {
	if p := viper.GetString(envKey); p != "" {
		return []byte(p), nil
	}
	return core.ReadPassphraseConfirm(prompt)
}

// unlockWallet unlocks an encrypted wallet for this command. Plaintext
// wallets are left alone.
func unlockWallet(w *core.Wallet, mixingOnly bool) error {
	if w.State() == keystore.StatePlaintext {
		return nil
	}
	passphrase, err := getPassphrase(w, "Enter passphrase: ")
	if err != nil {
		return err
	}
	defer clear(passphrase)
	return w.Unlock(passphrase, mixingOnly)
}

// HandleError prints an operator message for err and returns the exit code.
func HandleError(err error) int {
	switch {
	case errors.Is(err, keystore.ErrFatalCorruption):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "The wallet file is inconsistent: the passphrase decrypts some keys but not others.\n")
		fmt.Fprintf(os.Stderr, "Do not write to this wallet. Restore it from a backup.\n")
		return ExitCorruption
	case errors.Is(err, core.ErrNotInitialized):
		fmt.Fprintf(os.Stderr, "Error: wallet not initialized\n")
		fmt.Fprintf(os.Stderr, "Run 'walletcrypt init' first\n")
	case errors.Is(err, core.ErrAlreadyExists):
		fmt.Fprintf(os.Stderr, "Error: a wallet already exists in this directory\n")
		fmt.Fprintf(os.Stderr, "Use 'walletcrypt status' to see current state\n")
	case errors.Is(err, keystore.ErrWrongPassphrase):
		fmt.Fprintf(os.Stderr, "Error: wrong passphrase\n")
	case errors.Is(err, keystore.ErrLocked):
		fmt.Fprintf(os.Stderr, "Error: wallet is locked\n")
	case errors.Is(err, keystore.ErrNotEncrypted):
		fmt.Fprintf(os.Stderr, "Error: wallet is not encrypted\n")
		fmt.Fprintf(os.Stderr, "Run 'walletcrypt encrypt' first\n")
	case errors.Is(err, keystore.ErrAlreadyEncrypted):
		fmt.Fprintf(os.Stderr, "Error: wallet is already encrypted\n")
		fmt.Fprintf(os.Stderr, "Use 'walletcrypt passwd' to change the passphrase\n")
	case errors.Is(err, keystore.ErrKeyNotFound):
		fmt.Fprintf(os.Stderr, "Error: key not found\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	return ExitError
}

// formatSize formats bytes into human-readable format
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
