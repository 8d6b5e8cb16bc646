package cmd

import (
	"fmt"

	"github.com/illarion/walletcrypt/internal/keyring"
	"github.com/spf13/cobra"
)

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change the wallet passphrase",
	Long: `Re-wraps the master key under a new passphrase. Keys are not re-encrypted.

Non-interactive use reads the current passphrase from WALLETCRYPT_PASSPHRASE
and the new one from WALLETCRYPT_NEW_PASSPHRASE. A passphrase saved in the OS
keyring is updated.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWallet()
		if err != nil {
			return err
		}
		defer w.Close()

		oldPassphrase, err := getPassphrase(w, "Enter current passphrase: ")
		if err != nil {
			return err
		}
		defer clear(oldPassphrase)

		if err := w.Unlock(oldPassphrase, false); err != nil {
			return err
		}

		newPassphrase, err := getNewPassphrase("new_passphrase", "Enter new passphrase: ")
		if err != nil {
			return err
		}
		defer clear(newPassphrase)

		if err := w.ChangePassphrase(oldPassphrase, newPassphrase); err != nil {
			return err
		}

		if id, err := w.ID(); err == nil && keyring.HasPassphrase(id) {
			if err := keyring.SavePassphrase(id, newPassphrase); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to update keyring: %s\n", err)
			}
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Passphrase changed")
		return nil
	},
}

var verifyMixingOnly bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the passphrase against every encrypted key",
	Long: `Unlocks the wallet to check the passphrase, then locks it again.

Exits with status 2 if the passphrase decrypts some keys but not others.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWallet()
		if err != nil {
			return err
		}
		defer w.Close()

		passphrase, err := getPassphrase(w, "Enter passphrase: ")
		if err != nil {
			return err
		}
		defer clear(passphrase)

		if err := w.Unlock(passphrase, verifyMixingOnly); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Passphrase OK (%s)\n", w.State())
		return w.Lock(false)
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyMixingOnly, "mixing-only", false, "unlock for mixing only")
	rootCmd.AddCommand(passwdCmd, verifyCmd)
}
