package cmd

import (
	"fmt"

	"github.com/illarion/walletcrypt/internal/keyring"
	"github.com/spf13/cobra"
)

var keyringCmd = &cobra.Command{
	Use:   "keyring",
	Short: "Manage the wallet passphrase in the OS keyring",
}

var keyringSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Verify the passphrase and save it to the OS keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWallet()
		if err != nil {
			return err
		}
		defer w.Close()

		passphrase, err := getPassphrase(nil, "Enter passphrase: ")
		if err != nil {
			return err
		}
		defer clear(passphrase)

		if err := w.Unlock(passphrase, false); err != nil {
			return err
		}
		if err := w.Lock(false); err != nil {
			return err
		}

		id, err := w.ID()
		if err != nil {
			return err
		}
		if err := keyring.SavePassphrase(id, passphrase); err != nil {
			return fmt.Errorf("failed to save to keyring: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Passphrase saved to keyring")
		return nil
	},
}

var keyringDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the passphrase from the OS keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWallet()
		if err != nil {
			return err
		}
		defer w.Close()

		id, err := w.ID()
		if err != nil {
			return err
		}
		if err := keyring.DeletePassphrase(id); err != nil {
			return fmt.Errorf("failed to delete from keyring: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Passphrase removed from keyring")
		return nil
	},
}

var keyringStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a passphrase is stored in the OS keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWallet()
		if err != nil {
			return err
		}
		defer w.Close()

		id, err := w.ID()
		if err != nil {
			return err
		}
		if keyring.HasPassphrase(id) {
			fmt.Fprintln(cmd.OutOrStdout(), "Passphrase: stored in keyring")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Passphrase: not stored")
		}
		return nil
	},
}

func init() {
	keyringCmd.AddCommand(keyringSaveCmd, keyringDeleteCmd, keyringStatusCmd)
	rootCmd.AddCommand(keyringCmd)
}
