package cmd

import (
	"fmt"

	"github.com/illarion/walletcrypt/internal/core"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new wallet",
	Long: `Creates a plaintext wallet file in the wallet directory.

Keys added before 'walletcrypt encrypt' are stored unencrypted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := core.Create(walletDir(), walletOptions())
		if err != nil {
			return err
		}
		defer w.Close()

		id, err := w.ID()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created wallet %s in %s\n", id, w.Dir())
		return nil
	},
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt every key in the wallet",
	Long: `Wraps every key under a new random master key, protected by a passphrase.

An empty wallet gets one new key first. The wallet file is compacted
afterwards so no plaintext key survives in free pages. There is no way
back to a plaintext wallet.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWallet()
		if err != nil {
			return err
		}
		defer w.Close()

		passphrase, err := getNewPassphrase("passphrase", "Enter new passphrase: ")
		if err != nil {
			return err
		}
		defer clear(passphrase)

		if err := w.Encrypt(passphrase); err != nil {
			return err
		}

		st, err := w.Status()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Encrypted %d key(s). The wallet is locked.\n", st.Keys)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd, encryptCmd)
}
