package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/illarion/walletcrypt/internal/keys"
	"github.com/spf13/cobra"
)

var newKeyCmd = &cobra.Command{
	Use:   "newkey",
	Short: "Generate a new signing key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWallet()
		if err != nil {
			return err
		}
		defer w.Close()

		if err := unlockWallet(w, false); err != nil {
			return err
		}

		id, err := w.NewKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var importUncompressed bool

var importCmd = &cobra.Command{
	Use:   "import <secret-hex>",
	Short: "Import a raw 32-byte private key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := hex.DecodeString(args[0])
		if err != nil {
			return fmt.Errorf("invalid secret: %w", err)
		}
		defer clear(secret)

		w, err := openWallet()
		if err != nil {
			return err
		}
		defer w.Close()

		if err := unlockWallet(w, false); err != nil {
			return err
		}

		id, err := w.ImportKey(secret, !importUncompressed)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <pubkey-hex>",
	Short: "Track a public key without its secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, err := hex.DecodeString(args[0])
		if err != nil {
			return fmt.Errorf("invalid public key: %w", err)
		}

		w, err := openWallet()
		if err != nil {
			return err
		}
		defer w.Close()

		id, err := w.AddWatchOnly(pub)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var dumpKeyCmd = &cobra.Command{
	Use:   "dumpkey <key-id>",
	Short: "Print the raw private key for a key id",
	Long: `Prints the hex-encoded private key for a key id.

Anyone who sees the output can spend with this key.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := keys.ParseKeyID(args[0])
		if err != nil {
			return err
		}

		w, err := openWallet()
		if err != nil {
			return err
		}
		defer w.Close()

		if err := unlockWallet(w, false); err != nil {
			return err
		}

		secret, err := w.DumpKey(id)
		if err != nil {
			return err
		}
		defer clear(secret)

		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(secret))
		return nil
	},
}

var labelCmd = &cobra.Command{
	Use:   "label <key-id> [text]",
	Short: "Show or set the label of a key",
	Long: `Shows the label of a key, or sets it when text is given.

Labels are obfuscated in the wallet file with a fixed built-in key. They are
hidden from casual inspection but are not protected by your passphrase.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := keys.ParseKeyID(args[0])
		if err != nil {
			return err
		}

		w, err := openWallet()
		if err != nil {
			return err
		}
		defer w.Close()

		if len(args) == 2 {
			return w.SetLabel(id, args[1])
		}

		label, err := w.Label(id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), label)
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importUncompressed, "uncompressed", false, "use the 65-byte public key encoding")
	rootCmd.AddCommand(newKeyCmd, importCmd, watchCmd, dumpKeyCmd, labelCmd)
}
