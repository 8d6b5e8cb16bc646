package cmd

import (
	"fmt"

	"github.com/illarion/walletcrypt/internal/core"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write an encrypted public key inventory",
	Long: `Writes the key ids and public keys of the wallet to a file inside the
wallet directory, encrypted under an export passphrase.

The export passphrase is read from WALLETCRYPT_EXPORT_PASSPHRASE or prompted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWallet()
		if err != nil {
			return err
		}
		defer w.Close()

		passphrase, err := getNewPassphrase("export_passphrase", "Enter export passphrase: ")
		if err != nil {
			return err
		}
		defer clear(passphrase)

		if err := w.ExportPublicKeys(args[0], passphrase); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", args[0])
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <file>",
	Short: "Compare an export file with the wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWallet()
		if err != nil {
			return err
		}
		defer w.Close()

		passphrase, err := getExportPassphrase()
		if err != nil {
			return err
		}
		defer clear(passphrase)

		d, err := w.DiffExport(args[0], passphrase)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !d.SameWallet {
			fmt.Fprintln(out, "warning: export was made from a different wallet")
		}
		if d.Empty() {
			fmt.Fprintf(out, "No changes since %s\n", d.ExportCreated.Format("2006-01-02 15:04:05"))
			return nil
		}
		for _, line := range d.Removed {
			fmt.Fprintf(out, "- %s\n", line)
		}
		for _, line := range d.Added {
			fmt.Fprintf(out, "+ %s\n", line)
		}
		fmt.Fprintf(out, "%d added, %d removed\n", len(d.Added), len(d.Removed))
		return nil
	},
}

func getExportPassphrase() ([]byte, error) {
	if p := viper.GetString("export_passphrase"); p != "" {
		return []byte(p), nil
	}
	return core.ReadPassphrase("Enter export passphrase: ")
}

func init() {
	rootCmd.AddCommand(exportCmd, diffCmd)
}
