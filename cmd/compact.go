package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/illarion/walletcrypt/internal/core"
	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Compact the wallet file to reclaim unused space",
	Long: `Rewrites the wallet file without free pages. This runs automatically
after 'walletcrypt encrypt'. Does not require a passphrase.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWallet()
		if err != nil {
			return err
		}
		defer w.Close()

		path := filepath.Join(w.Dir(), core.WalletFile)
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		sizeBefore := info.Size()

		if err := w.Compact(); err != nil {
			return err
		}

		info, err = os.Stat(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(info.Size()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(compactCmd)
}
