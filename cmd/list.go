package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/illarion/walletcrypt/internal/core"
	"github.com/illarion/walletcrypt/internal/git"
	"github.com/illarion/walletcrypt/internal/keystore"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List keys in the wallet",
	Long:    "Lists key ids, public keys and labels. Does not require a passphrase.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWallet()
		if err != nil {
			return err
		}
		defer w.Close()

		infos, err := w.List()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No keys in wallet")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY ID\tTYPE\tPUBLIC KEY\tLABEL")
		for _, info := range infos {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.ID, keyType(info), info.PubKey, info.Label)
		}
		return tw.Flush()
	},
}

func keyType(info core.KeyInfo) string {
	switch {
	case info.WatchOnly:
		return "watch"
	case info.Encrypted:
		return "encrypted"
	default:
		return "plain"
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show wallet status",
	Long:  "Shows wallet id, encryption state and key counts. Does not require a passphrase.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWallet()
		if err != nil {
			return err
		}
		defer w.Close()

		st, err := w.Status()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Wallet:     %s\n", st.WalletID)
		fmt.Fprintf(out, "File:       %s", filepath.Join(w.Dir(), core.WalletFile))
		if info, err := os.Stat(filepath.Join(w.Dir(), core.WalletFile)); err == nil {
			fmt.Fprintf(out, " (%s)", formatSize(info.Size()))
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "State:      %s\n", st.State)
		fmt.Fprintf(out, "Keys:       %d\n", st.Keys)
		fmt.Fprintf(out, "Watch-only: %d\n", st.WatchOnly)
		if st.MasterKeys > 0 {
			fmt.Fprintf(out, "Passphrase records: %d\n", st.MasterKeys)
		}
		fmt.Fprintf(out, "Created:    %s\n", st.Created.Format(time.RFC3339))
		fmt.Fprintf(out, "Modified:   %s\n", st.Modified.Format(time.RFC3339))

		exposure := git.CheckWalletFile(w.Dir(), core.WalletFile)
		fmt.Fprint(out, exposure.Format(st.State != keystore.StatePlaintext))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd, statusCmd)
}
