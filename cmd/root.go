package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/illarion/walletcrypt/internal/core"
	"github.com/illarion/walletcrypt/internal/crypto"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Exit codes
const (
	ExitOK         = 0
	ExitError      = 1
	ExitCorruption = 2
)

var (
	cfgFile string
	logger  *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "walletcrypt",
	Short: "Manage an encrypted signing key wallet",
	Long: `walletcrypt stores secp256k1 signing keys in a local wallet file.

Keys start in plaintext. 'walletcrypt encrypt' wraps every key under a random
master key, which is itself wrapped under a key derived from your passphrase.
Public keys, labels and status stay readable without the passphrase.

The passphrase is read from WALLETCRYPT_PASSPHRASE, the OS keyring (see
'walletcrypt keyring'), or an interactive prompt, in that order.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(viper.GetString("log.level"))
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return HandleError(err)
	}
	return ExitOK
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.walletcrypt.yaml)")
	rootCmd.PersistentFlags().StringP("wallet-dir", "d", ".", "directory holding the wallet file")
	rootCmd.PersistentFlags().Uint32("rounds", crypto.DefaultRounds, "derive iterations for new passphrase records")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	bindFlagOrPanic("wallet.path", "wallet-dir")
	bindFlagOrPanic("wallet.rounds", "rounds")
	bindFlagOrPanic("log.level", "log-level")
}

func bindFlagOrPanic(configKey, flagName string) {
	if err := viper.BindPFlag(configKey, rootCmd.PersistentFlags().Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", flagName, err))
	}
}

func initConfig() {
	viper.SetDefault("wallet.path", ".")
	viper.SetDefault("wallet.rounds", crypto.DefaultRounds)
	viper.SetDefault("log.level", "warn")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName(".walletcrypt")
	}

	viper.SetEnvPrefix("WALLETCRYPT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func walletOptions() core.Options {
	return core.Options{
		Rounds: viper.GetUint32("wallet.rounds"),
		Logger: logger,
	}
}

func walletDir() string {
	return viper.GetString("wallet.path")
}

func openWallet() (*core.Wallet, error) {
	return core.Open(walletDir(), walletOptions())
}
