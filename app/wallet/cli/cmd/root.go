// Package cmd contains the wallet app.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/meshchain/foundation/blockchain/wallet"
	"github.com/ardanlabs/meshchain/foundation/logger"
	"github.com/ardanlabs/meshchain/foundation/validate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	host       string
	miner      string
	difficulty uint
	timeout    time.Duration
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Wallet bound to a single miner",
	Args:  cobra.ArbitraryArgs,

	// A role that matches no command is a usage problem, not a failure.
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "unknown role %q\n\n", args[0])
		}
		cmd.Usage()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&host, "host", "127.0.0.1:9000", "Address this wallet identifies itself with.")
	rootCmd.PersistentFlags().StringVar(&miner, "miner", "127.0.0.1:6000", "Address of the miner to bind to.")
	rootCmd.PersistentFlags().UintVar(&difficulty, "difficulty", wallet.DefaultDifficulty, "Difficulty fetched chains are validated at.")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Deadline for each call to the miner.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log wallet events to stderr.")
}

// =============================================================================

// flags is the validated form of the persistent flags.
type flags struct {
	Host       string `json:"host" validate:"required,hostname_port,max=21"`
	Miner      string `json:"miner" validate:"required,hostname_port,max=21"`
	Difficulty uint   `json:"difficulty" validate:"lte=64"`
}

// newWallet validates the flags and registers a wallet with the miner.
func newWallet(cmd *cobra.Command) (*wallet.Wallet, error) {
	if err := validate.Check(flags{Host: host, Miner: miner, Difficulty: difficulty}); err != nil {
		return nil, fmt.Errorf("validating flags: %w", err)
	}

	log := zap.NewNop().Sugar()
	if verbose {
		var err error
		if log, err = logger.New("WALLET", "stderr"); err != nil {
			return nil, fmt.Errorf("constructing logger: %w", err)
		}
	}

	ev := func(v string, args ...any) {
		log.Infow(fmt.Sprintf(v, args...), "host", host)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	w, err := wallet.New(ctx, wallet.Config{
		Host:       host,
		Miner:      miner,
		Difficulty: difficulty,
		Out:        cmd.OutOrStdout(),
		EvHandler:  ev,
	})
	if err != nil {
		return nil, fmt.Errorf("registering with miner %s: %w", miner, err)
	}

	return w, nil
}

// runCommand registers a wallet and executes a single command with it.
func runCommand(cmd *cobra.Command, name string, message string) error {
	w, err := newWallet(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	return w.HandleCommand(ctx, name, message)
}
