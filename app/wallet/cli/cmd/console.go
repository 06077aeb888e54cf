package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ardanlabs/meshchain/foundation/blockchain/wallet"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Read Send, Check, Verify and Exit commands from stdin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newWallet(cmd)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wallet %d bound to miner %s\n", w.ID(), w.Miner())

		return console(cmd.Context(), w, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

// console executes one command per line until Exit or the end of input.
// Failed commands are reported and the console keeps reading.
func console(ctx context.Context, w *wallet.Wallet, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		name, message, _ := strings.Cut(line, " ")

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err := w.HandleCommand(callCtx, name, message)
		cancel()

		switch {
		case err == nil:
		case errors.Is(err, wallet.ErrExit):
			return nil
		case errors.Is(err, wallet.ErrUnknownCommand):
			fmt.Fprintf(out, "%s, expecting Send, Check, Verify or Exit\n", err)
		default:
			fmt.Fprintf(out, "ERROR: %s\n", err)
		}
	}
}
