package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <transaction>",
	Short: "Submit a transaction to the miner",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, "send", strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
