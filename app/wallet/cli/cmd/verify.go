package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <transaction>",
	Short: "Prove a transaction is sealed in the miner's chain",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, "verify", strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
