// Package main is the entry point for the pledge CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pledge",
	Short: "Pledge badge server and tools",
	Long: `Pledge runs the pledge badge API and provides the tools around it.

Accounts claim a non-transferable badge by signing a pledge text. The owner
adds pledges, revokes badges and redeems revoked accounts.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
