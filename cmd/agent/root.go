package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "browser-observer",
	Short: "Executes navigation plans and archives the UI states they reach",
	Long: `browser-observer drives a real browser through pre-written plans, captures
every meaningful UI state the plan passes through and writes them to a
dataset directory. Settings come from the environment and .env files.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
