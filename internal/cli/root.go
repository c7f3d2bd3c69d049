package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitUsageError   = 2
	ExitRuntimeError = 4
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "SVN commit monitor with AI code review",
	Long:  "Vigil watches an SVN repository for new commits, reviews each diff with an AI model and posts the results to a DingTalk group.",
}

// Run executes the root command and returns an exit code.
func Run() int {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}

	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print vigil version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "vigil version %s\n", version)
	},
}
