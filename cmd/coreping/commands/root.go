// Package commands implements coreping's CLI commands.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "coreping",
	Short: "Diagnose a core I/O runtime connection",
	Long: `coreping drives the channel bootstrap pipeline against one node and
reports what was negotiated: HELLO features, error map presence, auth
outcome, and bucket selection.

Use "coreping [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(bootstrapCmd)
}
