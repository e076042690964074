// Package cli implements printfarmctl, the operator command line speaking to
// the daemon's REST API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	apiAddress string
	verbose    bool
)

// NewRootCommand creates the root command for the CLI
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "printfarmctl",
		Short: "PrintFarm CLI - Interact with the print farm daemon",
		Long: `printfarmctl provides operator commands against the farm daemon's REST API.

Examples:
  printfarmctl printers
  printfarmctl pending changes
  printfarmctl pending jobs
  printfarmctl confirm change <change-id>
  printfarmctl confirm job <job-id> --success
  printfarmctl printer cancel <printer-id>
  printfarmctl printer toggle <printer-id>`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().StringVar(&apiAddress, "api", getDefaultAPIAddress(),
		"Base URL of the daemon operator API")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable verbose output")

	rootCmd.AddCommand(NewHealthCommand())
	rootCmd.AddCommand(NewPrintersCommand())
	rootCmd.AddCommand(NewPendingCommand())
	rootCmd.AddCommand(NewConfirmCommand())
	rootCmd.AddCommand(NewPrinterCommand())

	return rootCmd
}

// getDefaultAPIAddress returns the default daemon API base URL
func getDefaultAPIAddress() string {
	if addr := os.Getenv("PRINTFARM_API"); addr != "" {
		return addr
	}
	return "http://localhost:8080"
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
