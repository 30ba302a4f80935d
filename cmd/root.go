package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"invoicedesk/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "invoicedesk",
	Short: "invoicedesk - invoice extraction and reconciliation ledger",
	Long: `invoicedesk ingests invoice extraction results and maintains three
denormalized, mutually consistent collections derived from them: invoices,
products and customers.

Documents are extracted with Google Cloud Document AI (with text and LLM
fallbacks for layouts the structural parser cannot handle) and folded into
an in-memory ledger that keeps product and customer aggregates consistent
with the invoices that back them, including cascading recomputation when
any record is edited directly.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("invoicedesk executed")

		fmt.Println("Welcome to invoicedesk!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

// Execute runs the root command.
func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
