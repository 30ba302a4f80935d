package cmd

import (
	"github.com/spf13/cobra"

	"invoicedesk/internal/config"
	"invoicedesk/internal/extraction"
	"invoicedesk/internal/ledger"
	"invoicedesk/internal/logger"
	"invoicedesk/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reconciliation ledger over HTTP",
	Long: `Start an HTTP server exposing the ledger: document upload into the
extraction pipeline, read access to the invoice, product and customer
collections, and the edit endpoints with their cross-collection cascades.

State is in-memory and process-lifetime only; restarting the server starts
from an empty ledger.

When Google Cloud credentials are not configured the server still runs:
the /api/extract upload endpoint reports unavailable, while ingestion of
pre-extracted payloads (POST /api/invoices) and all read and edit
endpoints work normally.`,
	Example: `  # Serve on the default address (:8080)
  invoicedesk serve

  # Serve on a specific address
  invoicedesk serve --addr :9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: LISTEN_ADDR or :8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.ListenAddr
	}

	var ex extraction.Extractor
	if cfg.GoogleCloudProject != "" {
		extractor, err := newExtractor(cmd.Context())
		if err != nil {
			return err
		}
		defer extractor.Close()
		ex = extractor
	} else {
		log.Warn().Msg("Document AI not configured, upload extraction disabled")
	}

	srv := server.New(ledger.New(), ex)
	return srv.Run(addr)
}
