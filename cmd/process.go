package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"invoicedesk/internal/extraction"
	"invoicedesk/internal/ledger"
	"invoicedesk/internal/logger"
	"invoicedesk/pkg/models"
)

var processCmd = &cobra.Command{
	Use:   "process [directory]",
	Short: "Process a directory of invoices through the reconciliation ledger",
	Long: `Walk a directory of invoice documents, ingest every one into a fresh
ledger and emit the resulting collections as a JSON report.

PDF files are extracted with Google Document AI. Excel and CSV files are
treated as bulk exports holding many invoices as rows; their rows are
grouped into invoices by the LLM normalizer (requires OPENAI_API_KEY).
JSON files are treated as pre-extracted raw payloads (the shape the
extract --raw command emits) and ingested directly, so a report can be
rebuilt offline from saved payloads without any cloud access.

Files that fail extraction are reported per file and skipped; they never
enter the collections.`,
	Example: `  # Process a folder of PDFs and print the report
  invoicedesk process ./invoices

  # Process a bulk Excel export alongside scanned PDFs
  invoicedesk process ./month-end -o report.json

  # Rebuild a report from saved raw payloads, no credentials needed
  invoicedesk process ./payloads -o report.json`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringP("output", "o", "", "Report file path (default: stdout)")
	processCmd.Flags().Int("timeout", 120, "Per-document processing timeout in seconds")
}

// processReport is the JSON shape of the emitted report.
type processReport struct {
	ProcessedAt time.Time         `json:"processedAt"`
	Files       []fileOutcome     `json:"files"`
	Invoices    []models.Invoice  `json:"invoices"`
	Products    []models.Product  `json:"products"`
	Customers   []models.Customer `json:"customers"`
}

type fileOutcome struct {
	File    string `json:"file"`
	Status  string `json:"status"` // "ok" or "error"
	Message string `json:"message,omitempty"`
}

func runProcess(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("process")

	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	dir := args[0]
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var pdfs, sheets, payloads []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".pdf":
			pdfs = append(pdfs, filepath.Join(dir, entry.Name()))
		case ".csv", ".xlsx", ".xls":
			sheets = append(sheets, filepath.Join(dir, entry.Name()))
		case ".json":
			payloads = append(payloads, filepath.Join(dir, entry.Name()))
		}
	}
	if len(pdfs) == 0 && len(sheets) == 0 && len(payloads) == 0 {
		return fmt.Errorf("no .pdf, spreadsheet or .json files in %s", dir)
	}

	log.Info().
		Int("pdfs", len(pdfs)).
		Int("spreadsheets", len(sheets)).
		Int("payloads", len(payloads)).
		Str("dir", dir).
		Msg("Starting batch processing")

	// The extractor is only needed when PDFs are present; payload-only
	// runs work without credentials. Spreadsheets need only the LLM.
	var extractor *extraction.DocumentAIExtractor
	if len(pdfs) > 0 {
		extractor, err = newExtractor(cmd.Context())
		if err != nil {
			return err
		}
		defer extractor.Close()
	}
	var llm *extraction.LLMNormalizer
	if len(sheets) > 0 {
		if llm = newLLMNormalizer(); llm == nil {
			return fmt.Errorf("OPENAI_API_KEY is required to process spreadsheet files")
		}
	}

	led := ledger.New()
	report := processReport{ProcessedAt: time.Now()}

	for _, path := range payloads {
		outcome := fileOutcome{File: filepath.Base(path), Status: "ok"}
		raw, err := readPayload(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Skipping unreadable payload")
			outcome.Status = "error"
			outcome.Message = err.Error()
		} else {
			led.Ingest(raw)
		}
		report.Files = append(report.Files, outcome)
	}

	for _, path := range sheets {
		outcome := fileOutcome{File: filepath.Base(path), Status: "ok"}
		if err := bulkInto(cmd, led, llm, path, timeoutSecs); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Skipping failed spreadsheet")
			outcome.Status = "error"
			outcome.Message = err.Error()
		}
		report.Files = append(report.Files, outcome)
	}

	for _, path := range pdfs {
		outcome := fileOutcome{File: filepath.Base(path), Status: "ok"}
		if err := extractInto(cmd, led, extractor, path, timeoutSecs); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Skipping failed document")
			outcome.Status = "error"
			outcome.Message = err.Error()
		}
		report.Files = append(report.Files, outcome)
	}

	report.Invoices = led.Invoices()
	report.Products = led.Products()
	report.Customers = led.Customers()

	log.Info().
		Int("invoices", len(report.Invoices)).
		Int("products", len(report.Products)).
		Int("customers", len(report.Customers)).
		Msg("Batch processing complete")

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if outputPath == "" {
		fmt.Println(string(encoded))
		return nil
	}
	if err := os.WriteFile(outputPath, append(encoded, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	log.Info().Str("output", outputPath).Msg("Report written")
	return nil
}

func readPayload(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("not a JSON object: %w", err)
	}
	return raw, nil
}

func extractInto(cmd *cobra.Command, led *ledger.Ledger, extractor *extraction.DocumentAIExtractor, path string, timeoutSecs int) error {
	ctx, cancel := contextWithTimeout(cmd, timeoutSecs)
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	payload, err := extractor.Extract(ctx, f)
	if err != nil {
		return err
	}
	led.Ingest(payload)
	return nil
}

func bulkInto(cmd *cobra.Command, led *ledger.Ledger, llm *extraction.LLMNormalizer, path string, timeoutSecs int) error {
	ctx, cancel := contextWithTimeout(cmd, timeoutSecs)
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	text, err := extraction.SpreadsheetToText(filepath.Base(path), f)
	if err != nil {
		return err
	}
	payloads, err := llm.NormalizeBulkPayloads(ctx, text)
	if err != nil {
		return err
	}
	for _, p := range payloads {
		led.Ingest(p)
	}
	return nil
}

func contextWithTimeout(cmd *cobra.Command, secs int) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), time.Duration(secs)*time.Second)
}
