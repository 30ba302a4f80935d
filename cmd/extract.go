package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"invoicedesk/internal/extraction"
	"invoicedesk/internal/ledger"
	"invoicedesk/internal/logger"
)

var extractCmd = &cobra.Command{
	Use:   "extract [pdf-file]",
	Short: "Extract structured invoice data from a PDF using Google Document AI",
	Long: `Process a PDF invoice with Google Document AI's invoice parser and print
the canonical invoice record as JSON.

The raw extraction payload is normalized the same way ingestion normalizes
it: dual-convention keys are resolved, missing fields are defaulted, and
line items get generated product ids. Use --raw to see the payload before
normalization instead.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_CLOUD_PROJECT - Your Google Cloud project ID
  GOOGLE_CLOUD_LOCATION - Processing location (us, eu, etc.)
  DOCUMENT_AI_PROCESSOR_ID - Your Document AI invoice processor ID

Optional:
  OPENAI_API_KEY - Enables the LLM fallback for unparseable layouts`,
	Example: `  # Extract one invoice to stdout (canonical JSON)
  invoicedesk extract invoice.pdf

  # Save the canonical record to a file
  invoicedesk extract invoice.pdf -o invoice.json

  # Inspect the raw extraction payload instead
  invoicedesk extract invoice.pdf --raw

  # Allow more time for a large document
  invoicedesk extract big-invoice.pdf --timeout 120`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	extractCmd.Flags().Bool("raw", false, "Print the raw extraction payload instead of the canonical invoice")
	extractCmd.Flags().Int("timeout", 120, "Processing timeout in seconds")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	outputPath, _ := cmd.Flags().GetString("output")
	rawOutput, _ := cmd.Flags().GetBool("raw")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	pdfPath := args[0]

	log.Info().
		Str("file", pdfPath).
		Str("output", outputPath).
		Bool("raw", rawOutput).
		Msg("Starting invoice extraction")

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	extractor, err := newExtractor(ctx)
	if err != nil {
		return err
	}
	defer extractor.Close()

	f, err := os.Open(pdfPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", pdfPath, err)
	}
	defer f.Close()

	payload, err := extractor.Extract(ctx, f)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	var out any = payload
	if !rawOutput {
		out = ledger.Normalize(payload)
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	if outputPath == "" {
		fmt.Println(string(encoded))
		return nil
	}
	if err := os.WriteFile(outputPath, append(encoded, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	log.Info().Str("output", outputPath).Msg("Extraction result written")
	return nil
}

// newExtractor builds the Document AI extractor from the environment,
// attaching the LLM fallback when an OpenAI key is configured.
func newExtractor(ctx context.Context) (*extraction.DocumentAIExtractor, error) {
	extractor, err := extraction.NewDocumentAIExtractor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	if llm := newLLMNormalizer(); llm != nil {
		extractor.WithLLMFallback(llm)
	}
	return extractor, nil
}

// newLLMNormalizer builds the LLM normalizer from the environment, or nil
// when no OpenAI key is configured.
func newLLMNormalizer() *extraction.LLMNormalizer {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil
	}
	return extraction.NewLLMNormalizer(openai.NewClient(key), os.Getenv("OPENAI_MODEL"))
}
