// Package extraction turns invoice documents into raw extraction payloads
// using Google Cloud Document AI, with a text-reconstruction fallback for
// sparse parses and an optional LLM fallback for documents the structural
// parser cannot handle.
//
// The payload produced here is the loosely-shaped, snake_case mapping that
// the ledger's normalizer defends against; this package makes a best effort
// at filling it and audits it for internal consistency, but it is the
// ledger, not this package, that defines the canonical record.
//
// Required Environment Variables:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//   - GOOGLE_PROJECT_ID or GOOGLE_CLOUD_PROJECT: Google Cloud project ID
//   - GOOGLE_LOCATION or GOOGLE_CLOUD_LOCATION: Processing location ("us", "eu")
//   - GOOGLE_PROCESSOR_ID or DOCUMENT_AI_PROCESSOR_ID: invoice processor ID
//
// Document AI API Limitations:
//   - Maximum file size: 20MB for synchronous processing
//   - Supported formats: PDF, TIFF, GIF, JPEG, PNG, BMP, WEBP
//   - Processing time: typically 5-15 seconds per invoice
package extraction

import (
	"context"
	"io"
	"time"
)

// Extractor defines the interface for services that turn an invoice
// document into a raw extraction payload.
type Extractor interface {
	// Extract reads one invoice document and returns the raw payload:
	// a loosely-shaped mapping using the upstream snake_case contract
	// (invoice_id, date, customer{name, phone}, items[{name, qty,
	// unit_price, tax, total}], total, tax_total, total_in_words,
	// bank{bank_name, account_number, ifsc, branch}).
	Extract(ctx context.Context, doc io.Reader) (map[string]any, error)
}

// BulkExtractor is implemented by extractors that can turn one spreadsheet
// of invoice rows into multiple raw payloads.
type BulkExtractor interface {
	// ExtractBulk reads a CSV or Excel document and returns one raw
	// payload per invoice grouping found in it. The filename selects the
	// parser by extension.
	ExtractBulk(ctx context.Context, name string, doc io.Reader) ([]map[string]any, error)
}

// DocumentAIConfig holds configuration for Google Document AI processing.
type DocumentAIConfig struct {
	// ProjectID is the Google Cloud project ID where Document AI is enabled.
	ProjectID string

	// Location is the processing location (e.g., "us", "eu").
	// Should match where the Document AI processor is created.
	Location string

	// ProcessorID is the Document AI invoice processor ID.
	ProcessorID string

	// ProcessorVersion pins a particular processor version.
	// If empty, uses the default version.
	ProcessorVersion string

	// Timeout is the maximum time to wait for one document.
	// Default: 60 seconds.
	Timeout time.Duration
}

// DefaultConfig returns a DocumentAIConfig with sensible defaults.
func DefaultConfig() DocumentAIConfig {
	return DocumentAIConfig{
		Location: "us",
		Timeout:  60 * time.Second,
	}
}
