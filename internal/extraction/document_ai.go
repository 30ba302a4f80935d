package extraction

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"invoicedesk/internal/logger"
)

const (
	// MaxDocumentSizeBytes is the maximum document size for synchronous
	// processing (20MB).
	MaxDocumentSizeBytes = 20 * 1024 * 1024

	// minStructuredItems is the line-item count below which the text
	// fallback is consulted. Structural parses of dense GST tables often
	// come back with one row or none.
	minStructuredItems = 2
)

// nonProductRow matches line items that are really subtotal or fee rows
// tagged as line items by the structural parser. They are dropped at
// extraction; the ledger applies its own service-charge classification on
// top for anything that slips through.
var nonProductRow = regexp.MustCompile(`(?i)charge|fee|shipping|debit|making|round`)

// DocumentAIExtractor implements Extractor using Google Document AI.
type DocumentAIExtractor struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	llm    *LLMNormalizer
	log    zerolog.Logger
}

// NewDocumentAIExtractor creates an extractor with credentials from the
// environment. Expects GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS;
// requires a project ID, and optionally a location and processor ID.
func NewDocumentAIExtractor(ctx context.Context) (*DocumentAIExtractor, error) {
	const op = "NewDocumentAIExtractor"

	config := DefaultConfig()
	config.ProjectID = getEnvVar("GOOGLE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT")
	if loc := getEnvVar("GOOGLE_LOCATION", "GOOGLE_CLOUD_LOCATION"); loc != "" {
		config.Location = loc
	}
	config.ProcessorID = getEnvVar("GOOGLE_PROCESSOR_ID", "DOCUMENT_AI_PROCESSOR_ID")
	config.ProcessorVersion = os.Getenv("DOCUMENT_AI_PROCESSOR_VERSION")

	if config.ProjectID == "" {
		return nil, WrapExtractionError(op, ErrInvalidConfiguration, "GOOGLE_PROJECT_ID or GOOGLE_CLOUD_PROJECT is required")
	}

	var clientOptions []option.ClientOption

	// Regional endpoint for non-US processors
	if config.Location != "" && config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if len(clientOptions) == 0 {
			return nil, WrapExtractionError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapExtractionError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return &DocumentAIExtractor{
		client: client,
		config: config,
		log:    logger.WithComponent("document-ai"),
	}, nil
}

// NewDocumentAIExtractorWithConfig creates an extractor with explicit config
// and client (for testing).
func NewDocumentAIExtractorWithConfig(config DocumentAIConfig, client *documentai.DocumentProcessorClient) *DocumentAIExtractor {
	return &DocumentAIExtractor{
		client: client,
		config: config,
		log:    logger.WithComponent("document-ai"),
	}
}

// Extract processes one invoice document and returns the raw payload.
func (e *DocumentAIExtractor) Extract(ctx context.Context, doc io.Reader) (map[string]any, error) {
	const op = "Extract"

	data, err := io.ReadAll(doc)
	if err != nil {
		return nil, WrapExtractionError(op, err, "failed to read document data")
	}

	if len(data) > MaxDocumentSizeBytes {
		return nil, WrapExtractionError(op, ErrDocumentTooLarge, fmt.Sprintf("file size: %d bytes", len(data)))
	}
	if len(data) < 4 || string(data[:4]) != "%PDF" {
		return nil, WrapExtractionError(op, ErrInvalidPDF, "missing PDF header")
	}

	processCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: e.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: "application/pdf",
			},
		},
	}

	resp, err := e.client.ProcessDocument(processCtx, req)
	if err != nil {
		return nil, e.handleProcessingError(op, err)
	}
	if resp.Document == nil {
		return nil, WrapExtractionError(op, ErrProcessingFailed, "no document in response")
	}

	payload := Audit(e.mapDocument(resp.Document))

	// When neither the structural parse nor the text fallback produced any
	// line items, hand the whole document text to the LLM normalizer if one
	// is configured. Its failure is not fatal; the sparse payload stands.
	if items, _ := payload["items"].([]any); len(items) == 0 && e.llm != nil {
		llmPayload, llmErr := e.llm.NormalizePayload(ctx, resp.Document.Text)
		if llmErr != nil {
			e.log.Warn().Err(llmErr).Msg("LLM fallback failed, keeping sparse payload")
		} else {
			return llmPayload, nil
		}
	}

	return payload, nil
}

// ExtractBulk converts a spreadsheet into CSV text and asks the LLM
// normalizer to group its rows into invoice payloads. Requires the LLM
// fallback to be attached; Document AI itself plays no part in this path.
func (e *DocumentAIExtractor) ExtractBulk(ctx context.Context, name string, doc io.Reader) ([]map[string]any, error) {
	const op = "ExtractBulk"

	if e.llm == nil {
		return nil, WrapExtractionError(op, ErrInvalidConfiguration, "spreadsheet extraction requires the LLM normalizer")
	}
	text, err := SpreadsheetToText(name, doc)
	if err != nil {
		return nil, err
	}
	return e.llm.NormalizeBulkPayloads(ctx, text)
}

// WithLLMFallback attaches an LLM normalizer consulted when a document
// yields no line items at all. Returns the extractor for chaining.
func (e *DocumentAIExtractor) WithLLMFallback(n *LLMNormalizer) *DocumentAIExtractor {
	e.llm = n
	return e
}

// mapDocument converts a Document AI parse into the raw snake_case payload.
// Structured entities are preferred; where the structural parse is sparse or
// silent the OCR text of the document fills in (item table reconstruction,
// grand total, GST tax lines, bank details, amount in words).
func (e *DocumentAIExtractor) mapDocument(doc *documentaipb.Document) map[string]any {
	var (
		invoiceID   string
		date        string
		name        string
		phone       string
		entityTotal float64
		netAmount   float64
	)
	items := []any{}

	for _, entity := range doc.Entities {
		value := strings.TrimSpace(entity.MentionText)

		e.log.Debug().
			Str("entity_type", entity.Type).
			Str("value", value).
			Float32("confidence", entity.Confidence).
			Msg("Processing Document AI entity")

		switch entity.Type {
		case "invoice_id", "invoice_number":
			invoiceID = value
		case "invoice_date":
			date = entityText(entity)
		case "receiver_name", "customer_name":
			name = value
		case "receiver_phone", "customer_phone":
			phone = value
		case "total_amount", "gross_amount":
			if n, ok := entityNumber(entity); ok {
				entityTotal = n
			}
		case "net_amount", "subtotal_amount":
			if n, ok := entityNumber(entity); ok {
				netAmount = n
			}
		case "line_item":
			if item, ok := e.mapLineItem(entity); ok {
				items = append(items, item)
			}
		}
	}

	// When the structural parse misses most of the table, rebuild it from
	// the OCR text; switch only if the text parser actually found more.
	if len(items) < minStructuredItems {
		textItems := parseItemsFromText(doc.Text)
		if len(textItems) > len(items) {
			e.log.Info().
				Int("structured", len(items)).
				Int("from_text", len(textItems)).
				Msg("Using item table reconstructed from OCR text")
			items = textItems
		}
	}

	// The printed grand total in the OCR text is often more reliable than
	// the structural total when GST tables confuse the parser; take the
	// largest credible candidate.
	total := entityTotal
	if netAmount > total {
		total = netAmount
	}
	if textTotal := totalFromText(doc.Text); textTotal > total {
		total = textTotal
	}

	payload := map[string]any{
		"invoice_id": invoiceID,
		"date":       date,
		"customer": map[string]any{
			"name":  name,
			"phone": phone,
		},
		"items":          items,
		"total":          total,
		"tax_total":      taxFromText(doc.Text),
		"total_in_words": wordsFromText(doc.Text),
		"bank":           bankFromText(doc.Text),
	}

	e.log.Info().
		Str("invoice_id", invoiceID).
		Str("customer", name).
		Float64("total", total).
		Int("items", len(items)).
		Msg("Document AI extraction completed")

	return payload
}

// mapLineItem converts a line_item entity into a raw item mapping. Rows that
// are really fees or subtotals, and rows with no amount, are dropped.
func (e *DocumentAIExtractor) mapLineItem(entity *documentaipb.Document_Entity) (map[string]any, bool) {
	prop := func(t string) *documentaipb.Document_Entity {
		for _, p := range entity.Properties {
			if p.Type == t {
				return p
			}
		}
		return nil
	}
	propNumber := func(t string, def float64) float64 {
		if p := prop(t); p != nil {
			if n, ok := entityNumber(p); ok {
				return n
			}
		}
		return def
	}

	itemName := ""
	if p := prop("line_item/description"); p != nil {
		itemName = strings.TrimSpace(p.MentionText)
	}
	if nonProductRow.MatchString(itemName) {
		return nil, false
	}

	amount := propNumber("line_item/amount", 0)
	if amount <= 0 {
		return nil, false
	}

	if itemName == "" {
		itemName = "Unknown"
	}
	return map[string]any{
		"name":       itemName,
		"qty":        propNumber("line_item/quantity", 1),
		"unit_price": propNumber("line_item/unit_price", 0),
		"tax":        propNumber("line_item/tax_amount", 0),
		"total":      amount,
	}, true
}

// processorName constructs the full processor name for the Document AI API.
func (e *DocumentAIExtractor) processorName() string {
	if e.config.ProcessorID != "" {
		if e.config.ProcessorVersion != "" {
			return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
				e.config.ProjectID, e.config.Location, e.config.ProcessorID, e.config.ProcessorVersion)
		}
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
			e.config.ProjectID, e.config.Location, e.config.ProcessorID)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		e.config.ProjectID, e.config.Location, "default-invoice-processor")
}

// handleProcessingError converts Document AI errors to extraction errors.
func (e *DocumentAIExtractor) handleProcessingError(op string, err error) error {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return WrapExtractionError(op, ErrInvalidCredentials, "insufficient permissions for Document AI")
	case strings.Contains(errStr, "QUOTA_EXCEEDED"):
		return WrapExtractionError(op, ErrQuotaExceeded, "Document AI API quota exceeded")
	case strings.Contains(errStr, "NOT_FOUND"):
		return WrapExtractionError(op, ErrProcessorNotFound, fmt.Sprintf("processor not found: %s", e.config.ProcessorID))
	case strings.Contains(errStr, "INVALID_ARGUMENT"):
		return WrapExtractionError(op, ErrInvalidPDF, "document format not supported or corrupted")
	case strings.Contains(errStr, "DeadlineExceeded") || strings.Contains(errStr, "context deadline exceeded"):
		return WrapExtractionError(op, context.DeadlineExceeded, "processing timeout")
	case strings.Contains(errStr, "Canceled") || strings.Contains(errStr, "context canceled"):
		return WrapExtractionError(op, ErrContextCanceled, "processing was canceled")
	default:
		return WrapExtractionError(op, ErrProcessingFailed, fmt.Sprintf("Document AI error: %v", err))
	}
}

// Close closes the underlying Document AI client.
func (e *DocumentAIExtractor) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// entityText prefers the normalized value over the raw mention text.
func entityText(entity *documentaipb.Document_Entity) string {
	if nv := entity.NormalizedValue; nv != nil && nv.Text != "" {
		return nv.Text
	}
	return strings.TrimSpace(entity.MentionText)
}

// entityNumber extracts a numeric value from an entity, preferring the
// normalized money/float value, falling back to parsing the mention text.
func entityNumber(entity *documentaipb.Document_Entity) (float64, bool) {
	if nv := entity.NormalizedValue; nv != nil {
		if money := nv.GetMoneyValue(); money != nil {
			return float64(money.Units) + float64(money.Nanos)/1e9, true
		}
		if f := nv.GetFloatValue(); f != 0 {
			return float64(f), true
		}
	}
	return parseAmount(entity.MentionText)
}

// getEnvVar tries multiple environment variable names and returns the first
// non-empty value.
func getEnvVar(names ...string) string {
	for _, name := range names {
		if value := os.Getenv(name); value != "" {
			return value
		}
	}
	return ""
}
