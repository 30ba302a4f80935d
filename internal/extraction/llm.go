package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"invoicedesk/internal/logger"
)

// payloadSchema is the snake_case payload contract the LLM is asked to fill.
const payloadSchema = `{
  "invoice_id": string,
  "date": string,
  "total_in_words": string|null,
  "customer": {
    "name": string|null,
    "phone": string|null
  },
  "bank": {
    "bank_name": string|null,
    "account_number": string|null,
    "ifsc": string|null,
    "branch": string|null
  },
  "items": [
    {
      "name": string,
      "qty": number,
      "unit_price": number,
      "tax": number,
      "total": number
    }
  ],
  "subtotal": number,
  "tax_total": number,
  "total": number
}`

// jsonObjectPattern pulls the first JSON object out of a chatty completion.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// LLMNormalizer turns raw OCR text into a raw extraction payload using a
// chat completion. It is the fallback for documents whose layout defeats
// the structural parser entirely.
type LLMNormalizer struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

// NewLLMNormalizer creates a normalizer backed by the given OpenAI client.
// An empty model selects gpt-4o-mini.
func NewLLMNormalizer(client *openai.Client, model string) *LLMNormalizer {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &LLMNormalizer{
		client: client,
		model:  model,
		log:    logger.WithComponent("llm-normalizer"),
	}
}

// NormalizePayload asks the model to extract the payload schema from the
// document's raw text and returns the audited result.
func (n *LLMNormalizer) NormalizePayload(ctx context.Context, rawText string) (map[string]any, error) {
	const op = "NormalizePayload"

	n.log.Debug().
		Int("text_length", len(rawText)).
		Str("model", n.model).
		Msg("Requesting LLM payload normalization")

	jsonText, err := n.completeJSON(ctx, op, n.buildPrompt(rawText))
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(jsonText), &payload); err != nil {
		n.log.Warn().
			Err(err).
			Str("content", jsonText).
			Msg("LLM response was not valid JSON")
		return nil, WrapExtractionError(op, ErrEmptyCompletion, "response did not contain a JSON object")
	}

	return Audit(payload), nil
}

// NormalizeBulkPayloads asks the model to group spreadsheet rows into
// invoices and returns one audited payload per invoice. The input is the
// sheet rendered as CSV text.
func (n *LLMNormalizer) NormalizeBulkPayloads(ctx context.Context, csvText string) ([]map[string]any, error) {
	const op = "NormalizeBulkPayloads"

	n.log.Debug().
		Int("text_length", len(csvText)).
		Str("model", n.model).
		Msg("Requesting bulk LLM payload normalization")

	jsonText, err := n.completeJSON(ctx, op, n.buildBulkPrompt(csvText))
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Invoices []map[string]any `json:"invoices"`
	}
	if err := json.Unmarshal([]byte(jsonText), &wrapper); err != nil {
		n.log.Warn().
			Err(err).
			Str("content", jsonText).
			Msg("Bulk LLM response was not valid JSON")
		return nil, WrapExtractionError(op, ErrEmptyCompletion, "response did not contain a JSON object")
	}
	if len(wrapper.Invoices) == 0 {
		return nil, WrapExtractionError(op, ErrEmptyCompletion, "no invoices in response")
	}

	payloads := make([]map[string]any, 0, len(wrapper.Invoices))
	for _, p := range wrapper.Invoices {
		payloads = append(payloads, Audit(p))
	}
	return payloads, nil
}

// completeJSON runs one chat completion and returns the JSON object embedded
// in the response text.
func (n *LLMNormalizer) completeJSON(ctx context.Context, op, prompt string) (string, error) {
	resp, err := n.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       n.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an expert financial data extractor. Respond with a single valid JSON object and nothing else.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", WrapExtractionError(op, err, "chat completion request failed")
	}
	if len(resp.Choices) == 0 {
		return "", WrapExtractionError(op, ErrEmptyCompletion, "no choices in response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if m := jsonObjectPattern.FindString(content); m != "" {
		return m, nil
	}
	return content, nil
}

func (n *LLMNormalizer) buildPrompt(rawText string) string {
	return fmt.Sprintf(`Extract a valid JSON object from the invoice text below.

INSTRUCTIONS FOR ITEMS:
1. Extract all products from the item table.
2. 'unit_price' = Rate column value (price per unit before tax).
3. 'tax' = the tax AMOUNT for that item, never the percentage.
   If tax is shown only as invoice-level totals (CGST/SGST/IGST at the
   bottom), set item tax = 0 and capture the sum in "tax_total".
4. 'total' = the rightmost amount column for each item.
5. 'qty' = quantity column value (default 1 if missing).
6. Include making, shipping and card charges as separate items with qty=1
   and tax=0.

OTHER FIELDS:
- "total_in_words": the "Amount in words" line, full string, or null.
- "bank": account details from any "Bank Details" block, or nulls.

SCHEMA:
%s

INVOICE TEXT:
%s`, payloadSchema, rawText)
}

// bulkSchema is the contract for spreadsheet extraction: one payload per
// invoice grouping found in the sheet.
const bulkSchema = `{
  "invoices": [
    {
      "invoice_id": string,
      "date": string,
      "customer": { "name": string, "phone": string|null },
      "items": [
        { "name": string, "qty": number, "unit_price": number, "tax": number, "total": number }
      ],
      "subtotal": number,
      "tax_total": number,
      "total": number
    }
  ]
}`

func (n *LLMNormalizer) buildBulkPrompt(csvText string) string {
	return fmt.Sprintf(`You are a data processor converting CSV/Excel rows into JSON invoices.

INPUT DATA:
%s

RULES:
1. Identify the invoice grouping column, usually "Serial Number" or
   "Invoice Number".
2. GROUP rows by that identifier; emit one invoice per group.
3. Extract the customer from "Party Name" or "Party Company Name".
4. When a group has product columns ("Product Name", "Qty", "Price"):
   extract each product as a separate item. 'unit_price' = "Unit Price" or
   "Price with Tax" / (1 + Tax%%/100); 'tax' = the tax amount; 'qty' = the
   "Qty" column; 'total' = "Item Total Amount" or "Price with Tax".
5. When a group has only totals ("Net Amount", "Total Amount"): create ONE
   item named "Invoice Balance" with qty=1, unit_price = Net Amount,
   tax = Tax Amount, total = Total Amount.
6. A phone like "999999999.0" becomes "999999999" (drop the .0).
7. Keep dates as provided. Ensure subtotal + tax_total = total.

SCHEMA:
%s`, csvText, bulkSchema)
}
