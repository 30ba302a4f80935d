package extraction

import (
	"errors"
	"fmt"
)

// Common extraction errors
var (
	// ErrInvalidPDF is returned when the provided data is not a valid PDF
	// document or cannot be processed by Document AI.
	ErrInvalidPDF = errors.New("invalid or corrupted PDF document")

	// ErrProcessingFailed is returned when Document AI processing fails.
	ErrProcessingFailed = errors.New("document AI processing failed")

	// ErrInvalidCredentials is returned when Google Cloud credentials are
	// invalid or lack the necessary permissions.
	ErrInvalidCredentials = errors.New("invalid Google Cloud credentials")

	// ErrMissingCredentials is returned when Google Cloud credentials are
	// not configured.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials")

	// ErrInvalidConfiguration is returned when the extractor configuration
	// is invalid.
	ErrInvalidConfiguration = errors.New("invalid extractor configuration")

	// ErrProcessorNotFound is returned when the specified Document AI
	// processor cannot be found or accessed.
	ErrProcessorNotFound = errors.New("Document AI processor not found")

	// ErrQuotaExceeded is returned when Document AI API quota limits are
	// exceeded.
	ErrQuotaExceeded = errors.New("Document AI API quota exceeded")

	// ErrDocumentTooLarge is returned when the document exceeds size limits.
	ErrDocumentTooLarge = errors.New("document exceeds maximum size limit")

	// ErrContextCanceled is returned when extraction is canceled via context.
	ErrContextCanceled = errors.New("extraction was canceled")

	// ErrEmptyCompletion is returned when the LLM fallback produces no
	// usable payload.
	ErrEmptyCompletion = errors.New("LLM returned no usable payload")
)

// ExtractionError wraps errors with additional context about extraction
// failures.
type ExtractionError struct {
	// Op is the operation that failed (e.g., "Extract", "mapDocument").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("extraction: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("extraction: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is.
func (e *ExtractionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapExtractionError wraps an error as an ExtractionError if it isn't
// already one. Returns nil for a nil error.
func WrapExtractionError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return err // Already wrapped
	}

	return &ExtractionError{Op: op, Err: err, Details: details}
}
