package extraction

import (
	"errors"
	"fmt"
)

// ErrUnknownConcept indicates a concept with no registered extractor. It is
// raised at dispatch, before any retrieval or generation work begins.
var ErrUnknownConcept = errors.New("no extractor registered for concept")

// ErrEmptyGeneration indicates the generation provider returned an empty
// reply. Fatal for the concept being extracted.
var ErrEmptyGeneration = errors.New("empty generation output")

// SchemaError reports a structural violation in generated JSON, carrying a
// human-readable description of which field or item failed and why.
type SchemaError struct {
	Concept string
	Reason  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema validation failed for %s: %s", e.Concept, e.Reason)
}

// NewSchemaError builds a SchemaError with printf-style reason formatting.
func NewSchemaError(concept, format string, args ...any) *SchemaError {
	return &SchemaError{Concept: concept, Reason: fmt.Sprintf(format, args...)}
}

// IsSchemaError reports whether err carries a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
