// Package extraction defines the per-concept extractor contract, the
// concept registry and the lifecycle that drives one extractor instance
// through prompt construction, generation, parsing and normalization.
package extraction

// Concept names for the built-in extractors.
const (
	ConceptItems      = "ITEMS_LICITACION"
	ConceptFinance    = "FINANZAS_LICITACION"
	ConceptBasicData  = "DATOS_BASICOS_LICITACION"
	ConceptWrapperKey = "concepto"
)

// Input carries everything an extractor needs to build its prompt. One
// struct instead of variadic call shapes keeps the contract a fixed arity.
type Input struct {
	Context  string
	TenderID string
}

// Result is the structured, concept-tagged output of one extraction.
type Result map[string]any

// Extractor is the contract every concept implementation satisfies.
//
// BuildQueries must be deterministic for identical input state. ParseOutput
// strips incidental code fencing, parses JSON and applies the concept's
// schema validation. Normalize defaults to identity; concepts override it
// for field-level cleanup.
type Extractor interface {
	Concept() string
	BuildQueries(tenderID string) []string
	BuildPrompt(in Input) (string, error)
	ParseOutput(raw string) (Result, error)
	Normalize(parsed Result) Result
}
