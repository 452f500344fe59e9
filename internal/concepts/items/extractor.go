// Package items implements the ITEMS_LICITACION concept: the list of
// products or services a tender requests, with quantities, units and
// technical specifications.
package items

import (
	"encoding/json"
	"log"

	"github.com/javierg83/lic-etl-semantic-extractor/internal/extraction"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/prompts"
)

// PromptVersion pins the template this extractor builds its prompt from.
const PromptVersion = "v3"

// Extractor extracts the tender item list.
type Extractor struct {
	prompts *prompts.Store
	logger  *log.Logger
}

// New builds the items extractor.
func New(store *prompts.Store, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.New(log.Writer(), "[ITEMS] ", log.LstdFlags)
	}
	return &Extractor{prompts: store, logger: logger}
}

func (e *Extractor) Concept() string { return extraction.ConceptItems }

// BuildQueries returns the fixed retrieval queries for item discovery.
func (e *Extractor) BuildQueries(tenderID string) []string {
	queries := []string{
		"ítems solicitados",
		"detalle de los ítems",
		"productos requeridos",
		"servicios requeridos",
		"cantidad solicitada",
		"especificaciones técnicas",
		"oferta técnica",
		"anexo oferta",
		"lista de ítems",
		"descripción de los ítems",
	}
	e.logger.Printf("queries built | tender=%s total=%d", tenderID, len(queries))
	return queries
}

func (e *Extractor) BuildPrompt(in extraction.Input) (string, error) {
	template, err := e.prompts.Load(e.Concept(), PromptVersion)
	if err != nil {
		return "", err
	}
	return prompts.Render(template, in.Context), nil
}

// ParseOutput validates the generated JSON against the items contract and
// returns the concept-tagged payload.
func (e *Extractor) ParseOutput(raw string) (extraction.Result, error) {
	cleaned := extraction.CleanJSONOutput(raw)
	if cleaned == "" {
		return nil, extraction.NewSchemaError(e.Concept(), "salida del LLM vacía tras limpieza")
	}

	payload, err := validate(cleaned)
	if err != nil {
		return nil, err
	}

	if len(payload.Items) == 0 {
		e.logger.Printf("warn: items == [] | observaciones=%v", payload.Resumen["observaciones"])
	}

	return extraction.Result{
		extraction.ConceptWrapperKey: e.Concept(),
		"resumen":                    payload.Resumen,
		"items":                      payload.Items,
		"especificaciones":           payload.Especificaciones,
		"warnings":                   payload.Warnings,
	}, nil
}

// Normalize turns validated items into rows ready for persistence: trimmed
// fields, completeness motives and the derived technical-description flag.
func (e *Extractor) Normalize(parsed extraction.Result) extraction.Result {
	items, _ := parsed["items"].([]Item)
	warnings := toStringSlice(parsed["warnings"])
	refs, _ := parsed["especificaciones"].([]SpecRef)

	rows, specRows, extraWarnings := normalizeItems(items, refs)
	warnings = append(warnings, extraWarnings...)

	return extraction.Result{
		extraction.ConceptWrapperKey: e.Concept(),
		"resumen":                    parsed["resumen"],
		"items":                      rows,
		"item_especificaciones":      specRows,
		"warnings":                   warnings,
	}
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case json.RawMessage:
		var out []string
		_ = json.Unmarshal(vv, &out)
		return out
	default:
		return nil
	}
}
