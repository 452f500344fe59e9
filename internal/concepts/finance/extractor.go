// Package finance implements the FINANZAS_LICITACION concept: budget,
// currency, payment terms, funding source, guarantees and penalties.
package finance

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/javierg83/lic-etl-semantic-extractor/internal/extraction"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/prompts"
)

// PromptVersion pins the template this extractor builds its prompt from.
const PromptVersion = "v1"

// expectedKeys are forced to null when the model omits them so downstream
// consumers always see the full shape.
var expectedKeys = []string{
	"presupuesto_referencial",
	"moneda",
	"forma_pago",
	"plazo_pago",
	"fuente_financiamiento",
	"garantias",
	"multas",
}

const financeSchema = `{
  "type": "object",
  "properties": {
    "presupuesto_referencial": {"type": ["string", "number", "null"]},
    "moneda": {"type": ["string", "null"]},
    "forma_pago": {"type": ["string", "null"]},
    "plazo_pago": {"type": ["string", "number", "null"]},
    "fuente_financiamiento": {"type": ["string", "null"]},
    "otros": {},
    "resumen": {"type": ["string", "null"]}
  }
}`

var compiledSchema = jsonschema.MustCompileString("finanzas_licitacion.json", financeSchema)

// Extractor extracts the tender financial conditions.
type Extractor struct {
	prompts *prompts.Store
	logger  *log.Logger
}

func New(store *prompts.Store, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.New(log.Writer(), "[FINANZAS] ", log.LstdFlags)
	}
	return &Extractor{prompts: store, logger: logger}
}

func (e *Extractor) Concept() string { return extraction.ConceptFinance }

func (e *Extractor) BuildQueries(tenderID string) []string {
	return []string{
		"presupuesto referencial",
		"monto estimado",
		"moneda de la oferta",
		"forma de pago",
		"plazo de pago",
		"fuente de financiamiento",
		"garantías exigidas",
		"boleta de garantía",
		"multas y sanciones",
	}
}

func (e *Extractor) BuildPrompt(in extraction.Input) (string, error) {
	template, err := e.prompts.Load(e.Concept(), PromptVersion)
	if err != nil {
		return "", err
	}
	return prompts.Render(template, in.Context), nil
}

// ParseOutput validates the generated JSON, fills missing expected keys
// with null and tags the payload with the concept.
func (e *Extractor) ParseOutput(raw string) (extraction.Result, error) {
	cleaned := extraction.CleanJSONOutput(raw)
	if cleaned == "" {
		return nil, extraction.NewSchemaError(e.Concept(), "salida del LLM vacía tras limpieza")
	}

	var generic any
	if err := json.Unmarshal([]byte(cleaned), &generic); err != nil {
		return nil, extraction.NewSchemaError(e.Concept(), "JSON inválido: %v", err)
	}
	data, ok := generic.(map[string]any)
	if !ok {
		return nil, extraction.NewSchemaError(e.Concept(), "la raíz debe ser un objeto JSON")
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return nil, extraction.NewSchemaError(e.Concept(), "estructura inválida: %v", err)
	}

	for _, key := range expectedKeys {
		if _, present := data[key]; !present {
			data[key] = nil
		}
	}

	return extraction.Result{
		extraction.ConceptWrapperKey: e.Concept(),
		"finanzas":                   data,
	}, nil
}

// Normalize trims string fields to null so the persistence layer never
// stores whitespace-only values.
func (e *Extractor) Normalize(parsed extraction.Result) extraction.Result {
	data, _ := parsed["finanzas"].(map[string]any)
	for key, value := range data {
		if s, ok := value.(string); ok {
			trimmed := strings.TrimSpace(s)
			if trimmed == "" {
				data[key] = nil
			} else {
				data[key] = trimmed
			}
		}
	}
	return extraction.Result{
		extraction.ConceptWrapperKey: e.Concept(),
		"finanzas":                   data,
	}
}
