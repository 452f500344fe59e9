// Package basicdata implements the DATOS_BASICOS_LICITACION concept: the
// tender's identifying fields such as code, description and requesting
// body.
package basicdata

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

// expectedKeys are forced to null when missing and type-checked as
// string-or-null when present.
var expectedKeys = []string{
	"codigo_licitacion",
	"nombre",
	"descripcion",
	"estado",
	"organismo_solicitante",
}

const basicSchema = `{
  "type": "object",
  "properties": {
    "codigo_licitacion": {"type": ["string", "null"]},
    "nombre": {"type": ["string", "null"]},
    "descripcion": {"type": ["string", "null"]},
    "estado": {"type": ["string", "null"]},
    "organismo_solicitante": {"type": ["string", "null"]}
  }
}`

var compiledSchema = jsonschema.MustCompileString("datos_basicos_licitacion.json", basicSchema)

// Extractor extracts the tender's basic identifying data.
type Extractor struct {
	prompts *prompts.Store
	logger  *log.Logger
}

func New(store *prompts.Store, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.New(log.Writer(), "[DATOS_BASICOS] ", log.LstdFlags)
	}
	return &Extractor{prompts: store, logger: logger}
}

func (e *Extractor) Concept() string { return extraction.ConceptBasicData }

func (e *Extractor) BuildQueries(tenderID string) []string {
	return []string{
		"código de licitación",
		"número de licitación",
		"nombre de la licitación",
		"objeto de la licitación",
		"descripción de la licitación",
		"entidad licitante",
		"organismo solicitante",
		"unidad de compra",
		"estado de la licitación",
		"fecha de publicación",
		"fecha de cierre",
		"convocatoria",
	}
}

func (e *Extractor) BuildPrompt(in extraction.Input) (string, error) {
	template, err := e.prompts.Load(e.Concept(), PromptVersion)
	if err != nil {
		return "", err
	}
	return prompts.Render(template, in.Context), nil
}

// ParseOutput validates the generated JSON, defaults missing expected keys
// to null and tags the payload with the concept.
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
		"datos_basicos":              data,
	}, nil
}

// Normalize trims each field to null when blank.
func (e *Extractor) Normalize(parsed extraction.Result) extraction.Result {
	data, _ := parsed["datos_basicos"].(map[string]any)
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
		"datos_basicos":              data,
	}
}
