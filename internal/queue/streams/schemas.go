package streams

import "fmt"

// EventExtractRequested asks the worker to run semantic extraction over a
// tender's cached documents.
const EventExtractRequested = "extract.requested"

// Definition is one schema entry managed by the registry.
type Definition struct {
	EventType string
	Version   string
	Schema    []byte
}

var baseDefinitions = []Definition{
	{
		EventType: EventExtractRequested,
		Version:   "v1",
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["licitacion_id", "document_ids"],
  "properties": {
    "licitacion_id": {"type": "string", "minLength": 1},
    "nombre_licitacion": {"type": "string"},
    "document_ids": {
      "type": "array",
      "items": {"type": "string", "minLength": 1},
      "minItems": 1
    },
    "concepto": {"type": "string"},
    "debug": {"type": "boolean"}
  },
  "additionalProperties": true
}`),
	},
}

// BaseDefinitions returns copies of the built-in schema definitions.
func BaseDefinitions() []Definition {
	defs := make([]Definition, len(baseDefinitions))
	copy(defs, baseDefinitions)
	return defs
}

// RegisterBaseSchemas loads the built-in event schemas into reg.
func RegisterBaseSchemas(reg *SchemaRegistry) error {
	if reg == nil {
		return fmt.Errorf("registry is nil")
	}
	for _, def := range baseDefinitions {
		if err := reg.Register(def.EventType, def.Version, def.Schema); err != nil {
			return fmt.Errorf("register %s %s: %w", def.EventType, def.Version, err)
		}
	}
	return nil
}

// ExtractRequested is the payload of an extract.requested event.
type ExtractRequested struct {
	LicitacionID     string   `json:"licitacion_id"`
	NombreLicitacion string   `json:"nombre_licitacion,omitempty"`
	DocumentIDs      []string `json:"document_ids"`
	Concepto         string   `json:"concepto,omitempty"`
	Debug            bool     `json:"debug,omitempty"`
}
