package items

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/javierg83/lic-etl-semantic-extractor/internal/extraction"
)

// itemsSchema types the generated JSON structurally. Semantic checks that
// need readable per-item messages stay in Go below.
const itemsSchema = `{
  "type": "object",
  "required": ["concepto", "licitacion_id", "items"],
  "properties": {
    "concepto": {"const": "ITEMS_LICITACION"},
    "licitacion_id": {"type": ["string", "null"]},
    "codigo_licitacion": {"type": ["string", "null"]},
    "resumen": {"type": ["object", "null"]},
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "cantidad": {"type": ["number", "null"]},
          "unidad": {"type": ["string", "null"]},
          "descripcion": {"type": ["string", "null"]},
          "notas": {"type": ["string", "null"]},
          "especificaciones": {"type": "array", "items": {"type": "string"}},
          "criterios_cumplimiento": {"type": "array", "items": {"type": "string"}},
          "exclusiones_o_prohibiciones": {"type": "array", "items": {"type": "string"}},
          "confianza_item": {"type": ["number", "null"]},
          "fuentes": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["documento", "documento_id", "pagina", "redis_key"]
            }
          }
        }
      }
    },
    "especificaciones": {"type": "array"},
    "warnings": {"type": "array", "items": {"type": "string"}}
  }
}`

var compiledSchema = jsonschema.MustCompileString("items_licitacion.json", itemsSchema)

// embeddedItemRe detects numbered markers ("1.", "2.-") inside a single
// item, which signals the model collapsed several items into one.
var embeddedItemRe = regexp.MustCompile(`\b\d{1,2}\.-?`)

// Fuente locates a fragment an item was extracted from.
type Fuente struct {
	Documento   string     `json:"documento"`
	DocumentoID string     `json:"documento_id"`
	Pagina      PageNumber `json:"pagina"`
	RedisKey    string     `json:"redis_key"`
}

// PageNumber tolerates page values arriving as numbers, numeric strings or
// null and keeps only usable integers.
type PageNumber struct {
	Valid bool
	Value int
}

func (p *PageNumber) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		p.Valid, p.Value = true, int(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if n, convErr := strconv.Atoi(strings.TrimSpace(s)); convErr == nil {
			p.Valid, p.Value = true, n
		}
		return nil
	}
	return nil
}

func (p PageNumber) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(p.Value)), nil
}

// Item is one requested product or service as the model reported it.
type Item struct {
	ItemKey                   string   `json:"item_key"`
	NombreItem                string   `json:"nombre_item"`
	Cantidad                  *float64 `json:"cantidad"`
	Unidad                    *string  `json:"unidad"`
	Descripcion               *string  `json:"descripcion"`
	Notas                     *string  `json:"notas"`
	Especificaciones          []string `json:"especificaciones"`
	CriteriosCumplimiento     []string `json:"criterios_cumplimiento"`
	ExclusionesOProhibiciones []string `json:"exclusiones_o_prohibiciones"`
	ConfianzaItem             *float64 `json:"confianza_item"`
	Fuentes                   []Fuente `json:"fuentes"`
}

// SpecRef links a standalone specification back to its item.
type SpecRef struct {
	ItemKey        string `json:"item_key"`
	Especificacion string `json:"especificacion"`
}

type payload struct {
	Concepto         string         `json:"concepto"`
	LicitacionID     *string        `json:"licitacion_id"`
	Resumen          map[string]any `json:"resumen"`
	Items            []Item         `json:"items"`
	Especificaciones []SpecRef      `json:"especificaciones"`
	Warnings         []string       `json:"warnings"`
}

func validate(cleaned string) (*payload, error) {
	var generic any
	if err := json.Unmarshal([]byte(cleaned), &generic); err != nil {
		return nil, extraction.NewSchemaError(extraction.ConceptItems, "JSON inválido: %v", err)
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return nil, extraction.NewSchemaError(extraction.ConceptItems, "estructura inválida: %v", err)
	}

	var p payload
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
		return nil, extraction.NewSchemaError(extraction.ConceptItems, "JSON inválido: %v", err)
	}

	for i, item := range p.Items {
		if err := validateItem(i, item); err != nil {
			return nil, err
		}
	}

	if len(p.Items) == 1 && countEmbeddedMarkers(p.Items[0]) >= 2 {
		return nil, extraction.NewSchemaError(extraction.ConceptItems,
			"un único ítem contiene numeración interna de varios ítems (%q)", p.Items[0].NombreItem)
	}

	return &p, nil
}

func validateItem(idx int, item Item) error {
	pos := idx + 1
	if strings.TrimSpace(item.ItemKey) == "" {
		return itemError(pos, "campo 'item_key' ausente o vacío")
	}
	if strings.TrimSpace(item.NombreItem) == "" {
		return itemError(pos, "campo 'nombre_item' ausente o vacío")
	}
	if len(item.Fuentes) == 0 {
		return itemError(pos, "campo 'fuentes' debe contener al menos una fuente")
	}
	for j, f := range item.Fuentes {
		if strings.TrimSpace(f.RedisKey) == "" {
			return itemError(pos, fmt.Sprintf("fuente #%d sin 'redis_key'", j+1))
		}
	}
	if item.ConfianzaItem != nil && (*item.ConfianzaItem < 0 || *item.ConfianzaItem > 1) {
		return itemError(pos, fmt.Sprintf("'confianza_item' fuera de rango [0,1]: %v", *item.ConfianzaItem))
	}
	return nil
}

func itemError(pos int, reason string) error {
	return extraction.NewSchemaError(extraction.ConceptItems, "ítem #%d: %s", pos, reason)
}

// countEmbeddedMarkers scans only the description: item names legitimately
// carry numbering ("Lote 1. Mobiliario") and must not trip the heuristic.
func countEmbeddedMarkers(item Item) int {
	if item.Descripcion == nil {
		return 0
	}
	return len(embeddedItemRe.FindAllString(*item.Descripcion, -1))
}
