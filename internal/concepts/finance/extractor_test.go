package finance

import (
	"io"
	"log"
	"testing"

	"github.com/javierg83/lic-etl-semantic-extractor/internal/extraction"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/prompts"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	return New(prompts.NewStore(""), log.New(io.Discard, "", 0))
}

func TestParseOutputFillsMissingKeys(t *testing.T) {
	e := newTestExtractor(t)
	res, err := e.ParseOutput(`{"presupuesto_referencial": "5000 UTM", "moneda": "CLP"}`)
	if err != nil {
		t.Fatalf("ParseOutput: %v", err)
	}
	data := res["finanzas"].(map[string]any)
	for _, key := range expectedKeys {
		if _, present := data[key]; !present {
			t.Fatalf("expected key %q to be present", key)
		}
	}
	if data["forma_pago"] != nil {
		t.Fatalf("missing key should default to nil, got %v", data["forma_pago"])
	}
	if res[extraction.ConceptWrapperKey] != extraction.ConceptFinance {
		t.Fatalf("wrong concept tag: %v", res[extraction.ConceptWrapperKey])
	}
}

func TestParseOutputRejectsNonObject(t *testing.T) {
	e := newTestExtractor(t)
	if _, err := e.ParseOutput(`["not", "an", "object"]`); !extraction.IsSchemaError(err) {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestParseOutputStripsCodeFences(t *testing.T) {
	e := newTestExtractor(t)
	res, err := e.ParseOutput("```json\n{\"moneda\": \"CLP\"}\n```")
	if err != nil {
		t.Fatalf("ParseOutput: %v", err)
	}
	if res["finanzas"].(map[string]any)["moneda"] != "CLP" {
		t.Fatal("fenced JSON should parse")
	}
}

func TestNormalizeTrimsStringsToNull(t *testing.T) {
	e := newTestExtractor(t)
	parsed := extraction.Result{
		"finanzas": map[string]any{
			"moneda":     "  CLP  ",
			"forma_pago": "   ",
			"garantias":  []any{"seriedad de la oferta"},
		},
	}
	res := e.Normalize(parsed)
	data := res["finanzas"].(map[string]any)
	if data["moneda"] != "CLP" {
		t.Fatalf("moneda = %v", data["moneda"])
	}
	if data["forma_pago"] != nil {
		t.Fatalf("blank string should normalize to nil, got %v", data["forma_pago"])
	}
	if _, ok := data["garantias"].([]any); !ok {
		t.Fatal("non-string values must pass through untouched")
	}
}
