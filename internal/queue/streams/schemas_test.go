package streams

import (
	"encoding/json"
	"testing"
	"time"
)

func TestExtractRequestedSchemaValidates(t *testing.T) {
	reg := NewSchemaRegistry()
	if err := RegisterBaseSchemas(reg); err != nil {
		t.Fatalf("register base schemas: %v", err)
	}

	payload := ExtractRequested{
		LicitacionID:     "LIC-2024-001",
		NombreLicitacion: "Compra de notebooks",
		DocumentIDs:      []string{"doc-1", "doc-2"},
		Concepto:         "ITEMS_LICITACION",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := reg.Validate(EventExtractRequested, "v1", data); err != nil {
		t.Fatalf("expected payload to validate: %v", err)
	}
}

func TestExtractRequestedSchemaRejectsMissingDocuments(t *testing.T) {
	reg := NewSchemaRegistry()
	if err := RegisterBaseSchemas(reg); err != nil {
		t.Fatalf("register base schemas: %v", err)
	}

	for name, payload := range map[string]string{
		"no documents":   `{"licitacion_id": "LIC-1"}`,
		"empty list":     `{"licitacion_id": "LIC-1", "document_ids": []}`,
		"no tender":      `{"document_ids": ["doc-1"]}`,
		"blank document": `{"licitacion_id": "LIC-1", "document_ids": [""]}`,
	} {
		if err := reg.Validate(EventExtractRequested, "v1", []byte(payload)); err == nil {
			t.Fatalf("%s: expected validation failure", name)
		}
	}
}

func TestEnvelopeValidateBasic(t *testing.T) {
	env := Envelope{
		EventID:        "evt-1",
		EventType:      EventExtractRequested,
		PayloadVersion: "v1",
		Data:           json.RawMessage(`{"licitacion_id":"LIC-1","document_ids":["d1"]}`),
	}
	if err := env.ValidateBasic(); err != nil {
		t.Fatalf("ValidateBasic: %v", err)
	}
	if env.OccurredAt.IsZero() {
		t.Fatal("OccurredAt should be defaulted")
	}

	missing := Envelope{EventType: EventExtractRequested, PayloadVersion: "v1", OccurredAt: time.Now()}
	if err := missing.ValidateBasic(); err == nil {
		t.Fatal("expected error for missing event_id")
	}
}

func TestUnmarshalEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{
		EventID:        "evt-2",
		EventType:      EventExtractRequested,
		PayloadVersion: "v1",
		Data:           json.RawMessage(`{"licitacion_id":"LIC-1","document_ids":["d1"]}`),
	}
	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalEnvelope(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.EventID != env.EventID || got.EventType != env.EventType {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
