package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEmbeddedTemplates(t *testing.T) {
	store := NewStore("")
	for concept, version := range map[string]string{
		"ITEMS_LICITACION":         "v3",
		"FINANZAS_LICITACION":      "v1",
		"DATOS_BASICOS_LICITACION": "v1",
	} {
		body, err := store.Load(concept, version)
		if err != nil {
			t.Fatalf("Load(%s, %s): %v", concept, version, err)
		}
		if !strings.Contains(body, ContextPlaceholder) {
			t.Errorf("template %s/%s missing context placeholder", concept, version)
		}
	}
}

func TestLoadDirectoryOverrideWins(t *testing.T) {
	dir := t.TempDir()
	name := TemplateName("ITEMS_LICITACION", "v3")
	if err := os.WriteFile(filepath.Join(dir, name), []byte("override {contexto}"), 0o644); err != nil {
		t.Fatal(err)
	}

	body, err := NewStore(dir).Load("ITEMS_LICITACION", "v3")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if body != "override {contexto}" {
		t.Errorf("directory override not applied, got %q", body)
	}
}

func TestLoadUnknownTemplate(t *testing.T) {
	if _, err := NewStore("").Load("NO_SUCH_CONCEPT", "v9"); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestRender(t *testing.T) {
	got := Render("antes {contexto} despues", "CUERPO")
	if got != "antes CUERPO despues" {
		t.Errorf("Render = %q", got)
	}
}
