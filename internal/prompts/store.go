// Package prompts loads versioned generation prompt templates addressed by
// concept and version. Templates ship embedded; a directory can override
// them for prompt iteration without a rebuild.
package prompts

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed templates/*.txt
var embedded embed.FS

// ContextPlaceholder is the single substitution point every template carries.
const ContextPlaceholder = "{contexto}"

// DefaultSystemPrompt frames every generation call.
const DefaultSystemPrompt = "Eres un asistente experto en análisis de documentos públicos, " +
	"legales y técnicos. Tu tarea es extraer información estructurada " +
	"de forma precisa, sin inventar datos."

// Store resolves prompt templates by concept and version.
type Store struct {
	dir string
}

// NewStore builds a Store. dir may be empty, in which case only the embedded
// templates are used.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// TemplateName returns the canonical file name for a concept/version pair,
// e.g. prompt_items_licitacion_v3.txt.
func TemplateName(concept, version string) string {
	return fmt.Sprintf("prompt_%s_%s.txt", strings.ToLower(concept), version)
}

// Load returns the template body for a concept/version pair. A directory
// override wins over the embedded copy.
func (s *Store) Load(concept, version string) (string, error) {
	name := TemplateName(concept, version)
	if s.dir != "" {
		if b, err := os.ReadFile(filepath.Join(s.dir, name)); err == nil {
			return string(b), nil
		}
	}
	b, err := embedded.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("prompt template %s: %w", name, err)
	}
	return string(b), nil
}

// Render substitutes the assembled context into the template.
func Render(template, context string) string {
	return strings.ReplaceAll(template, ContextPlaceholder, context)
}
