// Package concepts wires every concept extractor into a registry.
package concepts

import (
	"fmt"
	"log"

	"github.com/javierg83/lic-etl-semantic-extractor/internal/concepts/basicdata"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/concepts/finance"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/concepts/items"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/extraction"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/prompts"
)

// PromptVersions maps each concept to the template version its extractor
// uses, recorded on every persisted run.
var PromptVersions = map[string]string{
	extraction.ConceptItems:     items.PromptVersion,
	extraction.ConceptFinance:   finance.PromptVersion,
	extraction.ConceptBasicData: basicdata.PromptVersion,
}

// RegisterAll registers the built-in extractors on reg.
func RegisterAll(reg *extraction.Registry, store *prompts.Store, logger *log.Logger) error {
	all := []extraction.Extractor{
		items.New(store, logger),
		finance.New(store, logger),
		basicdata.New(store, logger),
	}
	for _, ext := range all {
		if err := reg.Register(ext.Concept(), ext); err != nil {
			return fmt.Errorf("register %s: %w", ext.Concept(), err)
		}
	}
	return nil
}
