package extraction

import (
	"fmt"
	"strings"
	"sync"
)

// Registry maps concept names to extractor implementations. New concepts are
// added by registering an implementation, never by editing the orchestrator.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]Extractor)}
}

// Register adds an extractor for a concept. Registering the same
// implementation twice is a no-op; registering a different implementation
// for an existing concept is an error.
func (r *Registry) Register(concept string, impl Extractor) error {
	concept = strings.ToUpper(strings.TrimSpace(concept))
	if concept == "" {
		return fmt.Errorf("concept name required")
	}
	if impl == nil {
		return fmt.Errorf("extractor implementation required for %s", concept)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.extractors[concept]; ok {
		if existing == impl {
			return nil
		}
		return fmt.Errorf("conflicting extractor already registered for concept %s", concept)
	}
	r.extractors[concept] = impl
	return nil
}

// Resolve returns the extractor for a concept.
func (r *Registry) Resolve(concept string) (Extractor, error) {
	concept = strings.ToUpper(strings.TrimSpace(concept))
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.extractors[concept]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConcept, concept)
	}
	return impl, nil
}

// Concepts lists registered concept names in registration-independent order.
func (r *Registry) Concepts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.extractors))
	for concept := range r.extractors {
		out = append(out, concept)
	}
	return out
}
