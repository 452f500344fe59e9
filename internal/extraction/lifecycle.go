package extraction

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/javierg83/lic-etl-semantic-extractor/provider"
)

// Generator is the text-generation collaborator the lifecycle drives.
type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string, opts provider.Options) (string, provider.TokenUsage, error)
}

type lifecycleState int

const (
	stateCreated lifecycleState = iota
	stateRunning
	stateCompleted
	stateFailed
)

// Lifecycle drives a single extractor instance through build-prompt,
// generate, parse and normalize. An instance runs at most once; a second
// invocation is a logged no-op that never reaches the generation provider,
// guarding against accidental double billing.
type Lifecycle struct {
	extractor    Extractor
	generator    Generator
	systemPrompt string
	opts         provider.Options
	logger       *log.Logger
	state        lifecycleState
}

// NewLifecycle builds a one-shot lifecycle for the given extractor.
func NewLifecycle(extractor Extractor, generator Generator, systemPrompt string, opts provider.Options, logger *log.Logger) *Lifecycle {
	if logger == nil {
		logger = log.New(log.Writer(), "[SEMANTIC] ", log.LstdFlags)
	}
	return &Lifecycle{
		extractor:    extractor,
		generator:    generator,
		systemPrompt: systemPrompt,
		opts:         opts,
		logger:       logger,
	}
}

// Run executes the extraction steps in order. A nil, nil return means the
// instance had already run. Duration covers build-prompt through normalize
// and is diagnostic only; timeouts belong to the generation collaborator.
func (l *Lifecycle) Run(ctx context.Context, in Input) (Result, error) {
	if l.state != stateCreated {
		l.logger.Printf("[%s] duplicate run blocked | tender=%s", l.extractor.Concept(), in.TenderID)
		return nil, nil
	}
	l.state = stateRunning
	started := time.Now()

	concept := l.extractor.Concept()
	l.logger.Printf("[%s] extraction started | tender=%s context_len=%d", concept, in.TenderID, len(in.Context))

	prompt, err := l.extractor.BuildPrompt(in)
	if err != nil {
		l.state = stateFailed
		return nil, fmt.Errorf("%s: build prompt: %w", concept, err)
	}

	raw, usage, err := l.generator.Generate(ctx, prompt, l.systemPrompt, l.opts)
	if err != nil {
		l.state = stateFailed
		return nil, fmt.Errorf("%s: generation: %w", concept, err)
	}
	if strings.TrimSpace(raw) == "" {
		l.state = stateFailed
		return nil, fmt.Errorf("%s: %w", concept, ErrEmptyGeneration)
	}
	l.logger.Printf("[%s] generation done | tokens=%d", concept, usage.TotalTokens)

	parsed, err := l.extractor.ParseOutput(raw)
	if err != nil {
		l.state = stateFailed
		return nil, err
	}

	result := l.extractor.Normalize(parsed)

	l.state = stateCompleted
	l.logger.Printf("[%s] extraction finished | tender=%s duration_ms=%d", concept, in.TenderID, time.Since(started).Milliseconds())
	return result, nil
}
