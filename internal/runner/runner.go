// Package runner orchestrates one extraction call end to end: fragment
// loading, retrieval, generation, validation and persistence.
package runner

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/javierg83/lic-etl-semantic-extractor/config"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/extraction"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/fragcache"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/prompts"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/retrieval"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/store"
	"github.com/javierg83/lic-etl-semantic-extractor/provider"
)

// Report statuses.
const (
	StatusOK        = "OK"
	StatusDebugOnly = "DEBUG_ONLY"
	StatusError     = "ERROR"
)

// Request asks for extraction of one concept, or of every registered
// concept when Concept is empty.
type Request struct {
	TenderID    string
	TenderName  string
	DocumentIDs []string
	Concept     string
	Debug       bool
}

// Report is the outcome of one concept extraction.
type Report struct {
	Concept string
	Status  string
	RunID   int64
	Reason  string
}

// Committer persists a finished run.
type Committer interface {
	CommitRun(ctx context.Context, rec store.RunRecord) (int64, error)
}

type Runner struct {
	cache     *fragcache.Cache
	engine    *retrieval.Engine
	registry  *extraction.Registry
	generator extraction.Generator
	committer Committer
	artifacts *ArtifactWriter
	versions  map[string]string
	cfg       config.ExtractionConfig
	opts      provider.Options
	logger    *log.Logger

	extractions otelmetric.Int64Counter
}

// New wires a runner. versions maps each concept to its prompt version for
// run bookkeeping.
func New(cache *fragcache.Cache, engine *retrieval.Engine, registry *extraction.Registry,
	generator extraction.Generator, committer Committer, versions map[string]string,
	cfg config.ExtractionConfig, opts provider.Options, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(log.Writer(), "[RUNNER] ", log.LstdFlags)
	}
	meter := otel.Meter("licsem/runner")
	extractions, err := meter.Int64Counter("semantic_extractions_total",
		otelmetric.WithDescription("Concept extractions by status"))
	if err != nil {
		logger.Printf("warn: extractions counter unavailable: %v", err)
	}
	return &Runner{
		cache:       cache,
		engine:      engine,
		registry:    registry,
		generator:   generator,
		committer:   committer,
		artifacts:   NewArtifactWriter(cfg.OutputDir, logger),
		versions:    versions,
		cfg:         cfg,
		opts:        opts,
		logger:      logger,
		extractions: extractions,
	}
}

// Run extracts every requested concept over the given document set. A
// concept failure is reported, never fatal to the remaining concepts; the
// returned slice has one report per concept in execution order.
func (r *Runner) Run(ctx context.Context, req Request) ([]Report, error) {
	fragments, err := r.cache.Load(ctx, req.DocumentIDs)
	if err != nil {
		return nil, err
	}
	r.logger.Printf("fragments loaded | tender=%s docs=%d fragments=%d",
		req.TenderID, len(req.DocumentIDs), len(fragments))

	conceptNames := r.registry.Concepts()
	if req.Concept != "" {
		conceptNames = []string{req.Concept}
	}

	reports := make([]Report, 0, len(conceptNames))
	for _, concept := range conceptNames {
		report := r.runConcept(ctx, req, concept, fragments)
		if r.extractions != nil {
			r.extractions.Add(ctx, 1, otelmetric.WithAttributes(
				attribute.String("concepto", report.Concept),
				attribute.String("status", report.Status)))
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (r *Runner) runConcept(ctx context.Context, req Request, concept string, fragments []fragcache.Fragment) Report {
	ext, err := r.registry.Resolve(concept)
	if err != nil {
		return Report{Concept: concept, Status: StatusError, Reason: err.Error()}
	}
	concept = ext.Concept()

	var hits []retrieval.Result
	for _, query := range ext.BuildQueries(req.TenderID) {
		results, err := r.engine.Search(ctx, query, fragments, r.cfg.TopK, r.cfg.MinScore)
		if err != nil {
			r.logger.Printf("[%s] warn: query skipped | query=%q err=%v", concept, query, err)
			continue
		}
		hits = append(hits, results...)
	}

	deduped := extraction.DedupeResults(hits)
	r.logger.Printf("[%s] context assembled | tender=%s fragments=%d", concept, req.TenderID, len(deduped))

	lifecycle := extraction.NewLifecycle(ext, r.generator, prompts.DefaultSystemPrompt, r.opts, r.logger)
	result, err := lifecycle.Run(ctx, extraction.Input{
		Context:  extraction.BuildContext(deduped),
		TenderID: req.TenderID,
	})
	if err != nil {
		r.logger.Printf("[%s] extraction failed | tender=%s err=%v", concept, req.TenderID, err)
		return Report{Concept: concept, Status: StatusError, Reason: err.Error()}
	}

	if path, err := r.artifacts.Write(req.TenderName, concept, result); err != nil {
		r.logger.Printf("[%s] warn: artifact not written: %v", concept, err)
	} else {
		r.logger.Printf("[%s] artifact written | path=%s", concept, path)
	}

	if req.Debug {
		return Report{Concept: concept, Status: StatusDebugOnly}
	}

	evidence := make([]store.Evidence, 0, len(deduped))
	for _, frag := range deduped {
		evidence = append(evidence, store.Evidence{RedisKey: frag.Key, Fragment: frag.Text})
	}

	runID, err := r.committer.CommitRun(ctx, store.RunRecord{
		TenderID:         req.TenderID,
		Concept:          concept,
		PromptVersion:    r.versions[concept],
		ExtractorVersion: r.cfg.ExtractorVersion,
		Result:           result,
		Evidence:         evidence,
	})
	if err != nil {
		return Report{Concept: concept, Status: StatusError, Reason: err.Error()}
	}
	return Report{Concept: concept, Status: StatusOK, RunID: runID}
}
