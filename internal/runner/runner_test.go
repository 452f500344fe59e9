package runner

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/javierg83/lic-etl-semantic-extractor/config"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/extraction"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/fragcache"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/retrieval"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/store"
	"github.com/javierg83/lic-etl-semantic-extractor/provider"
)

type fakeKV struct {
	keys   map[string][]string
	hashes map[string]map[string]string
}

func (f fakeKV) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	return f.keys[pattern], nil
}

func (f fakeKV) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return f.hashes[key], nil
}

type fakeEmbedder struct{ vec []float32 }

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, nil
}

type stubExtractor struct {
	concept  string
	queries  []string
	parseErr error
}

func (s *stubExtractor) Concept() string                    { return s.concept }
func (s *stubExtractor) BuildQueries(tenderID string) []string { return s.queries }
func (s *stubExtractor) BuildPrompt(in extraction.Input) (string, error) {
	return in.Context, nil
}
func (s *stubExtractor) ParseOutput(raw string) (extraction.Result, error) {
	if s.parseErr != nil {
		return nil, s.parseErr
	}
	return extraction.Result{"concepto": s.concept}, nil
}
func (s *stubExtractor) Normalize(parsed extraction.Result) extraction.Result { return parsed }

type fakeGenerator struct {
	prompts []string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt, systemPrompt string, opts provider.Options) (string, provider.TokenUsage, error) {
	g.prompts = append(g.prompts, prompt)
	return `{"ok": true}`, provider.TokenUsage{}, nil
}

type fakeCommitter struct {
	records []store.RunRecord
	err     error
}

func (c *fakeCommitter) CommitRun(ctx context.Context, rec store.RunRecord) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.records = append(c.records, rec)
	return 42, nil
}

func testCache(t *testing.T) *fragcache.Cache {
	t.Helper()
	kv := fakeKV{
		keys: map[string][]string{
			"pdf:d1:chunk:*": {"pdf:d1:chunk:1", "pdf:d1:chunk:2", "pdf:d1:chunk:3"},
		},
		hashes: map[string]map[string]string{
			"pdf:d1:chunk:1": {"texto": "cerca uno", "embedding": "[0.1, 0]"},
			"pdf:d1:chunk:2": {"texto": "cerca dos", "embedding": "[0.2, 0]"},
			"pdf:d1:chunk:3": {"texto": "lejos", "embedding": "[5, 0]"},
		},
	}
	return fragcache.New(kv, log.New(io.Discard, "", 0))
}

func testRunner(t *testing.T, reg *extraction.Registry, gen extraction.Generator, committer Committer, outputDir string) *Runner {
	t.Helper()
	engine := retrieval.NewEngine(fakeEmbedder{vec: []float32{0, 0}}, log.New(io.Discard, "", 0))
	cfg := config.ExtractionConfig{
		TopK:             2,
		MinScore:         0.25,
		OutputDir:        outputDir,
		ExtractorVersion: "semantic_extractor_v1",
	}
	versions := map[string]string{"STUB": "v9"}
	return New(testCache(t), engine, reg, gen, committer, versions, cfg, provider.Options{}, log.New(io.Discard, "", 0))
}

func TestRunBuildsContextFromClosestFragments(t *testing.T) {
	reg := extraction.NewRegistry()
	ext := &stubExtractor{concept: "STUB", queries: []string{"consulta"}}
	if err := reg.Register(ext.Concept(), ext); err != nil {
		t.Fatalf("register: %v", err)
	}
	gen := &fakeGenerator{}
	committer := &fakeCommitter{}
	r := testRunner(t, reg, gen, committer, t.TempDir())

	reports, err := r.Run(context.Background(), Request{
		TenderID:    "LIC-1",
		TenderName:  "Compra Notebooks",
		DocumentIDs: []string{"d1"},
		Concept:     "STUB",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(reports) != 1 || reports[0].Status != StatusOK || reports[0].RunID != 42 {
		t.Fatalf("unexpected reports: %+v", reports)
	}

	if len(gen.prompts) != 1 {
		t.Fatalf("expected one generation, got %d", len(gen.prompts))
	}
	prompt := gen.prompts[0]
	if !strings.Contains(prompt, "[REDIS_KEY=pdf:d1:chunk:1]") ||
		!strings.Contains(prompt, "[REDIS_KEY=pdf:d1:chunk:2]") {
		t.Fatalf("context should carry the two closest fragments:\n%s", prompt)
	}
	if strings.Contains(prompt, "lejos") {
		t.Fatalf("distant fragment must be cut by top-k:\n%s", prompt)
	}
	if !strings.Contains(prompt, "\n\n---\n\n") {
		t.Fatal("fragments should be delimiter-separated")
	}

	if len(committer.records) != 1 {
		t.Fatalf("expected one commit, got %d", len(committer.records))
	}
	rec := committer.records[0]
	if rec.PromptVersion != "v9" || rec.ExtractorVersion != "semantic_extractor_v1" {
		t.Fatalf("version bookkeeping wrong: %+v", rec)
	}
	if len(rec.Evidence) != 2 || rec.Evidence[0].RedisKey != "pdf:d1:chunk:1" {
		t.Fatalf("evidence should mirror the deduped context: %+v", rec.Evidence)
	}
}

func TestRunDebugSkipsPersistence(t *testing.T) {
	reg := extraction.NewRegistry()
	ext := &stubExtractor{concept: "STUB", queries: []string{"consulta"}}
	if err := reg.Register(ext.Concept(), ext); err != nil {
		t.Fatalf("register: %v", err)
	}
	committer := &fakeCommitter{}
	dir := t.TempDir()
	r := testRunner(t, reg, &fakeGenerator{}, committer, dir)

	reports, err := r.Run(context.Background(), Request{
		TenderID:    "LIC-1",
		TenderName:  "Compra Notebooks 2024!",
		DocumentIDs: []string{"d1"},
		Concept:     "STUB",
		Debug:       true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reports[0].Status != StatusDebugOnly {
		t.Fatalf("expected DEBUG_ONLY, got %+v", reports[0])
	}
	if len(committer.records) != 0 {
		t.Fatal("debug mode must not persist")
	}

	matches, err := filepath.Glob(filepath.Join(dir, "compra_notebooks_2024", "stub_*.json"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one artifact, got %v (err %v)", matches, err)
	}
	payload, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !strings.Contains(string(payload), `"concepto"`) {
		t.Fatalf("artifact should hold the result JSON, got %s", payload)
	}
}

func TestRunContinuesPastConceptFailures(t *testing.T) {
	reg := extraction.NewRegistry()
	bad := &stubExtractor{concept: "MALO", queries: []string{"q"}, parseErr: fmt.Errorf("esquema roto")}
	good := &stubExtractor{concept: "STUB", queries: []string{"q"}}
	for _, ext := range []extraction.Extractor{bad, good} {
		if err := reg.Register(ext.Concept(), ext); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	committer := &fakeCommitter{}
	r := testRunner(t, reg, &fakeGenerator{}, committer, t.TempDir())

	reports, err := r.Run(context.Background(), Request{
		TenderID:    "LIC-1",
		DocumentIDs: []string{"d1"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected one report per concept, got %d", len(reports))
	}
	byConcept := map[string]Report{}
	for _, rep := range reports {
		byConcept[rep.Concept] = rep
	}
	if byConcept["MALO"].Status != StatusError || byConcept["MALO"].Reason == "" {
		t.Fatalf("failing concept should report ERROR with reason: %+v", byConcept["MALO"])
	}
	if byConcept["STUB"].Status != StatusOK {
		t.Fatalf("healthy concept should still succeed: %+v", byConcept["STUB"])
	}
}

func TestRunReportsUnknownConcept(t *testing.T) {
	reg := extraction.NewRegistry()
	r := testRunner(t, reg, &fakeGenerator{}, &fakeCommitter{}, t.TempDir())

	reports, err := r.Run(context.Background(), Request{
		TenderID:    "LIC-1",
		DocumentIDs: []string{"d1"},
		Concept:     "INEXISTENTE",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reports[0].Status != StatusError {
		t.Fatalf("expected ERROR report: %+v", reports[0])
	}
	if !strings.Contains(reports[0].Reason, "INEXISTENTE") {
		t.Fatalf("reason should name the concept: %q", reports[0].Reason)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Compra Notebooks 2024!": "compra_notebooks_2024",
		"   ":                    "sin_nombre",
		"":                       "sin_nombre",
		"ya-limpio_ok":           "ya-limpio_ok",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Fatalf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
