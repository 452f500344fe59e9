package retrieval

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/javierg83/lic-etl-semantic-extractor/internal/fragcache"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

func newTestEngine(e Embedder) *Engine {
	return NewEngine(e, log.New(io.Discard, "", 0))
}

func frags(embeddings ...[]float32) []fragcache.Fragment {
	out := make([]fragcache.Fragment, len(embeddings))
	for i, emb := range embeddings {
		out[i] = fragcache.Fragment{
			Key:       string(rune('a' + i)),
			Text:      "fragment " + string(rune('a'+i)),
			Embedding: emb,
		}
	}
	return out
}

func TestSearchReturnsTopKSortedByDistance(t *testing.T) {
	engine := newTestEngine(&fakeEmbedder{vector: []float32{0, 0}})
	cache := frags([]float32{3, 4}, []float32{1, 0}, []float32{0, 2})

	results, err := engine.Search(context.Background(), "q", cache, 2, 0.25)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Key != "b" || results[1].Key != "c" {
		t.Errorf("unexpected order: %q, %q", results[0].Key, results[1].Key)
	}
	if results[0].Distance > results[1].Distance {
		t.Errorf("distances not non-decreasing: %v", results)
	}
}

func TestSearchSmallCacheReturnsAll(t *testing.T) {
	engine := newTestEngine(&fakeEmbedder{vector: []float32{0, 0}})
	cache := frags([]float32{1, 1}, []float32{2, 2})

	results, err := engine.Search(context.Background(), "q", cache, 10, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != len(cache) {
		t.Fatalf("expected %d results, got %d", len(cache), len(results))
	}
}

func TestSearchStableTieBreakKeepsInputOrder(t *testing.T) {
	engine := newTestEngine(&fakeEmbedder{vector: []float32{0, 0}})
	cache := frags([]float32{1, 0}, []float32{0, 1}, []float32{1, 0})

	results, err := engine.Search(context.Background(), "q", cache, 3, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results[0].Key != "a" || results[1].Key != "b" || results[2].Key != "c" {
		t.Errorf("tie-break should keep input order, got %q %q %q", results[0].Key, results[1].Key, results[2].Key)
	}
}

func TestSearchEmptyCache(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1}}
	engine := newTestEngine(embedder)

	results, err := engine.Search(context.Background(), "q", nil, 5, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
	if embedder.calls != 0 {
		t.Errorf("embedder should not be called for an empty cache")
	}
}

func TestSearchFailedEmbeddingDegrades(t *testing.T) {
	cache := frags([]float32{1, 1})

	for name, embedder := range map[string]*fakeEmbedder{
		"error": {err: errors.New("rate limited")},
		"empty": {vector: nil},
	} {
		results, err := newTestEngine(embedder).Search(context.Background(), "q", cache, 5, 0)
		if err != nil {
			t.Fatalf("%s: Search returned error: %v", name, err)
		}
		if len(results) != 0 {
			t.Errorf("%s: expected no results, got %v", name, results)
		}
	}
}

func TestSearchIgnoresMinScore(t *testing.T) {
	// The cutoff parameter stays in the contract but ranking returns the K
	// nearest regardless of absolute distance.
	engine := newTestEngine(&fakeEmbedder{vector: []float32{0, 0}})
	cache := frags([]float32{100, 100}, []float32{200, 200})

	results, err := engine.Search(context.Background(), "q", cache, 2, 0.01)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("min_score must not filter results: got %d of 2", len(results))
	}
}
