package retrieval

import (
	"context"
	"log"
	"math"
	"sort"

	"github.com/javierg83/lic-etl-semantic-extractor/internal/fragcache"
)

// Result is one ranked fragment for a query. Lower distance is better.
type Result struct {
	Key      string
	Text     string
	Distance float64
}

// Embedder turns a query string into a vector. An empty vector (with or
// without an error) means embedding failed and retrieval degrades to an
// empty result list.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine ranks cached fragments against query embeddings with a linear
// Euclidean scan. The cache is loaded once per extraction call and reused
// across every query, so O(queries*fragments) in memory beats per-query
// round-trips to the store.
type Engine struct {
	embedder Embedder
	logger   *log.Logger
}

// NewEngine builds a retrieval engine over the given embedder.
func NewEngine(embedder Embedder, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[RETRIEVAL] ", log.LstdFlags)
	}
	return &Engine{embedder: embedder, logger: logger}
}

// Search returns up to topK fragments closest to the query, ordered by
// non-decreasing distance with input order as tie-break.
//
// minScore is part of the contract for future cutoff enforcement but is not
// applied: ranking returns the K nearest regardless of absolute distance,
// matching the behaviour downstream consumers were calibrated against.
func (e *Engine) Search(ctx context.Context, query string, fragments []fragcache.Fragment, topK int, minScore float64) ([]Result, error) {
	_ = minScore

	if len(fragments) == 0 {
		return nil, nil
	}
	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Printf("warn: embedding query %q failed, continuing without results: %v", query, err)
		return nil, nil
	}
	if len(vector) == 0 {
		e.logger.Printf("warn: empty embedding for query %q, continuing without results", query)
		return nil, nil
	}

	results := make([]Result, 0, len(fragments))
	for _, frag := range fragments {
		results = append(results, Result{
			Key:      frag.Key,
			Text:     frag.Text,
			Distance: euclidean(vector, frag.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	if len(results) > 0 {
		e.logger.Printf("query %q: %d results, best distance %.4f", query, len(results), results[0].Distance)
	}
	return results, nil
}

// euclidean computes the L2 distance over raw, non-normalized vectors.
// Dimension mismatches treat missing components as zero.
func euclidean(a, b []float32) float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		var ai, bi float64
		if i < len(a) {
			ai = float64(a[i])
		}
		if i < len(b) {
			bi = float64(b[i])
		}
		d := ai - bi
		sum += d * d
	}
	return math.Sqrt(sum)
}
