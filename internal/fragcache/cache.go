package fragcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// Fragment is a unit of source text with its precomputed embedding vector.
// Identity is the store key; fragments are never mutated after loading.
type Fragment struct {
	Key       string
	Text      string
	Embedding []float32
}

// KV is the read-only view of the vector key-value store the cache needs.
type KV interface {
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// RedisKV adapts a go-redis client to the KV interface.
type RedisKV struct {
	Client *redis.Client
}

func (r RedisKV) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.Client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %q: %w", pattern, err)
	}
	return keys, nil
}

func (r RedisKV) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.Client.HGetAll(ctx, key).Result()
}

// Cache bulk-loads fragment embeddings for a set of documents into memory.
// A loaded cache belongs to a single extraction call and is not shared.
type Cache struct {
	kv     KV
	logger *log.Logger
}

// New builds a Cache over the given key-value store.
func New(kv KV, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.New(log.Writer(), "[CACHE] ", log.LstdFlags)
	}
	return &Cache{kv: kv, logger: logger}
}

// keyPatterns returns the key-naming conventions used by the ingestion
// pipelines that have written fragments over time. Both are scanned and
// whatever yields data is merged.
func keyPatterns(docID string) []string {
	return []string{
		fmt.Sprintf("doc_raw_page:%s:*_full", docID),
		fmt.Sprintf("pdf:%s:chunk:*", docID),
	}
}

// Load returns all fragments for the given documents. A document without
// fragments contributes nothing and is not an error; malformed hash entries
// are skipped individually. The underlying store is never written to.
func (c *Cache) Load(ctx context.Context, docIDs []string) ([]Fragment, error) {
	var fragments []Fragment
	for _, docID := range docIDs {
		loaded := 0
		for _, pattern := range keyPatterns(docID) {
			keys, err := c.kv.ScanKeys(ctx, pattern)
			if err != nil {
				return nil, err
			}
			for _, key := range keys {
				data, err := c.kv.HGetAll(ctx, key)
				if err != nil {
					c.logger.Printf("warn: reading key %s: %v", key, err)
					continue
				}
				frag, ok := parseFragment(key, data)
				if !ok {
					c.logger.Printf("warn: skipping malformed entry %s", key)
					continue
				}
				fragments = append(fragments, frag)
				loaded++
			}
		}
		if loaded == 0 {
			c.logger.Printf("no fragments found for document %s", docID)
		}
	}
	c.logger.Printf("loaded %d fragments for %d documents", len(fragments), len(docIDs))
	return fragments, nil
}

func parseFragment(key string, data map[string]string) (Fragment, bool) {
	if len(data) == 0 {
		return Fragment{}, false
	}
	raw := data["vector"]
	if raw == "" {
		raw = data["embedding"]
	}
	text := data["text"]
	if text == "" {
		text = data["texto"]
	}
	if raw == "" || text == "" {
		return Fragment{}, false
	}
	var embedding []float32
	if err := json.Unmarshal([]byte(raw), &embedding); err != nil || len(embedding) == 0 {
		return Fragment{}, false
	}
	return Fragment{Key: key, Text: text, Embedding: embedding}, true
}
