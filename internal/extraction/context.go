package extraction

import (
	"fmt"
	"strings"

	"github.com/javierg83/lic-etl-semantic-extractor/internal/retrieval"
)

// fragmentDelimiter separates fragments inside the generation context.
const fragmentDelimiter = "\n\n---\n\n"

// ContextFragment is one deduplicated fragment destined for the prompt and
// the evidence trail.
type ContextFragment struct {
	Key  string
	Text string
}

// DedupeResults collapses retrieval results from all queries into an ordered
// list with each fragment key appearing once; the first occurrence wins so a
// fragment pulled by multiple queries is not repeated in the context.
func DedupeResults(results []retrieval.Result) []ContextFragment {
	seen := make(map[string]struct{}, len(results))
	out := make([]ContextFragment, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.Key]; ok {
			continue
		}
		seen[r.Key] = struct{}{}
		out = append(out, ContextFragment{Key: r.Key, Text: r.Text})
	}
	return out
}

// BuildContext concatenates fragments into the generation context, each one
// tagged with its store key so the model can cite sources.
func BuildContext(fragments []ContextFragment) string {
	blocks := make([]string, 0, len(fragments))
	for _, f := range fragments {
		blocks = append(blocks, fmt.Sprintf("[REDIS_KEY=%s]\n%s", f.Key, f.Text))
	}
	return strings.Join(blocks, fragmentDelimiter)
}
