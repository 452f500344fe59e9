package runner

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/javierg83/lic-etl-semantic-extractor/internal/extraction"
)

var nonSlugRe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// ArtifactWriter mirrors every extraction result to disk for manual
// inspection, grouped by tender name.
type ArtifactWriter struct {
	dir    string
	logger *log.Logger
	now    func() time.Time
}

func NewArtifactWriter(dir string, logger *log.Logger) *ArtifactWriter {
	if logger == nil {
		logger = log.New(log.Writer(), "[ARTIFACT] ", log.LstdFlags)
	}
	return &ArtifactWriter{dir: dir, logger: logger, now: time.Now}
}

// Write stores the result as pretty-printed JSON and returns the path.
func (w *ArtifactWriter) Write(tenderName, concept string, result extraction.Result) (string, error) {
	folder := filepath.Join(w.dir, sanitizeName(tenderName))
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact: %w", err)
	}

	name := fmt.Sprintf("%s_%s.json", strings.ToLower(concept), w.now().Format("20060102_150405"))
	path := filepath.Join(folder, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

// sanitizeName turns a free-form tender name into a filesystem-safe folder
// name.
func sanitizeName(name string) string {
	slug := nonSlugRe.ReplaceAllString(strings.TrimSpace(name), "_")
	slug = strings.Trim(strings.ToLower(slug), "_")
	if slug == "" {
		return "sin_nombre"
	}
	return slug
}
