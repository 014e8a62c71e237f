// Package artifacts writes compile and run outputs under the target dir:
// compiled SQL per node, graph.json and run_results.json.
package artifacts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapgraph/internal/dag"
)

// File names under the target dir.
const (
	GraphFile      = "graph.json"
	RunResultsFile = "run_results.json"
)

// Writer writes files below a root directory.
// It is safe for concurrent use; distinct paths never share state.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a writer rooted at dir. The directory is created on
// first write.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{dir: dir, logger: logger}
}

// Dir returns the root directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write stores text at the slash-separated path rel below the root.
func (w *Writer) Write(rel, text string) error {
	return w.write(rel, []byte(text))
}

// WriteJSON stores v as indented JSON at rel.
func (w *Writer) WriteJSON(rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", rel, err)
	}
	return w.write(rel, append(data, '\n'))
}

// WriteGraph stores a graph snapshot as graph.json.
func (w *Writer) WriteGraph(s *dag.Snapshot) error {
	var buf bytes.Buffer
	if err := s.Write(&buf); err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	return w.write(GraphFile, buf.Bytes())
}

// Clean removes a subdirectory of the root, e.g. stale compiled SQL.
func (w *Writer) Clean(rel string) error {
	p, err := w.path(rel)
	if err != nil {
		return err
	}
	return os.RemoveAll(p)
}

func (w *Writer) write(rel string, data []byte) error {
	p, err := w.path(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	w.logger.Debug("wrote artifact", slog.String("path", p), slog.Int("bytes", len(data)))
	return nil
}

// path maps rel onto the root, refusing paths that leave it.
func (w *Writer) path(rel string) (string, error) {
	local := filepath.FromSlash(rel)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("artifact path %q escapes %s", rel, w.dir)
	}
	return filepath.Join(w.dir, local), nil
}
