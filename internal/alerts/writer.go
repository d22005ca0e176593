package alerts

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"sentinel/internal/model"
)

// Writer persists the full alert history as a JSON array, rewriting the
// file on every append. Downstream tooling reads the file as a complete
// snapshot, so partial appends are never visible.
type Writer struct {
	mu     sync.Mutex
	path   string
	all    []model.Alert
	logger *slog.Logger
}

// NewWriter verifies the output path is writable up front. An unusable
// sink is a startup failure, not something to discover on the first alert.
func NewWriter(path string, logger *slog.Logger) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	return &Writer{path: path, logger: logger}, nil
}

// Append adds the alert to the persisted history and rewrites the file.
// A write failure is logged; the alert stays in the in-memory history and
// is retried implicitly on the next append.
func (w *Writer) Append(alert model.Alert) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.all = append(w.all, alert)
	if err := w.flushLocked(); err != nil && w.logger != nil {
		w.logger.Error("write events file", "path", w.path, "error", err)
	}
}

// Flush rewrites the file from the in-memory history.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	data, err := json.MarshalIndent(w.all, "", "  ")
	if err != nil {
		return err
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, w.path)
}

// Count reports how many alerts the writer has persisted.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.all)
}

// ExportJSONL writes the given alerts to path, one JSON object per line.
func ExportJSONL(path string, alerts []model.Alert) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, a := range alerts {
		if err := enc.Encode(a); err != nil {
			f.Close()
			return fmt.Errorf("encode alert: %w", err)
		}
	}
	return f.Close()
}
