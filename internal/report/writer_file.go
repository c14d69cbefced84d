package report

import (
	"fmt"
	"os"
	"path/filepath"

	"sshniff/internal/model"
)

// FileWriter writes one report file per stream into a directory.
type FileWriter struct {
	dir  string
	json bool
}

// NewFileWriter creates a writer rooted at dir. When jsonOut is set the
// machine-readable form is written alongside the text report.
func NewFileWriter(dir string, jsonOut bool) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileWriter{dir: dir, json: jsonOut}, nil
}

// Write persists the report under stream_<id>.txt (and .json).
func (w *FileWriter) Write(r *model.StreamReport) error {
	textPath := filepath.Join(w.dir, fmt.Sprintf("stream_%d.txt", r.StreamID))
	if err := os.WriteFile(textPath, []byte(Text(r)), 0644); err != nil {
		return fmt.Errorf("failed to write report '%s': %w", textPath, err)
	}

	if !w.json {
		return nil
	}
	data, err := JSON(r)
	if err != nil {
		return err
	}
	jsonPath := filepath.Join(w.dir, fmt.Sprintf("stream_%d.json", r.StreamID))
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write report '%s': %w", jsonPath, err)
	}
	return nil
}

// Close implements model.Writer; file writers hold no connection.
func (w *FileWriter) Close() error {
	return nil
}
