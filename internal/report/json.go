package report

import (
	"encoding/json"
	"fmt"

	"sshniff/internal/model"
)

// JSON serialises one report as the machine-readable export: one indented
// JSON object with the data-model field names.
func JSON(r *model.StreamReport) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report for stream %d: %w", r.StreamID, err)
	}
	return data, nil
}

// FromJSON parses a serialised report back into the data model.
func FromJSON(data []byte) (*model.StreamReport, error) {
	var r model.StreamReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &r, nil
}
