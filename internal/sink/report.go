package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/born-ml/tensortrain/internal/sweep"
)

// ReportEntry is the JSON form of a sweep.Record.
type ReportEntry struct {
	Threshold        float64 `json:"threshold"`
	Ranks            []int   `json:"ranks,omitempty"`
	RelativeError    float64 `json:"relative_error"`
	SquaredError     float64 `json:"squared_error"`
	EstimatedError   float64 `json:"estimated_error"`
	Params           int     `json:"params"`
	CompressionRatio float64 `json:"compression_ratio"`
	DurationSeconds  float64 `json:"duration_seconds"`
	Error            string  `json:"error,omitempty"`
}

// Report is the document written by WriteReport.
type Report struct {
	Shape   []int         `json:"shape"`
	Records []ReportEntry `json:"records"`
}

// NewReport converts records into their JSON form.
func NewReport(shape []int, records []sweep.Record) Report {
	r := Report{Shape: shape, Records: make([]ReportEntry, len(records))}
	for i, rec := range records {
		e := ReportEntry{
			Threshold:        rec.Threshold,
			Ranks:            rec.Ranks,
			RelativeError:    rec.RelativeError,
			SquaredError:     rec.SquaredError,
			EstimatedError:   rec.EstimatedError,
			Params:           rec.Params,
			CompressionRatio: rec.CompressionRatio,
			DurationSeconds:  rec.Duration.Seconds(),
		}
		if rec.Err != nil {
			e.Error = rec.Err.Error()
		}
		r.Records[i] = e
	}
	return r
}

// WriteReport writes records as indented JSON to path.
func WriteReport(path string, shape []int, records []sweep.Record) error {
	data, err := json.MarshalIndent(NewReport(shape, records), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
