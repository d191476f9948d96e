package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/skuflow/skuflow/pkg/cleaner"
	"github.com/skuflow/skuflow/pkg/validation"
)

// Report actions for row-level entries.
const (
	ActionExcluded = "excluded"
	ActionRemoved  = "removed"
	ActionReported = "reported"
)

// ErrorRecord is one row-level or table-level entry of a report. Row is the
// 1-based data row of the uploaded file; zero marks a table-level entry.
type ErrorRecord struct {
	Row      int                 `json:"row,omitempty"`
	Column   string              `json:"column,omitempty"`
	Error    string              `json:"error"`
	Severity validation.Severity `json:"severity"`
	Action   string              `json:"action"`
}

// ProcessingReport summarizes one run. RowsProcessed + RowsFailed always
// equals InputRows. Durations are in seconds.
type ProcessingReport struct {
	UploadID          string             `json:"upload_id"`
	InputRows         int                `json:"input_rows"`
	RowsProcessed     int                `json:"rows_processed"`
	RowsAnomalous     int                `json:"rows_anomalous"`
	DuplicatesRemoved int                `json:"duplicates_removed"`
	OutliersRemoved   int                `json:"outliers_removed"`
	RowsFailed        int                `json:"rows_failed"`
	Records           int                `json:"records"`
	RowsPersisted     int64              `json:"rows_persisted"`
	RolledBack        bool               `json:"rolled_back"`
	ProcessingTime    float64            `json:"processing_time"`
	Errors            []ErrorRecord      `json:"errors"`
	ErrorsTruncated   int                `json:"errors_truncated,omitempty"`
	Summary           string             `json:"summary"`
	PostValidation    *validation.Report `json:"post_validation,omitempty"`
	StageDurations    map[string]float64 `json:"stage_durations"`
	Failure           string             `json:"failure,omitempty"`
}

func newReport(uploadID string) *ProcessingReport {
	return &ProcessingReport{
		UploadID:       uploadID,
		Errors:         []ErrorRecord{},
		StageDurations: make(map[string]float64),
	}
}

// JSON encodes the report for the state store.
func (r *ProcessingReport) JSON() ([]byte, error) {
	return json.Marshal(r)
}

// addCleaning copies the cleaner's counts and row-level entries.
func (r *ProcessingReport) addCleaning(ct *cleaner.CleanedTable, issues []validation.Issue, max int) {
	r.InputRows = ct.InputRows
	r.RowsFailed = len(ct.Failed)
	r.RowsProcessed = ct.InputRows - r.RowsFailed
	r.RowsAnomalous = ct.Anomalous()
	r.DuplicatesRemoved = ct.DuplicatesRemoved
	r.OutliersRemoved = ct.OutliersRemoved

	for _, f := range ct.Failed {
		r.addError(ErrorRecord{
			Row:      f.Row + 1,
			Column:   f.Column,
			Error:    f.Message,
			Severity: validation.SeverityError,
			Action:   ActionExcluded,
		}, max)
	}
	for _, rm := range ct.Removed {
		r.addError(ErrorRecord{
			Row:      rm.Row + 1,
			Error:    rm.Reason,
			Severity: validation.SeverityInfo,
			Action:   ActionRemoved,
		}, max)
	}
	for _, is := range issues {
		r.addError(ErrorRecord{
			Column:   is.Column,
			Error:    is.Message,
			Severity: is.Severity,
			Action:   ActionReported,
		}, max)
	}
}

func (r *ProcessingReport) addError(e ErrorRecord, max int) {
	if len(r.Errors) >= max {
		r.ErrorsTruncated++
		return
	}
	r.Errors = append(r.Errors, e)
}

func (r *ProcessingReport) finish(elapsed time.Duration, failure error) {
	r.ProcessingTime = elapsed.Seconds()
	if failure != nil {
		r.Failure = failure.Error()
	}
	r.Summary = r.summarize()
}

func (r *ProcessingReport) summarize() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Processed %d of %d rows", r.RowsProcessed, r.InputRows)
	var parts []string
	if r.RowsFailed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.RowsFailed))
	}
	if r.RowsAnomalous > 0 {
		parts = append(parts, fmt.Sprintf("%d anomalous", r.RowsAnomalous))
	}
	if r.DuplicatesRemoved > 0 {
		parts = append(parts, fmt.Sprintf("%d duplicates removed", r.DuplicatesRemoved))
	}
	if r.OutliersRemoved > 0 {
		parts = append(parts, fmt.Sprintf("%d outliers removed", r.OutliersRemoved))
	}
	if len(parts) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString(")")
	}
	fmt.Fprintf(&b, "; %d records persisted", r.RowsPersisted)
	if r.RolledBack {
		b.WriteString(" and rolled back")
	}
	if r.Failure != "" {
		b.WriteString("; failed: ")
		b.WriteString(r.Failure)
	}
	return b.String()
}
