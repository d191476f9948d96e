package model

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of an upload.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusError      Status = "error"
)

// Terminal reports whether the status ends a run.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusError
}

// Upload is one user-submitted file together with its state.
type Upload struct {
	ID           string     `json:"id"`
	Filename     string     `json:"filename"`
	BlobKey      string     `json:"blob_key"`
	Format       string     `json:"format"`
	SizeBytes    int64      `json:"size_bytes"`
	RowCount     int        `json:"row_count"`
	ColumnCount  int        `json:"column_count"`
	Status       Status     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`

	// JSON documents kept alongside the state.
	DetectedSchema   json.RawMessage `json:"detected_schema,omitempty"`
	ValidationReport json.RawMessage `json:"validation_report,omitempty"`
	ColumnMapping    json.RawMessage `json:"column_mapping,omitempty"`
	LastReport       json.RawMessage `json:"last_report,omitempty"`
}
