package pipeline

import (
	"github.com/skuflow/skuflow/pkg/cleaner"
	"github.com/skuflow/skuflow/pkg/transform"
)

// Stage names, in execution order.
const (
	StageLoad       = "load"
	StageDetect     = "detect"
	StageClean      = "clean"
	StageTransform  = "transform"
	StageRevalidate = "revalidate"
	StagePersist    = "persist"
)

// Stages lists every stage of a full run.
var Stages = []string{StageLoad, StageDetect, StageClean, StageTransform, StageRevalidate, StagePersist}

// ProcessingOptions configures one run.
type ProcessingOptions struct {
	Cleaning  cleaner.Options
	Transform transform.Options

	// Rerun allows a processed or errored upload to be processed again.
	// Records of the previous run are deleted first.
	Rerun bool

	// ChunkSize is the number of records handed to the loader at a time.
	ChunkSize int

	// BatchSize is the number of records per independent commit.
	BatchSize int

	// RollbackOnFailure deletes the records already committed by a run that
	// ends in error.
	RollbackOnFailure bool

	// MaxErrorRecords caps the row-level entries kept in the report.
	MaxErrorRecords int
}

// DefaultOptions returns the default run configuration.
func DefaultOptions() ProcessingOptions {
	return ProcessingOptions{
		Cleaning:          cleaner.DefaultOptions(),
		Transform:         transform.DefaultOptions(),
		ChunkSize:         10000,
		BatchSize:         1000,
		RollbackOnFailure: true,
		MaxErrorRecords:   1000,
	}
}

func (o ProcessingOptions) normalized() ProcessingOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 10000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 1000
	}
	if o.BatchSize > o.ChunkSize {
		o.BatchSize = o.ChunkSize
	}
	if o.MaxErrorRecords < 0 {
		o.MaxErrorRecords = 0
	}
	if o.Cleaning.ChunkSize <= 0 {
		o.Cleaning.ChunkSize = o.ChunkSize
	}
	return o
}

// Progress receives stage transitions and persistence progress. done and
// total count records and are zero outside the persist stage.
type Progress func(stage string, done, total int64)
