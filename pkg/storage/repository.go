// Package storage contains the record repository contract and the batched
// loader shared by every backend.
package storage

import (
	"context"

	"github.com/skuflow/skuflow/pkg/model"
)

// Repository persists cleaned sales records.
//
// WriteBatch commits one batch independently and returns the number of rows
// it committed. DeleteUpload removes every record of an upload and is used
// both before a rerun and to roll back a failed run.
type Repository interface {
	WriteBatch(ctx context.Context, recs []model.SalesRecord) (int64, error)
	DeleteUpload(ctx context.Context, uploadID string) (int64, error)
}

// Finisher is implemented by repositories that must seal an upload's output
// once every batch is written.
type Finisher interface {
	Finish(ctx context.Context, uploadID string) error
}

// Counter is implemented by repositories that can count persisted records.
type Counter interface {
	Count(ctx context.Context, uploadID string) (int64, error)
}
