package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
)

// CopyFn commits one batch of records and returns how many it committed.
type CopyFn[T any] func(ctx context.Context, batch []T) (int64, error)

// batchWriter accumulates records and hands full batches to a CopyFn.
type batchWriter[T any] struct {
	log     *zap.Logger
	write   CopyFn[T]
	pending []T

	committed int64
	batches   int64
	started   time.Time
	last      time.Time // previous successful commit
	lastTotal int64
}

func (w *batchWriter[T]) add(ctx context.Context, rec T) error {
	w.pending = append(w.pending, rec)
	if len(w.pending) < cap(w.pending) {
		return nil
	}
	return w.commit(ctx)
}

func (w *batchWriter[T]) commit(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	n, err := w.write(ctx, w.pending)
	w.committed += n
	w.pending = w.pending[:0]
	if err != nil {
		w.log.Warn("batch failed", zap.Int64("committed", n), zap.Int64("total", w.committed), zap.Error(err))
		return err
	}

	w.batches++
	now := time.Now()
	var rate float64
	if d := now.Sub(w.last); d > 0 {
		rate = float64(w.committed-w.lastTotal) / d.Seconds()
	}
	w.log.Debug("batch committed",
		zap.Int64("batch", w.batches),
		zap.Int64("inserted", n),
		zap.Int64("total", w.committed),
		zap.Float64("rows_per_sec", rate),
		zap.Duration("elapsed", now.Sub(w.started).Truncate(time.Millisecond)),
	)
	w.last, w.lastTotal = now, w.committed
	return nil
}

// LoadBatches reads records from in until it is closed and commits them in
// batches of batchSize. The pending slice is reused between batches, so
// copyFn must copy anything it retains.
//
// It returns the number of records committed so far together with the first
// write error, or ctx.Err() once ctx is done.
func LoadBatches[T any](
	ctx context.Context,
	log *zap.Logger,
	in <-chan T,
	batchSize int,
	copyFn CopyFn[T],
) (int64, error) {
	if batchSize <= 0 {
		return 0, skerrors.New(skerrors.CodeConfig, "batch size must be > 0")
	}
	if copyFn == nil {
		return 0, skerrors.New(skerrors.CodeConfig, "copy function must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	now := time.Now()
	w := &batchWriter[T]{
		log:     log,
		write:   copyFn,
		pending: make([]T, 0, batchSize),
		started: now,
		last:    now,
	}
	for {
		select {
		case <-ctx.Done():
			return w.committed, ctx.Err()
		case rec, ok := <-in:
			if !ok {
				return w.committed, w.commit(ctx)
			}
			if err := w.add(ctx, rec); err != nil {
				return w.committed, err
			}
		}
	}
}

// WriteAll feeds rows to LoadBatches from a goroutine.
func WriteAll[T any](ctx context.Context, log *zap.Logger, rows []T, batchSize int, copyFn CopyFn[T]) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan T, max(batchSize, 0))
	go func() {
		defer close(in)
		for _, r := range rows {
			select {
			case in <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return LoadBatches(ctx, log, in, batchSize, copyFn)
}
