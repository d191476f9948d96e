// Package pipeline runs an uploaded file through detection, cleaning,
// transformation, re-validation and persistence, and owns the upload's
// status transitions while doing so.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skuflow/skuflow/pkg/cleaner"
	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/lock"
	"github.com/skuflow/skuflow/pkg/model"
	"github.com/skuflow/skuflow/pkg/schema"
	"github.com/skuflow/skuflow/pkg/storage"
	"github.com/skuflow/skuflow/pkg/table"
	"github.com/skuflow/skuflow/pkg/telemetry"
	"github.com/skuflow/skuflow/pkg/transform"
	"github.com/skuflow/skuflow/pkg/upload"
	"github.com/skuflow/skuflow/pkg/validation"
)

// UploadStore is the upload state driven by the orchestrator.
type UploadStore interface {
	Get(ctx context.Context, id string) (*model.Upload, error)
	BeginProcessing(ctx context.Context, id string, rerun bool) (*model.Upload, error)
	MarkProcessed(ctx context.Context, id string, report json.RawMessage, at time.Time) error
	MarkError(ctx context.Context, id, message string, report json.RawMessage, at time.Time) error
}

// Loader reads the stored file of an upload.
type Loader interface {
	Load(ctx context.Context, u *model.Upload) (*table.RawTable, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides the clock used for status timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLocker sets the per-upload run lock. Defaults to an in-process lock.
func WithLocker(l lock.Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

// WithProgress registers a progress callback.
func WithProgress(p Progress) Option {
	return func(o *Orchestrator) { o.progress = p }
}

// WithCleaner replaces the default cleaner.
func WithCleaner(c *cleaner.Cleaner) Option {
	return func(o *Orchestrator) { o.cleaner = c }
}

// WithTransformer replaces the default transformer.
func WithTransformer(t *transform.Transformer) Option {
	return func(o *Orchestrator) { o.transformer = t }
}

// Orchestrator sequences the processing stages of an upload.
type Orchestrator struct {
	store       UploadStore
	loader      Loader
	repo        storage.Repository
	detector    *schema.Detector
	validator   *validation.Validator
	cleaner     *cleaner.Cleaner
	transformer *transform.Transformer
	locker      lock.Locker
	logger      *zap.Logger
	now         func() time.Time
	progress    Progress

	stages map[string]stageFunc
}

type stageFunc func(ctx context.Context, rc *RunContext) error

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(
	store UploadStore,
	loader Loader,
	repo storage.Repository,
	detector *schema.Detector,
	validator *validation.Validator,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		loader:    loader,
		repo:      repo,
		detector:  detector,
		validator: validator,
		locker:    lock.NewLocal(),
		logger:    zap.NewNop(),
		now:       time.Now,
		progress:  func(string, int64, int64) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cleaner == nil {
		o.cleaner = cleaner.New(cleaner.WithLogger(o.logger), cleaner.WithClock(o.now))
	}
	if o.transformer == nil {
		o.transformer = transform.New(transform.WithLogger(o.logger), transform.WithClock(o.now))
	}
	o.stages = map[string]stageFunc{
		StageLoad:       o.load,
		StageDetect:     o.detect,
		StageClean:      o.clean,
		StageTransform:  o.transform,
		StageRevalidate: o.revalidate,
		StagePersist:    o.persist,
	}
	return o
}

// Process runs every stage for an upload and records the outcome in the
// state store. A concurrent or disallowed request is rejected without
// touching the upload's status.
//
// The returned report is non-nil once the upload entered processing, also
// when the run failed.
func (o *Orchestrator) Process(ctx context.Context, uploadID string, opts ProcessingOptions) (*ProcessingReport, error) {
	opts = opts.normalized()

	release, err := o.locker.TryLock(ctx, uploadID)
	if errors.Is(err, lock.ErrHeld) {
		return nil, skerrors.RunInProgress(uploadID)
	}
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeLock, "failed to acquire run lock").WithContext("upload_id", uploadID)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			o.logger.Warn("failed to release run lock", zap.String("upload_id", uploadID), zap.Error(err))
		}
	}()

	u, err := o.store.BeginProcessing(ctx, uploadID, opts.Rerun)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.process")
	span.SetAttributes(telemetry.Attr("upload_id", uploadID), telemetry.Attr("rerun", opts.Rerun))

	rc := o.newRunContext(u, opts)
	rc.log.Info("processing started", zap.String("file", u.Filename), zap.Bool("rerun", opts.Rerun))

	runErr := o.run(ctx, rc, Stages)
	if runErr != nil {
		o.rollback(ctx, rc)
	}
	err = o.complete(ctx, rc, runErr)
	telemetry.EndSpan(span, err)
	return rc.Report, err
}

// Preview runs load through transform without persisting or changing the
// upload's status and returns at most n records. n <= 0 returns all.
func (o *Orchestrator) Preview(ctx context.Context, uploadID string, opts ProcessingOptions, n int) ([]model.SalesRecord, *ProcessingReport, error) {
	opts = opts.normalized()
	u, err := o.store.Get(ctx, uploadID)
	if err != nil {
		return nil, nil, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.preview")
	span.SetAttributes(telemetry.Attr("upload_id", uploadID))

	rc := o.newRunContext(u, opts)
	start := time.Now()
	err = o.run(ctx, rc, Stages[:4])
	rc.Report.finish(time.Since(start), err)
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, rc.Report, err
	}

	recs := rc.Transformed.Records
	if n > 0 && len(recs) > n {
		recs = recs[:n]
	}
	return recs, rc.Report, nil
}

func (o *Orchestrator) run(ctx context.Context, rc *RunContext, stages []string) error {
	for _, name := range stages {
		if err := o.runStage(ctx, rc, name); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, rc *RunContext, name string) (err error) {
	if cerr := ctx.Err(); cerr != nil {
		return skerrors.ContextCanceled(name, cerr)
	}
	o.progress(name, 0, 0)

	ctx, span := telemetry.Tracer().Start(ctx, "pipeline."+name)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = skerrors.New(skerrors.CodePanic, fmt.Sprintf("%s stage panic: %v", name, r)).WithContext("stage", name)
		}
		elapsed := time.Since(start)
		rc.Report.StageDurations[name] = elapsed.Seconds()
		telemetry.EndSpan(span, err)
		if err != nil {
			rc.log.Warn("stage failed", zap.String("stage", name), zap.Duration("elapsed", elapsed), zap.Error(err))
			return
		}
		rc.log.Debug("stage finished", zap.String("stage", name), zap.Duration("elapsed", elapsed))
	}()

	rc.log.Debug("stage started", zap.String("stage", name))
	if err := o.stages[name](ctx, rc); err != nil {
		if skerrors.IsCode(err, skerrors.CodeCanceled) {
			return err
		}
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return skerrors.ContextCanceled(name, err)
		}
		return skerrors.Stage(name, err)
	}
	return nil
}

func (o *Orchestrator) load(ctx context.Context, rc *RunContext) error {
	raw, err := o.loader.Load(ctx, rc.Upload)
	if err != nil {
		return err
	}
	rc.Raw = raw
	return nil
}

func (o *Orchestrator) detect(_ context.Context, rc *RunContext) error {
	s, err := o.detector.Detect(rc.Raw)
	if err != nil {
		return err
	}

	stored, err := upload.DecodeMapping(rc.Upload.ColumnMapping)
	if err != nil {
		return err
	}
	mapping := make(map[string]schema.Mapping, len(stored)+len(rc.Options.Cleaning.ColumnMapping))
	for col, m := range stored {
		mapping[col] = m
	}
	for col, m := range rc.Options.Cleaning.ColumnMapping {
		mapping[col] = m
	}
	if len(mapping) > 0 {
		if s, err = s.WithMapping(mapping); err != nil {
			return err
		}
		rc.Options.Cleaning.ColumnMapping = mapping
	}
	rc.Schema = s
	return nil
}

func (o *Orchestrator) clean(ctx context.Context, rc *RunContext) error {
	ct, issues, err := o.cleaner.Clean(ctx, rc.Raw, rc.Schema, rc.Options.Cleaning)
	if err != nil {
		return err
	}
	rc.Cleaned = ct
	rc.Issues = issues
	rc.Report.addCleaning(ct, issues, rc.Options.MaxErrorRecords)
	return nil
}

func (o *Orchestrator) transform(_ context.Context, rc *RunContext) error {
	opts := rc.Options.Transform
	opts.UploadID = rc.Upload.ID
	t, err := o.transformer.Transform(rc.Cleaned, opts)
	if err != nil {
		return err
	}
	rc.Transformed = t
	rc.Report.Records = len(t.Records)
	return nil
}

// revalidate profiles the transformed records. Findings are reported and
// never fail the run.
func (o *Orchestrator) revalidate(_ context.Context, rc *RunContext) error {
	if len(rc.Transformed.Records) == 0 {
		rc.log.Info("no records left to revalidate")
		return nil
	}
	raw := rc.Transformed.ToRaw()
	s, err := o.detector.Detect(raw)
	if err != nil {
		return err
	}
	rc.Report.PostValidation = o.validator.Validate(raw, s)
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, rc *RunContext) error {
	id := rc.Upload.ID
	if rc.Options.Rerun {
		n, err := o.repo.DeleteUpload(ctx, id)
		if err != nil {
			return skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to clear previous run").WithContext("upload_id", id)
		}
		if n > 0 {
			rc.log.Info("cleared previous run", zap.Int64("deleted", n))
		}
	}

	rc.persistStarted = true
	recs := rc.Transformed.Records
	total := int64(len(recs))
	for lo := 0; lo < len(recs); lo += rc.Options.ChunkSize {
		hi := min(lo+rc.Options.ChunkSize, len(recs))
		n, err := storage.WriteAll(ctx, rc.log, recs[lo:hi], rc.Options.BatchSize, o.repo.WriteBatch)
		rc.Report.RowsPersisted += n
		o.progress(StagePersist, rc.Report.RowsPersisted, total)
		if err != nil {
			return skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to persist records").
				WithContext("committed", rc.Report.RowsPersisted).
				WithContext("total", total)
		}
	}

	if f, ok := o.repo.(storage.Finisher); ok {
		if err := f.Finish(ctx, id); err != nil {
			return err
		}
	}
	rc.log.Info("records persisted", zap.Int64("records", rc.Report.RowsPersisted))
	return nil
}

// rollback deletes what a failed run committed.
func (o *Orchestrator) rollback(ctx context.Context, rc *RunContext) {
	if !rc.persistStarted || !rc.Options.RollbackOnFailure {
		return
	}
	n, err := o.repo.DeleteUpload(context.WithoutCancel(ctx), rc.Upload.ID)
	if err != nil {
		rc.log.Error("rollback failed", zap.Error(err))
		rc.Report.Errors = append(rc.Report.Errors, ErrorRecord{
			Error:    "rollback failed: " + err.Error(),
			Severity: validation.SeverityError,
			Action:   "rollback",
		})
		return
	}
	rc.Report.RolledBack = true
	rc.log.Warn("rolled back persisted records", zap.Int64("deleted", n))
}

// complete records the outcome. State writes ignore cancellation so a
// canceled run never stays in processing.
func (o *Orchestrator) complete(ctx context.Context, rc *RunContext, runErr error) error {
	ctx = context.WithoutCancel(ctx)
	id := rc.Upload.ID
	elapsed := time.Since(rc.started)

	if runErr == nil {
		rc.Report.finish(elapsed, nil)
		data, err := rc.Report.JSON()
		if err == nil {
			err = o.store.MarkProcessed(ctx, id, data, o.now())
		}
		if err == nil {
			rc.log.Info("processing finished",
				zap.Int("rows_processed", rc.Report.RowsProcessed),
				zap.Int("rows_failed", rc.Report.RowsFailed),
				zap.Int("rows_anomalous", rc.Report.RowsAnomalous),
				zap.Int64("rows_persisted", rc.Report.RowsPersisted),
				zap.Duration("elapsed", elapsed),
			)
			return nil
		}
		runErr = skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to record processed status").WithContext("upload_id", id)
		o.rollback(ctx, rc)
	}

	rc.Report.finish(elapsed, runErr)
	data, err := rc.Report.JSON()
	if err != nil {
		data = nil
	}
	if err := o.store.MarkError(ctx, id, runErr.Error(), data, o.now()); err != nil {
		rc.log.Error("failed to record error status", zap.Error(err))
		var me skerrors.MultiError
		me.Add(runErr)
		me.Add(err)
		return me.Combined()
	}
	rc.log.Warn("processing failed", zap.Error(runErr), zap.Duration("elapsed", elapsed))
	return runErr
}
