// Package upload registers user files: it admits them, keeps the bytes in a
// blob store and records the detected schema and validation report.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skuflow/skuflow/pkg/blob"
	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/model"
	"github.com/skuflow/skuflow/pkg/schema"
	"github.com/skuflow/skuflow/pkg/table"
	"github.com/skuflow/skuflow/pkg/validation"
)

// Store is the part of the upload state store the service needs.
type Store interface {
	Create(ctx context.Context, u *model.Upload) error
	Get(ctx context.Context, id string) (*model.Upload, error)
	SaveMapping(ctx context.Context, id string, mapping json.RawMessage) error
}

// Config controls admission.
type Config struct {
	MaxSizeBytes      int64
	AllowedExtensions []string
}

// DefaultConfig admits .csv, .txt and .xlsx files up to 50 MB.
func DefaultConfig() Config {
	return Config{
		MaxSizeBytes:      50 << 20,
		AllowedExtensions: append([]string(nil), table.Extensions...),
	}
}

// Registration is the outcome of a successful Register.
type Registration struct {
	Upload *model.Upload
	Schema *schema.TableSchema
	Report *validation.Report
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides the clock used for upload timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides upload id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// Service registers and loads uploads.
type Service struct {
	cfg       Config
	store     Store
	blobs     blob.Store
	detector  *schema.Detector
	validator *validation.Validator
	log       *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewService creates an upload service.
func NewService(cfg Config, store Store, blobs blob.Store, detector *schema.Detector, validator *validation.Validator, opts ...Option) *Service {
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = DefaultConfig().MaxSizeBytes
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = DefaultConfig().AllowedExtensions
	}
	s := &Service{
		cfg:       cfg,
		store:     store,
		blobs:     blobs,
		detector:  detector,
		validator: validator,
		log:       zap.NewNop(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterFile registers a file from disk.
func (s *Service) RegisterFile(ctx context.Context, path string) (*Registration, error) {
	if err := s.checkExtension(path); err != nil {
		return nil, err
	}
	clean, err := validation.ValidateInputFile(path, s.cfg.MaxSizeBytes)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(clean)
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeUnreadable, "failed to open file").WithContext("path", path)
	}
	defer f.Close()
	return s.Register(ctx, filepath.Base(path), f)
}

// Register admits a file, parses and profiles it, stores the bytes and
// creates the upload in the uploaded state. Nothing is stored when the file
// is rejected or cannot be parsed.
func (s *Service) Register(ctx context.Context, filename string, r io.Reader) (*Registration, error) {
	if err := s.checkExtension(filename); err != nil {
		return nil, err
	}
	format, err := table.FormatFromName(filename)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, s.cfg.MaxSizeBytes+1))
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeUnreadable, "failed to read upload").WithContext("file", filename)
	}
	if int64(len(data)) > s.cfg.MaxSizeBytes {
		return nil, skerrors.Newf(skerrors.CodeFileTooLarge, "file exceeds %d MB", s.cfg.MaxSizeBytes>>20).
			WithContext("file", filename)
	}

	raw, err := table.Read(ctx, bytes.NewReader(data), table.ReadOptions{Format: format})
	if err != nil {
		return nil, err
	}
	detected, err := s.detector.Detect(raw)
	if err != nil {
		return nil, err
	}
	report := s.validator.Validate(raw, detected)

	schemaJSON, err := detected.JSON()
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeUnknown, "failed to encode schema")
	}
	reportJSON, err := report.JSON()
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeUnknown, "failed to encode validation report")
	}

	id := s.newID()
	u := &model.Upload{
		ID:               id,
		Filename:         filename,
		BlobKey:          blob.Key(id, filename),
		Format:           format.String(),
		SizeBytes:        int64(len(data)),
		RowCount:         raw.Rows(),
		ColumnCount:      raw.Columns(),
		Status:           model.StatusUploaded,
		UploadedAt:       s.now().UTC(),
		DetectedSchema:   schemaJSON,
		ValidationReport: reportJSON,
	}

	if err := s.blobs.Put(ctx, u.BlobKey, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, u); err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), u.BlobKey); derr != nil {
			s.log.Warn("orphaned blob", zap.String("key", u.BlobKey), zap.Error(derr))
		}
		return nil, err
	}

	s.log.Info("upload registered",
		zap.String("upload_id", id),
		zap.String("file", filename),
		zap.Int("rows", u.RowCount),
		zap.Int("columns", u.ColumnCount),
		zap.Int("errors", report.Errors),
		zap.Int("warnings", report.Warnings),
	)
	return &Registration{Upload: u, Schema: detected, Report: report}, nil
}

func (s *Service) checkExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range s.cfg.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}
	return skerrors.UnsupportedFormat(filename, s.cfg.AllowedExtensions)
}

// Load reads the stored file of an upload back into a table.
func (s *Service) Load(ctx context.Context, u *model.Upload) (*table.RawTable, error) {
	rc, err := s.blobs.Get(ctx, u.BlobKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return table.Read(ctx, rc, table.ReadOptions{Format: table.ParseFormat(u.Format)})
}

// SetMapping validates and stores a user-confirmed column mapping.
func (s *Service) SetMapping(ctx context.Context, id string, mapping map[string]schema.Mapping) error {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if u.Status == model.StatusProcessing {
		return skerrors.RunInProgress(id)
	}

	for col := range mapping {
		if err := validation.ValidateColumnName(col); err != nil {
			return err
		}
	}

	var detected schema.TableSchema
	if err := json.Unmarshal(u.DetectedSchema, &detected); err != nil {
		return skerrors.Wrap(err, skerrors.CodeSchema, "stored schema is unreadable").WithContext("upload_id", id)
	}
	if _, err := detected.WithMapping(mapping); err != nil {
		return skerrors.Wrap(err, skerrors.CodeSchema, "invalid column mapping").WithContext("upload_id", id)
	}

	data, err := json.Marshal(mapping)
	if err != nil {
		return skerrors.Wrap(err, skerrors.CodeUnknown, "failed to encode mapping")
	}
	return s.store.SaveMapping(ctx, id, data)
}

// DecodeMapping parses a stored column mapping. An empty document yields nil.
func DecodeMapping(raw json.RawMessage) (map[string]schema.Mapping, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var names map[string]string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeSchema, "column mapping is not a JSON object")
	}
	out := make(map[string]schema.Mapping, len(names))
	for col, role := range names {
		m, err := schema.ParseMapping(role)
		if err != nil {
			return nil, skerrors.Wrap(err, skerrors.CodeSchema, "invalid column mapping").WithContext("column", col)
		}
		out[col] = m
	}
	return out, nil
}
