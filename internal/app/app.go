// Package app builds the skuflow components from configuration.
package app

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skuflow/skuflow/pkg/blob"
	"github.com/skuflow/skuflow/pkg/config"
	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/lock"
	"github.com/skuflow/skuflow/pkg/model"
	"github.com/skuflow/skuflow/pkg/pipeline"
	"github.com/skuflow/skuflow/pkg/schema"
	"github.com/skuflow/skuflow/pkg/state"
	"github.com/skuflow/skuflow/pkg/storage"
	"github.com/skuflow/skuflow/pkg/storage/parquet"
	"github.com/skuflow/skuflow/pkg/storage/postgres"
	"github.com/skuflow/skuflow/pkg/storage/sqldb"
	"github.com/skuflow/skuflow/pkg/telemetry"
	"github.com/skuflow/skuflow/pkg/upload"
	"github.com/skuflow/skuflow/pkg/validation"
)

// Version is stamped into telemetry resources.
var Version = "0.1.0"

// StateStore is the upload state used by both registration and processing.
type StateStore interface {
	upload.Store
	pipeline.UploadStore
	List(ctx context.Context, status model.Status, limit int) ([]*model.Upload, error)
	Stats(ctx context.Context) (map[model.Status]int64, error)
	Close() error
}

// App holds the wired components of one process.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	State        StateStore
	Blobs        blob.Store
	Records      storage.Repository
	Locker       lock.Locker
	Detector     *schema.Detector
	Validator    *validation.Validator
	Uploads      *upload.Service
	Orchestrator *pipeline.Orchestrator

	closers []func(context.Context) error
}

// Open connects every backend named by cfg. On error, whatever was already
// opened is closed again.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...pipeline.Option) (a *App, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	a = &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			a.Close(context.WithoutCancel(ctx))
			a = nil
		}
	}()

	if err := cfg.EnsureDirs(); err != nil {
		return a, skerrors.Wrap(err, skerrors.CodeConfig, "failed to create data directories")
	}

	if cfg.Telemetry.Enabled {
		tc := telemetry.DefaultConfig(cfg.Telemetry.ServiceName)
		tc.Endpoint = cfg.Telemetry.Endpoint
		tc.Insecure = cfg.Telemetry.Insecure
		tc.SampleRatio = cfg.Telemetry.SampleRatio
		tc.ServiceVersion = Version
		shutdown, err := telemetry.Init(ctx, tc)
		if err != nil {
			return a, err
		}
		a.closers = append(a.closers, shutdown)
	}

	if a.State, err = openState(ctx, cfg.Storage); err != nil {
		return a, err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.State.Close() })

	if a.Blobs, err = openBlobs(ctx, cfg.Blob); err != nil {
		return a, err
	}

	records, closeRecords, err := openRecords(ctx, cfg.Storage)
	if err != nil {
		return a, err
	}
	a.Records = records
	if closeRecords != nil {
		a.closers = append(a.closers, func(context.Context) error { return closeRecords() })
	}

	a.Locker = lock.NewLocal()
	if cfg.Redis.Enabled {
		rl, err := lock.NewRedis(ctx, lock.RedisConfig{
			Address:  cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			Database: cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
			Timeout:  5 * time.Second,
		})
		if err != nil {
			return a, err
		}
		a.Locker = rl
		a.closers = append(a.closers, func(context.Context) error { return rl.Close() })
	}

	a.Detector = schema.NewDetector(DetectorConfig(cfg))
	a.Validator = validation.NewValidator(Thresholds(cfg))
	a.Uploads = upload.NewService(UploadConfig(cfg), a.State, a.Blobs, a.Detector, a.Validator,
		upload.WithLogger(log.Named("upload")))

	opts = append([]pipeline.Option{
		pipeline.WithLogger(log.Named("pipeline")),
		pipeline.WithLocker(a.Locker),
	}, opts...)
	a.Orchestrator = pipeline.NewOrchestrator(a.State, a.Uploads, a.Records, a.Detector, a.Validator, opts...)

	log.Debug("components ready",
		zap.String("state", cfg.Storage.StateDriver),
		zap.String("records", cfg.Storage.RecordsDriver),
		zap.String("blob", cfg.Blob.Driver),
		zap.Bool("redis_lock", cfg.Redis.Enabled),
		zap.Bool("tracing", cfg.Telemetry.Enabled),
	)
	return a, nil
}

// Close releases every backend in reverse open order.
func (a *App) Close(ctx context.Context) error {
	var errs skerrors.MultiError
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs.Add(a.closers[i](ctx))
	}
	a.closers = nil
	return errs.Combined()
}

func openState(ctx context.Context, c config.StorageConfig) (StateStore, error) {
	switch strings.ToLower(c.StateDriver) {
	case "memory":
		return state.NewMemoryStore(), nil
	case state.DriverDuckDB, state.DriverSQLite:
		return state.NewSQLStore(ctx, strings.ToLower(c.StateDriver), c.StateDSN)
	default:
		return nil, skerrors.Newf(skerrors.CodeConfig, "unknown state driver %q", c.StateDriver)
	}
}

func openBlobs(ctx context.Context, c config.BlobConfig) (blob.Store, error) {
	switch strings.ToLower(c.Driver) {
	case "", "local":
		return blob.NewLocal(c.Dir)
	case "s3":
		return blob.NewS3(ctx, blob.S3Config{
			Bucket:          c.S3.Bucket,
			Prefix:          c.S3.Prefix,
			Region:          c.S3.Region,
			Endpoint:        c.S3.Endpoint,
			UsePathStyle:    c.S3.UsePathStyle,
			AccessKeyID:     c.S3.AccessKey,
			SecretAccessKey: c.S3.SecretKey,
		})
	default:
		return nil, skerrors.Newf(skerrors.CodeConfig, "unknown blob driver %q", c.Driver)
	}
}

func openRecords(ctx context.Context, c config.StorageConfig) (storage.Repository, func() error, error) {
	switch strings.ToLower(c.RecordsDriver) {
	case "memory":
		return storage.NewMemory(), nil, nil
	case sqldb.DriverDuckDB, sqldb.DriverSQLite:
		r, err := sqldb.Open(ctx, sqldb.Config{Driver: strings.ToLower(c.RecordsDriver), DSN: c.RecordsDSN})
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	case "postgres":
		r, err := postgres.NewRepository(ctx, postgres.Config{DSN: c.RecordsDSN})
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	case "parquet":
		r, err := parquet.NewRepository(parquet.Config{Dir: c.ParquetDir, Compression: c.ParquetCompression})
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		return nil, nil, skerrors.Newf(skerrors.CodeConfig, "unknown records driver %q", c.RecordsDriver)
	}
}
