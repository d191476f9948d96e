// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all skuflow configuration.
type Config struct {
	Version int `yaml:"version"`

	Logging    LoggingConfig    `yaml:"logging"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Cleaning   CleaningConfig   `yaml:"cleaning"`
	Transform  TransformConfig  `yaml:"transform"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Upload     UploadConfig     `yaml:"upload"`
	Storage    StorageConfig    `yaml:"storage"`
	Blob       BlobConfig       `yaml:"blob"`
	Redis      RedisConfig      `yaml:"redis"`
	Watch      WatchConfig      `yaml:"watch"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // console | json
}

// ThresholdsConfig holds the numeric cutoffs used by detection, validation
// and cleaning.
type ThresholdsConfig struct {
	NullWarningPct   float64 `yaml:"null_warning_pct"`
	NullErrorPct     float64 `yaml:"null_error_pct"`
	CategoricalRatio float64 `yaml:"categorical_ratio"`
	PriceJumpPct     float64 `yaml:"price_jump_pct"`
	DateFloorYear    int     `yaml:"date_floor_year"`
	ShortRangeDays   int     `yaml:"short_range_days"`
	ZeroSharePct     float64 `yaml:"zero_share_pct"`
	MinColumns       int     `yaml:"min_columns"`
	MaxColumns       int     `yaml:"max_columns"`
	RevenueEpsilon   float64 `yaml:"revenue_epsilon"`
}

// CleaningConfig toggles the cleaning steps.
type CleaningConfig struct {
	RemoveDuplicates       bool    `yaml:"remove_duplicates"`
	DuplicateKeep          string  `yaml:"duplicate_keep"` // first | last | none
	DetectOutliers         bool    `yaml:"detect_outliers"`
	OutlierMethod          string  `yaml:"outlier_method"` // iqr | zscore
	OutlierThreshold       float64 `yaml:"outlier_threshold"`
	RemoveOutliers         bool    `yaml:"remove_outliers"`
	FlagFutureDates        bool    `yaml:"flag_future_dates"`
	FlagStaleDates         bool    `yaml:"flag_stale_dates"`
	FlagNegativeQuantities bool    `yaml:"flag_negative_quantities"`
	FlagZeroQuantities     bool    `yaml:"flag_zero_quantities"`
	FlagZeroPrices         bool    `yaml:"flag_zero_prices"`
	FlagPriceJumps         bool    `yaml:"flag_price_jumps"`
	PriceJumpBySKU         bool    `yaml:"price_jump_by_sku"`
}

// TransformConfig toggles the transformation steps.
type TransformConfig struct {
	DerivedMetrics   bool           `yaml:"derived_metrics"`
	CategoryEncoding string         `yaml:"category_encoding"` // none | label | onehot
	AggregatePeriod  string         `yaml:"aggregate_period"`  // none | day | week | month
	Currency         CurrencyConfig `yaml:"currency"`
}

// CurrencyConfig controls currency normalization.
type CurrencyConfig struct {
	Enabled bool               `yaml:"enabled"`
	Source  string             `yaml:"source"`
	Target  string             `yaml:"target"`
	Rate    float64            `yaml:"rate"`
	Rates   map[string]float64 `yaml:"rates"`
}

// PipelineConfig controls orchestration.
type PipelineConfig struct {
	ChunkSize         int  `yaml:"chunk_size"`
	BatchSize         int  `yaml:"batch_size"`
	Workers           int  `yaml:"workers"` // 0 = auto
	MaxErrorRecords   int  `yaml:"max_error_records"`
	RollbackOnFailure bool `yaml:"rollback_on_failure"`
	PreviewRows       int  `yaml:"preview_rows"`
}

// UploadConfig controls upload admission.
type UploadConfig struct {
	MaxSizeMB         int64    `yaml:"max_size_mb"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// StorageConfig selects the state store and the record repository.
type StorageConfig struct {
	Dir                string `yaml:"dir"`
	StateDriver        string `yaml:"state_driver"` // duckdb | sqlite | memory
	StateDSN           string `yaml:"state_dsn"`
	RecordsDriver      string `yaml:"records_driver"` // duckdb | sqlite | postgres | parquet | memory
	RecordsDSN         string `yaml:"records_dsn"`
	ParquetDir         string `yaml:"parquet_dir"`
	ParquetCompression string `yaml:"parquet_compression"` // snappy | zstd | gzip | none
}

// BlobConfig selects where raw upload files are kept.
type BlobConfig struct {
	Driver string   `yaml:"driver"` // local | s3
	Dir    string   `yaml:"dir"`
	S3     S3Config `yaml:"s3"`
}

// S3Config for the S3 blob store.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// RedisConfig for the distributed run lock.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// WatchConfig for the inbox watcher.
type WatchConfig struct {
	Inbox    string        `yaml:"inbox"`
	Debounce time.Duration `yaml:"debounce"`
	Process  bool          `yaml:"process"` // process after registering
}

// TelemetryConfig for OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".skuflow")

	return &Config{
		Version: 1,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Thresholds: ThresholdsConfig{
			NullWarningPct:   30,
			NullErrorPct:     80,
			CategoricalRatio: 0.5,
			PriceJumpPct:     50,
			DateFloorYear:    2000,
			ShortRangeDays:   30,
			ZeroSharePct:     50,
			MinColumns:       2,
			MaxColumns:       50,
			RevenueEpsilon:   0.01,
		},
		Cleaning: CleaningConfig{
			RemoveDuplicates:       true,
			DuplicateKeep:          "first",
			DetectOutliers:         true,
			OutlierMethod:          "iqr",
			FlagFutureDates:        true,
			FlagStaleDates:         true,
			FlagNegativeQuantities: true,
			FlagZeroPrices:         true,
			FlagPriceJumps:         true,
		},
		Transform: TransformConfig{
			DerivedMetrics:   true,
			CategoryEncoding: "label",
			AggregatePeriod:  "none",
		},
		Pipeline: PipelineConfig{
			ChunkSize:         10000,
			BatchSize:         1000,
			Workers:           0, // auto
			MaxErrorRecords:   1000,
			RollbackOnFailure: true,
			PreviewRows:       20,
		},
		Upload: UploadConfig{
			MaxSizeMB:         50,
			AllowedExtensions: []string{".csv", ".txt", ".xlsx"},
		},
		Storage: StorageConfig{
			Dir:                dataDir,
			StateDriver:        "duckdb",
			StateDSN:           filepath.Join(dataDir, "skuflow.db"),
			RecordsDriver:      "duckdb",
			RecordsDSN:         filepath.Join(dataDir, "records.db"),
			ParquetDir:         filepath.Join(dataDir, "parquet"),
			ParquetCompression: "snappy",
		},
		Blob: BlobConfig{
			Driver: "local",
			Dir:    filepath.Join(dataDir, "uploads"),
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "skuflow:lock:",
			TTL:    15 * time.Minute,
		},
		Watch: WatchConfig{
			Inbox:    filepath.Join(dataDir, "inbox"),
			Debounce: 500 * time.Millisecond,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "skuflow",
			Insecure:    true,
			SampleRatio: 1.0,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from all sources in priority order. An explicit
// file, when given, is applied after the standard locations.
func (m *Manager) Load(explicit ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("config %s: %w", path, err)
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}
	for _, path := range explicit {
		if path == "" {
			continue
		}
		if err := m.loadFile(path); err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
		m.paths = append(m.paths, path)
	}

	m.loadEnv()
	return m.config.Validate()
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/skuflow/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".skuflow", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".skuflow.yaml"))
	}

	return paths
}

// loadFile decodes a config file over the current values. Keys absent from
// the file keep their current value.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, m.config)
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	c := m.config

	if v := os.Getenv("SKUFLOW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SKUFLOW_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv("SKUFLOW_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.Workers = n
		}
	}

	if v := os.Getenv("SKUFLOW_STATE_DRIVER"); v != "" {
		c.Storage.StateDriver = v
	}
	if v := os.Getenv("SKUFLOW_STATE_DSN"); v != "" {
		c.Storage.StateDSN = v
	}
	if v := os.Getenv("SKUFLOW_RECORDS_DRIVER"); v != "" {
		c.Storage.RecordsDriver = v
	}
	if v := os.Getenv("SKUFLOW_RECORDS_DSN"); v != "" {
		c.Storage.RecordsDSN = v
	}

	if v := os.Getenv("SKUFLOW_BLOB_DRIVER"); v != "" {
		c.Blob.Driver = v
	}
	if v := os.Getenv("SKUFLOW_S3_BUCKET"); v != "" {
		c.Blob.S3.Bucket = v
	}

	// SKUFLOW_REDIS_ADDR turns the distributed lock on.
	if v := os.Getenv("SKUFLOW_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}

	// SKUFLOW_OTEL_ENDPOINT turns tracing on.
	if v := os.Getenv("SKUFLOW_OTEL_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
}

// Validate checks values that have a closed set of choices.
func (c *Config) Validate() error {
	checks := []struct {
		field, value string
		allowed      []string
	}{
		{"logging.format", c.Logging.Format, []string{"console", "json"}},
		{"cleaning.duplicate_keep", c.Cleaning.DuplicateKeep, []string{"first", "last", "none"}},
		{"cleaning.outlier_method", c.Cleaning.OutlierMethod, []string{"iqr", "zscore"}},
		{"transform.category_encoding", c.Transform.CategoryEncoding, []string{"none", "label", "onehot"}},
		{"transform.aggregate_period", c.Transform.AggregatePeriod, []string{"none", "day", "week", "month"}},
		{"storage.state_driver", c.Storage.StateDriver, []string{"duckdb", "sqlite", "memory"}},
		{"storage.records_driver", c.Storage.RecordsDriver, []string{"duckdb", "sqlite", "postgres", "parquet", "memory"}},
		{"blob.driver", c.Blob.Driver, []string{"local", "s3"}},
	}
	for _, chk := range checks {
		if !contains(chk.allowed, strings.ToLower(chk.value)) {
			return fmt.Errorf("invalid %s %q (allowed: %s)", chk.field, chk.value, strings.Join(chk.allowed, ", "))
		}
	}
	if c.Thresholds.NullWarningPct > c.Thresholds.NullErrorPct {
		return fmt.Errorf("thresholds.null_warning_pct (%v) exceeds null_error_pct (%v)",
			c.Thresholds.NullWarningPct, c.Thresholds.NullErrorPct)
	}
	if c.Pipeline.ChunkSize <= 0 || c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.chunk_size and pipeline.batch_size must be positive")
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("blob.s3.bucket is required for the s3 driver")
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// EnsureDirs creates the local directories the configuration points at.
func (c *Config) EnsureDirs() error {
	dirs := []string{c.Storage.Dir}
	if c.Blob.Driver == "local" {
		dirs = append(dirs, c.Blob.Dir)
	}
	if c.Storage.RecordsDriver == "parquet" {
		dirs = append(dirs, c.Storage.ParquetDir)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	return m.saveTo(filepath.Join(home, ".skuflow", "config.yaml"))
}

func (m *Manager) saveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
