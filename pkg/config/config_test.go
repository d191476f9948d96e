package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if c.Pipeline.ChunkSize != 10000 || c.Pipeline.BatchSize != 1000 {
		t.Errorf("pipeline sizes = %d/%d", c.Pipeline.ChunkSize, c.Pipeline.BatchSize)
	}
	if c.Upload.MaxSizeMB != 50 || c.Pipeline.PreviewRows != 20 {
		t.Errorf("upload limit = %d, preview = %d", c.Upload.MaxSizeMB, c.Pipeline.PreviewRows)
	}
	if !c.Pipeline.RollbackOnFailure {
		t.Error("RollbackOnFailure should default to true")
	}
}

func TestLoad_ExplicitFileOverridesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "skuflow.yaml")
	data := `
thresholds:
  null_error_pct: 90
cleaning:
  remove_duplicates: false
  outlier_method: zscore
transform:
  currency:
    enabled: true
    target: USD
    rates:
      EUR: 1.1
redis:
  ttl: 30s
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	m := NewManager()
	if err := m.Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	c := m.Get()

	if c.Thresholds.NullErrorPct != 90 {
		t.Errorf("NullErrorPct = %v, want 90", c.Thresholds.NullErrorPct)
	}
	if c.Thresholds.NullWarningPct != 30 {
		t.Errorf("NullWarningPct = %v, want default 30", c.Thresholds.NullWarningPct)
	}
	if c.Cleaning.RemoveDuplicates {
		t.Error("RemoveDuplicates = true, want false from file")
	}
	if !c.Cleaning.DetectOutliers {
		t.Error("DetectOutliers lost its default")
	}
	if c.Cleaning.OutlierMethod != "zscore" {
		t.Errorf("OutlierMethod = %q", c.Cleaning.OutlierMethod)
	}
	if c.Transform.Currency.Rates["EUR"] != 1.1 {
		t.Errorf("Rates = %v", c.Transform.Currency.Rates)
	}
	if c.Redis.TTL != 30*time.Second {
		t.Errorf("TTL = %v, want 30s", c.Redis.TTL)
	}
	if paths := m.GetPaths(); len(paths) == 0 || paths[len(paths)-1] != path {
		t.Errorf("GetPaths() = %v", paths)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SKUFLOW_LOG_LEVEL", "debug")
	t.Setenv("SKUFLOW_WORKERS", "3")
	t.Setenv("SKUFLOW_REDIS_ADDR", "redis:6379")
	t.Setenv("SKUFLOW_RECORDS_DRIVER", "sqlite")

	m := NewManager()
	if err := m.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	c := m.Get()
	if c.Logging.Level != "debug" || c.Pipeline.Workers != 3 || c.Storage.RecordsDriver != "sqlite" {
		t.Errorf("env not applied: %+v %+v %+v", c.Logging, c.Pipeline, c.Storage)
	}
	if !c.Redis.Enabled || c.Redis.Addr != "redis:6379" {
		t.Errorf("Redis = %+v, want enabled at redis:6379", c.Redis)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad keep", func(c *Config) { c.Cleaning.DuplicateKeep = "middle" }},
		{"bad driver", func(c *Config) { c.Storage.RecordsDriver = "mongo" }},
		{"inverted null cutoffs", func(c *Config) { c.Thresholds.NullWarningPct = 95 }},
		{"s3 without bucket", func(c *Config) { c.Blob.Driver = "s3" }},
		{"zero batch", func(c *Config) { c.Pipeline.BatchSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("Validate() error = nil")
			}
		})
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("pipeline: [unterminated"), 0644)

	if err := NewManager().Load(path); err == nil {
		t.Error("Load() error = nil for malformed yaml")
	}
}
