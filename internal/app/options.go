package app

import (
	"fmt"

	"github.com/skuflow/skuflow/pkg/cleaner"
	"github.com/skuflow/skuflow/pkg/config"
	"github.com/skuflow/skuflow/pkg/pipeline"
	"github.com/skuflow/skuflow/pkg/schema"
	"github.com/skuflow/skuflow/pkg/transform"
	"github.com/skuflow/skuflow/pkg/upload"
	"github.com/skuflow/skuflow/pkg/validation"
)

// DetectorConfig maps the configuration onto schema detection settings.
func DetectorConfig(c *config.Config) schema.Config {
	cfg := schema.DefaultConfig()
	if c.Thresholds.CategoricalRatio > 0 {
		cfg.CategoricalRatio = c.Thresholds.CategoricalRatio
	}
	cfg.Workers = c.Pipeline.Workers
	return cfg
}

// Thresholds maps the configuration onto validator cutoffs.
func Thresholds(c *config.Config) validation.Thresholds {
	t := c.Thresholds
	return validation.Thresholds{
		NullWarningPct: t.NullWarningPct,
		NullErrorPct:   t.NullErrorPct,
		MinColumns:     t.MinColumns,
		MaxColumns:     t.MaxColumns,
		DateFloorYear:  t.DateFloorYear,
		ShortRangeDays: t.ShortRangeDays,
		ZeroSharePct:   t.ZeroSharePct,
	}
}

// UploadConfig maps the configuration onto upload admission rules.
func UploadConfig(c *config.Config) upload.Config {
	cfg := upload.DefaultConfig()
	if c.Upload.MaxSizeMB > 0 {
		cfg.MaxSizeBytes = c.Upload.MaxSizeMB << 20
	}
	if len(c.Upload.AllowedExtensions) > 0 {
		cfg.AllowedExtensions = c.Upload.AllowedExtensions
	}
	return cfg
}

// CleaningOptions maps the configuration onto cleaner options.
func CleaningOptions(c *config.Config) (cleaner.Options, error) {
	cc := c.Cleaning
	keep, err := cleaner.ParseDuplicateKeep(cc.DuplicateKeep)
	if err != nil {
		return cleaner.Options{}, fmt.Errorf("cleaning.duplicate_keep: %w", err)
	}
	method, err := cleaner.ParseOutlierMethod(cc.OutlierMethod)
	if err != nil {
		return cleaner.Options{}, fmt.Errorf("cleaning.outlier_method: %w", err)
	}

	opts := cleaner.DefaultOptions()
	opts.RemoveDuplicates = cc.RemoveDuplicates
	opts.DuplicateKeep = keep
	opts.DetectOutliers = cc.DetectOutliers
	opts.OutlierMethod = method
	opts.OutlierThreshold = cc.OutlierThreshold
	opts.RemoveOutliers = cc.RemoveOutliers
	opts.FlagFutureDates = cc.FlagFutureDates
	opts.FlagStaleDates = cc.FlagStaleDates
	opts.FlagNegativeQuantities = cc.FlagNegativeQuantities
	opts.FlagZeroQuantities = cc.FlagZeroQuantities
	opts.FlagZeroPrices = cc.FlagZeroPrices
	opts.FlagPriceJumps = cc.FlagPriceJumps
	opts.PriceJumpBySKU = cc.PriceJumpBySKU
	if c.Thresholds.PriceJumpPct > 0 {
		opts.PriceJumpPct = c.Thresholds.PriceJumpPct
	}
	if c.Thresholds.DateFloorYear > 0 {
		opts.DateFloorYear = c.Thresholds.DateFloorYear
	}
	if c.Thresholds.RevenueEpsilon > 0 {
		opts.RevenueEpsilon = c.Thresholds.RevenueEpsilon
	}
	opts.ChunkSize = c.Pipeline.ChunkSize
	opts.Workers = c.Pipeline.Workers
	return opts, nil
}

// TransformOptions maps the configuration onto transformer options.
func TransformOptions(c *config.Config) (transform.Options, error) {
	tc := c.Transform
	enc, err := transform.ParseCategoryEncoding(tc.CategoryEncoding)
	if err != nil {
		return transform.Options{}, fmt.Errorf("transform.category_encoding: %w", err)
	}
	period, err := transform.ParsePeriod(tc.AggregatePeriod)
	if err != nil {
		return transform.Options{}, fmt.Errorf("transform.aggregate_period: %w", err)
	}

	opts := transform.DefaultOptions()
	opts.DerivedMetrics = tc.DerivedMetrics
	opts.CategoryEncoding = enc
	opts.AggregatePeriod = period
	opts.Currency = transform.CurrencyOptions{
		Enabled: tc.Currency.Enabled,
		Source:  tc.Currency.Source,
		Target:  tc.Currency.Target,
		Rate:    tc.Currency.Rate,
		Rates:   tc.Currency.Rates,
	}
	return opts, nil
}

// ProcessingOptions maps the configuration onto a full run configuration.
func ProcessingOptions(c *config.Config) (pipeline.ProcessingOptions, error) {
	cleaning, err := CleaningOptions(c)
	if err != nil {
		return pipeline.ProcessingOptions{}, err
	}
	tr, err := TransformOptions(c)
	if err != nil {
		return pipeline.ProcessingOptions{}, err
	}
	p := c.Pipeline
	return pipeline.ProcessingOptions{
		Cleaning:          cleaning,
		Transform:         tr,
		ChunkSize:         p.ChunkSize,
		BatchSize:         p.BatchSize,
		RollbackOnFailure: p.RollbackOnFailure,
		MaxErrorRecords:   p.MaxErrorRecords,
	}, nil
}
