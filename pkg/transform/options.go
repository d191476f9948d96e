package transform

import (
	"fmt"
	"strings"
)

// CategoryEncoding selects how categories are encoded.
type CategoryEncoding string

const (
	EncodingNone   CategoryEncoding = "none"
	EncodingLabel  CategoryEncoding = "label"
	EncodingOneHot CategoryEncoding = "onehot"
)

// ParseCategoryEncoding parses "none", "label" or "onehot".
func ParseCategoryEncoding(s string) (CategoryEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return EncodingNone, nil
	case "label":
		return EncodingLabel, nil
	case "onehot", "one-hot", "one_hot":
		return EncodingOneHot, nil
	default:
		return EncodingNone, fmt.Errorf("unknown category encoding %q (want none, label or onehot)", s)
	}
}

// Period is an aggregation bucket.
type Period string

const (
	PeriodNone  Period = "none"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod parses "none", "day", "week" or "month".
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return PeriodNone, nil
	case "day", "daily", "d":
		return PeriodDay, nil
	case "week", "weekly", "w":
		return PeriodWeek, nil
	case "month", "monthly", "m":
		return PeriodMonth, nil
	default:
		return PeriodNone, fmt.Errorf("unknown aggregation period %q (want day, week or month)", s)
	}
}

// CurrencyOptions configures currency normalization.
type CurrencyOptions struct {
	Enabled bool
	Source  string
	Target  string

	// Rate converts one Source unit into Target. When zero the rate is
	// looked up in Rates by source code.
	Rate  float64
	Rates map[string]float64
}

// Options toggles each transformation step.
type Options struct {
	UploadID         string
	DerivedMetrics   bool
	Currency         CurrencyOptions
	CategoryEncoding CategoryEncoding
	AggregatePeriod  Period
}

// DefaultOptions returns the default transformation configuration.
func DefaultOptions() Options {
	return Options{
		DerivedMetrics:   true,
		CategoryEncoding: EncodingLabel,
		AggregatePeriod:  PeriodNone,
	}
}
