package cleaner

import (
	"fmt"
	"strings"

	"github.com/skuflow/skuflow/pkg/schema"
)

// DuplicateKeep selects which member of a duplicate group survives.
type DuplicateKeep int

const (
	KeepFirst DuplicateKeep = iota
	KeepLast
	KeepNone
)

// String returns the policy name.
func (k DuplicateKeep) String() string {
	switch k {
	case KeepFirst:
		return "first"
	case KeepLast:
		return "last"
	case KeepNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseDuplicateKeep parses "first", "last" or "none".
func ParseDuplicateKeep(s string) (DuplicateKeep, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return KeepFirst, nil
	case "last":
		return KeepLast, nil
	case "none":
		return KeepNone, nil
	default:
		return KeepFirst, fmt.Errorf("unknown duplicate policy %q (want first, last or none)", s)
	}
}

// OutlierMethod selects the outlier statistic.
type OutlierMethod int

const (
	OutlierIQR OutlierMethod = iota
	OutlierZScore
)

// String returns the method name.
func (m OutlierMethod) String() string {
	switch m {
	case OutlierIQR:
		return "iqr"
	case OutlierZScore:
		return "zscore"
	default:
		return "unknown"
	}
}

// DefaultThreshold returns the method's default cutoff.
func (m OutlierMethod) DefaultThreshold() float64 {
	if m == OutlierZScore {
		return 3.0
	}
	return 1.5
}

// ParseOutlierMethod parses "iqr" or "zscore".
func ParseOutlierMethod(s string) (OutlierMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "iqr":
		return OutlierIQR, nil
	case "zscore", "z-score", "z":
		return OutlierZScore, nil
	default:
		return OutlierIQR, fmt.Errorf("unknown outlier method %q (want iqr or zscore)", s)
	}
}

// Options toggles each cleaning step independently.
type Options struct {
	RemoveDuplicates bool
	DuplicateKeep    DuplicateKeep

	DetectOutliers   bool
	OutlierMethod    OutlierMethod
	OutlierThreshold float64 // 0 = method default
	RemoveOutliers   bool

	FlagFutureDates        bool
	FlagStaleDates         bool
	FlagNegativeQuantities bool
	FlagZeroQuantities     bool
	FlagZeroPrices         bool
	FlagPriceJumps         bool

	// PriceJumpPct is the allowed deviation from the median price, in percent.
	PriceJumpPct float64

	// PriceJumpBySKU compares each price with its SKU's median instead of
	// the median of the whole column.
	PriceJumpBySKU bool

	// DateFloorYear is the earliest plausible sale year.
	DateFloorYear int

	// RevenueEpsilon is the tolerated |revenue - qty*price| before a row is
	// flagged revenue_mismatch.
	RevenueEpsilon float64

	// ColumnMapping overrides the schema's suggested roles by column name.
	ColumnMapping map[string]schema.Mapping

	// ChunkSize bounds the rows standardized per worker task.
	ChunkSize int

	// Workers bounds concurrent standardization (0 = GOMAXPROCS).
	Workers int
}

// DefaultOptions returns the default cleaning configuration.
func DefaultOptions() Options {
	return Options{
		RemoveDuplicates:       true,
		DuplicateKeep:          KeepFirst,
		DetectOutliers:         true,
		OutlierMethod:          OutlierIQR,
		FlagFutureDates:        true,
		FlagStaleDates:         true,
		FlagNegativeQuantities: true,
		FlagZeroQuantities:     false,
		FlagZeroPrices:         true,
		FlagPriceJumps:         true,
		PriceJumpPct:           50,
		DateFloorYear:          2000,
		RevenueEpsilon:         0.01,
		ChunkSize:              10000,
	}
}

func (o Options) threshold() float64 {
	if o.OutlierThreshold > 0 {
		return o.OutlierThreshold
	}
	return o.OutlierMethod.DefaultThreshold()
}
