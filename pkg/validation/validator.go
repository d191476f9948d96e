package validation

import (
	"fmt"
	"time"

	"github.com/skuflow/skuflow/pkg/schema"
	"github.com/skuflow/skuflow/pkg/table"
)

// Issue types.
const (
	TypeEmptyFile        = "empty_file"
	TypeTooFewColumns    = "too_few_columns"
	TypeTooManyColumns   = "too_many_columns"
	TypeMissingColumn    = "missing_required_column"
	TypeExcessiveMissing = "excessive_missing_values"
	TypeHighMissing      = "high_missing_values"
	TypeMissingValues    = "missing_values"
	TypeTypeMismatch     = "type_mismatch"
	TypeConstantColumn   = "constant_column"
	TypeInvalidDates     = "invalid_dates"
	TypeFutureDates      = "future_dates"
	TypeVeryOldDates     = "very_old_dates"
	TypeShortDateRange   = "short_date_range"
	TypeNegativeValues   = "negative_values"
	TypeManyZeros        = "many_zeros"
)

// Thresholds holds the configurable cutoffs used by the checks.
type Thresholds struct {
	NullWarningPct float64
	NullErrorPct   float64
	MinColumns     int
	MaxColumns     int
	DateFloorYear  int
	ShortRangeDays int
	ZeroSharePct   float64
}

// DefaultThresholds returns the default cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NullWarningPct: 30,
		NullErrorPct:   80,
		MinColumns:     2,
		MaxColumns:     50,
		DateFloorYear:  2000,
		ShortRangeDays: 30,
		ZeroSharePct:   50,
	}
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the clock used for future-date checks.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// Validator runs the check battery.
type Validator struct {
	th  Thresholds
	now func() time.Time
}

// NewValidator creates a validator.
func NewValidator(th Thresholds, opts ...Option) *Validator {
	v := &Validator{th: th, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks t against its schema. Each check runs independently.
// A nil schema is treated as an empty one.
func (v *Validator) Validate(t *table.RawTable, s *schema.TableSchema) *Report {
	if s == nil {
		s = &schema.TableSchema{}
		if t != nil {
			s.ColumnCount = t.Columns()
		}
	}

	var issues []Issue
	issues = append(issues, v.checkStructure(s)...)
	issues = append(issues, v.checkRequiredRoles(s)...)
	issues = append(issues, v.checkNulls(s)...)
	if t != nil && t.Rows() > 0 {
		issues = append(issues, v.checkTypeMismatch(t, s)...)
		issues = append(issues, v.checkDegenerate(s)...)
		issues = append(issues, v.checkDateRange(t, s)...)
		issues = append(issues, v.checkNumericValues(t, s)...)
	}
	return NewReport(issues)
}

func (v *Validator) checkStructure(s *schema.TableSchema) []Issue {
	var issues []Issue
	if s.RowCount == 0 {
		issues = append(issues, Issue{
			Severity:   SeverityError,
			Type:       TypeEmptyFile,
			Message:    "File contains no data rows",
			Suggestion: "Upload a file with at least one data row",
		})
	}
	if s.ColumnCount < v.th.MinColumns {
		issues = append(issues, Issue{
			Severity:   SeverityError,
			Type:       TypeTooFewColumns,
			Message:    fmt.Sprintf("File has %d column(s); at least %d are required", s.ColumnCount, v.th.MinColumns),
			Suggestion: "Sales data needs at least date and SKU columns",
		})
	}
	if v.th.MaxColumns > 0 && s.ColumnCount > v.th.MaxColumns {
		issues = append(issues, Issue{
			Severity:   SeverityWarning,
			Type:       TypeTooManyColumns,
			Message:    fmt.Sprintf("File has %d columns, which is unusual", s.ColumnCount),
			Suggestion: "Ensure the first row contains column headers",
		})
	}
	return issues
}

func (v *Validator) checkRequiredRoles(s *schema.TableSchema) []Issue {
	var issues []Issue
	if s.SuggestedDateColumn == "" {
		issues = append(issues, Issue{
			Severity:   SeverityError,
			Type:       TypeMissingColumn,
			Message:    "No column could be identified as the sale date",
			Suggestion: "Name the date column \"date\" or map it explicitly",
		})
	}
	if s.SuggestedSKUColumn == "" {
		issues = append(issues, Issue{
			Severity:   SeverityError,
			Type:       TypeMissingColumn,
			Message:    "No column could be identified as the SKU",
			Suggestion: "Name the product column \"sku\" or map it explicitly",
		})
	}
	return issues
}

func (v *Validator) checkNulls(s *schema.TableSchema) []Issue {
	var issues []Issue
	for _, c := range s.Columns {
		if !c.SuggestedMapping.IsMapped() || c.NullCount == 0 {
			continue
		}
		msg := fmt.Sprintf("Column %q has %.1f%% missing values", c.Name, c.NullPercentage)
		switch {
		case c.NullPercentage > v.th.NullErrorPct:
			issues = append(issues, Issue{SeverityError, TypeExcessiveMissing, c.Name, msg,
				"This column is mostly empty; map a different column or fix the source"})
		case c.NullPercentage > v.th.NullWarningPct:
			issues = append(issues, Issue{SeverityWarning, TypeHighMissing, c.Name, msg,
				"Consider filling missing values before upload"})
		default:
			issues = append(issues, Issue{SeverityInfo, TypeMissingValues, c.Name, msg,
				"Missing values will be handled during processing"})
		}
	}
	return issues
}

func (v *Validator) checkTypeMismatch(t *table.RawTable, s *schema.TableSchema) []Issue {
	var issues []Issue
	for i, c := range s.Columns {
		if !c.SuggestedMapping.IsNumeric() {
			continue
		}
		bad := 0
		for _, cell := range t.Column(i) {
			if cell.IsNull() {
				continue
			}
			if _, ok := table.Number(cell); !ok {
				bad++
			}
		}
		if bad > 0 {
			issues = append(issues, Issue{
				Severity:   SeverityWarning,
				Type:       TypeTypeMismatch,
				Column:     c.Name,
				Message:    fmt.Sprintf("%d value(s) in %q are not numeric", bad, c.Name),
				Suggestion: "Non-numeric values will be treated as missing",
			})
		}
	}
	return issues
}

func (v *Validator) checkDegenerate(s *schema.TableSchema) []Issue {
	var issues []Issue
	for _, c := range s.Columns {
		if !c.SuggestedMapping.IsMapped() || c.SuggestedMapping == schema.MappingCategory {
			continue
		}
		if c.UniqueCount == 1 {
			issues = append(issues, Issue{
				Severity:   SeverityInfo,
				Type:       TypeConstantColumn,
				Column:     c.Name,
				Message:    fmt.Sprintf("Column %q has a single distinct value", c.Name),
				Suggestion: "Check that the right column is mapped",
			})
		}
	}
	return issues
}

func (v *Validator) checkDateRange(t *table.RawTable, s *schema.TableSchema) []Issue {
	idx := t.Index(s.SuggestedDateColumn)
	if s.SuggestedDateColumn == "" || idx < 0 {
		return nil
	}
	col := s.SuggestedDateColumn

	today := table.Truncate(v.now())
	floor := time.Date(v.th.DateFloorYear, 1, 1, 0, 0, 0, 0, time.UTC)

	var (
		minDate, maxDate    time.Time
		parsed, future, old int
		nonNull             int
	)
	for _, cell := range t.Column(idx) {
		if cell.IsNull() {
			continue
		}
		nonNull++
		d, ok := table.DateOf(cell)
		if !ok {
			continue
		}
		if parsed == 0 || d.Before(minDate) {
			minDate = d
		}
		if parsed == 0 || d.After(maxDate) {
			maxDate = d
		}
		parsed++
		if d.After(today) {
			future++
		}
		if d.Before(floor) {
			old++
		}
	}

	if nonNull == 0 {
		return nil
	}
	if parsed == 0 {
		return []Issue{{
			Severity:   SeverityError,
			Type:       TypeInvalidDates,
			Column:     col,
			Message:    fmt.Sprintf("Could not parse dates in column %q", col),
			Suggestion: "Ensure dates are in YYYY-MM-DD format",
		}}
	}

	var issues []Issue
	if future > 0 {
		issues = append(issues, Issue{SeverityWarning, TypeFutureDates, col,
			fmt.Sprintf("%d row(s) have future dates", future),
			"Future dates may indicate data entry errors"})
	}
	if old > 0 {
		issues = append(issues, Issue{SeverityWarning, TypeVeryOldDates, col,
			fmt.Sprintf("%d row(s) have dates before %d", old, v.th.DateFloorYear),
			"Old dates may indicate incorrect data"})
	}
	if days := int(maxDate.Sub(minDate).Hours() / 24); days < v.th.ShortRangeDays {
		issues = append(issues, Issue{SeverityWarning, TypeShortDateRange, col,
			fmt.Sprintf("Data spans only %d day(s)", days),
			"Forecasting works best with at least 3 months of data"})
	}
	return issues
}

func (v *Validator) checkNumericValues(t *table.RawTable, s *schema.TableSchema) []Issue {
	var issues []Issue
	rows := t.Rows()
	for i, c := range s.Columns {
		if !c.SuggestedMapping.IsNumeric() {
			continue
		}
		negative, zero := 0, 0
		for _, cell := range t.Column(i) {
			n, ok := table.Number(cell)
			if !ok {
				continue
			}
			if n < 0 {
				negative++
			} else if n == 0 {
				zero++
			}
		}
		if negative > 0 {
			issues = append(issues, Issue{SeverityInfo, TypeNegativeValues, c.Name,
				fmt.Sprintf("%d row(s) have negative values in %q", negative, c.Name),
				"Negative values may be valid for returns or discounts"})
		}
		if float64(zero) > float64(rows)*v.th.ZeroSharePct/100 {
			issues = append(issues, Issue{SeverityWarning, TypeManyZeros, c.Name,
				fmt.Sprintf("More than %.0f%% of values in %q are zero", v.th.ZeroSharePct, c.Name),
				"Many zeros may indicate missing data coded as zero"})
		}
	}
	return issues
}
