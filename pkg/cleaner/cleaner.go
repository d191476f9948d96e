// Package cleaner standardizes uploaded rows into typed sales rows, resolves
// duplicates and flags anomalies.
package cleaner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/model"
	"github.com/skuflow/skuflow/pkg/schema"
	"github.com/skuflow/skuflow/pkg/table"
	"github.com/skuflow/skuflow/pkg/validation"
)

// Issue types raised while cleaning.
const (
	IssueRowsExcluded      = "rows_excluded"
	IssueUnparseableValues = "unparseable_values"
	IssueDuplicatesRemoved = "duplicates_removed"
	IssueOutliersRemoved   = "outliers_removed"
)

// Removal reasons.
const (
	ReasonDuplicate = "duplicate"
	ReasonOutlier   = "outlier"
)

// Row is one standardized sales row. Nil pointers are missing values.
type Row struct {
	Index     int // zero-based row in the source table
	Date      time.Time
	SKU       string
	Quantity  *float64
	Price     *float64
	Revenue   *float64
	Stock     *float64
	ListPrice *float64
	Cost      *float64
	Category  *string
	Flags     model.FlagSet
}

// RowError records a row excluded from the output.
type RowError struct {
	Row     int
	Column  string
	Message string
}

// Removal records a valid row dropped by duplicate or outlier removal.
type Removal struct {
	Row    int
	Reason string
}

// CleanedTable is the cleaner output.
type CleanedTable struct {
	Rows              []Row
	InputRows         int
	Failed            []RowError
	Removed           []Removal
	DuplicatesRemoved int
	OutliersRemoved   int
}

// Anomalous returns the number of rows carrying at least one flag.
func (t *CleanedTable) Anomalous() int {
	n := 0
	for _, r := range t.Rows {
		if len(r.Flags) > 0 {
			n++
		}
	}
	return n
}

// ToRaw re-materializes the rows as a RawTable with canonical headers.
// Optional columns with no values at all are omitted.
func (t *CleanedTable) ToRaw() *table.RawTable {
	rows := make([]table.Canonical, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = table.Canonical{
			Date:      r.Date,
			SKU:       r.SKU,
			Quantity:  r.Quantity,
			Price:     r.Price,
			Revenue:   r.Revenue,
			Stock:     r.Stock,
			Category:  r.Category,
			ListPrice: r.ListPrice,
			Cost:      r.Cost,
		}
	}
	return table.FromCanonical(rows)
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cleaner) { c.logger = l }
}

// WithClock overrides the clock used for future-date flags.
func WithClock(now func() time.Time) Option {
	return func(c *Cleaner) { c.now = now }
}

// Cleaner turns a raw table into standardized rows.
type Cleaner struct {
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Cleaner.
func New(opts ...Option) *Cleaner {
	c := &Cleaner{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clean standardizes raw according to the roles in s and opts. Row-level
// problems are recorded on the result; only schema problems and
// cancellation are returned as errors.
func (c *Cleaner) Clean(ctx context.Context, raw *table.RawTable, s *schema.TableSchema, opts Options) (*CleanedTable, []validation.Issue, error) {
	if raw == nil || s == nil {
		return nil, nil, skerrors.Schema("cleaner requires a table and its schema")
	}
	if len(opts.ColumnMapping) > 0 {
		mapped, err := s.WithMapping(opts.ColumnMapping)
		if err != nil {
			return nil, nil, skerrors.Wrap(err, skerrors.CodeSchema, "invalid column mapping")
		}
		s = mapped
	}

	roles := s.Roles()
	for _, required := range []schema.Mapping{schema.MappingDate, schema.MappingSKU} {
		if _, ok := roles[required]; !ok {
			return nil, nil, skerrors.Schema(fmt.Sprintf("no column is mapped to %s", required)).
				WithContext("role", string(required))
		}
	}
	cols := resolveColumns(raw, s, roles)

	start := time.Now()
	std, err := c.standardize(ctx, raw, cols, opts)
	if err != nil {
		return nil, nil, err
	}

	out := &CleanedTable{InputRows: raw.Rows(), Failed: std.failed}
	var issues []validation.Issue
	if n := len(std.failed); n > 0 {
		issues = append(issues, validation.Issue{
			Severity:   validation.SeverityWarning,
			Type:       IssueRowsExcluded,
			Message:    fmt.Sprintf("%d row(s) excluded for a missing or invalid date or SKU", n),
			Suggestion: "Fill in the date and SKU for every row",
		})
	}
	for _, col := range cols.numeric() {
		if n := std.unparseable[col.index]; n > 0 {
			issues = append(issues, validation.Issue{
				Severity:   validation.SeverityInfo,
				Type:       IssueUnparseableValues,
				Column:     col.name,
				Message:    fmt.Sprintf("%d value(s) in %q could not be parsed and were set to missing", n, col.name),
				Suggestion: "Use plain numbers without units",
			})
		}
	}

	rows := std.rows
	if err := ctx.Err(); err != nil {
		return nil, nil, skerrors.ContextCanceled("clean", err)
	}
	rows, dropped := resolveDuplicates(rows, opts)
	out.DuplicatesRemoved = len(dropped)
	for _, idx := range dropped {
		out.Removed = append(out.Removed, Removal{Row: idx, Reason: ReasonDuplicate})
	}
	if len(dropped) > 0 {
		issues = append(issues, validation.Issue{
			Severity: validation.SeverityInfo,
			Type:     IssueDuplicatesRemoved,
			Message:  fmt.Sprintf("%d duplicate row(s) removed (keep %s)", len(dropped), opts.DuplicateKeep),
		})
	}

	c.flagAnomalies(rows, opts)

	if opts.DetectOutliers && opts.RemoveOutliers {
		kept := rows[:0:0]
		for _, r := range rows {
			if r.Flags.Has(model.FlagOutlier) {
				out.Removed = append(out.Removed, Removal{Row: r.Index, Reason: ReasonOutlier})
				continue
			}
			kept = append(kept, r)
		}
		out.OutliersRemoved = len(rows) - len(kept)
		rows = kept
		if out.OutliersRemoved > 0 {
			issues = append(issues, validation.Issue{
				Severity: validation.SeverityInfo,
				Type:     IssueOutliersRemoved,
				Message:  fmt.Sprintf("%d outlier row(s) removed (%s)", out.OutliersRemoved, opts.OutlierMethod),
			})
		}
	}
	out.Rows = rows

	c.logger.Debug("cleaned table",
		zap.Int("input_rows", out.InputRows),
		zap.Int("rows", len(out.Rows)),
		zap.Int("failed", len(out.Failed)),
		zap.Int("duplicates_removed", out.DuplicatesRemoved),
		zap.Int("outliers_removed", out.OutliersRemoved),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, issues, nil
}

// column binds a role to its source column.
type column struct {
	role  schema.Mapping
	index int
	name  string
}

// columns is the resolved role to column binding. Index -1 means absent.
type columns struct {
	date, sku, quantity, price, revenue, stock, listPrice, cost, category column
}

func (c columns) numeric() []column {
	var out []column
	for _, col := range []column{c.quantity, c.price, c.revenue, c.stock, c.listPrice, c.cost} {
		if col.index >= 0 {
			out = append(out, col)
		}
	}
	return out
}

func resolveColumns(raw *table.RawTable, s *schema.TableSchema, roles map[schema.Mapping]int) columns {
	bind := func(m schema.Mapping) column {
		i, ok := roles[m]
		if !ok || i >= raw.Columns() {
			return column{role: m, index: -1}
		}
		return column{role: m, index: i, name: s.Columns[i].Name}
	}
	return columns{
		date:      bind(schema.MappingDate),
		sku:       bind(schema.MappingSKU),
		quantity:  bind(schema.MappingQuantity),
		price:     bind(schema.MappingPrice),
		revenue:   bind(schema.MappingRevenue),
		stock:     bind(schema.MappingStock),
		listPrice: bind(schema.MappingListPrice),
		cost:      bind(schema.MappingCost),
		category:  bind(schema.MappingCategory),
	}
}
