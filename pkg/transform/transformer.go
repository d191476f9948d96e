// Package transform turns cleaned rows into canonical sales records.
package transform

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skuflow/skuflow/pkg/cleaner"
	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/model"
	"github.com/skuflow/skuflow/pkg/table"
)

// Table is the transformer output.
type Table struct {
	Records    []model.SalesRecord
	Categories []string // encoding vocabulary in first-seen order
	Encoding   CategoryEncoding
	Period     Period
	Currency   string
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Transformer) { t.logger = l }
}

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(t *Transformer) { t.now = now }
}

// Transformer applies the transformation steps.
type Transformer struct {
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Transformer.
func New(opts ...Option) *Transformer {
	t := &Transformer{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transform runs derived metrics, currency normalization, category encoding
// and aggregation, in that order. Disabled steps are skipped.
func (t *Transformer) Transform(ct *cleaner.CleanedTable, opts Options) (*Table, error) {
	if ct == nil {
		return nil, skerrors.New(skerrors.CodeTransform, "no cleaned table to transform")
	}

	created := t.now().UTC()
	rows := ct.Rows
	out := &Table{
		Records:  make([]model.SalesRecord, len(rows)),
		Encoding: EncodingNone,
		Period:   PeriodNone,
		Currency: normalizeCode(opts.Currency.Source),
	}
	for i := range rows {
		out.Records[i] = toRecord(&rows[i], opts.UploadID, created)
	}

	if opts.DerivedMetrics {
		CalculateDerivedMetrics(out.Records, rows)
	}
	if err := NormalizeCurrency(out, opts.Currency); err != nil {
		return nil, err
	}
	if opts.CategoryEncoding != "" && opts.CategoryEncoding != EncodingNone {
		EncodeCategories(out, opts.CategoryEncoding)
	}
	if opts.AggregatePeriod != "" && opts.AggregatePeriod != PeriodNone {
		if err := AggregateByPeriod(out, opts.AggregatePeriod); err != nil {
			return nil, err
		}
	}

	t.logger.Debug("transformed records",
		zap.Int("records", len(out.Records)),
		zap.String("encoding", string(out.Encoding)),
		zap.String("period", string(out.Period)),
		zap.String("currency", out.Currency),
	)
	return out, nil
}

func toRecord(r *cleaner.Row, uploadID string, created time.Time) model.SalesRecord {
	rec := model.SalesRecord{
		UploadID:      uploadID,
		Date:          r.Date,
		SKUID:         r.SKU,
		SalesQuantity: r.Quantity,
		UnitPrice:     r.Price,
		SalesRevenue:  r.Revenue,
		StockLevel:    r.Stock,
		Category:      r.Category,
		AnomalyFlags:  append(model.FlagSet(nil), r.Flags...),
		CreatedAt:     created,
	}
	rec.IsAnomaly = len(rec.AnomalyFlags) > 0
	return rec
}

// ToRaw re-materializes the records with canonical headers so the output
// can be profiled and validated again. Optional columns with no values are
// omitted.
func (t *Table) ToRaw() *table.RawTable {
	rows := make([]table.Canonical, len(t.Records))
	for i, r := range t.Records {
		rows[i] = table.Canonical{
			Date:     r.Date,
			SKU:      r.SKUID,
			Quantity: r.SalesQuantity,
			Price:    r.UnitPrice,
			Revenue:  r.SalesRevenue,
			Stock:    r.StockLevel,
			Category: r.Category,
		}
	}
	return table.FromCanonical(rows)
}

// round returns v rounded half away from zero to places decimals.
func round(v decimal.Decimal, places int32) *float64 {
	f := v.Round(places).InexactFloat64()
	return &f
}
