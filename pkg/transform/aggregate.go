package transform

import (
	"time"

	"github.com/shopspring/decimal"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/model"
)

// PeriodStart returns the first day of the period containing d. Weeks start
// on Monday.
func PeriodStart(d time.Time, p Period) (time.Time, error) {
	y, m, day := d.Date()
	switch p {
	case PeriodDay:
		return time.Date(y, m, day, 0, 0, 0, 0, time.UTC), nil
	case PeriodWeek:
		offset := (int(d.Weekday()) + 6) % 7
		return time.Date(y, m, day-offset, 0, 0, 0, 0, time.UTC), nil
	case PeriodMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC), nil
	default:
		return time.Time{}, skerrors.Newf(skerrors.CodeTransform, "unsupported aggregation period %q", p)
	}
}

type aggKey struct {
	start time.Time
	sku   string
}

type aggregate struct {
	rec      model.SalesRecord
	qty, rev decimal.Decimal
	hasQty   bool
	hasRev   bool
}

// AggregateByPeriod collapses records to one per (period, sku). Quantity and
// revenue are summed, unit price becomes revenue over quantity, flags are
// unioned and the first category and last stock level win. Output keeps the
// order in which each group first appears.
func AggregateByPeriod(t *Table, p Period) error {
	groups := make(map[aggKey]*aggregate)
	var order []*aggregate

	for _, rec := range t.Records {
		start, err := PeriodStart(rec.Date, p)
		if err != nil {
			return err
		}
		k := aggKey{start: start, sku: rec.SKUID}
		g, ok := groups[k]
		if !ok {
			g = &aggregate{rec: model.SalesRecord{
				UploadID:     rec.UploadID,
				Date:         start,
				SKUID:        rec.SKUID,
				Category:     rec.Category,
				CategoryCode: rec.CategoryCode,
				Currency:     rec.Currency,
				CreatedAt:    rec.CreatedAt,
			}}
			groups[k] = g
			order = append(order, g)
		}

		if rec.SalesQuantity != nil {
			g.qty = g.qty.Add(decimal.NewFromFloat(*rec.SalesQuantity))
			g.hasQty = true
		}
		if rec.SalesRevenue != nil {
			g.rev = g.rev.Add(decimal.NewFromFloat(*rec.SalesRevenue))
			g.hasRev = true
		}
		if rec.StockLevel != nil {
			g.rec.StockLevel = rec.StockLevel
		}
		if g.rec.Category == nil && rec.Category != nil {
			g.rec.Category = rec.Category
			g.rec.CategoryCode = rec.CategoryCode
		}
		g.rec.AnomalyFlags.Union(rec.AnomalyFlags)
	}

	out := make([]model.SalesRecord, len(order))
	for i, g := range order {
		rec := g.rec
		if g.hasQty {
			rec.SalesQuantity = round(g.qty, 4)
		}
		if g.hasRev {
			rec.SalesRevenue = round(g.rev, 2)
		}
		if g.hasQty && g.hasRev && !g.qty.IsZero() {
			rec.UnitPrice = round(g.rev.Div(g.qty), 4)
		}
		rec.IsAnomaly = len(rec.AnomalyFlags) > 0
		out[i] = rec
	}
	t.Records = out
	t.Period = p
	return nil
}
