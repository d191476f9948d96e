package transform

import (
	"github.com/shopspring/decimal"

	"github.com/skuflow/skuflow/pkg/cleaner"
	"github.com/skuflow/skuflow/pkg/model"
)

var hundred = decimal.NewFromInt(100)

// CalculateDerivedMetrics fills revenue where it is missing and computes
// discount and margin percentages. records[i] must come from rows[i].
func CalculateDerivedMetrics(records []model.SalesRecord, rows []cleaner.Row) {
	for i := range records {
		rec := &records[i]
		if rec.SalesRevenue == nil && rec.SalesQuantity != nil && rec.UnitPrice != nil {
			rec.SalesRevenue = Revenue(*rec.SalesQuantity, *rec.UnitPrice)
		}
		if i >= len(rows) || rec.UnitPrice == nil {
			continue
		}

		price := decimal.NewFromFloat(*rec.UnitPrice)
		if lp := rows[i].ListPrice; lp != nil && *lp > 0 {
			list := decimal.NewFromFloat(*lp)
			rec.DiscountPct = round(list.Sub(price).Div(list).Mul(hundred), 2)
		}
		if c := rows[i].Cost; c != nil && *rec.UnitPrice > 0 {
			cost := decimal.NewFromFloat(*c)
			rec.ProfitMargin = round(price.Sub(cost).Div(price).Mul(hundred), 2)
		}
	}
}

// Revenue returns quantity times price rounded to cents.
func Revenue(quantity, price float64) *float64 {
	return round(decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(price)), 2)
}
