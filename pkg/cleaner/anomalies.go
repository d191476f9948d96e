package cleaner

import (
	"math"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/skuflow/skuflow/pkg/model"
	"github.com/skuflow/skuflow/pkg/table"
)

// maxSKULength bounds a plausible identifier.
const maxSKULength = 100

// flagAnomalies annotates rows in place. Flags never remove a row.
func (c *Cleaner) flagAnomalies(rows []Row, opts Options) {
	today := table.Truncate(c.now())
	floor := time.Date(opts.DateFloorYear, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range rows {
		r := &rows[i]
		if opts.FlagFutureDates && r.Date.After(today) {
			r.Flags.Add(model.FlagFutureDate)
		}
		if opts.FlagStaleDates && opts.DateFloorYear > 0 && r.Date.Before(floor) {
			r.Flags.Add(model.FlagStaleDate)
		}
		if q := r.Quantity; q != nil {
			if opts.FlagNegativeQuantities && *q < 0 {
				r.Flags.Add(model.FlagNegativeQuantity)
			}
			if opts.FlagZeroQuantities && *q == 0 {
				r.Flags.Add(model.FlagZeroQuantity)
			}
		}
		if p := r.Price; p != nil {
			if *p < 0 {
				r.Flags.Add(model.FlagNegativePrice)
			}
			if opts.FlagZeroPrices && *p == 0 {
				r.Flags.Add(model.FlagZeroPrice)
			}
		}
		if !validSKU(r.SKU) {
			r.Flags.Add(model.FlagInvalidSKU)
		}
		if r.Revenue != nil && r.Quantity != nil && r.Price != nil {
			if math.Abs(*r.Revenue-*r.Quantity**r.Price) > opts.RevenueEpsilon {
				r.Flags.Add(model.FlagRevenueMismatch)
			}
		}
	}

	if opts.FlagPriceJumps {
		flagPriceJumps(rows, opts)
	}
	if opts.DetectOutliers {
		flagOutliers(rows, opts)
	}
}

// validSKU accepts letters and digits of any script, space and the
// separators - _ . / #.
func validSKU(s string) bool {
	if utf8.RuneCountInString(s) > maxSKULength {
		return false
	}
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
		case r == '-', r == '_', r == '.', r == '/', r == '#', r == ' ':
		default:
			return false
		}
	}
	return true
}

// flagPriceJumps flags prices deviating from the reference median by more
// than PriceJumpPct. The reference is the column median, or the row's SKU
// median when PriceJumpBySKU is set.
func flagPriceJumps(rows []Row, opts Options) {
	limit := opts.PriceJumpPct / 100
	if limit <= 0 {
		return
	}

	groups := map[string][]float64{}
	for _, r := range rows {
		if r.Price != nil && *r.Price > 0 {
			key := ""
			if opts.PriceJumpBySKU {
				key = r.SKU
			}
			groups[key] = append(groups[key], *r.Price)
		}
	}
	medians := make(map[string]float64, len(groups))
	for k, v := range groups {
		medians[k] = quantile(sorted(v), 0.5)
	}

	for i := range rows {
		r := &rows[i]
		if r.Price == nil || *r.Price <= 0 {
			continue
		}
		key := ""
		if opts.PriceJumpBySKU {
			key = r.SKU
		}
		m := medians[key]
		if m > 0 && math.Abs(*r.Price-m)/m > limit {
			r.Flags.Add(model.FlagPriceJump)
		}
	}
}
