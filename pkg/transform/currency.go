package transform

import (
	"strings"

	"github.com/shopspring/decimal"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
)

// NormalizeCurrency converts monetary fields from the source to the target
// currency. It is a no-op when disabled or when source equals target.
func NormalizeCurrency(t *Table, opts CurrencyOptions) error {
	src, dst := normalizeCode(opts.Source), normalizeCode(opts.Target)
	if !opts.Enabled || dst == "" || src == dst {
		if src == "" {
			src = dst
		}
		t.Currency = src
		stampCurrency(t)
		return nil
	}

	rate := opts.Rate
	if rate == 0 {
		for code, r := range opts.Rates {
			if normalizeCode(code) == src {
				rate = r
				break
			}
		}
	}
	if rate <= 0 {
		return skerrors.New(skerrors.CodeTransform, "no exchange rate configured").
			WithContext("source", src).
			WithContext("target", dst)
	}

	r := decimal.NewFromFloat(rate)
	convert := func(p *float64, places int32) *float64 {
		if p == nil {
			return nil
		}
		return round(decimal.NewFromFloat(*p).Mul(r), places)
	}
	for i := range t.Records {
		rec := &t.Records[i]
		rec.UnitPrice = convert(rec.UnitPrice, 4)
		rec.SalesRevenue = convert(rec.SalesRevenue, 2)
	}
	t.Currency = dst
	stampCurrency(t)
	return nil
}

func stampCurrency(t *Table) {
	for i := range t.Records {
		t.Records[i].Currency = t.Currency
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
