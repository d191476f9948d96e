// Package model defines the canonical records produced by the pipeline and
// the upload state shared with storage collaborators.
package model

import (
	"sort"
	"strings"
	"time"
)

// Anomaly flag names.
const (
	FlagFutureDate       = "future_date"
	FlagStaleDate        = "stale_date"
	FlagNegativeQuantity = "negative_quantity"
	FlagZeroQuantity     = "zero_quantity"
	FlagNegativePrice    = "negative_price"
	FlagZeroPrice        = "zero_price"
	FlagPriceJump        = "price_jump"
	FlagOutlier          = "outlier"
	FlagInvalidSKU       = "invalid_sku"
	FlagRevenueMismatch  = "revenue_mismatch"
	FlagDuplicate        = "duplicate"
)

// FlagSet is an ordered set of anomaly flag names.
type FlagSet []string

// Add inserts a flag if it is not present.
func (f *FlagSet) Add(flag string) {
	if !f.Has(flag) {
		*f = append(*f, flag)
	}
}

// Has reports whether flag is in the set.
func (f FlagSet) Has(flag string) bool {
	for _, x := range f {
		if x == flag {
			return true
		}
	}
	return false
}

// Union adds every flag of o.
func (f *FlagSet) Union(o FlagSet) {
	for _, x := range o {
		f.Add(x)
	}
}

// Sorted returns the flags in lexical order.
func (f FlagSet) Sorted() []string {
	out := append([]string(nil), f...)
	sort.Strings(out)
	return out
}

// String joins the sorted flags with commas.
func (f FlagSet) String() string {
	return strings.Join(f.Sorted(), ",")
}

// ParseFlags splits a comma-joined flag list.
func ParseFlags(s string) FlagSet {
	var f FlagSet
	for _, x := range strings.Split(s, ",") {
		if x = strings.TrimSpace(x); x != "" {
			f.Add(x)
		}
	}
	return f
}

// SalesRecord is the canonical per-row output of the pipeline.
// Nil pointers are missing values.
type SalesRecord struct {
	UploadID      string    `json:"upload_id"`
	Date          time.Time `json:"date"`
	SKUID         string    `json:"sku_id"`
	SalesQuantity *float64  `json:"sales_quantity"`
	UnitPrice     *float64  `json:"unit_price"`
	SalesRevenue  *float64  `json:"sales_revenue"`
	StockLevel    *float64  `json:"stock_level"`
	Category      *string   `json:"category"`
	CategoryCode  *int      `json:"category_code,omitempty"`
	DiscountPct   *float64  `json:"discount_pct,omitempty"`
	ProfitMargin  *float64  `json:"profit_margin,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	IsAnomaly     bool      `json:"is_anomaly"`
	AnomalyFlags  FlagSet   `json:"anomaly_flags"`
	CreatedAt     time.Time `json:"created_at"`
}

// Columns is the persisted column order of a SalesRecord.
var Columns = []string{
	"upload_id", "date", "sku_id", "sales_quantity", "unit_price", "sales_revenue",
	"stock_level", "category", "category_code", "discount_pct", "profit_margin",
	"currency", "is_anomaly", "anomaly_flags", "created_at",
}

// Values returns the record as driver values aligned to Columns. Flags are
// comma-joined; callers with array support may replace the value.
func (r *SalesRecord) Values() []any {
	return []any{
		r.UploadID, r.Date, r.SKUID,
		nullable(r.SalesQuantity), nullable(r.UnitPrice), nullable(r.SalesRevenue),
		nullable(r.StockLevel), nullable(r.Category), nullable(r.CategoryCode),
		nullable(r.DiscountPct), nullable(r.ProfitMargin),
		r.Currency, r.IsAnomaly, r.AnomalyFlags.String(), r.CreatedAt,
	}
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
