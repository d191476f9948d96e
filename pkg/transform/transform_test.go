package transform

import (
	"strings"
	"testing"
	"time"

	"github.com/skuflow/skuflow/pkg/cleaner"
	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/model"
	"github.com/skuflow/skuflow/pkg/table"
)

func f(v float64) *float64 { return &v }
func s(v string) *string   { return &v }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var created = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func run(t *testing.T, rows []cleaner.Row, opts Options) *Table {
	t.Helper()
	out, err := New(WithClock(func() time.Time { return created })).Transform(&cleaner.CleanedTable{Rows: rows, InputRows: len(rows)}, opts)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	return out
}

func TestRevenue(t *testing.T) {
	tests := []struct {
		qty, price float64
		want       float64
	}{
		{3, 9.99, 29.97},
		{0.1, 0.2, 0.02},
		{7, 1.005, 7.04},
		{-2, 5, -10},
	}
	for _, tt := range tests {
		if got := *Revenue(tt.qty, tt.price); got != tt.want {
			t.Errorf("Revenue(%v, %v) = %v, want %v", tt.qty, tt.price, got, tt.want)
		}
	}
}

func TestTransform_DerivedMetrics(t *testing.T) {
	rows := []cleaner.Row{
		{Date: day(2024, 1, 1), SKU: "A", Quantity: f(3), Price: f(9.99)},
		{Date: day(2024, 1, 1), SKU: "B", Quantity: f(2), Price: f(80), Revenue: f(150), ListPrice: f(100), Cost: f(60)},
		{Date: day(2024, 1, 1), SKU: "C", Quantity: f(2)},
	}
	out := run(t, rows, DefaultOptions())

	a, b, c := out.Records[0], out.Records[1], out.Records[2]
	if a.SalesRevenue == nil || *a.SalesRevenue != 29.97 {
		t.Errorf("derived revenue = %v, want 29.97", a.SalesRevenue)
	}
	if *b.SalesRevenue != 150 {
		t.Errorf("source revenue overwritten: %v", *b.SalesRevenue)
	}
	if b.DiscountPct == nil || *b.DiscountPct != 20 {
		t.Errorf("DiscountPct = %v, want 20", b.DiscountPct)
	}
	if b.ProfitMargin == nil || *b.ProfitMargin != 25 {
		t.Errorf("ProfitMargin = %v, want 25", b.ProfitMargin)
	}
	if c.SalesRevenue != nil || a.DiscountPct != nil || a.ProfitMargin != nil {
		t.Error("metrics without inputs must stay missing")
	}
	if !a.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v", a.CreatedAt)
	}
}

func TestTransform_AnomalyInvariant(t *testing.T) {
	rows := []cleaner.Row{
		{Date: day(2024, 1, 1), SKU: "A", Flags: model.FlagSet{model.FlagOutlier}},
		{Date: day(2024, 1, 1), SKU: "B"},
	}
	for _, rec := range run(t, rows, DefaultOptions()).Records {
		if rec.IsAnomaly != (len(rec.AnomalyFlags) > 0) {
			t.Errorf("%s: IsAnomaly = %v with flags %v", rec.SKUID, rec.IsAnomaly, rec.AnomalyFlags)
		}
	}
}

func TestTransform_Currency(t *testing.T) {
	rows := []cleaner.Row{{Date: day(2024, 1, 1), SKU: "A", Quantity: f(2), Price: f(10)}}

	opts := DefaultOptions()
	opts.Currency = CurrencyOptions{Enabled: true, Source: "eur", Target: "USD", Rates: map[string]float64{"EUR": 1.1}}
	out := run(t, rows, opts)
	rec := out.Records[0]
	if *rec.UnitPrice != 11 || *rec.SalesRevenue != 22 || rec.Currency != "USD" {
		t.Errorf("converted = %v %v %s, want 11 22 USD", *rec.UnitPrice, *rec.SalesRevenue, rec.Currency)
	}

	opts.Currency = CurrencyOptions{Enabled: true, Source: "USD", Target: "usd", Rate: 2}
	rec = run(t, rows, opts).Records[0]
	if *rec.UnitPrice != 10 {
		t.Errorf("same currency converted price to %v", *rec.UnitPrice)
	}

	opts.Currency = CurrencyOptions{Enabled: true, Source: "GBP", Target: "USD"}
	_, err := New().Transform(&cleaner.CleanedTable{Rows: rows}, opts)
	if !skerrors.IsCode(err, skerrors.CodeTransform) {
		t.Errorf("missing rate error = %v, want transform error", err)
	}
}

func TestTransform_CategoryEncoding(t *testing.T) {
	rows := []cleaner.Row{
		{Date: day(2024, 1, 1), SKU: "A", Category: s("toys")},
		{Date: day(2024, 1, 1), SKU: "B", Category: s("games")},
		{Date: day(2024, 1, 1), SKU: "C"},
		{Date: day(2024, 1, 1), SKU: "D", Category: s("toys")},
	}

	opts := DefaultOptions()
	opts.CategoryEncoding = EncodingOneHot
	out := run(t, rows, opts)

	if len(out.Categories) != 2 || out.Categories[0] != "toys" || out.Categories[1] != "games" {
		t.Fatalf("Categories = %v", out.Categories)
	}
	wantCodes := []int{0, 1, -1, 0}
	for i, want := range wantCodes {
		code := out.Records[i].CategoryCode
		if want < 0 {
			if code != nil {
				t.Errorf("record %d code = %d, want nil", i, *code)
			}
			continue
		}
		if code == nil || *code != want {
			t.Errorf("record %d code = %v, want %d", i, code, want)
		}
	}
	if got := out.OneHot(1); got[0] != 0 || got[1] != 1 {
		t.Errorf("OneHot(1) = %v", got)
	}
	if got := out.OneHotColumns(); got[0] != "category_toys" || got[1] != "category_games" {
		t.Errorf("OneHotColumns() = %v", got)
	}

	opts.CategoryEncoding = EncodingNone
	if out := run(t, rows, opts); out.Records[0].CategoryCode != nil {
		t.Error("encoding none must not assign codes")
	}
}

func TestPeriodStart(t *testing.T) {
	d := day(2024, 3, 14) // Thursday
	tests := []struct {
		p    Period
		want time.Time
	}{
		{PeriodDay, day(2024, 3, 14)},
		{PeriodWeek, day(2024, 3, 11)},
		{PeriodMonth, day(2024, 3, 1)},
	}
	for _, tt := range tests {
		got, err := PeriodStart(d, tt.p)
		if err != nil || !got.Equal(tt.want) {
			t.Errorf("PeriodStart(%s) = %v, %v, want %v", tt.p, got, err, tt.want)
		}
	}
	if got, _ := PeriodStart(day(2024, 3, 17), PeriodWeek); !got.Equal(day(2024, 3, 11)) {
		t.Errorf("Sunday week start = %v, want 2024-03-11", got)
	}
}

func TestTransform_Aggregate(t *testing.T) {
	rows := []cleaner.Row{
		{Date: day(2024, 3, 11), SKU: "A", Quantity: f(2), Price: f(10), Category: s("toys")},
		{Date: day(2024, 3, 13), SKU: "A", Quantity: f(1), Price: f(16), Flags: model.FlagSet{model.FlagPriceJump}},
		{Date: day(2024, 3, 12), SKU: "B", Quantity: f(5), Price: f(1)},
		{Date: day(2024, 3, 18), SKU: "A", Quantity: f(1), Price: f(10)},
	}
	opts := DefaultOptions()
	opts.AggregatePeriod = PeriodWeek
	out := run(t, rows, opts)

	if len(out.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(out.Records))
	}
	a := out.Records[0]
	if a.SKUID != "A" || !a.Date.Equal(day(2024, 3, 11)) {
		t.Errorf("first group = %s %v", a.SKUID, a.Date)
	}
	if *a.SalesQuantity != 3 || *a.SalesRevenue != 36 || *a.UnitPrice != 12 {
		t.Errorf("sums = %v %v %v, want 3 36 12", *a.SalesQuantity, *a.SalesRevenue, *a.UnitPrice)
	}
	if !a.IsAnomaly || !a.AnomalyFlags.Has(model.FlagPriceJump) {
		t.Errorf("flags = %v, want price_jump", a.AnomalyFlags)
	}
	if a.Category == nil || *a.Category != "toys" {
		t.Errorf("Category = %v, want toys", a.Category)
	}
	if out.Period != PeriodWeek {
		t.Errorf("Period = %s", out.Period)
	}
}

func TestTable_ToRaw(t *testing.T) {
	rows := []cleaner.Row{{Date: day(2024, 1, 1), SKU: "A", Quantity: f(3), Price: f(9.99)}}
	raw := run(t, rows, DefaultOptions()).ToRaw()

	want := []string{"date", "sku_id", "sales_quantity", "unit_price", "sales_revenue"}
	got := raw.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if v, _ := raw.Cell(0, 4).Float(); v != 29.97 {
		t.Errorf("revenue cell = %v", v)
	}
}

func TestTable_ToRawMatchesCleanedHeaders(t *testing.T) {
	rows := []cleaner.Row{{Date: day(2024, 1, 1), SKU: "A", Quantity: f(2), Price: f(5), Stock: f(40), Category: s("toys")}}
	ct := &cleaner.CleanedTable{Rows: rows, InputRows: len(rows)}
	opts := DefaultOptions()
	opts.DerivedMetrics = false
	out, err := New(WithClock(func() time.Time { return created })).Transform(ct, opts)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	cleaned := ct.ToRaw().Names()
	transformed := out.ToRaw().Names()
	if strings.Join(cleaned, ",") != strings.Join(transformed, ",") {
		t.Errorf("headers differ: cleaned %v, transformed %v", cleaned, transformed)
	}
	pos := make(map[string]int)
	for i, n := range table.CanonicalNames() {
		pos[n] = i
	}
	at := -1
	for _, n := range transformed {
		i, ok := pos[n]
		if !ok || i <= at {
			t.Errorf("Names() = %v, not a canonical-ordered subset of %v", transformed, table.CanonicalNames())
			break
		}
		at = i
	}
}

func TestTransform_NilInput(t *testing.T) {
	if _, err := New().Transform(nil, DefaultOptions()); err == nil {
		t.Error("Transform(nil) error = nil")
	}
}
