package model

import (
	"testing"
	"time"
)

func TestFlagSet(t *testing.T) {
	var f FlagSet
	f.Add(FlagPriceJump)
	f.Add(FlagOutlier)
	f.Add(FlagPriceJump)

	if len(f) != 2 {
		t.Fatalf("len = %d, want 2", len(f))
	}
	if !f.Has(FlagOutlier) || f.Has(FlagDuplicate) {
		t.Errorf("Has() wrong for %v", f)
	}
	if got := f.String(); got != "outlier,price_jump" {
		t.Errorf("String() = %q", got)
	}

	f.Union(FlagSet{FlagOutlier, FlagFutureDate})
	if got := f.String(); got != "future_date,outlier,price_jump" {
		t.Errorf("Union String() = %q", got)
	}
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"outlier", "outlier"},
		{" zero_price , outlier,outlier ", "outlier,zero_price"},
	}
	for _, tt := range tests {
		if got := ParseFlags(tt.in).String(); got != tt.want {
			t.Errorf("ParseFlags(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSalesRecord_Values(t *testing.T) {
	qty := 3.0
	rec := SalesRecord{
		UploadID:      "u1",
		Date:          time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		SKUID:         "A",
		SalesQuantity: &qty,
		AnomalyFlags:  FlagSet{FlagZeroPrice},
		IsAnomaly:     true,
	}
	v := rec.Values()
	if len(v) != len(Columns) {
		t.Fatalf("len(Values()) = %d, want %d", len(v), len(Columns))
	}
	if v[3] != 3.0 {
		t.Errorf("sales_quantity = %v", v[3])
	}
	if v[4] != nil || v[7] != nil {
		t.Errorf("missing values = %v, %v, want nil", v[4], v[7])
	}
	if v[13] != "zero_price" {
		t.Errorf("anomaly_flags = %v", v[13])
	}
}

func TestStatus_Terminal(t *testing.T) {
	tests := []struct {
		s    Status
		want bool
	}{
		{StatusUploaded, false},
		{StatusProcessing, false},
		{StatusProcessed, true},
		{StatusError, true},
	}
	for _, tt := range tests {
		if got := tt.s.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.s, got, tt.want)
		}
	}
}
