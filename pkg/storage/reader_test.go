package storage

import (
	"context"
	"testing"
	"time"

	"github.com/skuflow/skuflow/pkg/model"
)

func sale(upload, sku string, day int, qty, rev *float64) model.SalesRecord {
	return model.SalesRecord{
		UploadID:      upload,
		Date:          time.Date(2024, 2, day, 0, 0, 0, 0, time.UTC),
		SKUID:         sku,
		SalesQuantity: qty,
		SalesRevenue:  rev,
	}
}

func fp(v float64) *float64 { return &v }

func TestPage(t *testing.T) {
	tests := []struct {
		offset, limit         int
		wantOffset, wantLimit int
	}{
		{0, 0, 0, DefaultPageSize},
		{-5, 10, 0, 10},
		{20, MaxPageSize + 1, 20, MaxPageSize},
		{3, -1, 3, DefaultPageSize},
	}
	for _, tt := range tests {
		o, l := Page(tt.offset, tt.limit)
		if o != tt.wantOffset || l != tt.wantLimit {
			t.Errorf("Page(%d, %d) = %d, %d, want %d, %d", tt.offset, tt.limit, o, l, tt.wantOffset, tt.wantLimit)
		}
	}
}

func TestMemory_Records(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.WriteBatch(ctx, []model.SalesRecord{
		sale("u1", "B", 3, fp(1), nil),
		sale("u1", "A", 5, fp(2), nil),
		sale("u1", "C", 3, fp(3), nil),
		sale("u1", "A", 1, fp(4), nil),
		sale("u2", "A", 9, fp(5), nil),
	})

	tests := []struct {
		name          string
		sku           string
		offset, limit int
		want          []string // sku@day in page order
	}{
		{"newest first", "", 0, 0, []string{"A@5", "B@3", "C@3", "A@1"}},
		{"page", "", 1, 2, []string{"B@3", "C@3"}},
		{"sku", "A", 0, 0, []string{"A@5", "A@1"}},
		{"beyond", "", 4, 10, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Records(ctx, "u1", tt.sku, tt.offset, tt.limit)
			if err != nil {
				t.Fatalf("Records() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len(Records) = %d, want %d", len(got), len(tt.want))
			}
			for i, r := range got {
				if key := r.SKUID + "@" + r.Date.Format("2"); key != tt.want[i] {
					t.Errorf("Records()[%d] = %s, want %s", i, key, tt.want[i])
				}
			}
		})
	}
}

func TestMemory_Summary(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.WriteBatch(ctx, []model.SalesRecord{
		sale("u1", "A", 10, fp(2), fp(20)),
		sale("u1", "B", 4, fp(6), nil),
		sale("u1", "A", 12, nil, fp(40)),
	})

	s, err := m.Summary(ctx, "u1")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	want := Summary{
		UploadID:      "u1",
		Records:       3,
		TotalQuantity: 8,
		TotalRevenue:  60,
		AvgQuantity:   4,
		AvgRevenue:    30,
		UniqueSKUs:    2,
		FirstDate:     time.Date(2024, 2, 4, 0, 0, 0, 0, time.UTC),
		LastDate:      time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC),
	}
	if *s != want {
		t.Errorf("Summary() = %+v, want %+v", *s, want)
	}

	empty, _ := m.Summary(ctx, "none")
	if !empty.Empty() || empty.AvgQuantity != 0 || !empty.LastDate.IsZero() {
		t.Errorf("Summary(none) = %+v", *empty)
	}
}

func TestMemory_ReaderCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory()
	if _, err := m.Records(ctx, "u1", "", 0, 0); err == nil {
		t.Error("Records(canceled) error = nil")
	}
	if _, err := m.Summary(ctx, "u1"); err == nil {
		t.Error("Summary(canceled) error = nil")
	}
}

var _ Reader = (*Memory)(nil)
