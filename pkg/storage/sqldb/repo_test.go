package sqldb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/model"
	"github.com/skuflow/skuflow/pkg/storage"
)

var _ storage.Reader = (*Repository)(nil)

func openSQLite(t *testing.T) *Repository {
	t.Helper()
	r, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "records.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func record(upload, sku string, qty float64) model.SalesRecord {
	cat := "Toys"
	code := 2
	return model.SalesRecord{
		UploadID:      upload,
		Date:          time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		SKUID:         sku,
		SalesQuantity: &qty,
		Category:      &cat,
		CategoryCode:  &code,
		Currency:      "USD",
		IsAnomaly:     true,
		AnomalyFlags:  model.FlagSet{model.FlagZeroPrice, model.FlagOutlier},
		CreatedAt:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRepository_WriteReadDelete(t *testing.T) {
	ctx := context.Background()
	r := openSQLite(t)

	n, err := r.WriteBatch(ctx, []model.SalesRecord{record("u1", "A", 3), record("u1", "B", 4), record("u2", "C", 1)})
	if err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}
	if n != 3 {
		t.Errorf("WriteBatch() = %d, want 3", n)
	}

	got, err := r.Records(ctx, "u1", "", 0, 0)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(got))
	}
	first := got[0]
	if first.SKUID != "A" || *first.SalesQuantity != 3 || first.UnitPrice != nil {
		t.Errorf("first record = %+v", first)
	}
	if !first.Date.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", first.Date)
	}
	if *first.Category != "Toys" || *first.CategoryCode != 2 || !first.IsAnomaly {
		t.Errorf("category/anomaly = %v %v %v", *first.Category, *first.CategoryCode, first.IsAnomaly)
	}
	if first.AnomalyFlags.String() != "outlier,zero_price" {
		t.Errorf("AnomalyFlags = %v", first.AnomalyFlags)
	}

	deleted, err := r.DeleteUpload(ctx, "u1")
	if err != nil || deleted != 2 {
		t.Errorf("DeleteUpload() = %d, %v, want 2", deleted, err)
	}
	if c, _ := r.Count(ctx, "u1"); c != 0 {
		t.Errorf("Count(u1) = %d after delete", c)
	}
	if c, _ := r.Count(ctx, "u2"); c != 1 {
		t.Errorf("Count(u2) = %d, want 1", c)
	}
}

func TestRepository_RecordsPaging(t *testing.T) {
	ctx := context.Background()
	r := openSQLite(t)

	var recs []model.SalesRecord
	for i, sku := range []string{"A", "B", "A", "C", "A"} {
		rec := record("u1", sku, float64(i+1))
		rec.Date = time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC)
		recs = append(recs, rec)
	}
	if _, err := r.WriteBatch(ctx, recs); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}

	tests := []struct {
		name          string
		sku           string
		offset, limit int
		want          []float64 // quantities in page order
	}{
		{"all newest first", "", 0, 0, []float64{5, 4, 3, 2, 1}},
		{"second page", "", 2, 2, []float64{3, 2}},
		{"sku filter", "A", 0, 0, []float64{5, 3, 1}},
		{"sku page", "A", 1, 1, []float64{3}},
		{"past the end", "", 10, 5, nil},
		{"unknown sku", "Z", 0, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Records(ctx, "u1", tt.sku, tt.offset, tt.limit)
			if err != nil {
				t.Fatalf("Records() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len(Records) = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if *got[i].SalesQuantity != tt.want[i] {
					t.Errorf("Records()[%d] qty = %v, want %v", i, *got[i].SalesQuantity, tt.want[i])
				}
			}
		})
	}
}

func TestRepository_Summary(t *testing.T) {
	ctx := context.Background()
	r := openSQLite(t)

	a, b, c := record("u1", "A", 2), record("u1", "B", 4), record("u1", "A", 6)
	rev := 10.0
	a.SalesRevenue = &rev
	c.SalesQuantity = nil
	b.Date = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	c.Date = time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC)
	if _, err := r.WriteBatch(ctx, []model.SalesRecord{a, b, c, record("u2", "Z", 100)}); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}

	s, err := r.Summary(ctx, "u1")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if s.Records != 3 || s.UniqueSKUs != 2 {
		t.Errorf("Records, UniqueSKUs = %d, %d, want 3, 2", s.Records, s.UniqueSKUs)
	}
	if s.TotalQuantity != 6 || s.AvgQuantity != 3 {
		t.Errorf("quantity total/avg = %v/%v, want 6/3", s.TotalQuantity, s.AvgQuantity)
	}
	if s.TotalRevenue != 10 || s.AvgRevenue != 10 {
		t.Errorf("revenue total/avg = %v/%v, want 10/10", s.TotalRevenue, s.AvgRevenue)
	}
	if !s.FirstDate.Equal(b.Date) || !s.LastDate.Equal(c.Date) {
		t.Errorf("date range = %v..%v", s.FirstDate, s.LastDate)
	}

	empty, err := r.Summary(ctx, "nope")
	if err != nil {
		t.Fatalf("Summary(nope) error = %v", err)
	}
	if !empty.Empty() || !empty.FirstDate.IsZero() || empty.TotalRevenue != 0 {
		t.Errorf("Summary(nope) = %+v, want empty", empty)
	}
}

func TestRepository_EmptyBatch(t *testing.T) {
	r := openSQLite(t)
	if n, err := r.WriteBatch(context.Background(), nil); n != 0 || err != nil {
		t.Errorf("WriteBatch(nil) = %d, %v", n, err)
	}
}

func TestRepository_CanceledBatchCommitsNothing(t *testing.T) {
	r := openSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.WriteBatch(ctx, []model.SalesRecord{record("u1", "A", 1)}); err == nil {
		t.Fatal("WriteBatch(canceled) error = nil")
	}
	if c, _ := r.Count(context.Background(), "u1"); c != 0 {
		t.Errorf("Count = %d, want 0", c)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "mysql", DSN: "x"}); !skerrors.IsCode(err, skerrors.CodeStorageOpen) {
		t.Errorf("Open(mysql) error = %v", err)
	}
}
