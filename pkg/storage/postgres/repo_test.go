package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/skuflow/skuflow/pkg/model"
	"github.com/skuflow/skuflow/pkg/storage"
)

var _ storage.Reader = (*Repository)(nil)

func TestCopyRows(t *testing.T) {
	qty := 2.0
	recs := []model.SalesRecord{
		{UploadID: "u1", SKUID: "A", SalesQuantity: &qty, AnomalyFlags: model.FlagSet{model.FlagZeroPrice, model.FlagDuplicate}},
		{UploadID: "u1", SKUID: "B"},
	}
	rows := copyRows(recs)
	if len(rows) != 2 || len(rows[0]) != len(model.Columns) {
		t.Fatalf("copyRows() shape = %d x %d", len(rows), len(rows[0]))
	}
	flags, ok := rows[0][13].([]string)
	if !ok || len(flags) != 2 || flags[0] != "duplicate" {
		t.Errorf("flags = %#v", rows[0][13])
	}
	if empty, ok := rows[1][13].([]string); !ok || len(empty) != 0 {
		t.Errorf("empty flags = %#v, want empty array", rows[1][13])
	}
	if rows[1][3] != nil {
		t.Errorf("missing quantity = %v, want nil", rows[1][3])
	}
}

func TestIdentifiers(t *testing.T) {
	if got := pgFQN("public.sales_records"); got != `"public"."sales_records"` {
		t.Errorf("pgFQN() = %s", got)
	}
	if got := pgIdent("idx"); got != `"idx"` {
		t.Errorf("pgIdent() = %s", got)
	}
}

func TestRepository_Integration(t *testing.T) {
	dsn := os.Getenv("SKUFLOW_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("SKUFLOW_TEST_POSTGRES not set")
	}
	ctx := context.Background()
	r, err := NewRepository(ctx, Config{DSN: dsn, Table: "skuflow_test_records"})
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	defer r.Close()
	defer r.DeleteUpload(ctx, "it-1")

	recs := []model.SalesRecord{{
		UploadID:  "it-1",
		Date:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		SKUID:     "A",
		CreatedAt: time.Now(),
	}}
	if n, err := r.WriteBatch(ctx, recs); err != nil || n != 1 {
		t.Fatalf("WriteBatch() = %d, %v", n, err)
	}
	if n, _ := r.Count(ctx, "it-1"); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
	got, err := r.Records(ctx, "it-1", "A", 0, 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("Records() = %d, %v, want 1 record", len(got), err)
	}
	if !got[0].Date.Equal(recs[0].Date) || got[0].SKUID != "A" {
		t.Errorf("Records()[0] = %+v", got[0])
	}
	s, err := r.Summary(ctx, "it-1")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if s.Records != 1 || s.UniqueSKUs != 1 || !s.FirstDate.Equal(recs[0].Date) {
		t.Errorf("Summary() = %+v", s)
	}
	if n, _ := r.DeleteUpload(ctx, "it-1"); n != 1 {
		t.Errorf("DeleteUpload() = %d, want 1", n)
	}
}
