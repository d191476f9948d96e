package parquet

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/model"
)

func records(upload string, n int) []model.SalesRecord {
	out := make([]model.SalesRecord, n)
	for i := range out {
		qty := float64(i + 1)
		out[i] = model.SalesRecord{
			UploadID:      upload,
			Date:          time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
			SKUID:         "A",
			SalesQuantity: &qty,
			AnomalyFlags:  model.FlagSet{model.FlagOutlier},
			IsAnomaly:     true,
			CreatedAt:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	return out
}

func TestRepository_WriteFinishCount(t *testing.T) {
	ctx := context.Background()
	r, err := NewRepository(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if n, err := r.WriteBatch(ctx, records("u1", 4)); err != nil || n != 4 {
			t.Fatalf("WriteBatch() = %d, %v", n, err)
		}
	}
	if _, err := os.Stat(r.Path("u1")); !os.IsNotExist(err) {
		t.Errorf("final file exists before Finish")
	}
	if err := r.Finish(ctx, "u1"); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if n, err := r.Count(ctx, "u1"); err != nil || n != 12 {
		t.Errorf("Count() = %d, %v, want 12", n, err)
	}

	f, err := os.Open(r.Path("u1"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(ctx, f, parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	defer tbl.Release()
	if got := tbl.Schema().Field(13).Name; got != "anomaly_flags" {
		t.Errorf("field 13 = %s", got)
	}
	qty := tbl.Column(3).Data().Chunk(0).(*array.Float64)
	if qty.Value(1) != 2 {
		t.Errorf("sales_quantity[1] = %v, want 2", qty.Value(1))
	}
}

func TestRepository_DeleteOpenUpload(t *testing.T) {
	ctx := context.Background()
	r, _ := NewRepository(Config{Dir: t.TempDir(), Compression: "none"})

	r.WriteBatch(ctx, records("u1", 5))
	n, err := r.DeleteUpload(ctx, "u1")
	if err != nil || n != 5 {
		t.Errorf("DeleteUpload() = %d, %v, want 5", n, err)
	}
	if _, err := os.Stat(r.tmpPath("u1")); !os.IsNotExist(err) {
		t.Error("temp file left after DeleteUpload")
	}
	if err := r.Finish(ctx, "u1"); err != nil {
		t.Errorf("Finish() after delete error = %v", err)
	}
	if n, _ := r.Count(ctx, "u1"); n != 0 {
		t.Errorf("Count() = %d after delete", n)
	}
}

func TestRepository_DeleteFinishedUpload(t *testing.T) {
	ctx := context.Background()
	r, _ := NewRepository(Config{Dir: t.TempDir(), Compression: "zstd"})

	r.WriteBatch(ctx, records("u1", 3))
	r.Finish(ctx, "u1")
	if n, err := r.DeleteUpload(ctx, "u1"); err != nil || n != 3 {
		t.Errorf("DeleteUpload() = %d, %v, want 3", n, err)
	}
	if _, err := os.Stat(r.Path("u1")); !os.IsNotExist(err) {
		t.Error("file left after DeleteUpload")
	}
}

func TestRepository_MixedUploads(t *testing.T) {
	ctx := context.Background()
	r, _ := NewRepository(Config{Dir: t.TempDir()})

	batch := append(records("a", 2), records("b", 3)...)
	if n, err := r.WriteBatch(ctx, batch); err != nil || n != 5 {
		t.Fatalf("WriteBatch() = %d, %v", n, err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if n, _ := r.Count(ctx, "a"); n != 2 {
		t.Errorf("Count(a) = %d, want 2", n)
	}
	if n, _ := r.Count(ctx, "b"); n != 3 {
		t.Errorf("Count(b) = %d, want 3", n)
	}
}

func TestNewRepository_BadCompression(t *testing.T) {
	if _, err := NewRepository(Config{Dir: t.TempDir(), Compression: "brotli"}); !skerrors.IsCode(err, skerrors.CodeConfig) {
		t.Errorf("NewRepository(brotli) error = %v", err)
	}
}
