package upload

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/skuflow/skuflow/pkg/blob"
	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/model"
	"github.com/skuflow/skuflow/pkg/schema"
	"github.com/skuflow/skuflow/pkg/state"
	"github.com/skuflow/skuflow/pkg/validation"
)

const salesCSV = `date,sku,qty,price,category
2024-03-01,A1,3,9.99,Toys
2024-03-02,A1,2,9.99,Toys
2024-03-03,B2,5,4.50,Games
2024-03-04,B2,1,4.50,Games
`

type fixture struct {
	svc   *Service
	store *state.MemoryStore
	blobs *blob.Local
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	blobs, err := blob.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	store := state.NewMemoryStore()
	ids := 0
	svc := NewService(cfg, store, blobs,
		schema.NewDetector(schema.DefaultConfig()),
		validation.NewValidator(validation.DefaultThresholds()),
		WithClock(func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string { ids++; return "up-" + string(rune('0'+ids)) }),
	)
	return fixture{svc: svc, store: store, blobs: blobs}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())

	reg, err := f.svc.Register(ctx, "March Sales.CSV", strings.NewReader(salesCSV))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	u := reg.Upload
	if u.ID != "up-1" || u.Status != model.StatusUploaded || u.Format != "csv" {
		t.Errorf("upload = %+v", u)
	}
	if u.RowCount != 4 || u.ColumnCount != 5 || u.BlobKey != "uploads/up-1.csv" {
		t.Errorf("counts/key = %d %d %s", u.RowCount, u.ColumnCount, u.BlobKey)
	}
	if reg.Schema.SuggestedDateColumn != "date" || reg.Schema.SuggestedSKUColumn != "sku" {
		t.Errorf("schema roles = %q %q", reg.Schema.SuggestedDateColumn, reg.Schema.SuggestedSKUColumn)
	}

	stored, err := f.store.Get(ctx, "up-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	var rep validation.Report
	if err := json.Unmarshal(stored.ValidationReport, &rep); err != nil {
		t.Fatalf("stored report: %v", err)
	}
	if rep.TotalIssues != reg.Report.TotalIssues {
		t.Errorf("stored report issues = %d, want %d", rep.TotalIssues, reg.Report.TotalIssues)
	}

	raw, err := f.svc.Load(ctx, stored)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if raw.Rows() != 4 || raw.Names()[2] != "qty" {
		t.Errorf("Load() = %d rows, names %v", raw.Rows(), raw.Names())
	}
}

func TestRegister_Rejections(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		cfg      Config
		filename string
		body     string
		code     skerrors.Code
	}{
		{"extension", DefaultConfig(), "sales.json", "{}", skerrors.CodeUnsupportedFormat},
		{"too large", Config{MaxSizeBytes: 16}, "sales.csv", salesCSV, skerrors.CodeFileTooLarge},
		{"header only", DefaultConfig(), "sales.csv", "date,sku\n", skerrors.CodeEmptyTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.cfg)
			_, err := f.svc.Register(ctx, tt.filename, strings.NewReader(tt.body))
			if !skerrors.IsCode(err, tt.code) {
				t.Fatalf("Register() error = %v, want %s", err, tt.code)
			}
			if ok, _ := f.blobs.Exists(ctx, blob.Key("up-1", tt.filename)); ok {
				t.Error("rejected upload left a blob")
			}
			if list, _ := f.store.List(ctx, "", 0); len(list) != 0 {
				t.Errorf("rejected upload created %d records", len(list))
			}
		})
	}
}

func TestRegisterFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weekly.txt")
	if err := os.WriteFile(path, []byte(strings.ReplaceAll(salesCSV, ",", "\t")), 0644); err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, DefaultConfig())
	reg, err := f.svc.RegisterFile(context.Background(), path)
	if err != nil {
		t.Fatalf("RegisterFile() error = %v", err)
	}
	if reg.Upload.Format != "txt" || reg.Upload.ColumnCount != 5 {
		t.Errorf("upload = %+v", reg.Upload)
	}

	if _, err := f.svc.RegisterFile(context.Background(), filepath.Join(dir, "missing.csv")); !skerrors.IsCode(err, skerrors.CodeFileNotFound) {
		t.Errorf("RegisterFile(missing) error = %v", err)
	}
}

func TestSetMapping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	f.svc.Register(ctx, "sales.csv", strings.NewReader(salesCSV))

	if err := f.svc.SetMapping(ctx, "up-1", map[string]schema.Mapping{"qty": schema.MappingStock}); err != nil {
		t.Fatalf("SetMapping() error = %v", err)
	}
	u, _ := f.store.Get(ctx, "up-1")
	m, err := DecodeMapping(u.ColumnMapping)
	if err != nil {
		t.Fatalf("DecodeMapping() error = %v", err)
	}
	if m["qty"] != schema.MappingStock {
		t.Errorf("mapping = %v", m)
	}

	if err := f.svc.SetMapping(ctx, "up-1", map[string]schema.Mapping{"nope": schema.MappingDate}); !skerrors.IsCode(err, skerrors.CodeSchema) {
		t.Errorf("SetMapping(unknown column) error = %v", err)
	}
	if err := f.svc.SetMapping(ctx, "missing", nil); !skerrors.IsCode(err, skerrors.CodeUploadNotFound) {
		t.Errorf("SetMapping(missing) error = %v", err)
	}
}

func TestDecodeMapping(t *testing.T) {
	if m, err := DecodeMapping(nil); m != nil || err != nil {
		t.Errorf("DecodeMapping(nil) = %v, %v", m, err)
	}
	if _, err := DecodeMapping(json.RawMessage(`{"a":"flavour"}`)); !skerrors.IsCode(err, skerrors.CodeSchema) {
		t.Errorf("DecodeMapping(bad role) error = %v", err)
	}
	if _, err := DecodeMapping(json.RawMessage(`[1]`)); err == nil {
		t.Error("DecodeMapping(array) error = nil")
	}
}
