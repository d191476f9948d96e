// Package parquet implements storage.Repository as one Parquet file per
// upload, for downstream forecasting jobs.
package parquet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/model"
)

// Config holds repository configuration.
type Config struct {
	Dir         string
	Compression string // snappy | gzip | zstd | none
}

// Repository writes each upload to <Dir>/<upload_id>.parquet. Batches go to a
// temporary file that Finish renames into place.
type Repository struct {
	cfg       Config
	allocator memory.Allocator
	schema    *arrow.Schema
	props     *parquet.WriterProperties

	mu      sync.Mutex
	writers map[string]*fileWriter
}

type fileWriter struct {
	f    *os.File
	w    *pqarrow.FileWriter
	rows int64
}

// RecordSchema returns the Arrow schema of a persisted record.
func RecordSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "upload_id", Type: arrow.BinaryTypes.String},
		{Name: "date", Type: arrow.FixedWidthTypes.Date32},
		{Name: "sku_id", Type: arrow.BinaryTypes.String},
		{Name: "sales_quantity", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "unit_price", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "sales_revenue", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "stock_level", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "category", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "category_code", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		{Name: "discount_pct", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "profit_margin", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "currency", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "is_anomaly", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "anomaly_flags", Type: arrow.ListOf(arrow.BinaryTypes.String)},
		{Name: "created_at", Type: arrow.FixedWidthTypes.Timestamp_us},
	}, nil)
}

// NewRepository creates the output directory.
func NewRepository(cfg Config) (*Repository, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to create parquet directory").WithContext("dir", cfg.Dir)
	}
	codec, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	return &Repository{
		cfg:       cfg,
		allocator: memory.NewGoAllocator(),
		schema:    RecordSchema(),
		props: parquet.NewWriterProperties(
			parquet.WithCompression(codec),
			parquet.WithDictionaryDefault(true),
		),
		writers: make(map[string]*fileWriter),
	}, nil
}

func parseCompression(s string) (compress.Compression, error) {
	switch s {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "none":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, skerrors.Newf(skerrors.CodeConfig, "unsupported parquet compression %q", s)
	}
}

// Path returns the final file path of an upload.
func (r *Repository) Path(uploadID string) string {
	return filepath.Join(r.cfg.Dir, uploadID+".parquet")
}

func (r *Repository) tmpPath(uploadID string) string {
	return r.Path(uploadID) + ".tmp"
}

// WriteBatch appends recs as one row group. Records are grouped by upload.
func (r *Repository) WriteBatch(ctx context.Context, recs []model.SalesRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var written int64
	for start := 0; start < len(recs); {
		end := start + 1
		for end < len(recs) && recs[end].UploadID == recs[start].UploadID {
			end++
		}
		fw, err := r.writerLocked(recs[start].UploadID)
		if err != nil {
			return written, err
		}
		if err := r.appendLocked(fw, recs[start:end]); err != nil {
			return written, skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to write record batch").
				WithContext("upload_id", recs[start].UploadID)
		}
		written += int64(end - start)
		start = end
	}
	return written, nil
}

func (r *Repository) writerLocked(uploadID string) (*fileWriter, error) {
	if fw, ok := r.writers[uploadID]; ok {
		return fw, nil
	}
	f, err := os.Create(r.tmpPath(uploadID))
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to create parquet file").WithContext("upload_id", uploadID)
	}
	w, err := pqarrow.NewFileWriter(r.schema, f, r.props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to create parquet writer").WithContext("upload_id", uploadID)
	}
	fw := &fileWriter{f: f, w: w}
	r.writers[uploadID] = fw
	return fw, nil
}

func (r *Repository) appendLocked(fw *fileWriter, recs []model.SalesRecord) error {
	b := array.NewRecordBuilder(r.allocator, r.schema)
	defer b.Release()

	for i := range recs {
		appendRecord(b, &recs[i])
	}
	rec := b.NewRecord()
	defer rec.Release()

	if err := fw.w.Write(rec); err != nil {
		return err
	}
	fw.rows += rec.NumRows()
	return nil
}

func appendRecord(b *array.RecordBuilder, rec *model.SalesRecord) {
	b.Field(0).(*array.StringBuilder).Append(rec.UploadID)
	b.Field(1).(*array.Date32Builder).Append(arrow.Date32FromTime(rec.Date))
	b.Field(2).(*array.StringBuilder).Append(rec.SKUID)
	appendFloat(b.Field(3).(*array.Float64Builder), rec.SalesQuantity)
	appendFloat(b.Field(4).(*array.Float64Builder), rec.UnitPrice)
	appendFloat(b.Field(5).(*array.Float64Builder), rec.SalesRevenue)
	appendFloat(b.Field(6).(*array.Float64Builder), rec.StockLevel)

	category := b.Field(7).(*array.StringBuilder)
	if rec.Category != nil {
		category.Append(*rec.Category)
	} else {
		category.AppendNull()
	}
	code := b.Field(8).(*array.Int32Builder)
	if rec.CategoryCode != nil {
		code.Append(int32(*rec.CategoryCode))
	} else {
		code.AppendNull()
	}

	appendFloat(b.Field(9).(*array.Float64Builder), rec.DiscountPct)
	appendFloat(b.Field(10).(*array.Float64Builder), rec.ProfitMargin)

	currency := b.Field(11).(*array.StringBuilder)
	if rec.Currency != "" {
		currency.Append(rec.Currency)
	} else {
		currency.AppendNull()
	}
	b.Field(12).(*array.BooleanBuilder).Append(rec.IsAnomaly)

	flags := b.Field(13).(*array.ListBuilder)
	flags.Append(true)
	values := flags.ValueBuilder().(*array.StringBuilder)
	for _, f := range rec.AnomalyFlags.Sorted() {
		values.Append(f)
	}

	b.Field(14).(*array.TimestampBuilder).Append(arrow.Timestamp(rec.CreatedAt.UnixMicro()))
}

func appendFloat(b *array.Float64Builder, v *float64) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(*v)
}

// Finish closes the upload's file and moves it into place.
func (r *Repository) Finish(_ context.Context, uploadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fw, ok := r.writers[uploadID]
	if !ok {
		return nil
	}
	delete(r.writers, uploadID)

	err := fw.w.Close()
	fw.f.Close()
	if err != nil {
		os.Remove(r.tmpPath(uploadID))
		return skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to close parquet writer").WithContext("upload_id", uploadID)
	}
	if err := os.Rename(r.tmpPath(uploadID), r.Path(uploadID)); err != nil {
		return skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to commit parquet file").WithContext("upload_id", uploadID)
	}
	return nil
}

// DeleteUpload drops an open writer and removes the upload's files. The
// returned count covers rows of the open writer, or of the committed file.
func (r *Repository) DeleteUpload(ctx context.Context, uploadID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	if fw, ok := r.writers[uploadID]; ok {
		n = fw.rows
		fw.w.Close()
		fw.f.Close()
		delete(r.writers, uploadID)
	} else if rows, err := r.countFile(ctx, r.Path(uploadID)); err == nil {
		n = rows
	}

	for _, p := range []string{r.tmpPath(uploadID), r.Path(uploadID)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return 0, skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to delete parquet file").WithContext("path", p)
		}
	}
	return n, nil
}

// Count returns the number of rows in the upload's committed file.
func (r *Repository) Count(ctx context.Context, uploadID string) (int64, error) {
	n, err := r.countFile(ctx, r.Path(uploadID))
	if os.IsNotExist(err) {
		return 0, nil
	}
	return n, err
}

func (r *Repository) countFile(ctx context.Context, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	tbl, err := pqarrow.ReadTable(ctx, f, parquet.NewReaderProperties(r.allocator), pqarrow.ArrowReadProperties{}, r.allocator)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	defer tbl.Release()
	return tbl.NumRows(), nil
}

// Close finishes every open writer.
func (r *Repository) Close() error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.writers))
	for id := range r.writers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var errs skerrors.MultiError
	for _, id := range ids {
		errs.Add(r.Finish(context.Background(), id))
	}
	return errs.Combined()
}
