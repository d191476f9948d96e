// Package postgres implements storage.Repository on Postgres using pgx v5.
// Each batch is a single COPY, which Postgres commits atomically.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/model"
	"github.com/skuflow/skuflow/pkg/storage"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN   string // connection string for pgxpool
	Table string // target table, e.g. "public.sales_records"
}

// Repository is a Postgres-backed record repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository connects and creates the records table.
func NewRepository(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.Table == "" {
		cfg.Table = "sales_records"
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "pgxpool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to ping postgres")
	}

	r := &Repository{pool: pool, cfg: cfg}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to migrate postgres")
	}
	return r, nil
}

func (r *Repository) migrate(ctx context.Context) error {
	table := pgFQN(r.cfg.Table)
	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			upload_id TEXT NOT NULL,
			date DATE NOT NULL,
			sku_id TEXT NOT NULL,
			sales_quantity DOUBLE PRECISION,
			unit_price DOUBLE PRECISION,
			sales_revenue DOUBLE PRECISION,
			stock_level DOUBLE PRECISION,
			category TEXT,
			category_code INTEGER,
			discount_pct DOUBLE PRECISION,
			profit_margin DOUBLE PRECISION,
			currency TEXT,
			is_anomaly BOOLEAN NOT NULL,
			anomaly_flags TEXT[],
			created_at TIMESTAMPTZ NOT NULL
		)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (upload_id)`,
			pgIdent("idx_"+strings.ReplaceAll(r.cfg.Table, ".", "_")+"_upload"), table),
	}
	for _, stmt := range ddl {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close releases the pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// WriteBatch copies recs into the table.
func (r *Repository) WriteBatch(ctx context.Context, recs []model.SalesRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	n, err := r.pool.CopyFrom(ctx, tableIdent(r.cfg.Table), model.Columns, pgx.CopyFromRows(copyRows(recs)))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return 0, skerrors.Wrapf(err, skerrors.CodeStorageWrite, "copy: %s (%s)", pgErr.Detail, pgErr.SQLState())
		}
		return 0, skerrors.Wrap(err, skerrors.CodeStorageWrite, "copy")
	}
	return n, nil
}

// DeleteUpload removes every record of an upload.
func (r *Repository) DeleteUpload(ctx context.Context, uploadID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE upload_id = $1`, pgFQN(r.cfg.Table)), uploadID)
	if err != nil {
		return 0, skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to delete records").WithContext("upload_id", uploadID)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of records of an upload.
func (r *Repository) Count(ctx context.Context, uploadID string) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE upload_id = $1`, pgFQN(r.cfg.Table)), uploadID).Scan(&n)
	if err != nil {
		return 0, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to count records").WithContext("upload_id", uploadID)
	}
	return n, nil
}

// Records returns one page of an upload's records, newest date first. An
// empty sku matches every SKU.
func (r *Repository) Records(ctx context.Context, uploadID, sku string, offset, limit int) ([]model.SalesRecord, error) {
	offset, limit = storage.Page(offset, limit)
	q := fmt.Sprintf(`SELECT %s FROM %s
		WHERE upload_id = $1 AND ($2 = '' OR sku_id = $2)
		ORDER BY date DESC, sku_id LIMIT $3 OFFSET $4`,
		strings.Join(model.Columns, ", "), pgFQN(r.cfg.Table))
	rows, err := r.pool.Query(ctx, q, uploadID, sku, limit, offset)
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to query records").WithContext("upload_id", uploadID)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to scan records").WithContext("upload_id", uploadID)
	}
	return recs, nil
}

// Summary aggregates an upload's records in one query.
func (r *Repository) Summary(ctx context.Context, uploadID string) (*storage.Summary, error) {
	q := fmt.Sprintf(`SELECT COUNT(*),
		COALESCE(SUM(sales_quantity), 0), COALESCE(SUM(sales_revenue), 0),
		COALESCE(AVG(sales_quantity), 0), COALESCE(AVG(sales_revenue), 0),
		COUNT(DISTINCT sku_id), MIN(date), MAX(date)
		FROM %s WHERE upload_id = $1`, pgFQN(r.cfg.Table))

	s := &storage.Summary{UploadID: uploadID}
	var first, last *time.Time
	err := r.pool.QueryRow(ctx, q, uploadID).Scan(&s.Records,
		&s.TotalQuantity, &s.TotalRevenue, &s.AvgQuantity, &s.AvgRevenue,
		&s.UniqueSKUs, &first, &last)
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to summarize records").WithContext("upload_id", uploadID)
	}
	if first != nil {
		s.FirstDate = first.UTC()
	}
	if last != nil {
		s.LastDate = last.UTC()
	}
	return s, nil
}

func scanRecord(row pgx.CollectableRow) (model.SalesRecord, error) {
	var (
		rec      model.SalesRecord
		code     *int32
		currency *string
		flags    []string
	)
	err := row.Scan(&rec.UploadID, &rec.Date, &rec.SKUID, &rec.SalesQuantity, &rec.UnitPrice,
		&rec.SalesRevenue, &rec.StockLevel, &rec.Category, &code, &rec.DiscountPct,
		&rec.ProfitMargin, &currency, &rec.IsAnomaly, &flags, &rec.CreatedAt)
	if err != nil {
		return rec, err
	}
	if code != nil {
		c := int(*code)
		rec.CategoryCode = &c
	}
	if currency != nil {
		rec.Currency = *currency
	}
	for _, f := range flags {
		rec.AnomalyFlags.Add(f)
	}
	rec.Date = rec.Date.UTC()
	return rec, nil
}

// copyRows aligns records to model.Columns, sending flags as a text array.
func copyRows(recs []model.SalesRecord) [][]any {
	rows := make([][]any, len(recs))
	for i := range recs {
		v := recs[i].Values()
		flags := recs[i].AnomalyFlags.Sorted()
		if flags == nil {
			flags = []string{}
		}
		v[13] = flags
		rows[i] = v
	}
	return rows
}

func tableIdent(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

func pgIdent(s string) string {
	return pgx.Identifier{s}.Sanitize()
}

func pgFQN(table string) string {
	return tableIdent(table).Sanitize()
}
