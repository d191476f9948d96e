// Package sqldb implements storage.Repository on database/sql using DuckDB
// or SQLite. Each batch is one transaction with a prepared INSERT.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	_ "modernc.org/sqlite"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/model"
	"github.com/skuflow/skuflow/pkg/storage"
)

// Supported database/sql driver names.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

const dateLayout = "2006-01-02"

// Config holds repository configuration.
type Config struct {
	Driver string
	DSN    string
	Table  string // defaults to sales_records
}

// Repository is a SQL-backed record repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// Open connects, pings with a timeout and creates the records table.
func Open(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.Driver != DriverDuckDB && cfg.Driver != DriverSQLite {
		return nil, skerrors.Newf(skerrors.CodeStorageOpen, "unsupported records driver %q", cfg.Driver)
	}
	if strings.TrimSpace(cfg.DSN) == "" && cfg.Driver == DriverSQLite {
		return nil, skerrors.New(skerrors.CodeStorageOpen, "sqlite DSN must not be empty")
	}
	if cfg.Table == "" {
		cfg.Table = "sales_records"
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to open records database")
	}
	if cfg.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to ping records database")
	}

	r := &Repository{db: db, cfg: cfg}
	if err := r.migrate(ctx); err != nil {
		db.Close()
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to migrate records database")
	}
	return r, nil
}

func (r *Repository) migrate(ctx context.Context) error {
	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			upload_id TEXT NOT NULL,
			"date" TEXT NOT NULL,
			sku_id TEXT NOT NULL,
			sales_quantity DOUBLE,
			unit_price DOUBLE,
			sales_revenue DOUBLE,
			stock_level DOUBLE,
			category TEXT,
			category_code INTEGER,
			discount_pct DOUBLE,
			profit_margin DOUBLE,
			currency TEXT,
			is_anomaly BOOLEAN NOT NULL,
			anomaly_flags TEXT,
			created_at TEXT NOT NULL
		)`, r.cfg.Table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_upload ON %s(upload_id)`, r.cfg.Table, r.cfg.Table),
	}
	for _, m := range migrations {
		if _, err := r.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// WriteBatch inserts recs in a single transaction.
func (r *Repository) WriteBatch(ctx context.Context, recs []model.SalesRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to begin transaction")
	}
	stmt, err := tx.PrepareContext(ctx, r.insertSQL())
	if err != nil {
		_ = tx.Rollback()
		return 0, skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to prepare insert")
	}
	defer stmt.Close()

	for i := range recs {
		if _, err := stmt.ExecContext(ctx, rowValues(&recs[i])...); err != nil {
			_ = tx.Rollback()
			return 0, skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to insert record").
				WithContext("upload_id", recs[i].UploadID).
				WithContext("sku_id", recs[i].SKUID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to commit batch")
	}
	return int64(len(recs)), nil
}

// DeleteUpload removes every record of an upload.
func (r *Repository) DeleteUpload(ctx context.Context, uploadID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE upload_id = ?`, r.cfg.Table), uploadID)
	if err != nil {
		return 0, skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to delete records").WithContext("upload_id", uploadID)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Count returns the number of records of an upload.
func (r *Repository) Count(ctx context.Context, uploadID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE upload_id = ?`, r.cfg.Table), uploadID).Scan(&n)
	if err != nil {
		return 0, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to count records").WithContext("upload_id", uploadID)
	}
	return n, nil
}

// Records returns one page of an upload's records, newest date first. An
// empty sku matches every SKU.
func (r *Repository) Records(ctx context.Context, uploadID, sku string, offset, limit int) ([]model.SalesRecord, error) {
	offset, limit = storage.Page(offset, limit)
	where, args := "upload_id = ?", []any{uploadID}
	if sku != "" {
		where += " AND sku_id = ?"
		args = append(args, sku)
	}
	args = append(args, limit, offset)

	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY "date" DESC, sku_id LIMIT ? OFFSET ?`,
		columnList(), r.cfg.Table, where)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to query records").WithContext("upload_id", uploadID)
	}
	defer rows.Close()

	var out []model.SalesRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to scan record")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Summary aggregates an upload's records in one query.
func (r *Repository) Summary(ctx context.Context, uploadID string) (*storage.Summary, error) {
	q := fmt.Sprintf(`SELECT COUNT(*),
		COALESCE(SUM(sales_quantity), 0), COALESCE(SUM(sales_revenue), 0),
		COALESCE(AVG(sales_quantity), 0), COALESCE(AVG(sales_revenue), 0),
		COUNT(DISTINCT sku_id), MIN("date"), MAX("date")
		FROM %s WHERE upload_id = ?`, r.cfg.Table)

	s := &storage.Summary{UploadID: uploadID}
	var first, last sql.NullString
	err := r.db.QueryRowContext(ctx, q, uploadID).Scan(&s.Records,
		&s.TotalQuantity, &s.TotalRevenue, &s.AvgQuantity, &s.AvgRevenue,
		&s.UniqueSKUs, &first, &last)
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to summarize records").WithContext("upload_id", uploadID)
	}
	if first.Valid {
		if s.FirstDate, err = time.Parse(dateLayout, first.String); err != nil {
			return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to parse stored date")
		}
	}
	if last.Valid {
		if s.LastDate, err = time.Parse(dateLayout, last.String); err != nil {
			return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to parse stored date")
		}
	}
	return s, nil
}

func (r *Repository) insertSQL() string {
	placeholders := make([]string, len(model.Columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.cfg.Table, columnList(), strings.Join(placeholders, ", "))
}

func columnList() string {
	quoted := make([]string, len(model.Columns))
	for i, c := range model.Columns {
		quoted[i] = `"` + c + `"`
	}
	return strings.Join(quoted, ", ")
}

// rowValues formats the time columns as text so both drivers store them
// identically.
func rowValues(rec *model.SalesRecord) []any {
	v := rec.Values()
	v[1] = rec.Date.Format(dateLayout)
	v[14] = rec.CreatedAt.UTC().Format(time.RFC3339Nano)
	return v
}

func scanRecord(rows *sql.Rows) (model.SalesRecord, error) {
	var (
		rec          model.SalesRecord
		date         string
		qty, price   sql.NullFloat64
		revenue      sql.NullFloat64
		stock        sql.NullFloat64
		category     sql.NullString
		categoryCode sql.NullInt64
		discount     sql.NullFloat64
		margin       sql.NullFloat64
		currency     sql.NullString
		flags        sql.NullString
		createdAt    string
	)
	err := rows.Scan(&rec.UploadID, &date, &rec.SKUID, &qty, &price, &revenue, &stock,
		&category, &categoryCode, &discount, &margin, &currency, &rec.IsAnomaly, &flags, &createdAt)
	if err != nil {
		return rec, err
	}

	if rec.Date, err = time.Parse(dateLayout, date); err != nil {
		return rec, err
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return rec, err
	}
	rec.SalesQuantity = floatPtr(qty)
	rec.UnitPrice = floatPtr(price)
	rec.SalesRevenue = floatPtr(revenue)
	rec.StockLevel = floatPtr(stock)
	rec.DiscountPct = floatPtr(discount)
	rec.ProfitMargin = floatPtr(margin)
	if category.Valid {
		rec.Category = &category.String
	}
	if categoryCode.Valid {
		c := int(categoryCode.Int64)
		rec.CategoryCode = &c
	}
	rec.Currency = currency.String
	rec.AnomalyFlags = model.ParseFlags(flags.String)
	return rec, nil
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return &n.Float64
}
