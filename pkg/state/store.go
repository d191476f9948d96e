// Package state provides persistent storage for uploads and their
// processing state.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	_ "modernc.org/sqlite"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/model"
)

// Supported database/sql driver names.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

// SQLStore keeps upload state in DuckDB or SQLite.
type SQLStore struct {
	db     *sql.DB
	driver string
	mu     sync.RWMutex
}

// NewSQLStore opens the database and runs migrations.
func NewSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if driver != DriverDuckDB && driver != DriverSQLite {
		return nil, skerrors.Newf(skerrors.CodeStorageOpen, "unsupported state driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to open database")
	}
	if driver == DriverSQLite {
		// A single connection serializes writers and avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to open database")
	}

	store := &SQLStore{db: db, driver: driver}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to migrate database")
	}
	return store, nil
}

// migrate runs database migrations. Timestamps are RFC 3339 text so both
// drivers round-trip them identically.
func (s *SQLStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS uploads (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			blob_key TEXT NOT NULL,
			format TEXT,
			size_bytes BIGINT,
			row_count INTEGER,
			column_count INTEGER,
			status TEXT NOT NULL,
			error_message TEXT,
			uploaded_at TEXT NOT NULL,
			processed_at TEXT,
			detected_schema TEXT,
			validation_report TEXT,
			column_mapping TEXT,
			last_report TEXT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_uploads_status ON uploads(status)`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_uploaded ON uploads(uploaded_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Create inserts a new upload.
func (s *SQLStore) Create(ctx context.Context, u *model.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO uploads (id, filename, blob_key, format, size_bytes, row_count, column_count,
			status, error_message, uploaded_at, processed_at,
			detected_schema, validation_report, column_mapping, last_report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Filename, u.BlobKey, u.Format, u.SizeBytes, u.RowCount, u.ColumnCount,
		string(u.Status), nullString(u.ErrorMessage), formatTime(u.UploadedAt), formatTimePtr(u.ProcessedAt),
		nullJSON(u.DetectedSchema), nullJSON(u.ValidationReport), nullJSON(u.ColumnMapping), nullJSON(u.LastReport))
	if err != nil {
		return skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to create upload").WithContext("upload_id", u.ID)
	}
	return nil
}

const selectUpload = `
	SELECT id, filename, blob_key, format, size_bytes, row_count, column_count,
	       status, error_message, uploaded_at, processed_at,
	       detected_schema, validation_report, column_mapping, last_report
	FROM uploads`

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(row scanner) (*model.Upload, error) {
	u := &model.Upload{}
	var (
		format, errMsg, processedAt               sql.NullString
		sizeBytes                                 sql.NullInt64
		rowCount, columnCount                     sql.NullInt64
		status, uploadedAt                        string
		detected, validation, mapping, lastReport sql.NullString
	)
	err := row.Scan(&u.ID, &u.Filename, &u.BlobKey, &format, &sizeBytes, &rowCount, &columnCount,
		&status, &errMsg, &uploadedAt, &processedAt,
		&detected, &validation, &mapping, &lastReport)
	if err != nil {
		return nil, err
	}

	u.Format = format.String
	u.SizeBytes = sizeBytes.Int64
	u.RowCount = int(rowCount.Int64)
	u.ColumnCount = int(columnCount.Int64)
	u.Status = model.Status(status)
	u.ErrorMessage = errMsg.String
	u.UploadedAt = parseTime(uploadedAt)
	if processedAt.Valid && processedAt.String != "" {
		t := parseTime(processedAt.String)
		u.ProcessedAt = &t
	}
	u.DetectedSchema = rawJSON(detected)
	u.ValidationReport = rawJSON(validation)
	u.ColumnMapping = rawJSON(mapping)
	u.LastReport = rawJSON(lastReport)
	return u, nil
}

// Get retrieves an upload by ID.
func (s *SQLStore) Get(ctx context.Context, id string) (*model.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(ctx, id)
}

func (s *SQLStore) get(ctx context.Context, id string) (*model.Upload, error) {
	u, err := scanUpload(s.db.QueryRowContext(ctx, selectUpload+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, skerrors.UploadNotFound(id)
	}
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to read upload").WithContext("upload_id", id)
	}
	return u, nil
}

// List returns recent uploads, newest first. An empty status lists all.
func (s *SQLStore) List(ctx context.Context, status model.Status, limit int) ([]*model.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectUpload
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY uploaded_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to list uploads")
	}
	defer rows.Close()

	var uploads []*model.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to scan upload")
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// SaveMapping stores the user-confirmed column mapping.
func (s *SQLStore) SaveMapping(ctx context.Context, id string, mapping json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE uploads SET column_mapping = ? WHERE id = ?`, nullJSON(mapping), id)
	if err != nil {
		return skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to save column mapping").WithContext("upload_id", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return skerrors.UploadNotFound(id)
	}
	return nil
}

// BeginProcessing moves an upload to processing with a single conditional
// UPDATE. Only uploaded rows qualify unless rerun is set, which also admits
// processed and error rows. A processing row never qualifies.
func (s *SQLStore) BeginProcessing(ctx context.Context, id string, rerun bool) (*model.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	allowed := []string{string(model.StatusUploaded)}
	if rerun {
		allowed = append(allowed, string(model.StatusProcessed), string(model.StatusError))
	}
	query := fmt.Sprintf(
		`UPDATE uploads SET status = ?, error_message = NULL WHERE id = ? AND status IN (%s)`,
		placeholders(len(allowed)),
	)
	args := []any{string(model.StatusProcessing), id}
	for _, st := range allowed {
		args = append(args, st)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to begin processing").WithContext("upload_id", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to begin processing").WithContext("upload_id", id)
	}

	u, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, rejection(u)
	}
	return u, nil
}

// MarkProcessed finishes a run successfully.
func (s *SQLStore) MarkProcessed(ctx context.Context, id string, report json.RawMessage, at time.Time) error {
	return s.finish(ctx, id, model.StatusProcessed, "", report, at)
}

// MarkError finishes a run with an error message.
func (s *SQLStore) MarkError(ctx context.Context, id, message string, report json.RawMessage, at time.Time) error {
	return s.finish(ctx, id, model.StatusError, message, report, at)
}

func (s *SQLStore) finish(ctx context.Context, id string, status model.Status, message string, report json.RawMessage, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE uploads SET status = ?, error_message = ?, processed_at = ?, last_report = ?
		WHERE id = ? AND status = ?
	`, string(status), nullString(message), formatTime(at), nullJSON(report), id, string(model.StatusProcessing))
	if err != nil {
		return skerrors.Wrap(err, skerrors.CodeStorageWrite, "failed to update upload status").WithContext("upload_id", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		u, err := s.get(ctx, id)
		if err != nil {
			return err
		}
		return invalidTransition(u, status)
	}
	return nil
}

// Stats returns upload counts by status.
func (s *SQLStore) Stats(ctx context.Context) (map[model.Status]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM uploads GROUP BY status`)
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeStorageOpen, "failed to read stats")
	}
	defer rows.Close()

	stats := make(map[model.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats[model.Status(status)] = n
	}
	return stats, rows.Err()
}

// rejection explains why BeginProcessing did not apply.
func rejection(u *model.Upload) error {
	if u.Status == model.StatusProcessing {
		return skerrors.RunInProgress(u.ID)
	}
	return skerrors.AlreadyProcessed(u.ID, string(u.Status))
}

func invalidTransition(u *model.Upload, to model.Status) error {
	return skerrors.New(skerrors.CodeInvalidTransition, "upload is not processing").
		WithContext("upload_id", u.ID).
		WithContext("status", string(u.Status)).
		WithContext("target", string(to))
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func rawJSON(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}
