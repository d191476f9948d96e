package table

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
)

// Format identifies an upload file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatTXT
	FormatXLSX
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatTXT:
		return "txt"
	case FormatXLSX:
		return "xlsx"
	default:
		return "unknown"
	}
}

// Extensions lists the accepted upload extensions.
var Extensions = []string{".csv", ".txt", ".xlsx"}

// ParseFormat returns the format for a name such as "csv" or "XLSX".
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "csv":
		return FormatCSV
	case "txt", "tsv":
		return FormatTXT
	case "xlsx":
		return FormatXLSX
	default:
		return FormatUnknown
	}
}

// FormatFromName returns the format implied by a file name's extension.
func FormatFromName(name string) (Format, error) {
	f := ParseFormat(filepath.Ext(name))
	if f == FormatUnknown {
		return f, skerrors.UnsupportedFormat(name, Extensions)
	}
	return f, nil
}

// ReadOptions controls how a file is turned into a RawTable.
type ReadOptions struct {
	Format Format

	// Delimiter overrides detection for CSV and TXT.
	Delimiter rune

	// KeepHeaders disables column-name cleaning.
	KeepHeaders bool

	// MaxRows stops reading after n data rows (0 = all).
	MaxRows int
}

// ReadFile reads a table from disk, inferring the format from the extension
// when opts.Format is unset.
func ReadFile(ctx context.Context, path string, opts ReadOptions) (*RawTable, error) {
	if opts.Format == FormatUnknown {
		f, err := FormatFromName(path)
		if err != nil {
			return nil, err
		}
		opts.Format = f
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, skerrors.FileNotFound(path)
		}
		return nil, skerrors.Wrap(err, skerrors.CodeUnreadable, "failed to open file")
	}
	defer f.Close()

	return Read(ctx, f, opts)
}

// Read reads a table in the given format.
func Read(ctx context.Context, r io.Reader, opts ReadOptions) (*RawTable, error) {
	switch opts.Format {
	case FormatCSV:
		return readDelimited(ctx, r, opts, ',', ';', '\t', '|')
	case FormatTXT:
		return readDelimited(ctx, r, opts, '\t', ',')
	case FormatXLSX:
		return readXLSX(ctx, r, opts)
	default:
		return nil, skerrors.New(skerrors.CodeUnsupportedFormat, "unknown file format")
	}
}

func readDelimited(ctx context.Context, r io.Reader, opts ReadOptions, candidates ...byte) (*RawTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeUnreadable, "failed to read file")
	}

	decoded, enc := decode(data)
	text, err := io.ReadAll(decoded)
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeEncoding, "failed to decode file").
			WithContext("encoding", enc.String())
	}

	delim := opts.Delimiter
	if delim == 0 {
		sample := text
		if len(sample) > 64*1024 {
			sample = sample[:64*1024]
		}
		delim = rune(DetectDelimiter(sample, candidates...))
	}

	cr := csv.NewReader(bytes.NewReader(text))
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, skerrors.New(skerrors.CodeUnreadable, "file is empty")
	}
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeUnreadable, "failed to read header")
	}

	t := New(headerNames(header, opts)...)
	line := 1
	for {
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, skerrors.ContextCanceled("read", err)
			}
		}
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, skerrors.Wrapf(err, skerrors.CodeUnreadable, "malformed row at line %d", line+1)
		}
		line++

		if appendRecord(t, record) && opts.MaxRows > 0 && t.Rows() >= opts.MaxRows {
			break
		}
	}
	return t, nil
}

func readXLSX(ctx context.Context, r io.Reader, opts ReadOptions) (*RawTable, error) {
	var (
		xl  *excelize.File
		err error
	)
	if f, ok := r.(*os.File); ok {
		xl, err = excelize.OpenFile(f.Name())
	} else {
		xl, err = excelize.OpenReader(r)
	}
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeUnreadable, "failed to open xlsx")
	}
	defer xl.Close()

	sheet := xl.GetSheetName(0)
	if sheet == "" {
		sheets := xl.GetSheetList()
		if len(sheets) == 0 {
			return nil, skerrors.New(skerrors.CodeUnreadable, "no sheets found in xlsx file")
		}
		sheet = sheets[0]
	}

	rows, err := xl.Rows(sheet)
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeUnreadable, "failed to read rows")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, skerrors.New(skerrors.CodeUnreadable, "xlsx sheet is empty")
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeUnreadable, "failed to read header")
	}

	t := New(headerNames(header, opts)...)
	conv := newXLSXCells(xl, sheet)
	raw := excelize.Options{RawCellValue: true}
	n := 0
	for rows.Next() {
		n++
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, skerrors.ContextCanceled("read", err)
			}
		}
		record, err := rows.Columns(raw)
		if err != nil {
			return nil, skerrors.Wrapf(err, skerrors.CodeUnreadable, "malformed row %d", n+1)
		}
		if appendCells(t, conv.row(record, n+1, t.Columns())) && opts.MaxRows > 0 && t.Rows() >= opts.MaxRows {
			break
		}
	}
	if err := rows.Error(); err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeUnreadable, "failed to iterate rows")
	}
	return t, nil
}

func headerNames(header []string, opts ReadOptions) []string {
	if opts.KeepHeaders {
		names := make([]string, len(header))
		for i, h := range header {
			h = strings.TrimSpace(h)
			if h == "" {
				h = fmt.Sprintf("column_%d", i+1)
			}
			names[i] = h
		}
		return names
	}
	return CleanColumnNames(header)
}

// appendRecord adds a record unless every field is empty. It reports whether
// a row was added.
func appendRecord(t *RawTable, record []string) bool {
	cells := make([]Cell, t.Columns())
	for i := range cells {
		if i < len(record) {
			cells[i] = ParseCell(record[i])
		}
	}
	return appendCells(t, cells)
}

// appendCells adds a row unless every cell is null.
func appendCells(t *RawTable, cells []Cell) bool {
	for _, c := range cells {
		if !c.IsNull() {
			t.AppendRow(cells)
			return true
		}
	}
	return false
}
