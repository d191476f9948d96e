package table

import (
	"fmt"
)

// RawTable is an ordered set of named columns of untyped cells.
// Columns always have equal length.
type RawTable struct {
	names   []string
	columns [][]Cell
}

// New creates an empty table with the given column names.
func New(names ...string) *RawTable {
	t := &RawTable{
		names:   append([]string(nil), names...),
		columns: make([][]Cell, len(names)),
	}
	return t
}

// FromRows builds a table from row-major cells. Short rows are padded with Null.
func FromRows(names []string, rows [][]Cell) *RawTable {
	t := New(names...)
	for _, r := range rows {
		t.AppendRow(r)
	}
	return t
}

// AppendRow appends one row. Missing trailing cells become Null and extra
// cells are dropped.
func (t *RawTable) AppendRow(cells []Cell) {
	for i := range t.columns {
		var c Cell
		if i < len(cells) {
			c = cells[i]
		}
		t.columns[i] = append(t.columns[i], c)
	}
}

// Names returns the column names in order.
func (t *RawTable) Names() []string {
	return t.names
}

// Columns returns the number of columns.
func (t *RawTable) Columns() int {
	return len(t.names)
}

// Rows returns the number of rows.
func (t *RawTable) Rows() int {
	if len(t.columns) == 0 {
		return 0
	}
	return len(t.columns[0])
}

// Column returns the cells of column i.
func (t *RawTable) Column(i int) []Cell {
	return t.columns[i]
}

// Index returns the position of the named column, or -1.
func (t *RawTable) Index(name string) int {
	for i, n := range t.names {
		if n == name {
			return i
		}
	}
	return -1
}

// Cell returns the cell at row r, column c.
func (t *RawTable) Cell(r, c int) Cell {
	return t.columns[c][r]
}

// Row returns a copy of row r.
func (t *RawTable) Row(r int) []Cell {
	out := make([]Cell, len(t.columns))
	for c := range t.columns {
		out[c] = t.columns[c][r]
	}
	return out
}

// Head returns a table with at most n leading rows.
func (t *RawTable) Head(n int) *RawTable {
	if n > t.Rows() {
		n = t.Rows()
	}
	h := New(t.names...)
	for c := range t.columns {
		h.columns[c] = append([]Cell(nil), t.columns[c][:n]...)
	}
	return h
}

// MemoryEstimate approximates the in-memory size of the table in bytes.
func (t *RawTable) MemoryEstimate() int64 {
	var total int64
	for i, col := range t.columns {
		total += int64(len(t.names[i]))
		for _, c := range col {
			total += c.footprint()
		}
	}
	return total
}

// String returns a short description.
func (t *RawTable) String() string {
	return fmt.Sprintf("RawTable(%d rows x %d columns)", t.Rows(), t.Columns())
}
