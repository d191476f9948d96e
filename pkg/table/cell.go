// Package table holds the in-memory representation of an uploaded table and
// the readers that build it from CSV, TXT and XLSX files.
package table

import (
	"strconv"
	"time"
)

// Kind tags the variant stored in a Cell.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindDate
	KindText
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindDate:
		return "date"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Cell is a single table value. The zero Cell is Null.
type Cell struct {
	kind Kind
	i    int64
	f    float64
	t    time.Time
	s    string
}

// Null returns an empty cell.
func Null() Cell { return Cell{} }

// Int returns an integer cell.
func Int(v int64) Cell { return Cell{kind: KindInteger, i: v} }

// Float returns a float cell.
func Float(v float64) Cell { return Cell{kind: KindFloat, f: v} }

// Date returns a date cell.
func Date(v time.Time) Cell { return Cell{kind: KindDate, t: v} }

// Text returns a text cell.
func Text(v string) Cell { return Cell{kind: KindText, s: v} }

// Kind returns the variant tag.
func (c Cell) Kind() Kind { return c.kind }

// IsNull reports whether the cell holds no value.
func (c Cell) IsNull() bool { return c.kind == KindNull }

// Int returns the integer value. Float cells with an integral value convert.
func (c Cell) Int() (int64, bool) {
	switch c.kind {
	case KindInteger:
		return c.i, true
	case KindFloat:
		if c.f == float64(int64(c.f)) {
			return int64(c.f), true
		}
	}
	return 0, false
}

// Float returns the numeric value of an Integer or Float cell.
func (c Cell) Float() (float64, bool) {
	switch c.kind {
	case KindInteger:
		return float64(c.i), true
	case KindFloat:
		return c.f, true
	}
	return 0, false
}

// Time returns the value of a Date cell.
func (c Cell) Time() (time.Time, bool) {
	if c.kind == KindDate {
		return c.t, true
	}
	return time.Time{}, false
}

// String renders the cell as text. Null renders as "".
func (c Cell) String() string {
	switch c.kind {
	case KindInteger:
		return strconv.FormatInt(c.i, 10)
	case KindFloat:
		return strconv.FormatFloat(c.f, 'f', -1, 64)
	case KindDate:
		if c.t.Hour() == 0 && c.t.Minute() == 0 && c.t.Second() == 0 {
			return c.t.Format(ISODate)
		}
		return c.t.Format(time.RFC3339)
	case KindText:
		return c.s
	default:
		return ""
	}
}

// Equal reports whether two cells hold the same variant and value.
func (c Cell) Equal(o Cell) bool {
	if c.kind != o.kind {
		return false
	}
	switch c.kind {
	case KindInteger:
		return c.i == o.i
	case KindFloat:
		return c.f == o.f
	case KindDate:
		return c.t.Equal(o.t)
	case KindText:
		return c.s == o.s
	default:
		return true
	}
}

// footprint approximates the bytes a cell occupies in memory.
func (c Cell) footprint() int64 {
	const header = 64
	if c.kind == KindText {
		return header + int64(len(c.s))
	}
	return header
}
