package table

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ISODate is the canonical calendar-date layout.
const ISODate = "2006-01-02"

// DateLayouts are the accepted date layouts, tried in order. Slash dates
// are read month first.
var DateLayouts = []string{
	ISODate,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"02.01.2006",
	"2-Jan-2006",
	"02-Jan-06",
	"Jan 2, 2006",
	"January 2, 2006",
	"1/2/06",
	"01-02-06",
	"1/2/06 15:04",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
}

var nullTokens = map[string]struct{}{
	"":     {},
	"na":   {},
	"n/a":  {},
	"nan":  {},
	"null": {},
	"none": {},
	"nil":  {},
	"#n/a": {},
	"-":    {},
}

var currencyCodes = []string{"USD", "EUR", "GBP", "JPY", "INR", "CAD", "AUD", "CHF", "CNY"}

// IsNullToken reports whether s is one of the textual spellings of a missing value.
func IsNullToken(s string) bool {
	_, ok := nullTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ParseCell converts a raw field from a text file into a Cell. Values stay
// Text until profiling; only missing-value spellings become Null.
func ParseCell(raw string) Cell {
	if IsNullToken(raw) {
		return Null()
	}
	return Text(strings.TrimSpace(raw))
}

// ParseInt parses a strict integer.
func ParseInt(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v, err == nil
}

// ParseFloat parses a strict finite float.
func ParseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseDate parses s with DateLayouts and returns the UTC calendar date.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Truncate(t), true
		}
	}
	return time.Time{}, false
}

// Truncate drops the time of day, keeping the calendar date in UTC.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseNumber parses a numeric string leniently. Currency symbols and codes,
// thousands separators and surrounding whitespace are stripped; accounting
// parentheses mark a negative value.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, code := range currencyCodes {
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, code), code))
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '$', '€', '£', '¥', '₹', ',', ' ', '\u00a0', '\'':
			continue
		}
		b.WriteRune(r)
	}

	v, ok := ParseFloat(b.String())
	if !ok {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

// Number returns the numeric value of a cell, parsing Text leniently.
func Number(c Cell) (float64, bool) {
	switch c.Kind() {
	case KindInteger, KindFloat:
		return c.Float()
	case KindText:
		return ParseNumber(c.s)
	}
	return 0, false
}

// DateOf returns the calendar date of a Date cell or a parseable Text cell.
func DateOf(c Cell) (time.Time, bool) {
	switch c.Kind() {
	case KindDate:
		return Truncate(c.t), true
	case KindText:
		return ParseDate(c.s)
	}
	return time.Time{}, false
}
