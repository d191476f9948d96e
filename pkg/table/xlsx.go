package table

import (
	"strings"

	"github.com/xuri/excelize/v2"
)

// Built-in number formats that render a calendar date. Time-only formats
// (18-21, 45-47) are left out.
var xlsxDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true, 32: true, 33: true, 34: true, 35: true, 36: true,
	50: true, 51: true, 52: true, 53: true, 54: true, 55: true, 56: true, 57: true, 58: true,
}

// xlsxCells converts raw sheet values into cells. Numeric values whose cell
// style carries a date format are Excel serial dates and become Date cells.
type xlsxCells struct {
	xl       *excelize.File
	sheet    string
	date1904 bool
	isDate   map[int]bool // by style index
}

func newXLSXCells(xl *excelize.File, sheet string) *xlsxCells {
	c := &xlsxCells{xl: xl, sheet: sheet, isDate: make(map[int]bool)}
	if props, err := xl.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		c.date1904 = *props.Date1904
	}
	return c
}

// row converts the raw values of sheet row rowNum (1-based).
func (c *xlsxCells) row(raw []string, rowNum, width int) []Cell {
	cells := make([]Cell, width)
	for i := 0; i < width && i < len(raw); i++ {
		cells[i] = c.cell(raw[i], i+1, rowNum)
	}
	return cells
}

func (c *xlsxCells) cell(raw string, col, row int) Cell {
	cell := ParseCell(raw)
	if cell.IsNull() {
		return cell
	}
	serial, ok := ParseFloat(raw)
	if !ok || !c.dateStyled(col, row) {
		return cell
	}
	t, err := excelize.ExcelDateToTime(serial, c.date1904)
	if err != nil {
		return cell
	}
	return Date(t.UTC())
}

func (c *xlsxCells) dateStyled(col, row int) bool {
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return false
	}
	idx, err := c.xl.GetCellStyle(c.sheet, ref)
	if err != nil {
		return false
	}
	if v, ok := c.isDate[idx]; ok {
		return v
	}
	v := false
	if style, err := c.xl.GetStyle(idx); err == nil && style != nil {
		if style.CustomNumFmt != nil {
			v = isDateFormatCode(*style.CustomNumFmt)
		} else {
			v = xlsxDateFormats[style.NumFmt]
		}
	}
	c.isDate[idx] = v
	return v
}

// isDateFormatCode reports whether a custom number format shows a year or a
// day. Quoted literals and bracketed sections ([Red], [$-409]) are skipped.
func isDateFormatCode(code string) bool {
	inQuote, inBracket := false, false
	for _, r := range strings.ToLower(code) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		case r == 'y' || r == 'd':
			return true
		}
	}
	return false
}
