package table

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
)

func TestCell_Variants(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		cell Cell
		kind Kind
		str  string
	}{
		{Null(), KindNull, ""},
		{Int(42), KindInteger, "42"},
		{Float(9.99), KindFloat, "9.99"},
		{Date(day), KindDate, "2024-03-01"},
		{Text("abc"), KindText, "abc"},
	}

	for _, tt := range tests {
		if tt.cell.Kind() != tt.kind {
			t.Errorf("Kind() = %v, want %v", tt.cell.Kind(), tt.kind)
		}
		if tt.cell.String() != tt.str {
			t.Errorf("String() = %q, want %q", tt.cell.String(), tt.str)
		}
	}

	if v, ok := Float(3).Int(); !ok || v != 3 {
		t.Errorf("Float(3).Int() = %d, %v", v, ok)
	}
	if _, ok := Float(3.5).Int(); ok {
		t.Error("Float(3.5).Int() should fail")
	}
	if !Text("a").Equal(Text("a")) || Text("1").Equal(Int(1)) {
		t.Error("Equal should compare kind and value")
	}
}

func TestRawTable_Shape(t *testing.T) {
	tbl := FromRows([]string{"a", "b"}, [][]Cell{
		{Int(1), Text("x")},
		{Int(2)},
	})

	if tbl.Rows() != 2 || tbl.Columns() != 2 {
		t.Fatalf("shape = %dx%d, want 2x2", tbl.Rows(), tbl.Columns())
	}
	if !tbl.Cell(1, 1).IsNull() {
		t.Error("short row should be padded with Null")
	}
	if tbl.Index("b") != 1 || tbl.Index("zzz") != -1 {
		t.Error("Index lookup mismatch")
	}
	if h := tbl.Head(1); h.Rows() != 1 {
		t.Errorf("Head(1).Rows() = %d, want 1", h.Rows())
	}
	if tbl.MemoryEstimate() <= 0 {
		t.Error("MemoryEstimate should be positive")
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12", 12, true},
		{"$1,234.50", 1234.5, true},
		{" € 9.99 ", 9.99, true},
		{"USD 10", 10, true},
		{"(12.50)", -12.5, true},
		{"-$3", -3, true},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ParseNumber(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	inputs := []string{"2024-01-15", "2024-01-15 13:45:00", "2024-01-15T13:45:00Z", "01/15/2024", "1/15/2024", "15-Jan-2024", "Jan 15, 2024", "01-15-24", "1/15/24 00:00"}

	for _, in := range inputs {
		got, ok := ParseDate(in)
		if !ok {
			t.Errorf("ParseDate(%q) failed", in)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, want %v", in, got, want)
		}
	}

	if _, ok := ParseDate("not a date"); ok {
		t.Error("ParseDate should reject free text")
	}
}

func TestIsNullToken(t *testing.T) {
	for _, s := range []string{"", " ", "NA", "n/a", "NULL", "None", "#N/A", "nan"} {
		if !IsNullToken(s) {
			t.Errorf("IsNullToken(%q) = false, want true", s)
		}
	}
	if IsNullToken("0") {
		t.Error("IsNullToken(\"0\") = true, want false")
	}
}

func TestCleanColumnNames(t *testing.T) {
	got := CleanColumnNames([]string{" Sale Date ", "SKU-ID", "Unit Price ($)", "", "sku_id"})
	want := []string{"sale_date", "sku_id", "unit_price", "column_4", "sku_id_2"}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("CleanColumnNames[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		sample string
		want   byte
	}{
		{"a,b,c\n1,2,3\n4,5,6\n", ','},
		{"a;b;c\n1;2,5;3\n4;5;6\n", ';'},
		{"a\tb\n1\t2\n", '\t'},
		{"a|b|c\n1|2|3\n", '|'},
	}

	for _, tt := range tests {
		if got := DetectDelimiter([]byte(tt.sample)); got != tt.want {
			t.Errorf("DetectDelimiter(%q) = %q, want %q", tt.sample, got, tt.want)
		}
	}
}

func TestDetectEncoding(t *testing.T) {
	tests := []struct {
		data []byte
		want Encoding
	}{
		{[]byte("plain"), EncodingUTF8},
		{[]byte{0xEF, 0xBB, 0xBF, 'a'}, EncodingUTF8BOM},
		{[]byte{0xFF, 0xFE, 'a', 0}, EncodingUTF16LE},
		{[]byte{'c', 'a', 'f', 0xE9}, EncodingWindows1252},
	}

	for _, tt := range tests {
		if got := DetectEncoding(tt.data); got != tt.want {
			t.Errorf("DetectEncoding(%v) = %v, want %v", tt.data, got, tt.want)
		}
	}
}

func TestRead_CSV(t *testing.T) {
	input := "\xEF\xBB\xBFDate;SKU;Qty\n2024-01-01;a-1;3\n;;\n2024-01-02;b-2;NA\n"
	tbl, err := Read(context.Background(), strings.NewReader(input), ReadOptions{Format: FormatCSV})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got := strings.Join(tbl.Names(), ","); got != "date,sku,qty" {
		t.Errorf("Names() = %q", got)
	}
	if tbl.Rows() != 2 {
		t.Fatalf("Rows() = %d, want 2 (blank row skipped)", tbl.Rows())
	}
	if !tbl.Cell(1, 2).IsNull() {
		t.Error("NA should read as Null")
	}
	if tbl.Cell(0, 1).String() != "a-1" {
		t.Errorf("Cell(0,1) = %q", tbl.Cell(0, 1).String())
	}
}

func TestRead_Latin1(t *testing.T) {
	input := []byte("name,price\ncaf\xE9,3\n")
	tbl, err := Read(context.Background(), bytes.NewReader(input), ReadOptions{Format: FormatCSV})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := tbl.Cell(0, 0).String(); got != "café" {
		t.Errorf("decoded value = %q, want %q", got, "café")
	}
}

func TestRead_TXTPrefersTab(t *testing.T) {
	input := "date\tsku\tnote\n2024-01-01\tA\tx,y\n"
	tbl, err := Read(context.Background(), strings.NewReader(input), ReadOptions{Format: FormatTXT})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if tbl.Columns() != 3 {
		t.Errorf("Columns() = %d, want 3", tbl.Columns())
	}
}

func TestRead_Empty(t *testing.T) {
	_, err := Read(context.Background(), strings.NewReader(""), ReadOptions{Format: FormatCSV})
	if !skerrors.IsCode(err, skerrors.CodeUnreadable) {
		t.Errorf("Read(empty) error = %v, want CodeUnreadable", err)
	}
}

func TestRead_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Sale Date", "SKU", "Quantity"},
		{"2024-02-01", "A1", 4},
		{"2024-02-02", "B2", 5},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	tbl, err := Read(context.Background(), &buf, ReadOptions{Format: FormatXLSX})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if tbl.Rows() != 2 || tbl.Columns() != 3 {
		t.Fatalf("shape = %dx%d, want 2x3", tbl.Rows(), tbl.Columns())
	}
	if tbl.Names()[0] != "sale_date" {
		t.Errorf("Names()[0] = %q", tbl.Names()[0])
	}
	if tbl.Cell(1, 2).String() != "5" {
		t.Errorf("Cell(1,2) = %q, want 5", tbl.Cell(1, 2).String())
	}
}

func TestRead_XLSXDateCells(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	shortDate, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	if err != nil {
		t.Fatalf("NewStyle: %v", err)
	}
	custom := "dd/mm/yyyy;[Red]@"
	customDate, err := f.NewStyle(&excelize.Style{CustomNumFmt: &custom})
	if err != nil {
		t.Fatalf("NewStyle: %v", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		t.Fatalf("NewStyle: %v", err)
	}

	set := func(ref string, v interface{}) {
		t.Helper()
		if err := f.SetCellValue(sheet, ref, v); err != nil {
			t.Fatalf("SetCellValue(%s): %v", ref, err)
		}
	}
	style := func(ref string, id int) {
		t.Helper()
		if err := f.SetCellStyle(sheet, ref, ref, id); err != nil {
			t.Fatalf("SetCellStyle(%s): %v", ref, err)
		}
	}
	set("A1", "Date")
	set("B1", "SKU")
	set("C1", "Price")
	set("A2", day) // default date-time style
	set("B2", "A1")
	set("C2", 1234.5)
	style("C2", money)
	set("A3", day)
	style("A3", shortDate)
	set("B3", "B2")
	set("C3", 7)
	set("A4", day)
	style("A4", customDate)
	set("B4", "C3")
	set("C4", 8)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	tbl, err := Read(context.Background(), &buf, ReadOptions{Format: FormatXLSX})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if tbl.Rows() != 3 {
		t.Fatalf("Rows() = %d, want 3", tbl.Rows())
	}
	for r := 0; r < 3; r++ {
		c := tbl.Cell(r, 0)
		if c.Kind() != KindDate {
			t.Errorf("row %d date cell kind = %v (%q), want date", r, c.Kind(), c.String())
		}
		if got, ok := DateOf(c); !ok || !got.Equal(day) {
			t.Errorf("row %d DateOf() = %v, %v, want %v", r, got, ok, day)
		}
	}
	if v, ok := Number(tbl.Cell(0, 2)); !ok || v != 1234.5 {
		t.Errorf("formatted price = %v, %v, want 1234.5", v, ok)
	}
	if c := tbl.Cell(1, 2); c.Kind() == KindDate {
		t.Errorf("plain number read as date: %q", c.String())
	}
}

func TestIsDateFormatCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"yyyy-mm-dd", true},
		{"dd/mm/yy", true},
		{"mmm yyyy", true},
		{"h:mm:ss", false},
		{"#,##0.00", false},
		{"0.00;[Red]-0.00", false},
		{`"day "0`, false},
		{"[$-409]mmmm d, yyyy", true},
	}
	for _, tt := range tests {
		if got := isDateFormatCode(tt.code); got != tt.want {
			t.Errorf("isDateFormatCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestFormatFromName(t *testing.T) {
	if f, err := FormatFromName("sales.XLSX"); err != nil || f != FormatXLSX {
		t.Errorf("FormatFromName(xlsx) = %v, %v", f, err)
	}
	if _, err := FormatFromName("sales.xls"); !skerrors.IsCode(err, skerrors.CodeUnsupportedFormat) {
		t.Errorf("FormatFromName(xls) error = %v, want CodeUnsupportedFormat", err)
	}
}

func TestFromCanonical(t *testing.T) {
	qty, cost := 3.0, 1.25
	cat := "toys"
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rows []Canonical
		want []string
	}{
		{"required only", nil, []string{"date", "sku_id"}},
		{"sparse", []Canonical{
			{Date: day, SKU: "A", Quantity: &qty},
			{Date: day, SKU: "B", Category: &cat},
		}, []string{"date", "sku_id", "sales_quantity", "category"}},
		{"all", []Canonical{{Date: day, SKU: "A", Quantity: &qty, Price: &qty, Revenue: &qty,
			Stock: &qty, Category: &cat, ListPrice: &qty, Cost: &cost}}, CanonicalNames()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := FromCanonical(tt.rows)
			got := raw.Names()
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("Names() = %v, want %v", got, tt.want)
			}
			if raw.Rows() != len(tt.rows) {
				t.Errorf("Rows() = %d, want %d", raw.Rows(), len(tt.rows))
			}
		})
	}

	raw := FromCanonical([]Canonical{{Date: day, SKU: "A"}, {Date: day, SKU: "B", Quantity: &qty}})
	if !raw.Cell(0, 2).IsNull() {
		t.Errorf("Cell(0, 2) = %v, want null", raw.Cell(0, 2))
	}
	if got, ok := DateOf(raw.Cell(1, 0)); !ok || !got.Equal(day) {
		t.Errorf("date cell = %v, want %v", got, day)
	}
}
