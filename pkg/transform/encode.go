package transform

import (
	"github.com/skuflow/skuflow/pkg/table"
)

// EncodeCategories assigns each record the position of its category in the
// first-seen vocabulary. One-hot output is derived from the same codes.
func EncodeCategories(t *Table, enc CategoryEncoding) {
	codes := make(map[string]int)
	t.Categories = t.Categories[:0]
	for i := range t.Records {
		rec := &t.Records[i]
		if rec.Category == nil {
			rec.CategoryCode = nil
			continue
		}
		code, ok := codes[*rec.Category]
		if !ok {
			code = len(t.Categories)
			codes[*rec.Category] = code
			t.Categories = append(t.Categories, *rec.Category)
		}
		c := code
		rec.CategoryCode = &c
	}
	t.Encoding = enc
}

// OneHotColumns returns one indicator column name per category.
func (t *Table) OneHotColumns() []string {
	names := make([]string, len(t.Categories))
	for i, c := range t.Categories {
		names[i] = "category_" + table.CleanColumnName(c)
	}
	return table.CleanColumnNames(names)
}

// OneHot returns the indicator vector of record i. A missing category yields
// all zeros.
func (t *Table) OneHot(i int) []uint8 {
	v := make([]uint8, len(t.Categories))
	if code := t.Records[i].CategoryCode; code != nil && *code < len(v) {
		v[*code] = 1
	}
	return v
}
