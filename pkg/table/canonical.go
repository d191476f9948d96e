package table

import "time"

// Canonical holds one cleaned sales row in canonical column form. Nil
// pointers are missing values.
type Canonical struct {
	Date      time.Time
	SKU       string
	Quantity  *float64
	Price     *float64
	Revenue   *float64
	Stock     *float64
	Category  *string
	ListPrice *float64
	Cost      *float64
}

// canonicalColumns are the canonical columns in output order. The first
// requiredCanonical are always written.
var canonicalColumns = []struct {
	name string
	cell func(*Canonical) Cell
}{
	{"date", func(r *Canonical) Cell { return Date(r.Date) }},
	{"sku_id", func(r *Canonical) Cell { return Text(r.SKU) }},
	{"sales_quantity", func(r *Canonical) Cell { return floatPtr(r.Quantity) }},
	{"unit_price", func(r *Canonical) Cell { return floatPtr(r.Price) }},
	{"sales_revenue", func(r *Canonical) Cell { return floatPtr(r.Revenue) }},
	{"stock_level", func(r *Canonical) Cell { return floatPtr(r.Stock) }},
	{"category", func(r *Canonical) Cell {
		if r.Category == nil {
			return Null()
		}
		return Text(*r.Category)
	}},
	{"list_price", func(r *Canonical) Cell { return floatPtr(r.ListPrice) }},
	{"unit_cost", func(r *Canonical) Cell { return floatPtr(r.Cost) }},
}

const requiredCanonical = 2

// CanonicalNames returns every canonical column name in output order.
func CanonicalNames() []string {
	names := make([]string, len(canonicalColumns))
	for i, c := range canonicalColumns {
		names[i] = c.name
	}
	return names
}

// FromCanonical materializes rows as a RawTable with canonical headers.
// date and sku_id are always present; other columns only when some row has a
// value for them.
func FromCanonical(rows []Canonical) *RawTable {
	var keep []int
	for i, c := range canonicalColumns {
		if i < requiredCanonical {
			keep = append(keep, i)
			continue
		}
		for j := range rows {
			if !c.cell(&rows[j]).IsNull() {
				keep = append(keep, i)
				break
			}
		}
	}

	names := make([]string, len(keep))
	for i, k := range keep {
		names[i] = canonicalColumns[k].name
	}
	out := New(names...)
	for j := range rows {
		cells := make([]Cell, len(keep))
		for i, k := range keep {
			cells[i] = canonicalColumns[k].cell(&rows[j])
		}
		out.AppendRow(cells)
	}
	return out
}

func floatPtr(p *float64) Cell {
	if p == nil {
		return Null()
	}
	return Float(*p)
}
