// Package schema infers column types and semantic roles from an uploaded table.
package schema

import (
	"encoding/json"
	"fmt"
)

// DataType is the detected storage type of a column.
type DataType string

const (
	TypeInteger     DataType = "integer"
	TypeFloat       DataType = "float"
	TypeDate        DataType = "date"
	TypeString      DataType = "string"
	TypeCategorical DataType = "categorical"
)

// IsNumeric reports whether the type holds numbers.
func (t DataType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// Mapping is the semantic role suggested for a column.
type Mapping string

const (
	MappingDate      Mapping = "date"
	MappingSKU       Mapping = "sku_id"
	MappingQuantity  Mapping = "quantity"
	MappingPrice     Mapping = "price"
	MappingCategory  Mapping = "category"
	MappingRevenue   Mapping = "revenue"
	MappingStock     Mapping = "stock_level"
	MappingListPrice Mapping = "list_price"
	MappingCost      Mapping = "cost"
	MappingUnmapped  Mapping = "unmapped"
)

// Mappings lists every role a column can take, in canonical order.
var Mappings = []Mapping{
	MappingDate, MappingSKU, MappingQuantity, MappingPrice, MappingCategory,
	MappingRevenue, MappingStock, MappingListPrice, MappingCost, MappingUnmapped,
}

// ParseMapping converts a role name into a Mapping.
func ParseMapping(s string) (Mapping, error) {
	for _, m := range Mappings {
		if string(m) == s {
			return m, nil
		}
	}
	if s == "sku" {
		return MappingSKU, nil
	}
	return MappingUnmapped, fmt.Errorf("unknown column mapping %q", s)
}

// IsNumeric reports whether the role expects numeric values.
func (m Mapping) IsNumeric() bool {
	switch m {
	case MappingQuantity, MappingPrice, MappingRevenue, MappingStock, MappingListPrice, MappingCost:
		return true
	default:
		return false
	}
}

// IsMapped reports whether the column has a role.
func (m Mapping) IsMapped() bool {
	return m != "" && m != MappingUnmapped
}

// ColumnProfile describes one column of a table.
type ColumnProfile struct {
	Name             string   `json:"name"`
	DetectedType     DataType `json:"detected_type"`
	SuggestedMapping Mapping  `json:"suggested_mapping"`
	NullCount        int      `json:"null_count"`
	NullPercentage   float64  `json:"null_percentage"`
	UniqueCount      int      `json:"unique_count"`
	SampleValues     []string `json:"sample_values"`
}

// TableSchema is the inferred structure of a table.
type TableSchema struct {
	Columns             []ColumnProfile `json:"columns"`
	RowCount            int             `json:"row_count"`
	ColumnCount         int             `json:"column_count"`
	SuggestedDateColumn string          `json:"suggested_date_column,omitempty"`
	SuggestedSKUColumn  string          `json:"suggested_sku_column,omitempty"`
	MemoryEstimate      int64           `json:"memory_estimate"`
}

// Column returns the profile with the given name.
func (s *TableSchema) Column(name string) (ColumnProfile, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnProfile{}, false
}

// Roles returns the first column index for each mapped role.
func (s *TableSchema) Roles() map[Mapping]int {
	roles := make(map[Mapping]int)
	for i, c := range s.Columns {
		if !c.SuggestedMapping.IsMapped() {
			continue
		}
		if _, taken := roles[c.SuggestedMapping]; !taken {
			roles[c.SuggestedMapping] = i
		}
	}
	return roles
}

// WithMapping returns a copy of the schema with user-confirmed roles applied.
// Columns named in overrides take the given role; any other column already
// holding an overridden role is unmapped so each role stays unambiguous.
func (s *TableSchema) WithMapping(overrides map[string]Mapping) (*TableSchema, error) {
	out := *s
	out.Columns = append([]ColumnProfile(nil), s.Columns...)
	if len(overrides) == 0 {
		return &out, nil
	}

	claimed := make(map[Mapping]bool)
	for name, m := range overrides {
		if _, ok := s.Column(name); !ok {
			return nil, fmt.Errorf("column mapping refers to unknown column %q", name)
		}
		if m.IsMapped() {
			claimed[m] = true
		}
	}

	for i := range out.Columns {
		c := &out.Columns[i]
		if m, ok := overrides[c.Name]; ok {
			c.SuggestedMapping = m
		} else if claimed[c.SuggestedMapping] {
			c.SuggestedMapping = MappingUnmapped
		}
	}
	out.SuggestedDateColumn = firstWith(out.Columns, MappingDate)
	out.SuggestedSKUColumn = firstWith(out.Columns, MappingSKU)
	return &out, nil
}

// JSON returns the schema encoded as JSON.
func (s *TableSchema) JSON() ([]byte, error) {
	return json.Marshal(s)
}

func firstWith(cols []ColumnProfile, m Mapping) string {
	for _, c := range cols {
		if c.SuggestedMapping == m {
			return c.Name
		}
	}
	return ""
}
