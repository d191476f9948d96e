package schema

import "strings"

// vocabulary is checked in order; specific roles come before the generic
// ones whose keywords they contain ("unit_cost" before "cost").
var vocabulary = []struct {
	mapping  Mapping
	keywords []string
}{
	{MappingListPrice, []string{"list_price", "msrp", "rrp"}},
	{MappingCost, []string{"unit_cost", "cost_price", "cogs"}},
	{MappingRevenue, []string{"revenue", "sales_amount", "total_sales", "turnover"}},
	{MappingStock, []string{"stock", "inventory", "on_hand"}},
	{MappingDate, []string{"date", "sale_date", "transaction_date"}},
	{MappingSKU, []string{"sku", "sku_id", "product_id"}},
	{MappingQuantity, []string{"qty", "quantity", "units"}},
	{MappingPrice, []string{"price", "unit_price", "cost"}},
	{MappingCategory, []string{"category", "cat", "type"}},
}

// suggestMapping matches a column name against the role vocabularies and
// uses the detected type to break ties.
func suggestMapping(name string, dt DataType) Mapping {
	lower := strings.ToLower(name)
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return r == '_' || r == ' ' || r == '-' || r == '.'
	})

	for _, v := range vocabulary {
		if !compatible(v.mapping, dt) {
			continue
		}
		for _, kw := range v.keywords {
			if matches(lower, tokens, kw) {
				return v.mapping
			}
		}
	}
	return MappingUnmapped
}

// matches reports a case-insensitive substring hit. Keywords of three
// letters or fewer must start a name token so "cat" does not hit "location".
func matches(lower string, tokens []string, kw string) bool {
	if len(kw) > 3 {
		return strings.Contains(lower, kw)
	}
	for _, tok := range tokens {
		if strings.HasPrefix(tok, kw) {
			return true
		}
	}
	return false
}

func compatible(m Mapping, dt DataType) bool {
	switch m {
	case MappingDate:
		return dt == TypeDate || dt == TypeString || dt == TypeCategorical
	case MappingCategory:
		return dt != TypeDate && dt != TypeFloat
	default:
		return dt != TypeDate
	}
}
