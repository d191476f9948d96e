package cleaner

import (
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/skuflow/skuflow/pkg/model"
	"github.com/skuflow/skuflow/pkg/table"
)

const (
	keySep  = "\x1f"
	keyNull = "\x00"
)

// dupGroup holds the positions of rows sharing one semantic key.
type dupGroup struct {
	key     string
	members []int
}

// dupKey builds the semantic key of a row: date, sku, quantity, price and
// category. Missing values are encoded distinctly from empty strings.
func dupKey(r *Row) string {
	var b strings.Builder
	b.WriteString(r.Date.Format(table.ISODate))
	b.WriteString(keySep)
	b.WriteString(r.SKU)
	b.WriteString(keySep)
	writeFloat(&b, r.Quantity)
	b.WriteString(keySep)
	writeFloat(&b, r.Price)
	b.WriteString(keySep)
	if r.Category != nil {
		b.WriteString(*r.Category)
	} else {
		b.WriteString(keyNull)
	}
	return b.String()
}

func writeFloat(b *strings.Builder, p *float64) {
	if p == nil {
		b.WriteString(keyNull)
		return
	}
	b.WriteString(strconv.FormatFloat(*p, 'g', -1, 64))
}

// groupDuplicates buckets rows by the xxh3 hash of their key, comparing the
// full key inside a bucket so hash collisions never merge distinct rows.
// Groups are returned in order of first appearance.
func groupDuplicates(rows []Row) []*dupGroup {
	buckets := make(map[uint64][]*dupGroup, len(rows))
	var order []*dupGroup
	for i := range rows {
		key := dupKey(&rows[i])
		h := xxh3.HashString(key)

		var g *dupGroup
		for _, cand := range buckets[h] {
			if cand.key == key {
				g = cand
				break
			}
		}
		if g == nil {
			g = &dupGroup{key: key}
			buckets[h] = append(buckets[h], g)
			order = append(order, g)
		}
		g.members = append(g.members, i)
	}
	return order
}

// resolveDuplicates applies the keep policy and returns the surviving rows in
// source order together with the source indexes of removed rows. When
// removal is disabled every member of a duplicate group is flagged instead.
func resolveDuplicates(rows []Row, opts Options) ([]Row, []int) {
	groups := groupDuplicates(rows)
	if len(groups) == len(rows) {
		return rows, nil
	}

	if !opts.RemoveDuplicates {
		for _, g := range groups {
			if len(g.members) < 2 {
				continue
			}
			for _, i := range g.members {
				rows[i].Flags.Add(model.FlagDuplicate)
			}
		}
		return rows, nil
	}

	drop := make([]bool, len(rows))
	for _, g := range groups {
		if len(g.members) < 2 {
			continue
		}
		keep := -1
		switch opts.DuplicateKeep {
		case KeepFirst:
			keep = g.members[0]
		case KeepLast:
			keep = g.members[len(g.members)-1]
		}
		for _, i := range g.members {
			if i != keep {
				drop[i] = true
			}
		}
	}

	kept := make([]Row, 0, len(rows))
	var dropped []int
	for i, r := range rows {
		if drop[i] {
			dropped = append(dropped, r.Index)
			continue
		}
		kept = append(kept, r)
	}
	return kept, dropped
}
