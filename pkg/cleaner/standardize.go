package cleaner

import (
	"context"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/table"
)

type standardized struct {
	rows        []Row
	failed      []RowError
	unparseable map[int]int // column index -> values coerced to missing
}

// chunkResult is written by exactly one worker.
type chunkResult struct {
	rows        []Row
	failed      []RowError
	unparseable map[int]int
}

// standardize converts every source row in parallel chunks. Results are
// merged in chunk order so the output keeps source order.
func (c *Cleaner) standardize(ctx context.Context, raw *table.RawTable, cols columns, opts Options) (*standardized, error) {
	n := raw.Rows()
	size := opts.ChunkSize
	if size <= 0 {
		size = 10000
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]chunkResult, (n+size-1)/size)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range results {
		lo, hi := i*size, min((i+1)*size, n)
		res := &results[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			*res = standardizeChunk(raw, cols, lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, skerrors.ContextCanceled("standardize", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, skerrors.ContextCanceled("standardize", err)
	}

	out := &standardized{unparseable: make(map[int]int)}
	for _, r := range results {
		out.rows = append(out.rows, r.rows...)
		out.failed = append(out.failed, r.failed...)
		for col, k := range r.unparseable {
			out.unparseable[col] += k
		}
	}
	return out, nil
}

func standardizeChunk(raw *table.RawTable, cols columns, lo, hi int) chunkResult {
	res := chunkResult{unparseable: make(map[int]int)}
	numeric := func(col column, r int) *float64 {
		if col.index < 0 {
			return nil
		}
		cell := raw.Cell(r, col.index)
		if cell.IsNull() {
			return nil
		}
		v, ok := table.Number(cell)
		if !ok {
			res.unparseable[col.index]++
			return nil
		}
		return &v
	}

	for r := lo; r < hi; r++ {
		dateCell := raw.Cell(r, cols.date.index)
		if dateCell.IsNull() {
			res.failed = append(res.failed, RowError{Row: r, Column: cols.date.name, Message: "missing date"})
			continue
		}
		date, ok := table.DateOf(dateCell)
		if !ok {
			res.failed = append(res.failed, RowError{Row: r, Column: cols.date.name, Message: "unparseable date " + quote(dateCell.String())})
			continue
		}
		sku := normalizeSKU(raw.Cell(r, cols.sku.index))
		if sku == "" {
			res.failed = append(res.failed, RowError{Row: r, Column: cols.sku.name, Message: "missing sku"})
			continue
		}

		row := Row{
			Index:     r,
			Date:      date,
			SKU:       sku,
			Quantity:  numeric(cols.quantity, r),
			Price:     numeric(cols.price, r),
			Revenue:   numeric(cols.revenue, r),
			Stock:     numeric(cols.stock, r),
			ListPrice: numeric(cols.listPrice, r),
			Cost:      numeric(cols.cost, r),
		}
		if cols.category.index >= 0 {
			if cat := strings.TrimSpace(raw.Cell(r, cols.category.index).String()); cat != "" {
				row.Category = &cat
			}
		}
		res.rows = append(res.rows, row)
	}
	return res
}

// normalizeSKU trims and upper-cases an identifier. Integral numbers keep
// their integer spelling so 1001 and "1001" agree.
func normalizeSKU(c table.Cell) string {
	if c.IsNull() {
		return ""
	}
	if c.Kind() == table.KindFloat {
		if i, ok := c.Int(); ok {
			return table.Int(i).String()
		}
	}
	return strings.ToUpper(strings.TrimSpace(c.String()))
}

func quote(s string) string {
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return `"` + s + `"`
}
