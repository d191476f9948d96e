package schema

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/table"
)

// Config controls schema detection.
type Config struct {
	// CategoricalRatio is the maximum unique/rows ratio for a string column
	// to be classified as categorical.
	CategoricalRatio float64

	// SampleSize is the number of distinct sample values kept per column.
	SampleSize int

	// Workers bounds concurrent column profiling (0 = GOMAXPROCS).
	Workers int
}

// DefaultConfig returns the default detection settings.
func DefaultConfig() Config {
	return Config{
		CategoricalRatio: 0.5,
		SampleSize:       5,
	}
}

// Detector infers a TableSchema from a RawTable.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector. Zero fields in cfg take defaults.
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.CategoricalRatio <= 0 {
		cfg.CategoricalRatio = def.CategoricalRatio
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = def.SampleSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Detector{cfg: cfg}
}

// Detect profiles every column of t. It is deterministic and has no side
// effects. A table without rows or columns fails with a schema error.
func (d *Detector) Detect(t *table.RawTable) (*TableSchema, error) {
	if t == nil || t.Rows() == 0 || t.Columns() == 0 {
		rows, cols := 0, 0
		if t != nil {
			rows, cols = t.Rows(), t.Columns()
		}
		return nil, skerrors.EmptyTable(rows, cols)
	}

	profiles := make([]ColumnProfile, t.Columns())
	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)
	for i := 0; i < t.Columns(); i++ {
		i := i
		g.Go(func() error {
			profiles[i] = d.profile(t.Names()[i], t.Column(i), t.Rows())
			return nil
		})
	}
	_ = g.Wait()

	s := &TableSchema{
		Columns:        profiles,
		RowCount:       t.Rows(),
		ColumnCount:    t.Columns(),
		MemoryEstimate: t.MemoryEstimate(),
	}
	s.SuggestedDateColumn = firstWith(profiles, MappingDate)
	s.SuggestedSKUColumn = firstWith(profiles, MappingSKU)
	return s, nil
}

func (d *Detector) profile(name string, cells []table.Cell, rows int) ColumnProfile {
	p := ColumnProfile{Name: name, SampleValues: []string{}}

	seen := make(map[string]struct{})
	allInt, allFloat := true, true
	nonNull := 0

	for _, c := range cells {
		if c.IsNull() {
			p.NullCount++
			continue
		}
		nonNull++

		s := c.String()
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			if len(p.SampleValues) < d.cfg.SampleSize {
				p.SampleValues = append(p.SampleValues, s)
			}
		}

		if allInt && !isInteger(c) {
			allInt = false
		}
		if allFloat && !isFloat(c) {
			allFloat = false
		}
	}

	p.UniqueCount = len(seen)
	p.NullPercentage = round2(float64(p.NullCount) / float64(rows) * 100)

	switch {
	case nonNull == 0:
		p.DetectedType = TypeString
	case allInt:
		p.DetectedType = TypeInteger
	case allFloat:
		p.DetectedType = TypeFloat
	case allDates(cells):
		p.DetectedType = TypeDate
	case float64(p.UniqueCount)/float64(rows) <= d.cfg.CategoricalRatio:
		p.DetectedType = TypeCategorical
	default:
		p.DetectedType = TypeString
	}

	p.SuggestedMapping = suggestMapping(name, p.DetectedType)
	return p
}

// allDates is evaluated only after the numeric types are ruled out since
// date parsing tries every layout.
func allDates(cells []table.Cell) bool {
	for _, c := range cells {
		if c.IsNull() {
			continue
		}
		if _, ok := table.DateOf(c); !ok {
			return false
		}
	}
	return true
}

func isInteger(c table.Cell) bool {
	switch c.Kind() {
	case table.KindInteger:
		return true
	case table.KindFloat:
		_, ok := c.Int()
		return ok
	case table.KindText:
		_, ok := table.ParseInt(c.String())
		return ok
	}
	return false
}

func isFloat(c table.Cell) bool {
	switch c.Kind() {
	case table.KindInteger, table.KindFloat:
		return true
	case table.KindText:
		_, ok := table.ParseFloat(c.String())
		return ok
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
