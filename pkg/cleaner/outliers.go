package cleaner

import (
	"math"
	"sort"

	"github.com/skuflow/skuflow/pkg/model"
)

// bounds is the closed range of non-outlier values.
type bounds struct {
	lo, hi float64
}

func (b bounds) contains(v float64) bool {
	return v >= b.lo && v <= b.hi
}

// flagOutliers flags rows whose quantity or price falls outside the bounds
// computed over that column.
func flagOutliers(rows []Row, opts Options) {
	fields := []func(*Row) *float64{
		func(r *Row) *float64 { return r.Quantity },
		func(r *Row) *float64 { return r.Price },
	}
	for _, field := range fields {
		var values []float64
		for i := range rows {
			if v := field(&rows[i]); v != nil {
				values = append(values, *v)
			}
		}
		b, ok := outlierBounds(values, opts.OutlierMethod, opts.threshold())
		if !ok {
			continue
		}
		for i := range rows {
			if v := field(&rows[i]); v != nil && !b.contains(*v) {
				rows[i].Flags.Add(model.FlagOutlier)
			}
		}
	}
}

// outlierBounds returns false when the sample is too small or has no spread.
func outlierBounds(values []float64, method OutlierMethod, k float64) (bounds, bool) {
	switch method {
	case OutlierZScore:
		if len(values) < 2 {
			return bounds{}, false
		}
		mean, sd := meanStddev(values)
		if sd == 0 {
			return bounds{}, false
		}
		return bounds{mean - k*sd, mean + k*sd}, true
	default:
		if len(values) < 4 {
			return bounds{}, false
		}
		s := sorted(values)
		q1, q3 := quantile(s, 0.25), quantile(s, 0.75)
		iqr := q3 - q1
		return bounds{q1 - k*iqr, q3 + k*iqr}, true
	}
}

// quantile interpolates linearly between the closest ranks of a sorted
// sample.
func quantile(s []float64, q float64) float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	pos := q * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	return s[lo] + (s[hi]-s[lo])*(pos-float64(lo))
}

// meanStddev returns the mean and the sample standard deviation.
func meanStddev(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / float64(len(values)-1))
}

func sorted(values []float64) []float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	return s
}
