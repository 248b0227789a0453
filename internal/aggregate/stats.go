package aggregate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/spacematrix/internal/model"
)

// present returns the non-missing values of xs.
func present(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !model.IsMissing(x) {
			out = append(out, x)
		}
	}
	return out
}

// sumMinCount sums the non-missing values; it is Missing when every value is
// missing, so "no data" stays distinguishable from a computed zero.
func sumMinCount(values []float64) float64 {
	xs := present(values)
	if len(xs) == 0 {
		return model.Missing
	}
	return floats.Sum(xs)
}

// meanMinCount is the plain mean of the non-missing values, or Missing.
func meanMinCount(values []float64) float64 {
	xs := present(values)
	if len(xs) == 0 {
		return model.Missing
	}
	return stat.Mean(xs, nil)
}

// weightedMean averages xs weighted by ws. Pairs with a missing value or a
// non-positive weight are excluded; the result is Missing when nothing
// remains.
func weightedMean(xs, ws []float64) float64 {
	var vals, weights []float64
	for i, x := range xs {
		if model.IsMissing(x) || model.IsMissing(ws[i]) || ws[i] <= 0 {
			continue
		}
		vals = append(vals, x)
		weights = append(weights, ws[i])
	}
	if len(vals) == 0 {
		return model.Missing
	}
	return stat.Mean(vals, weights)
}

// quantile returns the unweighted p-quantile of the non-missing values, or
// Missing. It interpolates linearly between the order statistics around
// rank (n-1)p, so quantile(0.9, [10 20]) is 19.
func quantile(p float64, xs []float64) float64 {
	vals := present(xs)
	if len(vals) == 0 {
		return model.Missing
	}
	sort.Float64s(vals)
	h := float64(len(vals)-1) * p
	lo := math.Floor(h)
	hi := math.Ceil(h)
	return vals[int(lo)] + (h-lo)*(vals[int(hi)]-vals[int(lo)])
}
