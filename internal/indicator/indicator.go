// Package indicator derives the Space Matrix ratios of a block from its
// aggregates and flags inconsistent combinations of F and B.
package indicator

import (
	"github.com/sells-group/spacematrix/internal/model"
)

// Data-quality flags.
const (
	DQOK = iota
	// DQNoBuiltArea marks footprint coverage without attributed built area.
	DQNoBuiltArea
	// DQNoFootprint marks attributed built area without footprint coverage.
	DQNoFootprint
	// DQNoData marks blocks with neither.
	DQNoData
)

// Compute derives FSI, GSI, L and OSR from floor area f, footprint area b
// and block area a. Every division is guarded: a zero or missing
// denominator yields Missing. A negative FSI and a GSI outside [0, 1] are
// treated as invalid rather than clipped.
func Compute(f, b, a float64) model.Indicators {
	fsi := model.Div(f, a)
	if !model.IsMissing(fsi) && fsi < 0 {
		fsi = model.Missing
	}

	gsi := model.Div(b, a)
	if !model.IsMissing(gsi) && (gsi < 0 || gsi > 1) {
		gsi = model.Missing
	}

	l := model.Missing
	if !model.IsMissing(b) && b > 0 {
		l = model.Div(f, b)
	}

	osr := model.Missing
	if !model.IsMissing(fsi) && fsi > 0 && !model.IsMissing(gsi) {
		osr = (1 - gsi) / fsi
	}

	return model.Indicators{FSI: fsi, GSI: gsi, L: l, OSR: osr, DQFlag: DQFlag(f, b)}
}

// DQFlag classifies the combination of floor area f and footprint area b.
// Missing values count as zero.
func DQFlag(f, b float64) int {
	f, b = model.OrZero(f), model.OrZero(b)
	switch {
	case f <= 0 && b > 0:
		return DQNoBuiltArea
	case f > 0 && b <= 0:
		return DQNoFootprint
	case f <= 0 && b <= 0:
		return DQNoData
	default:
		return DQOK
	}
}

// Apply computes the indicators of every block in place.
func Apply(blocks []*model.Block) {
	for _, b := range blocks {
		b.Indices = Compute(b.Cadastre.BuiltArea, b.Footprint.Area, b.Area)
	}
}

// LevelsDiff is the gap between the height implied by F/B and the mean
// declared number of levels, or Missing when either is unknown.
func LevelsDiff(b *model.Block) float64 {
	if model.IsMissing(b.Indices.L) || model.IsMissing(b.Cadastre.Levels) {
		return model.Missing
	}
	return b.Indices.L - b.Cadastre.Levels
}
