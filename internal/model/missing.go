package model

import "math"

// Missing is the sentinel for a value that could not be computed.
// Numeric edge cases (zero denominators, all-missing groups, out-of-range
// ratios) produce Missing instead of an error or an infinity.
var Missing = math.NaN()

// IsMissing reports whether v is the missing sentinel (or any NaN/Inf).
func IsMissing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// Div divides num by den, returning Missing when the denominator is zero
// or when either operand is missing.
func Div(num, den float64) float64 {
	if IsMissing(num) || IsMissing(den) || den == 0 {
		return Missing
	}
	return num / den
}

// OrZero returns v, or 0 when v is missing.
func OrZero(v float64) float64 {
	if IsMissing(v) {
		return 0
	}
	return v
}
