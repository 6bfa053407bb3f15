package common

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round rounds half away from zero to the nearest integer.
// https://stackoverflow.com/questions/18390266/how-can-we-truncate-float64-type-to-a-particular-precision
func Round(num float64) int {
	return int(num + math.Copysign(0.5, num))
}

// DecimalToFixed rounds num to precision decimal places, halves rounding up (away from zero).
// The rounding happens in decimal space, so values like 1.005 round to 1.01
// instead of falling victim to their binary representation.
// NaN and Inf are returned unchanged.
func DecimalToFixed(num float64, precision int) float64 {
	if math.IsNaN(num) || math.IsInf(num, 0) {
		return num
	}
	out, _ := decimal.NewFromFloat(num).Round(int32(precision)).Float64()
	return out
}
