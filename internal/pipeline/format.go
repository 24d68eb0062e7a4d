package pipeline

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// ToFixed renders v with the given number of decimals, rounding the exact
// binary value half away from zero. 1.005 is stored as 1.00499... and renders
// "1.00"; 0.125 is exact and renders "0.13".
func ToFixed(v float64, places int32) string {
	// 30 decimal places of the exact value cannot move a rounding decision
	// at one or two places.
	exact := strconv.FormatFloat(v, 'f', 30, 64)
	d, err := decimal.NewFromString(exact)
	if err != nil {
		return strconv.FormatFloat(v, 'f', int(places), 64)
	}
	return d.StringFixed(places)
}

// percentage renders count/total as a percentage with one decimal, or "0"
// when total is 0.
func percentage(count, total int) string {
	if total <= 0 {
		return "0"
	}
	return ToFixed(float64(count)/float64(total)*100, 1)
}
