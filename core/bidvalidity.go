package core

import (
	"github.com/shopspring/decimal"
)

const monetaryPrecision int32 = 4 // 4 decimal places for CPM values (0.0001 precision)

// IsPositiveBid reports whether a bid is strictly positive once rounded to
// monetaryPrecision. Bidding logic that returns zero or a negative bid has
// declined to participate.
func IsPositiveBid(bid float64) bool {
	return decimal.NewFromFloat(bid).Round(monetaryPrecision).IsPositive()
}
