package attendance

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Rate returns present/total as a percentage with one decimal, rounded half up.
// A zero total yields 0.
func Rate(present, total int) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(present)).
		Mul(hundred).
		DivRound(decimal.NewFromInt(int64(total)), 1)
}

// AverageRate is the unweighted mean of rates. Rates are averaged as-is;
// present/total are NOT recombined across sessions.
//
// Rounding: the exact mean is rounded half up to one decimal, the same
// precision as Rate, so 33.3, 33.3 and 33.4 average to 33.3 (not 33.33).
func AverageRate(rates []decimal.Decimal) decimal.Decimal {
	if len(rates) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(decimal.Zero, rates...).
		DivRound(decimal.NewFromInt(int64(len(rates))), 1)
}
