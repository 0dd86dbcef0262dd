package martingale

import "github.com/shopspring/decimal"

// StakeFor: base * multiplier^gale.
func StakeFor(base, multiplier decimal.Decimal, gale int) decimal.Decimal {
	stake := base
	for i := 0; i < gale; i++ {
		stake = stake.Mul(multiplier)
	}
	return stake
}
