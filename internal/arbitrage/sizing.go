package arbitrage

import (
	"context"
	"math/big"
)

// sizingSteps bounds the ternary search, each step drops a third of the range
const sizingSteps = 20

// OptimalAmount searches [minAmount, maxAmount] for the borrow amount with the
// highest simulated gross profit. Gross profit along a path is unimodal in the
// input so the range narrows towards the better third point each step. Amounts
// that fail to simulate rank below any profit. The returned profit is nil when
// no amount in the range could be simulated.
func OptimalAmount(ctx context.Context, opp *Opportunity, minAmount, maxAmount *big.Int) (optimal, grossProfit *big.Int) {
	if minAmount == nil || maxAmount == nil || minAmount.Sign() <= 0 || maxAmount.Cmp(minAmount) < 0 {
		return nil, nil
	}

	left := new(big.Int).Set(minAmount)
	right := new(big.Int).Set(maxAmount)

	optimal = new(big.Int).Set(minAmount)
	grossProfit = grossAt(ctx, opp, minAmount)
	if p := grossAt(ctx, opp, maxAmount); beats(p, grossProfit) {
		optimal, grossProfit = new(big.Int).Set(maxAmount), p
	}

	for i := 0; i < sizingSteps; i++ {
		if ctx.Err() != nil {
			break
		}
		third := new(big.Int).Sub(right, left)
		third.Div(third, big.NewInt(3))
		if third.Sign() == 0 {
			break
		}
		mid1 := new(big.Int).Add(left, third)
		mid2 := new(big.Int).Add(mid1, third)

		profit1 := grossAt(ctx, opp, mid1)
		profit2 := grossAt(ctx, opp, mid2)

		if beats(profit1, grossProfit) {
			optimal, grossProfit = mid1, profit1
		}
		if beats(profit2, grossProfit) {
			optimal, grossProfit = mid2, profit2
		}

		if beats(profit1, profit2) {
			right = mid2
		} else {
			left = mid1
		}
	}
	return optimal, grossProfit
}

func grossAt(ctx context.Context, opp *Opportunity, amount *big.Int) *big.Int {
	sim, err := SimulatePath(ctx, opp, amount)
	if err != nil {
		return nil
	}
	return sim.GrossProfit
}

// beats orders profits with nil below everything
func beats(a, b *big.Int) bool {
	if a == nil {
		return false
	}
	return b == nil || a.Cmp(b) > 0
}
