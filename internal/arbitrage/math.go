package arbitrage

import (
	"fmt"
	"math/big"
)

var (
	bpsDenominator = big.NewInt(10000)
	q96Float       = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))
)

// GetAmountOut is the constant product output for a swap, floor division throughout:
// afterFee = amountIn*(10000-feeBps)/10000, out = reserveOut*afterFee/(reserveIn+afterFee)
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if reserveIn == nil || reserveOut == nil {
		return nil, fmt.Errorf("%w: missing reserves", ErrMalformedPool)
	}
	if reserveIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: reserveIn is zero", ErrInsufficientLiquidity)
	}
	if feeBps >= 10000 {
		return nil, fmt.Errorf("%w: fee %d bps", ErrMalformedPool, feeBps)
	}

	afterFee := new(big.Int).Mul(amountIn, big.NewInt(int64(10000-feeBps)))
	afterFee.Div(afterFee, bpsDenominator)

	numerator := new(big.Int).Mul(reserveOut, afterFee)
	denominator := new(big.Int).Add(reserveIn, afterFee)
	if denominator.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}

	amountOut := numerator.Div(numerator, denominator)
	if amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: zero output", ErrInsufficientLiquidity)
	}
	return amountOut, nil
}

// ApplyBps returns floor(amount*(10000-bps)/10000)
func ApplyBps(amount *big.Int, bps uint32) *big.Int {
	if bps >= 10000 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(10000-bps)))
	return out.Div(out, bpsDenominator)
}

// SpotRate is the marginal raw-unit price of tokenIn in tokenOut, fee excluded.
// Returns nil when the pool lacks the data to price it.
func SpotRate(pool *PoolState, tokenIn Token) *big.Float {
	if pool == nil || !pool.HasToken(tokenIn) {
		return nil
	}
	zeroForOne := pool.Token0.Equal(tokenIn)

	var token1PerToken0 *big.Float
	switch pool.Kind {
	case ConstantProduct:
		if pool.Reserve0 == nil || pool.Reserve1 == nil || pool.Reserve0.Sign() <= 0 || pool.Reserve1.Sign() <= 0 {
			return nil
		}
		token1PerToken0 = new(big.Float).Quo(new(big.Float).SetInt(pool.Reserve1), new(big.Float).SetInt(pool.Reserve0))
	case ConcentratedLiquidity:
		if pool.SqrtPriceX96 == nil || pool.SqrtPriceX96.Sign() <= 0 || pool.Liquidity == nil || pool.Liquidity.Sign() <= 0 {
			return nil
		}
		sqrtP := new(big.Float).Quo(new(big.Float).SetInt(pool.SqrtPriceX96), q96Float)
		token1PerToken0 = new(big.Float).Mul(sqrtP, sqrtP)
	default:
		return nil
	}

	if zeroForOne {
		return token1PerToken0
	}
	if token1PerToken0.Sign() == 0 {
		return nil
	}
	return new(big.Float).Quo(big.NewFloat(1), token1PerToken0)
}

// feeMultiplier is (10000-feeBps)/10000
func feeMultiplier(feeBps uint32) *big.Float {
	return new(big.Float).Quo(big.NewFloat(float64(10000-feeBps)), big.NewFloat(10000))
}

// PathSpotRate multiplies fee adjusted spot rates along tokens[i] -> tokens[i+1]
func PathSpotRate(pools []*PoolState, tokens []Token) *big.Float {
	if len(tokens) != len(pools)+1 {
		return nil
	}
	rate := big.NewFloat(1)
	for i, pool := range pools {
		r := SpotRate(pool, tokens[i])
		if r == nil {
			return nil
		}
		rate.Mul(rate, r)
		rate.Mul(rate, feeMultiplier(pool.FeeBps))
	}
	return rate
}

// PriceGapPct is how far price sits above ref in percent, negative below it
func PriceGapPct(price, ref *big.Float) float64 {
	if price == nil || ref == nil || ref.Sign() == 0 {
		return 0.0
	}
	diff := new(big.Float).Sub(price, ref)
	pct := new(big.Float).Quo(diff, ref)
	pct.Mul(pct, big.NewFloat(100.0))

	result, _ := pct.Float64()
	return result
}

// SpreadPct is the fee adjusted round trip edge of opp at spot prices, before
// price impact. Zero when a pool cannot be priced.
func SpreadPct(opp *Opportunity) float64 {
	rate := PathSpotRate(opp.Pools, opp.PathTokens)
	if rate == nil {
		return 0.0
	}
	return PriceGapPct(rate, big.NewFloat(1))
}
