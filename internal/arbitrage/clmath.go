package arbitrage

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Concentrated liquidity fixed point math. Prices are sqrt(token1/token0) in Q64.96,
// liquidity is uint128 and fees are in hundredths of a bip (pips).

const (
	MinTick int32 = -887272
	MaxTick int32 = 887272

	pipsDenominator = 1_000_000
)

var (
	MinSqrtRatio = uint256.NewInt(4295128739)
	MaxSqrtRatio = uint256.MustFromDecimal("1461446703485210103287273052203988822378723970342")

	q96        = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	q128       = new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	maxUint160 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 160), uint256.NewInt(1))
	maxUint256 = new(uint256.Int).Not(new(uint256.Int))

	errMathOverflow = errors.New("fixed point overflow")
	errDivByZero    = errors.New("division by zero")
)

// tickRatios[i] is sqrt(1.0001^-(2^i)) in Q128.128, applied when bit i of |tick| is set
var tickRatios = [20]*uint256.Int{
	uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),
	uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
	uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
	uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
	uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
	uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
	uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
	uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
	uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
	uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
	uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
	uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
	uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
	uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
	uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
	uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
	uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
	uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
	uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
	uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) * 2^96, rounded up
func SqrtRatioAtTick(tick int32) (*uint256.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("tick %d out of range", tick)
	}
	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}

	ratio := new(uint256.Int).Set(q128)
	for i, c := range tickRatios {
		if absTick&(1<<uint(i)) == 0 {
			continue
		}
		if i == 0 {
			ratio.Set(c)
			continue
		}
		ratio.Mul(ratio, c)
		ratio.Rsh(ratio, 128)
	}
	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	// Q128.128 -> Q64.96, rounding up so the result is never below the true price
	rem := new(uint256.Int).Lsh(ratio, 224)
	sqrtPrice := new(uint256.Int).Rsh(ratio, 32)
	if !rem.IsZero() {
		sqrtPrice.AddUint64(sqrtPrice, 1)
	}
	return sqrtPrice, nil
}

func mulDiv(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, errDivByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, denominator)
	if overflow {
		return nil, errMathOverflow
	}
	return z, nil
}

func mulDivRoundingUp(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	z, err := mulDiv(a, b, denominator)
	if err != nil {
		return nil, err
	}
	if !new(uint256.Int).MulMod(a, b, denominator).IsZero() {
		if z.Eq(maxUint256) {
			return nil, errMathOverflow
		}
		z.AddUint64(z, 1)
	}
	return z, nil
}

func divRoundingUp(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, errDivByZero
	}
	z := new(uint256.Int).Div(x, y)
	if !new(uint256.Int).Mod(x, y).IsZero() {
		z.AddUint64(z, 1)
	}
	return z, nil
}

// amount0Delta is L * (sqrtB - sqrtA) / (sqrtA * sqrtB)
func amount0Delta(sqrtA, sqrtB, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtA.IsZero() {
		return nil, errDivByZero
	}
	numerator1 := new(uint256.Int).Lsh(liquidity, 96)
	numerator2 := new(uint256.Int).Sub(sqrtB, sqrtA)

	if roundUp {
		t, err := mulDivRoundingUp(numerator1, numerator2, sqrtB)
		if err != nil {
			return nil, err
		}
		return divRoundingUp(t, sqrtA)
	}
	t, err := mulDiv(numerator1, numerator2, sqrtB)
	if err != nil {
		return nil, err
	}
	return t.Div(t, sqrtA), nil
}

// amount1Delta is L * (sqrtB - sqrtA)
func amount1Delta(sqrtA, sqrtB, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	diff := new(uint256.Int).Sub(sqrtB, sqrtA)
	if roundUp {
		return mulDivRoundingUp(liquidity, diff, q96)
	}
	return mulDiv(liquidity, diff, q96)
}

// nextSqrtPriceFromAmount0 adds amount of token0, price moves down
func nextSqrtPriceFromAmount0(sqrtP, liquidity, amount *uint256.Int) (*uint256.Int, error) {
	if amount.IsZero() {
		return new(uint256.Int).Set(sqrtP), nil
	}
	numerator1 := new(uint256.Int).Lsh(liquidity, 96)

	product, overflow := new(uint256.Int).MulOverflow(amount, sqrtP)
	if !overflow {
		denominator, overflow := new(uint256.Int).AddOverflow(numerator1, product)
		if !overflow {
			return mulDivRoundingUp(numerator1, sqrtP, denominator)
		}
	}

	// numerator1 / (numerator1/sqrtP + amount)
	denominator := new(uint256.Int).Div(numerator1, sqrtP)
	if _, overflow := denominator.AddOverflow(denominator, amount); overflow {
		return nil, errMathOverflow
	}
	return divRoundingUp(numerator1, denominator)
}

// nextSqrtPriceFromAmount1 adds amount of token1, price moves up
func nextSqrtPriceFromAmount1(sqrtP, liquidity, amount *uint256.Int) (*uint256.Int, error) {
	if liquidity.IsZero() {
		return nil, errDivByZero
	}
	var quotient *uint256.Int
	if !amount.Gt(maxUint160) {
		quotient = new(uint256.Int).Lsh(amount, 96)
		quotient.Div(quotient, liquidity)
	} else {
		var err error
		quotient, err = mulDiv(amount, q96, liquidity)
		if err != nil {
			return nil, err
		}
	}

	next, overflow := new(uint256.Int).AddOverflow(sqrtP, quotient)
	if overflow || next.Gt(maxUint160) {
		return nil, errMathOverflow
	}
	return next, nil
}

type swapStep struct {
	sqrtNext  *uint256.Int
	amountIn  *uint256.Int
	amountOut *uint256.Int
	feeAmount *uint256.Int
}

// computeSwapStep swaps exact input inside a single liquidity range, from sqrtCurrent towards sqrtTarget
func computeSwapStep(sqrtCurrent, sqrtTarget, liquidity, amountRemaining *uint256.Int, feePips uint32) (*swapStep, error) {
	zeroForOne := !sqrtCurrent.Lt(sqrtTarget)
	feeComplement := uint256.NewInt(uint64(pipsDenominator - feePips))

	remainingLessFee, err := mulDiv(amountRemaining, feeComplement, uint256.NewInt(pipsDenominator))
	if err != nil {
		return nil, err
	}

	var amountIn *uint256.Int
	if zeroForOne {
		amountIn, err = amount0Delta(sqrtTarget, sqrtCurrent, liquidity, true)
	} else {
		amountIn, err = amount1Delta(sqrtCurrent, sqrtTarget, liquidity, true)
	}
	if err != nil {
		return nil, err
	}

	var sqrtNext *uint256.Int
	if !remainingLessFee.Lt(amountIn) {
		sqrtNext = new(uint256.Int).Set(sqrtTarget)
	} else if zeroForOne {
		sqrtNext, err = nextSqrtPriceFromAmount0(sqrtCurrent, liquidity, remainingLessFee)
	} else {
		sqrtNext, err = nextSqrtPriceFromAmount1(sqrtCurrent, liquidity, remainingLessFee)
	}
	if err != nil {
		return nil, err
	}

	reachedTarget := sqrtNext.Eq(sqrtTarget)

	var amountOut *uint256.Int
	if zeroForOne {
		if !reachedTarget {
			if amountIn, err = amount0Delta(sqrtNext, sqrtCurrent, liquidity, true); err != nil {
				return nil, err
			}
		}
		amountOut, err = amount1Delta(sqrtNext, sqrtCurrent, liquidity, false)
	} else {
		if !reachedTarget {
			if amountIn, err = amount1Delta(sqrtCurrent, sqrtNext, liquidity, true); err != nil {
				return nil, err
			}
		}
		amountOut, err = amount0Delta(sqrtCurrent, sqrtNext, liquidity, false)
	}
	if err != nil {
		return nil, err
	}

	var feeAmount *uint256.Int
	if !reachedTarget {
		// the rest of the input stays in the pool as fee
		if amountRemaining.Lt(amountIn) {
			return nil, errMathOverflow
		}
		feeAmount = new(uint256.Int).Sub(amountRemaining, amountIn)
	} else {
		feeAmount, err = mulDivRoundingUp(amountIn, uint256.NewInt(uint64(feePips)), feeComplement)
		if err != nil {
			return nil, err
		}
	}

	return &swapStep{
		sqrtNext:  sqrtNext,
		amountIn:  amountIn,
		amountOut: amountOut,
		feeAmount: feeAmount,
	}, nil
}
