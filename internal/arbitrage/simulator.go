package arbitrage

import (
	"context"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// maxSwapSteps bounds the tick walk of a single concentrated liquidity hop
const maxSwapSteps = 1024

// SimulateHop returns the exact-input output of swapping amountIn of tokenIn for tokenOut in pool
func SimulateHop(ctx context.Context, pool *PoolState, tokenIn, tokenOut Token, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := pool.Validate(); err != nil {
		return nil, err
	}
	if tokenIn.Equal(tokenOut) || !pool.HasToken(tokenIn) || !pool.HasToken(tokenOut) {
		return nil, fmt.Errorf("%w: %s -> %s in %s", ErrTokenMismatch, tokenIn, tokenOut, pool.Address.Hex())
	}
	zeroForOne := pool.Token0.Equal(tokenIn)

	switch pool.Kind {
	case ConstantProduct:
		reserveIn, reserveOut := pool.Reserve0, pool.Reserve1
		if !zeroForOne {
			reserveIn, reserveOut = pool.Reserve1, pool.Reserve0
		}
		return GetAmountOut(amountIn, reserveIn, reserveOut, pool.FeeBps)
	case ConcentratedLiquidity:
		return swapExactInput(ctx, pool, zeroForOne, amountIn)
	}
	return nil, fmt.Errorf("%w: unknown kind %d", ErrMalformedPool, pool.Kind)
}

// swapExactInput walks initialized ticks until amountIn is consumed or the price limit is hit
func swapExactInput(ctx context.Context, pool *PoolState, zeroForOne bool, amountIn *big.Int) (*big.Int, error) {
	remaining, overflow := uint256.FromBig(amountIn)
	if overflow {
		return nil, fmt.Errorf("%w: amount exceeds 256 bits", ErrInvalidAmount)
	}
	sqrtP, overflow := uint256.FromBig(pool.SqrtPriceX96)
	if overflow || sqrtP.Lt(MinSqrtRatio) || !sqrtP.Lt(MaxSqrtRatio) {
		return nil, fmt.Errorf("%w: %s sqrt price out of range", ErrMalformedPool, pool.Address.Hex())
	}
	liquidity, overflow := uint256.FromBig(pool.Liquidity)
	if overflow {
		return nil, fmt.Errorf("%w: %s liquidity exceeds 256 bits", ErrMalformedPool, pool.Address.Hex())
	}

	var limit *uint256.Int
	if zeroForOne {
		limit = new(uint256.Int).AddUint64(MinSqrtRatio, 1)
	} else {
		limit = new(uint256.Int).SubUint64(MaxSqrtRatio, 1)
	}

	feePips := pool.FeeBps * 100
	tick := pool.Tick
	amountOut := new(uint256.Int)

	for steps := 0; !remaining.IsZero() && !sqrtP.Eq(limit); steps++ {
		if steps >= maxSwapSteps {
			return nil, fmt.Errorf("%w: %s swap did not settle within %d ticks", ErrInsufficientLiquidity, pool.Address.Hex(), maxSwapSteps)
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSimulation, err)
		}

		next, initialized, err := pool.Ticks.NextInitializedTick(ctx, pool.Address, tick, pool.TickSpacing, zeroForOne)
		if err != nil {
			return nil, fmt.Errorf("%w: tick lookup for %s: %v", ErrSimulation, pool.Address.Hex(), err)
		}
		if next < MinTick {
			next = MinTick
		} else if next > MaxTick {
			next = MaxTick
		}

		sqrtNext, err := SqrtRatioAtTick(next)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSimulation, err)
		}
		target := sqrtNext
		if (zeroForOne && sqrtNext.Lt(limit)) || (!zeroForOne && sqrtNext.Gt(limit)) {
			target = limit
		}

		start := sqrtP
		step, err := computeSwapStep(sqrtP, target, liquidity, remaining, feePips)
		if err != nil {
			return nil, fmt.Errorf("%w: swap step in %s: %v", ErrSimulation, pool.Address.Hex(), err)
		}
		consumed := new(uint256.Int).Add(step.amountIn, step.feeAmount)
		if consumed.Gt(remaining) {
			return nil, fmt.Errorf("%w: swap step in %s overspent input", ErrSimulation, pool.Address.Hex())
		}
		remaining.Sub(remaining, consumed)
		amountOut.Add(amountOut, step.amountOut)
		sqrtP = step.sqrtNext

		if sqrtP.Eq(sqrtNext) {
			if initialized {
				net, err := pool.Ticks.LiquidityNet(ctx, pool.Address, next)
				if err != nil {
					return nil, fmt.Errorf("%w: liquidityNet for %s at %d: %v", ErrSimulation, pool.Address.Hex(), next, err)
				}
				if liquidity, err = crossTick(liquidity, net, zeroForOne); err != nil {
					return nil, fmt.Errorf("%w: %s tick %d: %v", ErrMalformedPool, pool.Address.Hex(), next, err)
				}
			}
			if zeroForOne {
				tick = next - 1
			} else {
				tick = next
			}
		} else if !sqrtP.Eq(start) {
			// settled inside the current range
			break
		}
	}

	if !remaining.IsZero() {
		return nil, fmt.Errorf("%w: %s price limit reached with %s input left", ErrInsufficientLiquidity, pool.Address.Hex(), remaining.Dec())
	}
	if amountOut.IsZero() {
		return nil, fmt.Errorf("%w: %s zero output", ErrInsufficientLiquidity, pool.Address.Hex())
	}
	return amountOut.ToBig(), nil
}

// crossTick applies liquidityNet, negated when moving down through the tick
func crossTick(liquidity *uint256.Int, net *big.Int, zeroForOne bool) (*uint256.Int, error) {
	delta := new(big.Int).Set(net)
	if zeroForOne {
		delta.Neg(delta)
	}
	updated := new(big.Int).Add(liquidity.ToBig(), delta)
	if updated.Sign() < 0 {
		return nil, fmt.Errorf("liquidity underflow")
	}
	l, overflow := uint256.FromBig(updated)
	if overflow {
		return nil, fmt.Errorf("liquidity overflow")
	}
	return l, nil
}

// SimulatePath threads amount through every hop of opp
func SimulatePath(ctx context.Context, opp *Opportunity, amount *big.Int) (*SimulationResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(opp.Pools) == 0 || len(opp.PathTokens) != len(opp.Pools)+1 {
		return nil, fmt.Errorf("%w: path has %d pools and %d tokens", ErrMalformedPool, len(opp.Pools), len(opp.PathTokens))
	}

	result := &SimulationResult{
		AmountIn:   new(big.Int).Set(amount),
		HopOutputs: make([]*big.Int, 0, len(opp.Pools)),
	}
	current := amount
	for i, pool := range opp.Pools {
		out, err := SimulateHop(ctx, pool, opp.PathTokens[i], opp.PathTokens[i+1], current)
		if err != nil {
			return nil, fmt.Errorf("hop %d (%s): %w", i, pool.DEX, err)
		}
		result.HopOutputs = append(result.HopOutputs, out)
		current = out
	}

	result.FinalAmount = new(big.Int).Set(current)
	result.GrossProfit = new(big.Int).Sub(current, amount)
	return result, nil
}
