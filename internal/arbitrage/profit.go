package arbitrage

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FeeSource supplies the current network fee quote
type FeeSource interface {
	FeeData(ctx context.Context) (*FeeData, error)
}

// GasEstimator prices an opportunity in gas units
type GasEstimator interface {
	EstimateGas(ctx context.Context, opp *Opportunity) (uint64, error)
}

// NativeQuoter converts an amount of the native token into token units
type NativeQuoter interface {
	NativeToToken(ctx context.Context, token Token, amountNative *big.Int) (*big.Int, error)
}

// CalculatorConfig holds the profitability thresholds
type CalculatorConfig struct {
	GasBufferPct    uint64                      // added on top of the estimate, 20 means +20%
	ProfitBufferBps uint32                      // haircut on net profit before the threshold
	MaxGasPrice     *big.Int                    // nil disables the ceiling
	MinProfit       map[common.Address]*big.Int // per borrow token, raw units
}

type Calculator struct {
	fees   FeeSource
	gas    GasEstimator
	quoter NativeQuoter
	cfg    CalculatorConfig
}

func NewCalculator(fees FeeSource, gas GasEstimator, quoter NativeQuoter, cfg CalculatorConfig) *Calculator {
	return &Calculator{fees: fees, gas: gas, quoter: quoter, cfg: cfg}
}

// MinProfitFor returns the threshold for token, zero when unset
func (c *Calculator) MinProfitFor(token Token) *big.Int {
	if v, ok := c.cfg.MinProfit[token.Address]; ok && v != nil {
		return v
	}
	return new(big.Int)
}

// Evaluate simulates opp at borrowAmount and prices it against gas.
// A nil error with IsProfitable false means the path simply does not pay.
func (c *Calculator) Evaluate(ctx context.Context, opp *Opportunity, borrowAmount *big.Int) (*ProfitabilityResult, *SimulationResult, error) {
	sim, err := SimulatePath(ctx, opp, borrowAmount)
	if err != nil {
		return nil, nil, err
	}

	result := &ProfitabilityResult{GrossProfit: new(big.Int).Set(sim.GrossProfit)}
	if sim.GrossProfit.Sign() <= 0 {
		result.NetProfit = new(big.Int).Set(sim.GrossProfit)
		result.BufferedNetProfit = new(big.Int).Set(sim.GrossProfit)
		result.Reason = "no gross profit"
		return result, sim, nil
	}

	fees, err := c.fees.FeeData(ctx)
	if err != nil {
		return nil, sim, fmt.Errorf("%w: %v", ErrFeeDataUnavailable, err)
	}
	perGas := fees.PerGas()
	if perGas == nil || perGas.Sign() <= 0 {
		return nil, sim, fmt.Errorf("%w: no usable fee per gas", ErrFeeDataUnavailable)
	}
	result.FeePerGas = new(big.Int).Set(perGas)

	// ceiling is checked before any gas estimation call
	if c.cfg.MaxGasPrice != nil && c.cfg.MaxGasPrice.Sign() > 0 && perGas.Cmp(c.cfg.MaxGasPrice) > 0 {
		return nil, sim, fmt.Errorf("%w: %s > %s wei", ErrGasPriceTooHigh, perGas, c.cfg.MaxGasPrice)
	}

	units, err := c.gas.EstimateGas(ctx, opp.WithAmount(borrowAmount))
	if err != nil {
		return nil, sim, fmt.Errorf("%w: %w", ErrGasEstimate, err)
	}
	if units == 0 {
		return nil, sim, fmt.Errorf("%w: zero units", ErrGasEstimate)
	}
	units += units * c.cfg.GasBufferPct / 100
	result.GasEstimateUnits = units

	result.GasCostNative = new(big.Int).Mul(new(big.Int).SetUint64(units), perGas)
	result.GasCostToken, err = c.quoter.NativeToToken(ctx, opp.BorrowToken, result.GasCostNative)
	if err != nil {
		return nil, sim, fmt.Errorf("%w: gas cost conversion: %v", ErrFeeDataUnavailable, err)
	}

	result.NetProfit = new(big.Int).Sub(sim.GrossProfit, result.GasCostToken)
	result.BufferedNetProfit = ApplyBps(result.NetProfit, c.cfg.ProfitBufferBps)

	minProfit := c.MinProfitFor(opp.BorrowToken)
	result.IsProfitable = result.BufferedNetProfit.Cmp(minProfit) > 0
	if !result.IsProfitable {
		result.Reason = fmt.Sprintf("buffered net %s at or below minimum %s", result.BufferedNetProfit, minProfit)
	}
	return result, sim, nil
}

// IdentityQuoter treats the borrow token as the native token, e.g. WETH on mainnet
type IdentityQuoter struct{}

func (IdentityQuoter) NativeToToken(_ context.Context, _ Token, amountNative *big.Int) (*big.Int, error) {
	return new(big.Int).Set(amountNative), nil
}

// PoolQuoter converts with the spot price of a reference pool per token paired with the wrapped native token
type PoolQuoter struct {
	Native    Token
	Reference map[common.Address]*PoolState
}

func (q *PoolQuoter) NativeToToken(_ context.Context, token Token, amountNative *big.Int) (*big.Int, error) {
	if token.Equal(q.Native) {
		return new(big.Int).Set(amountNative), nil
	}
	pool, ok := q.Reference[token.Address]
	if !ok {
		return nil, fmt.Errorf("%w: no reference pool for %s", ErrConfig, token)
	}
	rate := SpotRate(pool, q.Native)
	if rate == nil {
		return nil, fmt.Errorf("%w: reference pool %s cannot be priced", ErrMalformedPool, pool.Address.Hex())
	}
	out, _ := new(big.Float).Mul(new(big.Float).SetInt(amountNative), rate).Int(nil)
	return out, nil
}
