package arbitrage

import (
	"errors"
	"fmt"
)

// simulation failures: skip the opportunity
var (
	ErrSimulation            = errors.New("simulation failed")
	ErrInvalidAmount         = fmt.Errorf("%w: amount must be positive", ErrSimulation)
	ErrTokenMismatch         = fmt.Errorf("%w: tokens do not match pool", ErrSimulation)
	ErrMalformedPool         = fmt.Errorf("%w: malformed pool state", ErrSimulation)
	ErrInsufficientLiquidity = fmt.Errorf("%w: insufficient liquidity", ErrSimulation)
)

// profitability gates: skip the opportunity
var (
	ErrFeeDataUnavailable = errors.New("fee data unavailable")
	ErrGasPriceTooHigh    = errors.New("gas price above ceiling")
	ErrGasEstimate        = errors.New("gas estimation failed")
)

// parameter building: skip, logged loudly
var (
	ErrSlippage   = errors.New("slippage tolerance yields zero minimum out")
	ErrParamBuild = errors.New("cannot build transaction params")
	ErrConfig     = errors.New("configuration error")
)

// SkipReason maps a non-fatal pipeline error to a short label for logs and metrics
func SkipReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, ErrSimulation):
		return "simulation_failure"
	// build and config problems surface through the gas probe too
	case errors.Is(err, ErrParamBuild):
		return "param_build"
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrFeeDataUnavailable):
		return "fee_data_unavailable"
	case errors.Is(err, ErrGasPriceTooHigh):
		return "gas_price_too_high"
	case errors.Is(err, ErrGasEstimate):
		return "gas_estimate_failed"
	case errors.Is(err, ErrSlippage):
		return "slippage"
	default:
		return "other"
	}
}

// IsSkippable reports whether err only disqualifies a single opportunity
func IsSkippable(err error) bool {
	return SkipReason(err) != "other" && err != nil
}
