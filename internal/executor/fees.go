package executor

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pulkyeet/flash-arb/internal/arbitrage"
)

// FeeReader is the fee side of an RPC client
type FeeReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// FeeOracle quotes EIP-1559 fees when the latest header carries a base fee, legacy gas price otherwise
type FeeOracle struct {
	chain FeeReader
}

func NewFeeOracle(chain FeeReader) *FeeOracle {
	return &FeeOracle{chain: chain}
}

func (o *FeeOracle) FeeData(ctx context.Context) (*arbitrage.FeeData, error) {
	header, err := o.chain.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}

	if header.BaseFee != nil && header.BaseFee.Sign() > 0 {
		tip, err := o.chain.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest tip: %w", err)
		}
		// maxFee = 2*baseFee + tip
		maxFee := new(big.Int).Mul(header.BaseFee, big.NewInt(2))
		maxFee.Add(maxFee, tip)
		return &arbitrage.FeeData{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}, nil
	}

	price, err := o.chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	return &arbitrage.FeeData{GasPrice: price}, nil
}

// validateFees checks a quote is usable for signing
func validateFees(f *arbitrage.FeeData) error {
	if f == nil {
		return fmt.Errorf("nil fee data")
	}
	if f.MaxFeePerGas != nil && f.MaxFeePerGas.Sign() > 0 {
		if f.MaxPriorityFeePerGas == nil || f.MaxPriorityFeePerGas.Sign() < 0 {
			return fmt.Errorf("missing priority fee")
		}
		if f.MaxPriorityFeePerGas.Cmp(f.MaxFeePerGas) > 0 {
			return fmt.Errorf("priority fee %s above max fee %s", f.MaxPriorityFeePerGas, f.MaxFeePerGas)
		}
		return nil
	}
	if f.GasPrice == nil || f.GasPrice.Sign() <= 0 {
		return fmt.Errorf("no gas price")
	}
	return nil
}
