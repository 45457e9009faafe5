package executor

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pulkyeet/flash-arb/internal/arbitrage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeeReader struct {
	baseFee  *big.Int
	tip      *big.Int
	price    *big.Int
	err      error
	tipCalls int
}

func (f *fakeFeeReader) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.Header{Number: big.NewInt(1), BaseFee: f.baseFee}, nil
}

func (f *fakeFeeReader) SuggestGasTipCap(context.Context) (*big.Int, error) {
	f.tipCalls++
	return f.tip, nil
}

func (f *fakeFeeReader) SuggestGasPrice(context.Context) (*big.Int, error) {
	return f.price, nil
}

func TestFeeOracle_EIP1559(t *testing.T) {
	reader := &fakeFeeReader{baseFee: gwei(10), tip: big.NewInt(1_500_000_000)}
	fees, err := NewFeeOracle(reader).FeeData(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "21500000000", fees.MaxFeePerGas.String())
	assert.Equal(t, "1500000000", fees.MaxPriorityFeePerGas.String())
	assert.Nil(t, fees.GasPrice)
	assert.Equal(t, fees.MaxFeePerGas, fees.PerGas())
	assert.NoError(t, validateFees(fees))
}

func TestFeeOracle_Legacy(t *testing.T) {
	reader := &fakeFeeReader{price: gwei(25)}
	fees, err := NewFeeOracle(reader).FeeData(context.Background())
	require.NoError(t, err)

	assert.Equal(t, gwei(25).String(), fees.GasPrice.String())
	assert.Nil(t, fees.MaxFeePerGas)
	assert.Zero(t, reader.tipCalls)
	assert.NoError(t, validateFees(fees))
}

func TestFeeOracle_HeaderError(t *testing.T) {
	_, err := NewFeeOracle(&fakeFeeReader{err: errors.New("503")}).FeeData(context.Background())
	assert.ErrorContains(t, err, "503")
}

func TestValidateFees(t *testing.T) {
	assert.Error(t, validateFees(nil))
	assert.Error(t, validateFees(&arbitrage.FeeData{}))
	assert.Error(t, validateFees(&arbitrage.FeeData{MaxFeePerGas: gwei(1)}))
	assert.Error(t, validateFees(&arbitrage.FeeData{MaxFeePerGas: gwei(1), MaxPriorityFeePerGas: gwei(3)}))
	assert.NoError(t, validateFees(&arbitrage.FeeData{MaxFeePerGas: gwei(3), MaxPriorityFeePerGas: gwei(0)}))
}
