package pools

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pulkyeet/flash-arb/internal/arbitrage"
	"github.com/pulkyeet/flash-arb/internal/eth"
)

// Caller is the read side of an RPC client
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var (
	v2PairABI = mustParseABI(eth.UniswapV2PairABI)
	v3PoolABI = mustParseABI(eth.UniswapV3PoolABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse ABI: %v", err))
	}
	return parsed
}

// Spec describes a tracked pool. Token order is not required to be canonical.
type Spec struct {
	Address     common.Address
	DEX         string
	Kind        arbitrage.PoolKind
	TokenA      arbitrage.Token
	TokenB      arbitrage.Token
	FeeBps      uint32
	TickSpacing int32
}

func (s Spec) ordered() (arbitrage.Token, arbitrage.Token) {
	if s.TokenA.Address == s.TokenB.Address {
		return s.TokenA, s.TokenB
	}
	t0, _ := SortTokens(s.TokenA.Address, s.TokenB.Address)
	if t0 == s.TokenA.Address {
		return s.TokenA, s.TokenB
	}
	return s.TokenB, s.TokenA
}

// call packs method, runs it against pool at block and unpacks the outputs
func call(ctx context.Context, caller Caller, contract abi.ABI, pool common.Address, block *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &pool, Data: data}
	result, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, pool.Hex(), err)
	}

	unpacked, err := contract.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return unpacked, nil
}

// LoadV2 reads reserves of a constant product pair at block
func LoadV2(ctx context.Context, caller Caller, spec Spec, block *big.Int) (*arbitrage.PoolState, error) {
	unpacked, err := call(ctx, caller, v2PairABI, spec.Address, block, "getReserves")
	if err != nil {
		return nil, err
	}
	if len(unpacked) < 2 {
		return nil, fmt.Errorf("unexpected getReserves result length: %d", len(unpacked))
	}
	reserve0, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("reserve0 type assertion failed")
	}
	reserve1, ok := unpacked[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("reserve1 type assertion failed")
	}

	token0, token1 := spec.ordered()
	fee := spec.FeeBps
	if fee == 0 {
		fee = 30
	}
	return &arbitrage.PoolState{
		Address:     spec.Address,
		DEX:         spec.DEX,
		Kind:        arbitrage.ConstantProduct,
		Token0:      token0,
		Token1:      token1,
		FeeBps:      fee,
		BlockNumber: block.Uint64(),
		Reserve0:    reserve0,
		Reserve1:    reserve1,
	}, nil
}

// LoadV3 reads slot0 and active liquidity at block. Ticks are served lazily by ticks.
func LoadV3(ctx context.Context, caller Caller, spec Spec, block *big.Int, ticks arbitrage.TickAccessor) (*arbitrage.PoolState, error) {
	slot0, err := call(ctx, caller, v3PoolABI, spec.Address, block, "slot0")
	if err != nil {
		return nil, err
	}
	if len(slot0) < 2 {
		return nil, fmt.Errorf("unexpected slot0 result length: %d", len(slot0))
	}
	sqrtPrice, ok := slot0[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("sqrtPriceX96 type assertion failed")
	}
	tick, ok := slot0[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("tick type assertion failed")
	}

	liq, err := call(ctx, caller, v3PoolABI, spec.Address, block, "liquidity")
	if err != nil {
		return nil, err
	}
	liquidity, ok := liq[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("liquidity type assertion failed")
	}

	spacing := spec.TickSpacing
	if spacing == 0 {
		spacing = DefaultTickSpacing(spec.FeeBps)
	}
	if spacing == 0 {
		out, err := call(ctx, caller, v3PoolABI, spec.Address, block, "tickSpacing")
		if err != nil {
			return nil, err
		}
		s, ok := out[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("tickSpacing type assertion failed")
		}
		spacing = int32(s.Int64())
	}

	token0, token1 := spec.ordered()
	return &arbitrage.PoolState{
		Address:      spec.Address,
		DEX:          spec.DEX,
		Kind:         arbitrage.ConcentratedLiquidity,
		Token0:       token0,
		Token1:       token1,
		FeeBps:       spec.FeeBps,
		BlockNumber:  block.Uint64(),
		SqrtPriceX96: sqrtPrice,
		Tick:         int32(tick.Int64()),
		Liquidity:    liquidity,
		TickSpacing:  spacing,
		Ticks:        ticks,
	}, nil
}
