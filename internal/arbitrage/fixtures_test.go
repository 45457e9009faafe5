package arbitrage

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	tokA = Token{Address: common.HexToAddress("0x1000000000000000000000000000000000000001"), Decimals: 18, Symbol: "AAA", ChainID: 1}
	tokB = Token{Address: common.HexToAddress("0x2000000000000000000000000000000000000002"), Decimals: 6, Symbol: "BBB", ChainID: 1}
	tokC = Token{Address: common.HexToAddress("0x3000000000000000000000000000000000000003"), Decimals: 18, Symbol: "CCC", ChainID: 1}
	tokD = Token{Address: common.HexToAddress("0x4000000000000000000000000000000000000004"), Decimals: 18, Symbol: "DDD", ChainID: 1}
)

func bi(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad int " + s)
	}
	return v
}

func q96Big() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), 96)
}

// cpPool builds a constant product pool, rx is the reserve of x whatever the canonical order
func cpPool(addr string, dex string, x, y Token, rx, ry *big.Int, feeBps uint32) *PoolState {
	p := &PoolState{
		Address: common.HexToAddress(addr),
		DEX:     dex,
		Kind:    ConstantProduct,
		FeeBps:  feeBps,
	}
	if bytes.Compare(x.Address.Bytes(), y.Address.Bytes()) < 0 {
		p.Token0, p.Token1, p.Reserve0, p.Reserve1 = x, y, rx, ry
	} else {
		p.Token0, p.Token1, p.Reserve0, p.Reserve1 = y, x, ry, rx
	}
	return p
}

// clPool builds a concentrated liquidity pool around tick 0 unless told otherwise
func clPool(addr string, t0, t1 Token, sqrtP *big.Int, tick int32, liquidity *big.Int, feeBps uint32, ticks TickAccessor) *PoolState {
	if bytes.Compare(t0.Address.Bytes(), t1.Address.Bytes()) > 0 {
		panic("clPool tokens must be canonical")
	}
	return &PoolState{
		Address:      common.HexToAddress(addr),
		DEX:          "uniswap-v3",
		Kind:         ConcentratedLiquidity,
		Token0:       t0,
		Token1:       t1,
		FeeBps:       feeBps,
		SqrtPriceX96: sqrtP,
		Tick:         tick,
		Liquidity:    liquidity,
		TickSpacing:  60,
		Ticks:        ticks,
	}
}

type fakeFees struct {
	mu    sync.Mutex
	data  *FeeData
	err   error
	calls int
}

func (f *fakeFees) FeeData(context.Context) (*FeeData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type fakeGas struct {
	mu    sync.Mutex
	units uint64
	err   error
	calls int
}

func (g *fakeGas) EstimateGas(context.Context, *Opportunity) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.units, g.err
}

// recordingTicks wraps an accessor and remembers which ticks were crossed
type recordingTicks struct {
	inner   TickAccessor
	crossed []int32
}

func (r *recordingTicks) NextInitializedTick(ctx context.Context, pool common.Address, tick, spacing int32, lte bool) (int32, bool, error) {
	return r.inner.NextInitializedTick(ctx, pool, tick, spacing, lte)
}

func (r *recordingTicks) LiquidityNet(ctx context.Context, pool common.Address, tick int32) (*big.Int, error) {
	r.crossed = append(r.crossed, tick)
	return r.inner.LiquidityNet(ctx, pool, tick)
}

type brokenTicks struct{}

var errTicksDown = errors.New("tick source down")

func (brokenTicks) NextInitializedTick(context.Context, common.Address, int32, int32, bool) (int32, bool, error) {
	return 0, false, errTicksDown
}

func (brokenTicks) LiquidityNet(context.Context, common.Address, int32) (*big.Int, error) {
	return nil, errTicksDown
}
