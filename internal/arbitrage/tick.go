package arbitrage

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// TickAccessor reads initialized ticks of a concentrated liquidity pool.
// Implementations must serve a single block so every read in a swap walk is consistent.
type TickAccessor interface {
	// NextInitializedTick finds the next initialized tick at or below tick (lte) or above it.
	// It may stop early at a bitmap word boundary, reporting initialized false.
	NextInitializedTick(ctx context.Context, pool common.Address, tick, tickSpacing int32, lte bool) (next int32, initialized bool, err error)
	LiquidityNet(ctx context.Context, pool common.Address, tick int32) (*big.Int, error)
}

// StaticTicks is an in-memory tick table
type StaticTicks struct {
	ticks []int32
	net   map[int32]*big.Int
}

func NewStaticTicks(liquidityNet map[int32]*big.Int) *StaticTicks {
	s := &StaticTicks{net: make(map[int32]*big.Int, len(liquidityNet))}
	for tick, net := range liquidityNet {
		s.ticks = append(s.ticks, tick)
		s.net[tick] = new(big.Int).Set(net)
	}
	sort.Slice(s.ticks, func(i, j int) bool { return s.ticks[i] < s.ticks[j] })
	return s
}

func (s *StaticTicks) NextInitializedTick(_ context.Context, _ common.Address, tick, _ int32, lte bool) (int32, bool, error) {
	if lte {
		// first index with ticks[i] > tick, the answer sits just before it
		i := sort.Search(len(s.ticks), func(i int) bool { return s.ticks[i] > tick })
		if i == 0 {
			return MinTick, false, nil
		}
		return s.ticks[i-1], true, nil
	}
	i := sort.Search(len(s.ticks), func(i int) bool { return s.ticks[i] > tick })
	if i == len(s.ticks) {
		return MaxTick, false, nil
	}
	return s.ticks[i], true, nil
}

func (s *StaticTicks) LiquidityNet(_ context.Context, _ common.Address, tick int32) (*big.Int, error) {
	if net, ok := s.net[tick]; ok {
		return new(big.Int).Set(net), nil
	}
	return new(big.Int), nil
}
