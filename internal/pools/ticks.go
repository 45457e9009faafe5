package pools

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
)

type wordKey struct {
	pool  common.Address
	word  int16
	block uint64
}

type tickKey struct {
	pool  common.Address
	tick  int32
	block uint64
}

// TickCache memoizes tickBitmap words and liquidityNet values. Entries are keyed
// by block so a new snapshot never reads ticks from an older one.
type TickCache struct {
	words *lru.Cache[wordKey, *big.Int]
	nets  *lru.Cache[tickKey, *big.Int]
}

func NewTickCache(size int) (*TickCache, error) {
	if size <= 0 {
		size = 4096
	}
	words, err := lru.New[wordKey, *big.Int](size)
	if err != nil {
		return nil, fmt.Errorf("tick word cache: %w", err)
	}
	nets, err := lru.New[tickKey, *big.Int](size)
	if err != nil {
		return nil, fmt.Errorf("tick net cache: %w", err)
	}
	return &TickCache{words: words, nets: nets}, nil
}

// At returns an accessor reading through caller at block
func (c *TickCache) At(caller Caller, block uint64) *RPCTickAccessor {
	return &RPCTickAccessor{caller: caller, cache: c, block: block}
}

// RPCTickAccessor walks a V3 pool's tick bitmap over eth_call
type RPCTickAccessor struct {
	caller Caller
	cache  *TickCache
	block  uint64
}

func (a *RPCTickAccessor) word(ctx context.Context, pool common.Address, pos int16) (*big.Int, error) {
	key := wordKey{pool: pool, word: pos, block: a.block}
	if w, ok := a.cache.words.Get(key); ok {
		return w, nil
	}
	out, err := call(ctx, a.caller, v3PoolABI, pool, new(big.Int).SetUint64(a.block), "tickBitmap", pos)
	if err != nil {
		return nil, err
	}
	w, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("tickBitmap type assertion failed")
	}
	a.cache.words.Add(key, w)
	return w, nil
}

// NextInitializedTick searches within the bitmap word holding tick, the same walk the pool contract does
func (a *RPCTickAccessor) NextInitializedTick(ctx context.Context, pool common.Address, tick, tickSpacing int32, lte bool) (int32, bool, error) {
	if tickSpacing <= 0 {
		return 0, false, fmt.Errorf("invalid tick spacing %d", tickSpacing)
	}
	compressed := tick / tickSpacing
	if tick < 0 && tick%tickSpacing != 0 {
		compressed-- // round towards negative infinity
	}

	if lte {
		wordPos, bitPos := position(compressed)
		w, err := a.word(ctx, pool, wordPos)
		if err != nil {
			return 0, false, err
		}
		// all bits at or below bitPos
		mask := new(big.Int).Lsh(big.NewInt(1), bitPos+1)
		mask.Sub(mask, big.NewInt(1))
		masked := mask.And(mask, w)

		if masked.Sign() != 0 {
			msb := uint(masked.BitLen() - 1)
			return (compressed - int32(bitPos-msb)) * tickSpacing, true, nil
		}
		return (compressed - int32(bitPos)) * tickSpacing, false, nil
	}

	wordPos, bitPos := position(compressed + 1)
	w, err := a.word(ctx, pool, wordPos)
	if err != nil {
		return 0, false, err
	}
	// all bits at or above bitPos
	masked := new(big.Int).Rsh(w, bitPos)
	if masked.Sign() != 0 {
		lsb := masked.TrailingZeroBits()
		return (compressed + 1 + int32(lsb)) * tickSpacing, true, nil
	}
	return (compressed + 1 + int32(255-bitPos)) * tickSpacing, false, nil
}

func (a *RPCTickAccessor) LiquidityNet(ctx context.Context, pool common.Address, tick int32) (*big.Int, error) {
	key := tickKey{pool: pool, tick: tick, block: a.block}
	if net, ok := a.cache.nets.Get(key); ok {
		return new(big.Int).Set(net), nil
	}
	out, err := call(ctx, a.caller, v3PoolABI, pool, new(big.Int).SetUint64(a.block), "ticks", big.NewInt(int64(tick)))
	if err != nil {
		return nil, err
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("unexpected ticks result length: %d", len(out))
	}
	net, ok := out[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("liquidityNet type assertion failed")
	}
	a.cache.nets.Add(key, net)
	return new(big.Int).Set(net), nil
}

// position splits a compressed tick into bitmap word and bit index
func position(compressed int32) (int16, uint) {
	return int16(compressed >> 8), uint(compressed & 0xff)
}
