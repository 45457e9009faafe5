package arbitrage

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAmountOut_KnownValue(t *testing.T) {
	// floor(1000 * 99 / (1000 + 99)) with afterFee = floor(100 * 9970 / 10000)
	out, err := GetAmountOut(big.NewInt(100), big.NewInt(1000), big.NewInt(1000), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(90), out.Int64())
}

func TestGetAmountOut_IncreasingAndBounded(t *testing.T) {
	reserveIn := bi("1000000000000000000000")
	reserveOut := bi("2500000000000")
	step := bi("10000000000000000")

	prev := new(big.Int)
	amount := new(big.Int)
	for i := 0; i < 200; i++ {
		amount.Add(amount, step)
		out, err := GetAmountOut(amount, reserveIn, reserveOut, 30)
		require.NoError(t, err)
		assert.Equal(t, 1, out.Cmp(prev), "output must grow with input at step %d", i)
		assert.Equal(t, -1, out.Cmp(reserveOut), "output must stay below reserveOut")
		prev = out
	}

	// even an absurd input never drains the pool
	huge := new(big.Int).Mul(reserveIn, big.NewInt(1_000_000))
	out, err := GetAmountOut(huge, reserveIn, reserveOut, 30)
	require.NoError(t, err)
	assert.Equal(t, -1, out.Cmp(reserveOut))
}

func TestGetAmountOut_Rejects(t *testing.T) {
	_, err := GetAmountOut(big.NewInt(0), big.NewInt(1000), big.NewInt(1000), 30)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.ErrorIs(t, err, ErrSimulation)

	_, err = GetAmountOut(big.NewInt(-5), big.NewInt(1000), big.NewInt(1000), 30)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = GetAmountOut(big.NewInt(100), big.NewInt(0), big.NewInt(1000), 30)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	// rounds to nothing
	_, err = GetAmountOut(big.NewInt(1), big.NewInt(1000), big.NewInt(1000), 30)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	_, err = GetAmountOut(big.NewInt(100), nil, big.NewInt(1000), 30)
	assert.ErrorIs(t, err, ErrMalformedPool)
}

func TestApplyBps(t *testing.T) {
	assert.Equal(t, int64(9950), ApplyBps(big.NewInt(10000), 50).Int64())
	assert.Equal(t, int64(0), ApplyBps(big.NewInt(1), 50).Int64())
	assert.Equal(t, int64(0), ApplyBps(big.NewInt(1000), 10000).Int64())
	assert.Equal(t, int64(-995), ApplyBps(big.NewInt(-1000), 50).Int64())
}

func TestSpotRate(t *testing.T) {
	p := cpPool("0xaa", "uniswap", tokA, tokB, bi("1000"), bi("2000"), 30)

	ab, _ := SpotRate(p, tokA).Float64()
	ba, _ := SpotRate(p, tokB).Float64()
	assert.InDelta(t, 2.0, ab, 1e-12)
	assert.InDelta(t, 0.5, ba, 1e-12)
	assert.Nil(t, SpotRate(p, tokC))

	empty := cpPool("0xab", "uniswap", tokA, tokB, bi("0"), bi("2000"), 30)
	assert.Nil(t, SpotRate(empty, tokA))

	// sqrtPrice 2^96 is a 1:1 price
	cl := clPool("0xac", tokA, tokB, q96Big(), 0, bi("1000000"), 5, NewStaticTicks(nil))
	r, _ := SpotRate(cl, tokA).Float64()
	assert.InDelta(t, 1.0, r, 1e-12)
}

func TestPathSpotRate(t *testing.T) {
	p1 := cpPool("0x01", "uniswap", tokA, tokB, bi("1000000"), bi("2000000"), 0)
	p2 := cpPool("0x02", "uniswap", tokB, tokC, bi("1000000"), bi("3000000"), 0)
	p3 := cpPool("0x03", "uniswap", tokC, tokA, bi("6000000"), bi("1000000"), 0)

	rate, _ := PathSpotRate([]*PoolState{p1, p2, p3}, []Token{tokA, tokB, tokC, tokA}).Float64()
	assert.InDelta(t, 1.0, rate, 1e-12)

	p1.FeeBps = 30
	rate, _ = PathSpotRate([]*PoolState{p1, p2, p3}, []Token{tokA, tokB, tokC, tokA}).Float64()
	assert.InDelta(t, 0.997, rate, 1e-12)

	assert.Nil(t, PathSpotRate([]*PoolState{p1}, []Token{tokA}))
}

func TestPriceGapPct(t *testing.T) {
	assert.InDelta(t, 10.0, PriceGapPct(big.NewFloat(110), big.NewFloat(100)), 1e-9)
	assert.InDelta(t, -10.0, PriceGapPct(big.NewFloat(90), big.NewFloat(100)), 1e-9)
	assert.Equal(t, 0.0, PriceGapPct(big.NewFloat(5), big.NewFloat(5)))
	assert.Equal(t, 0.0, PriceGapPct(big.NewFloat(5), new(big.Float)))
}

func TestSpreadPct(t *testing.T) {
	// 2100 B per A on one pool, 2000 on the other, 30 bps each
	buy := cpPool("0x51", "sushiswap", tokA, tokB, bi("1000000000000000000000"), bi("2100000000000"), 30)
	sell := cpPool("0x52", "uniswap", tokA, tokB, bi("1000000000000000000000"), bi("2000000000000"), 30)
	opp := &Opportunity{Kind: Spatial, Pools: []*PoolState{buy, sell}, PathTokens: []Token{tokA, tokB, tokA}, BorrowToken: tokA}

	// 1.05 * 0.997^2 - 1
	assert.InDelta(t, 4.3709, SpreadPct(opp), 1e-3)

	opp.Pools = []*PoolState{sell, buy}
	assert.Less(t, SpreadPct(opp), 0.0)

	opp.Pools[0] = cpPool("0x53", "uniswap", tokA, tokB, bi("0"), bi("1"), 30)
	assert.Equal(t, 0.0, SpreadPct(opp))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1.5", FormatAmount(big.NewInt(1_500_000), 6))
	assert.Equal(t, "1", FormatAmount(bi("1000000000000000000"), 18))
	assert.Equal(t, "0.000000000000000001", FormatAmount(big.NewInt(1), 18))
	assert.Equal(t, "0", FormatAmount(nil, 18))
	assert.Equal(t, "-2.25", FormatAmount(big.NewInt(-2_250_000), 6))
	assert.Equal(t, "1.5 BBB", FormatFor(big.NewInt(1_500_000), tokB))
}
