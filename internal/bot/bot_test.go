package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pulkyeet/flash-arb/internal/arbitrage"
	"github.com/pulkyeet/flash-arb/internal/executor"
	"github.com/pulkyeet/flash-arb/internal/metrics"
	"github.com/pulkyeet/flash-arb/internal/notify"
	"github.com/pulkyeet/flash-arb/internal/pools"
	"github.com/pulkyeet/flash-arb/internal/storage"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth = arbitrage.Token{Address: common.HexToAddress("0x1000000000000000000000000000000000000001"), Decimals: 18, Symbol: "WETH", ChainID: 1}
	usdc = arbitrage.Token{Address: common.HexToAddress("0x2000000000000000000000000000000000000002"), Decimals: 6, Symbol: "USDC", ChainID: 1}

	flashContract = common.HexToAddress("0x00000000000000000000000000000000000000fa")
)

func bi(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad int " + s)
	}
	return v
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// weth sorts before usdc here, so reserve0 is always weth
func v2Pool(addr, dex string, rWeth, rUsdc string) *arbitrage.PoolState {
	return &arbitrage.PoolState{
		Address:  common.HexToAddress(addr),
		DEX:      dex,
		Kind:     arbitrage.ConstantProduct,
		Token0:   weth,
		Token1:   usdc,
		Reserve0: bi(rWeth),
		Reserve1: bi(rUsdc),
		FeeBps:   30,
	}
}

// sushi quotes 2100 usdc per weth against 2000 on uniswap
func spreadPools() []*arbitrage.PoolState {
	return []*arbitrage.PoolState{
		v2Pool("0xaaaa000000000000000000000000000000000001", "uniswap", "1000000000000000000000", "2000000000000"),
		v2Pool("0xbbbb000000000000000000000000000000000002", "sushiswap", "1000000000000000000000", "2100000000000"),
	}
}

func flatPools() []*arbitrage.PoolState {
	return []*arbitrage.PoolState{
		v2Pool("0xaaaa000000000000000000000000000000000001", "uniswap", "1000000000000000000000", "2000000000000"),
		v2Pool("0xbbbb000000000000000000000000000000000002", "sushiswap", "1000000000000000000000", "2000000000000"),
	}
}

type fakeSnapshots struct {
	snap *pools.Snapshot
	err  error
}

func (f *fakeSnapshots) Snapshot(context.Context) (*pools.Snapshot, error) {
	return f.snap, f.err
}

type fakeFees struct {
	data *arbitrage.FeeData
	err  error
}

func (f *fakeFees) FeeData(context.Context) (*arbitrage.FeeData, error) {
	return f.data, f.err
}

type fakeGas struct {
	units uint64
	err   error
}

func (g *fakeGas) EstimateGas(context.Context, *arbitrage.Opportunity) (uint64, error) {
	return g.units, g.err
}

type fakeExecutor struct {
	mu     sync.Mutex
	result *executor.ExecutionResult
	err    error
	calls  []*arbitrage.TxParams
}

func (e *fakeExecutor) Execute(_ context.Context, params *arbitrage.TxParams) (*executor.ExecutionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, params)
	return e.result, e.err
}

type fakeJournal struct {
	cycles   []*storage.CycleRecord
	attempts []*storage.AttemptRecord
	nextID   int64
}

func (j *fakeJournal) RecordCycle(c *storage.CycleRecord) (int64, error) {
	j.nextID++
	j.cycles = append(j.cycles, c)
	return j.nextID, nil
}

func (j *fakeJournal) RecordAttempts(attempts []*storage.AttemptRecord) error {
	j.attempts = append(j.attempts, attempts...)
	return nil
}

type fakePublisher struct {
	events []*notify.Event
}

func (p *fakePublisher) Publish(_ context.Context, ev *notify.Event) error {
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fixture struct {
	bot       *Bot
	snaps     *fakeSnapshots
	fees      *fakeFees
	gas       *fakeGas
	exec      *fakeExecutor
	journal   *fakeJournal
	publisher *fakePublisher
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T, poolSet []*arbitrage.PoolState, amounts ...string) *fixture {
	t.Helper()
	builder, err := arbitrage.NewBuilder(arbitrage.BuilderConfig{
		Contract: flashContract,
		Routers: map[string]common.Address{
			"uniswap":   common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"),
			"sushiswap": common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"),
		},
	})
	require.NoError(t, err)

	if len(amounts) == 0 {
		amounts = []string{"1000000000000000000"}
	}
	target := Target{Token: weth}
	for _, a := range amounts {
		target.Amounts = append(target.Amounts, bi(a))
	}

	f := &fixture{
		snaps:     &fakeSnapshots{snap: &pools.Snapshot{Block: 100, Pools: poolSet}},
		fees:      &fakeFees{data: &arbitrage.FeeData{GasPrice: big.NewInt(10_000_000_000)}},
		gas:       &fakeGas{units: 200000},
		exec:      &fakeExecutor{},
		journal:   &fakeJournal{},
		publisher: &fakePublisher{},
		metrics:   metrics.New("test"),
	}
	cfg := Config{
		Targets:     []Target{target},
		Native:      weth,
		SlippageBps: 50,
		Calculator: arbitrage.CalculatorConfig{
			GasBufferPct:    20,
			ProfitBufferBps: 1000,
		},
	}
	f.bot = New(f.snaps, f.fees, f.gas, builder, f.exec, cfg, quietLogger()).
		WithJournal(f.journal).
		WithPublisher(f.publisher).
		WithMetrics(f.metrics)
	return f
}

func confirmed() *executor.ExecutionResult {
	hash := common.HexToHash("0xfeed")
	return &executor.ExecutionResult{
		State:       executor.StateConfirmed,
		Success:     true,
		TxHash:      &hash,
		Nonce:       4,
		GasUsed:     180000,
		BlockNumber: 101,
	}
}

func TestCycleExecutesProfitableSpread(t *testing.T) {
	f := newFixture(t, spreadPools())
	f.exec.result = confirmed()

	report, err := f.bot.Cycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(100), report.Block)
	assert.Equal(t, 2, report.Pools)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 1, report.Profitable)
	require.Len(t, report.Results, 1)

	require.Len(t, f.exec.calls, 1)
	params := f.exec.calls[0]
	assert.Equal(t, arbitrage.PathMixedDex, params.Kind)
	assert.Equal(t, flashContract, params.To)
	assert.Equal(t, arbitrage.RealExecution, params.Intent)
	assert.Equal(t, "1000000000000000000", params.BorrowAmount.String())

	mixed, ok := params.Params.(arbitrage.MixedDexParams)
	require.True(t, ok)
	// buy usdc where it is cheap, sell it back where weth is cheap
	assert.Equal(t, common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"), mixed.RouterLeg1)
	assert.Equal(t, common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"), mixed.RouterLeg2)

	require.Len(t, report.Attempts, 1)
	rec := report.Attempts[0]
	assert.Equal(t, string(executor.StateConfirmed), rec.State)
	assert.True(t, rec.Success)
	assert.Equal(t, "mixed-dex", rec.PathKind)
	assert.Equal(t, common.HexToHash("0xfeed").Hex(), rec.TxHash)
	assert.Equal(t, uint64(101), rec.BlockNumber)
	assert.Equal(t, uint64(240000), rec.GasUnits)

	net, ok := new(big.Int).SetString(rec.NetProfit, 10)
	require.True(t, ok)
	assert.Positive(t, net.Sign())

	require.Len(t, f.journal.cycles, 1)
	assert.Equal(t, 1, f.journal.cycles[0].Profitable)
	assert.Empty(t, f.journal.cycles[0].Err)
	require.Len(t, f.journal.attempts, 1)
	assert.Equal(t, int64(1), f.journal.attempts[0].CycleID)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, rec.OpportunityID, f.publisher.events[0].OpportunityID)
	assert.Equal(t, "confirmed", f.publisher.events[0].State)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Executions.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CyclesTotal.WithLabelValues("ok")))
	assert.Equal(t, 100.0, testutil.ToFloat64(f.metrics.SnapshotBlock))
}

func TestCyclePicksBestAmount(t *testing.T) {
	// the small amount cannot cover gas
	f := newFixture(t, spreadPools(), "10000000000000000", "1000000000000000000")
	f.exec.result = confirmed()

	_, err := f.bot.Cycle(context.Background())
	require.NoError(t, err)
	require.Len(t, f.exec.calls, 1)
	assert.Equal(t, "1000000000000000000", f.exec.calls[0].BorrowAmount.String())
}

func TestCycleSizesBetweenConfiguredAmounts(t *testing.T) {
	// 0.1 weth leaves most of the spread unused and 100 weth overshoots it
	f := newFixture(t, spreadPools(), "100000000000000000", "100000000000000000000")
	f.exec.result = confirmed()

	report, err := f.bot.Cycle(context.Background())
	require.NoError(t, err)
	require.Len(t, f.exec.calls, 1)

	borrowed := f.exec.calls[0].BorrowAmount
	assert.True(t, borrowed.Cmp(bi("10000000000000000000")) > 0, "borrowed %s", borrowed)
	assert.True(t, borrowed.Cmp(bi("11000000000000000000")) < 0, "borrowed %s", borrowed)

	require.Len(t, report.Attempts, 1)
	assert.Equal(t, borrowed.String(), report.Attempts[0].BorrowAmount)
	gross, ok := new(big.Int).SetString(report.Attempts[0].GrossProfit, 10)
	require.True(t, ok)
	// 0.1 weth grosses about 0.0043
	assert.True(t, gross.Cmp(bi("200000000000000000")) > 0, "gross %s", gross)
}

func TestCycleGasCeilingBeatsUnprofitableAmount(t *testing.T) {
	// 1 weth hits the gas ceiling, 10000 weth has no gross profit at all
	f := newFixture(t, spreadPools(), "1000000000000000000", "10000000000000000000000")
	f.bot.cfg.Calculator.MaxGasPrice = big.NewInt(1_000_000_000)

	report, err := f.bot.Cycle(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.exec.calls)
	require.Len(t, report.Attempts, 1)
	rec := report.Attempts[0]
	assert.Equal(t, storage.StateSkipped, rec.State)
	assert.Equal(t, "gas_price_too_high", rec.SkipReason)
	assert.Contains(t, rec.Err, "gas price")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OpportunitiesSkipped.WithLabelValues("spatial", "gas_price_too_high")))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.OpportunitiesSkipped.WithLabelValues("spatial", "unprofitable")))
}

func TestCycleWarnsOnUnbuildablePath(t *testing.T) {
	f := newFixture(t, spreadPools())
	f.gas.err = fmt.Errorf("build probe: %w: no router for dex curve", arbitrage.ErrParamBuild)
	logger, hook := logtest.NewNullLogger()
	f.bot.logger = logger

	report, err := f.bot.Cycle(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Attempts, 1)
	assert.Equal(t, "param_build", report.Attempts[0].SkipReason)

	var warned *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "opportunity skipped" {
			warned = e
		}
	}
	require.NotNil(t, warned)
	assert.Equal(t, logrus.WarnLevel, warned.Level)
	assert.Equal(t, "param_build", warned.Data["reason"])
}

func TestCycleSkipsUnprofitable(t *testing.T) {
	f := newFixture(t, flatPools())

	report, err := f.bot.Cycle(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.exec.calls)
	assert.Equal(t, 0, report.Profitable)
	require.Len(t, report.Attempts, 1)
	assert.Equal(t, storage.StateUnprofitable, report.Attempts[0].State)
	assert.Equal(t, "unprofitable", report.Attempts[0].SkipReason)
	assert.Empty(t, f.publisher.events)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OpportunitiesSkipped.WithLabelValues("spatial", "unprofitable")))
}

func TestCycleSkipsWhenFeesUnavailable(t *testing.T) {
	f := newFixture(t, spreadPools())
	f.fees.err = errors.New("node down")

	report, err := f.bot.Cycle(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.exec.calls)
	require.Len(t, report.Attempts, 1)
	assert.Equal(t, storage.StateSkipped, report.Attempts[0].State)
	assert.Equal(t, "fee_data_unavailable", report.Attempts[0].SkipReason)
	assert.Contains(t, report.Attempts[0].Err, "node down")
}

func TestCyclePreflightFailureIsSkip(t *testing.T) {
	f := newFixture(t, spreadPools())
	f.exec.result = &executor.ExecutionResult{State: executor.StatePrepared}
	f.exec.err = fmt.Errorf("%w: execution reverted: INSUFFICIENT_OUTPUT_AMOUNT", executor.ErrPreflight)

	report, err := f.bot.Cycle(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Attempts, 1)
	rec := report.Attempts[0]
	assert.Equal(t, storage.StateSkipped, rec.State)
	assert.Equal(t, "preflight", rec.SkipReason)
	assert.Contains(t, rec.Err, "INSUFFICIENT_OUTPUT_AMOUNT")
	assert.Empty(t, f.publisher.events)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CyclesTotal.WithLabelValues("ok")))
}

func TestCycleBroadcastFailureFailsCycle(t *testing.T) {
	f := newFixture(t, spreadPools())
	f.exec.result = &executor.ExecutionResult{State: executor.StateBroadcastError, Nonce: 4}
	f.exec.err = fmt.Errorf("%w: replacement transaction underpriced", executor.ErrBroadcast)

	report, err := f.bot.Cycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, executor.ErrBroadcast)

	require.Len(t, report.Attempts, 1)
	assert.Equal(t, string(executor.StateBroadcastError), report.Attempts[0].State)

	require.Len(t, f.journal.cycles, 1)
	assert.Contains(t, f.journal.cycles[0].Err, "underpriced")
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "broadcast_error", f.publisher.events[0].State)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Executions.WithLabelValues("broadcast_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CyclesTotal.WithLabelValues("error")))
}

func TestCycleSnapshotFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.snaps.err = errors.New("no pools loaded")

	report, err := f.bot.Cycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot")
	assert.Empty(t, report.Attempts)
	assert.Empty(t, f.exec.calls)

	require.Len(t, f.journal.cycles, 1)
	assert.Contains(t, f.journal.cycles[0].Err, "no pools loaded")
	assert.Empty(t, f.journal.attempts)
}

func TestCycleStopsOnCancelledContext(t *testing.T) {
	f := newFixture(t, spreadPools())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.bot.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.exec.calls)
}
