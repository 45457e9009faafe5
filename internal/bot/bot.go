package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pulkyeet/flash-arb/internal/arbitrage"
	"github.com/pulkyeet/flash-arb/internal/executor"
	"github.com/pulkyeet/flash-arb/internal/metrics"
	"github.com/pulkyeet/flash-arb/internal/notify"
	"github.com/pulkyeet/flash-arb/internal/pools"
	"github.com/pulkyeet/flash-arb/internal/storage"
	"github.com/sirupsen/logrus"
)

// Snapshotter supplies a fresh pool snapshot per cycle
type Snapshotter interface {
	Snapshot(ctx context.Context) (*pools.Snapshot, error)
}

// Executor submits built calls
type Executor interface {
	Execute(ctx context.Context, params *arbitrage.TxParams) (*executor.ExecutionResult, error)
}

// Journal records cycles, nil disables it
type Journal interface {
	RecordCycle(c *storage.CycleRecord) (int64, error)
	RecordAttempts(attempts []*storage.AttemptRecord) error
}

// Target is a borrow token with the amounts tried for it
type Target struct {
	Token   arbitrage.Token
	Amounts []*big.Int
}

type Config struct {
	Targets     []Target
	Native      arbitrage.Token
	Reference   map[common.Address]common.Address // token -> reference pool
	SlippageBps uint32
	Calculator  arbitrage.CalculatorConfig
}

type Bot struct {
	snapshots Snapshotter
	fees      arbitrage.FeeSource
	gas       arbitrage.GasEstimator
	builder   *arbitrage.Builder
	exec      Executor
	journal   Journal
	publisher notify.Publisher
	metrics   *metrics.Metrics
	cfg       Config
	logger    *logrus.Logger
	now       func() time.Time
}

func New(
	snapshots Snapshotter,
	fees arbitrage.FeeSource,
	gas arbitrage.GasEstimator,
	builder *arbitrage.Builder,
	exec Executor,
	cfg Config,
	logger *logrus.Logger,
) *Bot {
	return &Bot{
		snapshots: snapshots,
		fees:      fees,
		gas:       gas,
		builder:   builder,
		exec:      exec,
		publisher: notify.Nop{},
		metrics:   metrics.New(""),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// WithSnapshots swaps the snapshot source, e.g. to pin a block
func (b *Bot) WithSnapshots(s Snapshotter) *Bot {
	b.snapshots = s
	return b
}

// WithJournal records every cycle to j
func (b *Bot) WithJournal(j Journal) *Bot {
	b.journal = j
	return b
}

// WithPublisher fans execution events out through p
func (b *Bot) WithPublisher(p notify.Publisher) *Bot {
	if p != nil {
		b.publisher = p
	}
	return b
}

// WithMetrics reports pipeline counters to m instead of a private registry
func (b *Bot) WithMetrics(m *metrics.Metrics) *Bot {
	if m != nil {
		b.metrics = m
	}
	return b
}

// CycleReport summarises one RunCycle
type CycleReport struct {
	Block      uint64
	Pools      int
	Candidates int
	Profitable int
	Attempts   []*storage.AttemptRecord
	Results    []*executor.ExecutionResult
}

// RunCycle is one full pass: snapshot, find, evaluate, build, execute.
// Opportunity level failures are skips; a failed broadcast or confirmation
// wait stops the cycle and is returned so the scheduler backs off.
func (b *Bot) RunCycle(ctx context.Context) error {
	_, err := b.Cycle(ctx)
	return err
}

// Cycle is RunCycle returning what it saw
func (b *Bot) Cycle(ctx context.Context) (*CycleReport, error) {
	started := b.now()
	report := &CycleReport{}

	snap, err := b.snapshots.Snapshot(ctx)
	if err != nil {
		b.recordCycle(report, started, err)
		return report, fmt.Errorf("snapshot: %w", err)
	}
	report.Block = snap.Block
	report.Pools = len(snap.Pools)
	b.metrics.SnapshotPools.Set(float64(len(snap.Pools)))
	b.metrics.SnapshotBlock.Set(float64(snap.Block))

	calc := arbitrage.NewCalculator(b.fees, b.gas, b.quoter(snap), b.cfg.Calculator)

	var cycleErr error
targets:
	for _, target := range b.cfg.Targets {
		opps := arbitrage.FindOpportunities(snap.Pools, target.Token)
		report.Candidates += len(opps)
		b.logger.WithFields(logrus.Fields{
			"block":  snap.Block,
			"borrow": target.Token.String(),
			"found":  len(opps),
		}).Debug("opportunities found")

		for _, opp := range opps {
			if err := ctx.Err(); err != nil {
				cycleErr = err
				break targets
			}
			b.metrics.OpportunitiesFound.WithLabelValues(opp.Kind.String()).Inc()

			attempt, res, err := b.attempt(ctx, calc, opp, target, snap.Block)
			report.Attempts = append(report.Attempts, attempt)
			if attempt.State != storage.StateSkipped && attempt.State != storage.StateUnprofitable {
				report.Profitable++
			}
			if res != nil {
				report.Results = append(report.Results, res)
			}
			if err != nil {
				cycleErr = err
				break targets
			}
		}
	}

	b.recordCycle(report, started, cycleErr)
	return report, cycleErr
}

// attempt evaluates every configured amount, keeps the best profitable one and executes it.
// The returned error is non-nil only for failures that should fail the cycle.
func (b *Bot) attempt(ctx context.Context, calc *arbitrage.Calculator, opp *arbitrage.Opportunity, target Target, block uint64) (*storage.AttemptRecord, *executor.ExecutionResult, error) {
	rec := &storage.AttemptRecord{
		OpportunityID: opp.ID(),
		Kind:          opp.Kind.String(),
		Route:         opp.Route(),
		BorrowToken:   target.Token.Address.Hex(),
		BlockNumber:   block,
		CreatedAt:     b.now(),
	}
	log := b.logger.WithFields(logrus.Fields{
		"opportunity": opp.ID(),
		"kind":        opp.Kind.String(),
		"route":       opp.Route(),
		"block":       block,
		"spread_pct":  arbitrage.SpreadPct(opp),
	})

	best, err := b.bestAmount(ctx, calc, opp, target)
	// an amount that hit a gate explains the skip better than one that earns nothing
	if best == nil || (!best.result.IsProfitable && err != nil) {
		rec.State = storage.StateSkipped
		rec.SkipReason = arbitrage.SkipReason(err)
		if err == nil {
			rec.SkipReason = "no_amounts"
		}
		rec.Err = errString(err)
		b.skip(log, opp, rec.SkipReason, err)
		return rec, nil, nil
	}

	rec.BorrowAmount = best.amount.String()
	rec.GrossProfit = best.result.GrossProfit.String()
	if best.result.NetProfit != nil {
		rec.NetProfit = best.result.NetProfit.String()
	}
	rec.GasUnits = best.result.GasEstimateUnits

	if !best.result.IsProfitable {
		rec.State = storage.StateUnprofitable
		rec.SkipReason = "unprofitable"
		log.WithFields(logrus.Fields{
			"borrow": arbitrage.FormatFor(best.amount, target.Token),
			"gross":  arbitrage.FormatFor(best.result.GrossProfit, target.Token),
			"reason": best.result.Reason,
		}).Debug("opportunity not profitable")
		b.metrics.OpportunitiesSkipped.WithLabelValues(opp.Kind.String(), "unprofitable").Inc()
		return rec, nil, nil
	}
	b.metrics.OpportunitiesProfitable.WithLabelValues(opp.Kind.String()).Inc()

	sized := opp.WithAmount(best.amount)
	params, err := b.builder.Build(sized, best.sim, b.cfg.SlippageBps, arbitrage.RealExecution)
	if err != nil {
		rec.State = storage.StateSkipped
		rec.SkipReason = arbitrage.SkipReason(err)
		rec.Err = err.Error()
		b.skip(log, opp, rec.SkipReason, err)
		return rec, nil, nil
	}
	rec.PathKind = params.Kind.String()

	log.WithFields(logrus.Fields{
		"path":   params.Kind.String(),
		"borrow": arbitrage.FormatFor(best.amount, target.Token),
		"net":    arbitrage.FormatFor(best.result.NetProfit, target.Token),
		"gas":    best.result.GasEstimateUnits,
	}).Info("profitable opportunity, executing")

	res, err := b.exec.Execute(ctx, params)
	if res != nil {
		rec.State = string(res.State)
		rec.Success = res.Success
		rec.DryRun = res.DryRun
		rec.RevertReason = res.RevertReason
		if res.TxHash != nil {
			rec.TxHash = res.TxHash.Hex()
		}
		if res.BlockNumber > 0 {
			rec.BlockNumber = res.BlockNumber
		}
	}
	if err != nil {
		rec.Err = err.Error()
		if errors.Is(err, executor.ErrPreflight) {
			rec.State = storage.StateSkipped
			rec.SkipReason = "preflight"
			b.skip(log, opp, rec.SkipReason, err)
			return rec, res, nil
		}
		log.WithError(err).Error("execution failed")
		b.observeExecution(res, rec)
		b.publish(ctx, rec)
		return rec, res, fmt.Errorf("execute %s: %w", opp.ID(), err)
	}

	entry := log.WithFields(logrus.Fields{"state": rec.State, "dry_run": rec.DryRun})
	if rec.TxHash != "" {
		entry = entry.WithField("tx", rec.TxHash)
	}
	if res.Success {
		entry.Info("execution succeeded")
	} else {
		entry.WithField("revert", res.RevertReason).Warn("transaction reverted")
	}
	b.observeExecution(res, rec)
	b.publish(ctx, rec)
	return rec, res, nil
}

type evaluated struct {
	amount *big.Int
	result *arbitrage.ProfitabilityResult
	sim    *arbitrage.SimulationResult
}

// bestAmount returns the profitable evaluation with the highest buffered net,
// or the best unprofitable one when nothing clears the threshold. Besides the
// configured amounts it tries the gross optimum between the smallest and the
// largest of them. The last evaluation error is returned alongside, with a nil
// result when every amount failed.
func (b *Bot) bestAmount(ctx context.Context, calc *arbitrage.Calculator, opp *arbitrage.Opportunity, target Target) (*evaluated, error) {
	var best *evaluated
	var lastErr error
	for _, amount := range candidateAmounts(ctx, opp, target.Amounts) {
		res, sim, err := calc.Evaluate(ctx, opp, amount)
		if err != nil {
			lastErr = err
			continue
		}
		cand := &evaluated{amount: amount, result: res, sim: sim}
		if best == nil || better(cand, best) {
			best = cand
		}
	}
	return best, lastErr
}

// candidateAmounts appends the searched optimum to amounts unless it is
// already configured or earns nothing gross
func candidateAmounts(ctx context.Context, opp *arbitrage.Opportunity, amounts []*big.Int) []*big.Int {
	if len(amounts) < 2 {
		return amounts
	}
	lo, hi := amounts[0], amounts[0]
	for _, a := range amounts[1:] {
		if a.Cmp(lo) < 0 {
			lo = a
		}
		if a.Cmp(hi) > 0 {
			hi = a
		}
	}
	optimal, gross := arbitrage.OptimalAmount(ctx, opp, lo, hi)
	if gross == nil || gross.Sign() <= 0 {
		return amounts
	}
	for _, a := range amounts {
		if a.Cmp(optimal) == 0 {
			return amounts
		}
	}
	out := make([]*big.Int, 0, len(amounts)+1)
	out = append(out, amounts...)
	return append(out, optimal)
}

func better(a, b *evaluated) bool {
	if a.result.IsProfitable != b.result.IsProfitable {
		return a.result.IsProfitable
	}
	return a.result.BufferedNetProfit.Cmp(b.result.BufferedNetProfit) > 0
}

// quoter prices gas in borrow token units using this cycle's reference pools
func (b *Bot) quoter(snap *pools.Snapshot) arbitrage.NativeQuoter {
	q := &arbitrage.PoolQuoter{
		Native:    b.cfg.Native,
		Reference: make(map[common.Address]*arbitrage.PoolState, len(b.cfg.Reference)),
	}
	for token, addr := range b.cfg.Reference {
		if p, ok := snap.Pool(addr); ok {
			q.Reference[token] = p
		}
	}
	return q
}

func (b *Bot) skip(log *logrus.Entry, opp *arbitrage.Opportunity, reason string, err error) {
	entry := log.WithField("reason", reason)
	if err != nil {
		entry = entry.WithError(err)
	}
	// param and config problems mean the universe or builder is wrong
	if errors.Is(err, arbitrage.ErrParamBuild) || errors.Is(err, arbitrage.ErrConfig) {
		entry.Warn("opportunity skipped")
	} else {
		entry.Debug("opportunity skipped")
	}
	b.metrics.OpportunitiesSkipped.WithLabelValues(opp.Kind.String(), reason).Inc()
}

func (b *Bot) publish(ctx context.Context, rec *storage.AttemptRecord) {
	ev := &notify.Event{
		OpportunityID: rec.OpportunityID,
		Kind:          rec.Kind,
		PathKind:      rec.PathKind,
		Route:         rec.Route,
		BorrowToken:   rec.BorrowToken,
		BorrowAmount:  rec.BorrowAmount,
		NetProfit:     rec.NetProfit,
		State:         rec.State,
		Success:       rec.Success,
		DryRun:        rec.DryRun,
		TxHash:        rec.TxHash,
		RevertReason:  rec.RevertReason,
		Block:         rec.BlockNumber,
		Timestamp:     rec.CreatedAt,
	}
	if err := b.publisher.Publish(ctx, ev); err != nil {
		b.logger.WithError(err).Warn("failed to publish execution event")
	}
}

func (b *Bot) observeExecution(res *executor.ExecutionResult, rec *storage.AttemptRecord) {
	b.metrics.Executions.WithLabelValues(rec.State).Inc()
	if res == nil {
		return
	}
	if res.GasUsed > 0 {
		b.metrics.GasUsed.Observe(float64(res.GasUsed))
	}
	if res.Success && !res.DryRun {
		b.metrics.LastSuccess.Set(float64(b.now().Unix()))
	}
}

func (b *Bot) recordCycle(report *CycleReport, started time.Time, cycleErr error) {
	took := b.now().Sub(started)
	b.metrics.ObserveCycle(took, cycleErr)

	b.logger.WithFields(logrus.Fields{
		"block":      report.Block,
		"pools":      report.Pools,
		"candidates": report.Candidates,
		"profitable": report.Profitable,
		"took":       took.Round(time.Millisecond),
	}).Info("cycle finished")

	if b.journal == nil {
		return
	}
	cycle := &storage.CycleRecord{
		BlockNumber: report.Block,
		StartedAt:   started,
		Duration:    took,
		Pools:       report.Pools,
		Candidates:  report.Candidates,
		Profitable:  report.Profitable,
		Err:         errString(cycleErr),
	}
	id, err := b.journal.RecordCycle(cycle)
	if err != nil {
		b.logger.WithError(err).Warn("failed to journal cycle")
		return
	}
	for _, a := range report.Attempts {
		a.CycleID = id
	}
	if err := b.journal.RecordAttempts(report.Attempts); err != nil {
		b.logger.WithError(err).Warn("failed to journal attempts")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
