package pools

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pulkyeet/flash-arb/internal/arbitrage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Chain is what the provider needs from the node
type Chain interface {
	Caller
	BlockNumber(ctx context.Context) (uint64, error)
}

// Snapshot is every tracked pool read at a single block
type Snapshot struct {
	Block uint64
	Pools []*arbitrage.PoolState
}

// Pinned serves every snapshot from one block, older blocks need an archive node
type Pinned struct {
	Provider *Provider
	Block    uint64
}

func (p Pinned) Snapshot(ctx context.Context) (*Snapshot, error) {
	return p.Provider.SnapshotAt(ctx, p.Block)
}

// Pool returns the snapshot state of a tracked address
func (s *Snapshot) Pool(addr common.Address) (*arbitrage.PoolState, bool) {
	for _, p := range s.Pools {
		if p.Address == addr {
			return p, true
		}
	}
	return nil, false
}

type Provider struct {
	chain       Chain
	specs       []Spec
	ticks       *TickCache
	concurrency int
	logger      *logrus.Logger
}

func NewProvider(chain Chain, specs []Spec, ticks *TickCache, concurrency int, logger *logrus.Logger) *Provider {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Provider{
		chain:       chain,
		specs:       specs,
		ticks:       ticks,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Snapshot reads every tracked pool at the latest block. Pools that fail to load
// are logged and left out, the cycle only fails when none could be read.
func (p *Provider) Snapshot(ctx context.Context) (*Snapshot, error) {
	blockNum, err := p.chain.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get block number: %w", err)
	}
	return p.SnapshotAt(ctx, blockNum)
}

// SnapshotAt reads every tracked pool at blockNum, needs an archive node for old blocks
func (p *Provider) SnapshotAt(ctx context.Context, blockNum uint64) (*Snapshot, error) {
	block := new(big.Int).SetUint64(blockNum)

	states := make([]*arbitrage.PoolState, len(p.specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, spec := range p.specs {
		g.Go(func() error {
			state, err := p.load(gctx, spec, block)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.WithFields(logrus.Fields{
					"pool":  spec.Address.Hex(),
					"dex":   spec.DEX,
					"block": blockNum,
				}).WithError(err).Warn("pool load failed, skipping")
				return nil
			}
			states[i] = state
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &Snapshot{Block: blockNum, Pools: make([]*arbitrage.PoolState, 0, len(states))}
	for _, s := range states {
		if s != nil {
			snap.Pools = append(snap.Pools, s)
		}
	}
	if len(snap.Pools) == 0 && len(p.specs) > 0 {
		return nil, fmt.Errorf("no pools loaded at block %d", blockNum)
	}
	return snap, nil
}

func (p *Provider) load(ctx context.Context, spec Spec, block *big.Int) (*arbitrage.PoolState, error) {
	switch spec.Kind {
	case arbitrage.ConstantProduct:
		return LoadV2(ctx, p.chain, spec, block)
	case arbitrage.ConcentratedLiquidity:
		return LoadV3(ctx, p.chain, spec, block, p.ticks.At(p.chain, block.Uint64()))
	}
	return nil, fmt.Errorf("unknown pool kind %s", spec.Kind)
}
