package executor

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pulkyeet/flash-arb/internal/arbitrage"
	"github.com/sirupsen/logrus"
)

// Estimator runs eth_estimateGas
type Estimator interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// DefaultFallbackGas are conservative unit counts per entry point, used when the probe itself reverts
var DefaultFallbackGas = map[arbitrage.PathKind]uint64{
	arbitrage.PathV3TwoHop:   450_000,
	arbitrage.PathTriangular: 600_000,
	arbitrage.PathMixedDex:   550_000,
}

// GasProbe prices an opportunity by estimating a 1 unit, zero minimum version of its call
type GasProbe struct {
	builder  *arbitrage.Builder
	chain    Estimator
	from     common.Address
	fallback map[arbitrage.PathKind]uint64
	logger   *logrus.Logger
}

func NewGasProbe(builder *arbitrage.Builder, chain Estimator, from common.Address, fallback map[arbitrage.PathKind]uint64, logger *logrus.Logger) *GasProbe {
	if fallback == nil {
		fallback = DefaultFallbackGas
	}
	return &GasProbe{builder: builder, chain: chain, from: from, fallback: fallback, logger: logger}
}

func (p *GasProbe) EstimateGas(ctx context.Context, opp *arbitrage.Opportunity) (uint64, error) {
	tx, err := p.builder.Build(opp, nil, 0, arbitrage.GasProbe)
	if err != nil {
		return 0, fmt.Errorf("build probe: %w", err)
	}

	to := tx.To
	gas, err := p.chain.EstimateGas(ctx, ethereum.CallMsg{From: p.from, To: &to, Data: tx.Calldata})
	if err == nil && gas > 0 {
		return gas, nil
	}

	units, ok := p.fallback[tx.Kind]
	if !ok {
		if err == nil {
			err = fmt.Errorf("zero estimate")
		}
		return 0, fmt.Errorf("estimate %s: %w", tx.Method, err)
	}
	p.logger.WithFields(logrus.Fields{
		"opportunity": opp.ID(),
		"kind":        tx.Kind.String(),
		"fallback":    units,
	}).WithError(err).Debug("gas probe failed, using fallback units")
	return units, nil
}
