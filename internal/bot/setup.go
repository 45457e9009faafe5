package bot

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pulkyeet/flash-arb/internal/arbitrage"
	"github.com/pulkyeet/flash-arb/internal/config"
	"github.com/pulkyeet/flash-arb/internal/eth"
	"github.com/pulkyeet/flash-arb/internal/executor"
	"github.com/pulkyeet/flash-arb/internal/metrics"
	"github.com/pulkyeet/flash-arb/internal/notify"
	"github.com/pulkyeet/flash-arb/internal/pools"
	"github.com/pulkyeet/flash-arb/internal/storage"
	"github.com/sirupsen/logrus"
)

// Runtime is a wired bot plus the resources it holds open
type Runtime struct {
	Bot       *Bot
	Client    *eth.Client
	Provider  *pools.Provider
	Metrics   *metrics.Metrics
	Journal   *storage.Journal
	Publisher notify.Publisher
	Signer    executor.Signer
	ChainID   *big.Int
}

// Close releases everything Setup opened
func (r *Runtime) Close() {
	if r.Publisher != nil {
		r.Publisher.Close()
	}
	if r.Journal != nil {
		r.Journal.Close()
	}
	if r.Client != nil {
		r.Client.Close()
	}
}

// SetupOptions tweaks wiring for one-shot commands
type SetupOptions struct {
	ForceDryRun bool
	NoJournal   bool
	NoPublisher bool
}

// Setup dials the node and wires every component from cfg
func Setup(ctx context.Context, cfg *config.Config, opts SetupOptions, logger *logrus.Logger) (*Runtime, error) {
	rt := &Runtime{}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	client, err := eth.NewClient(ctx, cfg.RPCURL, cfg.RPCRateLimit, cfg.RPCBurst)
	if err != nil {
		return nil, err
	}
	rt.Client = client

	rt.ChainID = new(big.Int).SetUint64(cfg.ChainID)
	if cfg.ChainID == 0 {
		if rt.ChainID, err = client.ChainID(ctx); err != nil {
			return nil, fmt.Errorf("get chain id: %w", err)
		}
	}

	dryRun := cfg.DryRun || opts.ForceDryRun
	if cfg.PrivateKey != "" {
		if rt.Signer, err = executor.NewKeySigner(cfg.PrivateKey); err != nil {
			return nil, fmt.Errorf("%w: %v", arbitrage.ErrConfig, err)
		}
	} else if dryRun {
		rt.Signer = executor.ReadOnlySigner{Account: cfg.Sender}
	} else {
		return nil, fmt.Errorf("%w: no signer for live execution", arbitrage.ErrConfig)
	}

	nonces := executor.NewNonceManager(client, rt.Signer.Address())
	if !dryRun {
		if err := nonces.Init(ctx); err != nil {
			return nil, fmt.Errorf("init nonce: %w", err)
		}
	}

	u := cfg.Universe
	builder, err := arbitrage.NewBuilder(arbitrage.BuilderConfig{
		Contract:       cfg.FlashContract,
		Routers:        u.Routers,
		TitheRecipient: cfg.TitheRecipient,
		TitheBps:       cfg.TitheBps,
	})
	if err != nil {
		return nil, err
	}

	fees := executor.NewFeeOracle(client)
	probe := executor.NewGasProbe(builder, client, rt.Signer.Address(), nil, logger)
	engine := executor.NewEngine(client, fees, rt.Signer, nonces, executor.Config{
		ChainID:           rt.ChainID,
		Confirmations:     cfg.Confirmations,
		ConfirmTimeout:    cfg.ConfirmTimeout,
		PollInterval:      cfg.ReceiptPoll,
		GasLimitBufferPct: cfg.GasLimitBufferPct,
		DryRun:            dryRun,
	}, logger)

	ticks, err := pools.NewTickCache(cfg.TickCacheSize)
	if err != nil {
		return nil, err
	}
	provider := pools.NewProvider(client, u.Pools, ticks, cfg.PoolConcurrency, logger)
	rt.Provider = provider

	rt.Metrics = metrics.New("flash_arb")
	rt.Bot = New(provider, fees, probe, builder, engine, BotConfig(cfg), logger).WithMetrics(rt.Metrics)

	if cfg.JournalPath != "" && !opts.NoJournal {
		if rt.Journal, err = storage.NewJournal(cfg.JournalPath); err != nil {
			return nil, err
		}
		rt.Bot.WithJournal(rt.Journal)
	}

	rt.Publisher = notify.Nop{}
	if cfg.RedisAddr != "" && !opts.NoPublisher {
		pub := notify.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err := pub.Ping(ctx); err != nil {
			logger.WithError(err).WithField("addr", cfg.RedisAddr).Warn("redis unavailable, events disabled")
			pub.Close()
		} else {
			rt.Publisher = pub
		}
	}
	rt.Bot.WithPublisher(rt.Publisher)

	logger.WithFields(logrus.Fields{
		"chain":    rt.ChainID,
		"account":  rt.Signer.Address().Hex(),
		"contract": cfg.FlashContract.Hex(),
		"pools":    len(u.Pools),
		"borrow":   len(u.Borrow),
		"dry_run":  dryRun,
	}).Info("bot wired")

	ok = true
	return rt, nil
}

// BotConfig maps loaded configuration onto the cycle settings
func BotConfig(cfg *config.Config) Config {
	u := cfg.Universe
	targets := make([]Target, 0, len(u.Borrow))
	for _, b := range u.Borrow {
		targets = append(targets, Target{Token: b.Token, Amounts: b.Amounts})
	}
	ref := make(map[common.Address]common.Address, len(u.Reference))
	for token, pool := range u.Reference {
		ref[token] = pool
	}
	return Config{
		Targets:     targets,
		Native:      u.Native,
		Reference:   ref,
		SlippageBps: cfg.SlippageBps,
		Calculator: arbitrage.CalculatorConfig{
			GasBufferPct:    cfg.GasBufferPct,
			ProfitBufferBps: cfg.ProfitBufferBps,
			MaxGasPrice:     cfg.MaxGasPrice,
			MinProfit:       u.MinProfit(),
		},
	}
}
