package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/pulkyeet/flash-arb/internal/arbitrage"
	"github.com/pulkyeet/flash-arb/internal/bot"
	"github.com/pulkyeet/flash-arb/internal/config"
	"github.com/pulkyeet/flash-arb/internal/pools"
	"github.com/pulkyeet/flash-arb/internal/storage"
	"github.com/sirupsen/logrus"
)

// replays dry-run cycles over historical blocks, needs an archive node
func main() {
	startBlock := flag.Uint64("start", 0, "first block to replay")
	endBlock := flag.Uint64("end", 0, "last block to replay")
	step := flag.Uint64("step", 100, "block step size")
	journal := flag.Bool("journal", false, "record replayed cycles to JOURNAL_PATH")
	flag.Parse()

	if *startBlock == 0 || *endBlock < *startBlock || *step == 0 {
		log.Fatalf("need -start > 0, -end >= -start and -step > 0")
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bot.Setup(ctx, cfg, bot.SetupOptions{ForceDryRun: true, NoJournal: !*journal, NoPublisher: true}, logger)
	if err != nil {
		log.Fatalf("failed to wire bot: %v", err)
	}
	defer rt.Close()

	symbols := make(map[string]arbitrage.Token)
	for _, b := range cfg.Universe.Borrow {
		symbols[b.Token.Address.Hex()] = b.Token
	}

	fmt.Printf("Replaying blocks %d to %d (step: %d) over %d pools...\n", *startBlock, *endBlock, *step, len(cfg.Universe.Pools))
	fmt.Printf("(gas is priced at current fees, preflight runs against latest state)\n\n")

	checked, failed, candidates, profitable := 0, 0, 0, 0
	best := make(map[string]*big.Int)

	for block := *startBlock; block <= *endBlock; block += *step {
		if ctx.Err() != nil {
			break
		}
		checked++
		if checked%10 == 0 {
			fmt.Printf("Checked %d blocks, %d profitable so far...\n", checked, profitable)
		}

		report, err := rt.Bot.WithSnapshots(pools.Pinned{Provider: rt.Provider, Block: block}).Cycle(ctx)
		if err != nil {
			failed++
			logger.WithError(err).WithField("block", block).Warn("replay cycle failed")
			continue
		}
		candidates += report.Candidates

		for _, a := range report.Attempts {
			// preflight skips are profitable paths the latest state no longer allows
			switch {
			case a.State == storage.StateUnprofitable:
				continue
			case a.State == storage.StateSkipped && a.SkipReason != "preflight":
				continue
			}
			profitable++
			net, ok := new(big.Int).SetString(a.NetProfit, 10)
			if !ok {
				continue
			}
			if cur, seen := best[a.BorrowToken]; !seen || net.Cmp(cur) > 0 {
				best[a.BorrowToken] = net
			}

			token := symbols[a.BorrowToken]
			fmt.Printf("\nBlock %d: %s %s\n", block, a.Kind, a.Route)
			fmt.Printf("   Borrow: %s\n", human(a.BorrowAmount, token))
			fmt.Printf("   Net:    %s\n", arbitrage.FormatFor(net, token))
			fmt.Printf("   State:  %s\n", a.State)
		}
	}

	fmt.Printf("\n================================================\n")
	fmt.Printf("Replay complete! Blocks: %d | Failed: %d | Candidates: %d | Profitable: %d\n", checked, failed, candidates, profitable)
	for addr, net := range best {
		fmt.Printf("  best net %s\n", arbitrage.FormatFor(net, symbols[addr]))
	}
}

func human(raw string, token arbitrage.Token) string {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return raw
	}
	return arbitrage.FormatFor(v, token)
}
