package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"github.com/pulkyeet/flash-arb/internal/arbitrage"
	"github.com/pulkyeet/flash-arb/internal/bot"
	"github.com/pulkyeet/flash-arb/internal/config"
	"github.com/pulkyeet/flash-arb/internal/pools"
	"github.com/sirupsen/logrus"
)

func main() {
	blockNum := flag.Uint64("block", 0, "block number to scan (0 = latest, older blocks need an archive node)")
	verbose := flag.Bool("v", false, "log skipped opportunities")
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rt, err := bot.Setup(ctx, cfg, bot.SetupOptions{ForceDryRun: true, NoJournal: true, NoPublisher: true}, logger)
	if err != nil {
		log.Fatalf("failed to wire bot: %v", err)
	}
	defer rt.Close()

	if *blockNum > 0 {
		rt.Bot.WithSnapshots(pools.Pinned{Provider: rt.Provider, Block: *blockNum})
	}

	fmt.Printf("scanning %d pools for %d borrow tokens (dry run)...\n\n", len(cfg.Universe.Pools), len(cfg.Universe.Borrow))

	report, err := rt.Bot.Cycle(ctx)
	if err != nil {
		// Fatalf skips deferred calls
		rt.Close()
		log.Fatalf("scan failed: %v", err)
	}

	symbols := make(map[string]arbitrage.Token)
	for _, b := range cfg.Universe.Borrow {
		symbols[b.Token.Address.Hex()] = b.Token
	}

	fmt.Printf("Block:      %d\n", report.Block)
	fmt.Printf("Pools:      %d loaded\n", report.Pools)
	fmt.Printf("Candidates: %d\n", report.Candidates)
	fmt.Printf("Profitable: %d\n", report.Profitable)

	if len(report.Attempts) == 0 {
		fmt.Println("\nNo candidate paths in the configured universe")
		return
	}

	fmt.Println("\nOpportunities:")
	fmt.Println("==============")
	for _, a := range report.Attempts {
		token := symbols[a.BorrowToken]
		fmt.Printf("\n%s %s\n", a.Kind, a.Route)
		fmt.Printf("  id:     %s\n", a.OpportunityID)
		if a.BorrowAmount != "" {
			fmt.Printf("  borrow: %s\n", human(a.BorrowAmount, token))
			fmt.Printf("  gross:  %s\n", human(a.GrossProfit, token))
		}
		if a.NetProfit != "" {
			fmt.Printf("  net:    %s (gas %d units)\n", human(a.NetProfit, token), a.GasUnits)
		}
		fmt.Printf("  state:  %s", a.State)
		if a.SkipReason != "" {
			fmt.Printf(" (%s)", a.SkipReason)
		}
		fmt.Println()
		if a.PathKind != "" {
			fmt.Printf("  path:   %s\n", a.PathKind)
		}
	}

	fmt.Println("\n✅ Scan complete")
}

func human(raw string, token arbitrage.Token) string {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return raw
	}
	return arbitrage.FormatFor(v, token)
}
