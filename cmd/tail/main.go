package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pulkyeet/flash-arb/internal/notify"
	"github.com/sugawarayuuta/sonnet"
)

// follows execution events published by a running bot
func main() {
	_ = godotenv.Load()

	var (
		addr   = flag.String("addr", envOr("REDIS_ADDR", "localhost:6379"), "Redis address")
		prefix = flag.String("prefix", envOr("REDIS_PREFIX", "arb"), "Channel prefix")
		kind   = flag.String("kind", "", "Only opportunities of this kind, e.g. spatial or triangular")
		state  = flag.String("state", "", "Only attempts that ended in this state, e.g. confirmed or reverted")
		asJSON = flag.Bool("json", false, "Print raw events")
	)
	flag.Parse()

	db, _ := strconv.Atoi(envOr("REDIS_DB", "0"))
	if err := run(*addr, os.Getenv("REDIS_PASSWORD"), db, *prefix, *kind, *state, *asJSON); err != nil {
		fmt.Printf("Tail failed: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, password string, db int, prefix, kind, state string, asJSON bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub := notify.NewRedisPublisher(addr, password, db, prefix)
	defer sub.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := sub.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("redis %s: %w", addr, err)
	}

	channel := sub.Channel(kind, state)
	fmt.Printf("Listening on %s...\n", channel)

	err = sub.Subscribe(ctx, channel, func(ev *notify.Event) {
		if !asJSON {
			fmt.Println(ev.Line())
			return
		}
		data, err := sonnet.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Println(string(data))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
