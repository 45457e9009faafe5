package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulkyeet/flash-arb/internal/bot"
	"github.com/pulkyeet/flash-arb/internal/config"
	"github.com/pulkyeet/flash-arb/internal/scheduler"
	"github.com/sirupsen/logrus"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if err := run(cfg, *once, logger); err != nil {
		logger.WithError(err).Error("bot stopped")
		os.Exit(1)
	}
}

// run owns everything Setup opens, so it is closed before main exits
func run(cfg *config.Config, once bool, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bot.Setup(ctx, cfg, bot.SetupOptions{}, logger)
	if err != nil {
		return fmt.Errorf("wire bot: %w", err)
	}
	defer rt.Close()

	if once {
		if err := rt.Bot.RunCycle(ctx); err != nil {
			return fmt.Errorf("cycle: %w", err)
		}
		return nil
	}

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", rt.Metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.WithField("addr", cfg.MetricsAddr).Info("metrics listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	sched := scheduler.New(rt.Bot.RunCycle, scheduler.Config{
		Interval:   cfg.CycleInterval,
		MaxBackoff: cfg.MaxBackoff,
	}, logger)

	logger.WithFields(logrus.Fields{
		"interval":    cfg.CycleInterval,
		"max_backoff": cfg.MaxBackoff,
		"dry_run":     cfg.DryRun,
	}).Info("starting arbitrage bot")

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("scheduler stopped")
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
	logger.WithField("skipped_ticks", sched.Skipped()).Info("shut down")
	return nil
}
