package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Cycle is one pass of the bot
type Cycle func(ctx context.Context) error

type Config struct {
	Interval   time.Duration
	MaxBackoff time.Duration
}

// Scheduler runs a cycle on a fixed interval. A tick that lands while a cycle is
// still running is dropped, and a failed cycle pushes the next start out by an
// exponential backoff that resets after any clean cycle.
type Scheduler struct {
	cycle   Cycle
	cfg     Config
	logger  *logrus.Logger
	running atomic.Bool
	skipped atomic.Uint64
	wg      sync.WaitGroup

	mu        sync.Mutex
	backoff   *backoff.ExponentialBackOff
	notBefore time.Time
	failures  int

	now func() time.Time
}

func New(cycle Cycle, cfg Config, logger *logrus.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 12 * time.Second
	}
	if cfg.MaxBackoff < cfg.Interval {
		cfg.MaxBackoff = cfg.Interval
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.Interval
	b.MaxInterval = cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return &Scheduler{
		cycle:   cycle,
		cfg:     cfg,
		logger:  logger,
		backoff: b,
		now:     time.Now,
	}
}

// Run ticks until ctx is done, then waits for the in-flight cycle
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick starts a cycle in the background unless one is running or backoff is active
func (s *Scheduler) Tick(ctx context.Context) bool {
	if wait := s.BackoffRemaining(); wait > 0 {
		s.logger.WithField("remaining", wait.Round(time.Millisecond)).Debug("backing off, skipping tick")
		return false
	}
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Debug("cycle in progress, skipping tick")
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.RunOnce(ctx)
	}()
	return true
}

// RunOnce runs the cycle in the caller's goroutine and updates the backoff state
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := s.now()
	err := s.cycle(ctx)
	finished := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.backoff.Reset()
		s.notBefore = time.Time{}
		s.failures = 0
		s.logger.WithField("took", finished.Sub(start).Round(time.Millisecond)).Debug("cycle complete")
		return nil
	}

	delay := s.backoff.NextBackOff()
	if delay == backoff.Stop || delay > s.cfg.MaxBackoff {
		delay = s.cfg.MaxBackoff
	}
	s.notBefore = finished.Add(delay)
	s.failures++
	s.logger.WithFields(logrus.Fields{
		"failures": s.failures,
		"backoff":  delay,
	}).WithError(err).Error("cycle failed")
	return err
}

// BackoffRemaining is how long until the next cycle may start, zero when not backing off
func (s *Scheduler) BackoffRemaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notBefore.IsZero() {
		return 0
	}
	if d := s.notBefore.Sub(s.now()); d > 0 {
		return d
	}
	return 0
}

func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Skipped counts ticks dropped because a cycle was in flight
func (s *Scheduler) Skipped() uint64 {
	return s.skipped.Load()
}

// Wait blocks until the in-flight cycle, if any, returns
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
