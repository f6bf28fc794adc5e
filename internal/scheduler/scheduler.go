// Package scheduler triggers batch certificate checks on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gustycube/certwatch/internal/check"
	"github.com/gustycube/certwatch/internal/domains"
	"github.com/gustycube/certwatch/internal/lock"
)

// Runner executes one batch over a domain list
type Runner interface {
	RunBatch(ctx context.Context, domains []string) *check.BatchResult
}

// Scheduler runs batches every interval
type Scheduler struct {
	interval   time.Duration
	runOnStart bool
	source     domains.Source
	runner     Runner
	lock       lock.Interface
	log        *zap.SugaredLogger
	now        func() time.Time
	running    atomic.Bool
}

// New creates a scheduler. A nil lock means every tick runs.
func New(interval time.Duration, runOnStart bool, source domains.Source, runner Runner, l lock.Interface, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		interval:   interval,
		runOnStart: runOnStart,
		source:     source,
		runner:     runner,
		lock:       l,
		log:        log,
		now:        time.Now,
	}
}

// Run blocks until ctx is done, triggering a batch on every tick. A tick
// that arrives while the previous batch is still running is skipped.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Infow("scheduler disabled")
		return
	}
	s.log.Infow("scheduler started", "interval", s.interval, "run_on_start", s.runOnStart)

	if s.runOnStart {
		s.Tick(ctx)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Infow("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduled batch if this replica wins the lease for the current window
func (s *Scheduler) Tick(ctx context.Context) *check.BatchResult {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warnw("previous batch still running, skipping tick")
		return nil
	}
	defer s.running.Store(false)

	if s.lock != nil {
		key := s.windowKey()
		ok, err := s.lock.Acquire(ctx, key, s.interval)
		if err != nil {
			s.log.Warnw("batch lease unavailable, running anyway", "key", key, "err", err)
		} else if !ok {
			s.log.Infow("batch already claimed by another replica", "key", key)
			return nil
		}
	}

	res, err := s.RunOnce(ctx)
	if err != nil {
		s.log.Errorw("scheduled batch skipped", "err", err)
		return nil
	}
	return res
}

// RunOnce loads the domain list and runs a batch immediately
func (s *Scheduler) RunOnce(ctx context.Context) (*check.BatchResult, error) {
	list, err := s.source.Domains(ctx)
	if err != nil {
		return nil, fmt.Errorf("load domains: %w", err)
	}
	return s.runner.RunBatch(ctx, list), nil
}

func (s *Scheduler) windowKey() string {
	window := s.now().Truncate(s.interval).Unix()
	return "batch:" + strconv.FormatInt(window, 10)
}
