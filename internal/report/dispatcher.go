package report

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gustycube/certwatch/internal/metrics"
	"github.com/gustycube/certwatch/internal/types"
)

// Dispatcher runs reports detached from the caller. Every submitted task runs
// to completion unless the process dies; Drain waits for them on shutdown.
type Dispatcher struct {
	sender  Sender
	log     *zap.SugaredLogger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	inFlight atomic.Int64
}

// NewDispatcher creates a dispatcher. timeout bounds each detached report; zero means none.
func NewDispatcher(sender Sender, timeout time.Duration, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{sender: sender, timeout: timeout, log: log}
}

// Submit reports events in the background. Values from ctx are kept but its
// cancellation is not, so a finished HTTP request does not abort the report.
// It returns false once Drain has started.
func (d *Dispatcher) Submit(ctx context.Context, events ...types.Event) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warnw("dispatcher closed, dropping report", "events", len(events))
		return false
	}
	d.wg.Add(1)
	d.mu.Unlock()

	d.inFlight.Add(1)
	metrics.BackgroundInFlight.Inc()
	go d.run(context.WithoutCancel(ctx), events)
	return true
}

func (d *Dispatcher) run(ctx context.Context, events []types.Event) {
	defer d.wg.Done()
	defer metrics.BackgroundInFlight.Dec()
	defer d.inFlight.Add(-1)
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Errorw("background report panicked", "panic", fmt.Sprint(rec))
		}
	}()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := d.sender.Report(ctx, events); err != nil {
		d.log.Errorw("background report failed", "events", len(events), "err", err)
	}
}

// InFlight returns the number of reports not yet finished
func (d *Dispatcher) InFlight() int { return int(d.inFlight.Load()) }

// Drain stops accepting work and waits for in-flight reports or ctx expiry
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain background reports: %w", ctx.Err())
	}
}
