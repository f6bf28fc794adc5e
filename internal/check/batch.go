package check

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gustycube/certwatch/internal/domain"
	"github.com/gustycube/certwatch/internal/metrics"
	"github.com/gustycube/certwatch/internal/types"
)

var errPanicked = errors.New("domain check panicked")

// Status is the explicit discriminant of a per-domain outcome
type Status int

const (
	StatusSucceeded Status = iota
	StatusFailed
)

func (s Status) String() string {
	if s == StatusSucceeded {
		return "succeeded"
	}
	return "failed"
}

// Outcome is the settled result of one domain in a batch
type Outcome struct {
	Domain string
	Status Status
	Info   *types.CertInfo
	// Err is the resolution error, or the reporting error when resolution succeeded
	Err error
}

// BatchResult holds every outcome, in input order, and the summary
type BatchResult struct {
	Summary  types.Summary
	Outcomes []Outcome
}

// RunBatch checks every domain independently and waits for all of them to
// settle. Each domain's event is reported before its task settles; a failed
// report marks that domain failed. A summary event is reported last and
// its failure is only logged.
func (c *Checker) RunBatch(ctx context.Context, domains []string) *BatchResult {
	ctx, span := otel.Tracer("certwatch/check").Start(ctx, "check.Batch")
	defer span.End()

	start := time.Now()
	runID := uuid.NewString()
	span.SetAttributes(attribute.String("run_id", runID), attribute.Int("domains", len(domains)))
	c.log.Infow("batch started", "run", runID, "domains", len(domains))

	outcomes := make([]Outcome, len(domains))
	workers := c.concurrency
	if workers <= 0 || workers > len(domains) {
		workers = len(domains)
	}

	tasks := make(chan int)
	done := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			for idx := range tasks {
				outcomes[idx] = c.checkOne(ctx, domains[idx])
				if c.onSettled != nil {
					c.onSettled(outcomes[idx])
				}
			}
			done <- struct{}{}
		}()
	}
	for i := range domains {
		tasks <- i
	}
	close(tasks)
	for i := 0; i < workers; i++ {
		<-done
	}

	summary := types.Summary{RunID: runID, Total: len(domains)}
	for _, o := range outcomes {
		if o.Status == StatusSucceeded {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	summary.Duration = time.Since(start)
	summary.FinishedAt = c.now()
	metrics.BatchDuration.Observe(summary.Duration.Seconds())

	if err := c.sender.Report(ctx, []types.Event{types.NewSummaryEvent(summary)}); err != nil {
		c.log.Errorw("summary report failed", "run", runID, "err", err)
	}
	c.log.Infow("batch finished",
		"run", runID,
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration", summary.Duration,
	)
	return &BatchResult{Summary: summary, Outcomes: outcomes}
}

func (c *Checker) checkOne(ctx context.Context, raw string) (out Outcome) {
	host := domain.Normalize(raw)
	out = Outcome{Domain: host, Status: StatusFailed}
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Errorw("domain check panicked", "domain", host, "panic", rec)
			out = Outcome{Domain: host, Status: StatusFailed, Err: errPanicked}
		}
	}()

	info, err := c.resolver.Resolve(ctx, host)
	if err != nil {
		c.log.Warnw("scheduled check failed", "domain", host, "err", err)
		c.record(host, nil, err, true)
		ev := types.NewErrorEvent(host, err.Error(), true, c.now())
		if rerr := c.sender.Report(ctx, []types.Event{ev}); rerr != nil {
			c.log.Errorw("error event report failed", "domain", host, "err", rerr)
		}
		out.Err = err
		return out
	}

	c.record(host, info, nil, true)
	out.Info = info
	ev := types.NewMetricsEvent(host, domain.Apex(host), *info, true)
	if err := c.sender.Report(ctx, []types.Event{ev}); err != nil {
		c.log.Errorw("metrics report failed", "domain", host, "err", err)
		out.Err = err
		return out
	}
	out.Status = StatusSucceeded
	return out
}
