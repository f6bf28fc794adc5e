// Package check wires normalization, resolution and reporting together for
// the on-demand and scheduled paths.
package check

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/gustycube/certwatch/internal/domain"
	"github.com/gustycube/certwatch/internal/metrics"
	"github.com/gustycube/certwatch/internal/report"
	"github.com/gustycube/certwatch/internal/results"
	"github.com/gustycube/certwatch/internal/types"
)

// Resolver finds the current certificate for a normalized domain
type Resolver interface {
	Resolve(ctx context.Context, domain string) (*types.CertInfo, error)
}

// Submitter hands events to a detached reporting task
type Submitter interface {
	Submit(ctx context.Context, events ...types.Event) bool
}

// Checker runs certificate checks
type Checker struct {
	resolver    Resolver
	sender      report.Sender
	background  Submitter
	results     *results.Store
	log         *zap.SugaredLogger
	now         func() time.Time
	concurrency int
	onSettled   func(Outcome)
}

// Option customizes a Checker
type Option func(*Checker)

// WithResults records every outcome in store
func WithResults(store *results.Store) Option {
	return func(c *Checker) { c.results = store }
}

// WithClock replaces the time source used for event timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

// WithConcurrency caps in-flight domains in a batch; zero means all at once
func WithConcurrency(n int) Option {
	return func(c *Checker) { c.concurrency = n }
}

// WithProgress calls fn from the worker goroutine as each batch domain settles
func WithProgress(fn func(Outcome)) Option {
	return func(c *Checker) { c.onSettled = fn }
}

// New creates a Checker. sender is used synchronously by batches, background
// by on-demand checks.
func New(resolver Resolver, sender report.Sender, background Submitter, log *zap.SugaredLogger, opts ...Option) *Checker {
	c := &Checker{
		resolver:   resolver,
		sender:     sender,
		background: background,
		log:        log,
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Check resolves raw on demand and schedules the resulting event for
// background delivery. The returned event is the metrics event on success
// or the error event on failure; err is the resolution error.
func (c *Checker) Check(ctx context.Context, raw string) (types.Event, error) {
	ctx, span := otel.Tracer("certwatch/check").Start(ctx, "check.OnDemand")
	defer span.End()

	host := domain.Normalize(raw)
	span.SetAttributes(attribute.String("domain", host))

	info, err := c.resolver.Resolve(ctx, host)
	if err != nil {
		c.log.Infow("certificate check failed", "domain", host, "err", err)
		ev := types.NewErrorEvent(host, err.Error(), false, c.now())
		c.record(host, nil, err, false)
		c.background.Submit(ctx, ev)
		return ev, err
	}

	ev := types.NewMetricsEvent(host, domain.Apex(host), *info, false)
	c.record(host, info, nil, false)
	c.background.Submit(ctx, ev)
	return ev, nil
}

func (c *Checker) record(host string, info *types.CertInfo, err error, automated bool) {
	trigger := "http"
	if automated {
		trigger = "scheduled"
	}
	entry := results.Entry{Domain: host, Automated: automated, CheckedAt: c.now()}
	if err != nil {
		metrics.ChecksTotal.WithLabelValues(trigger, "failed").Inc()
		entry.Error = err.Error()
	} else {
		metrics.ChecksTotal.WithLabelValues(trigger, "ok").Inc()
		if info != nil {
			// Only configured domains get a series; HTTP callers pick arbitrary hosts.
			if automated {
				metrics.DaysRemaining.WithLabelValues(host).Set(float64(info.DaysRemaining))
			}
			entry.Succeeded = true
			entry.DaysRemaining = info.DaysRemaining
			entry.ExpirationDate = info.ExpirationDate
			entry.Issuer = info.Issuer
		}
	}
	if c.results != nil {
		c.results.Put(entry)
	}
}
