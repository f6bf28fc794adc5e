package rate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PerHost keeps one token bucket per upstream host
type PerHost struct {
	mu        sync.Mutex
	m         map[string]*limitEntry
	perSecond float64
	burst     int
	idleTTL   time.Duration
	stop      chan struct{}
	stopOnce  sync.Once
}

type limitEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// New creates a limiter. A non-positive perSecond disables limiting.
func New(perSecond float64, burst int) *PerHost {
	if burst < 1 {
		burst = 1
	}
	ph := &PerHost{
		m:         make(map[string]*limitEntry),
		perSecond: perSecond,
		burst:     burst,
		idleTTL:   time.Hour,
		stop:      make(chan struct{}),
	}
	go ph.cleanup(5 * time.Minute)
	return ph
}

// Close stops the background cleanup
func (p *PerHost) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *PerHost) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.evictIdle(time.Now().Add(-p.idleTTL))
		}
	}
}

func (p *PerHost) evictIdle(cutoff time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for host, entry := range p.m {
		if entry.lastUsed.Before(cutoff) {
			delete(p.m, host)
		}
	}
}

func (p *PerHost) entry(host string) *limitEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.m[host]
	if !ok {
		limit := rate.Limit(p.perSecond)
		if p.perSecond <= 0 {
			limit = rate.Inf
		}
		entry = &limitEntry{limiter: rate.NewLimiter(limit, p.burst)}
		p.m[host] = entry
	}
	entry.lastUsed = time.Now()
	return entry
}

// Allow reports whether a call to host may happen now
func (p *PerHost) Allow(host string) bool {
	return p.entry(host).limiter.Allow()
}

// Wait blocks until a call to host is permitted or ctx is done
func (p *PerHost) Wait(ctx context.Context, host string) error {
	return p.entry(host).limiter.Wait(ctx)
}

// Hosts returns the number of tracked hosts
func (p *PerHost) Hosts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}
