package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	// Interval clears the closed-state counters periodically
	Interval time.Duration

	// Timeout is how long the breaker stays open before it is considered half-open
	Timeout time.Duration

	// Threshold is the minimum number of calls before the failure ratio is evaluated
	Threshold uint32

	// FailureRatio at or above which the breaker opens
	FailureRatio float64

	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns the settings used for upstream API calls
func DefaultConfig() *Config {
	return &Config{
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		Threshold:    5,
		FailureRatio: 0.6,
	}
}

// Breaker tracks the health of a single upstream from observed call
// outcomes. It never rejects a call; callers read State to report it.
type Breaker struct {
	name string
	cfg  Config

	mu       sync.Mutex
	state    State
	expiry   time.Time
	calls    uint32
	failures uint32
	now      func() time.Time
}

// New creates a breaker for the named upstream
func New(name string, cfg *Config) *Breaker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.Interval == 0 {
		c.Interval = 60 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	b := &Breaker{name: name, cfg: c, now: time.Now}
	b.expiry = b.now().Add(c.Interval)
	return b
}

// Name returns the upstream name
func (b *Breaker) Name() string { return b.name }

// State returns the current state, moving open to half-open once the timeout passed
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh(b.now())
	return b.state
}

// Counts returns calls and failures recorded in the current window
func (b *Breaker) Counts() (calls, failures uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls, b.failures
}

// Observe records the outcome of one call that has already been made
func (b *Breaker) Observe(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.refresh(now)

	switch b.state {
	case StateClosed:
		b.calls++
		if !success {
			b.failures++
		}
		if b.calls >= b.cfg.Threshold && float64(b.failures)/float64(b.calls) >= b.cfg.FailureRatio {
			b.transition(StateOpen, now)
		}
	case StateOpen, StateHalfOpen:
		if success {
			b.transition(StateClosed, now)
		} else if b.state == StateHalfOpen {
			b.transition(StateOpen, now)
		} else {
			b.expiry = now.Add(b.cfg.Timeout)
		}
	}
}

// refresh applies time based transitions; callers hold mu
func (b *Breaker) refresh(now time.Time) {
	switch b.state {
	case StateClosed:
		if now.After(b.expiry) {
			b.calls, b.failures = 0, 0
			b.expiry = now.Add(b.cfg.Interval)
		}
	case StateOpen:
		if now.After(b.expiry) {
			b.transition(StateHalfOpen, now)
		}
	}
}

func (b *Breaker) transition(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.calls, b.failures = 0, 0
	switch to {
	case StateClosed:
		b.expiry = now.Add(b.cfg.Interval)
	case StateOpen:
		b.expiry = now.Add(b.cfg.Timeout)
	default:
		b.expiry = time.Time{}
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

// Set holds one breaker per upstream host
type Set struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      *Config
}

// NewSet creates an empty breaker set sharing cfg
func NewSet(cfg *Config) *Set {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Set{breakers: make(map[string]*Breaker), cfg: cfg}
}

// Observe records one call outcome against the breaker for host
func (s *Set) Observe(host string, success bool) {
	s.get(host).Observe(success)
}

// State returns the state for host
func (s *Set) State(host string) State {
	return s.get(host).State()
}

func (s *Set) get(host string) *Breaker {
	s.mu.RLock()
	b, ok := s.breakers[host]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[host]; ok {
		return b
	}
	b = New(host, s.cfg)
	s.breakers[host] = b
	return b
}

// Snapshot maps every known host to its current state name
func (s *Set) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.breakers))
	for host, b := range s.breakers {
		out[host] = b.State().String()
	}
	return out
}

// Reset forgets the breaker for host
func (s *Set) Reset(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.breakers, host)
}
