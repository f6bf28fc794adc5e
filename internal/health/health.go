package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a health check for a component
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ms"`
}

// Response represents the overall health response
type Response struct {
	Status    Status            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    []Check           `json:"checks"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler manages health and readiness checks
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	metadata map[string]string
	log      *zap.SugaredLogger
	ready    bool
}

// NewHandler creates a new health handler
func NewHandler(log *zap.SugaredLogger) *Handler {
	return &Handler{
		checkers: make(map[string]Checker),
		metadata: make(map[string]string),
		log:      log,
	}
}

// RegisterChecker adds a health checker
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// SetMetadata sets metadata for the health response
func (h *Handler) SetMetadata(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metadata[key] = value
}

// SetReady marks the service as ready
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady returns the readiness status
func (h *Handler) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

func (h *Handler) copyState() (map[string]Checker, map[string]string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	checkers := make(map[string]Checker, len(h.checkers))
	for k, v := range h.checkers {
		checkers[k] = v
	}
	metadata := make(map[string]string, len(h.metadata))
	for k, v := range h.metadata {
		metadata[k] = v
	}
	return checkers, metadata, h.ready
}

// Evaluate runs every registered check, ordered by name
func (h *Handler) Evaluate(ctx context.Context) Response {
	checkers, metadata, _ := h.copyState()

	names := make([]string, 0, len(checkers))
	for name := range checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := Response{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make([]Check, 0, len(names)),
		Metadata:  metadata,
	}
	for _, name := range names {
		check := checkers[name].Check(ctx)
		check.Name = name
		resp.Checks = append(resp.Checks, check)

		switch {
		case check.Status == StatusUnhealthy:
			resp.Status = StatusUnhealthy
		case check.Status == StatusDegraded && resp.Status == StatusHealthy:
			resp.Status = StatusDegraded
		}
	}
	return resp
}

// HealthHandler handles health check requests. Degraded still answers 200.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := h.Evaluate(ctx)
	code := http.StatusOK
	if resp.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
		h.log.Warnw("health check failed", "checks", resp.Checks)
	}
	writeJSON(w, code, resp)
}

// ReadinessHandler handles readiness check requests
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	_, metadata, ready := h.copyState()

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"ready":     ready,
		"timestamp": time.Now(),
		"metadata":  metadata,
	})
}

// LivenessHandler always returns OK while the process is serving
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func result(start time.Time, status Status, msg string) Check {
	return Check{
		Status:      status,
		Message:     msg,
		LastChecked: time.Now(),
		Duration:    time.Since(start) / time.Millisecond,
	}
}

// RedisChecker pings the Redis instance backing the domain set and batch lease
type RedisChecker struct {
	ping func(ctx context.Context) error
}

// NewRedisChecker creates a Redis checker. A nil ping means Redis is not configured.
func NewRedisChecker(ping func(ctx context.Context) error) *RedisChecker {
	return &RedisChecker{ping: ping}
}

func (c *RedisChecker) Check(ctx context.Context) Check {
	start := time.Now()
	if c.ping == nil {
		return result(start, StatusHealthy, "Redis not configured")
	}
	if err := c.ping(ctx); err != nil {
		return result(start, StatusUnhealthy, "Redis connection failed: "+err.Error())
	}
	return result(start, StatusHealthy, "Redis connection OK")
}

// BreakerChecker reports degraded while any upstream circuit is open
type BreakerChecker struct {
	snapshot func() map[string]string
}

func NewBreakerChecker(snapshot func() map[string]string) *BreakerChecker {
	return &BreakerChecker{snapshot: snapshot}
}

func (c *BreakerChecker) Check(ctx context.Context) Check {
	start := time.Now()
	var open []string
	for host, state := range c.snapshot() {
		if state == "open" {
			open = append(open, host)
		}
	}
	if len(open) > 0 {
		sort.Strings(open)
		return result(start, StatusDegraded, "circuit open: "+strings.Join(open, ", "))
	}
	return result(start, StatusHealthy, "all upstream circuits closed")
}

// ReporterChecker reports degraded when telemetry credentials are missing
type ReporterChecker struct {
	configured func() bool
}

func NewReporterChecker(configured func() bool) *ReporterChecker {
	return &ReporterChecker{configured: configured}
}

func (c *ReporterChecker) Check(ctx context.Context) Check {
	start := time.Now()
	if !c.configured() {
		return result(start, StatusDegraded, "telemetry credentials missing, events are not delivered")
	}
	return result(start, StatusHealthy, "telemetry reporting configured")
}

// BacklogChecker watches detached report tasks
type BacklogChecker struct {
	inFlight func() int
	limit    int
}

// NewBacklogChecker reports degraded once more than limit reports are pending
func NewBacklogChecker(inFlight func() int, limit int) *BacklogChecker {
	return &BacklogChecker{inFlight: inFlight, limit: limit}
}

func (c *BacklogChecker) Check(ctx context.Context) Check {
	start := time.Now()
	if n := c.inFlight(); c.limit > 0 && n > c.limit {
		return result(start, StatusDegraded, "background report backlog high")
	}
	return result(start, StatusHealthy, "background reports keeping up")
}
