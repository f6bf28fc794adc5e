package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gustycube/certwatch/internal/health"
)

var (
	ChecksTotal        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "certwatch_checks_total", Help: "certificate checks by trigger and outcome"}, []string{"trigger", "status"})
	DaysRemaining      = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "certwatch_days_remaining", Help: "days until the current certificate expires"}, []string{"domain"})
	ReportsTotal       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "certwatch_reports_total", Help: "telemetry batches by outcome"}, []string{"status"})
	EventsTotal        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "certwatch_events_total", Help: "telemetry events delivered by type"}, []string{"event_type"})
	BatchDuration      = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "certwatch_batch_duration_seconds", Help: "scheduled batch run duration", Buckets: prometheus.ExponentialBuckets(0.5, 2, 10)})
	BackgroundInFlight = prometheus.NewGauge(prometheus.GaugeOpts{Name: "certwatch_background_reports_in_flight", Help: "detached report tasks not yet finished"})
)

func init() {
	prometheus.MustRegister(ChecksTotal, DaysRemaining, ReportsTotal, EventsTotal, BatchDuration, BackgroundInFlight)
}

// Snapshotter exposes recent results for the /results endpoint
type Snapshotter interface {
	Snapshot() interface{}
}

// Handler builds the operations mux: metrics, health probes and recent results
func Handler(healthHandler *health.Handler, results Snapshotter) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler.HealthHandler)
	mux.HandleFunc("/ready", healthHandler.ReadinessHandler)
	mux.HandleFunc("/live", healthHandler.LivenessHandler)
	if results != nil {
		mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(results.Snapshot())
		})
	}
	return mux
}

// ServeWithHealth serves Handler on addr until the server is closed
func ServeWithHealth(srv *http.Server, log *zap.SugaredLogger) {
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warnw("metrics server stopped", "err", err)
	}
}
