// Package report delivers certificate events to the telemetry event API.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/gustycube/certwatch/internal/httpclient"
	"github.com/gustycube/certwatch/internal/metrics"
	"github.com/gustycube/certwatch/internal/types"
)

const (
	DefaultEndpoint = "https://insights-collector.newrelic.com"
	maxErrorBody    = 64 << 10
)

// Config carries the event API location and credentials
type Config struct {
	Endpoint  string
	AccountID string
	APIKey    string
	// SpoolDir, when set, receives rejected batches as JSON files for inspection
	SpoolDir string
}

// Configured reports whether both credentials are present
func (c Config) Configured() bool {
	return c.AccountID != "" && c.APIKey != ""
}

// ReportingError is returned when the event API could not accept a batch
type ReportingError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ReportingError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("telemetry delivery failed: %v", e.Err)
	}
	return fmt.Sprintf("telemetry delivery failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *ReportingError) Unwrap() error { return e.Err }

// Sender delivers a batch of events
type Sender interface {
	Report(ctx context.Context, events []types.Event) error
}

// Reporter posts event batches, one request per call, without retry
type Reporter struct {
	cfg    Config
	client httpclient.Doer
	log    *zap.SugaredLogger
}

// New creates a Reporter. client is typically a *httpclient.ResilientClient.
func New(cfg Config, client httpclient.Doer, log *zap.SugaredLogger) *Reporter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if client == nil {
		client = httpclient.Default(0)
	}
	if cfg.SpoolDir != "" {
		if err := os.MkdirAll(cfg.SpoolDir, 0o755); err != nil {
			log.Errorw("spool directory unavailable, failed batches will not be saved", "dir", cfg.SpoolDir, "err", err)
		}
	}
	return &Reporter{cfg: cfg, client: client, log: log}
}

// Configured reports whether credentials are present
func (r *Reporter) Configured() bool { return r.cfg.Configured() }

// Report sends events in a single POST. Missing credentials make it a
// logged no-op returning nil; a rejected batch returns *ReportingError.
func (r *Reporter) Report(ctx context.Context, events []types.Event) error {
	if !r.cfg.Configured() {
		r.log.Warnw("telemetry credentials missing, skipping report", "events", len(events))
		metrics.ReportsTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	if len(events) == 0 {
		return nil
	}

	ctx, span := otel.Tracer("certwatch/report").Start(ctx, "report.Send")
	defer span.End()
	span.SetAttributes(attribute.Int("events", len(events)))

	err := r.post(ctx, events)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.ReportsTotal.WithLabelValues("failed").Inc()
		r.spool(events)
		return err
	}
	metrics.ReportsTotal.WithLabelValues("ok").Inc()
	for _, e := range events {
		metrics.EventsTotal.WithLabelValues(e.Type()).Inc()
	}
	return nil
}

func (r *Reporter) post(ctx context.Context, events []types.Event) error {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(events); err != nil {
		return fmt.Errorf("encode events: %w", err)
	}

	url := fmt.Sprintf("%s/v1/accounts/%s/events", r.cfg.Endpoint, r.cfg.AccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, buf)
	if err != nil {
		return fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Insert-Key", r.cfg.APIKey)

	resp, err := r.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if resp == nil {
		return &ReportingError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ReportingError{StatusCode: resp.StatusCode, Body: string(body), Err: err}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (r *Reporter) spool(events []types.Event) {
	if r.cfg.SpoolDir == "" {
		return
	}
	name := time.Now().UTC().Format("20060102T150405.000000000") + ".json"
	path := filepath.Join(r.cfg.SpoolDir, name)
	f, err := os.Create(path)
	if err != nil {
		r.log.Errorw("spool create", "err", err)
		return
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(events); err != nil {
		r.log.Errorw("spool write", "path", path, "err", err)
	}
}
