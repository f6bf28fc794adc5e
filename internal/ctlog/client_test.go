package ctlog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gustycube/certwatch/internal/circuitbreaker"
	"github.com/gustycube/certwatch/internal/httpclient"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestResolver(t *testing.T, h http.HandlerFunc) (*Resolver, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, httpclient.NewResilientClient(srv.Client(), nil))
	return NewResolver(client).WithClock(func() time.Time { return fixedNow }), &calls
}

func TestResolve_Success(t *testing.T) {
	r, calls := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		if got := req.URL.Query().Get("q"); got != "example.com" {
			t.Errorf("q = %q, want example.com", got)
		}
		if got := req.URL.Query().Get("output"); got != "json" {
			t.Errorf("output = %q, want json", got)
		}
		w.Write([]byte(`[
			{"issuer_name":"C=US, O=Let's Encrypt, CN=R3","not_before":"2026-01-01T00:00:00","not_after":"2026-04-01T00:00:00"},
			{"issuer_name":"C=US, O=Old CA","not_before":"2025-01-01T00:00:00","not_after":"2025-04-01T00:00:00"},
			{"not_before":"2026-02-01T00:00:00","not_after":"2026-05-01T12:00:00"}
		]`))
	})

	info, err := r.Resolve(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.ExpirationDate != "2026-05-01T12:00:00" {
		t.Errorf("ExpirationDate = %q", info.ExpirationDate)
	}
	if info.ValidFrom != "2026-02-01T00:00:00" {
		t.Errorf("ValidFrom = %q", info.ValidFrom)
	}
	if info.Issuer != "Unknown" {
		t.Errorf("Issuer = %q, want Unknown", info.Issuer)
	}
	if info.DaysRemaining != 61 {
		t.Errorf("DaysRemaining = %d, want 61", info.DaysRemaining)
	}
	if *calls != 1 {
		t.Errorf("calls = %d, want exactly 1", *calls)
	}
}

func TestResolve_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantMsg    string
		wantStatus int
	}{
		{"server error", http.StatusInternalServerError, "", "status 500", 500},
		{"rate limited", http.StatusTooManyRequests, "", "status 429", 429},
		{"object body", http.StatusOK, `{"error":"nope"}`, "unexpected response format", 0},
		{"html body", http.StatusOK, `<html></html>`, "unexpected response format", 0},
		{"empty body", http.StatusOK, ``, "unexpected response format", 0},
		{"empty list", http.StatusOK, `[]`, "no certificates found", 0},
		{"no validity", http.StatusOK, `[{"not_before":"2026-01-01"},{"not_after":"2026-02-01"},{"issuer_name":"x"}]`, "no valid certificates found", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, calls := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			info, err := r.Resolve(context.Background(), "example.com")
			if info != nil {
				t.Fatalf("expected no result, got %+v", info)
			}
			var resErr *ResolutionError
			if !errors.As(err, &resErr) {
				t.Fatalf("expected *ResolutionError, got %T %v", err, err)
			}
			if !strings.Contains(resErr.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want mention of %q", resErr.Error(), tt.wantMsg)
			}
			if resErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", resErr.StatusCode, tt.wantStatus)
			}
			if resErr.Domain != "example.com" {
				t.Errorf("Domain = %q", resErr.Domain)
			}
			if *calls != 1 {
				t.Errorf("calls = %d, want exactly 1 (no retry)", *calls)
			}
		})
	}
}

func TestResolve_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	r := NewResolver(NewClient(url, httpclient.NewResilientClient(httpclient.Default(time.Second), nil)))
	_, err := r.Resolve(context.Background(), "example.com")
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected *ResolutionError, got %v", err)
	}
	if !strings.Contains(resErr.Error(), "certificate lookup failed") {
		t.Errorf("error = %q", resErr.Error())
	}
}

func TestResolve_OpenBreakerStillQueries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("q") == "down.example" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"not_before":"2026-01-01T00:00:00","not_after":"2026-04-01T00:00:00"}]`))
	}))
	defer srv.Close()

	set := circuitbreaker.NewSet(&circuitbreaker.Config{Threshold: 1, FailureRatio: 0.5, Timeout: time.Minute})
	r := NewResolver(NewClient(srv.URL, httpclient.NewResilientClient(srv.Client(), set))).
		WithClock(func() time.Time { return fixedNow })

	for i := 0; i < 2; i++ {
		_, err := r.Resolve(context.Background(), "down.example")
		var resErr *ResolutionError
		if !errors.As(err, &resErr) || resErr.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("attempt %d: expected 503 ResolutionError, got %v", i, err)
		}
	}
	host := strings.TrimPrefix(srv.URL, "http://")
	if set.State(host) != circuitbreaker.StateOpen {
		t.Fatalf("expected breaker to report open")
	}

	info, err := r.Resolve(context.Background(), "up.example")
	if err != nil {
		t.Fatalf("open breaker must not block other domains: %v", err)
	}
	if info.ExpirationDate != "2026-04-01T00:00:00" {
		t.Errorf("ExpirationDate = %q", info.ExpirationDate)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3 (one per resolve)", n)
	}
}

func TestResolve_CanceledContext(t *testing.T) {
	r, _ := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`[]`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Resolve(ctx, "example.com"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestNewClient_Host(t *testing.T) {
	c := NewClient("https://crt.sh/", nil)
	if c.Host() != "crt.sh" {
		t.Errorf("Host() = %q", c.Host())
	}
	if c.baseURL != "https://crt.sh" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
}
