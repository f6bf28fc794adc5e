package ctlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/gustycube/certwatch/internal/types"
)

// ResolutionError describes why no current certificate could be determined
type ResolutionError struct {
	Domain     string
	Message    string
	StatusCode int
	Err        error
}

func (e *ResolutionError) Error() string { return e.Message }

func (e *ResolutionError) Unwrap() error { return e.Err }

// Resolver turns a domain into the metrics of its current certificate
type Resolver struct {
	client *Client
	now    func() time.Time
}

// NewResolver creates a resolver backed by client
func NewResolver(client *Client) *Resolver {
	return &Resolver{client: client, now: time.Now}
}

// WithClock replaces the time source
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve queries the index once and derives CertInfo from the record with
// the latest not_after. No retry is attempted.
func (r *Resolver) Resolve(ctx context.Context, domain string) (*types.CertInfo, error) {
	ctx, span := otel.Tracer("certwatch/ctlog").Start(ctx, "ctlog.Resolve")
	defer span.End()

	body, err := r.client.Query(ctx, domain)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	records, err := decodeRecords(domain, body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	info, err := Select(domain, records, r.now())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return info, nil
}

func decodeRecords(domain string, body []byte) ([]types.CertificateRecord, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &ResolutionError{Domain: domain, Message: "unexpected response format from certificate source"}
	}
	var records []types.CertificateRecord
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, &ResolutionError{Domain: domain, Message: "unexpected response format from certificate source", Err: err}
	}
	return records, nil
}

// Select picks the record with the maximum not_after among records carrying
// both validity bounds. Ties keep the earliest record in input order.
func Select(domain string, records []types.CertificateRecord, now time.Time) (*types.CertInfo, error) {
	if len(records) == 0 {
		return nil, &ResolutionError{Domain: domain, Message: fmt.Sprintf("no certificates found for %s", domain)}
	}

	var (
		best      *types.CertificateRecord
		bestAfter time.Time
	)
	for i := range records {
		rec := &records[i]
		if !rec.HasValidity() {
			continue
		}
		notAfter, err := ParseTime(rec.NotAfter)
		if err != nil {
			continue
		}
		if best == nil || notAfter.After(bestAfter) {
			best, bestAfter = rec, notAfter
		}
	}
	if best == nil {
		return nil, &ResolutionError{Domain: domain, Message: fmt.Sprintf("no valid certificates found for %s", domain)}
	}

	issuer := best.IssuerName
	if issuer == "" {
		issuer = types.UnknownIssuer
	}
	return &types.CertInfo{
		DaysRemaining:  DaysRemaining(bestAfter, now),
		ExpirationDate: best.NotAfter,
		ValidFrom:      best.NotBefore,
		Issuer:         issuer,
	}, nil
}

// DaysRemaining is the ceiling of whole days from now until notAfter; negative once expired
func DaysRemaining(notAfter, now time.Time) int {
	return int(math.Ceil(float64(notAfter.Sub(now)) / float64(24*time.Hour)))
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts the date formats seen from CT indexes. Values without a
// zone are UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
