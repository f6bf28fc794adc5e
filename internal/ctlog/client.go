// Package ctlog resolves the current certificate of a domain from a
// crt.sh-compatible certificate transparency index.
package ctlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gustycube/certwatch/internal/httpclient"
	"github.com/gustycube/certwatch/internal/rate"
)

const (
	DefaultBaseURL   = "https://crt.sh"
	maxResponseBytes = 32 << 20
)

// Client queries the CT index over HTTP
type Client struct {
	baseURL string
	host    string
	hc      httpclient.Doer
	limiter *rate.PerHost
	ua      string
}

// Option customizes a Client
type Option func(*Client)

// WithLimiter throttles requests to the index host
func WithLimiter(l *rate.PerHost) Option {
	return func(c *Client) { c.limiter = l }
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.ua = ua }
}

// NewClient creates a client for baseURL. hc is typically a *httpclient.ResilientClient.
func NewClient(baseURL string, hc httpclient.Doer, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	if hc == nil {
		hc = httpclient.Default(0)
	}
	c := &Client{baseURL: baseURL, host: host, hc: hc}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Host returns the index host name
func (c *Client) Host() string { return c.host }

// Query performs exactly one GET for domain and returns the raw body.
// Failures are returned as *ResolutionError.
func (c *Client) Query(ctx context.Context, domain string) ([]byte, error) {
	ctx, span := otel.Tracer("certwatch/ctlog").Start(ctx, "ctlog.Query")
	defer span.End()
	span.SetAttributes(attribute.String("domain", domain))

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.host); err != nil {
			return nil, &ResolutionError{Domain: domain, Message: fmt.Sprintf("certificate lookup aborted: %v", err), Err: err}
		}
	}

	u := fmt.Sprintf("%s/?q=%s&output=json", c.baseURL, url.QueryEscape(domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, &ResolutionError{Domain: domain, Message: fmt.Sprintf("build certificate request: %v", err), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		var httpErr *httpclient.HTTPError
		if errors.As(err, &httpErr) {
			if resp != nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
			return nil, statusError(domain, httpErr.StatusCode)
		}
		return nil, &ResolutionError{Domain: domain, Message: fmt.Sprintf("certificate lookup failed: %v", err), Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, statusError(domain, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ResolutionError{Domain: domain, Message: fmt.Sprintf("read certificate response: %v", err), Err: err}
	}
	return body, nil
}

func statusError(domain string, code int) *ResolutionError {
	return &ResolutionError{
		Domain:     domain,
		StatusCode: code,
		Message:    fmt.Sprintf("certificate lookup failed with status %d", code),
	}
}
