package httpclient

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gustycube/certwatch/internal/circuitbreaker"
)

// Default returns the client used for outbound API calls
func Default(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}
}

// Doer is satisfied by *http.Client and *ResilientClient
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ResilientClient wraps a Doer and records every outcome in a per-host
// breaker set. Requests are always sent; the breakers only report upstream health.
type ResilientClient struct {
	client   Doer
	breakers *circuitbreaker.Set
}

// NewResilientClient creates a client observed by breakers. A nil client uses Default.
func NewResilientClient(client Doer, breakers *circuitbreaker.Set) *ResilientClient {
	if client == nil {
		client = Default(0)
	}
	if breakers == nil {
		breakers = circuitbreaker.NewSet(nil)
	}
	return &ResilientClient{client: client, breakers: breakers}
}

// Do executes req exactly once. Transport errors and 5xx responses count as
// breaker failures; for a 5xx the response is returned together with an
// *HTTPError and the caller owns the body.
func (c *ResilientClient) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		c.breakers.Observe(req.URL.Host, false)
		return resp, err
	}
	if resp.StatusCode >= 500 {
		c.breakers.Observe(req.URL.Host, false)
		return resp, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	c.breakers.Observe(req.URL.Host, true)
	return resp, nil
}

// Breakers exposes the breaker set for health reporting
func (c *ResilientClient) Breakers() *circuitbreaker.Set {
	return c.breakers
}

// HTTPError represents a 5xx upstream response
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	if e.Status != "" {
		return e.Status
	}
	return fmt.Sprintf("status %d", e.StatusCode)
}
