// Package api exposes on-demand certificate checks over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/gustycube/certwatch/internal/ctlog"
	"github.com/gustycube/certwatch/internal/types"
)

// Checker runs a single on-demand check
type Checker interface {
	Check(ctx context.Context, raw string) (types.Event, error)
}

// Server holds the HTTP handlers
type Server struct {
	checker Checker
	log     *zap.SugaredLogger
	debug   bool
}

// New creates a Server. With debug set, error details are returned to every caller.
func New(checker Checker, log *zap.SugaredLogger, debug bool) *Server {
	return &Server{checker: checker, log: log, debug: debug}
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Use(onlyGET)

	r.Get("/check", s.handleCheck)
	r.NotFound(s.handleUsage)
	return r
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("domain")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"eventType": types.EventError,
			"error":     "missing required query parameter: domain",
		})
		return
	}

	ev, err := s.checker.Check(r.Context(), raw)
	if err != nil {
		body := make(map[string]interface{}, len(ev)+1)
		for k, v := range ev {
			body[k] = v
		}
		if s.debug || isLoopback(r) {
			body["detail"] = errorChain(err)
		}
		writeJSON(w, http.StatusInternalServerError, body)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"eventType":   types.EventUsage,
		"message":     "SSL certificate expiry checker",
		"usage":       "GET /check?domain=<domain>",
		"example":     "/check?domain=example.com",
		"description": "Looks up the newest certificate for a domain in certificate transparency logs and reports days until expiry.",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func isLoopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// errorChain lists err and every error it wraps, outermost first
func errorChain(err error) []map[string]interface{} {
	var chain []map[string]interface{}
	for err != nil {
		link := map[string]interface{}{"error": err.Error()}
		if res, ok := err.(*ctlog.ResolutionError); ok && res.StatusCode != 0 {
			link["statusCode"] = res.StatusCode
		}
		chain = append(chain, link)
		err = errors.Unwrap(err)
	}
	return chain
}
