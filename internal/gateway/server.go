// Package gateway implements the coordination service's HTTP surface:
// swarm and worker lifecycle endpoints plus the per-swarm SSE event
// stream.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/axiomantic/coordinatord/internal/retry"
	"github.com/axiomantic/coordinatord/internal/store"
)

const serviceVersion = "1.0.0"

// Server is the coordination service's HTTP server. It binds to
// loopback only by default; the route set is small and static, so a
// bare ServeMux is used rather than a third-party router.
type Server struct {
	store       *store.StateManager
	retryPolicy retry.RetryPolicy
	server      *http.Server
	startedAt   time.Time

	sseLimiters   map[string]*rate.Limiter
	sseLimitersMu sync.Mutex
}

func NewServer(host string, port int, sm *store.StateManager, retryPolicy retry.RetryPolicy) *Server {
	s := &Server{
		store:       sm,
		retryPolicy: retryPolicy,
		startedAt:   time.Now().UTC(),
		sseLimiters: make(map[string]*rate.Limiter),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /swarm/create", s.handleCreateSwarm)
	mux.HandleFunc("POST /swarm/{swarm_id}/register", s.handleRegisterWorker)
	mux.HandleFunc("POST /swarm/{swarm_id}/progress", s.handleReportProgress)
	mux.HandleFunc("POST /swarm/{swarm_id}/complete", s.handleReportComplete)
	mux.HandleFunc("POST /swarm/{swarm_id}/error", s.handleReportError)
	mux.HandleFunc("GET /swarm/{swarm_id}/status", s.handleSwarmStatus)
	mux.HandleFunc("GET /swarm/{swarm_id}/workers", s.handleListWorkers)
	mux.HandleFunc("GET /swarm/{swarm_id}/events", s.handleEvents)
	mux.HandleFunc("DELETE /swarm/{swarm_id}", s.handleDeleteSwarm)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // the SSE handler streams indefinitely; it stops when the request context is canceled or the swarm ends
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Handler exposes the underlying http.Handler for use in tests and
// for composing the server behind a different listener.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// limiterFor returns the per-swarm SSE reconnect-attempt limiter,
// creating it on first use. It bounds connection churn from a
// mis-behaving client without throttling the mutating endpoints.
func (s *Server) limiterFor(swarmID string) *rate.Limiter {
	s.sseLimitersMu.Lock()
	defer s.sseLimitersMu.Unlock()

	lim, ok := s.sseLimiters[swarmID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Second), 5)
		s.sseLimiters[swarmID] = lim
	}
	return lim
}
