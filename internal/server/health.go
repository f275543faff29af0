// Package server carries the operational surface of a weave process: health
// probes for the orchestrator and an ordered graceful-shutdown sequence.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck is the outcome of probing one dependency.
type HealthCheck struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthResponse is the JSON body served by every probe endpoint.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Checks    []HealthCheck `json:"checks,omitempty"`
}

// HealthChecker probes a single dependency.
type HealthChecker func(ctx context.Context) HealthCheck

type HealthConfig struct {
	Version string
	Addr    string
}

// HealthServer serves liveness, readiness, and dependency health over HTTP.
// /live and /ready are cheap flag reads; /health runs every registered
// checker with a bounded context.
type HealthServer struct {
	mu      sync.RWMutex
	checks  map[string]HealthChecker
	version string
	ready   bool
	live    bool
	stop    chan struct{}
}

func NewHealthServer(cfg *HealthConfig) *HealthServer {
	s := &HealthServer{
		checks: make(map[string]HealthChecker),
		live:   true,
		stop:   make(chan struct{}),
	}
	if cfg != nil {
		s.version = cfg.Version
	}
	return s
}

func (s *HealthServer) RegisterCheck(name string, check HealthChecker) {
	s.mu.Lock()
	s.checks[name] = check
	s.mu.Unlock()
}

func (s *HealthServer) SetReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
}

func (s *HealthServer) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *HealthServer) SetLive(live bool) {
	s.mu.Lock()
	s.live = live
	s.mu.Unlock()
}

// Handler exposes the probe endpoints, with the Kubernetes-style z aliases.
func (s *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	for _, path := range []string{"/health", "/healthz"} {
		mux.HandleFunc(path, s.handleHealth)
	}
	for _, path := range []string{"/ready", "/readyz"} {
		mux.HandleFunc(path, s.flagHandler(func() bool { return s.ready }))
	}
	for _, path := range []string{"/live", "/livez"} {
		mux.HandleFunc(path, s.flagHandler(func() bool { return s.live }))
	}
	return mux
}

// ListenAndServe blocks serving the probe endpoints until Shutdown.
func (s *HealthServer) ListenAndServe(addr string) error {
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		<-s.stop
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()
	return srv.ListenAndServe()
}

func (s *HealthServer) Shutdown() {
	close(s.stop)
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]HealthChecker, len(names))
	for i, name := range names {
		checks[i] = s.checks[name]
	}
	version := s.version
	s.mu.RUnlock()

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   version,
		Checks:    make([]HealthCheck, 0, len(checks)),
	}
	for i, check := range checks {
		result := check(ctx)
		result.Name = names[i]
		resp.Checks = append(resp.Checks, result)
		resp.Status = worseOf(resp.Status, result.Status)
	}

	code := http.StatusOK
	if resp.Status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// flagHandler serves a readiness or liveness probe backed by a boolean.
func (s *HealthServer) flagHandler(flag func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		ok := flag()
		s.mu.RUnlock()

		resp := HealthResponse{Status: HealthStatusHealthy, Timestamp: time.Now().UTC()}
		if !ok {
			resp.Status = HealthStatusUnhealthy
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// worseOf merges check statuses: unhealthy dominates, degraded taints an
// otherwise healthy report.
func worseOf(a, b HealthStatus) HealthStatus {
	if a == HealthStatusUnhealthy || b == HealthStatusUnhealthy {
		return HealthStatusUnhealthy
	}
	if a == HealthStatusDegraded || b == HealthStatusDegraded {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

// probeChecker builds a checker that maps a ping error to the given failure
// status.
func probeChecker(label string, onFailure HealthStatus, ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if err := ping(ctx); err != nil {
			return HealthCheck{Status: onFailure, Message: label + " failed: " + err.Error()}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: label + " OK"}
	}
}

// GraphHealthChecker probes Neo4j. The graph store is the source of truth,
// so failure is unhealthy.
func GraphHealthChecker(ping func(ctx context.Context) error) HealthChecker {
	return probeChecker("graph database", HealthStatusUnhealthy, ping)
}

// VectorHealthChecker probes Qdrant. Similarity search degrades gracefully
// (gap detection still works without it), so failure is only degraded.
func VectorHealthChecker(ping func(ctx context.Context) error) HealthChecker {
	return probeChecker("vector store", HealthStatusDegraded, ping)
}

// UsageStoreHealthChecker probes the suggestion usage log.
func UsageStoreHealthChecker(ping func(ctx context.Context) error) HealthChecker {
	return probeChecker("usage store", HealthStatusUnhealthy, ping)
}

// TemporalHealthChecker probes the Temporal frontend.
func TemporalHealthChecker(ping func(ctx context.Context) error) HealthChecker {
	return probeChecker("temporal", HealthStatusUnhealthy, ping)
}

// LLMHealthChecker reports on the configured provider. With no ping function
// it only confirms configuration; a failing ping is degraded because the
// engine falls back to scored gaps without suggestions.
func LLMHealthChecker(providerName string, ping func(ctx context.Context) error) HealthChecker {
	details := map[string]string{"provider": providerName}
	return func(ctx context.Context) HealthCheck {
		if ping == nil {
			return HealthCheck{
				Status:  HealthStatusHealthy,
				Message: "LLM provider configured: " + providerName,
				Details: details,
			}
		}
		if err := ping(ctx); err != nil {
			return HealthCheck{
				Status:  HealthStatusDegraded,
				Message: "LLM provider degraded: " + err.Error(),
				Details: details,
			}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: "LLM provider OK", Details: details}
	}
}
