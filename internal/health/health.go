package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Health surface
// Pull-based component checks exposed over HTTP for operators. The pipeline
// registers its breaker and caches; anything else that gates scanning can
// register too.
// ---------------------------------------------------------------------------

// Status is a component health status.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// Check reports the current health of one component.
type Check func(ctx context.Context) Component

// Component is the health report for a single component.
type Component struct {
	Name    string         `json:"name"`
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Report is the aggregate health of the scanner.
type Report struct {
	Status     Status               `json:"status"`
	Components map[string]Component `json:"components"`
	Timestamp  time.Time            `json:"ts"`
	Uptime     string               `json:"uptime"`
}

// Monitor aggregates named component checks on demand.
type Monitor struct {
	mu      sync.RWMutex
	checks  map[string]Check
	started time.Time
}

func NewMonitor() *Monitor {
	return &Monitor{
		checks:  make(map[string]Check),
		started: time.Now().UTC(),
	}
}

// Register adds a named component check.
func (m *Monitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Report runs every registered check and aggregates the result. The
// scanner is degraded when any component is.
func (m *Monitor) Report(ctx context.Context) Report {
	m.mu.RLock()
	checks := make(map[string]Check, len(m.checks))
	for name, fn := range m.checks {
		checks[name] = fn
	}
	m.mu.RUnlock()

	rep := Report{
		Status:     StatusHealthy,
		Components: make(map[string]Component, len(checks)),
		Timestamp:  time.Now().UTC(),
		Uptime:     time.Since(m.started).Round(time.Second).String(),
	}

	for name, fn := range checks {
		c := fn(ctx)
		c.Name = name
		rep.Components[name] = c
		if c.Status != StatusHealthy {
			rep.Status = StatusDegraded
		}
	}

	return rep
}

// Handler returns an HTTP handler serving the aggregate report as JSON.
// Degraded reports answer 503 so load balancers can act on them.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rep := m.Report(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if rep.Status != StatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(rep); err != nil {
			log.Error().Err(err).Msg("health: failed to encode report")
		}
	})
}

// Serve runs the health endpoint on addr until ctx is cancelled.
func (m *Monitor) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/health", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	log.Info().Str("addr", addr).Msg("health: endpoint listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
