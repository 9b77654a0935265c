// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the health of a component.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// DefaultCheckTimeout bounds every readiness check.
const DefaultCheckTimeout = 2 * time.Second

// ComponentCheck is the result of one readiness check.
type ComponentCheck struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the JSON body of both endpoints.
type Response struct {
	Status        Status                    `json:"status"`
	Components    map[string]ComponentCheck `json:"components,omitempty"`
	UptimeSeconds int64                     `json:"uptime_seconds"`
	Timestamp     string                    `json:"timestamp"`
}

// CheckFunc returns nil when the component is ready.
type CheckFunc func(ctx context.Context) error

// Checker aggregates named readiness checks.
type Checker struct {
	mu           sync.RWMutex
	checks       map[string]CheckFunc
	timeout      time.Duration
	started      time.Time
	shuttingDown atomic.Bool
}

// New creates a Checker with DefaultCheckTimeout.
func New() *Checker {
	return &Checker{
		checks:  make(map[string]CheckFunc),
		timeout: DefaultCheckTimeout,
		started: time.Now(),
	}
}

// RegisterReadiness adds or replaces a named check run on every /ready.
func (c *Checker) RegisterReadiness(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// SetShuttingDown makes both endpoints report 503.
func (c *Checker) SetShuttingDown() {
	c.shuttingDown.Store(true)
}

// LiveHandler reports 200 until shutdown starts.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.shuttingDown.Load() {
			c.writeShuttingDown(w)
			return
		}
		c.write(w, http.StatusOK, StatusUp, nil)
	}
}

// ReadyHandler runs every check concurrently and reports 503 if any fail.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.shuttingDown.Load() {
			c.writeShuttingDown(w)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
		defer cancel()
		components := c.run(ctx)

		overall, code := StatusUp, http.StatusOK
		for _, cc := range components {
			if cc.Status == StatusDown {
				overall, code = StatusDown, http.StatusServiceUnavailable
				break
			}
		}
		c.write(w, code, overall, components)
	}
}

// Register mounts /live and /ready on mux.
func (c *Checker) Register(mux *http.ServeMux) {
	mux.Handle("/live", c.LiveHandler())
	mux.Handle("/ready", c.ReadyHandler())
}

func (c *Checker) run(ctx context.Context) map[string]ComponentCheck {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]ComponentCheck, len(checks))
	)
	for name, fn := range checks {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			result := ComponentCheck{Status: StatusUp}
			if err := fn(ctx); err != nil {
				result = ComponentCheck{Status: StatusDown, Message: err.Error()}
			}
			mu.Lock()
			out[name] = result
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()
	return out
}

func (c *Checker) writeShuttingDown(w http.ResponseWriter) {
	c.write(w, http.StatusServiceUnavailable, StatusDown, map[string]ComponentCheck{
		"process": {Status: StatusDown, Message: "shutting down"},
	})
}

func (c *Checker) write(w http.ResponseWriter, code int, status Status, components map[string]ComponentCheck) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{
		Status:        status,
		Components:    components,
		UptimeSeconds: int64(time.Since(c.started).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
