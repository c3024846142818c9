// Package health provides Kubernetes-style liveness and readiness probes.
//
// Checks run on demand when a probe endpoint is hit, each bounded by its own
// timeout. Results are cached briefly so aggressive probe intervals do not
// hammer the checked dependencies.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc reports the health of one component. Nil means healthy.
type CheckFunc func(ctx context.Context) error

// cacheTTL is how long a check result stays valid before the check runs again.
const cacheTTL = 2 * time.Second

type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	mu      sync.Mutex
	lastErr error
	lastRun time.Time
}

// eval runs the check unless a cached result is still fresh.
func (c *check) eval(ctx context.Context, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastRun.IsZero() && now.Sub(c.lastRun) < cacheTTL {
		return c.lastErr
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.lastErr = c.fn(ctx)
	c.lastRun = now
	return c.lastErr
}

// Health aggregates liveness and readiness checks for a service.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*check
	readiness []*check
}

// New returns a Health in the not-ready state. Call SetReady(true) once
// initialization completes.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check for the /livez probe. Liveness failures
// mean the process itself is broken and should be restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, &check{name: name, timeout: timeout, fn: fn})
}

// AddReadinessCheck registers a check for the /readyz probe. Readiness
// failures mean the service should stop receiving traffic, typically because
// a dependency is down.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, &check{name: name, timeout: timeout, fn: fn})
}

// SetReady flips the manual readiness gate. Set it to false during graceful
// shutdown so load balancers drain the instance.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the manual gate is open. Probe-time check results
// are not consulted here; use ReadyEndpoint for the full picture.
func (h *Health) IsReady() bool {
	return h.ready.Load()
}

func (h *Health) snapshot(checks *[]*check) []*check {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*check, len(*checks))
	copy(out, *checks)
	return out
}

// LiveEndpoint serves the liveness probe.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, runChecks(r.Context(), h.snapshot(&h.liveness)))
}

// ReadyEndpoint serves the readiness probe. It fails while the manual gate
// is closed, regardless of individual check results.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	failures := runChecks(r.Context(), h.snapshot(&h.readiness))
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeProbe(w, failures)
}

func runChecks(ctx context.Context, checks []*check) map[string]string {
	now := time.Now()
	failures := make(map[string]string)
	for _, c := range checks {
		if err := c.eval(ctx, now); err != nil {
			failures[c.name] = err.Error()
		}
	}
	return failures
}

type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func writeProbe(w http.ResponseWriter, failures map[string]string) {
	resp := probeResponse{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		resp = probeResponse{Status: "unhealthy", Checks: failures}
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
