// Package health serves Kubernetes-style liveness and readiness probes.
//
// Registered checks run periodically in the background. A check flips to
// unhealthy only after failing several consecutive runs, and back to healthy
// after a consecutive success, so a single slow probe does not flap the
// service out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultFailureThreshold = 3
	defaultSuccessThreshold = 1
)

// CheckFunc probes one component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// check carries the configuration and last observed state of one probe.
// The counters are touched only by the runner goroutine; healthy and
// lastErr are read concurrently by the HTTP endpoints.
type check struct {
	name    string
	timeout time.Duration
	probe   CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func (c *check) run(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.probe(probeCtx)
	cancel()

	if err != nil {
		c.lastErr.Store(&err)
		c.oks = 0
		if c.fails++; c.fails >= defaultFailureThreshold {
			c.healthy.Store(false)
		}
		return
	}

	c.lastErr.Store(nil)
	c.fails = 0
	if c.oks++; c.oks >= defaultSuccessThreshold {
		c.healthy.Store(true)
	}
}

// Service aggregates liveness and readiness checks and serves them over HTTP.
type Service struct {
	mu        sync.Mutex
	liveness  []*check
	readiness []*check

	ready   atomic.Bool
	stop    context.CancelFunc
	stopped chan struct{}
}

// New creates an empty health Service. Register checks, then call Start.
func New() *Service {
	return &Service{}
}

// AddLivenessCheck registers a probe that gates the liveness endpoint.
func (s *Service) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	s.add(&s.liveness, name, timeout, fn)
}

// AddReadinessCheck registers a probe that gates the readiness endpoint.
func (s *Service) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	s.add(&s.readiness, name, timeout, fn)
}

func (s *Service) add(to *[]*check, name string, timeout time.Duration, fn CheckFunc) {
	c := &check{name: name, timeout: timeout, probe: fn}
	c.healthy.Store(true) // optimistic until the first runs say otherwise
	s.mu.Lock()
	*to = append(*to, c)
	s.mu.Unlock()
}

// Start launches the background runner that executes every registered check
// each interval. It must be called once, after all checks are registered.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	runCtx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	s.stopped = make(chan struct{})

	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				for _, c := range s.checks() {
					c.run(runCtx)
				}
			}
		}
	}()
}

// Stop halts the background runner and waits for it to exit.
func (s *Service) Stop() {
	if s.stop == nil {
		return
	}
	s.stop()
	<-s.stopped
}

// SetReady flips the explicit readiness gate. Shutdown sets it to false
// before draining so load balancers stop routing new requests.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Service) checks() []*check {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*check, 0, len(s.liveness)+len(s.readiness))
	out = append(out, s.liveness...)
	return append(out, s.readiness...)
}

// LiveEndpoint serves the liveness probe.
func (s *Service) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	checks := append([]*check(nil), s.liveness...)
	s.mu.Unlock()
	s.respond(w, checks, true)
}

// ReadyEndpoint serves the readiness probe. It fails while the explicit
// readiness gate is down, regardless of check state.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	checks := append([]*check(nil), s.readiness...)
	s.mu.Unlock()
	s.respond(w, checks, s.ready.Load())
}

func (s *Service) respond(w http.ResponseWriter, checks []*check, gate bool) {
	type entry struct {
		Healthy bool   `json:"healthy"`
		Error   string `json:"error,omitempty"`
	}
	body := make(map[string]entry, len(checks))

	healthy := gate
	for _, c := range checks {
		e := entry{Healthy: c.healthy.Load()}
		if p := c.lastErr.Load(); p != nil && *p != nil {
			e.Error = (*p).Error()
		}
		if !e.Healthy {
			healthy = false
		}
		body[c.name] = e
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
