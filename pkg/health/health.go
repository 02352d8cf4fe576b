// Package health serves liveness and readiness probes.
//
// Every probe is polled in its own goroutine. A probe turns unhealthy after
// FailureThreshold consecutive failures and healthy again after
// SuccessThreshold consecutive successes, so one slow ping does not flip
// readiness.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// CheckFunc returns nil when the component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects which endpoint a probe contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

func (k Kind) String() string {
	if k == Readiness {
		return "readiness"
	}
	return "liveness"
}

// Thresholds controls how many consecutive results flip a probe.
type Thresholds struct {
	Failure int
	Success int
}

// DefaultThresholds mirrors the Kubernetes probe defaults.
var DefaultThresholds = Thresholds{Failure: 3, Success: 1}

type probe struct {
	name       string
	kind       Kind
	timeout    time.Duration
	check      CheckFunc
	thresholds Thresholds

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	// owned by the polling goroutine
	fails int
	oks   int
}

func (p *probe) failure() string {
	if p.healthy.Load() {
		return ""
	}
	if e := p.lastErr.Load(); e != nil && *e != nil {
		return (*e).Error()
	}
	return "check is unhealthy"
}

// poll runs the check once. It reports whether the health state changed.
func (p *probe) poll(ctx context.Context) (changed bool) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)

	was := p.healthy.Load()
	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= p.thresholds.Failure {
			p.healthy.Store(false)
		}
	} else {
		p.fails = 0
		p.oks++
		if p.oks >= p.thresholds.Success {
			p.healthy.Store(true)
		}
	}
	return was != p.healthy.Load()
}

// Service aggregates probes and exposes them over HTTP.
type Service struct {
	lg    *zap.Logger
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Service that is not ready until SetReady(true).
func New(lg *zap.Logger) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{lg: lg}
}

// Add registers a probe with DefaultThresholds. Probes start healthy.
func (s *Service) Add(kind Kind, name string, timeout time.Duration, check CheckFunc) {
	s.AddWithThresholds(kind, name, timeout, DefaultThresholds, check)
}

// AddWithThresholds registers a probe with explicit thresholds.
func (s *Service) AddWithThresholds(kind Kind, name string, timeout time.Duration, th Thresholds, check CheckFunc) {
	if th.Failure < 1 {
		th.Failure = 1
	}
	if th.Success < 1 {
		th.Success = 1
	}
	p := &probe{
		name:       name,
		kind:       kind,
		timeout:    timeout,
		check:      check,
		thresholds: th,
	}
	p.healthy.Store(true)

	s.mu.Lock()
	s.probes = append(s.probes, p)
	s.mu.Unlock()
}

// Start polls every registered probe at interval until Stop or ctx is done.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	probes := append([]*probe(nil), s.probes...)
	s.mu.Unlock()

	for _, p := range probes {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(ctx, p, interval)
		}()
	}
}

func (s *Service) run(ctx context.Context, p *probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if p.poll(ctx) {
			s.lg.Warn("Probe state changed",
				zap.String("probe", p.name),
				zap.Stringer("kind", p.kind),
				zap.Bool("healthy", p.healthy.Load()),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels polling and waits for the goroutines. Safe to call twice.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
}

// SetReady toggles the manual readiness gate used during start-up and drain.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// IsReady reports whether the gate is open and every readiness probe passes.
func (s *Service) IsReady() bool {
	return s.ready.Load() && len(s.failures(Readiness)) == 0
}

func (s *Service) failures(kind Kind) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string)
	for _, p := range s.probes {
		if p.kind != kind {
			continue
		}
		if msg := p.failure(); msg != "" {
			out[p.name] = msg
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (s *Service) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, s.failures(Liveness))
}

// ReadyEndpoint serves /readyz.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := s.failures(Readiness)
	if !s.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

// writeStatus renders {"status":"ok"} or {"status":"unhealthy","checks":{...}}.
func writeStatus(w http.ResponseWriter, failures map[string]string) {
	var e jx.Encoder
	status := http.StatusOK
	e.Obj(func(e *jx.Encoder) {
		if len(failures) == 0 {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		status = http.StatusServiceUnavailable
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		e.Field("checks", func(e *jx.Encoder) {
			names := make([]string, 0, len(failures))
			for name := range failures {
				names = append(names, name)
			}
			sort.Strings(names)
			e.Obj(func(e *jx.Encoder) {
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failures[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
