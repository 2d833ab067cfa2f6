package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	defaultProbeTimeout = 3 * time.Second
	defaultPollInterval = 500 * time.Millisecond
)

// Monitor records the health of external services and launches them on
// demand. It is safe for concurrent use; readers may observe a slightly
// stale record.
type Monitor struct {
	prober       Prober
	launcher     Launcher
	logger       *log.Logger
	pollInterval time.Duration
	now          func() time.Time

	mu       sync.RWMutex
	health   map[string]Health
	launched map[string]launched
}

type launched struct {
	proc       Process
	stopOnExit bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithProber replaces the default HTTP prober.
func WithProber(p Prober) Option {
	return func(m *Monitor) { m.prober = p }
}

// WithLauncher sets the launcher used by EnsureRunning. Without one,
// services are never started.
func WithLauncher(l Launcher) Option {
	return func(m *Monitor) { m.launcher = l }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithPollInterval sets how often EnsureRunning re-probes a starting service.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) { m.pollInterval = d }
}

// NewMonitor creates a monitor.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		prober:       HTTPProber{},
		logger:       log.Default(),
		pollInterval: defaultPollInterval,
		now:          time.Now,
		health:       make(map[string]Health),
		launched:     make(map[string]launched),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check probes the service once and records the result. It never fails;
// an unreachable service is reported in the returned Health.
func (m *Monitor) Check(ctx context.Context, svc Service) Health {
	timeout := svc.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := m.prober.Probe(ctx, svc.HealthURL())

	m.mu.Lock()
	defer m.mu.Unlock()
	_, isLaunched := m.launched[svc.Name]
	h := Health{
		Name:        svc.Name,
		URL:         svc.BaseURL,
		Reachable:   err == nil,
		LastChecked: m.now(),
		Err:         Classify(svc.Name, err),
		Launched:    isLaunched,
	}
	m.health[svc.Name] = h
	return h
}

// EnsureRunning reports whether the service is reachable, starting it first
// if it isn't and it has a launch command. After launching it polls until
// the service answers or its startup wait elapses. Launch failures are
// logged, not returned.
func (m *Monitor) EnsureRunning(ctx context.Context, svc Service) bool {
	if m.Check(ctx, svc).Reachable {
		return true
	}
	if svc.Launch == nil || m.launcher == nil {
		m.logger.Warn("Service is not running", "service", svc.Name, "url", svc.BaseURL)
		return false
	}

	m.mu.RLock()
	_, already := m.launched[svc.Name]
	m.mu.RUnlock()

	if !already {
		m.logger.Info("Starting service", "service", svc.Name, "command", svc.Launch.String())
		proc, err := m.launcher.Launch(ctx, *svc.Launch)
		if err != nil {
			m.logger.Warn("Could not start service", "service", svc.Name, "err", err)
			return false
		}
		m.mu.Lock()
		m.launched[svc.Name] = launched{proc: proc, stopOnExit: svc.Launch.StopOnExit}
		m.mu.Unlock()
	}

	deadline := time.NewTimer(svc.StartupWait)
	defer deadline.Stop()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			reachable := m.Check(ctx, svc).Reachable
			if !reachable {
				m.logger.Warn("Service did not come up in time", "service", svc.Name, "wait", svc.StartupWait)
			}
			return reachable
		case <-ticker.C:
			if m.Check(ctx, svc).Reachable {
				m.logger.Info("Service is up", "service", svc.Name)
				return true
			}
		}
	}
}

// Health returns the last recorded health of the named service.
func (m *Monitor) Health(name string) (Health, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.health[name]
	return h, ok
}

// Reachable reports the last recorded reachability of the named service.
// A service that was never checked is unreachable.
func (m *Monitor) Reachable(name string) bool {
	h, _ := m.Health(name)
	return h.Reachable
}

// Summary returns the health of every checked service, sorted by name.
func (m *Monitor) Summary() []Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Health, 0, len(m.health))
	for _, h := range m.health {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Shutdown stops the processes this monitor launched that are configured
// to stop on exit.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	procs := m.launched
	m.launched = make(map[string]launched)
	m.mu.Unlock()

	var errs []error
	for name, l := range procs {
		if !l.stopOnExit {
			continue
		}
		m.logger.Info("Stopping service", "service", name, "pid", l.proc.Pid())
		if err := l.proc.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
