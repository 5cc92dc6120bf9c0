// Package health caches provider liveness behind a fixed TTL.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/llmrouter/pkg/models"
)

// Defaults for the reference policy.
const (
	DefaultTTL          = 30 * time.Second
	DefaultProbeTimeout = 2 * time.Second
)

// Prober checks one provider's liveness. A nil error means healthy.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context) error

// Probe calls f.
func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

// HTTPProbe issues a GET and requires a 2xx response.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

// Probe implements Prober.
func (p HTTPProbe) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.URL, err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe %s: HTTP %d", p.URL, resp.StatusCode)
	}
	return nil
}

// ErrNoCredential is returned by CredentialProbe when no key is configured.
var ErrNoCredential = errors.New("no credential configured")

// CredentialProbe reports healthy when a credential is present. No network
// call is made.
type CredentialProbe struct {
	Key string
}

// Probe implements Prober.
func (p CredentialProbe) Probe(context.Context) error {
	if p.Key == "" {
		return ErrNoCredential
	}
	return nil
}

// BinaryProbe reports healthy when the executable resolves on PATH.
type BinaryProbe struct {
	Command string
}

// Probe implements Prober.
func (p BinaryProbe) Probe(context.Context) error {
	if _, err := exec.LookPath(p.Command); err != nil {
		return fmt.Errorf("locate %s: %w", p.Command, err)
	}
	return nil
}

// Entry is one cached probe result.
type Entry struct {
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

// Monitor caches probe results per provider. The mutex guards the map only;
// probes run unlocked, so two callers may probe the same provider right after
// expiry.
type Monitor struct {
	probes       map[models.Provider]Prober
	ttl          time.Duration
	probeTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time

	mu      sync.Mutex
	entries map[models.Provider]Entry
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithTTL sets the cache lifetime.
func WithTTL(d time.Duration) Option { return func(m *Monitor) { m.ttl = d } }

// WithProbeTimeout bounds each probe.
func WithProbeTimeout(d time.Duration) Option { return func(m *Monitor) { m.probeTimeout = d } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(m *Monitor) { m.logger = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

// NewMonitor creates a Monitor. Providers absent from probes are unhealthy.
func NewMonitor(probes map[models.Provider]Prober, opts ...Option) *Monitor {
	m := &Monitor{
		probes:       probes,
		ttl:          DefaultTTL,
		probeTimeout: DefaultProbeTimeout,
		logger:       zap.NewNop(),
		now:          time.Now,
		entries:      make(map[models.Provider]Entry),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Healthy returns the cached result for p, probing on miss or expiry.
func (m *Monitor) Healthy(ctx context.Context, p models.Provider) bool {
	now := m.now()
	m.mu.Lock()
	e, ok := m.entries[p]
	m.mu.Unlock()
	if ok && now.Sub(e.CheckedAt) < m.ttl {
		return e.Healthy
	}

	err := m.probe(ctx, p)
	e = Entry{Healthy: err == nil, CheckedAt: m.now()}
	if err != nil {
		e.Error = err.Error()
		m.logger.Debug("provider unhealthy", zap.String("provider", string(p)), zap.Error(err))
	}

	m.mu.Lock()
	m.entries[p] = e
	m.mu.Unlock()
	return e.Healthy
}

func (m *Monitor) probe(ctx context.Context, p models.Provider) (err error) {
	prober, ok := m.probes[p]
	if !ok || prober == nil {
		return fmt.Errorf("no probe for provider %q", p)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	// The result is shared by every caller, so one caller giving up must not
	// mark the provider down.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.probeTimeout)
	defer cancel()
	return prober.Probe(ctx)
}

// Clear drops every cached entry.
func (m *Monitor) Clear() {
	m.mu.Lock()
	m.entries = make(map[models.Provider]Entry)
	m.mu.Unlock()
}

// Snapshot returns a copy of the cached entries.
func (m *Monitor) Snapshot() map[models.Provider]Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[models.Provider]Entry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}
