// Package provider is the client of a remote device API: account, device
// selection and jobs.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/oqtopus-team/bitorder/backend"
	"github.com/oqtopus-team/bitorder/core"
	"go.uber.org/zap"
)

// Setting is read from [com.provider].
type Setting struct {
	PollIntervalMs    int `toml:"poll_interval_ms"`
	RequestTimeoutSec int `toml:"request_timeout_sec"`
}

const defaultPollInterval = 2 * time.Second

func NewSetting() Setting {
	return Setting{
		PollIntervalMs:    int(defaultPollInterval / time.Millisecond),
		RequestTimeoutSec: 60,
	}
}

type Option func(*Provider)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) { p.pollInterval = d }
}

// Provider is an enabled account.
type Provider struct {
	conn         *Connector
	httpClient   *http.Client
	pollInterval time.Duration
}

// EnableAccount logs in with token at url. Settings in [com.provider] are
// applied before the options.
func EnableAccount(ctx context.Context, token, url string, opts ...Option) (*Provider, error) {
	s := NewSetting()
	if _, err := core.DecodeComponentSetting("provider", &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	p := &Provider{
		httpClient:   &http.Client{Timeout: time.Duration(s.RequestTimeoutSec) * time.Second},
		pollInterval: time.Duration(s.PollIntervalMs) * time.Millisecond,
	}
	for _, o := range opts {
		o(p)
	}
	if p.pollInterval <= 0 {
		zap.L().Warn(fmt.Sprintf("poll interval %s is not positive, using %s", p.pollInterval, defaultPollInterval))
		p.pollInterval = defaultPollInterval
	}
	if url == "" {
		return nil, fmt.Errorf("%w: empty url", ErrCredentials)
	}
	p.conn = NewConnector(token, url, p.httpClient)
	if err := p.conn.Login(ctx); err != nil {
		return nil, err
	}
	zap.L().Info(fmt.Sprintf("enabled account on %s/scope:%+v", p.conn.BaseURL(), p.conn.Scope()))
	return p, nil
}

func (p *Provider) Connector() *Connector {
	return p.conn
}

// Filter selects backends in Backends.
type Filter func(context.Context, *RemoteBackend) (bool, error)

func WithSimulator(simulator bool) Filter {
	return func(_ context.Context, b *RemoteBackend) (bool, error) {
		return b.config.Simulator == simulator, nil
	}
}

func WithName(name string) Filter {
	return func(_ context.Context, b *RemoteBackend) (bool, error) {
		return b.config.BackendName == name, nil
	}
}

// WithOperational keeps the backends whose queue status is operational.
func WithOperational() Filter {
	return func(ctx context.Context, b *RemoteBackend) (bool, error) {
		st, err := b.Status(ctx)
		if err != nil {
			return false, err
		}
		return st.Operational, nil
	}
}

func (p *Provider) Backends(ctx context.Context, filters ...Filter) ([]backend.Backend, error) {
	configs, err := p.conn.AvailableBackends(ctx)
	if err != nil {
		return nil, err
	}
	out := []backend.Backend{}
next:
	for _, cfg := range configs {
		b := &RemoteBackend{provider: p, config: cfg}
		for _, f := range filters {
			ok, err := f(ctx, b)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue next
			}
		}
		out = append(out, b)
	}
	return out, nil
}

func (p *Provider) GetBackend(ctx context.Context, name string) (backend.Backend, error) {
	bs, err := p.Backends(ctx, WithName(name))
	if err != nil {
		return nil, err
	}
	if len(bs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBackend, name)
	}
	return bs[0], nil
}

// LeastBusy returns the operational backend with the fewest pending jobs.
// Backends whose status cannot be read are skipped.
func LeastBusy(ctx context.Context, backends []backend.Backend) (backend.Backend, error) {
	var (
		best    backend.Backend
		pending int
	)
	for _, b := range backends {
		st, err := b.Status(ctx)
		if err != nil {
			zap.L().Warn(fmt.Sprintf("failed to get status of %s/reason:%s", b.Name(), err))
			continue
		}
		if !st.Operational {
			continue
		}
		if best == nil || st.PendingJobs < pending {
			best, pending = b, st.PendingJobs
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: can not find least busy backend in %d backends", ErrNoBackend, len(backends))
	}
	return best, nil
}
