package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ferry/internal/logging"
)

// DefaultRefreshBuffer is how long before credential expiry the client is replaced.
const DefaultRefreshBuffer = 10 * time.Minute

// Provider shares one Client across workers and replaces it when its
// credentials are unknown or about to expire.
type Provider struct {
	mu     sync.Mutex
	source Source
	client Client
	expiry time.Time
	buffer time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithRefreshBuffer overrides DefaultRefreshBuffer.
func WithRefreshBuffer(d time.Duration) Option {
	return func(p *Provider) {
		if d >= 0 {
			p.buffer = d
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logging.NewComponentLogger(logger, "objectstore")
	}
}

// NewProvider builds the first client immediately and fails if it cannot.
func NewProvider(ctx context.Context, source Source, opts ...Option) (*Provider, error) {
	if source == nil {
		return nil, fmt.Errorf("objectstore provider: nil source")
	}
	p := &Provider{
		source: source,
		buffer: DefaultRefreshBuffer,
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if _, err := p.Refresh(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Client returns the current client, rebuilding it first when no expiry is
// known or now is within the refresh buffer of the expiry.
func (p *Provider) Client(ctx context.Context) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil && !p.expiry.IsZero() && p.now().Before(p.expiry.Add(-p.buffer)) {
		return p.client, nil
	}
	return p.refreshLocked(ctx)
}

// Refresh unconditionally rebuilds the client.
func (p *Provider) Refresh(ctx context.Context) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshLocked(ctx)
}

// Expiry returns the credential expiry recorded at the last rebuild.
func (p *Provider) Expiry() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expiry
}

func (p *Provider) refreshLocked(ctx context.Context) (Client, error) {
	client, expiry, err := p.source.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("build storage client: %w", err)
	}
	p.client = client
	p.expiry = expiry
	if expiry.IsZero() {
		p.logger.Debug("storage client created", logging.String("expiry", "unknown"))
	} else {
		p.logger.Info("storage client created",
			logging.Time("expiry", expiry),
			logging.Duration("valid_for", expiry.Sub(p.now()).Round(time.Second)),
		)
	}
	return client, nil
}
