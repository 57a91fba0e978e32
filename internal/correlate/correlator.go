// Package correlate joins text signals with the chart images that arrive in
// separate messages. A detected signal without an image is parked under its
// chat scope for a bounded window; an image-only message that arrives inside
// the window claims it.
package correlate

import (
	"log/slog"
	"sync"
	"time"

	"chartsignal/internal/domain"
)

// DefaultWindow is how long a parked signal waits for its chart.
const DefaultWindow = 30 * time.Second

type pending struct {
	signal   *domain.TradeSignal
	deadline time.Time
}

// Correlator holds at most one pending signal per correlation key. All methods
// are safe for concurrent use; expiry is lazy on access plus an explicit
// Sweep for keys that never see another message.
type Correlator struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]pending
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithWindow overrides the correlation window.
func WithWindow(w time.Duration) Option {
	return func(c *Correlator) {
		if w > 0 {
			c.window = w
		}
	}
}

// WithClock injects the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Correlator) { c.now = now }
}

// New creates a Correlator with the default window.
func New(logger *slog.Logger, opts ...Option) *Correlator {
	c := &Correlator{
		window:  DefaultWindow,
		pending: make(map[string]pending),
		now:     time.Now,
		logger:  logger.With(slog.String("component", "correlate")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Park stores sig under its correlation key, waiting for a chart image. A
// predecessor already parked under the same key is evicted and returned:
// as superseded when its window was still open, as expired otherwise. Either
// way the caller must finalize it without prices; no parked signal is ever
// silently discarded.
func (c *Correlator) Park(sig *domain.TradeSignal) (superseded, expired *domain.TradeSignal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := sig.CorrelationKey
	if prev, ok := c.pending[key]; ok {
		if c.now().Before(prev.deadline) {
			superseded = prev.signal
		} else {
			expired = prev.signal
		}
	}
	c.pending[key] = pending{signal: sig, deadline: c.now().Add(c.window)}

	c.logger.Debug("signal parked",
		slog.String("key", key),
		slog.String("ticker", sig.Ticker),
		slog.Bool("superseded_previous", superseded != nil),
		slog.Bool("expired_previous", expired != nil))
	return superseded, expired
}

// TryJoin claims the pending signal for key if one exists and its window has
// not elapsed. The claimed signal is removed; a second TryJoin for the same
// key returns nothing. An expired entry is left in place for Sweep, which
// owns finalizing it.
func (c *Correlator) TryJoin(key string) (*domain.TradeSignal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(p.deadline) {
		return nil, false
	}
	delete(c.pending, key)
	c.logger.Debug("signal joined with image",
		slog.String("key", key),
		slog.String("ticker", p.signal.Ticker))
	return p.signal, true
}

// Sweep removes every pending signal whose window has elapsed and returns
// them so the caller can finalize them without prices.
func (c *Correlator) Sweep() []*domain.TradeSignal {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*domain.TradeSignal
	now := c.now()
	for key, p := range c.pending {
		if !now.Before(p.deadline) {
			expired = append(expired, p.signal)
			delete(c.pending, key)
		}
	}
	if len(expired) > 0 {
		c.logger.Debug("expired signals swept", slog.Int("count", len(expired)))
	}
	return expired
}

// PendingCount returns the number of signals currently parked, including any
// whose window has elapsed but which have not been swept yet.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
