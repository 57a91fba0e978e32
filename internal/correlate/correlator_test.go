package correlate

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"chartsignal/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCorrelator(window time.Duration) (*Correlator, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return New(testLogger, WithWindow(window), WithClock(clk.now)), clk
}

func sig(key, ticker string) *domain.TradeSignal {
	return &domain.TradeSignal{
		ID:             ticker + "-id",
		Direction:      domain.DirectionLong,
		Ticker:         ticker,
		CorrelationKey: key,
	}
}

func TestJoinWithinWindow(t *testing.T) {
	c, clk := newTestCorrelator(30 * time.Second)

	c.Park(sig("chan-1", "BTC"))
	clk.advance(10 * time.Second)

	got, ok := c.TryJoin("chan-1")
	if !ok {
		t.Fatal("TryJoin: want a match inside the window")
	}
	if got.Ticker != "BTC" {
		t.Errorf("Ticker = %q, want BTC", got.Ticker)
	}

	// The claim removes the pending entry.
	if _, ok := c.TryJoin("chan-1"); ok {
		t.Error("second TryJoin should find nothing")
	}
}

func TestJoinAfterWindowExpires(t *testing.T) {
	c, clk := newTestCorrelator(30 * time.Second)

	c.Park(sig("chan-1", "BTC"))
	clk.advance(31 * time.Second)

	if _, ok := c.TryJoin("chan-1"); ok {
		t.Error("TryJoin should fail after the window elapses")
	}

	// The expired entry stays parked so Sweep can hand it back for
	// finalization; a failed join must never make a signal vanish.
	if n := c.PendingCount(); n != 1 {
		t.Errorf("PendingCount = %d, want 1 until swept", n)
	}
	expired := c.Sweep()
	if len(expired) != 1 || expired[0].Ticker != "BTC" {
		t.Fatalf("Sweep = %v, want the expired BTC signal", expired)
	}
	if n := c.PendingCount(); n != 0 {
		t.Errorf("PendingCount = %d, want 0 after the sweep", n)
	}
}

func TestJoinExactlyAtDeadline(t *testing.T) {
	c, clk := newTestCorrelator(30 * time.Second)

	c.Park(sig("chan-1", "BTC"))
	clk.advance(30 * time.Second)

	if _, ok := c.TryJoin("chan-1"); ok {
		t.Error("the window is half-open: a join at the deadline should fail")
	}
}

func TestParkSupersedes(t *testing.T) {
	c, clk := newTestCorrelator(30 * time.Second)

	c.Park(sig("chan-1", "BTC"))
	clk.advance(5 * time.Second)

	old, expired := c.Park(sig("chan-1", "ETH"))
	if old == nil || old.Ticker != "BTC" {
		t.Fatalf("superseded = %v, want the earlier BTC signal", old)
	}
	if expired != nil {
		t.Errorf("expired = %v, want nil inside the window", expired)
	}

	got, ok := c.TryJoin("chan-1")
	if !ok || got.Ticker != "ETH" {
		t.Errorf("TryJoin = %v, %v; want the newer ETH signal", got, ok)
	}
}

func TestParkAfterExpiryReturnsExpiredPredecessor(t *testing.T) {
	c, clk := newTestCorrelator(30 * time.Second)

	c.Park(sig("chan-1", "BTC"))
	clk.advance(31 * time.Second)

	old, expired := c.Park(sig("chan-1", "ETH"))
	if old != nil {
		t.Errorf("superseded = %v, want nil for an already-expired predecessor", old)
	}
	if expired == nil || expired.Ticker != "BTC" {
		t.Fatalf("expired = %v, want the evicted BTC signal for finalization", expired)
	}

	// The replacement owns the slot with a fresh window.
	if got, ok := c.TryJoin("chan-1"); !ok || got.Ticker != "ETH" {
		t.Errorf("TryJoin = %v, %v; want the newer ETH signal", got, ok)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	c, _ := newTestCorrelator(30 * time.Second)

	c.Park(sig("chan-1", "BTC"))
	c.Park(sig("chan-2", "ETH"))

	if got, ok := c.TryJoin("chan-2"); !ok || got.Ticker != "ETH" {
		t.Errorf("chan-2 join = %v, %v", got, ok)
	}
	if got, ok := c.TryJoin("chan-1"); !ok || got.Ticker != "BTC" {
		t.Errorf("chan-1 join = %v, %v", got, ok)
	}
}

func TestSweepReturnsOnlyExpired(t *testing.T) {
	c, clk := newTestCorrelator(30 * time.Second)

	c.Park(sig("chan-1", "BTC"))
	clk.advance(20 * time.Second)
	c.Park(sig("chan-2", "ETH"))
	clk.advance(15 * time.Second) // chan-1 at 35s, chan-2 at 15s

	expired := c.Sweep()
	if len(expired) != 1 || expired[0].Ticker != "BTC" {
		t.Fatalf("Sweep = %v, want just the BTC signal", expired)
	}
	if _, ok := c.TryJoin("chan-2"); !ok {
		t.Error("unexpired signal should survive the sweep")
	}
}
