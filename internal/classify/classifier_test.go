package classify

import (
	"testing"
	"time"

	"chartsignal/internal/domain"
)

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestClassifyLong(t *testing.T) {
	c := New(WithClock(fixedClock))

	cases := []struct {
		name   string
		text   string
		ticker string
		hint   domain.EntryHint
	}{
		{"going long with marker", "going long $BTC", "BTC", domain.EntryMarket},
		{"going longs on", "going longs on ETH", "ETH", domain.EntryMarket},
		{"past tense longed", "longed SOL here", "SOL", domain.EntryMarket},
		{"bought spot", "just bought some spot AVAX", "AVAX", domain.EntryMarket},
		{"ticker first", "BTC long here", "BTC", domain.EntryMarket},
		{"cmp entry", "going long LINK at cmp", "LINK", domain.EntryCMP},
		{"lowercase ticker", "longing doge", "DOGE", domain.EntryMarket},
		{"market long", "market long BTC", "BTC", domain.EntryMarket},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig, ok := c.Classify(tc.text)
			if !ok {
				t.Fatalf("Classify(%q) = no signal, want LONG %s", tc.text, tc.ticker)
			}
			if sig.Direction != domain.DirectionLong {
				t.Errorf("direction = %s, want LONG", sig.Direction)
			}
			if sig.Ticker != tc.ticker {
				t.Errorf("ticker = %q, want %q", sig.Ticker, tc.ticker)
			}
			if sig.EntryHint != tc.hint {
				t.Errorf("entry hint = %s, want %s", sig.EntryHint, tc.hint)
			}
			if sig.RawText != tc.text {
				t.Errorf("raw text = %q, want %q", sig.RawText, tc.text)
			}
			if !sig.DetectedAt.Equal(fixedClock()) {
				t.Errorf("detectedAt = %v, want injected clock value", sig.DetectedAt)
			}
			if sig.ID == "" {
				t.Error("signal ID is empty")
			}
		})
	}
}

func TestClassifyShort(t *testing.T) {
	c := New()

	cases := []struct {
		text   string
		ticker string
	}{
		{"shorted ETH here", "ETH"},
		{"going short on $SOL", "SOL"},
		{"taking a BTC short", "BTC"},
		{"selling AVAX", "AVAX"},
		{"entered a short on XRP", "XRP"},
	}

	for _, tc := range cases {
		sig, ok := c.Classify(tc.text)
		if !ok {
			t.Errorf("Classify(%q) = no signal, want SHORT %s", tc.text, tc.ticker)
			continue
		}
		if sig.Direction != domain.DirectionShort {
			t.Errorf("Classify(%q) direction = %s, want SHORT", tc.text, sig.Direction)
		}
		if sig.Ticker != tc.ticker {
			t.Errorf("Classify(%q) ticker = %q, want %q", tc.text, sig.Ticker, tc.ticker)
		}
	}
}

func TestClassifyNoMatch(t *testing.T) {
	c := New()

	for _, text := range []string{
		"",
		"gm everyone",
		"the market looks rough today",
		"charts incoming",
		"BTC is at 65k",
	} {
		if sig, ok := c.Classify(text); ok {
			t.Errorf("Classify(%q) = %+v, want no signal", text, sig)
		}
	}
}

func TestClassifyAmbiguousPrecedence(t *testing.T) {
	// Text that trips both rule sets: "long" and "short" phrasings present.
	text := "closing my ETH short, going long ETH"

	sig, ok := New().Classify(text)
	if !ok {
		t.Fatal("default precedence: want a signal")
	}
	if sig.Direction != domain.DirectionLong {
		t.Errorf("default precedence direction = %s, want LONG", sig.Direction)
	}

	if sig, ok := New(WithPrecedence(RejectAmbiguous)).Classify(text); ok {
		t.Errorf("RejectAmbiguous: got %s signal, want none", sig.Direction)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := New(WithClock(fixedClock))
	a, okA := c.Classify("going long $BTC")
	b, okB := c.Classify("going long $BTC")
	if !okA || !okB {
		t.Fatal("expected signals from both calls")
	}
	if a.Direction != b.Direction || a.Ticker != b.Ticker || a.EntryHint != b.EntryHint {
		t.Errorf("classification differs between identical inputs: %+v vs %+v", a, b)
	}
}
