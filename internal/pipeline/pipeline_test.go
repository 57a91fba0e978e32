package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"chartsignal/internal/classify"
	"chartsignal/internal/correlate"
	"chartsignal/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func f(v float64) *float64 { return &v }

type fakeStore struct {
	mu      sync.Mutex
	signals []*domain.TradeSignal
}

func (s *fakeStore) Insert(ctx context.Context, sig *domain.TradeSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
	return nil
}

func (s *fakeStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeSignal, error) {
	return nil, nil
}

func (s *fakeStore) Stats(ctx context.Context, since time.Time) (domain.SignalStats, error) {
	return domain.SignalStats{}, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signals)
}

func (s *fakeStore) last() *domain.TradeSignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.signals) == 0 {
		return nil
	}
	return s.signals[len(s.signals)-1]
}

type fakeExtractor struct {
	plan domain.PricePlan
}

func (e *fakeExtractor) Extract(ctx context.Context, img domain.ImageRef, dir domain.Direction) domain.PricePlan {
	return e.plan
}

type fakeFetcher struct{}

func (fakeFetcher) DownloadAttachment(ctx context.Context, att domain.Attachment) (domain.ImageRef, error) {
	return domain.ImageRef{Data: []byte("png"), ContentType: "image/png", Name: att.Filename}, nil
}

type fakeReactor struct {
	mu    sync.Mutex
	calls []string
}

func (r *fakeReactor) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, messageID+":"+emoji)
	return nil
}

type fakeAlerter struct {
	mu     sync.Mutex
	titles []string
}

func (a *fakeAlerter) Notify(ctx context.Context, event, title, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, title)
	return nil
}

func (a *fakeAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.titles)
}

func goodPlan() domain.PricePlan {
	return domain.PricePlan{
		StopLoss:    f(95),
		TakeProfit1: f(105),
		TakeProfit2: f(110),
		Confidence:  0.95,
		Method:      "comprehensive",
	}
}

func textMessage(id, channel, content string) domain.ChatMessage {
	return domain.ChatMessage{
		MessageID: id,
		ChannelID: channel,
		Author:    "neil",
		Content:   content,
		Timestamp: time.Now(),
	}
}

func imageMessage(id, channel string) domain.ChatMessage {
	m := textMessage(id, channel, "")
	m.Attachments = []domain.Attachment{
		{ID: "a1", Filename: "chart.png", ContentType: "image/png", URL: "https://cdn.example/chart.png"},
	}
	return m
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func newTestPipeline(cfg Config, deps Deps, window time.Duration) *Pipeline {
	if deps.Classifier == nil {
		deps.Classifier = classify.New()
	}
	if deps.Correlator == nil {
		deps.Correlator = correlate.New(testLogger, correlate.WithWindow(window))
	}
	if deps.Images == nil {
		deps.Images = fakeFetcher{}
	}
	if deps.Extractor == nil {
		deps.Extractor = &fakeExtractor{plan: goodPlan()}
	}
	return New(cfg, deps, testLogger)
}

func TestSignalWithImageExtractsAndStores(t *testing.T) {
	store := &fakeStore{}
	reactor := &fakeReactor{}
	p := newTestPipeline(Config{ReactionEmoji: "👀"}, Deps{Store: store, Reactions: reactor}, 30*time.Second)

	msg := imageMessage("m1", "chan-1")
	msg.Content = "going long $BTC"
	p.HandleMessage(context.Background(), msg)

	waitFor(t, func() bool { return store.count() == 1 })
	sig := store.last()
	if sig.Ticker != "BTC" || sig.Direction != domain.DirectionLong {
		t.Errorf("stored signal = %+v", sig)
	}
	if !sig.Prices.HasPrices() {
		t.Error("stored signal should carry extracted prices")
	}
	if len(reactor.calls) != 1 || reactor.calls[0] != "m1:👀" {
		t.Errorf("reactions = %v", reactor.calls)
	}
}

func TestSignalThenImageJoins(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(Config{}, Deps{Store: store}, 30*time.Second)

	p.HandleMessage(context.Background(), textMessage("m1", "chan-1", "shorting ETH here"))
	p.HandleMessage(context.Background(), imageMessage("m2", "chan-1"))

	waitFor(t, func() bool { return store.count() == 1 })
	sig := store.last()
	if sig.Ticker != "ETH" || sig.Direction != domain.DirectionShort {
		t.Errorf("stored signal = %+v", sig)
	}
	if sig.MessageID != "m1" {
		t.Errorf("MessageID = %q, want the originating text message", sig.MessageID)
	}
	if !sig.Prices.HasPrices() {
		t.Error("joined signal should carry extracted prices")
	}
}

func TestImageWithoutPendingIsIgnored(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(Config{}, Deps{Store: store}, 30*time.Second)

	p.HandleMessage(context.Background(), imageMessage("m1", "chan-1"))

	time.Sleep(50 * time.Millisecond)
	if store.count() != 0 {
		t.Errorf("stored %d signals, want 0", store.count())
	}
}

func TestDuplicateMessageDropped(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(Config{}, Deps{Store: store}, 30*time.Second)

	msg := imageMessage("m1", "chan-1")
	msg.Content = "going long $BTC"
	p.HandleMessage(context.Background(), msg)
	p.HandleMessage(context.Background(), msg)

	waitFor(t, func() bool { return store.count() >= 1 })
	time.Sleep(50 * time.Millisecond)
	if store.count() != 1 {
		t.Errorf("stored %d signals, want 1", store.count())
	}
}

func TestChannelAndAuthorFilters(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(Config{ChannelIDs: []string{"allowed"}, Usernames: []string{"Neil"}},
		Deps{Store: store}, 30*time.Second)

	wrongChannel := imageMessage("m1", "other")
	wrongChannel.Content = "going long $BTC"
	p.HandleMessage(context.Background(), wrongChannel)

	wrongAuthor := imageMessage("m2", "allowed")
	wrongAuthor.Content = "going long $BTC"
	wrongAuthor.Author = "someone-else"
	p.HandleMessage(context.Background(), wrongAuthor)

	// Author matching is case-insensitive.
	ok := imageMessage("m3", "allowed")
	ok.Content = "going long $BTC"
	p.HandleMessage(context.Background(), ok)

	waitFor(t, func() bool { return store.count() == 1 })
	if store.last().MessageID != "m3" {
		t.Errorf("stored signal from %q, want m3", store.last().MessageID)
	}
}

func TestSupersededSignalFinalizedWithoutPrices(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(Config{}, Deps{Store: store}, 30*time.Second)

	p.HandleMessage(context.Background(), textMessage("m1", "chan-1", "going long $BTC"))
	p.HandleMessage(context.Background(), textMessage("m2", "chan-1", "going long $ETH"))

	waitFor(t, func() bool { return store.count() == 1 })
	sig := store.last()
	if sig.Ticker != "BTC" {
		t.Errorf("finalized ticker = %q, want the superseded BTC signal", sig.Ticker)
	}
	if sig.Prices != nil {
		t.Error("superseded signal should have no prices")
	}

	// The newer signal still joins a later chart.
	p.HandleMessage(context.Background(), imageMessage("m3", "chan-1"))
	waitFor(t, func() bool { return store.count() == 2 })
	if store.last().Ticker != "ETH" {
		t.Errorf("joined ticker = %q, want ETH", store.last().Ticker)
	}
}

func TestExpiredSignalSurvivesFailedJoin(t *testing.T) {
	store := &fakeStore{}
	clk := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clk
	}
	corr := correlate.New(testLogger, correlate.WithWindow(30*time.Second), correlate.WithClock(now))
	p := newTestPipeline(Config{SweepInterval: 10 * time.Millisecond},
		Deps{Store: store, Correlator: corr}, 30*time.Second)

	p.HandleMessage(context.Background(), textMessage("m1", "chan-1", "going long $BTC"))

	mu.Lock()
	clk = clk.Add(31 * time.Second)
	mu.Unlock()

	// The late chart misses the window; the signal must still reach the store
	// through the sweep rather than vanishing.
	p.HandleMessage(context.Background(), imageMessage("m2", "chan-1"))
	if store.count() != 0 {
		t.Fatalf("stored %d signals before the sweep, want 0", store.count())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	waitFor(t, func() bool { return store.count() == 1 })
	sig := store.last()
	if sig.Ticker != "BTC" || sig.Prices != nil {
		t.Errorf("finalized signal = %+v, want priceless BTC", sig)
	}
	if sig.Notes == "" {
		t.Error("expired signal should carry an expiry note")
	}
}

func TestParkOverExpiredPredecessorFinalizesIt(t *testing.T) {
	store := &fakeStore{}
	clk := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clk
	}
	corr := correlate.New(testLogger, correlate.WithWindow(30*time.Second), correlate.WithClock(now))
	p := newTestPipeline(Config{}, Deps{Store: store, Correlator: corr}, 30*time.Second)

	p.HandleMessage(context.Background(), textMessage("m1", "chan-1", "going long $BTC"))

	mu.Lock()
	clk = clk.Add(31 * time.Second)
	mu.Unlock()

	p.HandleMessage(context.Background(), textMessage("m2", "chan-1", "going long $ETH"))

	waitFor(t, func() bool { return store.count() == 1 })
	sig := store.last()
	if sig.Ticker != "BTC" || sig.Prices != nil {
		t.Errorf("finalized signal = %+v, want the priceless expired BTC signal", sig)
	}
	if sig.Notes != "correlation window expired without a chart" {
		t.Errorf("Notes = %q, want the expiry note", sig.Notes)
	}

	// The replacement still joins its chart.
	p.HandleMessage(context.Background(), imageMessage("m3", "chan-1"))
	waitFor(t, func() bool { return store.count() == 2 })
	if store.last().Ticker != "ETH" {
		t.Errorf("joined ticker = %q, want ETH", store.last().Ticker)
	}
}

func TestLowConfidencePlanSuppressesAlert(t *testing.T) {
	store := &fakeStore{}
	alerts := &fakeAlerter{}
	lowPlan := goodPlan()
	lowPlan.Confidence = 0.60
	p := newTestPipeline(Config{MinConfidence: 0.70},
		Deps{Store: store, Alerts: alerts, Extractor: &fakeExtractor{plan: lowPlan}}, 30*time.Second)

	msg := imageMessage("m1", "chan-1")
	msg.Content = "going long $BTC"
	p.HandleMessage(context.Background(), msg)

	waitFor(t, func() bool { return store.count() == 1 })
	if alerts.count() != 0 {
		t.Errorf("alerts = %d, want 0 below the confidence floor", alerts.count())
	}
	if !store.last().Prices.HasPrices() {
		t.Error("low-confidence plan must still be stored")
	}
}

func TestRunSweepsExpiredSignals(t *testing.T) {
	store := &fakeStore{}
	alerts := &fakeAlerter{}
	p := newTestPipeline(Config{SweepInterval: 10 * time.Millisecond},
		Deps{Store: store, Alerts: alerts}, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.HandleMessage(ctx, textMessage("m1", "chan-1", "going long $BTC"))

	waitFor(t, func() bool { return store.count() == 1 })
	sig := store.last()
	if sig.Prices != nil {
		t.Error("expired signal should have no prices")
	}
	if sig.Notes == "" {
		t.Error("expired signal should carry an expiry note")
	}
	if alerts.count() != 1 {
		t.Errorf("alerts = %d, want 1 detection-only alert", alerts.count())
	}
}
