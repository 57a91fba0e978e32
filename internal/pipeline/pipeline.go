// Package pipeline wires the detection flow together: inbound chat messages
// are filtered and deduplicated, classified into trade signals, correlated
// with chart images, run through price extraction, and finally persisted and
// alerted on.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"chartsignal/internal/classify"
	"chartsignal/internal/correlate"
	"chartsignal/internal/domain"
	"chartsignal/internal/notify"
)

const (
	defaultWorkers       = 2
	defaultSweepInterval = 5 * time.Second
	defaultDedupTTL      = 30 * time.Minute

	// eventSignal is the notifier event type for finalized signals.
	eventSignal = "signal"

	// busChannel and busStream are the redis destinations finalized signals
	// are published to.
	busChannel = "signals"
	busStream  = "signals:events"
)

// Extractor derives a price plan from a chart image.
type Extractor interface {
	Extract(ctx context.Context, img domain.ImageRef, dir domain.Direction) domain.PricePlan
}

// ImageFetcher downloads an attachment's bytes.
type ImageFetcher interface {
	DownloadAttachment(ctx context.Context, att domain.Attachment) (domain.ImageRef, error)
}

// Reactor acknowledges a processed message on the chat platform.
type Reactor interface {
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
}

// Alerter delivers operator notifications. Satisfied by *notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config tunes the pipeline's filtering and concurrency.
type Config struct {
	// ChannelIDs restricts processing to these channels. Empty allows all.
	ChannelIDs []string
	// Usernames restricts processing to these authors. Empty allows all.
	Usernames []string
	// MinConfidence gates price alerts: plans below it are stored but not
	// alerted on.
	MinConfidence float64
	// ReactionEmoji is put on detected signal messages. Empty disables.
	ReactionEmoji string
	// Workers bounds concurrent extractions.
	Workers int
	// SweepInterval is how often expired pending signals are finalized.
	SweepInterval time.Duration
}

// Deps carries the pipeline's collaborators. Store, Seen, Bus, Archiver,
// Reactions, and Alerts may be nil; the pipeline degrades to detection-only
// behavior for whatever is missing.
type Deps struct {
	Classifier *classify.Classifier
	Correlator *correlate.Correlator
	Extractor  Extractor
	Images     ImageFetcher
	Reactions  Reactor
	Alerts     Alerter
	Store      domain.SignalStore
	Seen       domain.SeenCache
	Bus        domain.SignalBus
	Archiver   domain.ChartArchiver
}

// Pipeline processes chat messages end to end. HandleMessage is the single
// ingestion entry point; correlator access stays on that path plus the sweep
// loop, both of which the correlator serializes internally.
type Pipeline struct {
	cfg  Config
	deps Deps

	channels map[string]bool
	authors  map[string]bool

	local  *dedup
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger *slog.Logger
}

// New creates a pipeline, filling unset config fields from the defaults.
func New(cfg Config, deps Deps, logger *slog.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}

	channels := make(map[string]bool, len(cfg.ChannelIDs))
	for _, id := range cfg.ChannelIDs {
		channels[strings.TrimSpace(id)] = true
	}
	authors := make(map[string]bool, len(cfg.Usernames))
	for _, u := range cfg.Usernames {
		authors[strings.ToLower(strings.TrimSpace(u))] = true
	}

	return &Pipeline{
		cfg:      cfg,
		deps:     deps,
		channels: channels,
		authors:  authors,
		local:    newDedup(defaultDedupTTL),
		sem:      semaphore.NewWeighted(int64(cfg.Workers)),
		logger:   logger.With(slog.String("component", "pipeline")),
	}
}

// Run drives the periodic work: sweeping expired pending signals and cleaning
// the local dedup map. It blocks until ctx is cancelled, then waits for
// in-flight extractions to drain.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	cleanup := time.NewTicker(defaultDedupTTL)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			for _, sig := range p.deps.Correlator.Sweep() {
				sig.Notes = "correlation window expired without a chart"
				p.finalize(ctx, sig)
			}
		case <-cleanup.C:
			p.local.cleanup()
		}
	}
}

// HandleMessage processes one inbound chat message. It never returns an
// error: failures are logged and the message is dropped, since the gateway
// cannot replay it anyway.
func (p *Pipeline) HandleMessage(ctx context.Context, msg domain.ChatMessage) {
	if !p.allowed(msg) {
		return
	}
	if p.alreadySeen(ctx, msg.MessageID) {
		p.logger.Debug("duplicate message dropped", slog.String("message_id", msg.MessageID))
		return
	}

	img, hasImage := msg.FirstImage()

	sig, ok := p.deps.Classifier.Classify(msg.Content)
	if !ok {
		if hasImage {
			p.handleImageOnly(ctx, msg, img)
		}
		return
	}

	sig.MessageID = msg.MessageID
	sig.Author = msg.Author
	sig.ChannelID = msg.ChannelID
	sig.CorrelationKey = msg.ChannelID
	sig.DetectedAt = msg.Timestamp

	p.logger.Info("signal detected",
		slog.String("ticker", sig.Ticker),
		slog.String("direction", string(sig.Direction)),
		slog.String("author", sig.Author),
		slog.String("channel_id", sig.ChannelID))

	p.react(ctx, msg)

	if hasImage {
		p.spawnExtraction(ctx, sig, img)
		return
	}

	superseded, expired := p.deps.Correlator.Park(sig)
	if expired != nil {
		expired.Notes = "correlation window expired without a chart"
		p.finalize(ctx, expired)
	}
	if superseded != nil {
		superseded.Notes = "superseded by a newer signal before a chart arrived"
		p.finalize(ctx, superseded)
	}
}

// handleImageOnly joins a chart-only message with a pending signal, if one is
// waiting in this channel.
func (p *Pipeline) handleImageOnly(ctx context.Context, msg domain.ChatMessage, img domain.Attachment) {
	sig, ok := p.deps.Correlator.TryJoin(msg.ChannelID)
	if !ok {
		return
	}
	p.logger.Info("chart joined with pending signal",
		slog.String("ticker", sig.Ticker),
		slog.String("signal_message_id", sig.MessageID),
		slog.String("chart_message_id", msg.MessageID))
	p.spawnExtraction(ctx, sig, img)
}

// spawnExtraction runs download, archival, and extraction on a bounded worker
// and finalizes the signal when done.
func (p *Pipeline) spawnExtraction(ctx context.Context, sig *domain.TradeSignal, att domain.Attachment) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		sig.Notes = "extraction skipped: shutting down"
		p.finalize(ctx, sig)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		p.extract(ctx, sig, att)
	}()
}

func (p *Pipeline) extract(ctx context.Context, sig *domain.TradeSignal, att domain.Attachment) {
	img, err := p.deps.Images.DownloadAttachment(ctx, att)
	if err != nil {
		p.logger.Error("chart download failed",
			slog.String("ticker", sig.Ticker),
			slog.String("error", err.Error()))
		sig.Notes = "chart download failed"
		p.finalize(ctx, sig)
		return
	}

	if p.deps.Archiver != nil {
		if key, err := p.deps.Archiver.ArchiveChart(ctx, sig, img); err != nil {
			p.logger.Warn("chart archival failed", slog.String("error", err.Error()))
		} else {
			p.logger.Debug("chart archived", slog.String("key", key))
		}
	}

	plan := p.deps.Extractor.Extract(ctx, img, sig.Direction)
	if plan.HasPrices() {
		sig.Prices = &plan
	} else {
		sig.Notes = strings.Join(plan.ViolationStrings(), "; ")
	}
	p.finalize(ctx, sig)
}

// finalize persists, alerts, and publishes a signal exactly once. Each sink is
// best-effort and independent.
func (p *Pipeline) finalize(ctx context.Context, sig *domain.TradeSignal) {
	if p.deps.Store != nil {
		if err := p.deps.Store.Insert(ctx, sig); err != nil {
			p.logger.Error("signal insert failed",
				slog.String("signal_id", sig.ID),
				slog.String("error", err.Error()))
		}
	}

	if p.deps.Alerts != nil && p.shouldAlert(sig) {
		title, body := notify.FormatSignalAlert(sig)
		if err := p.deps.Alerts.Notify(ctx, eventSignal, title, body); err != nil {
			p.logger.Error("alert delivery failed", slog.String("error", err.Error()))
		}
	}

	p.publish(ctx, sig)

	p.logger.Info("signal finalized",
		slog.String("signal_id", sig.ID),
		slog.String("ticker", sig.Ticker),
		slog.String("direction", string(sig.Direction)),
		slog.Bool("has_prices", sig.Prices.HasPrices()),
		slog.String("plan", sig.Prices.Summary()))
}

// shouldAlert applies the confidence gate. Detection-only signals (no plan)
// still alert; a plan below the configured confidence does not.
func (p *Pipeline) shouldAlert(sig *domain.TradeSignal) bool {
	if sig.Prices == nil {
		return true
	}
	if sig.Prices.Confidence < p.cfg.MinConfidence {
		p.logger.Info("alert suppressed below confidence floor",
			slog.String("signal_id", sig.ID),
			slog.Float64("confidence", sig.Prices.Confidence),
			slog.Float64("floor", p.cfg.MinConfidence))
		return false
	}
	return true
}

func (p *Pipeline) publish(ctx context.Context, sig *domain.TradeSignal) {
	if p.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(busEvent{
		ID:         sig.ID,
		Ticker:     sig.Ticker,
		Direction:  string(sig.Direction),
		EntryHint:  string(sig.EntryHint),
		Author:     sig.Author,
		ChannelID:  sig.ChannelID,
		DetectedAt: sig.DetectedAt,
		Plan:       sig.Prices,
		Notes:      sig.Notes,
	})
	if err != nil {
		p.logger.Error("bus payload marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := p.deps.Bus.Publish(ctx, busChannel, payload); err != nil {
		p.logger.Warn("bus publish failed", slog.String("error", err.Error()))
	}
	if err := p.deps.Bus.StreamAppend(ctx, busStream, payload); err != nil {
		p.logger.Warn("bus stream append failed", slog.String("error", err.Error()))
	}
}

// busEvent is the JSON shape published for each finalized signal.
type busEvent struct {
	ID         string            `json:"id"`
	Ticker     string            `json:"ticker"`
	Direction  string            `json:"direction"`
	EntryHint  string            `json:"entry_hint"`
	Author     string            `json:"author"`
	ChannelID  string            `json:"channel_id"`
	DetectedAt time.Time         `json:"detected_at"`
	Plan       *domain.PricePlan `json:"plan,omitempty"`
	Notes      string            `json:"notes,omitempty"`
}

func (p *Pipeline) allowed(msg domain.ChatMessage) bool {
	if len(p.channels) > 0 && !p.channels[msg.ChannelID] {
		return false
	}
	if len(p.authors) > 0 && !p.authors[strings.ToLower(msg.Author)] {
		return false
	}
	return true
}

// alreadySeen consults the shared seen-cache when configured, falling back to
// the in-process map when it is absent or failing.
func (p *Pipeline) alreadySeen(ctx context.Context, messageID string) bool {
	if p.deps.Seen != nil {
		already, err := p.deps.Seen.MarkSeen(ctx, messageID)
		if err == nil {
			return already
		}
		p.logger.Warn("seen-cache unavailable, using local dedup",
			slog.String("error", err.Error()))
	}
	return p.local.markSeen(messageID)
}

// react puts the acknowledgment emoji on the source message. Best effort.
func (p *Pipeline) react(ctx context.Context, msg domain.ChatMessage) {
	if p.deps.Reactions == nil || p.cfg.ReactionEmoji == "" {
		return
	}
	if err := p.deps.Reactions.AddReaction(ctx, msg.ChannelID, msg.MessageID, p.cfg.ReactionEmoji); err != nil {
		p.logger.Debug("reaction failed", slog.String("error", err.Error()))
	}
}
