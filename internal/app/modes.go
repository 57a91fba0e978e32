package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"chartsignal/internal/classify"
	"chartsignal/internal/correlate"
	"chartsignal/internal/domain"
	"chartsignal/internal/extract"
	"chartsignal/internal/pipeline"
	"chartsignal/internal/platform/discord"
)

// messageBuffer absorbs gateway bursts while the pipeline is busy. Messages
// beyond it are dropped rather than blocking the gateway read loop.
const messageBuffer = 128

// WatchMode connects to the chat gateway and runs the detection pipeline
// until the context is cancelled.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode",
		slog.Int("channel_filters", len(a.cfg.Discord.ChannelIDs)),
		slog.Int("author_filters", len(a.cfg.Discord.Usernames)),
	)

	if !deps.Oracle.IsConfigured() {
		return fmt.Errorf("app: oracle api key is not configured")
	}

	precedence := classify.PreferLong
	if a.cfg.Signals.RejectAmbiguous {
		precedence = classify.RejectAmbiguous
	}

	orchestrator := extract.NewOrchestrator(deps.Oracle, extract.Config{
		CallTimeout: a.cfg.Oracle.CallTimeout.Duration,
		Deadline:    a.cfg.Signals.ExtractionDeadline.Duration,
	}, a.logger)

	rest := discord.NewRESTClient(a.cfg.Discord.Token, a.cfg.Discord.APIBaseURL)

	pipe := pipeline.New(pipeline.Config{
		ChannelIDs:    a.cfg.Discord.ChannelIDs,
		Usernames:     a.cfg.Discord.Usernames,
		MinConfidence: a.cfg.Signals.MinConfidence,
		ReactionEmoji: a.cfg.Discord.ReactionEmoji,
		Workers:       a.cfg.Signals.Workers,
	}, pipeline.Deps{
		Classifier: classify.New(classify.WithPrecedence(precedence)),
		Correlator: correlate.New(a.logger, correlate.WithWindow(a.cfg.Signals.CorrelationWindow.Duration)),
		Extractor:  orchestrator,
		Images:     rest,
		Reactions:  rest,
		Alerts:     deps.Notifier,
		Store:      deps.SignalStore,
		Seen:       deps.SeenCache,
		Bus:        deps.SignalBus,
		Archiver:   deps.Archiver,
	}, a.logger)

	messages := make(chan domain.ChatMessage, messageBuffer)
	gateway := discord.NewGateway(a.cfg.Discord.Token, a.cfg.Discord.GatewayURL, a.logger)
	gateway.OnMessage(func(msg domain.ChatMessage) {
		select {
		case messages <- msg:
		default:
			a.logger.Warn("message buffer full, dropping message",
				slog.String("message_id", msg.MessageID))
		}
	})

	if err := gateway.Connect(ctx); err != nil {
		return fmt.Errorf("app: connect gateway: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return pipe.Run(ctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case msg := <-messages:
				pipe.HandleMessage(ctx, msg)
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		_ = gateway.Close()
		return ctx.Err()
	})

	return g.Wait()
}

// ExtractMode runs one extraction against a local chart image and prints the
// resulting price plan as JSON. Used to tune strategies against saved charts
// without touching the gateway or the database.
func (a *App) ExtractMode(ctx context.Context, deps *Dependencies) error {
	if a.ExtractImage == "" {
		return fmt.Errorf("app: extract mode requires -image")
	}
	dir, err := parseDirection(a.ExtractDirection)
	if err != nil {
		return err
	}
	if !deps.Oracle.IsConfigured() {
		return fmt.Errorf("app: oracle api key is not configured")
	}

	data, err := os.ReadFile(a.ExtractImage)
	if err != nil {
		return fmt.Errorf("app: read image: %w", err)
	}
	img := domain.ImageRef{
		Data:        data,
		ContentType: mime.TypeByExtension(filepath.Ext(a.ExtractImage)),
		Name:        filepath.Base(a.ExtractImage),
	}

	a.logger.InfoContext(ctx, "extracting chart",
		slog.String("image", a.ExtractImage),
		slog.String("direction", string(dir)),
		slog.Int("bytes", len(data)),
	)

	orchestrator := extract.NewOrchestrator(deps.Oracle, extract.Config{
		CallTimeout: a.cfg.Oracle.CallTimeout.Duration,
		Deadline:    a.cfg.Signals.ExtractionDeadline.Duration,
	}, a.logger)

	plan := orchestrator.Extract(ctx, img, dir)

	out, err := json.MarshalIndent(planReport{
		Image:      a.ExtractImage,
		Direction:  string(dir),
		StopLoss:   plan.StopLoss,
		Entry:      plan.Entry,
		TP1:        plan.TakeProfit1,
		TP2:        plan.TakeProfit2,
		TP3:        plan.TakeProfit3,
		Confidence: plan.Confidence,
		Method:     plan.Method,
		ElapsedMS:  plan.Elapsed.Milliseconds(),
		Violations: plan.ViolationStrings(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("app: marshal plan: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

const (
	// statsDays is the reporting window for aggregate counts.
	statsDays = 7
	// statsRecentLimit bounds the recent-signal listing in the report.
	statsRecentLimit = 20
)

// StatsMode prints a JSON activity report from the signal store: aggregate
// counts over the last week plus the most recent entries. Read-only; it never
// touches the gateway or the oracle.
func (a *App) StatsMode(ctx context.Context, deps *Dependencies) error {
	if deps.SignalStore == nil {
		return fmt.Errorf("app: stats mode requires the signal store")
	}

	since := time.Now().AddDate(0, 0, -statsDays)
	stats, err := deps.SignalStore.Stats(ctx, since)
	if err != nil {
		return fmt.Errorf("app: query stats: %w", err)
	}
	recent, err := deps.SignalStore.ListRecent(ctx, statsRecentLimit)
	if err != nil {
		return fmt.Errorf("app: list recent signals: %w", err)
	}

	out, err := json.MarshalIndent(newStatsReport(statsDays, stats, recent), "", "  ")
	if err != nil {
		return fmt.Errorf("app: marshal stats report: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// statsReport is the JSON shape printed by stats mode.
type statsReport struct {
	Days          int            `json:"days"`
	Total         int64          `json:"total"`
	Longs         int64          `json:"longs"`
	Shorts        int64          `json:"shorts"`
	AvgConfidence float64        `json:"avg_confidence"`
	Recent        []recentSignal `json:"recent"`
}

type recentSignal struct {
	ID         string    `json:"id"`
	Ticker     string    `json:"ticker"`
	Direction  string    `json:"direction"`
	Author     string    `json:"author"`
	DetectedAt time.Time `json:"detected_at"`
	Plan       string    `json:"plan"`
	Notes      string    `json:"notes,omitempty"`
}

func newStatsReport(days int, stats domain.SignalStats, recent []domain.TradeSignal) statsReport {
	r := statsReport{
		Days:          days,
		Total:         stats.Total,
		Longs:         stats.Longs,
		Shorts:        stats.Shorts,
		AvgConfidence: stats.AvgConfidence,
		Recent:        make([]recentSignal, 0, len(recent)),
	}
	for _, sig := range recent {
		r.Recent = append(r.Recent, recentSignal{
			ID:         sig.ID,
			Ticker:     sig.Ticker,
			Direction:  string(sig.Direction),
			Author:     sig.Author,
			DetectedAt: sig.DetectedAt,
			Plan:       sig.Prices.Summary(),
			Notes:      sig.Notes,
		})
	}
	return r
}

// planReport is the JSON shape printed by extract mode.
type planReport struct {
	Image      string   `json:"image"`
	Direction  string   `json:"direction"`
	StopLoss   *float64 `json:"stop_loss"`
	Entry      *float64 `json:"entry_price"`
	TP1        *float64 `json:"take_profit_1"`
	TP2        *float64 `json:"take_profit_2"`
	TP3        *float64 `json:"take_profit_3"`
	Confidence float64  `json:"confidence"`
	Method     string   `json:"method"`
	ElapsedMS  int64    `json:"elapsed_ms"`
	Violations []string `json:"violations,omitempty"`
}

func parseDirection(s string) (domain.Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "LONG":
		return domain.DirectionLong, nil
	case "SHORT":
		return domain.DirectionShort, nil
	default:
		return "", fmt.Errorf("app: unknown direction %q (valid: long, short)", s)
	}
}
