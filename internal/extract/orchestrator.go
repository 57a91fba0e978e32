package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chartsignal/internal/domain"
	"chartsignal/internal/oracle"
	"chartsignal/internal/validate"
)

const (
	defaultCallTimeout = 30 * time.Second
	defaultDeadline    = 2 * time.Minute
)

// Config bounds a single extraction run.
type Config struct {
	// Strategies to escalate through, in order. Defaults to DefaultStrategies.
	Strategies []Strategy
	// CallTimeout bounds each individual oracle query.
	CallTimeout time.Duration
	// Deadline bounds the whole run across all strategies.
	Deadline time.Duration
}

// Orchestrator escalates through query strategies against the oracle and folds
// the attempts into the single best price plan. Extraction never fails
// outright: a run with no usable data still yields a plan whose violations say
// why it is empty.
type Orchestrator struct {
	oracle      oracle.Oracle
	strategies  []Strategy
	callTimeout time.Duration
	deadline    time.Duration
	logger      *slog.Logger
}

// NewOrchestrator creates an orchestrator, filling unset config fields from
// the defaults.
func NewOrchestrator(o oracle.Oracle, cfg Config, logger *slog.Logger) *Orchestrator {
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = defaultDeadline
	}
	return &Orchestrator{
		oracle:      o,
		strategies:  cfg.Strategies,
		callTimeout: cfg.CallTimeout,
		deadline:    cfg.Deadline,
		logger:      logger.With(slog.String("component", "extract")),
	}
}

// attempt is one strategy's scored outcome.
type attempt struct {
	index      int
	strategy   string
	prices     validate.PriceSet
	violations []domain.Violation
	confidence float64
}

// Extract runs the strategy ladder against the image and returns the best
// plan found. It stops early on the first attempt with zero violations; when
// the overall deadline elapses it returns the best attempt so far, annotated.
func (o *Orchestrator) Extract(ctx context.Context, img domain.ImageRef, dir domain.Direction) domain.PricePlan {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	var best *attempt
	deadlineHit := false

	for i, st := range o.strategies {
		if ctx.Err() != nil {
			deadlineHit = true
			break
		}

		raw, err := o.query(ctx, st, img)
		if err != nil {
			if ctx.Err() != nil {
				o.logger.Warn("extraction deadline elapsed mid-strategy",
					slog.String("strategy", st.Name),
					slog.Int("index", i))
				deadlineHit = true
				break
			}
			o.logger.Warn("strategy query failed",
				slog.String("strategy", st.Name),
				slog.String("error", err.Error()))
			continue
		}

		prices, err := st.Parse(raw)
		if err != nil {
			o.logger.Warn("strategy response unparseable",
				slog.String("strategy", st.Name),
				slog.String("error", err.Error()))
			continue
		}

		violations := validate.Validate(prices, dir)
		att := &attempt{
			index:      i,
			strategy:   st.Name,
			prices:     prices,
			violations: violations,
			confidence: confidenceFor(prices, len(violations) > 0),
		}
		o.logger.Debug("strategy attempt scored",
			slog.String("strategy", st.Name),
			slog.Int("fields", prices.FieldCount()),
			slog.Int("violations", len(violations)),
			slog.Float64("confidence", att.confidence))

		if best == nil || betterAttempt(att, best) {
			best = att
		}
		if len(violations) == 0 {
			break
		}
	}

	plan := buildPlan(best, time.Since(start))
	if best == nil {
		plan.Violations = append(plan.Violations, domain.Violation("no data extracted"))
	}
	if deadlineHit {
		plan.Violations = append(plan.Violations, domain.Violation("extraction deadline exceeded"))
	}

	o.logger.Info("extraction finished",
		slog.String("method", plan.Method),
		slog.Int("fields", plan.FieldCount()),
		slog.Int("violations", len(plan.Violations)),
		slog.Float64("confidence", plan.Confidence),
		slog.Duration("elapsed", plan.Elapsed))
	return plan
}

// query runs one bounded oracle call. A per-call timeout is distinguished from
// the overall deadline so the caller can escalate past a slow strategy.
func (o *Orchestrator) query(ctx context.Context, st Strategy, img domain.ImageRef) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	raw, err := o.oracle.Analyze(callCtx, img, st.Instruction)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("extract: strategy %s: %w", st.Name, domain.ErrOracleTimeout)
		}
		return "", fmt.Errorf("extract: strategy %s: %w", st.Name, err)
	}
	return raw, nil
}

// betterAttempt reports whether cand beats cur: fewer violations first, then
// higher confidence, then the earlier strategy in the ladder. The comparison
// depends only on the two attempts, so fold order cannot change the winner.
func betterAttempt(cand, cur *attempt) bool {
	if len(cand.violations) != len(cur.violations) {
		return len(cand.violations) < len(cur.violations)
	}
	if cand.confidence != cur.confidence {
		return cand.confidence > cur.confidence
	}
	return cand.index < cur.index
}

// Confidence bands. Coverage of the risk levels (SL and TPs) sets the
// baseline; any invariant violation caps the result below the clean bands.
const (
	confidenceHigh   = 0.95
	confidenceMedium = 0.85
	confidenceLow    = 0.70
	confidenceCapped = 0.60
)

// confidenceFor scores an attempt from how many risk levels it populated.
func confidenceFor(p validate.PriceSet, violated bool) float64 {
	n := 0
	for _, v := range []*float64{p.StopLoss, p.TakeProfit1, p.TakeProfit2, p.TakeProfit3} {
		if v != nil {
			n++
		}
	}

	var base float64
	switch {
	case n >= 3:
		base = confidenceHigh
	case n >= 2:
		base = confidenceMedium
	default:
		base = confidenceLow
	}
	if violated && base > confidenceCapped {
		return confidenceCapped
	}
	return base
}

func buildPlan(best *attempt, elapsed time.Duration) domain.PricePlan {
	if best == nil {
		return domain.PricePlan{Elapsed: elapsed}
	}
	return domain.PricePlan{
		StopLoss:    best.prices.StopLoss,
		Entry:       best.prices.Entry,
		TakeProfit1: best.prices.TakeProfit1,
		TakeProfit2: best.prices.TakeProfit2,
		TakeProfit3: best.prices.TakeProfit3,
		Confidence:  best.confidence,
		Method:      best.strategy,
		Elapsed:     elapsed,
		Violations:  best.violations,
	}
}
