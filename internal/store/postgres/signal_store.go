package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chartsignal/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a SignalStore backed by the given connection pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

const signalSelectCols = `id, detected_at, direction, ticker, entry_hint,
	author, channel_id, message_id, raw_text,
	stop_loss, entry_price, take_profit_1, take_profit_2, take_profit_3,
	confidence, method, elapsed_ms, violations, notes`

// Insert appends one finalized signal. ON CONFLICT DO NOTHING keeps a retried
// finalize from duplicating the row.
func (s *SignalStore) Insert(ctx context.Context, sig *domain.TradeSignal) error {
	const query = `
		INSERT INTO signals (
			id, detected_at, direction, ticker, entry_hint,
			author, channel_id, message_id, raw_text,
			stop_loss, entry_price, take_profit_1, take_profit_2, take_profit_3,
			confidence, method, elapsed_ms, violations, notes
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19
		) ON CONFLICT (id) DO NOTHING`

	var (
		stopLoss, entry, tp1, tp2, tp3 *float64
		confidence                     float64
		method                         string
		elapsedMS                      int64
		violations                     []string
	)
	if p := sig.Prices; p != nil {
		stopLoss, entry = p.StopLoss, p.Entry
		tp1, tp2, tp3 = p.TakeProfit1, p.TakeProfit2, p.TakeProfit3
		confidence = p.Confidence
		method = p.Method
		elapsedMS = p.Elapsed.Milliseconds()
		violations = p.ViolationStrings()
	}
	if violations == nil {
		violations = []string{}
	}

	_, err := s.pool.Exec(ctx, query,
		sig.ID, sig.DetectedAt, string(sig.Direction), sig.Ticker, string(sig.EntryHint),
		sig.Author, sig.ChannelID, sig.MessageID, sig.RawText,
		stopLoss, entry, tp1, tp2, tp3,
		confidence, method, elapsedMS, violations, sig.Notes,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert signal: %w", err)
	}
	return nil
}

// ListRecent returns the most recently detected signals, newest first.
func (s *SignalStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeSignal, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + signalSelectCols + ` FROM signals ORDER BY detected_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent signals: %w", err)
	}
	defer rows.Close()

	signals, err := scanSignalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent signals: %w", err)
	}
	return signals, nil
}

// Stats summarizes signals detected since the given time. The average
// confidence covers only signals that carried a price plan.
func (s *SignalStore) Stats(ctx context.Context, since time.Time) (domain.SignalStats, error) {
	const query = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE direction = 'LONG'),
			COUNT(*) FILTER (WHERE direction = 'SHORT'),
			COALESCE(AVG(confidence) FILTER (WHERE confidence > 0), 0)
		FROM signals
		WHERE detected_at >= $1`

	var stats domain.SignalStats
	err := s.pool.QueryRow(ctx, query, since).Scan(
		&stats.Total, &stats.Longs, &stats.Shorts, &stats.AvgConfidence,
	)
	if err != nil {
		return domain.SignalStats{}, fmt.Errorf("postgres: signal stats: %w", err)
	}
	return stats, nil
}

func scanSignalRows(rows pgx.Rows) ([]domain.TradeSignal, error) {
	var signals []domain.TradeSignal
	for rows.Next() {
		var (
			sig                            domain.TradeSignal
			direction, entryHint           string
			stopLoss, entry, tp1, tp2, tp3 *float64
			confidence                     float64
			method                         string
			elapsedMS                      int64
			violations                     []string
		)
		if err := rows.Scan(
			&sig.ID, &sig.DetectedAt, &direction, &sig.Ticker, &entryHint,
			&sig.Author, &sig.ChannelID, &sig.MessageID, &sig.RawText,
			&stopLoss, &entry, &tp1, &tp2, &tp3,
			&confidence, &method, &elapsedMS, &violations, &sig.Notes,
		); err != nil {
			return nil, err
		}
		sig.Direction = domain.Direction(direction)
		sig.EntryHint = domain.EntryHint(entryHint)
		sig.CorrelationKey = sig.ChannelID

		if stopLoss != nil || entry != nil || tp1 != nil || tp2 != nil || tp3 != nil {
			plan := &domain.PricePlan{
				StopLoss:    stopLoss,
				Entry:       entry,
				TakeProfit1: tp1,
				TakeProfit2: tp2,
				TakeProfit3: tp3,
				Confidence:  confidence,
				Method:      method,
				Elapsed:     time.Duration(elapsedMS) * time.Millisecond,
			}
			for _, v := range violations {
				plan.Violations = append(plan.Violations, domain.Violation(v))
			}
			sig.Prices = plan
		}

		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// Compile-time interface check.
var _ domain.SignalStore = (*SignalStore)(nil)
