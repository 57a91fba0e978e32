package domain

import (
	"context"
	"io"
	"time"
)

// SignalStats summarizes stored signals over a reporting window.
type SignalStats struct {
	Total         int64
	Longs         int64
	Shorts        int64
	AvgConfidence float64
}

// SignalStore persists finalized trade signals. The store is append-only: the
// pipeline writes each signal exactly once and never updates or deletes rows.
// Reads exist for reporting, not correctness.
type SignalStore interface {
	Insert(ctx context.Context, sig *TradeSignal) error
	ListRecent(ctx context.Context, limit int) ([]TradeSignal, error)
	Stats(ctx context.Context, since time.Time) (SignalStats, error)
}

// SeenCache records chat message IDs that have already been processed, so a
// gateway resume or restart does not re-alert on the same message.
type SeenCache interface {
	// MarkSeen records the message ID and reports whether it was already
	// present. The entry expires after the cache's configured TTL.
	MarkSeen(ctx context.Context, messageID string) (already bool, err error)
}

// SignalBus publishes finalized signals for downstream consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// ChartArchiver stores a copy of each chart image that reached extraction.
type ChartArchiver interface {
	// ArchiveChart uploads the image and returns the object key it was
	// stored under.
	ArchiveChart(ctx context.Context, sig *TradeSignal, img ImageRef) (string, error)
}
