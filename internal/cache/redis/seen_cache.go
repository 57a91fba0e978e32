package redis

import (
	"context"
	"fmt"
	"time"

	"chartsignal/internal/domain"
	"github.com/redis/go-redis/v9"
)

// defaultSeenTTL is how long a processed message ID stays marked. Long enough
// to cover gateway resumes and restarts, short enough to keep the keyspace
// small.
const defaultSeenTTL = 24 * time.Hour

// SeenCache implements domain.SeenCache with SET NX, so marking and checking
// is a single atomic round trip shared by every bot instance.
type SeenCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSeenCache creates a SeenCache backed by the given Client. ttl <= 0 uses
// the default.
func NewSeenCache(c *Client, ttl time.Duration) *SeenCache {
	if ttl <= 0 {
		ttl = defaultSeenTTL
	}
	return &SeenCache{rdb: c.Underlying(), ttl: ttl}
}

// MarkSeen records the message ID and reports whether it was already present.
func (s *SeenCache) MarkSeen(ctx context.Context, messageID string) (bool, error) {
	set, err := s.rdb.SetNX(ctx, seenKey(messageID), 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: mark seen %s: %w", messageID, err)
	}
	return !set, nil
}

func seenKey(messageID string) string {
	return "seen:msg:" + messageID
}

// Compile-time interface check.
var _ domain.SeenCache = (*SeenCache)(nil)
