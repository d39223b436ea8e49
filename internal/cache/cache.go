// Package cache implements the turn-indexed response cache: a Redis-backed
// lookup from (session_id, history length, message) to a previously
// completed non-mutation response, keyed by a SHA-256 fingerprint prefixed
// "chat:". Turn-index inclusion is what lets the same phrase recur at
// different points in a conversation without colliding on a stale answer.
// The fingerprint covers the turn index but not history content, so a
// concurrent mutation to history between key computation and cache write
// can still produce a false hit, an accepted tradeoff, not a bug to fix
// here.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaharia-lab/tag-backend/internal/schemas"
)

// TTL is how long a cached response survives without being recomputed.
const TTL = time.Hour

// Entry is the cached shape of a completed turn's result, stored without
// the per-request SessionID/TraceID/Cached fields so a hit can stamp those
// in fresh.
type Entry struct {
	Message      string           `json:"message"`
	Labels       []string         `json:"labels"`
	Workflow     map[string]any   `json:"workflow,omitempty"`
	SQL          *schemas.SQLResult `json:"sql,omitempty"`
	TokenUsage   map[string]int   `json:"token_usage,omitempty"`
	ProviderUsed string           `json:"provider_used"`
}

// Cache is a Redis-backed response cache. Every operation degrades to a
// cache miss / no-op on a Redis failure, never an error.
type Cache struct {
	redis  *redis.Client
	logger *slog.Logger
}

// New returns a Cache backed by client. A nil client disables caching
// entirely (always a miss, writes are no-ops).
func New(client *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{redis: client, logger: logger}
}

// Key computes the cache fingerprint for (sessionID, historyLen, message),
// prefixed "chat:".
func Key(sessionID string, historyLen int, message string) string {
	h := sha256.New()
	h.Write([]byte(sessionID))
	h.Write([]byte(strconv.Itoa(historyLen)))
	h.Write([]byte(message))
	return "chat:" + hex.EncodeToString(h.Sum(nil))
}

// Get looks up key. Returns (entry, true) on a hit, (zero, false) on a
// miss, decode failure, or Redis being unavailable.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool) {
	if c.redis == nil {
		return Entry{}, false
	}
	raw, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("response cache: lookup degraded to miss", "key", key, "error", err)
		}
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Warn("response cache: decode degraded to miss", "key", key, "error", err)
		return Entry{}, false
	}
	return entry, true
}

// Set persists entry under key with TTL. A write failure is logged and
// swallowed.
func (c *Cache) Set(ctx context.Context, key string, entry Entry) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("response cache: encode failed", "key", key, "error", err)
		return
	}
	if err := c.redis.Set(ctx, key, data, TTL).Err(); err != nil {
		c.logger.Warn("response cache: write degraded to no-op", "key", key, "error", err)
	}
}
