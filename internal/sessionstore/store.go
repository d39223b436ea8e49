// Package sessionstore persists per-session conversational state in Redis:
// the bounded turn history and the at-most-one in-flight mutation FSM
// state. Every operation degrades to a no-op on a Redis failure rather
// than propagating an error: a session with an unreachable Redis simply
// behaves as a fresh session on every turn, losing cross-turn memory but
// nothing else.
package sessionstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/shaharia-lab/tag-backend/internal/schemas"
)

// Store is a Redis-backed session store. It is safe for concurrent use
// across sessions; callers remain responsible for serializing writes to a
// single session.
type Store struct {
	redis  *redis.Client
	logger *slog.Logger
}

// New returns a Store backed by client. A nil client is accepted so the
// orchestrator can run (degraded to no persistence at all) when Redis was
// never configured.
func New(client *redis.Client, logger *slog.Logger) *Store {
	return &Store{redis: client, logger: logger}
}

func historyKey(sessionID string) string {
	return "history:" + fingerprint(sessionID)
}

func mutationKey(sessionID string) string {
	return "mutation_state:" + fingerprint(sessionID)
}

func fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// History returns sessionID's persisted turn history, oldest first. A
// missing key, a decode failure, or an unreachable Redis all yield an
// empty slice rather than an error.
func (s *Store) History(ctx context.Context, sessionID string) []schemas.SessionHistoryEntry {
	if s.redis == nil {
		return nil
	}
	raw, err := s.redis.Get(ctx, historyKey(sessionID)).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("session store: reading history degraded to empty", "session_id", sessionID, "error", err)
		}
		return nil
	}
	var entries []schemas.SessionHistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.logger.Warn("session store: decoding history degraded to empty", "session_id", sessionID, "error", err)
		return nil
	}
	return entries
}

// AppendHistory appends entry to sessionID's history, trims it to
// schemas.MaxHistoryEntries, and persists it with schemas.HistoryTTL. A
// write failure is logged and swallowed.
func (s *Store) AppendHistory(ctx context.Context, sessionID string, entry schemas.SessionHistoryEntry) {
	if s.redis == nil {
		return
	}
	entries := append(s.History(ctx, sessionID), entry)
	entries = schemas.TrimHistory(entries)

	data, err := json.Marshal(entries)
	if err != nil {
		s.logger.Warn("session store: encoding history failed", "session_id", sessionID, "error", err)
		return
	}
	if err := s.redis.Set(ctx, historyKey(sessionID), data, schemas.HistoryTTL).Err(); err != nil {
		s.logger.Warn("session store: writing history degraded to no-op", "session_id", sessionID, "error", err)
	}
}

// Mutation returns sessionID's in-flight mutation state, or nil if there is
// none (no key, decode failure, or Redis unavailable).
func (s *Store) Mutation(ctx context.Context, sessionID string) *schemas.MutationState {
	if s.redis == nil {
		return nil
	}
	raw, err := s.redis.Get(ctx, mutationKey(sessionID)).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("session store: reading mutation state degraded to absent", "session_id", sessionID, "error", err)
		}
		return nil
	}
	var state schemas.MutationState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		s.logger.Warn("session store: decoding mutation state degraded to absent", "session_id", sessionID, "error", err)
		return nil
	}
	return &state
}

// SaveMutation persists state as sessionID's mutation state with
// schemas.MutationTTL. A write failure is logged and swallowed.
func (s *Store) SaveMutation(ctx context.Context, sessionID string, state *schemas.MutationState) {
	if s.redis == nil || state == nil {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		s.logger.Warn("session store: encoding mutation state failed", "session_id", sessionID, "error", err)
		return
	}
	if err := s.redis.Set(ctx, mutationKey(sessionID), data, schemas.MutationTTL).Err(); err != nil {
		s.logger.Warn("session store: writing mutation state degraded to no-op", "session_id", sessionID, "error", err)
	}
}

// ClearMutation deletes sessionID's mutation state, if any. A delete
// failure is logged and swallowed.
func (s *Store) ClearMutation(ctx context.Context, sessionID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, mutationKey(sessionID)).Err(); err != nil {
		s.logger.Warn("session store: clearing mutation state degraded to no-op", "session_id", sessionID, "error", err)
	}
}
