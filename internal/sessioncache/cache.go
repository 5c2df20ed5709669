// Package sessioncache mirrors the most recent conversation turns per user
// into Redis as a short-term scratchpad.
//
// The cache is non-authoritative: retrieval never reads it, and every
// operation here is best-effort — a Redis outage degrades to a log line,
// never a failed turn. The durable record lives in the structured store.
package sessioncache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lunavale/mnemo/pkg/types"
)

// DefaultSessionWindow is the number of recent turns kept per user.
const DefaultSessionWindow = 20

// Cache mirrors session state into Redis under two keys per user:
// chat:<user>:last_active (unix seconds) and chat:<user>:session_context
// (list of JSON-encoded messages, trimmed to the session window).
type Cache struct {
	client *redis.Client
	logger *slog.Logger
	window int
}

// New constructs a Cache over the Redis server at addr. A zero or negative
// window falls back to [DefaultSessionWindow].
func New(addr, password string, db, window int, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = DefaultSessionWindow
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Cache{client: client, logger: logger, window: window}
}

// Ping verifies connectivity, for startup health reporting.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("sessioncache: ping: %w", err)
	}
	return nil
}

func keyLastActive(userID string) string {
	return "chat:" + userID + ":last_active"
}

func keySessionContext(userID string) string {
	return "chat:" + userID + ":session_context"
}

// RecordTurn appends one turn to the user's session context and refreshes
// the last-active timestamp. Failures are logged, never returned.
func (c *Cache) RecordTurn(ctx context.Context, userID, role, text string, at time.Time) {
	entry, err := json.Marshal(types.Message{Role: role, Content: text})
	if err != nil {
		c.logger.Warn("session cache encode failed", "user_id", userID, "error", err)
		return
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, keyLastActive(userID), at.Unix(), 0)
	pipe.RPush(ctx, keySessionContext(userID), entry)
	pipe.LTrim(ctx, keySessionContext(userID), int64(-c.window), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("session cache update failed", "user_id", userID, "error", err)
	}
}

// SessionContext returns the cached recent messages for userID, oldest
// first. A cache failure yields an empty slice.
func (c *Cache) SessionContext(ctx context.Context, userID string) []types.Message {
	raw, err := c.client.LRange(ctx, keySessionContext(userID), 0, -1).Result()
	if err != nil {
		c.logger.Warn("session cache read failed", "user_id", userID, "error", err)
		return nil
	}
	msgs := make([]types.Message, 0, len(raw))
	for _, r := range raw {
		var m types.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			c.logger.Warn("session cache entry malformed", "user_id", userID, "error", err)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// Erase removes every cached key for userID. The error is returned so the
// caller can log it, but erasure of the authoritative store must proceed
// regardless.
func (c *Cache) Erase(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, keyLastActive(userID), keySessionContext(userID)).Err(); err != nil {
		return fmt.Errorf("sessioncache: erase %q: %w", userID, err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
