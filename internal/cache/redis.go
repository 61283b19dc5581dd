// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/buddichat/internal/chat"
	"github.com/tomtom215/buddichat/internal/logging"
	"github.com/tomtom215/buddichat/internal/metrics"
)

// RedisStore keeps each room's window in a Redis list of JSON messages.
type RedisStore struct {
	client      *redis.Client
	maxMessages int
	ttl         time.Duration
}

// NewRedisStore creates a store keeping maxMessages per room for ttl.
func NewRedisStore(client *redis.Client, maxMessages int, ttl time.Duration) *RedisStore {
	if maxMessages <= 0 {
		maxMessages = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisStore{client: client, maxMessages: maxMessages, ttl: ttl}
}

// Append pushes, trims and refreshes the TTL in one transaction.
func (s *RedisStore) Append(ctx context.Context, roomID string, messages []chat.Message) error {
	if len(messages) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(messages))
	for i := range messages {
		data, err := json.Marshal(&messages[i])
		if err != nil {
			metrics.CacheWriteFailures.Inc()
			return fmt.Errorf("%w: encode message: %v", ErrWriteFailed, err)
		}
		values = append(values, data)
	}

	key := Key(roomID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, int64(-s.maxMessages), -1)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		metrics.CacheWriteFailures.Inc()
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// Recent reads the whole window. Entries that fail to decode are skipped.
func (s *RedisStore) Recent(ctx context.Context, roomID string) ([]chat.Message, error) {
	raw, err := s.client.LRange(ctx, Key(roomID), 0, -1).Result()
	if err != nil {
		metrics.CacheReads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read recent messages for room %s: %w", roomID, err)
	}
	if len(raw) == 0 {
		metrics.CacheReads.WithLabelValues("miss").Inc()
		return []chat.Message{}, nil
	}
	metrics.CacheReads.WithLabelValues("hit").Inc()

	out := make([]chat.Message, 0, len(raw))
	for _, item := range raw {
		var m chat.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			logging.Warn().Err(err).Str("room_id", roomID).Msg("Skipping undecodable cached message")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
