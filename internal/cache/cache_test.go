// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/buddichat/internal/chat"
	"github.com/tomtom215/buddichat/internal/config"
)

func messages(room string, from, to int) []chat.Message {
	out := make([]chat.Message, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, chat.Message{ID: fmt.Sprintf("%s-%d", room, i), RoomID: room, Content: fmt.Sprint(i)})
	}
	return out
}

func ids(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestKey(t *testing.T) {
	assert.Equal(t, "room:abc:messages", Key("abc"))
}

func newRedisStore(t *testing.T, maxMessages int, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, maxMessages, ttl), mr
}

// TestRedisStore_KeepsLastN verifies the window holds exactly the most
// recent maxMessages entries, oldest first.
func TestRedisStore_KeepsLastN(t *testing.T) {
	store, _ := newRedisStore(t, 100, 300*time.Second)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "r1", messages("r1", 0, 60)))
	require.NoError(t, store.Append(ctx, "r1", messages("r1", 60, 130)))

	got, err := store.Recent(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 100)
	assert.Equal(t, "r1-30", got[0].ID)
	assert.Equal(t, "r1-129", got[99].ID)
}

func TestRedisStore_TTLRefreshedOnAppend(t *testing.T) {
	store, mr := newRedisStore(t, 10, 300*time.Second)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "r1", messages("r1", 0, 1)))
	mr.FastForward(200 * time.Second)
	require.NoError(t, store.Append(ctx, "r1", messages("r1", 1, 2)))
	assert.Equal(t, 300*time.Second, mr.TTL(Key("r1")))

	mr.FastForward(301 * time.Second)
	got, err := store.Recent(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStore_WriteFailure(t *testing.T) {
	store, mr := newRedisStore(t, 10, time.Minute)
	mr.Close()

	err := store.Append(context.Background(), "r1", messages("r1", 0, 1))
	assert.ErrorIs(t, err, ErrWriteFailed)
}

func TestRedisStore_EmptyRoom(t *testing.T) {
	store, _ := newRedisStore(t, 10, time.Minute)
	got, err := store.Recent(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_KeepsLastN(t *testing.T) {
	store := NewMemoryStore(10, 100, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "r1", messages("r1", 0, 150)))
	got, err := store.Recent(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 100)
	assert.Equal(t, "r1-50", got[0].ID)
	assert.Equal(t, "r1-149", got[99].ID)
}

func TestMemoryStore_TTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryStore(10, 5, 300*time.Second).WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "r1", messages("r1", 0, 2)))
	now = now.Add(299 * time.Second)
	require.NoError(t, store.Append(ctx, "r1", messages("r1", 2, 3)))

	now = now.Add(299 * time.Second)
	got, err := store.Recent(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1-0", "r1-1", "r1-2"}, ids(got))

	now = now.Add(2 * time.Second)
	got, err = store.Recent(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_ExpiredWindowRestarts(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryStore(10, 5, time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "r1", messages("r1", 0, 2)))
	now = now.Add(2 * time.Minute)
	require.NoError(t, store.Append(ctx, "r1", messages("r1", 2, 3)))

	got, _ := store.Recent(ctx, "r1")
	assert.Equal(t, []string{"r1-2"}, ids(got))
}

func TestMemoryStore_EvictsLeastRecentlyWrittenRoom(t *testing.T) {
	store := NewMemoryStore(2, 10, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "a", messages("a", 0, 1)))
	require.NoError(t, store.Append(ctx, "b", messages("b", 0, 1)))
	require.NoError(t, store.Append(ctx, "a", messages("a", 1, 2)))
	require.NoError(t, store.Append(ctx, "c", messages("c", 0, 1)))

	assert.Equal(t, 2, store.Len())
	got, _ := store.Recent(ctx, "b")
	assert.Empty(t, got, "b should have been evicted")
	got, _ = store.Recent(ctx, "a")
	assert.Len(t, got, 2)
}

func TestMemoryStore_RecentReturnsCopy(t *testing.T) {
	store := NewMemoryStore(2, 10, time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "a", messages("a", 0, 1)))

	got, _ := store.Recent(ctx, "a")
	got[0].Content = "mutated"

	again, _ := store.Recent(ctx, "a")
	assert.Equal(t, "0", again[0].Content)
}

func TestMemoryStore_CleanupExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryStore(10, 5, time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "a", messages("a", 0, 1)))
	now = now.Add(30 * time.Second)
	require.NoError(t, store.Append(ctx, "b", messages("b", 0, 1)))
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, store.CleanupExpired())
	assert.Equal(t, 1, store.Len())
}

func TestOpen(t *testing.T) {
	s, err := Open(config.CacheConfig{Driver: "memory", MaxRooms: 1, MaxMessages: 1, TTL: time.Second}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(config.CacheConfig{Driver: "none"}, nil)
	require.NoError(t, err)
	assert.IsType(t, NopStore{}, s)

	_, err = Open(config.CacheConfig{Driver: "redis"}, nil)
	assert.Error(t, err)

	_, err = Open(config.CacheConfig{Driver: "memcached"}, nil)
	assert.Error(t, err)
}
