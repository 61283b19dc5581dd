// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

// Package batch buffers accepted messages per room and flushes them as
// batches, either when a room reaches the size limit or on a fixed interval.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/buddichat/internal/chat"
	"github.com/tomtom215/buddichat/internal/logging"
	"github.com/tomtom215/buddichat/internal/metrics"
)

// ErrClosed is returned by Enqueue after shutdown.
var ErrClosed = errors.New("batcher is closed")

// Flush reasons.
const (
	ReasonSize     = "size"
	ReasonInterval = "interval"
	ReasonShutdown = "shutdown"
)

// Sink receives flushed batches. It is called from a single goroutine, so
// batches for a room arrive in flush order.
type Sink interface {
	HandleBatch(ctx context.Context, batch chat.Batch) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, batch chat.Batch) error

// HandleBatch calls f.
func (f SinkFunc) HandleBatch(ctx context.Context, batch chat.Batch) error {
	return f(ctx, batch)
}

// Config holds batcher settings.
type Config struct {
	MaxBatchSize  int
	FlushInterval time.Duration
	QueueSize     int

	// SinkTimeout bounds one HandleBatch call.
	SinkTimeout time.Duration
}

// DefaultConfig returns the default batching settings.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:  50,
		FlushInterval: 100 * time.Millisecond,
		QueueSize:     1024,
		SinkTimeout:   5 * time.Second,
	}
}

// Stats holds runtime statistics for monitoring.
type Stats struct {
	MessagesReceived int64
	BatchesFlushed   int64
	BatchesDropped   int64
	SinkErrors       int64
	Pending          int
}

// Batcher collects messages per room.
//
// Flushing swaps a room's pending list for a fresh one and hands the batch
// to the queue while holding mu, so two flushes of the same room can never
// reorder. A single worker drains the queue into the Sink.
type Batcher struct {
	sink   Sink
	config Config

	mu      sync.Mutex
	pending map[string][]chat.Message
	opened  map[string]time.Time // first pending enqueue per room
	count   int
	closed  bool

	queue chan flushed
	now   func() time.Time

	messagesReceived atomic.Int64
	batchesFlushed   atomic.Int64
	batchesDropped   atomic.Int64
	sinkErrors       atomic.Int64
}

type flushed struct {
	batch  chat.Batch
	reason string
}

// New creates a Batcher delivering to sink.
func New(sink Sink, cfg Config) (*Batcher, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink required")
	}
	if cfg.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive")
	}
	if cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("flush interval must be positive")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = DefaultConfig().SinkTimeout
	}

	return &Batcher{
		sink:    sink,
		config:  cfg,
		pending: make(map[string][]chat.Message),
		opened:  make(map[string]time.Time),
		queue:   make(chan flushed, cfg.QueueSize),
		now:     time.Now,
	}, nil
}

// Enqueue adds msg to its room's pending list, flushing the room when it
// reaches MaxBatchSize.
func (b *Batcher) Enqueue(msg chat.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	if len(b.pending[msg.RoomID]) == 0 {
		b.opened[msg.RoomID] = b.now()
	}
	b.pending[msg.RoomID] = append(b.pending[msg.RoomID], msg)
	b.count++
	b.messagesReceived.Add(1)
	metrics.BatchPendingMessages.Inc()

	if len(b.pending[msg.RoomID]) >= b.config.MaxBatchSize {
		b.flushRoomLocked(msg.RoomID, ReasonSize)
	}
	return nil
}

// FlushAll flushes every room with pending messages.
func (b *Batcher) FlushAll(reason string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushAllLocked(reason)
}

func (b *Batcher) flushAllLocked(reason string) int {
	n := 0
	for roomID, msgs := range b.pending {
		if len(msgs) == 0 {
			continue
		}
		b.flushRoomLocked(roomID, reason)
		n++
	}
	return n
}

// flushRoomLocked swaps out the pending list and queues it. Caller holds mu.
func (b *Batcher) flushRoomLocked(roomID, reason string) {
	msgs := b.pending[roomID]
	openedAt := b.opened[roomID]
	delete(b.pending, roomID)
	delete(b.opened, roomID)
	b.count -= len(msgs)
	metrics.BatchPendingMessages.Sub(float64(len(msgs)))

	batch := chat.NewBatch(roomID, msgs, openedAt)
	select {
	case b.queue <- flushed{batch: batch, reason: reason}:
	default:
		b.batchesDropped.Add(1)
		metrics.RecordBatchDropped("queue_full")
		logging.Warn().
			Str("room_id", roomID).
			Int("messages", len(msgs)).
			Msg("Batch queue full, dropping batch")
	}
}

// Serve runs the flush ticker and the delivery worker until ctx is
// cancelled, then flushes remaining messages once and drains the queue.
func (b *Batcher) Serve(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.mu.Unlock()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		b.worker()
	}()

	ticker := time.NewTicker(b.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			<-workerDone
			return ctx.Err()
		case <-ticker.C:
			b.FlushAll(ReasonInterval)
		}
	}
}

// shutdown flushes what is pending and closes the queue.
func (b *Batcher) shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	n := b.flushAllLocked(ReasonShutdown)
	b.closed = true
	close(b.queue)

	logging.Info().Int("rooms", n).Msg("Batcher stopped, flushed remaining rooms")
}

// worker delivers queued batches to the sink one at a time.
func (b *Batcher) worker() {
	for f := range b.queue {
		b.deliver(f)
	}
}

// deliver calls the sink with a fresh timeout. The parent context only
// signals shutdown, and shutdown still delivers what was flushed.
func (b *Batcher) deliver(f flushed) {
	ctx, cancel := context.WithTimeout(context.Background(), b.config.SinkTimeout)
	defer cancel()

	metrics.RecordBatchFlush(f.reason, f.batch.Len())
	b.batchesFlushed.Add(1)

	if err := b.sink.HandleBatch(ctx, f.batch); err != nil {
		b.sinkErrors.Add(1)
		metrics.RecordBatchDropped("sink_error")
		logging.Error().
			Err(err).
			Str("room_id", f.batch.RoomID).
			Str("batch_id", f.batch.ID).
			Int("messages", f.batch.Len()).
			Msg("Batch delivery failed, dropping batch")
		return
	}

	logging.Trace().
		Str("room_id", f.batch.RoomID).
		Str("batch_id", f.batch.ID).
		Int("messages", f.batch.Len()).
		Str("reason", f.reason).
		Msg("Batch delivered")
}

// Stats returns current runtime statistics.
func (b *Batcher) Stats() Stats {
	b.mu.Lock()
	pending := b.count
	b.mu.Unlock()

	return Stats{
		MessagesReceived: b.messagesReceived.Load(),
		BatchesFlushed:   b.batchesFlushed.Load(),
		BatchesDropped:   b.batchesDropped.Load(),
		SinkErrors:       b.sinkErrors.Load(),
		Pending:          pending,
	}
}

// String implements fmt.Stringer for suture logging.
func (b *Batcher) String() string {
	return "batcher"
}
