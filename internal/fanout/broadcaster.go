// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

// Package fanout moves flushed batches between server processes over the
// backbone and hands received batches to local delivery.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/buddichat/internal/backbone"
	"github.com/tomtom215/buddichat/internal/cache"
	"github.com/tomtom215/buddichat/internal/chat"
	"github.com/tomtom215/buddichat/internal/logging"
	"github.com/tomtom215/buddichat/internal/metrics"
)

// MessageBatchType is the data.type of every backbone payload.
const MessageBatchType = "message_batch"

// Dispatcher delivers a batch to connections held by this process.
type Dispatcher interface {
	Deliver(batch chat.Batch)
}

// Payload is the backbone wire format.
type Payload struct {
	Origin  string      `json:"origin"`
	BatchID string      `json:"batchId"`
	RoomID  string      `json:"roomId"`
	Data    PayloadData `json:"data"`
}

// PayloadData carries the batch body.
type PayloadData struct {
	Type      string         `json:"type"`
	Messages  []chat.Message `json:"messages"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Config holds broadcaster settings.
type Config struct {
	Channel    string
	InstanceID string

	PublishTimeout   time.Duration
	CacheTimeout     time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	Breaker BreakerConfig
}

// Broadcaster publishes batches to the backbone and relays every received
// batch to the local Dispatcher. When the backbone cannot carry a batch
// back to this process, the batch is delivered locally instead so local
// users keep chatting while the backbone is down.
type Broadcaster struct {
	backbone backbone.Backbone
	local    Dispatcher
	recent   cache.RecentStore
	breaker  *gobreaker.CircuitBreaker[interface{}]
	config   Config

	subscribed atomic.Bool

	// fallback remembers batch IDs delivered locally so their backbone echo,
	// if a subscription comes back in time, is not delivered twice.
	fallback *idRing
}

// New creates a Broadcaster. recent may be nil to disable caching.
func New(bb backbone.Backbone, local Dispatcher, recent cache.RecentStore, cfg Config) (*Broadcaster, error) {
	if bb == nil {
		return nil, fmt.Errorf("backbone required")
	}
	if local == nil {
		return nil, fmt.Errorf("local dispatcher required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("channel required")
	}
	if recent == nil {
		recent = cache.NopStore{}
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	if cfg.CacheTimeout <= 0 {
		cfg.CacheTimeout = time.Second
	}
	if cfg.ReconnectInitial <= 0 {
		cfg.ReconnectInitial = 100 * time.Millisecond
	}
	if cfg.ReconnectMax < cfg.ReconnectInitial {
		cfg.ReconnectMax = 3 * time.Second
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "backbone-publish"
	}

	return &Broadcaster{
		backbone: bb,
		local:    local,
		recent:   recent,
		breaker:  NewCircuitBreaker(cfg.Breaker),
		config:   cfg,
		fallback: newIDRing(1024),
	}, nil
}

// HandleBatch is the batcher sink: it appends the batch to the recent
// message cache and then publishes it. A cache failure is logged and does
// not stop delivery.
func (b *Broadcaster) HandleBatch(ctx context.Context, batch chat.Batch) error {
	cacheCtx, cancel := context.WithTimeout(ctx, b.config.CacheTimeout)
	err := b.recent.Append(cacheCtx, batch.RoomID, batch.Messages)
	cancel()
	if err != nil {
		logging.Warn().
			Err(err).
			Str("room_id", batch.RoomID).
			Str("batch_id", batch.ID).
			Msg("Recent message cache append failed")
	}

	return b.Publish(ctx, batch)
}

// Publish sends batch to every subscribed process. If the publish fails,
// the breaker is open, or this process holds no live subscription, the
// batch is delivered locally.
func (b *Broadcaster) Publish(ctx context.Context, batch chat.Batch) error {
	data, err := b.encode(batch)
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, b.config.PublishTimeout)
	defer cancel()

	_, err = b.breaker.Execute(func() (interface{}, error) {
		return nil, b.backbone.Publish(pubCtx, b.config.Channel, data)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		b.deliverLocally(batch, "breaker_open", err)
	case err != nil:
		b.deliverLocally(batch, "error", err)
	case !b.subscribed.Load():
		metrics.BackbonePublished.Inc()
		b.deliverLocally(batch, "not_subscribed", nil)
	default:
		metrics.BackbonePublished.Inc()
	}
	return nil
}

func (b *Broadcaster) deliverLocally(batch chat.Batch, reason string, err error) {
	metrics.RecordPublishFailure(reason)
	b.fallback.Add(batch.ID)

	event := logging.Debug()
	if err != nil {
		event = logging.Warn().Err(err)
	}
	event.
		Str("room_id", batch.RoomID).
		Str("batch_id", batch.ID).
		Str("reason", reason).
		Msg("Backbone unavailable, delivering batch locally")

	b.local.Deliver(batch)
}

func (b *Broadcaster) encode(batch chat.Batch) ([]byte, error) {
	data, err := json.Marshal(Payload{
		Origin:  b.config.InstanceID,
		BatchID: batch.ID,
		RoomID:  batch.RoomID,
		Data: PayloadData{
			Type:      MessageBatchType,
			Messages:  batch.Messages,
			CreatedAt: batch.CreatedAt,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode batch %s: %w", batch.ID, err)
	}
	return data, nil
}

// Decode parses a backbone payload into a batch.
func Decode(data []byte) (chat.Batch, Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return chat.Batch{}, p, fmt.Errorf("decode payload: %w", err)
	}
	if p.RoomID == "" {
		return chat.Batch{}, p, fmt.Errorf("decode payload: missing roomId")
	}
	if p.Data.Type != "" && p.Data.Type != MessageBatchType {
		return chat.Batch{}, p, fmt.Errorf("decode payload: unexpected type %q", p.Data.Type)
	}
	return chat.Batch{
		ID:        p.BatchID,
		RoomID:    p.RoomID,
		Messages:  p.Data.Messages,
		CreatedAt: p.Data.CreatedAt,
	}, p, nil
}

// Serve keeps a subscription open for the life of ctx, resubscribing with
// exponential backoff whenever subscribing fails or the stream ends.
func (b *Broadcaster) Serve(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.config.ReconnectInitial
	bo.MaxInterval = b.config.ReconnectMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		stream, err := b.backbone.Subscribe(ctx, b.config.Channel)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := bo.NextBackOff()
			logging.Warn().Err(err).Dur("retry_in", wait).Str("channel", b.config.Channel).Msg("Backbone subscribe failed")
			if !sleep(ctx, wait) {
				return ctx.Err()
			}
			metrics.BackboneReconnects.Inc()
			continue
		}

		bo.Reset()
		b.setSubscribed(true)
		logging.Info().Str("channel", b.config.Channel).Msg("Subscribed to backbone")

		b.consume(ctx, stream)

		b.setSubscribed(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := bo.NextBackOff()
		logging.Warn().Dur("retry_in", wait).Str("channel", b.config.Channel).Msg("Backbone subscription lost")
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
		metrics.BackboneReconnects.Inc()
	}
}

// consume relays payloads until the stream closes or ctx is done.
func (b *Broadcaster) consume(ctx context.Context, stream <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-stream:
			if !ok {
				return
			}
			b.handlePayload(data)
		}
	}
}

func (b *Broadcaster) handlePayload(data []byte) {
	metrics.BackboneConsumed.Inc()

	batch, p, err := Decode(data)
	if err != nil {
		metrics.BackboneDecodeFailures.Inc()
		logging.Warn().Err(err).Msg("Discarding malformed backbone payload")
		return
	}
	if p.Origin == b.config.InstanceID && b.fallback.Contains(batch.ID) {
		return
	}
	b.local.Deliver(batch)
}

func (b *Broadcaster) setSubscribed(v bool) {
	b.subscribed.Store(v)
	metrics.SetBackboneSubscribed(v)
}

// Subscribed reports whether a backbone subscription is currently live.
func (b *Broadcaster) Subscribed() bool {
	return b.subscribed.Load()
}

// BreakerState returns the publish breaker state name.
func (b *Broadcaster) BreakerState() string {
	return b.breaker.State().String()
}

// String implements fmt.Stringer for suture logging.
func (b *Broadcaster) String() string {
	return "broadcaster"
}

// sleep waits for d or ctx; it reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// idRing is a fixed-size set of recent IDs. The oldest ID is forgotten
// when a new one is added to a full ring.
type idRing struct {
	mu   sync.Mutex
	ids  []string
	set  map[string]struct{}
	next int
}

func newIDRing(size int) *idRing {
	return &idRing{ids: make([]string, size), set: make(map[string]struct{}, size)}
}

func (r *idRing) Add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old := r.ids[r.next]; old != "" {
		delete(r.set, old)
	}
	r.ids[r.next] = id
	r.set[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ids)
}

func (r *idRing) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.set[id]
	return ok
}
