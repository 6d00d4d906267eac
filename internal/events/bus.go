// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/config"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/metrics"
)

const (
	TransportMemory = "memory"
	TransportNATS   = "nats"

	memoryTopic     = "planpoint.sync.events"
	subscriberQueue = 64
)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("event bus closed")

// Publisher is the write side of the bus. Stores and services depend on
// this rather than on *Bus.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber is the read side of the bus.
type Subscriber interface {
	Subscribe(ctx context.Context, f Filter) (<-chan Event, error)
}

// Bus publishes and fans out Events over a Watermill transport. Delivery
// is at-most-once and unordered across publishers.
type Bus struct {
	transport string
	topic     string
	pub       message.Publisher
	sub       message.Subscriber
	breaker   *gobreaker.CircuitBreaker[struct{}]
	logger    zerolog.Logger
	embedded  *EmbeddedServer
	// shared is set when pub and sub are the same GoChannel.
	shared bool

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// BreakerSettings configures the publish circuit breaker.
type BreakerSettings struct {
	Name      string
	Threshold uint32
	Timeout   time.Duration
}

func newBreaker(s BreakerSettings) *gobreaker.CircuitBreaker[struct{}] {
	if s.Threshold == 0 {
		s.Threshold = 5
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}
	metrics.RecordBreakerState(s.Name, gobreaker.StateClosed.String())
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.Threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("event publish circuit changed state")
			metrics.RecordBreakerState(name, to.String())
		},
	})
}

// NewMemory returns an in-process bus.
func NewMemory(bufferSize int64) *Bus {
	logger := logging.WithComponent("events")
	if bufferSize <= 0 {
		bufferSize = subscriberQueue
	}
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: bufferSize,
	}, NewWatermillLogger(logger))

	return &Bus{
		transport: TransportMemory,
		topic:     memoryTopic,
		pub:       ch,
		sub:       ch,
		breaker:   newBreaker(BreakerSettings{Name: "events_memory"}),
		logger:    logger,
		shared:    true,
		done:      make(chan struct{}),
	}
}

// NewBus builds the bus selected by cfg.Transport.
func NewBus(cfg *config.EventsConfig) (*Bus, error) {
	switch cfg.Transport {
	case TransportMemory, "":
		return NewMemory(cfg.BufferSize), nil
	case TransportNATS:
		return NewNATS(&cfg.NATS)
	default:
		return nil, fmt.Errorf("unknown events transport %q", cfg.Transport)
	}
}

// Transport returns memory or nats.
func (b *Bus) Transport() string {
	return b.transport
}

// Publish sends ev to every matching subscriber.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(ev.ID, data)
	msg.Metadata.Set("type", string(ev.Type))
	msg.Metadata.Set("tenant_id", ev.TenantID)
	msg.SetContext(ctx)

	_, err = b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.pub.Publish(b.topic, msg)
	})
	if err != nil {
		metrics.EventsPublishErrors.WithLabelValues(b.transport).Inc()
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Type), b.transport).Inc()
	return nil
}

// Subscribe returns a channel of events matching f. The channel is closed
// when ctx is done or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, f Filter) (<-chan Event, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	msgs, err := b.sub.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", b.topic, err)
	}

	out := make(chan Event, subscriberQueue)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(out)
		for msg := range msgs {
			var ev Event
			err := json.Unmarshal(msg.Payload, &ev)
			// a malformed message would be redelivered forever if nacked
			msg.Ack()
			if err != nil {
				b.logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping malformed event")
				continue
			}
			if !f.Match(&ev) {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			case <-b.done:
				return
			}
		}
	}()
	return out, nil
}

// Close stops the transport and waits for subscriber goroutines. Safe to
// call more than once.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	var errs []error
	if err := b.pub.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if !b.shared {
		if err := b.sub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	b.wg.Wait()

	if b.embedded != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.embedded.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown embedded nats: %w", err))
		}
	}
	return errors.Join(errs...)
}

// compile-time checks
var (
	_ Publisher               = (*Bus)(nil)
	_ Subscriber              = (*Bus)(nil)
	_ watermill.LoggerAdapter = (*WatermillLogger)(nil)
)
