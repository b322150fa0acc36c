package streaming

import (
	"context"
	"strconv"
	"sync"

	"secureguard-lab/pkg/logger"
)

// EventBus distributes scan events to NATS and local subscribers
type EventBus struct {
	nats   *NATSPublisher
	logger *logger.Logger

	mu          sync.RWMutex
	subscribers map[string]*busSubscriber
	nextID      int
	closed      bool
}

type busSubscriber struct {
	ch  chan *ScanEvent
	sub *Subscription
}

// NewEventBus creates a new event bus. nats may be nil for local-only delivery.
func NewEventBus(nats *NATSPublisher, log *logger.Logger) *EventBus {
	return &EventBus{
		nats:        nats,
		logger:      log.WithComponent("event-bus"),
		subscribers: make(map[string]*busSubscriber),
	}
}

// Publish publishes an event to NATS (when connected) and local subscribers.
// The NATS error is returned after local delivery.
func (eb *EventBus) Publish(ctx context.Context, event *ScanEvent) error {
	var natsErr error
	if eb.nats != nil && eb.nats.IsConnected() {
		if natsErr = eb.nats.Publish(ctx, event); natsErr != nil {
			eb.logger.Warn().Err(natsErr).Msg("failed to publish to NATS, using local broadcast only")
		}
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for id, s := range eb.subscribers {
		if !s.sub.Matches(event) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			eb.logger.Debug().Str("subscriber", id).Msg("subscriber channel full, dropping event")
		}
	}

	return natsErr
}

// Subscribe registers a local subscriber and returns its channel and an
// unsubscribe function.
func (eb *EventBus) Subscribe(sub *Subscription) (<-chan *ScanEvent, func()) {
	eb.mu.Lock()
	eb.nextID++
	id := strconv.Itoa(eb.nextID)
	ch := make(chan *ScanEvent, 100)
	if eb.closed {
		close(ch)
	} else {
		eb.subscribers[id] = &busSubscriber{ch: ch, sub: sub}
	}
	eb.mu.Unlock()

	eb.logger.Debug().Str("subscriber_id", id).Msg("new subscriber")

	unsubscribe := func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		if _, ok := eb.subscribers[id]; ok {
			close(ch)
			delete(eb.subscribers, id)
			eb.logger.Debug().Str("subscriber_id", id).Msg("subscriber removed")
		}
	}

	return ch, unsubscribe
}

// SubscriberCount returns the number of active subscribers
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// Close closes all subscriber channels and the NATS connection
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.closed = true
	for id, s := range eb.subscribers {
		close(s.ch)
		delete(eb.subscribers, id)
	}

	if eb.nats != nil {
		eb.nats.Close()
	}
}
