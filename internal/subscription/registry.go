// Package subscription implements the shared topic registry behind GraphQL
// subscriptions. Connections register handlers against a topic and receive
// fan-out callbacks when an event is published; the registry is the single
// shared store, so insert and remove are synchronized.
package subscription

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/apulibrary/backend/internal/domain"
)

// TopicItemAdded is published whenever a new item is created.
const TopicItemAdded = "item_added"

// Handler receives the event payload for a single subscription. Handlers
// must not block: they run on the publisher's goroutine.
type Handler func(event domain.ItemWithOwner)

// Registry is the shared subscription store. Safe for concurrent use by
// multiple connections and publishers.
type Registry struct {
	log *slog.Logger

	mu     sync.RWMutex
	topics map[string]map[uuid.UUID]Handler
	index  map[uuid.UUID]string // subscription id -> topic
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:    log.With("component", "subscriptions"),
		topics: make(map[string]map[uuid.UUID]Handler),
		index:  make(map[uuid.UUID]string),
	}
}

// Subscribe registers a handler on the topic and returns its subscription
// id. The caller tracks the id and must Unsubscribe it when the connection
// ends; a leaked id is a permanently registered listener.
func (r *Registry) Subscribe(topic string, h Handler) uuid.UUID {
	id := uuid.New()

	r.mu.Lock()
	subs, ok := r.topics[topic]
	if !ok {
		subs = make(map[uuid.UUID]Handler)
		r.topics[topic] = subs
	}
	subs[id] = h
	r.index[id] = topic
	r.mu.Unlock()

	r.log.Debug("subscribed", slog.String("topic", topic), slog.String("subscription_id", id.String()))
	return id
}

// Unsubscribe removes a subscription. Unknown or already-removed ids are a
// no-op, so disconnect cleanup may be retried safely.
func (r *Registry) Unsubscribe(id uuid.UUID) {
	r.mu.Lock()
	topic, ok := r.index[id]
	if ok {
		delete(r.index, id)
		delete(r.topics[topic], id)
		if len(r.topics[topic]) == 0 {
			delete(r.topics, topic)
		}
	}
	r.mu.Unlock()

	if ok {
		r.log.Debug("unsubscribed", slog.String("topic", topic), slog.String("subscription_id", id.String()))
	}
}

// Publish fans the event out to every handler currently registered on the
// topic. Delivery order across subscribers is unspecified. The payload is
// exactly the published event, owner included: no storage access happens at
// dispatch time.
func (r *Registry) Publish(ctx context.Context, topic string, event domain.ItemWithOwner) {
	r.mu.RLock()
	handlers := make([]Handler, 0, len(r.topics[topic]))
	for _, h := range r.topics[topic] {
		handlers = append(handlers, h)
	}
	r.mu.RUnlock()

	// Handlers run outside the lock so a subscriber cannot stall
	// concurrent subscribe/unsubscribe calls.
	for _, h := range handlers {
		h(event)
	}

	r.log.DebugContext(ctx, "published",
		slog.String("topic", topic),
		slog.String("item_id", event.ID.String()),
		slog.Int("subscribers", len(handlers)),
	)
}

// Count returns the number of live subscriptions on the topic.
func (r *Registry) Count(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}
