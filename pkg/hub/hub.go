package hub

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/tsw/internal/logging"
)

// DefaultCapacity is the queue size of every subscription.
const DefaultCapacity = 10

// TopicEventType tells whether a topic gained its first or lost its last subscriber.
type TopicEventType string

const (
	TopicCreated TopicEventType = "CREATED"
	TopicDeleted TopicEventType = "DELETED"
)

// TopicEvent is delivered on the topic-lifecycle feed.
type TopicEvent[K comparable] struct {
	Type  TopicEventType
	Topic K
}

type config struct {
	capacity int
	logger   *slog.Logger
	onDrop   func()
}

// Option configures a Hub.
type Option func(*config)

// WithCapacity overrides the per-subscription queue size.
func WithCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithLogger configures a logger for drop warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithDropHook is called every time a value is dropped on a full queue.
func WithDropHook(fn func()) Option {
	return func(c *config) {
		c.onDrop = fn
	}
}

// Hub is a topic-keyed publish/subscribe primitive with bounded, lossy queues.
type Hub[K comparable, V any] struct {
	cfg config

	mu     sync.Mutex
	topics map[K]map[*Subscription[V]]struct{}
	all    map[*Subscription[V]]struct{}
	meta   map[*Subscription[TopicEvent[K]]]struct{}
}

// New creates an empty Hub.
func New[K comparable, V any](opts ...Option) *Hub[K, V] {
	cfg := config{
		capacity: DefaultCapacity,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Hub[K, V]{
		cfg:    cfg,
		topics: make(map[K]map[*Subscription[V]]struct{}),
		all:    make(map[*Subscription[V]]struct{}),
		meta:   make(map[*Subscription[TopicEvent[K]]]struct{}),
	}
}

// Publish pushes value to every subscription of topic and every generic
// subscription. It never blocks.
func (h *Hub[K, V]) Publish(topic K, value V) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.topics[topic] {
		sub.deliver(value)
	}
	for sub := range h.all {
		sub.deliver(value)
	}
}

// Subscribe receives values published on any topic.
func (h *Hub[K, V]) Subscribe() *Subscription[V] {
	var sub *Subscription[V]
	sub = newSubscription[V]("*", h.cfg.capacity, &h.cfg, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.all, sub)
	})

	h.mu.Lock()
	h.all[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// SubscribeTopic receives values published on topic.
// The first subscription on a topic emits TopicCreated.
func (h *Hub[K, V]) SubscribeTopic(topic K) *Subscription[V] {
	var sub *Subscription[V]
	sub = newSubscription[V](fmt.Sprint(topic), h.cfg.capacity, &h.cfg, func() {
		h.unsubscribe(topic, sub)
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscription[V]]struct{})
		h.topics[topic] = subs
		h.emit(TopicEvent[K]{Type: TopicCreated, Topic: topic})
	}
	subs[sub] = struct{}{}
	return sub
}

// SubscribeTopicEvents receives the topic-lifecycle feed.
func (h *Hub[K, V]) SubscribeTopicEvents() *Subscription[TopicEvent[K]] {
	var sub *Subscription[TopicEvent[K]]
	sub = newSubscription[TopicEvent[K]]("topic-events", h.cfg.capacity, &h.cfg, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.meta, sub)
	})

	h.mu.Lock()
	h.meta[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Topics lists the topics that currently have at least one subscriber.
func (h *Hub[K, V]) Topics() []K {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]K, 0, len(h.topics))
	for k := range h.topics {
		out = append(out, k)
	}
	return out
}

func (h *Hub[K, V]) unsubscribe(topic K, sub *Subscription[V]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.topics, topic)
		h.emit(TopicEvent[K]{Type: TopicDeleted, Topic: topic})
	}
}

// emit must be called with h.mu held so lifecycle edges keep their order.
func (h *Hub[K, V]) emit(ev TopicEvent[K]) {
	for sub := range h.meta {
		sub.deliver(ev)
	}
}
