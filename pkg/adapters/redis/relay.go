package redis

import (
	"context"
	"fmt"
	"strings"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/tsw/pkg/hub"
	"github.com/aretw0/tsw/pkg/instances"
)

// Relay delivers instance snapshots published by other processes into the
// local hub. It always listens on its host channel, so a dispatch loop wakes
// when another process requests an action, and follows the topic-events feed
// to listen on the channel of every instance that has a local subscriber.
type Relay struct {
	client *backend.Client
	hub    *instances.Hub
	hostID string
	origin string
	cfg    settings

	watched map[string]bool
}

// NewRelay creates a Relay for hostID. origin must match the Notifier of
// this process.
func NewRelay(client *backend.Client, h *instances.Hub, hostID, origin string, opts ...Option) *Relay {
	cfg := newSettings(opts)
	cfg.logger = cfg.logger.With("component", "redis-relay", "host_id", hostID)
	return &Relay{
		client:  client,
		hub:     h,
		hostID:  hostID,
		origin:  origin,
		cfg:     cfg,
		watched: make(map[string]bool),
	}
}

// Run relays until ctx is done. It returns once the initial subscription
// fails or ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	topics := r.hub.SubscribeTopicEvents()
	defer topics.Close()

	channels := []string{hostChannel(r.cfg.prefix, r.hostID)}
	for _, id := range r.hub.Topics() {
		r.watched[id] = true
		channels = append(channels, instanceChannel(r.cfg.prefix, id))
	}

	pubsub := r.client.Subscribe(ctx, channels...)
	defer pubsub.Close()
	// Wait for the confirmation so nothing published from here on is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to relay channels: %w", err)
	}
	msgs := pubsub.Channel()

	r.cfg.logger.Info("Relay started", "channels", len(channels))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-topics.C():
			r.follow(ctx, pubsub, ev)
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("relay subscription closed")
			}
			r.deliver(msg)
		}
	}
}

func (r *Relay) follow(ctx context.Context, pubsub *backend.PubSub, ev hub.TopicEvent[string]) {
	ch := instanceChannel(r.cfg.prefix, ev.Topic)
	var err error
	switch ev.Type {
	case hub.TopicCreated:
		r.watched[ev.Topic] = true
		err = pubsub.Subscribe(ctx, ch)
	case hub.TopicDeleted:
		delete(r.watched, ev.Topic)
		err = pubsub.Unsubscribe(ctx, ch)
	}
	if err != nil {
		r.cfg.logger.Warn("Failed to follow topic", "topic", ev.Topic, "event", ev.Type, "err", err)
	}
}

func (r *Relay) deliver(msg *backend.Message) {
	e, err := decode([]byte(msg.Payload))
	if err != nil {
		r.cfg.logger.Warn("Dropping undecodable message", "channel", msg.Channel, "err", err)
		return
	}
	if e.Origin == r.origin || e.Instance == nil {
		return
	}
	// A watched instance arrives on its own channel as well.
	if strings.HasPrefix(msg.Channel, hostChannel(r.cfg.prefix, "")) && r.watched[e.Instance.ID] {
		return
	}
	r.hub.Publish(e.Instance.ID, e.Instance)
}
