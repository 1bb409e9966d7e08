package redis

import (
	"context"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/tsw/pkg/domain"
)

// Notifier implements ports.Notifier by publishing CBOR envelopes.
// Instance snapshots go to the instance and host channels, where a Relay in
// another process picks them up. Everything also goes to the notify channel.
// Calls never block: a full queue drops the notification.
type Notifier struct {
	client *backend.Client
	origin string
	cfg    settings
	queue  chan *envelope
}

// NewNotifier creates a Notifier. origin identifies this process so its own
// Relay can ignore what it published.
func NewNotifier(client *backend.Client, origin string, opts ...Option) *Notifier {
	cfg := newSettings(opts)
	cfg.logger = cfg.logger.With("component", "redis-notifier")
	return &Notifier{
		client: client,
		origin: origin,
		cfg:    cfg,
		queue:  make(chan *envelope, cfg.queueSize),
	}
}

// InstanceChanged queues a snapshot for publication.
func (n *Notifier) InstanceChanged(inst *domain.Instance) {
	n.enqueue(&envelope{Origin: n.origin, Instance: inst})
}

// EventRecorded queues an event for publication.
func (n *Notifier) EventRecorded(ev *domain.Event) {
	n.enqueue(&envelope{Origin: n.origin, Event: ev})
}

func (n *Notifier) enqueue(e *envelope) {
	select {
	case n.queue <- e:
	default:
		n.cfg.logger.Warn("Notification queue full, dropping message")
		if n.cfg.onDrop != nil {
			n.cfg.onDrop()
		}
	}
}

// Run publishes queued notifications until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-n.queue:
			n.publish(ctx, e)
		}
	}
}

// Flush publishes whatever is queued and returns. Short-lived processes call
// it instead of Run before exiting.
func (n *Notifier) Flush(ctx context.Context) {
	for {
		select {
		case e := <-n.queue:
			n.publish(ctx, e)
		default:
			return
		}
	}
}

func (n *Notifier) publish(ctx context.Context, e *envelope) {
	data, err := encode(e)
	if err != nil {
		n.cfg.logger.Error("Failed to encode notification", "err", err)
		return
	}

	var channels []string
	if e.Instance != nil {
		channels = []string{
			instanceChannel(n.cfg.prefix, e.Instance.ID),
			hostChannel(n.cfg.prefix, e.Instance.HostID),
			notifyChannel(n.cfg.prefix),
		}
	} else {
		channels = []string{notifyChannel(n.cfg.prefix)}
	}

	pipe := n.client.Pipeline()
	for _, ch := range channels {
		pipe.Publish(ctx, ch, data)
	}
	if _, err := pipe.Exec(ctx); err != nil && ctx.Err() == nil {
		n.cfg.logger.Warn("Failed to publish notification", "err", err)
	}
}
