/*
Package hub implements a generic, topic-keyed publish/subscribe primitive.

Every subscription owns a bounded queue (DefaultCapacity). Publish never blocks:
when a queue is full the newest value is dropped and a warning is logged, so
delivery is at-most-once and lossy under pressure. Callers are expected to
treat values as idempotent snapshots and to pass a fallback Supplier to
WaitFor that re-reads the current value.

The first subscription on a topic and the close of its last subscription are
reported on a separate feed (SubscribeTopicEvents), which lets a relay learn
which topics currently have local interest.

# Usage

	h := hub.New[string, *domain.Instance]()
	sub := h.SubscribeTopic(id)
	defer sub.Close()

	inst, err := sub.WaitFor(ctx, 30*time.Second, func(i *domain.Instance) bool {
		return i.State == domain.StateWorldMenu
	}, reload)
*/
package hub
