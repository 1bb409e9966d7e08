package redis

import (
	"log/slog"

	"github.com/aretw0/tsw/internal/logging"
)

// DefaultQueueSize bounds the notifications waiting to be published.
const DefaultQueueSize = 256

type settings struct {
	prefix    string
	queueSize int
	onDrop    func()
	logger    *slog.Logger
}

func newSettings(opts []Option) settings {
	s := settings{
		prefix:    DefaultPrefix,
		queueSize: DefaultQueueSize,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures a Notifier or a Relay.
type Option func(*settings)

// WithPrefix overrides DefaultPrefix. Processes that talk to each other must agree on it.
func WithPrefix(prefix string) Option {
	return func(s *settings) {
		s.prefix = prefix
	}
}

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithDropHook is called when a notification is dropped on a full queue.
func WithDropHook(fn func()) Option {
	return func(s *settings) {
		s.onDrop = fn
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}
