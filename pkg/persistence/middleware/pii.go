package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/tsw/pkg/domain"
	"github.com/aretw0/tsw/pkg/ports"
)

type piiMiddleware struct {
	ports.InstanceStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that replaces every match of the
// patterns in event content with domain.Redacted before it is stored.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.InstanceStore) ports.InstanceStore {
		return &piiMiddleware{InstanceStore: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) SaveEventAndInstance(ctx context.Context, ev *domain.Event, inst *domain.Instance) (*domain.Instance, error) {
	return m.InstanceStore.SaveEventAndInstance(ctx, m.mask(ev), inst)
}

func (m *piiMiddleware) Update(ctx context.Context, id string, fn func(*domain.Instance) (*domain.Event, error)) (*domain.Instance, error) {
	return m.InstanceStore.Update(ctx, id, func(inst *domain.Instance) (*domain.Event, error) {
		ev, err := fn(inst)
		if err != nil || ev == nil {
			return ev, err
		}
		return m.mask(ev), nil
	})
}

// mask returns a copy so the caller's event keeps its content.
func (m *piiMiddleware) mask(ev *domain.Event) *domain.Event {
	masked := *ev
	for _, p := range m.patterns {
		masked.Content = p.ReplaceAllString(masked.Content, domain.Redacted)
	}
	return &masked
}
