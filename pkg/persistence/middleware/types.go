package middleware

import "github.com/aretw0/tsw/pkg/ports"

// Middleware allows wrapping an InstanceStore to add behavior.
type Middleware func(ports.InstanceStore) ports.InstanceStore

// Chain wraps store with mws. The first middleware is the outermost.
func Chain(store ports.InstanceStore, mws ...Middleware) ports.InstanceStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
