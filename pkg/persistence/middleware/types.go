// Package middleware decorates a ports.StateStore with data protection:
// masking of personal fields and envelope encryption of whole workflows.
package middleware

import "github.com/aretw0/clara/pkg/ports"

// Middleware wraps a StateStore to add behavior.
type Middleware func(ports.StateStore) ports.StateStore

// Chain applies mws to store. The first middleware is the outermost.
func Chain(store ports.StateStore, mws ...Middleware) ports.StateStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
