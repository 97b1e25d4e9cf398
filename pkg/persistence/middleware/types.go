// Package middleware wraps a SchedulerStore with cross-cutting behavior
// such as snapshot encryption at rest.
package middleware

import "github.com/aretw0/stanza/pkg/ports"

// Middleware allows wrapping a SchedulerStore to add behavior.
type Middleware func(ports.SchedulerStore) ports.SchedulerStore

// Wrap applies middlewares to a store, first in the list outermost.
func Wrap(store ports.SchedulerStore, mws ...Middleware) ports.SchedulerStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
