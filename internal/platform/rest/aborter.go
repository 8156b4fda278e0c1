package rest

import (
	"context"
	"sync"
)

// Aborter serializes search-as-you-type lookups: starting a new lookup cancels
// the previous in-flight one so a slow stale response can never overwrite the
// result of a newer query.
type Aborter struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

// Start cancels any in-flight lookup and returns a fresh context derived from
// parent for the next one.
func (a *Aborter) Start(parent context.Context) context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel
	return ctx
}

// Stop cancels the current in-flight lookup, if any.
func (a *Aborter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}
