package transact

import (
	"context"
	"sync"
)

// The package-level coordinator is a convenience for callers that do not
// need their own instance. Anything beyond begin/lookup/shutdown should
// construct a Coordinator explicitly and inject it.

var (
	defaultOnce sync.Once
	defaultCo   *Coordinator
)

// Default returns the shared package-level coordinator.
func Default() *Coordinator {
	defaultOnce.Do(func() {
		defaultCo = NewCoordinator()
	})
	return defaultCo
}

// Begin starts a transaction on the default coordinator.
func Begin(store RecordStore, opts *TxOptions) (*Transaction, error) {
	return Default().Begin(store, opts)
}

// RollbackAll rolls back every active transaction on the default
// coordinator.
func RollbackAll(ctx context.Context) int {
	return Default().RollbackAll(ctx)
}
