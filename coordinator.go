package transact

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tidwall/btree"
	"go.uber.org/zap"
)

// Stats is a point-in-time summary of the coordinator's registry. Every
// field is derived by iterating the registry, so there are no counters that
// can drift out of sync.
type Stats struct {
	Total      int  `json:"total"`
	Active     int  `json:"active"`
	Committed  int  `json:"completed"`
	RolledBack int  `json:"rolled_back"`
	Failed     int  `json:"failed"`
	Enabled    bool `json:"enabled"`
}

// Coordinator is the process-wide transaction registry. It creates
// transactions, arms their timeouts, aggregates statistics, and can
// force-rollback everything in flight on shutdown.
//
// Lookup by id is O(1) through a concurrent map; a separate sequence-keyed
// index preserves insertion order for iteration.
type Coordinator struct {
	opts    coordinatorOptions
	logger  *zap.Logger
	enabled atomic.Bool

	byID *xsync.MapOf[string, *Transaction]

	mu    sync.Mutex
	order *btree.Map[uint64, *Transaction]
	seq   uint64
}

// NewCoordinator creates an enabled coordinator.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	var o coordinatorOptions
	for _, opt := range opts {
		opt(&o)
	}
	repair(&o)

	c := &Coordinator{
		opts:   o,
		logger: o.logger,
		byID:   xsync.NewMapOf[string, *Transaction](),
		order:  btree.NewMap[uint64, *Transaction](16),
	}
	c.enabled.Store(true)
	return c
}

// Begin creates and registers a transaction bound to the given record store.
// Caller options are merged over the coordinator's defaults; a nil opts uses
// the defaults as-is. If the effective timeout is positive, a deferred check
// is armed that rolls the transaction back should it still be non-terminal
// at the deadline. Begin never blocks on the timer.
func (c *Coordinator) Begin(store RecordStore, opts *TxOptions) (*Transaction, error) {
	if !c.enabled.Load() {
		return nil, ErrDisabled
	}

	o := c.opts.defaults.merge(opts).withDefaults()
	id := uuid.New().String()
	tx := newTransaction(id, store, o, c.logger)

	c.byID.Store(id, tx)
	c.mu.Lock()
	c.seq++
	c.order.Set(c.seq, tx)
	c.mu.Unlock()

	tx.armTimeout(func() {
		c.expire(tx)
	})

	c.logger.Info("transaction started",
		zap.String("transaction_id", id),
		zap.String("name", o.Name),
		zap.Duration("timeout", o.Timeout))
	return tx, nil
}

// expire is the deferred timeout check. The rollback below is a no-op if the
// transaction reached a terminal state between the check and the call.
func (c *Coordinator) expire(tx *Transaction) {
	if tx.State().Terminal() {
		return
	}
	c.logger.Warn("transaction exceeded its timeout, coordinator forcing rollback",
		zap.String("transaction_id", tx.ID()),
		zap.Duration("timeout", tx.Options().Timeout))
	tx.Rollback(context.Background())
}

// GetTransaction looks up a transaction by id.
func (c *Coordinator) GetTransaction(id string) (*Transaction, bool) {
	return c.byID.Load(id)
}

// ActiveTransactions returns every non-terminal transaction in insertion
// order.
func (c *Coordinator) ActiveTransactions() []*Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*Transaction
	c.order.Scan(func(_ uint64, tx *Transaction) bool {
		if !tx.State().Terminal() {
			out = append(out, tx)
		}
		return true
	})
	return out
}

// RollbackAll rolls back every active transaction, tolerating individual
// failures, and returns how many rollbacks reported success. Intended for
// orderly shutdown.
func (c *Coordinator) RollbackAll(ctx context.Context) int {
	count := 0
	for _, tx := range c.ActiveTransactions() {
		if tx.Rollback(ctx) {
			count++
		}
	}
	c.logger.Info("rolled back active transactions", zap.Int("count", count))
	return count
}

// Cleanup evicts terminal transactions older than the retention window and
// returns how many were removed. Active transactions are never evicted.
// Safe to call repeatedly and concurrently with Begin.
func (c *Coordinator) Cleanup() int {
	cutoff := time.Now().Add(-c.opts.retention)

	c.mu.Lock()
	var evict []uint64
	c.order.Scan(func(seq uint64, tx *Transaction) bool {
		if tx.completedBefore(cutoff) {
			evict = append(evict, seq)
		}
		return true
	})
	for _, seq := range evict {
		if tx, ok := c.order.Get(seq); ok {
			c.order.Delete(seq)
			c.byID.Delete(tx.ID())
		}
	}
	c.mu.Unlock()

	if len(evict) > 0 {
		c.logger.Debug("evicted completed transactions", zap.Int("count", len(evict)))
	}
	return len(evict)
}

// Stats summarizes the registry.
func (c *Coordinator) Stats() Stats {
	stats := Stats{Enabled: c.enabled.Load()}
	c.byID.Range(func(_ string, tx *Transaction) bool {
		stats.Total++
		switch tx.State() {
		case StateCommitted:
			stats.Committed++
		case StateRolledBack:
			stats.RolledBack++
		case StateFailed:
			stats.Failed++
		default:
			stats.Active++
		}
		return true
	})
	return stats
}

// Enabled reports whether Begin currently accepts new transactions.
func (c *Coordinator) Enabled() bool {
	return c.enabled.Load()
}

// SetEnabled flips the process-wide enable flag. Disabling does not affect
// transactions that have already begun.
func (c *Coordinator) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
	c.logger.Info("coordinator enabled flag changed", zap.Bool("enabled", enabled))
}
