package transact

import (
	"time"

	"go.uber.org/zap"
)

// Transaction option defaults.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultRetention = 30 * time.Minute
)

// TxOptions configures a single Transaction. Zero-valued fields are filled
// with defaults when the transaction is begun.
type TxOptions struct {
	// Timeout bounds how long the transaction may stay non-terminal before
	// the coordinator forces a rollback. Negative disables the timer.
	Timeout time.Duration

	// MaxRetries is the number of additional attempts for a failing store
	// call during execution. Compensation calls are never retried.
	MaxRetries int

	// AutoCommit is carried for surrounding layers; the core never commits
	// implicitly, so commit stays explicit regardless.
	AutoCommit bool

	// IsolationHint is advisory only. The core performs no locking.
	IsolationHint string

	// Name labels the transaction in logs and status output.
	Name string
}

// merge overlays the set fields of override on top of o.
func (o TxOptions) merge(override *TxOptions) TxOptions {
	if override == nil {
		return o
	}
	if override.Timeout != 0 {
		o.Timeout = override.Timeout
	}
	if override.MaxRetries != 0 {
		o.MaxRetries = override.MaxRetries
	}
	if override.AutoCommit {
		o.AutoCommit = true
	}
	if override.IsolationHint != "" {
		o.IsolationHint = override.IsolationHint
	}
	if override.Name != "" {
		o.Name = override.Name
	}
	return o
}

// withDefaults fills any field still at its zero value.
func (o TxOptions) withDefaults() TxOptions {
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.IsolationHint == "" {
		o.IsolationHint = "none"
	}
	return o
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*coordinatorOptions)

type coordinatorOptions struct {
	logger    *zap.Logger
	retention time.Duration
	defaults  TxOptions
}

// WithLogger sets the logger used by the coordinator and every transaction
// it begins. The default is a no-op logger.
func WithLogger(logger *zap.Logger) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.logger = logger
	}
}

// WithRetention sets how long completed transactions stay in the registry
// before Cleanup may evict them.
func WithRetention(retention time.Duration) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.retention = retention
	}
}

// WithDefaultTxOptions sets the base options Begin merges caller options over.
func WithDefaultTxOptions(defaults TxOptions) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.defaults = defaults
	}
}

func repair(o *coordinatorOptions) {
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.retention <= 0 {
		o.retention = DefaultRetention
	}
}
