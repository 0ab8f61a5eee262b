package transact

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TxState represents the lifecycle state of a Transaction.
type TxState int

const (
	StateOpen TxState = iota
	StateCommitting
	StateCommitted
	StateRollingBack
	StateRolledBack
	StateFailed
)

// String returns the string representation of the TxState.
func (s TxState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCommitting:
		return "committing"
	case StateCommitted:
		return "committed"
	case StateRollingBack:
		return "rolling_back"
	case StateRolledBack:
		return "rolled_back"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible. StateFailed
// is the terminal state of a rollback that finished with compensation
// failures; a clean rollback ends in StateRolledBack.
func (s TxState) Terminal() bool {
	return s == StateCommitted || s == StateRolledBack || s == StateFailed
}

// TransactionResult is the outcome of a Commit. It is the stable contract
// surrounding layers use to report outcomes: a transaction that failed and
// was compensated shows up as a single failed unit, never as an ambiguous
// partial success.
type TransactionResult struct {
	TransactionID     string           `json:"transaction_id"`
	Success           bool             `json:"success"`
	Operations        int              `json:"operations"`
	Duration          time.Duration    `json:"duration"`
	Errors            []OperationError `json:"errors"`
	RollbackPerformed bool             `json:"rollback_performed"`

	// RollbackErrors lists compensations that failed during an automatic
	// rollback. Warnings carries degradations that are not failures, such
	// as a deleted record recreated under a new identifier.
	RollbackErrors []OperationError `json:"rollback_errors,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
}

// StatusSnapshot is a point-in-time view of a Transaction. Taking one never
// mutates the transaction and is safe at any time, including mid-commit.
type StatusSnapshot struct {
	ID         string        `json:"id"`
	State      TxState       `json:"state"`
	Operations int           `json:"operations"`
	Executed   int           `json:"executed"`
	Duration   time.Duration `json:"duration"`
	Options    TxOptions     `json:"options"`
}

// Transaction is an ordered journal of operations against one RecordStore.
// Operations are appended while the transaction is open, executed in append
// order on Commit, and compensated in reverse append order if any of them
// fails. Transactions are created by a Coordinator; see Coordinator.Begin.
type Transaction struct {
	id     string
	store  RecordStore
	opts   TxOptions
	logger *zap.Logger

	mu           sync.Mutex
	state        TxState
	ops          []*Operation
	trace        []OpEvent
	warnings     []string
	rollbackErrs []OperationError
	compensated  bool
	rollbackDone chan struct{}
	createdAt    time.Time
	completedAt  time.Time
	timer        *time.Timer
}

func newTransaction(id string, store RecordStore, opts TxOptions, logger *zap.Logger) *Transaction {
	return &Transaction{
		id:        id,
		store:     store,
		opts:      opts,
		logger:    logger,
		state:     StateOpen,
		createdAt: time.Now(),
	}
}

// ID returns the coordinator-assigned transaction identifier.
func (t *Transaction) ID() string {
	return t.id
}

// Options returns the transaction's effective options.
func (t *Transaction) Options() TxOptions {
	return t.opts
}

// State returns the current lifecycle state.
func (t *Transaction) State() TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Create journals a record creation and returns the operation id. The store
// is not called until Commit.
func (t *Transaction) Create(table string, data Record) (string, error) {
	return t.append(newOperation(OpCreate, table, "", data, nil))
}

// Update journals a record update. prior is the record's state before this
// transaction; rollback restores it. It may be nil, in which case rollback
// of this operation is reported as failed rather than guessed at.
func (t *Transaction) Update(table, id string, data, prior Record) (string, error) {
	return t.append(newOperation(OpUpdate, table, id, data, prior))
}

// Delete journals a record deletion. prior is required to recreate the
// record on rollback; without it the deletion cannot be compensated and the
// failure is reported, not skipped.
func (t *Transaction) Delete(table, id string, prior Record) (string, error) {
	return t.append(newOperation(OpDelete, table, id, nil, prior))
}

func (t *Transaction) append(op *Operation) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateOpen {
		return "", fmt.Errorf("%w: cannot append %s operation in state %s", ErrNotOpen, op.Kind, t.state)
	}
	t.ops = append(t.ops, op)
	return op.ID, nil
}

// Commit executes the journal in append order. It returns an error only for
// the precondition violation of committing a transaction that is no longer
// open; remote-call failures are captured in the result, which then carries
// RollbackPerformed = true and the collected errors.
//
// Commit is callable at most once per transaction.
func (t *Transaction) Commit(ctx context.Context) (*TransactionResult, error) {
	t.mu.Lock()
	if t.state != StateOpen {
		state := t.state
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: state is %s", ErrAlreadyExecuted, state)
	}
	t.state = StateCommitting
	ops := t.ops
	t.mu.Unlock()

	start := time.Now()
	t.logger.Info("committing transaction",
		zap.String("transaction_id", t.id),
		zap.Int("operations", len(ops)))

	var errs []OperationError
	for _, op := range ops {
		// A timeout-triggered rollback may have taken over; issue no
		// further operations once the state has left Committing. The
		// interruption is transaction-level, so the error carries no
		// operation id: op itself was never attempted.
		if st := t.State(); st != StateCommitting {
			errs = append(errs, newOperationError("",
				fmt.Errorf("commit interrupted in state %s", st)))
			break
		}
		if err := t.executeOp(ctx, op); err != nil {
			errs = append(errs, newOperationError(op.ID, err))
			break
		}
	}

	result := &TransactionResult{
		TransactionID: t.id,
		Success:       len(errs) == 0,
		Operations:    len(ops),
		Errors:        errs,
	}

	if len(errs) > 0 {
		t.logger.Error("operation failed, compensating executed operations",
			zap.String("transaction_id", t.id),
			zap.String("operation_id", errs[0].OperationID),
			zap.String("error", errs[0].Reason))
		t.runRollback(ctx)
		result.RollbackPerformed = true
	} else if t.commitIfUninterrupted() {
		t.logger.Info("transaction committed",
			zap.String("transaction_id", t.id),
			zap.Int("operations", len(ops)))
	} else {
		// Every operation succeeded, but a rollback overtook the commit and
		// already compensated them. The terminal state belongs to the
		// rollback; never report this as a clean success.
		result.Success = false
		result.RollbackPerformed = true
		result.Errors = append(result.Errors, newOperationError("",
			fmt.Errorf("rollback took over before the transaction could commit")))
		t.logger.Warn("rollback overtook commit",
			zap.String("transaction_id", t.id))
	}

	t.mu.Lock()
	result.Duration = time.Since(start)
	result.RollbackErrors = append([]OperationError(nil), t.rollbackErrs...)
	result.Warnings = append([]string(nil), t.warnings...)
	t.mu.Unlock()

	return result, nil
}

// executeOp dispatches one operation to the store, retrying failed calls up
// to MaxRetries extra attempts, and captures the compensation state on
// success.
func (t *Transaction) executeOp(ctx context.Context, op *Operation) error {
	var (
		rec Record
		err error
	)
	for attempt := 0; ; attempt++ {
		switch op.Kind {
		case OpCreate:
			rec, err = t.store.Create(ctx, op.Table, op.Payload)
		case OpUpdate:
			rec, err = t.store.Update(ctx, op.Table, op.TargetID, op.Payload)
		case OpDelete:
			err = t.store.Delete(ctx, op.Table, op.TargetID)
		}
		if err == nil || attempt >= t.opts.MaxRetries {
			break
		}
		t.logger.Warn("operation attempt failed, retrying",
			zap.String("transaction_id", t.id),
			zap.String("operation_id", op.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	t.mu.Lock()

	if err != nil {
		t.trace = append(t.trace, OpEvent{OperationID: op.ID, Type: EventExecuteFailed, Err: err, At: time.Now()})
		t.mu.Unlock()
		return err
	}

	comp := &CompensationState{Result: rec}
	if op.Kind == OpCreate {
		comp.CreatedID = rec.SysID()
	}
	op.Executed = true
	op.CompensationState = comp
	t.trace = append(t.trace, OpEvent{OperationID: op.ID, Type: EventExecuted, At: time.Now()})

	// A rollback may have taken over while the store call was in flight.
	// Its reverse sweep saw the operation as not yet executed and skipped
	// it, so the record it just wrote would leak; undo it here.
	if t.compensated {
		op.undone = true
		t.mu.Unlock()
		t.undoOp(ctx, op)
		return fmt.Errorf("rollback took over while the operation was in flight")
	}
	t.mu.Unlock()
	return nil
}

// Rollback compensates every executed operation in reverse append order and
// reports whether all compensations succeeded. It never returns an error, so
// cleanup paths can always run. Calling it again after the first invocation,
// or on a terminal transaction, is a no-op that reports success.
func (t *Transaction) Rollback(ctx context.Context) bool {
	t.mu.Lock()
	if t.compensated || t.state.Terminal() {
		t.mu.Unlock()
		return true
	}
	t.mu.Unlock()

	return t.runRollback(ctx)
}

func (t *Transaction) runRollback(ctx context.Context) bool {
	t.mu.Lock()
	if t.compensated {
		// Another goroutine claimed the rollback, typically the
		// coordinator's timeout. Wait for its sweep so the caller sees the
		// complete outcome, not a rollback still in flight.
		done := t.rollbackDone
		t.mu.Unlock()
		if done != nil {
			<-done
		}
		t.mu.Lock()
		clean := len(t.rollbackErrs) == 0
		t.mu.Unlock()
		return clean
	}
	t.compensated = true
	t.state = StateRollingBack
	t.rollbackDone = make(chan struct{})
	done := t.rollbackDone
	ops := make([]*Operation, len(t.ops))
	copy(ops, t.ops)
	t.mu.Unlock()
	defer close(done)

	t.logger.Info("rolling back transaction", zap.String("transaction_id", t.id))

	// Best effort: one failed compensation never halts the rest of the
	// reverse sweep. Each operation is claimed under the lock so that an
	// execution finishing mid-sweep cannot be compensated twice.
	ok := true
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		t.mu.Lock()
		claimed := op.Executed && !op.undone
		if claimed {
			op.undone = true
		}
		t.mu.Unlock()
		if !claimed {
			continue
		}
		if !t.undoOp(ctx, op) {
			ok = false
		}
	}

	if ok {
		t.setTerminal(StateRolledBack)
	} else {
		t.setTerminal(StateFailed)
	}
	return ok
}

// undoOp compensates one executed operation and records the outcome in the
// trace and, on failure, in the rollback errors. It reports success.
func (t *Transaction) undoOp(ctx context.Context, op *Operation) bool {
	if err := t.compensateOp(ctx, op); err != nil {
		t.mu.Lock()
		t.rollbackErrs = append(t.rollbackErrs, newOperationError(op.ID, err))
		t.trace = append(t.trace, OpEvent{OperationID: op.ID, Type: EventCompensateFailed, Err: err, At: time.Now()})
		t.mu.Unlock()
		t.logger.Warn("compensation failed",
			zap.String("transaction_id", t.id),
			zap.String("operation_id", op.ID),
			zap.Error(err))
		return false
	}
	t.mu.Lock()
	t.trace = append(t.trace, OpEvent{OperationID: op.ID, Type: EventCompensated, At: time.Now()})
	t.mu.Unlock()
	return true
}

// compensateOp issues the reverse action for one executed operation.
func (t *Transaction) compensateOp(ctx context.Context, op *Operation) error {
	switch op.Kind {
	case OpCreate:
		return t.store.Delete(ctx, op.Table, op.CompensationState.CreatedID)

	case OpUpdate:
		if op.PriorSnapshot == nil {
			return ErrNoPriorSnapshot
		}
		_, err := t.store.Update(ctx, op.Table, op.TargetID, op.PriorSnapshot)
		return err

	case OpDelete:
		if op.PriorSnapshot == nil {
			return ErrNoPriorSnapshot
		}
		data := op.PriorSnapshot.Clone()
		delete(data, IDField)
		rec, err := t.store.Create(ctx, op.Table, data)
		if err != nil {
			return err
		}

		// The remote API cannot recreate a record under its old id. Surface
		// the identity loss instead of hiding it.
		t.mu.Lock()
		op.CompensationState.RecreatedID = rec.SysID()
		t.warnings = append(t.warnings, fmt.Sprintf(
			"operation %s: deleted record %s/%s recreated as %s; original identifier not preserved",
			op.ID, op.Table, op.TargetID, rec.SysID()))
		t.mu.Unlock()
		t.logger.Warn("recreated deleted record under a new identifier",
			zap.String("transaction_id", t.id),
			zap.String("operation_id", op.ID),
			zap.String("table", op.Table),
			zap.String("original_id", op.TargetID),
			zap.String("new_id", rec.SysID()))
		return nil
	}
	return nil
}

// setTerminal moves the transaction into a terminal state. Terminal states
// admit no further transitions; a second call is a no-op.
func (t *Transaction) setTerminal(state TxState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() {
		return
	}
	t.state = state
	t.completedAt = time.Now()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// commitIfUninterrupted atomically transitions Committing to Committed and
// reports whether the commit won. It loses when a rollback claimed the
// transaction while the final operation was still in flight.
func (t *Transaction) commitIfUninterrupted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.compensated || t.state != StateCommitting {
		return false
	}
	t.state = StateCommitted
	t.completedAt = time.Now()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	return true
}

// armTimeout schedules f once the transaction's timeout elapses. The timer
// is stopped when the transaction reaches a terminal state.
func (t *Transaction) armTimeout(f func()) {
	if t.opts.Timeout <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return
	}
	t.timer = time.AfterFunc(t.opts.Timeout, f)
}

// completedBefore reports whether the transaction is terminal and finished
// before the cutoff. Used by Coordinator.Cleanup.
func (t *Transaction) completedBefore(cutoff time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Terminal() && t.completedAt.Before(cutoff)
}

// Status returns a point-in-time snapshot of the transaction.
func (t *Transaction) Status() StatusSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	executed := 0
	for _, op := range t.ops {
		if op.Executed {
			executed++
		}
	}
	duration := time.Since(t.createdAt)
	if !t.completedAt.IsZero() {
		duration = t.completedAt.Sub(t.createdAt)
	}
	return StatusSnapshot{
		ID:         t.id,
		State:      t.state,
		Operations: len(t.ops),
		Executed:   executed,
		Duration:   duration,
		Options:    t.opts,
	}
}

// Operations returns the journal in append order.
func (t *Transaction) Operations() []*Operation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Operation(nil), t.ops...)
}

// Trace returns the execution trace accumulated so far.
func (t *Transaction) Trace() []OpEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]OpEvent(nil), t.trace...)
}
