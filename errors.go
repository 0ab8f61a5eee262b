package transact

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpen is returned when an operation is appended to a transaction
	// that has already started committing or finished.
	ErrNotOpen = errors.New("transaction is not open")

	// ErrAlreadyExecuted is returned by Commit when the transaction has
	// already been committed or rolled back. This is a precondition
	// violation; no remote call is made.
	ErrAlreadyExecuted = errors.New("transaction already executed")

	// ErrDisabled is returned by Begin when the coordinator is disabled.
	ErrDisabled = errors.New("transaction coordinator is disabled")

	// ErrNoPriorSnapshot marks a compensation that could not run because the
	// caller queued an update or delete without the record's prior state.
	ErrNoPriorSnapshot = errors.New("no prior snapshot available for compensation")
)

// OperationError ties a remote-call failure to the journaled operation that
// caused it. It appears in TransactionResult.Errors for execution failures
// and in TransactionResult.RollbackErrors for compensation failures.
type OperationError struct {
	OperationID string `json:"operation_id"`
	Reason      string `json:"error"`

	err error
}

func newOperationError(opID string, err error) OperationError {
	return OperationError{OperationID: opID, Reason: err.Error(), err: err}
}

func (e OperationError) Error() string {
	return fmt.Sprintf("operation %s: %s", e.OperationID, e.Reason)
}

// Unwrap exposes the underlying store error for errors.Is / errors.As.
func (e OperationError) Unwrap() error {
	return e.err
}
