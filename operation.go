package transact

import (
	"fmt"

	"github.com/google/uuid"
)

// OpKind identifies the remote effect an Operation journals.
type OpKind int

const (
	OpCreate OpKind = iota
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Operation is one journaled remote effect within a Transaction. Operations
// are executed in append order and compensated in reverse append order.
type Operation struct {
	// ID is unique within the process and prefixed with the kind for
	// debuggability, e.g. "update_1b9d6bcd".
	ID string

	Kind  OpKind
	Table string

	// TargetID names the record an update or delete applies to. Creates
	// have no target until the store assigns one during execution.
	TargetID string

	// Payload is the data written by a create or update.
	Payload Record

	// PriorSnapshot is the caller-supplied state of the record before this
	// transaction. Rollback restores an update from it and recreates a
	// deleted record from it. It may be nil, in which case compensation of
	// this operation is reported as failed rather than silently skipped.
	PriorSnapshot Record

	// Executed is set once the remote call for this operation has returned
	// successfully.
	Executed bool

	// CompensationState is captured during execution and is non-nil exactly
	// when Executed is true.
	CompensationState *CompensationState

	// undone is claimed under the transaction lock before compensating, so
	// the reverse sweep and an in-flight execution that it overtook never
	// both compensate the same operation.
	undone bool
}

// CompensationState holds what execution learned that compensation needs.
type CompensationState struct {
	// CreatedID is the identifier the store assigned to a created record.
	// Deleting it is the only way to compensate a Create.
	CreatedID string `json:"created_id,omitempty"`

	// Result is the record the store returned for the call.
	Result Record `json:"result,omitempty"`

	// RecreatedID is set after rollback of a Delete: the identifier of the
	// replacement record. It necessarily differs from the original.
	RecreatedID string `json:"recreated_id,omitempty"`
}

func newOperation(kind OpKind, table, targetID string, payload, prior Record) *Operation {
	return &Operation{
		ID:            fmt.Sprintf("%s_%s", kind, uuid.New().String()[:8]),
		Kind:          kind,
		Table:         table,
		TargetID:      targetID,
		Payload:       payload,
		PriorSnapshot: prior,
	}
}
