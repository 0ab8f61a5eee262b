package transact

import (
	"fmt"
	"strings"
	"time"
)

// OpEventType labels one entry in a transaction's execution trace.
type OpEventType int

const (
	EventExecuted OpEventType = iota
	EventExecuteFailed
	EventCompensated
	EventCompensateFailed
)

// String returns the string representation of the OpEventType.
func (t OpEventType) String() string {
	switch t {
	case EventExecuted:
		return "executed"
	case EventExecuteFailed:
		return "execute_failed"
	case EventCompensated:
		return "compensated"
	case EventCompensateFailed:
		return "compensate_failed"
	default:
		return fmt.Sprintf("unknown OpEventType: %d", int(t))
	}
}

// OpEvent records the outcome of one store call made on behalf of an
// operation, during execution or compensation.
type OpEvent struct {
	OperationID string
	Type        OpEventType
	Err         error
	At          time.Time
}

// String implements the fmt.Stringer interface for OpEvent.
func (e OpEvent) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.OperationID, e.Type, e.Err)
	}
	return fmt.Sprintf("%s %s", e.OperationID, e.Type)
}

// TracePretty is a helper for pretty-printing a transaction's trace.
type TracePretty struct {
	TransactionID string
	Events        []OpEvent
}

// String implements the fmt.Stringer interface for TracePretty.
func (p TracePretty) String() string {
	var sb strings.Builder
	sb.WriteString("TRANSACTION TRACE:\n")
	sb.WriteString(fmt.Sprintf("transaction id: %s\n", p.TransactionID))
	sb.WriteString(fmt.Sprintf("events (%d total):\n", len(p.Events)))
	for i, event := range p.Events {
		sb.WriteString(fmt.Sprintf("%03d %s\n", i+1, event.String()))
	}
	return sb.String()
}
