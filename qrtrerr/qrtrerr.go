// Package qrtrerr defines the typed error categories the name service
// daemon distinguishes, per spec §7. Errors never cross the datagram
// boundary: each inbound packet is a transaction with respect to these
// categories, and any state mutated before an error occurred stays in
// place, since registry invariants hold after any prefix of a handler.
package qrtrerr

import "fmt"

// InvalidArgument reports a NEW_SERVER (or PUBLISH) with service or port
// zero, rejected at the registry boundary.
type InvalidArgument struct {
	Reason string
}

func (e *InvalidArgument) Error() string { return "invalid argument: " + e.Reason }

// NotFound reports a DEL_SERVER (or legacy BYE) for an (node, port) that
// has no registered record.
type NotFound struct {
	Node, Port uint32
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("not found: (%d, %d)", e.Node, e.Port)
}

// TransportError wraps a send/recv failure. Recv failures are fatal to
// the event loop; send failures are logged and the handler continues.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// ResourceExhausted reports an allocation failure while growing the
// registry or subscription table. The offending operation is abandoned;
// the daemon continues running.
type ResourceExhausted struct {
	Reason string
}

func (e *ResourceExhausted) Error() string { return "resource exhausted: " + e.Reason }
