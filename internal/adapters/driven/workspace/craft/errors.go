package craft

import (
	"errors"
	"fmt"
)

// ProtocolError indicates the workspace returned a reply whose shape cannot
// be used: unparseable payload, missing id, or a tool-level error. It is not
// retryable within a cycle.
type ProtocolError struct {
	Tool   string
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("craft: protocol error in %s: %s", e.Tool, e.Detail)
}

// TransportError indicates the workspace could not be reached or timed out.
// The sync engine backs off and retries on a later cycle.
type TransportError struct {
	Tool string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("craft: transport error in %s: %v", e.Tool, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsProtocolError checks whether the error is a workspace protocol fault.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsTransportError checks whether the error is a transient transport fault.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
