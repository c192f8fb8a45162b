package ast

import "fmt"

// InvariantError reports a violated internal assumption. Passes panic with
// it deep inside a visit; the compiler recovers it at the phase boundary.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "internal invariant violated: " + e.Msg }

func NewInvariantError(format string, args ...any) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}
