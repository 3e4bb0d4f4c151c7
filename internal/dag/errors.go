package dag

import (
	"errors"
	"fmt"
)

// Error kinds returned by Graph and CondensedNode. Match them with errors.Is.
var (
	ErrInvalidConstruction = errors.New("invalid construction")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUnknownNode         = errors.New("unknown node")
	ErrDuplicateGroupID    = errors.New("duplicate group id")
	ErrCycleRejected       = errors.New("cycle rejected")
	ErrInvalidOperation    = errors.New("invalid operation")
)

// Error is a failed mutation or query. The structure it was called on is
// left in its last valid state.
type Error struct {
	Op   string // operation that failed, e.g. "add edge"
	Kind error  // one of the Err* kinds above
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
