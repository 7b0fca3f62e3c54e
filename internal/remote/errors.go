// ABOUTME: Error taxonomy for remote calls
// ABOUTME: Connectivity, remote (auth, malformed) and ignorable conflict failures, matched with errors.Is

package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectivity means the server could not be reached, or offline mode is on.
	ErrConnectivity = errors.New("server unreachable")

	// ErrRemote means the server answered with an error.
	ErrRemote = errors.New("remote error")

	// ErrAuth is a login failure. It also matches ErrRemote.
	ErrAuth = errors.New("authentication failed")

	// ErrMalformed is an unparseable response. It also matches ErrRemote.
	ErrMalformed = errors.New("malformed response")

	// ErrConflictIgnorable means a mutation targeted an article the server no
	// longer has. Callers treat it as delivered.
	ErrConflictIgnorable = errors.New("article no longer exists")
)

// Error describes a failed remote operation.
type Error struct {
	Op      string
	Kind    error
	Message string
	Err     error
}

// NewError builds an Error of the given kind.
func NewError(op string, kind error, message string, err error) *Error {
	return &Error{Op: op, Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Is lets auth and malformed failures match ErrRemote.
func (e *Error) Is(target error) bool {
	return target == ErrRemote && (e.Kind == ErrAuth || e.Kind == ErrMalformed)
}

// IsRetriable reports whether a failed call may succeed when repeated later.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrConnectivity) || (errors.Is(err, ErrRemote) && !errors.Is(err, ErrAuth))
}
