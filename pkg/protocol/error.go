package protocol

import (
	"errors"
	"fmt"
)

// Error exposes methods useful for categorizing errors returned by snippet RPCs.
type Error interface {
	error

	// MayHaveSucceeded returns true if the Error was triggered by an RPC that might have reached
	// the Bluetooth stack anyway. For example, if a connect request times out, the stack may still
	// complete the connection and report it through an event.
	MayHaveSucceeded() bool

	// Temporary returns true if the Error might be the result of a transient condition, such as
	// a discovery request issued while another discovery is still running.
	Temporary() bool
}

var (
	// ErrUnknownMethod indicates the client invoked an RPC that no loaded snippet provides.
	ErrUnknownMethod = NewError("unknown rpc method", false, false)
	// ErrBusy indicates another RPC is still executing on the session.
	ErrBusy = NewError("snippet busy executing another rpc", false, true)
	// ErrSessionClosed indicates the server was shut down while an RPC was pending.
	ErrSessionClosed = NewError("snippet session closed", true, false)
	// ErrRPCTimeout indicates an RPC did not complete before the server's deadline. The
	// operation keeps running in the background and may still complete.
	ErrRPCTimeout = NewError("rpc timed out", true, false)
	// ErrBadHandshake indicates the client did not open the session with a valid handshake.
	ErrBadHandshake = errors.New("invalid handshake")
	// ErrBadRequest indicates a request line could not be decoded.
	ErrBadRequest = errors.New("invalid request")
)

type CommandError struct {
	Err               error
	PossibleSuccess   bool
	PossibleTemporary bool
}

func NewError(message string, mayHaveSucceeded bool, temporary bool) error {
	return &CommandError{Err: errors.New(message), PossibleSuccess: mayHaveSucceeded, PossibleTemporary: temporary}
}

func (e *CommandError) Error() string {
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (e *CommandError) MayHaveSucceeded() bool {
	return e.PossibleSuccess
}

func (e *CommandError) Temporary() bool {
	return e.PossibleTemporary
}

// ParamError reports a missing or mistyped positional RPC parameter.
type ParamError struct {
	Method   string
	Index    int
	Expected string
	Missing  bool
}

func (e *ParamError) Error() string {
	if e.Missing {
		return fmt.Sprintf("%s: missing parameter %d (%s)", e.Method, e.Index, e.Expected)
	}
	return fmt.Sprintf("%s: parameter %d must be a %s", e.Method, e.Index, e.Expected)
}

func (e *ParamError) MayHaveSucceeded() bool {
	return false
}

func (e *ParamError) Temporary() bool {
	return false
}

// MayHaveSucceeded returns true if err is an Error that indicates the RPC may have been
// executed even though the client did not receive a confirmation.
func MayHaveSucceeded(err error) bool {
	var commErr Error
	if errors.As(err, &commErr) && commErr.MayHaveSucceeded() {
		return true
	}
	return false
}

// Temporary returns true if err is an Error that indicates the RPC failed due to possibly
// transient conditions that do not require user action to resolve.
func Temporary(err error) bool {
	var commErr Error
	if errors.As(err, &commErr) && commErr.Temporary() {
		return true
	}
	return false
}

// ShouldRetry returns true if the harness should retry the RPC that triggered an error.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var e Error
	if errors.As(err, &e) {
		if e.MayHaveSucceeded() {
			return false
		}
		if e.Temporary() {
			return true
		}
	}
	return false
}
