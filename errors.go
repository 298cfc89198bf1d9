package surge

import "fmt"

// ErrorKind tags an error with the taxonomy from the connection subsystem
// design: callers can switch on Kind() instead of parsing messages.
type ErrorKind int

const (
	// UnknownError is the fallback kind for errors with no sharper home.
	UnknownError ErrorKind = iota
	// InvalidArgument covers a bad option, bad bus event name, or a
	// wildcard client id.
	InvalidArgument
	// InvalidStateTransition covers a disallowed connection state move.
	InvalidStateTransition
	// ConnectionError covers transport-level failure (DNS, TCP, TLS,
	// timeout); drives the Disconnected/Suspended retry path.
	ConnectionError
	// AuthFailure covers rejected credentials; terminal Failed, no
	// fallback retries.
	AuthFailure
	// ServerError covers a 5xx or server-rejected frame; retryable.
	ServerError
	// ProtocolViolation covers a malformed frame, a bad ack serial, or
	// an unexpectedly denied resume.
	ProtocolViolation
	// ConnectionReset covers pending frames rejected because the
	// connection generation changed underneath them.
	ConnectionReset
	// Timeout covers a deadline exceeded (close, retry budget).
	Timeout
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case InvalidStateTransition:
		return "InvalidStateTransition"
	case ConnectionError:
		return "ConnectionError"
	case AuthFailure:
		return "AuthFailure"
	case ServerError:
		return "ServerError"
	case ProtocolViolation:
		return "ProtocolViolation"
	case ConnectionReset:
		return "ConnectionReset"
	case Timeout:
		return "Timeout"
	default:
		return "UnknownError"
	}
}

// Error is the concrete error type surge returns. It carries a Kind so
// callers can branch on taxonomy and an optional wrapped cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// NewError builds an *Error of the given kind, optionally wrapping a cause
// or formatting a message. It mirrors the teacher's NewError(code, ...)
// shape but returns a typed *Error so errors.As/errors.Is work.
func NewError(kind ErrorKind, args ...interface{}) *Error {
	e := &Error{Kind: kind}
	for _, a := range args {
		switch v := a.(type) {
		case error:
			e.Cause = v
		case string:
			e.Message = v
		default:
			e.Message = fmt.Sprint(v)
		}
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Message != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, NewError(SomeKind)) match purely on Kind, which is
// how callers are expected to compare against the taxonomy.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}
