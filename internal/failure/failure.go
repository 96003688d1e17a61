package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the shell can decide whether to continue.
type Kind int

const (
	Unknown    Kind = iota
	Transport       // open/read/write on the serial channel
	RemoteCall      // device output could not be parsed or reported an exception
	Path            // not found, wrong type, already exists
	Timeout         // no terminator within the bound
	Transfer        // a bulk transfer stopped part way; destination is untrustworthy
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "transport"
	case RemoteCall:
		return "remote call"
	case Path:
		return "path"
	case Timeout:
		return "timeout"
	case Transfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Op names the operation, Path the offending
// path when there is one.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " '" + e.Path + "'"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a classified error. err may be nil.
func New(kind Kind, op, path string, err error) error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Errorf is New with a formatted cause.
func Errorf(kind Kind, op, path, format string, args ...any) error {
	return New(kind, op, path, fmt.Errorf(format, args...))
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
