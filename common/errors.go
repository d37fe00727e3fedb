package common

import (
	"reflect"

	"github.com/JeffreyRichter/enum/enum"
	"github.com/pkg/errors"
)

var EErrorKind = ErrorKind(0)

// ErrorKind classifies the failures that can cross a component boundary in the
// grid core: scheduler admission, worker execution, checkpoint progress, and
// the LOB spill buffer all report through this single closed enumeration
// rather than distinct sentinel error types per package.
type ErrorKind uint8

func (ErrorKind) DeploymentMissing() ErrorKind     { return ErrorKind(0) }
func (ErrorKind) DeserializationFailed() ErrorKind { return ErrorKind(1) }
func (ErrorKind) ExecutionRejected() ErrorKind     { return ErrorKind(2) }
func (ErrorKind) PartitionsLost() ErrorKind        { return ErrorKind(3) }
func (ErrorKind) MasterNodeLeft() ErrorKind        { return ErrorKind(4) }
func (ErrorKind) Timeout() ErrorKind               { return ErrorKind(5) }
func (ErrorKind) StreamUnsupported() ErrorKind     { return ErrorKind(6) }
func (ErrorKind) TypeUnsupported() ErrorKind       { return ErrorKind(7) }
func (ErrorKind) Closed() ErrorKind                { return ErrorKind(8) }
func (ErrorKind) OutOfRange() ErrorKind            { return ErrorKind(9) }
func (ErrorKind) IoFailed() ErrorKind               { return ErrorKind(10) }
func (ErrorKind) CheckpointFailed() ErrorKind      { return ErrorKind(11) }
func (ErrorKind) JobReplyFailed() ErrorKind        { return ErrorKind(12) }

func (k ErrorKind) String() string {
	return enum.StringInt(k, reflect.TypeOf(k))
}

// GridError is the single error type that crosses component boundaries. It
// pairs a closed ErrorKind with an optional wrapped cause so that callers can
// both switch on Kind() and still Unwrap() to the underlying error via
// github.com/pkg/errors.
type GridError struct {
	kind  ErrorKind
	msg   string
	cause error
}

func NewGridError(kind ErrorKind, msg string) *GridError {
	return &GridError{kind: kind, msg: msg}
}

func WrapGridError(kind ErrorKind, msg string, cause error) *GridError {
	return &GridError{kind: kind, msg: msg, cause: cause}
}

func (e *GridError) Kind() ErrorKind { return e.kind }

func (e *GridError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *GridError) Unwrap() error { return e.cause }

// Is makes errors.Is match any *GridError target of the same kind, e.g.
// errors.Is(err, NewGridError(EErrorKind.PartitionsLost(), "")). Targets
// that are not *GridError never match; use IsKind to test against a bare
// ErrorKind.
func (e *GridError) Is(target error) bool {
	other, ok := target.(*GridError)
	if !ok {
		return false
	}
	return e.kind == other.kind
}

// IsKind reports whether err is a *GridError of the given kind, walking the
// wrapped-cause chain via errors.As.
func IsKind(err error, kind ErrorKind) bool {
	var ge *GridError
	if !errors.As(err, &ge) {
		return false
	}
	return ge.kind == kind
}
