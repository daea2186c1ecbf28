package common

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	NoError ErrorKind = iota
	ConfigurationError
	ResourceError
	CommunicationError
	ValidationError
	ReportError
)

var kindNames = map[ErrorKind]string{
	NoError:            "ok",
	ConfigurationError: "configuration error",
	ResourceError:      "resource error",
	CommunicationError: "communication error",
	ValidationError:    "validation error",
	ReportError:        "report error",
}

func (k ErrorKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// Error attaches a category to an underlying error.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Errorf(kind ErrorKind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap returns nil for a nil err. An err that already carries a kind
// keeps it.
func Wrap(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf treats uncategorized errors as substrate failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return NoError
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return CommunicationError
}
