// Package errors implements coded errors that can be sent across the wire
// and reconstructed on the other side.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

const (
	// UnknownModule is the module name used when the module is unknown.
	UnknownModule = "unknown"

	// CodeNoError is the reserved "no error" code.
	CodeNoError = 0
)

var errUnknownError = New(UnknownModule, 1, "unknown error")

// Re-exports so this package can be used as a drop-in replacement for the
// standard errors package.
var (
	As = errors.As
	Is = errors.Is
)

var registeredErrors sync.Map

type codedError struct {
	module string
	code   uint32
	msg    string
}

func (e *codedError) Error() string {
	return e.msg
}

type codedErrorWithContext struct {
	err     *codedError
	context string
}

func (e *codedErrorWithContext) Error() string {
	return fmt.Sprintf("%s: %s", e.err.msg, e.context)
}

func (e *codedErrorWithContext) Unwrap() error {
	return e.err
}

// WithContext wraps a coded error with additional context. The result still
// matches the original error under Is and reports the same code.
//
// Non-coded errors are wrapped with fmt.Errorf instead.
func WithContext(err error, context string) error {
	if len(context) == 0 {
		return err
	}

	var ce *codedError
	if !As(err, &ce) {
		return fmt.Errorf("%w: %s", err, context)
	}
	return &codedErrorWithContext{
		err:     ce,
		context: context,
	}
}

// Context returns the additional context associated with the error, if any.
func Context(err error) string {
	if err == nil {
		return ""
	}

	var cec *codedErrorWithContext
	if As(err, &cec) {
		return cec.context
	}
	return ""
}

// New creates and registers a new coded error.
//
// Module and code pair must be unique, and the code must not be the
// reserved "no error" code. Violations panic.
func New(module string, code uint32, msg string) error {
	if code == CodeNoError {
		panic(fmt.Errorf("errors: code %d is reserved", CodeNoError))
	}

	e := &codedError{
		module: module,
		code:   code,
		msg:    msg,
	}

	key := errorKey(module, code)
	if prev, loaded := registeredErrors.LoadOrStore(key, e); loaded {
		panic(fmt.Errorf("errors: already registered: %s (existing: %s)", key, prev))
	}

	return e
}

// FromCode reconstructs a previously registered error from its module and
// code. The message is used to recover any attached context.
//
// Unknown module/code pairs yield a new coded error carrying the message.
func FromCode(module string, code uint32, message string) error {
	v, ok := registeredErrors.Load(errorKey(module, code))
	if !ok || v == errUnknownError {
		return &codedError{
			module: module,
			code:   code,
			msg:    message,
		}
	}
	ce := v.(*codedError)

	if message == ce.msg {
		return ce
	}

	context := strings.TrimPrefix(message, ce.msg+": ")
	return WithContext(ce, context)
}

// Code returns the module and code for the given error.
//
// Errors that are not coded report the unknown module, and a nil error
// reports an empty module with CodeNoError.
func Code(err error) (string, uint32) {
	if err == nil {
		return "", CodeNoError
	}

	var ce *codedError
	if !As(err, &ce) {
		ce = errUnknownError.(*codedError)
	}
	return ce.module, ce.code
}

func errorKey(module string, code uint32) string {
	return fmt.Sprintf("%s-%d", module, code)
}
