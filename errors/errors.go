// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package errors constructs errors that remember where they were created.
//
// Use this package instead of the standard errors package or fmt.Errorf
// throughout utrun. Errors created here carry a short stack trace and keep
// their cause, so failures of a device run can be logged with full context:
//
//	errors.New("device did not answer")
//	errors.Errorf("case %q not found", name)
//	errors.Wrap(err, "failed to flash dut0")
//	errors.Wrapf(err, "failed to open %s", port)
//
// Formatting an error with "%+v" prints the whole chain with stack traces.
// Is, As and Unwrap behave like their standard library counterparts.
package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"
)

// E is the error implementation used by this package.
type E struct {
	msg   string // message prepended to cause
	stk   stack  // where the error was created
	cause error  // wrapped error; nil for leaf errors
}

// Error implements the error interface.
func (e *E) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.msg, e.cause.Error())
}

// Unwrap returns the wrapped error, or nil.
func (e *E) Unwrap() error {
	return e.cause
}

// Format implements fmt.Formatter. The "%+v" verb prints the error chain
// together with the recorded stack traces.
func (e *E) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		io.WriteString(s, chain(e))
		return
	}
	io.WriteString(s, e.Error())
}

func chain(err error) string {
	var lines []string
	for err != nil {
		e, ok := err.(*E)
		if !ok {
			lines = append(lines, fmt.Sprintf("%s\n\tat ???", err.Error()))
			break
		}
		lines = append(lines, fmt.Sprintf("%s\n%v", e.msg, e.stk))
		err = e.cause
	}
	return strings.Join(lines, "\n")
}

// New creates an error with msg, recording the caller's location.
func New(msg string) error {
	return &E{msg: msg, stk: callers(1)}
}

// Errorf is like New but formats its message with fmt.Sprintf.
func Errorf(format string, args ...interface{}) error {
	return &E{msg: fmt.Sprintf(format, args...), stk: callers(1)}
}

// Wrap creates an error with msg whose cause is cause.
// A nil cause makes Wrap equivalent to New.
func Wrap(cause error, msg string) error {
	return &E{msg: msg, stk: callers(1), cause: cause}
}

// Wrapf is like Wrap but formats its message with fmt.Sprintf.
func Wrapf(cause error, format string, args ...interface{}) error {
	return &E{msg: fmt.Sprintf(format, args...), stk: callers(1), cause: cause}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the cause of err, or nil.
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}
