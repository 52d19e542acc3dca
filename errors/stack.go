// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package errors

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	maxFrames = 8       // frames recorded per error
	truncated = "\t..." // appended when the stack was longer than maxFrames
)

// stack is a snapshot of program counters.
type stack []uintptr

// callers records the stack of its caller's caller, skipping skip more frames.
func callers(skip int) stack {
	pc := make([]uintptr, maxFrames+1)
	return stack(pc[:runtime.Callers(skip+2, pc)])
}

// String renders one "\tat func (file:line)" line per frame.
func (s stack) String() string {
	var lines []string
	frames := runtime.CallersFrames(s)
	for {
		f, more := frames.Next()
		lines = append(lines, fmt.Sprintf("\tat %s (%s:%d)", f.Function, filepath.Base(f.File), f.Line))
		if !more {
			break
		}
		if len(lines) >= maxFrames {
			lines = append(lines, truncated)
			break
		}
	}
	return strings.Join(lines, "\n")
}
