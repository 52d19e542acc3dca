// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package dut provides handles to devices under test running the unit test
// application behind a serial console.
package dut

import (
	"context"
	"regexp"
	"time"

	"go.chromium.org/utrun/errors"
)

// ErrExpectTimeout is returned by Expect when no pattern matched in time.
var ErrExpectTimeout = errors.New("expect timed out")

// Match describes the output matched by Expect.
type Match struct {
	// Index is the position of the matching pattern in the list passed to
	// Expect.
	Index int
	// Text is the whole matched text.
	Text string
	// Groups holds the text of each capture group. Groups that did not
	// participate in the match are empty.
	Groups []string
}

// PerformanceItem is one "[Performance][<name>]: <value>" line printed by a
// case.
type PerformanceItem struct {
	Name  string
	Value string
}

// DUT is a handle to one device under test. A DUT is owned by a single
// goroutine at a time.
type DUT interface {
	// Name returns a short device name used in logs, e.g. "dut0".
	Name() string
	// Write sends data followed by a line terminator.
	Write(ctx context.Context, data string) error
	// Expect blocks until one of patterns matches output not consumed by an
	// earlier call, consumes output through the end of the match and returns
	// it. If no pattern matches within timeout, an error wrapping
	// ErrExpectTimeout is returned.
	Expect(ctx context.Context, timeout time.Duration, patterns ...*regexp.Regexp) (*Match, error)
	// StartCapture starts recording raw output, discarding any earlier
	// recording.
	StartCapture()
	// StopCapture stops recording and returns the output recorded since
	// StartCapture.
	StopCapture() string
	// Reset performs a hardware reset.
	Reset(ctx context.Context) error
	// PerformanceItems returns and forgets the performance items printed
	// since the last call.
	PerformanceItems() []PerformanceItem
	// Close releases the device.
	Close() error
}
