// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package expect waits for the first of several device output events.
//
// Callers pass an ordered list of rules and get back which event happened.
// The package keeps no state between calls; state machines driving a case
// live in the caller.
package expect

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.chromium.org/utrun/errors"
	"go.chromium.org/utrun/internal/dut"
	"go.chromium.org/utrun/internal/pattern"
)

// Event identifies a kind of device output.
type Event int

// Events recognized while running cases.
const (
	ResetBanner Event = iota
	ExceptionBanner
	AbortBanner
	AssertBanner
	Finish
	BootDone
	ChildCase
	WaitSignal
	SendSignal
)

var eventNames = map[Event]string{
	ResetBanner:     "reset",
	ExceptionBanner: "exception",
	AbortBanner:     "abort",
	AssertBanner:    "assert",
	Finish:          "finish",
	BootDone:        "boot done",
	ChildCase:       "child case",
	WaitSignal:      "wait signal",
	SendSignal:      "send signal",
}

func (e Event) String() string {
	if s, ok := eventNames[e]; ok {
		return s
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Rule maps a pattern to the event it signals.
type Rule struct {
	Event   Event
	Pattern *regexp.Regexp
}

// Result is the event observed by Expect.
type Result struct {
	Event Event
	// Text is the whole matched output.
	Text string
	// Groups holds the capture groups of the matching pattern.
	Groups []string
}

// Group returns the i-th capture group (1-based), or an empty string.
func (r *Result) Group(i int) string {
	if i < 1 || i > len(r.Groups) {
		return ""
	}
	return r.Groups[i-1]
}

// Crash rules record a fault or reset that the device reboots from.
var Crash = []Rule{
	{ResetBanner, pattern.Reset},
	{ExceptionBanner, pattern.Exception},
	{AbortBanner, pattern.Abort},
	{AssertBanner, pattern.Assert},
}

// IsCrash reports whether e is recorded by the Crash rules.
func IsCrash(e Event) bool {
	switch e {
	case ResetBanner, ExceptionBanner, AbortBanner, AssertBanner:
		return true
	}
	return false
}

// Expect waits up to timeout for the first output matching one of rules.
// When several rules match, the one matching earliest in the stream wins,
// and among rules matching at the same position the earlier rule wins.
func Expect(ctx context.Context, d dut.DUT, timeout time.Duration, rules ...Rule) (*Result, error) {
	patterns := make([]*regexp.Regexp, len(rules))
	for i, r := range rules {
		patterns[i] = r.Pattern
	}
	m, err := d.Expect(ctx, timeout, patterns...)
	if err != nil {
		return nil, err
	}
	return &Result{Event: rules[m.Index].Event, Text: m.Text, Groups: m.Groups}, nil
}

// IsTimeout reports whether err returned by Expect means the deadline
// passed without a match.
func IsTimeout(err error) bool {
	return errors.Is(err, dut.ErrExpectTimeout)
}

// Rules concatenates rule lists.
func Rules(lists ...[]Rule) []Rule {
	var rules []Rule
	for _, l := range lists {
		rules = append(rules, l...)
	}
	return rules
}
