// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package pattern holds the banners printed by the on-device unit test
// application and the rules for comparing reported reset reasons.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// Banners emitted by the unit test application. All values are compiled once
// and must not be modified.
var (
	// Reset matches a ROM bootloader reset line, e.g.
	// "rst:0xc (SW_CPU_RESET),boot:0x13 (SPI_FAST_FLASH_BOOT)".
	Reset = regexp.MustCompile(`(rst:0x[0-9a-fA-F]*\s\([\w].*?\),boot:0x[0-9a-fA-F]*\s\([\w].*?\))`)
	// Exception matches a panic handler banner.
	Exception = regexp.MustCompile(`(Guru Meditation Error: Core\s+\d panic'ed \([\w].*?\))`)
	// Abort matches an abort() banner.
	Abort = regexp.MustCompile(`(abort\(\) was called at PC 0x[a-fA-F\d]{8} on core \d)`)
	// Assert matches a failed assertion banner once its whole line has
	// arrived. Group 1 is the banner without the line terminator.
	Assert = regexp.MustCompile(`(assert failed: [^\r\n]*)\r?\n`)
	// Finish matches the tally printed after one case. Group 1 is the
	// failure count and group 2 the ignored count.
	Finish = regexp.MustCompile(`1 Tests (\d+) Failures (\d+) Ignored`)
	// BootDone matches the prompt printed once the application is ready.
	BootDone = regexp.MustCompile(regexp.QuoteMeta(`Press ENTER to see the list of tests.`))
	// ProbeDone matches the tally printed for the "-" history command on a
	// freshly booted device.
	ProbeDone = regexp.MustCompile(regexp.QuoteMeta(`0 Tests 0 Failures 0 Ignored`))
	// WaitSignal matches a multi-device wait banner. Group 1 is the signal
	// name.
	WaitSignal = regexp.MustCompile(`Waiting for signal: \[(.+)\]!`)
	// SendSignal matches a multi-device send banner. Group 1 is the signal
	// name and group 3 the optional parameter.
	SendSignal = regexp.MustCompile(`Send signal: \[([^\]]+)\](\[([^\]]+)\])?!`)
	// MenuHeader matches the first line of the test menu.
	MenuHeader = regexp.MustCompile(regexp.QuoteMeta(`Here's the test menu, pick your combo:`))
	// Menu matches the test menu listing through the selection prompt.
	// Group 1 is the listing.
	Menu = regexp.MustCompile(`(?s)` + MenuHeader.String() + `\r?\n(.*?)\r?\nEnter test for running`)
)

// Running returns a pattern matching the echo printed when the case name
// starts running.
func Running(name string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta("Running " + name + "..."))
}

// ChildCase returns a pattern matching the sub-menu entry with the given
// 1-based index. Group 1 is the child case name.
func ChildCase(index int) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`\(%d\)\s"(\w+)"`, index))
}

// resetAliases lists alternative spellings of reset reasons across chip
// generations. Order matters.
var resetAliases = []struct{ token, alias string }{
	{"_RESET", "_RST"},
	{"POWERON_RESET", "POWERON"},
	{"DEEPSLEEP_RESET", "DSLEEP"},
}

// ResetReasonMatches reports whether the reset banner reported satisfies the
// expected reset reason.
func ResetReasonMatches(reported, expected string) bool {
	if strings.Contains(reported, expected) {
		return true
	}
	for _, a := range resetAliases {
		if !strings.Contains(expected, a.token) {
			continue
		}
		if strings.Contains(reported, strings.ReplaceAll(expected, a.token, a.alias)) {
			return true
		}
	}
	return false
}

// ResetSequenceMatches reports whether observed banners match expected
// reset reasons one to one and in order.
func ResetSequenceMatches(observed, expected []string) bool {
	if len(observed) != len(expected) {
		return false
	}
	for i, o := range observed {
		if !ResetReasonMatches(o, expected[i]) {
			return false
		}
	}
	return true
}
