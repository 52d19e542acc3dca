// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package runner drives unit test cases on devices and classifies their
// outcome.
package runner

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"code.cloudfoundry.org/clock"

	"go.chromium.org/utrun/errors"
	"go.chromium.org/utrun/internal/caseconf"
	"go.chromium.org/utrun/internal/dut"
	"go.chromium.org/utrun/internal/expect"
	"go.chromium.org/utrun/internal/logging"
	"go.chromium.org/utrun/internal/pattern"
)

// Failure causes. Verdict.Err wraps one of these or describes failing tests.
var (
	ErrTimeout            = errors.New("timeout")
	ErrResetMismatch      = errors.New("reset check failed")
	ErrEarlyFinish        = errors.New("test finished before entering last stage")
	ErrLateFinish         = errors.New("didn't finish at last stage")
	ErrDeviceUnresponsive = errors.New("device unresponsive")
	ErrUnexpected         = errors.New("unexpected device behavior")
)

// IsFatal reports whether err returned by a Runner method means that no
// further cases can run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceUnresponsive) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Options tunes device interaction.
type Options struct {
	// Clock is used for fixed delays and signal waits.
	Clock clock.Clock
	// SettleDelay is slept after a hardware reset before probing, so the
	// probe is not lost while the device boots.
	SettleDelay time.Duration
	// ProbeRetries is the number of probes sent after a reset before the
	// device is declared unresponsive.
	ProbeRetries int
	// ProbeTimeout bounds the wait for each probe reply.
	ProbeTimeout time.Duration
	// EchoTimeout bounds the wait for "Running <name>..." after selecting a
	// case.
	EchoTimeout time.Duration
	// SelectDelay is slept before selecting a multi-device case or child.
	SelectDelay time.Duration
}

// DefaultOptions returns the options used against real devices.
func DefaultOptions() Options {
	return Options{
		Clock:        clock.NewClock(),
		SettleDelay:  2 * time.Second,
		ProbeRetries: 5,
		ProbeTimeout: 2 * time.Second,
		EchoTimeout:  10 * time.Second,
		SelectDelay:  time.Second,
	}
}

// Runner runs cases.
type Runner struct {
	opts Options
}

// New returns a Runner. A nil Clock in opts means the real clock.
func New(opts Options) *Runner {
	if opts.Clock == nil {
		opts.Clock = clock.NewClock()
	}
	return &Runner{opts: opts}
}

// Verdict is the outcome of one case.
type Verdict struct {
	Pass bool
	// SkipReason is set when the device reported the case as ignored. It is
	// independent of Pass.
	SkipReason string
	// Err describes why the case failed. It is nil if Pass is true.
	Err error
	// Failures holds failure details for the report, in the order they
	// were found.
	Failures []string
	// Output is the raw device output captured while the case ran.
	Output      string
	Performance []dut.PerformanceItem
}

// caseRules are the rules applied while a single or multi-stage case runs.
var caseRules = expect.Rules(expect.Crash, []expect.Rule{
	{Event: expect.Finish, Pattern: pattern.Finish},
	{Event: expect.BootDone, Pattern: pattern.BootDone},
})

// caseRun holds the state of one single-device case attempt.
type caseRun struct {
	d      dut.DUT
	c      *caseconf.Case
	v      Verdict
	record []string // crash and reset banners in order
}

// finish produces the verdict and collects output and performance items.
func (cr *caseRun) finish(ctx context.Context, pass bool, cause error) *Verdict {
	out := cr.d.StopCapture()
	cr.v.Pass = pass
	cr.v.Output = out
	if pass {
		logging.Info(ctx, "Success: ", cr.c.ID())
	} else {
		if cause == nil {
			cause = errors.New("case failed")
		}
		cr.v.Err = cause
		cr.v.Failures = append(cr.v.Failures, out)
		logging.Info(ctx, "Failed: ", cr.c.ID())
	}
	cr.v.Performance = cr.d.PerformanceItems()
	return &cr.v
}

// timeout records an expect timeout and fails the case.
func (cr *caseRun) timeout(ctx context.Context, what string) *Verdict {
	logging.Warningf(ctx, "Timeout in expect (%v) %s", cr.c.Timeout, what)
	cr.v.Failures = append(cr.v.Failures, "timeout")
	return cr.finish(ctx, false, errors.Wrap(ErrTimeout, what))
}

// checkReset compares the recorded banners against the expected resets. On
// a mismatch it records a diagnostic and returns an error.
func (cr *caseRun) checkReset(ctx context.Context) error {
	if len(cr.record) == 0 {
		return errors.Wrap(ErrUnexpected, "device rebooted but no reset or exception was logged")
	}
	if pattern.ResetSequenceMatches(cr.record, cr.c.Reset) {
		return nil
	}
	msg := fmt.Sprintf("Reset Check Failed: \r\n\tExpected: %q\r\n\tGet: %q", cr.c.Reset, cr.record)
	logging.Warning(ctx, msg)
	cr.v.Failures = append(cr.v.Failures, msg)
	return errors.Wrapf(ErrResetMismatch, "expected %q, got %q", cr.c.Reset, cr.record)
}

// selectCase writes the quoted case name and waits for its echo.
func (r *Runner) selectCase(ctx context.Context, d dut.DUT, name string) error {
	if err := d.Write(ctx, `"`+name+`"`); err != nil {
		return err
	}
	_, err := d.Expect(ctx, r.opts.EchoTimeout, pattern.Running(name))
	return err
}

// tally parses the groups of a Finish result.
func tally(res *expect.Result) (failures, ignored int, err error) {
	if failures, err = strconv.Atoi(res.Group(1)); err != nil {
		return 0, 0, errors.Wrapf(err, "bad tally %q", res.Text)
	}
	if ignored, err = strconv.Atoi(res.Group(2)); err != nil {
		return 0, 0, errors.Wrapf(err, "bad tally %q", res.Text)
	}
	return failures, ignored, nil
}

func failedTests(n int) error {
	return errors.Errorf("%d test failures", n)
}
