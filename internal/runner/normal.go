// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package runner

import (
	"context"

	"go.chromium.org/utrun/errors"
	"go.chromium.org/utrun/internal/caseconf"
	"go.chromium.org/utrun/internal/dut"
	"go.chromium.org/utrun/internal/expect"
	"go.chromium.org/utrun/internal/logging"
)

// RunNormal runs a simple case on d.
//
// Case failures are reported in the returned Verdict. An error is returned
// only if the case could not be run at all; IsFatal tells whether later
// cases can still run.
func (r *Runner) RunNormal(ctx context.Context, d dut.DUT, c *caseconf.Case) (*Verdict, error) {
	if err := r.ResetDUT(ctx, d); err != nil {
		return nil, err
	}

	d.StartCapture()
	cr := &caseRun{d: d, c: c}

	if err := r.selectCase(ctx, d, c.Name); err != nil {
		if expect.IsTimeout(err) {
			return cr.timeout(ctx, "waiting for the case to start"), nil
		}
		d.StopCapture()
		return nil, err
	}

	for {
		res, err := expect.Expect(ctx, d, c.Timeout, caseRules...)
		if err != nil {
			if expect.IsTimeout(err) {
				return cr.timeout(ctx, "waiting for the case to finish"), nil
			}
			d.StopCapture()
			return nil, err
		}
		logging.Debugf(ctx, "Observed %v: %q", res.Event, res.Text)

		switch {
		case expect.IsCrash(res.Event):
			cr.record = append(cr.record, res.Group(1))

		case res.Event == expect.Finish:
			if len(cr.record) > 0 {
				// Crashes are followed by a reboot, never by a tally.
				msg := "tally printed after crash: " + res.Text
				cr.v.Failures = append(cr.v.Failures, msg)
				return cr.finish(ctx, false, errors.Wrapf(ErrUnexpected, "%s (recorded %q)", msg, cr.record)), nil
			}
			failures, ignored, err := tally(res)
			if err != nil {
				return cr.finish(ctx, false, errors.Wrap(ErrUnexpected, err.Error())), nil
			}
			if ignored > 0 {
				logging.Info(ctx, "Ignored: ", c.ID())
				cr.v.SkipReason = "ignored"
			}
			if failures > 0 {
				return cr.finish(ctx, false, failedTests(failures)), nil
			}
			return cr.finish(ctx, true, nil), nil

		case res.Event == expect.BootDone:
			if err := cr.checkReset(ctx); err != nil {
				return cr.finish(ctx, false, err), nil
			}
			return cr.finish(ctx, true, nil), nil
		}
	}
}
