// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package runner

import (
	"context"
	"fmt"
	"strconv"

	"go.chromium.org/utrun/errors"
	"go.chromium.org/utrun/internal/caseconf"
	"go.chromium.org/utrun/internal/dut"
	"go.chromium.org/utrun/internal/expect"
	"go.chromium.org/utrun/internal/logging"
)

// RunMultiStage runs a case whose stages are separated by device reboots.
// The device is reset once; each later stage is selected after the device
// reboots on its own.
func (r *Runner) RunMultiStage(ctx context.Context, d dut.DUT, c *caseconf.Case) (*Verdict, error) {
	if c.ChildCaseNum < 1 {
		return nil, errors.Errorf("multi-stage case %q has no stages", c.Name)
	}
	if err := r.ResetDUT(ctx, d); err != nil {
		return nil, err
	}

	d.StartCapture()
	cr := &caseRun{d: d, c: c}

	// finish applies the reset check to a passing tally.
	finish := func(ctx context.Context, pass bool, cause error) *Verdict {
		if pass && len(c.Reset) > 0 {
			if err := cr.checkReset(ctx); err != nil {
				return cr.finish(ctx, false, err)
			}
		}
		return cr.finish(ctx, pass, cause)
	}

	for stage := 1; stage <= c.ChildCaseNum; stage++ {
		last := stage == c.ChildCaseNum
		sctx := logging.SetLogPrefix(ctx, fmt.Sprintf("[stage %d/%d] ", stage, c.ChildCaseNum))

		if err := r.selectCase(sctx, d, c.Name); err != nil {
			if expect.IsTimeout(err) {
				return cr.timeout(sctx, fmt.Sprintf("waiting for stage %d to start", stage)), nil
			}
			d.StopCapture()
			return nil, err
		}
		if err := d.Write(sctx, strconv.Itoa(stage)); err != nil {
			d.StopCapture()
			return nil, err
		}

	stageLoop:
		for {
			res, err := expect.Expect(sctx, d, c.Timeout, caseRules...)
			if err != nil {
				if expect.IsTimeout(err) {
					return cr.timeout(sctx, fmt.Sprintf("in stage %d", stage)), nil
				}
				d.StopCapture()
				return nil, err
			}
			logging.Debugf(sctx, "Observed %v: %q", res.Event, res.Text)

			switch {
			case expect.IsCrash(res.Event):
				cr.record = append(cr.record, res.Group(1))

			case res.Event == expect.Finish:
				failures, ignored, err := tally(res)
				if err != nil {
					return cr.finish(sctx, false, errors.Wrap(ErrUnexpected, err.Error())), nil
				}
				if ignored > 0 {
					logging.Info(sctx, "Ignored: ", c.ID())
					cr.v.SkipReason = "ignored"
				}
				if !last {
					logging.Warning(sctx, "Test finished before entering last stage")
					return cr.finish(sctx, false, errors.Wrapf(ErrEarlyFinish, "finished in stage %d of %d", stage, c.ChildCaseNum)), nil
				}
				if failures > 0 {
					return finish(sctx, false, failedTests(failures)), nil
				}
				return finish(sctx, true, nil), nil

			case res.Event == expect.BootDone:
				if last {
					logging.Warning(sctx, "Didn't finish at last stage")
					return cr.finish(sctx, false, errors.Wrapf(ErrLateFinish, "rebooted in stage %d of %d", stage, c.ChildCaseNum)), nil
				}
				break stageLoop
			}
		}
	}
	d.StopCapture()
	return nil, errors.Errorf("multi-stage case %q ended without a verdict", c.Name)
}
