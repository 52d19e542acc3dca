// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package runner

import (
	"context"

	"go.chromium.org/utrun/errors"
	"go.chromium.org/utrun/internal/ctxutil"
	"go.chromium.org/utrun/internal/dut"
	"go.chromium.org/utrun/internal/expect"
	"go.chromium.org/utrun/internal/logging"
	"go.chromium.org/utrun/internal/pattern"
)

// probeCommand asks the application for its test history, which is empty
// right after boot.
const probeCommand = "-"

// ResetDUT resets d and waits until the unit test application accepts
// commands. The serial port may be reopened only after the device already
// printed its boot banner, so readiness is probed rather than observed.
// An error wrapping ErrDeviceUnresponsive is returned if no probe is
// answered.
func (r *Runner) ResetDUT(ctx context.Context, d dut.DUT) error {
	if err := d.Reset(ctx); err != nil {
		return errors.Wrapf(ErrDeviceUnresponsive, "reset %s failed: %v", d.Name(), err)
	}
	// A probe sent while the device boots may be received partially. A lone
	// newline prints the whole menu, which takes longer than a probe timeout.
	if err := ctxutil.Sleep(ctx, r.opts.Clock, r.opts.SettleDelay); err != nil {
		return err
	}
	for i := 0; i < r.opts.ProbeRetries; i++ {
		if err := d.Write(ctx, probeCommand); err != nil {
			return err
		}
		_, err := d.Expect(ctx, r.opts.ProbeTimeout, pattern.ProbeDone)
		if err == nil {
			return nil
		}
		if !expect.IsTimeout(err) {
			return err
		}
		logging.Debugf(ctx, "%s: no probe reply (attempt %d of %d)", d.Name(), i+1, r.opts.ProbeRetries)
	}
	return errors.Wrapf(ErrDeviceUnresponsive, "reset %s failed", d.Name())
}
