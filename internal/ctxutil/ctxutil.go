// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ctxutil provides convenience functions for working with
// context.Context objects.
package ctxutil

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock"

	"go.chromium.org/utrun/errors"
)

// Sleep waits for d on clk or until ctx is done.
func Sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	tm := clk.NewTimer(d)
	defer tm.Stop()

	select {
	case <-tm.C():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "sleep interrupted")
	}
}

// Shorten returns a context and cancel function derived from ctx with its
// deadline shortened by d. If ctx has no deadline, the returned context won't
// have one either.
func Shorten(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	dl, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, dl.Add(-d))
}
