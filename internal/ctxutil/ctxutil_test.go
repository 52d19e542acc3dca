// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ctxutil_test

import (
	"context"
	"testing"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/clock/fakeclock"

	"go.chromium.org/utrun/internal/ctxutil"
)

func TestSleepFakeClock(t *testing.T) {
	fclk := fakeclock.NewFakeClock(time.Unix(0, 0))
	done := make(chan error, 1)
	go func() { done <- ctxutil.Sleep(context.Background(), fclk, 2*time.Second) }()

	fclk.WaitForWatcherAndIncrement(time.Second)
	select {
	case err := <-done:
		t.Fatalf("Sleep returned %v after 1s of 2s", err)
	case <-time.After(10 * time.Millisecond):
	}
	fclk.Increment(time.Second)
	if err := <-done; err != nil {
		t.Errorf("Sleep failed: %v", err)
	}
}

func TestSleepContextExpires(t *testing.T) {
	const timeout = time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	const sleep = 20 * time.Second
	start := time.Now()
	if err := ctxutil.Sleep(ctx, clock.NewClock(), sleep); err == nil {
		t.Errorf("Sleep(%v, %v) returned no error", timeout, sleep)
	}
	if d := time.Since(start); d >= sleep {
		t.Errorf("Sleep(%v, %v) slept %v, ignoring ctx timeout", timeout, sleep, d)
	}
}

func TestShorten(t *testing.T) {
	ctx, cancel := ctxutil.Shorten(context.Background(), time.Minute)
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Error("Shorten added a deadline to a context without one")
	}

	dl := time.Now().Add(time.Hour)
	base, cancel := context.WithDeadline(context.Background(), dl)
	defer cancel()
	ctx, cancel = ctxutil.Shorten(base, time.Minute)
	defer cancel()
	if got, _ := ctx.Deadline(); !got.Equal(dl.Add(-time.Minute)) {
		t.Errorf("Shorten deadline = %v; want %v", got, dl.Add(-time.Minute))
	}
}
