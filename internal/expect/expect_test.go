// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package expect_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/utrun/internal/dut/fakedut"
	"go.chromium.org/utrun/internal/expect"
	"go.chromium.org/utrun/internal/pattern"
)

var caseRules = expect.Rules(expect.Crash, []expect.Rule{
	{Event: expect.Finish, Pattern: pattern.Finish},
	{Event: expect.BootDone, Pattern: pattern.BootDone},
})

func TestExpectSequence(t *testing.T) {
	ctx := context.Background()
	d := fakedut.New("dut0", fakedut.Firmware{})
	defer d.Close()

	d.Emit("Guru Meditation Error: Core  0 panic'ed (LoadProhibited). Exception was unhandled.\r\n" +
		fakedut.RebootOutput + fakedut.Tally(0, 1))

	type event struct {
		Event  expect.Event
		Groups []string
	}
	var got []event
	for i := 0; i < 4; i++ {
		res, err := expect.Expect(ctx, d, 5*time.Second, caseRules...)
		if err != nil {
			t.Fatalf("Expect #%d failed: %v", i, err)
		}
		got = append(got, event{res.Event, res.Groups})
	}
	want := []event{
		{expect.ExceptionBanner, []string{"Guru Meditation Error: Core  0 panic'ed (LoadProhibited)"}},
		{expect.ResetBanner, []string{"rst:0xc (SW_CPU_RESET),boot:0x13 (SPI_FAST_FLASH_BOOT)"}},
		{expect.BootDone, nil},
		{expect.Finish, []string{"0", "1"}},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Events mismatch (-got +want):\n%s", diff)
	}
}

func TestExpectTimeout(t *testing.T) {
	ctx := context.Background()
	d := fakedut.New("dut0", fakedut.Firmware{})
	defer d.Close()

	_, err := expect.Expect(ctx, d, 20*time.Millisecond, caseRules...)
	if !expect.IsTimeout(err) {
		t.Errorf("Expect = %v; want timeout", err)
	}
}

func TestResultGroup(t *testing.T) {
	r := &expect.Result{Groups: []string{"name", "", "param"}}
	for _, tc := range []struct {
		i    int
		want string
	}{{0, ""}, {1, "name"}, {2, ""}, {3, "param"}, {4, ""}} {
		if got := r.Group(tc.i); got != tc.want {
			t.Errorf("Group(%d) = %q; want %q", tc.i, got, tc.want)
		}
	}
}

func TestIsCrash(t *testing.T) {
	for _, r := range expect.Crash {
		if !expect.IsCrash(r.Event) {
			t.Errorf("IsCrash(%v) = false", r.Event)
		}
	}
	for _, e := range []expect.Event{expect.Finish, expect.BootDone, expect.WaitSignal} {
		if expect.IsCrash(e) {
			t.Errorf("IsCrash(%v) = true", e)
		}
	}
}
