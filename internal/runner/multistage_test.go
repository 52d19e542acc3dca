// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package runner_test

import (
	"fmt"
	"testing"
	"time"

	"go.chromium.org/utrun/errors"
	"go.chromium.org/utrun/internal/caseconf"
	"go.chromium.org/utrun/internal/dut/fakedut"
	"go.chromium.org/utrun/internal/runner"
)

// stagedApp returns an application with one multi-stage case whose stage i
// prints outs[i-1].
func stagedApp(name string, outs ...string) *fakedut.App {
	var children []string
	for i := range outs {
		children = append(children, fmt.Sprintf("stage%d", i+1))
	}
	return &fakedut.App{Cases: []fakedut.AppCase{{
		Name:     name,
		Children: children,
		Run: func(stage int) (string, fakedut.Step) {
			if stage < 1 || stage > len(outs) {
				return "", nil
			}
			return outs[stage-1], nil
		},
	}}}
}

func newStagedCase(name string, stages int, reset ...string) *caseconf.Case {
	c := newCase(name, 5*time.Second, reset...)
	c.Type = caseconf.MultiStage
	c.ChildCaseNum = stages
	return c
}

func TestRunMultiStage(t *testing.T) {
	const restart = "Restarting now\r\n" + fakedut.RebootOutput
	for _, tc := range []struct {
		name  string
		outs  []string
		reset []string
		pass  bool
		cause error
	}{
		{"Pass", []string{restart, fakedut.Tally(0, 0)}, []string{"SW_CPU_RESET"}, true, nil},
		{"NoResetCheck", []string{restart, restart, fakedut.Tally(0, 0)}, nil, true, nil},
		{"FailedTests", []string{restart, fakedut.Tally(1, 0)}, []string{"SW_CPU_RESET"}, false, nil},
		{"ResetMismatch", []string{restart, fakedut.Tally(0, 0)}, []string{"DEEPSLEEP_RESET"}, false, runner.ErrResetMismatch},
		{"EarlyFinish", []string{fakedut.Tally(0, 0), fakedut.Tally(0, 0)}, nil, false, runner.ErrEarlyFinish},
		{"LateFinish", []string{restart, restart}, []string{"SW_CPU_RESET", "SW_CPU_RESET"}, false, runner.ErrLateFinish},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx, _ := testContext(t)
			d := fakedut.NewApp("dut0", stagedApp("staged", tc.outs...))
			defer d.Close()

			v, err := runner.New(testOptions()).RunMultiStage(ctx, d, newStagedCase("staged", len(tc.outs), tc.reset...))
			if err != nil {
				t.Fatal("RunMultiStage failed: ", err)
			}
			if v.Pass != tc.pass {
				t.Errorf("Pass = %v; want %v (err: %v)", v.Pass, tc.pass, v.Err)
			}
			if tc.cause != nil && !errors.Is(v.Err, tc.cause) {
				t.Errorf("Err = %v; want %v", v.Err, tc.cause)
			}
			if d.Resets() != 1 {
				t.Errorf("Resets() = %d; want 1", d.Resets())
			}
		})
	}
}

func TestRunMultiStageEarlyTallyNeverPasses(t *testing.T) {
	for _, failures := range []int{0, 2} {
		for _, ignored := range []int{0, 1} {
			t.Run(fmt.Sprintf("%d-%d", failures, ignored), func(t *testing.T) {
				ctx, _ := testContext(t)
				d := fakedut.NewApp("dut0", stagedApp("staged", fakedut.Tally(failures, ignored), fakedut.Tally(0, 0)))
				defer d.Close()

				v, err := runner.New(testOptions()).RunMultiStage(ctx, d, newStagedCase("staged", 2))
				if err != nil {
					t.Fatal("RunMultiStage failed: ", err)
				}
				if v.Pass || !errors.Is(v.Err, runner.ErrEarlyFinish) {
					t.Errorf("Verdict = %+v; want early finish failure", v)
				}
			})
		}
	}
}

func TestRunMultiStageInput(t *testing.T) {
	ctx, _ := testContext(t)
	d := fakedut.NewApp("dut0", stagedApp("staged", "Restarting now\r\n"+fakedut.RebootOutput, fakedut.Tally(0, 0)))
	defer d.Close()

	if _, err := runner.New(testOptions()).RunMultiStage(ctx, d, newStagedCase("staged", 2)); err != nil {
		t.Fatal("RunMultiStage failed: ", err)
	}
	want := []string{"-", `"staged"`, "1", `"staged"`, "2"}
	if got := d.Input(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Input = %q; want %q", got, want)
	}
}

func TestRunMultiStageNoStages(t *testing.T) {
	ctx, _ := testContext(t)
	d := fakedut.NewApp("dut0", stagedApp("staged"))
	defer d.Close()

	if _, err := runner.New(testOptions()).RunMultiStage(ctx, d, newStagedCase("staged", 0)); err == nil {
		t.Error("RunMultiStage succeeded for a case without stages")
	}
}
