// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package suite_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/go-cmp/cmp"

	"go.chromium.org/utrun/errors"
	"go.chromium.org/utrun/internal/app"
	"go.chromium.org/utrun/internal/caseconf"
	"go.chromium.org/utrun/internal/dut"
	"go.chromium.org/utrun/internal/dut/fakedut"
	"go.chromium.org/utrun/internal/logging"
	"go.chromium.org/utrun/internal/logging/loggingtest"
	"go.chromium.org/utrun/internal/reporting"
	"go.chromium.org/utrun/internal/runner"
	"go.chromium.org/utrun/internal/suite"
)

// fakeBench is a DUTProvider of fake devices running one application.
type fakeBench struct {
	t        *testing.T
	newApp   func() *fakedut.App
	duts     map[int]*fakedut.Device
	loaded   []string
	acquired []string
	releases int
	// wrap, if set, wraps every device handed out.
	wrap func(d dut.DUT) dut.DUT
}

func newBench(t *testing.T, newApp func() *fakedut.App) *fakeBench {
	b := &fakeBench{t: t, newApp: newApp, duts: make(map[int]*fakedut.Device)}
	t.Cleanup(func() { b.ReleaseAll(context.Background()) })
	return b
}

func (b *fakeBench) Target() string { return "esp32" }

func (b *fakeBench) NumDUTs() int { return 2 }

func (b *fakeBench) LoadApp(config string) (*app.App, error) {
	b.loaded = append(b.loaded, config)
	return &app.App{
		Config:     config,
		FlashFiles: []app.FlashFile{{Offset: "0x10000", Path: "/build/" + config + "/unit-test-app.bin"}},
	}, nil
}

func (b *fakeBench) Acquire(ctx context.Context, index int, a *app.App) (dut.DUT, error) {
	if index > 1 {
		return nil, errors.Errorf("no dut %d", index)
	}
	b.acquired = append(b.acquired, fmt.Sprintf("%d %s", index, a.FlashFiles[0].Path))
	d, ok := b.duts[index]
	if !ok {
		d = fakedut.NewApp(fmt.Sprintf("dut%d", index), b.newApp())
		b.duts[index] = d
	}
	if b.wrap != nil {
		return b.wrap(d), nil
	}
	return d, nil
}

func (b *fakeBench) ReleaseAll(ctx context.Context) error {
	for i, d := range b.duts {
		d.Close()
		delete(b.duts, i)
	}
	b.releases++
	return nil
}

type results []*reporting.CaseResult

func (r *results) CaseEnd(ctx context.Context, res *reporting.CaseResult) { *r = append(*r, res) }

// fastConfig returns a configuration running descs without fixed delays.
func fastConfig(descs ...caseconf.Desc) *suite.Config {
	return &suite.Config{
		Cases: descs,
		Options: runner.Options{
			Clock:        clock.NewClock(),
			ProbeRetries: 3,
			ProbeTimeout: 2 * time.Second,
			EchoTimeout:  2 * time.Second,
		},
	}
}

// benchApp is the application used by most tests.
func benchApp() *fakedut.App {
	return &fakedut.App{Cases: []fakedut.AppCase{
		{Name: "pass", Tags: "[timeout=5]", Run: func(int) (string, fakedut.Step) { return fakedut.Tally(0, 0), nil }},
		{Name: "fail", Run: func(int) (string, fakedut.Step) { return fakedut.Tally(1, 0), nil }},
		{Name: "ignored", Tags: "[ignore]", Run: func(int) (string, fakedut.Step) { return fakedut.Tally(0, 1), nil }},
		{
			Name: "staged", Tags: "[multi_stage]", Children: []string{"one", "two"},
			Run: func(stage int) (string, fakedut.Step) {
				if stage == 1 {
					return "Restarting\r\n" + fakedut.RebootOutput, nil
				}
				return fakedut.Tally(0, 0), nil
			},
		},
		{
			Name: "pair", Tags: "[multi_device]", Children: []string{"master", "slave"},
			Run: func(child int) (string, fakedut.Step) {
				if child == 1 {
					return "Waiting for signal: [ready]!\r\n", func(string) (string, fakedut.Step) {
						return fakedut.Tally(0, 0), nil
					}
				}
				return "Send signal: [ready]!\r\n" + fakedut.Tally(0, 0), nil
			},
		},
	}}
}

func testContext(t *testing.T) (context.Context, *loggingtest.Logger) {
	logger := loggingtest.NewLogger(t, logging.LevelInfo)
	return logging.AttachLogger(context.Background(), logger), logger
}

func names(rs results) []string {
	var ns []string
	for _, r := range rs {
		ns = append(ns, r.Name)
	}
	return ns
}

func TestRunDiscover(t *testing.T) {
	ctx, logger := testContext(t)
	b := newBench(t, benchApp)
	cfg := fastConfig(
		caseconf.Named("pass"),
		caseconf.Named("fail"),
		caseconf.Named("ignored"),
		caseconf.Named("staged [reset=SW_CPU_RESET]"),
		caseconf.Named("pair"),
	)
	cfg.Discover = true

	var rs results
	s, err := suite.Run(ctx, cfg, b, &rs)
	if err != nil {
		t.Fatal("Run failed: ", err)
	}
	want := []string{
		"esp32.default.pass", "esp32.default.fail", "esp32.default.ignored",
		"esp32.default.staged", "esp32.default.pair",
	}
	if diff := cmp.Diff(names(rs), want); diff != "" {
		t.Errorf("Recorded cases mismatch (-got +want):\n%s", diff)
	}
	if diff := cmp.Diff(s, &suite.Summary{Total: 5, Failed: []string{"esp32.default.fail"}}); diff != "" {
		t.Errorf("Summary mismatch (-got +want):\n%s", diff)
	}
	if len(rs) == 5 && rs[2].SkipReason != "ignored" {
		t.Errorf("SkipReason of ignored case = %q", rs[2].SkipReason)
	}
	for _, msg := range []string{
		"Running unit test for config: default",
		"Running test case: esp32.default.pass",
		"type=multi_device",
		"Failed Cases:",
	} {
		if !logger.Contains(msg) {
			t.Errorf("Logs lack %q", msg)
		}
	}
}

func TestRunGroupsByConfig(t *testing.T) {
	ctx, _ := testContext(t)
	b := newBench(t, benchApp)
	cfg := fastConfig(
		caseconf.Structured(caseconf.Record{Name: "pass", Config: "psram", AppBin: "/custom.bin"}),
		caseconf.Named("pass"),
		caseconf.Structured(caseconf.Record{Name: "fail", Config: "psram"}),
	)
	cfg.Repeat = 2

	var rs results
	s, err := suite.Run(ctx, cfg, b, &rs)
	if err != nil {
		t.Fatal("Run failed: ", err)
	}
	want := []string{
		"esp32.psram.pass", "esp32.psram.fail", "esp32.default.pass",
		"esp32.psram.pass", "esp32.psram.fail", "esp32.default.pass",
	}
	if diff := cmp.Diff(names(rs), want); diff != "" {
		t.Errorf("Recorded cases mismatch (-got +want):\n%s", diff)
	}
	if len(s.Failed) != 2 || s.Total != 6 {
		t.Errorf("Summary = %+v; want 2 failures in 6 cases", s)
	}
	if diff := cmp.Diff(b.loaded, []string{"psram", "default", "psram", "default"}); diff != "" {
		t.Errorf("Loaded configs mismatch (-got +want):\n%s", diff)
	}
	if len(b.acquired) == 0 || b.acquired[0] != "0 /custom.bin" {
		t.Errorf("Acquired = %q; want the custom binary first", b.acquired)
	}
	if b.releases != 4 {
		t.Errorf("Devices released %d times; want once per group", b.releases)
	}
}

func TestRunAbortsOnUnresponsiveDevice(t *testing.T) {
	ctx, _ := testContext(t)
	b := newBench(t, func() *fakedut.App { return &fakedut.App{Unresponsive: true} })
	cfg := fastConfig(caseconf.Named("pass"), caseconf.Named("fail"))
	cfg.Options.ProbeTimeout = 10 * time.Millisecond

	var rs results
	s, err := suite.Run(ctx, cfg, b, &rs)
	if !suite.IsAborted(err) {
		t.Fatalf("Run = %v; want an aborted run", err)
	}
	if len(rs) != 1 || !rs[0].Failed() {
		t.Errorf("Recorded %d results; want the one failed case", len(rs))
	}
	if s == nil || len(s.Failed) != 1 {
		t.Errorf("Summary = %+v; want one failure", s)
	}
}

func TestRunAbortsOnMissingDevice(t *testing.T) {
	ctx, _ := testContext(t)
	b := newBench(t, benchApp)
	cfg := fastConfig(
		caseconf.Structured(caseconf.Record{Name: "pair", Type: "multi_device", ChildCaseNum: 3, Timeout: 5}),
		caseconf.Named("pass"),
	)

	var rs results
	s, err := suite.Run(ctx, cfg, b, &rs)
	if !suite.IsAborted(err) {
		t.Fatalf("Run = %v; want an aborted run", err)
	}
	if diff := cmp.Diff(names(rs), []string{"esp32.default.pair"}); diff != "" {
		t.Errorf("Recorded cases mismatch (-got +want):\n%s", diff)
	}
	if len(s.Failed) != 1 {
		t.Errorf("Summary = %+v; want one failure", s)
	}
	if len(b.acquired) != 0 {
		t.Errorf("Acquired = %q; want no device for a case the bench cannot hold", b.acquired)
	}
	if len(rs) == 1 && !strings.Contains(rs[0].Failures[0], "needs 3 devices") {
		t.Errorf("Failures = %q; want the device shortage", rs[0].Failures)
	}
}

// panicDUT is a device whose writes panic.
type panicDUT struct {
	dut.DUT
}

func (panicDUT) Write(ctx context.Context, data string) error {
	panic("write on a broken device")
}

func TestRunRecoversFromPanic(t *testing.T) {
	ctx, _ := testContext(t)
	b := newBench(t, benchApp)
	b.wrap = func(d dut.DUT) dut.DUT { return panicDUT{d} }
	cfg := fastConfig(caseconf.Named("pass"), caseconf.Named("fail"))

	var rs results
	s, err := suite.Run(ctx, cfg, b, &rs)
	if err != nil {
		t.Fatal("Run failed: ", err)
	}
	if diff := cmp.Diff(names(rs), []string{"esp32.default.pass", "esp32.default.fail"}); diff != "" {
		t.Errorf("Recorded cases mismatch (-got +want):\n%s", diff)
	}
	for _, r := range rs {
		if len(r.Failures) != 1 || !strings.HasPrefix(r.Failures[0], "Unexpected exception: panic: write on a broken device") {
			t.Errorf("%s failures = %q; want the recovered panic", r.Name, r.Failures)
		}
	}
	if len(s.Failed) != 2 {
		t.Errorf("Summary = %+v; want two failures", s)
	}
}

func TestRunUnknownCase(t *testing.T) {
	ctx, _ := testContext(t)
	b := newBench(t, benchApp)
	cfg := fastConfig(caseconf.Named("missing"))
	cfg.Discover = true

	if _, err := suite.Run(ctx, cfg, b, &results{}); err == nil {
		t.Error("Run succeeded for a case missing from the menu")
	}
}

func TestRunInvalidCase(t *testing.T) {
	ctx, _ := testContext(t)
	b := newBench(t, benchApp)
	cfg := fastConfig(caseconf.Structured(caseconf.Record{Name: "staged", Type: "multi_stage"}))

	if _, err := suite.Run(ctx, cfg, b, &results{}); err == nil {
		t.Error("Run succeeded for a multi-stage case without stages")
	}
}
