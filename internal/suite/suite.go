// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package suite runs a list of unit test cases on a bench of devices.
package suite

import (
	"context"
	"fmt"
	"time"

	"go.chromium.org/utrun/errors"
	"go.chromium.org/utrun/internal/app"
	"go.chromium.org/utrun/internal/caseconf"
	"go.chromium.org/utrun/internal/dut"
	"go.chromium.org/utrun/internal/logging"
	"go.chromium.org/utrun/internal/menu"
	"go.chromium.org/utrun/internal/reporting"
	"go.chromium.org/utrun/internal/runner"
)

// AppName is the name of the unit test application binary.
const AppName = "unit-test-app"

// DUTProvider hands out devices flashed with an application.
type DUTProvider interface {
	// Target returns the chip target of the devices.
	Target() string
	// NumDUTs returns the number of devices that can be acquired.
	NumDUTs() int
	// LoadApp loads the application built for a configuration.
	LoadApp(config string) (*app.App, error)
	// Acquire returns device index flashed with a.
	Acquire(ctx context.Context, index int, a *app.App) (dut.DUT, error)
	// ReleaseAll closes every acquired device.
	ReleaseAll(ctx context.Context) error
}

// Config describes a run.
type Config struct {
	// Cases lists the cases to run.
	Cases []caseconf.Desc
	// Repeat is the number of times the whole list runs. Values below 1
	// mean once.
	Repeat int
	// AppBin replaces the application binary for configurations whose
	// first case does not name one.
	AppBin string
	// Discover resolves case types, timeouts and child counts from the
	// device menu before running. Otherwise cases must describe themselves.
	Discover bool
	Options  runner.Options
}

// Summary describes a finished run.
type Summary struct {
	// Total is the number of case executions.
	Total int
	// Failed lists the identifiers of failed case executions in order.
	Failed []string
}

// errAborted marks a run stopped by a device-level failure.
var errAborted = errors.New("run aborted")

// Run runs the cases of cfg, reporting every case result to rec.
//
// Case failures are reported in the returned Summary. An error is returned
// for configuration problems and device-level failures, which stop the run.
func Run(ctx context.Context, cfg *Config, p DUTProvider, rec reporting.Recorder) (*Summary, error) {
	groups, err := caseconf.Normalize(cfg.Cases, p.Target())
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, errors.New("no cases to run")
	}
	r := runner.New(cfg.Options)

	if cfg.Discover {
		if err := discover(ctx, r, cfg, p, groups); err != nil {
			return nil, err
		}
	}
	for _, g := range groups {
		for _, c := range g.Cases {
			if c.Timeout == 0 {
				c.Timeout = menu.DefaultTimeout
			}
			if err := c.Validate(); err != nil {
				return nil, err
			}
		}
	}

	repeat := cfg.Repeat
	if repeat < 1 {
		repeat = 1
	}
	s := &Summary{}
	for i := 1; i <= repeat; i++ {
		if repeat > 1 {
			logging.Info(ctx, "Repetition ", i)
		}
		for _, g := range groups {
			if err := runGroup(ctx, r, cfg, p, rec, g, s); err != nil {
				logFailed(ctx, s)
				return s, err
			}
		}
	}
	logFailed(ctx, s)
	return s, nil
}

// discover fills case attributes from the menu printed by the application
// of the first configuration. All configurations share one case list.
func discover(ctx context.Context, r *runner.Runner, cfg *Config, p DUTProvider, groups []caseconf.Group) (retErr error) {
	a, err := loadApp(ctx, cfg, p, groups[0])
	if err != nil {
		return err
	}
	defer func() {
		if err := p.ReleaseAll(ctx); err != nil && retErr == nil {
			retErr = err
		}
	}()
	d, err := p.Acquire(ctx, 0, a)
	if err != nil {
		return err
	}
	entries, err := menu.Discover(ctx, r, d)
	if err != nil {
		return err
	}
	var cases []*caseconf.Case
	for _, g := range groups {
		cases = append(cases, g.Cases...)
	}
	return menu.Resolve(cases, entries)
}

func loadApp(ctx context.Context, cfg *Config, p DUTProvider, g caseconf.Group) (*app.App, error) {
	a, err := p.LoadApp(g.Config)
	if err != nil {
		return nil, err
	}
	bin := cfg.AppBin
	if len(g.Cases) > 0 && g.Cases[0].AppBin != "" {
		bin = g.Cases[0].AppBin
	}
	a.ReplaceAppBin(ctx, AppName, bin)
	return a, nil
}

// runGroup runs the cases of one build configuration. The devices are
// released when it returns.
func runGroup(ctx context.Context, r *runner.Runner, cfg *Config, p DUTProvider, rec reporting.Recorder, g caseconf.Group, s *Summary) (retErr error) {
	logging.Info(ctx, "Running unit test for config: ", g.Config)
	a, err := loadApp(ctx, cfg, p, g)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.ReleaseAll(ctx); err != nil && retErr == nil {
			retErr = errors.Wrap(err, "failed to release devices")
		}
	}()

	for _, c := range g.Cases {
		logging.Info(ctx, "Running test case: ", c.ID())
		logging.Info(ctx, "Tags: ", c.Tags())

		res := &reporting.CaseResult{Name: c.ID(), Start: time.Now()}
		v, err := runCase(ctx, r, p, a, c)
		res.End = time.Now()
		switch {
		case err == nil:
			res.Failures = v.Failures
			res.SkipReason = v.SkipReason
			res.Performance = v.Performance
			if !v.Pass && len(res.Failures) == 0 {
				res.Failures = []string{v.Err.Error()}
			}
		case runner.IsFatal(err):
			res.Failures = []string{fmt.Sprintf("Fatal error: %v", err)}
		default:
			logging.Warningf(ctx, "Unexpected exception in %s: %+v", c.ID(), err)
			res.Failures = []string{fmt.Sprintf("Unexpected exception: %v", err)}
		}

		s.Total++
		if res.Failed() {
			s.Failed = append(s.Failed, c.ID())
		}
		rec.CaseEnd(ctx, res)

		if err != nil && runner.IsFatal(err) {
			return errors.Wrapf(errAborted, "%s: %v", c.ID(), err)
		}
	}
	return nil
}

// runCase acquires the devices c needs and runs it. Errors acquiring
// devices are fatal. A panic while running is returned as an error.
func runCase(ctx context.Context, r *runner.Runner, p DUTProvider, a *app.App, c *caseconf.Case) (v *runner.Verdict, retErr error) {
	defer func() {
		if rec := recover(); rec != nil {
			retErr = errors.Errorf("panic: %v", rec)
		}
	}()

	n := 1
	if c.Type == caseconf.MultiDevice {
		n = c.ChildCaseNum
	}
	if avail := p.NumDUTs(); n > avail {
		return nil, errors.Wrapf(runner.ErrDeviceUnresponsive, "%s needs %d devices; bench has %d", c.ID(), n, avail)
	}
	duts := make([]dut.DUT, n)
	for i := range duts {
		d, err := p.Acquire(ctx, i, a)
		if err != nil {
			return nil, errors.Wrap(runner.ErrDeviceUnresponsive, err.Error())
		}
		duts[i] = d
	}

	switch c.Type {
	case caseconf.MultiStage:
		return r.RunMultiStage(ctx, duts[0], c)
	case caseconf.MultiDevice:
		return r.RunMultiDevice(ctx, duts, c)
	default:
		return r.RunNormal(ctx, duts[0], c)
	}
}

func logFailed(ctx context.Context, s *Summary) {
	if len(s.Failed) == 0 {
		return
	}
	logging.Info(ctx, "Failed Cases:")
	for _, id := range s.Failed {
		logging.Info(ctx, "\t", id)
	}
}

// IsAborted reports whether err returned by Run means that the run stopped
// before all cases ran.
func IsAborted(err error) bool {
	return errors.Is(err, errAborted)
}
