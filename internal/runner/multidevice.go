// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package runner

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"go.chromium.org/utrun/errors"
	"go.chromium.org/utrun/internal/caseconf"
	"go.chromium.org/utrun/internal/ctxutil"
	"go.chromium.org/utrun/internal/dut"
	"go.chromium.org/utrun/internal/expect"
	"go.chromium.org/utrun/internal/logging"
	"go.chromium.org/utrun/internal/mailbox"
	"go.chromium.org/utrun/internal/pattern"
)

// workerResult is the result slot of one multi-device worker.
type workerResult struct {
	finished bool
	pass     bool
	cause    error
	child    string // name of the child case the device ran
	output   string
}

// RunMultiDevice runs a case whose children run concurrently, one per
// device, exchanging signals through a shared mailbox. duts[i] runs child
// i+1. As soon as one child fails, the others stop at their next event.
func (r *Runner) RunMultiDevice(ctx context.Context, duts []dut.DUT, c *caseconf.Case) (*Verdict, error) {
	n := c.ChildCaseNum
	if n < 1 {
		return nil, errors.Errorf("multi-device case %q has no children", c.Name)
	}
	if len(duts) < n {
		return nil, errors.Errorf("multi-device case %q needs %d devices; got %d", c.Name, n, len(duts))
	}

	mb := mailbox.New(r.opts.Clock)
	var stop atomic.Bool
	results := make([]workerResult, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() (retErr error) {
			defer func() {
				if rec := recover(); rec != nil {
					stop.Store(true)
					retErr = errors.Errorf("panic in worker %d: %v", i+1, rec)
				}
			}()
			wctx := logging.SetLogPrefix(gctx, "["+duts[i].Name()+"] ")
			res, err := r.runWorker(wctx, duts[i], c, i+1, mb, &stop)
			if err != nil {
				stop.Store(true)
				return err
			}
			if res.finished && !res.pass {
				stop.Store(true)
			}
			results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if n := mb.Pending(); n > 0 {
		logging.Infof(ctx, "Signals left unreceived: %d", n)
	}

	v := &Verdict{Pass: true}
	var out strings.Builder
	out.WriteString("Multiple Device Failed\n")
	for i, res := range results {
		out.WriteString(res.output)
		if res.pass {
			continue
		}
		v.Pass = false
		if v.Err == nil && res.finished {
			v.Err = errors.Wrapf(res.cause, "child %d %q", i+1, res.child)
		}
	}
	v.Output = out.String()
	if !v.Pass {
		if v.Err == nil {
			v.Err = errors.New("workers stopped without a verdict")
		}
		v.Failures = append(v.Failures, v.Output)
		logging.Info(ctx, "Failed: ", c.ID())
	} else {
		logging.Info(ctx, "Success: ", c.ID())
	}
	for _, d := range duts[:n] {
		v.Performance = append(v.Performance, d.PerformanceItems()...)
	}
	return v, nil
}

// childRules returns the rules applied by the worker running child index.
func childRules(index int) []expect.Rule {
	return []expect.Rule{
		{Event: expect.ChildCase, Pattern: pattern.ChildCase(index)},
		{Event: expect.WaitSignal, Pattern: pattern.WaitSignal},
		{Event: expect.SendSignal, Pattern: pattern.SendSignal},
		{Event: expect.Finish, Pattern: pattern.Finish},
	}
}

// runWorker drives one device through its child of a multi-device case. It
// returns with finished unset if stop was raised before a verdict.
func (r *Runner) runWorker(ctx context.Context, d dut.DUT, c *caseconf.Case, index int, mb *mailbox.Mailbox, stop *atomic.Bool) (*workerResult, error) {
	if err := r.ResetDUT(ctx, d); err != nil {
		return nil, err
	}

	d.StartCapture()
	res := &workerResult{}
	done := func(pass bool, cause error) *workerResult {
		res.finished = true
		res.pass = pass
		res.cause = cause
		res.output = fmt.Sprintf("[%s]\n\n%s\n", res.child, d.StopCapture())
		return res
	}

	if err := ctxutil.Sleep(ctx, r.opts.Clock, r.opts.SelectDelay); err != nil {
		d.StopCapture()
		return nil, err
	}
	if err := r.selectCase(ctx, d, c.Name); err != nil {
		if !expect.IsTimeout(err) {
			d.StopCapture()
			return nil, err
		}
		logging.Warning(ctx, "No case detected!")
	}

	rules := childRules(index)
	for !stop.Load() {
		ev, err := expect.Expect(ctx, d, c.Timeout, rules...)
		if err != nil {
			if expect.IsTimeout(err) {
				logging.Warningf(ctx, "Timeout in expect (%v)", c.Timeout)
				return done(false, errors.Wrap(ErrTimeout, "waiting for the child case to finish")), nil
			}
			d.StopCapture()
			return nil, err
		}
		logging.Debugf(ctx, "Observed %v: %q", ev.Event, ev.Text)

		switch ev.Event {
		case expect.ChildCase:
			res.child = ev.Group(1)
			if err := ctxutil.Sleep(ctx, r.opts.Clock, r.opts.SelectDelay); err != nil {
				d.StopCapture()
				return nil, err
			}
			if err := d.Write(ctx, strconv.Itoa(index)); err != nil {
				d.StopCapture()
				return nil, err
			}

		case expect.WaitSignal:
			s, err := mb.Wait(ctx, ev.Group(1), c.Timeout)
			if errors.Is(err, mailbox.ErrWaitTimeout) {
				logging.Warning(ctx, "Timeout in device for function: ", res.child)
				continue
			}
			if err != nil {
				d.StopCapture()
				return nil, err
			}
			// An empty parameter still sends the line terminator.
			if err := d.Write(ctx, string(s.Parameter)); err != nil {
				d.StopCapture()
				return nil, err
			}

		case expect.SendSignal:
			mb.Send(mailbox.Signal{Name: ev.Group(1), Parameter: []byte(ev.Group(3))})

		case expect.Finish:
			failures, ignored, err := tally(ev)
			if err != nil {
				return done(false, errors.Wrap(ErrUnexpected, err.Error())), nil
			}
			if ignored > 0 {
				logging.Info(ctx, "Ignored: ", res.child)
			}
			if failures > 0 {
				return done(false, failedTests(failures)), nil
			}
			return done(true, nil), nil
		}
	}

	logging.Info(ctx, "Stopped after a sibling failed")
	res.output = fmt.Sprintf("[%s] (stopped)\n\n%s\n", res.child, d.StopCapture())
	return res, nil
}
