// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/subcommands"

	"go.chromium.org/utrun/internal/caseconf"
	"go.chromium.org/utrun/internal/env"
	"go.chromium.org/utrun/internal/logging"
	"go.chromium.org/utrun/internal/menu"
	"go.chromium.org/utrun/internal/runner"
)

// listCmd implements subcommands.Command to support listing the cases of
// the application.
type listCmd struct {
	out     io.Writer
	envPath string
	config  string
	long    bool

	opts        runner.Options // can be set by tests to shorten delays
	newProvider newProvider    // can be set by tests to stub out devices
}

var _ = subcommands.Command(&listCmd{})

func newListCmd(out io.Writer) *listCmd {
	return &listCmd{
		out:         out,
		opts:        runner.DefaultOptions(),
		newProvider: newEnv,
	}
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list unit test cases" }
func (*listCmd) Usage() string {
	return `Usage: list -env <env.yaml> [flag]...

Description:
    Flashes the application built for a configuration to the first device of
    the environment and prints the cases listed in its menu.

Flag:
`
}

func (l *listCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&l.envPath, "env", "", "environment file describing the devices")
	f.StringVar(&l.config, "config", caseconf.DefaultConfig, "build configuration of the application")
	f.BoolVar(&l.long, "long", false, "print type, timeout and child count of each case")
}

func (l *listCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if l.envPath == "" {
		logging.Info(ctx, "Missing -env.\n\n"+l.Usage())
		return subcommands.ExitUsageError
	}
	cfg, err := env.LoadConfig(l.envPath)
	if err != nil {
		logging.Info(ctx, err)
		return subcommands.ExitUsageError
	}
	entries, err := l.list(ctx, cfg)
	if err != nil {
		logging.Info(ctx, "Failed to list cases: ", err)
		return subcommands.ExitFailure
	}

	tw := tabwriter.NewWriter(l.out, 0, 8, 1, ' ', 0)
	for _, e := range entries {
		if !l.long {
			fmt.Fprintln(tw, e.Name)
			continue
		}
		fmt.Fprintf(tw, "%s\t%v\t%d\t%d\n", e.Name, e.Type, int(e.Timeout.Seconds()), e.ChildCaseNum)
	}
	if err := tw.Flush(); err != nil {
		logging.Info(ctx, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (l *listCmd) list(ctx context.Context, cfg *env.Config) (entries []menu.Entry, retErr error) {
	p := l.newProvider(cfg)
	a, err := p.LoadApp(l.config)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := p.ReleaseAll(ctx); err != nil && retErr == nil {
			retErr = err
		}
	}()
	d, err := p.Acquire(ctx, 0, a)
	if err != nil {
		return nil, err
	}
	return menu.Discover(ctx, runner.New(l.opts), d)
}
