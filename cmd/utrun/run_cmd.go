// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/subcommands"

	"go.chromium.org/utrun/internal/caseconf"
	"go.chromium.org/utrun/internal/command"
	"go.chromium.org/utrun/internal/ctxutil"
	"go.chromium.org/utrun/internal/env"
	"go.chromium.org/utrun/internal/logging"
	"go.chromium.org/utrun/internal/reporting"
	"go.chromium.org/utrun/internal/runner"
	"go.chromium.org/utrun/internal/suite"
)

const (
	fullLogName       = "full.txt" // file in the results directory containing full output
	defaultResultsDir = "utrun_results"
	// reportTime is reserved at the end of the run timeout for writing
	// reports.
	reportTime = 5 * time.Second
)

// newProvider returns the devices of the environment cfg. Tests replace it.
type newProvider func(cfg *env.Config) suite.DUTProvider

func newEnv(cfg *env.Config) suite.DUTProvider { return env.New(cfg) }

// runCmd implements subcommands.Command to support running cases.
type runCmd struct {
	envPath    string
	caseFiles  []string
	appBin     string
	repeat     int
	resDir     string
	noDiscover bool
	timeout    time.Duration // overall timeout; 0 if no timeout

	opts        runner.Options // can be set by tests to shorten delays
	newProvider newProvider    // can be set by tests to stub out devices
}

var _ = subcommands.Command(&runCmd{})

func newRunCmd() *runCmd {
	return &runCmd{
		opts:        runner.DefaultOptions(),
		newProvider: newEnv,
	}
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run unit test cases" }
func (*runCmd) Usage() string {
	return `Usage: run -env <env.yaml> [flag]... [case]...

Description:
    Flashes the unit test application to the devices of the environment and
    runs the given cases. Exits with 1 if any case fails or the run stops
    early.

Case:
    A comma-separated list of "key:value" items, e.g.
    "UART can do it,config:psram,timeout:60". An item without a key sets the
    name. Keys are name, config, target, reset, timeout, child case num,
    app_bin and type. Cases can also be listed in YAML files with -cases.

Flag:
`
}

func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.envPath, "env", "", "environment file describing the devices")
	cf := command.RepeatedFlag(func(path string) error {
		r.caseFiles = append(r.caseFiles, path)
		return nil
	})
	f.Var(&cf, "cases", "YAML file listing cases (can be repeated)")
	f.StringVar(&r.appBin, "app_bin", "", "application binary replacing the built one")
	f.IntVar(&r.repeat, "repeat", 1, "number of times to run the cases")
	f.StringVar(&r.resDir, "resultsdir", "", "directory for results (defaults to a new directory under "+defaultResultsDir+")")
	f.BoolVar(&r.noDiscover, "nodiscover", false, "use case attributes as given instead of reading the device menu")
	f.Var(command.NewDurationFlag(time.Second, &r.timeout, 0), "timeout", "run timeout in seconds; 0 for none")
}

// descs collects the case descriptions from case files and arguments.
func (r *runCmd) descs(args []string) ([]caseconf.Desc, error) {
	var descs []caseconf.Desc
	for _, p := range r.caseFiles {
		ds, err := caseconf.LoadFile(p)
		if err != nil {
			return nil, err
		}
		descs = append(descs, ds...)
	}
	for _, a := range args {
		rec, err := caseconf.ParseToken(a)
		if err != nil {
			return nil, err
		}
		descs = append(descs, caseconf.Structured(rec))
	}
	return descs, nil
}

func (r *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if r.envPath == "" {
		logging.Info(ctx, "Missing -env.\n\n"+r.Usage())
		return subcommands.ExitUsageError
	}
	descs, err := r.descs(f.Args())
	if err != nil {
		logging.Info(ctx, "Bad case: ", err)
		return subcommands.ExitUsageError
	}
	if len(descs) == 0 {
		logging.Info(ctx, "No cases given.\n\n"+r.Usage())
		return subcommands.ExitUsageError
	}
	cfg, err := env.LoadConfig(r.envPath)
	if err != nil {
		logging.Info(ctx, err)
		return subcommands.ExitUsageError
	}

	if r.resDir == "" {
		r.resDir = filepath.Join(defaultResultsDir, time.Now().Format("20060102-150405"))
	}
	if err := os.MkdirAll(r.resDir, 0755); err != nil {
		logging.Info(ctx, err)
		return subcommands.ExitFailure
	}
	if cfg.LogDir == "" {
		cfg.LogDir = r.resDir
	}

	// Log the full output of the command to disk.
	fullLog, err := os.Create(filepath.Join(r.resDir, fullLogName))
	if err != nil {
		logging.Info(ctx, err)
		return subcommands.ExitFailure
	}
	defer fullLog.Close()
	ctx = logging.AttachLogger(ctx, logging.NewSinkLogger(logging.LevelDebug, true, logging.NewWriterSink(fullLog)))
	logging.Info(ctx, "Command line: ", strings.Join(os.Args, " "))

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	rctx, cancel := ctxutil.Shorten(ctx, reportTime)
	defer cancel()

	junit := reporting.NewJUnitRecorder()
	streamed, err := reporting.NewStreamedRecorder(filepath.Join(r.resDir, reporting.StreamedResultsFilename))
	if err != nil {
		logging.Info(ctx, err)
		return subcommands.ExitFailure
	}
	defer streamed.Close()

	s, runErr := suite.Run(rctx, &suite.Config{
		Cases:    descs,
		Repeat:   r.repeat,
		AppBin:   r.appBin,
		Discover: !r.noDiscover,
		Options:  r.opts,
	}, r.newProvider(cfg), reporting.MultiRecorder{junit, streamed})

	xmlPath := filepath.Join(r.resDir, reporting.JUnitXMLFilename)
	if err := junit.WriteJUnitXML(xmlPath); err != nil {
		logging.Info(ctx, "Failed to write results: ", err)
		return subcommands.ExitFailure
	}
	logging.Info(ctx, "Results saved to ", r.resDir)

	if runErr != nil {
		logging.Infof(ctx, "Failed to run cases: %+v", runErr)
		return subcommands.ExitFailure
	}
	if len(s.Failed) > 0 {
		logging.Infof(ctx, "%d of %d cases failed", len(s.Failed), s.Total)
		return subcommands.ExitFailure
	}
	logging.Infof(ctx, "All %d cases passed", s.Total)
	return subcommands.ExitSuccess
}
