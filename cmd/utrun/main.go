// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package main implements the utrun executable, used to run unit test cases
// on devices attached to the host.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"golang.org/x/crypto/ssh/terminal"

	"go.chromium.org/utrun/internal/command"
	"go.chromium.org/utrun/internal/logging"
)

// Version is the version info of this command. It is filled in at build time.
var Version = "<unknown>"

var logLevels = map[string]int{
	"debug":   int(logging.LevelDebug),
	"info":    int(logging.LevelInfo),
	"warning": int(logging.LevelWarning),
}

// newLogger creates a logging.Logger writing to stdout based on the supplied
// command-line flags.
func newLogger(level logging.Level, logTime bool) logging.Logger {
	return logging.NewSinkLogger(level, logTime, logging.NewWriterSink(os.Stdout))
}

// installSignalHandler cancels the run on the first signal, restoring the
// terminal state first.
func installSignalHandler(cancel context.CancelFunc) {
	var st *terminal.State
	fd := int(os.Stdin.Fd())
	if terminal.IsTerminal(fd) {
		var err error
		if st, err = terminal.GetState(fd); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to get terminal state: ", err)
		}
	}
	command.InstallSignalHandler(os.Stderr, func(sig os.Signal) {
		if st != nil {
			terminal.Restore(fd, st)
		}
		cancel()
	})
}

// doMain implements the main body of the program. It's a separate function so
// that its deferred functions will run before os.Exit makes the program exit
// immediately.
func doMain() int {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(newRunCmd(), "")
	subcommands.Register(newListCmd(os.Stdout), "")

	version := flag.Bool("version", false, "print version and exit")
	level := logging.LevelInfo
	lf := command.NewEnumFlag(logLevels, func(v int) { level = logging.Level(v) }, "info")
	flag.Var(lf, "loglevel", fmt.Sprintf("minimum level of console logs (%s; default %q)", lf.QuotedValues(), lf.Default()))
	logTime := flag.Bool("logtime", true, "include date/time headers in logs")
	flag.Parse()

	if *version {
		fmt.Printf("utrun version %s\n", Version)
		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logging.AttachLogger(ctx, newLogger(level, *logTime))

	installSignalHandler(cancel)

	return int(subcommands.Execute(ctx))
}

func main() {
	os.Exit(doMain())
}
