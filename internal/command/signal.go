// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package command

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

var selfName = filepath.Base(os.Args[0])

// exit is swapped out in tests.
var exit = os.Exit

// InstallSignalHandler installs a handler for SIGINT and SIGTERM.
//
// On the first signal, callback is called (typically to cancel the run
// context so partial results get written) and child processes such as a
// running flash tool are terminated. A second signal dumps all goroutines to
// out and exits immediately.
func InstallSignalHandler(out io.Writer, callback func(sig os.Signal)) {
	ch := make(chan os.Signal, 2)
	go func() {
		sig := <-ch
		fmt.Fprintf(out, "\n%s: Caught %v signal; stopping\n", selfName, sig)
		callback(sig)
		terminateChildren(out)

		sig = <-ch
		fmt.Fprintf(out, "\n%s: Caught %v signal again; exiting\n", selfName, sig)
		dumpGoroutines(out)
		exit(1)
	}()
	signal.Notify(ch, unix.SIGINT, unix.SIGTERM)
}

func dumpGoroutines(out io.Writer) {
	fmt.Fprintf(out, "\n%s: Dumping all goroutines...\n\n", selfName)
	if p := pprof.Lookup("goroutine"); p != nil {
		p.WriteTo(out, 2)
	}
	fmt.Fprintf(out, "\n%s: Finished dumping goroutines\n", selfName)
}

// terminateChildren sends SIGTERM to every direct child of this process.
func terminateChildren(out io.Writer) {
	procs, err := process.Processes()
	if err != nil {
		fmt.Fprintf(out, "Failed to terminate subprocesses: %v\n", err)
		return
	}

	selfPid := int32(os.Getpid())
	for _, proc := range procs {
		ppid, err := proc.Ppid()
		if err != nil || ppid != selfPid {
			continue
		}
		name, _ := proc.Name()
		fmt.Fprintf(out, "%s: Terminating child process %d (%s)\n", selfName, proc.Pid, name)
		proc.Terminate()
	}
}
