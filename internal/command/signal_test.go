// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package command

import (
	"bytes"
	"os"
	"os/signal"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestInstallSignalHandler(t *testing.T) {
	exited := make(chan int, 1)
	exit = func(code int) { exited <- code }
	defer func() { exit = os.Exit }()
	defer signal.Reset(unix.SIGINT, unix.SIGTERM)

	var out bytes.Buffer
	called := make(chan os.Signal, 1)
	InstallSignalHandler(&out, func(sig os.Signal) { called <- sig })

	if err := unix.Kill(os.Getpid(), unix.SIGINT); err != nil {
		t.Fatal("Kill: ", err)
	}
	select {
	case sig := <-called:
		if sig != unix.SIGINT {
			t.Errorf("Callback got %v; want SIGINT", sig)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Callback was not called")
	}

	if err := unix.Kill(os.Getpid(), unix.SIGINT); err != nil {
		t.Fatal("Kill: ", err)
	}
	select {
	case code := <-exited:
		if code != 1 {
			t.Errorf("Exit code = %d; want 1", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Handler did not exit on second signal")
	}

	for _, s := range []string{"stopping", "exiting", "Dumping all goroutines"} {
		if !strings.Contains(out.String(), s) {
			t.Errorf("Output %q does not contain %q", out.String(), s)
		}
	}
}
