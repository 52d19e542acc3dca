// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"path/filepath"
	gotesting "testing"

	"github.com/google/subcommands"
)

// executeListCmd creates a listCmd and executes it using the supplied args.
func executeListCmd(t *gotesting.T, stdout io.Writer, args []string) subcommands.ExitStatus {
	cmd := newListCmd(stdout)
	cmd.opts = testOptions()
	cmd.newProvider = stubProvider(stubApp)
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	cmd.SetFlags(flags)
	if err := flags.Parse(args); err != nil {
		t.Fatal(err)
	}
	return cmd.Execute(context.Background(), flags)
}

func TestListCases(t *gotesting.T) {
	envPath := filepath.Join(writeEnv(t), "env.yaml")

	// Verify that the default one-case-per-line mode works.
	stdout := bytes.Buffer{}
	args := []string{"-env", envPath}
	if status := executeListCmd(t, &stdout, args); status != subcommands.ExitSuccess {
		t.Fatalf("listCmd.Execute(%v) returned status %v; want %v", args, status, subcommands.ExitSuccess)
	}
	if exp := "pass\nfail\nstaged\n"; stdout.String() != exp {
		t.Errorf("listCmd.Execute(%v) printed %q; want %q", args, stdout.String(), exp)
	}

	// Verify that attributes are printed when -long is supplied.
	stdout.Reset()
	args = append([]string{"-long"}, args...)
	if status := executeListCmd(t, &stdout, args); status != subcommands.ExitSuccess {
		t.Fatalf("listCmd.Execute(%v) returned status %v; want %v", args, status, subcommands.ExitSuccess)
	}
	exp := "pass   simple      5  0\n" +
		"fail   simple      30 0\n" +
		"staged multi_stage 30 2\n"
	if stdout.String() != exp {
		t.Errorf("listCmd.Execute(%v) printed %q; want %q", args, stdout.String(), exp)
	}
}

func TestListCasesMissingEnv(t *gotesting.T) {
	if status := executeListCmd(t, io.Discard, nil); status != subcommands.ExitUsageError {
		t.Errorf("listCmd.Execute returned status %v; want %v", status, subcommands.ExitUsageError)
	}
}
