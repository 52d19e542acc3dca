// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package logging_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/utrun/internal/logging"
)

type entry struct {
	Level logging.Level
	Msg   string
}

// entryLogger appends every log to entries.
type entryLogger struct {
	entries *[]entry
}

func (l entryLogger) Log(level logging.Level, ts time.Time, msg string) {
	*l.entries = append(*l.entries, entry{level, msg})
}

func recorder(entries *[]entry) logging.Logger {
	return entryLogger{entries}
}

func TestLogWithoutLogger(t *testing.T) {
	ctx := context.Background()
	if logging.HasLogger(ctx) {
		t.Error("HasLogger(context.Background()) = true; want false")
	}
	// Must not panic.
	logging.Info(ctx, "dropped")
	logging.Warningf(ctx, "dropped %d", 1)
}

func TestAttachLoggerPropagates(t *testing.T) {
	var parent, child []entry
	ctx := logging.AttachLogger(context.Background(), recorder(&parent))
	cctx := logging.AttachLogger(ctx, recorder(&child))

	logging.Info(ctx, "to parent")
	logging.Debugf(cctx, "to %s", "both")
	logging.Warning(cctx, "careful")

	wantParent := []entry{
		{logging.LevelInfo, "to parent"},
		{logging.LevelDebug, "to both"},
		{logging.LevelWarning, "careful"},
	}
	if diff := cmp.Diff(parent, wantParent); diff != "" {
		t.Errorf("Parent logs mismatch (-got +want):\n%s", diff)
	}
	wantChild := []entry{
		{logging.LevelDebug, "to both"},
		{logging.LevelWarning, "careful"},
	}
	if diff := cmp.Diff(child, wantChild); diff != "" {
		t.Errorf("Child logs mismatch (-got +want):\n%s", diff)
	}
}

func TestSetLogPrefixNests(t *testing.T) {
	var got []entry
	ctx := logging.AttachLogger(context.Background(), recorder(&got))
	ctx = logging.SetLogPrefix(ctx, "[dut0] ")
	logging.Info(ctx, "reset")
	ctx = logging.SetLogPrefix(ctx, "[stage 2] ")
	logging.Info(ctx, "running")

	want := []entry{
		{logging.LevelInfo, "[dut0] reset"},
		{logging.LevelInfo, "[dut0] [stage 2] running"},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Logs mismatch (-got +want):\n%s", diff)
	}
}

func TestInvalidUTF8IsDropped(t *testing.T) {
	var got []entry
	ctx := logging.AttachLogger(context.Background(), recorder(&got))
	logging.Info(ctx, "rst:\xff\xfe0x1")
	if len(got) != 1 || got[0].Msg != "rst:0x1" {
		t.Errorf("Logs = %v; want a single sanitized message", got)
	}
}

func TestSinkLogger(t *testing.T) {
	var b bytes.Buffer
	logger := logging.NewSinkLogger(logging.LevelInfo, false, logging.NewWriterSink(&b))
	ts := time.Unix(0, 0)
	logger.Log(logging.LevelDebug, ts, "hidden")
	logger.Log(logging.LevelInfo, ts, "shown")
	logger.Log(logging.LevelWarning, ts, "timeout")

	if diff := cmp.Diff(b.String(), "shown\nWARNING: timeout\n"); diff != "" {
		t.Errorf("Sink output mismatch (-got +want):\n%s", diff)
	}

	b.Reset()
	logger = logging.NewSinkLogger(logging.LevelDebug, true, logging.NewWriterSink(&b))
	logger.Log(logging.LevelDebug, time.Unix(1, 0), "x")
	if diff := cmp.Diff(b.String(), "1970-01-01T00:00:01.000000Z x\n"); diff != "" {
		t.Errorf("Timestamped output mismatch (-got +want):\n%s", diff)
	}
}
