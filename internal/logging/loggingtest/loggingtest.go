// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package loggingtest provides logging utilities for unit tests.
package loggingtest

import (
	"strings"
	"sync"
	"testing"
	"time"

	"go.chromium.org/utrun/internal/logging"
)

// Logger is a logging.Logger that keeps logs in memory and also emits them
// as unit test logs.
type Logger struct {
	t     testing.TB
	level logging.Level

	mu   sync.Mutex
	logs []string
}

// NewLogger creates a Logger keeping logs at or above level.
func NewLogger(t testing.TB, level logging.Level) *Logger {
	return &Logger{t: t, level: level}
}

// Log gets called for a log event.
func (l *Logger) Log(level logging.Level, ts time.Time, msg string) {
	l.t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.t.Log(msg)
	if level >= l.level {
		l.logs = append(l.logs, msg)
	}
}

// Logs returns a list of logs received so far.
func (l *Logger) Logs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.logs...)
}

// String returns received logs as a newline-separated string.
func (l *Logger) String() string {
	return strings.Join(l.Logs(), "\n")
}

// Contains reports whether any received log contains substr.
func (l *Logger) Contains(substr string) bool {
	for _, s := range l.Logs() {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
