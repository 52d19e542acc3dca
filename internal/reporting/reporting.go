// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package reporting records case results and writes run reports.
package reporting

import (
	"context"
	"sync"
	"time"

	"go.chromium.org/utrun/internal/dut"
)

// CaseResult is the outcome of one case execution.
type CaseResult struct {
	// Name is the case identifier, e.g. "esp32.default.UART can do it".
	Name  string
	Start time.Time
	End   time.Time
	// Failures holds failure details. A case passed if it is empty.
	Failures []string
	// SkipReason is set for cases the device reported as ignored.
	SkipReason  string
	Performance []dut.PerformanceItem
}

// Failed reports whether the case failed.
func (r *CaseResult) Failed() bool {
	return len(r.Failures) > 0
}

// Recorder receives case results as they become available.
type Recorder interface {
	CaseEnd(ctx context.Context, r *CaseResult)
}

// JUnitRecorder accumulates results for a JUnit XML report. It is safe for
// concurrent use.
type JUnitRecorder struct {
	mu      sync.Mutex
	results []*CaseResult
}

// NewJUnitRecorder returns an empty JUnitRecorder.
func NewJUnitRecorder() *JUnitRecorder {
	return &JUnitRecorder{}
}

// CaseEnd records r.
func (j *JUnitRecorder) CaseEnd(ctx context.Context, r *CaseResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = append(j.results, r)
}

// Results returns the results recorded so far.
func (j *JUnitRecorder) Results() []*CaseResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*CaseResult(nil), j.results...)
}

// WriteJUnitXML writes the results recorded so far to path.
func (j *JUnitRecorder) WriteJUnitXML(path string) error {
	return WriteJUnitXMLResults(path, j.Results())
}

// MultiRecorder forwards results to several recorders in order.
type MultiRecorder []Recorder

// CaseEnd forwards r to every recorder.
func (m MultiRecorder) CaseEnd(ctx context.Context, r *CaseResult) {
	for _, rec := range m {
		rec.CaseEnd(ctx, r)
	}
}
