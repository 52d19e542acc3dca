// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package reporting

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.chromium.org/utrun/internal/logging"
)

// StreamedResultsFilename is a file name to be used with StreamedRecorder.
const StreamedResultsFilename = "streamed_results.jsonl"

// streamedResult is the JSON form of a CaseResult.
type streamedResult struct {
	Name        string            `json:"name"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	Failures    []string          `json:"failures,omitempty"`
	SkipReason  string            `json:"skipReason,omitempty"`
	Performance map[string]string `json:"performance,omitempty"`
}

// StreamedRecorder writes every result to a file as one JSON object per line
// as soon as the case ends, so results survive an interrupted run.
type StreamedRecorder struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewStreamedRecorder creates and returns a new StreamedRecorder writing to
// a file at path. If the file already exists, new results are appended to it.
func NewStreamedRecorder(path string) (*StreamedRecorder, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	return &StreamedRecorder{f: f, enc: json.NewEncoder(f)}, nil
}

// CaseEnd writes r. Write errors are logged and do not affect the run.
func (s *StreamedRecorder) CaseEnd(ctx context.Context, r *CaseResult) {
	res := streamedResult{
		Name:       r.Name,
		Start:      r.Start,
		End:        r.End,
		Failures:   r.Failures,
		SkipReason: r.SkipReason,
	}
	if len(r.Performance) > 0 {
		res.Performance = make(map[string]string, len(r.Performance))
		for _, p := range r.Performance {
			res.Performance[p.Name] = p.Value
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(&res); err != nil {
		logging.Info(ctx, "Failed to write streamed result: ", err)
	}
}

// Close closes the underlying file.
func (s *StreamedRecorder) Close() error {
	return s.f.Close()
}
