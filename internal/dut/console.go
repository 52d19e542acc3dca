// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package dut

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"go.chromium.org/utrun/errors"
	"go.chromium.org/utrun/internal/logging"
)

// clk is swapped out in tests.
var clk clock.Clock = clock.NewClock()

const (
	readSize = 4096
	// maxPending bounds output kept for matching. Older output is dropped.
	maxPending = 1 << 20
)

var performanceRE = regexp.MustCompile(`\[Performance\]\[(\w+)\]: ([^\r\n]+)`)

// ResetFunc performs a hardware reset of a device.
type ResetFunc func(ctx context.Context) error

// Console is a DUT driven over a byte stream, typically a serial port.
type Console struct {
	name  string
	rw    io.ReadWriteCloser
	reset ResetFunc
	log   io.Writer
	done  chan struct{}

	wmu sync.Mutex // serializes writes to rw

	mu       sync.Mutex
	pending  []byte        // output not consumed by Expect
	notify   chan struct{} // closed and replaced whenever pending changes
	readErr  error         // set once the reader stops
	capture  *bytes.Buffer // nil unless capturing
	line     []byte        // partial line for performance parsing
	perf     []PerformanceItem
	closeErr error
	closed   bool
}

var _ DUT = (*Console)(nil)

// NewConsole returns a Console reading and writing rw. reset may be nil if
// the device cannot be reset. Raw output is also copied to log if it is
// non-nil. The Console owns rw and closes it on Close.
func NewConsole(name string, rw io.ReadWriteCloser, reset ResetFunc, log io.Writer) *Console {
	c := &Console{
		name:   name,
		rw:     rw,
		reset:  reset,
		log:    log,
		done:   make(chan struct{}),
		notify: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Name returns the device name.
func (c *Console) Name() string { return c.name }

func (c *Console) readLoop() {
	defer close(c.done)
	buf := make([]byte, readSize)
	for {
		n, err := c.rw.Read(buf)
		if n > 0 {
			c.received(buf[:n])
		}
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.wakeLocked()
			c.mu.Unlock()
			return
		}
	}
}

func (c *Console) received(b []byte) {
	if c.log != nil {
		c.log.Write(b)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = append(c.pending, b...)
	if over := len(c.pending) - maxPending; over > 0 {
		c.pending = append(c.pending[:0], c.pending[over:]...)
	}
	if c.capture != nil {
		c.capture.Write(b)
	}
	c.scanPerformanceLocked(b)
	c.wakeLocked()
}

func (c *Console) scanPerformanceLocked(b []byte) {
	for len(b) > 0 {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			c.line = append(c.line, b...)
			if len(c.line) > readSize {
				c.line = c.line[:0]
			}
			return
		}
		c.line = append(c.line, b[:i]...)
		if m := performanceRE.FindSubmatch(c.line); m != nil {
			c.perf = append(c.perf, PerformanceItem{Name: string(m[1]), Value: string(bytes.TrimRight(m[2], " \r"))})
		}
		c.line = c.line[:0]
		b = b[i+1:]
	}
}

func (c *Console) wakeLocked() {
	close(c.notify)
	c.notify = make(chan struct{})
}

// Write sends data followed by "\r\n".
func (c *Console) Write(ctx context.Context, data string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logging.Debugf(ctx, "%s: write %q", c.name, data)
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := io.WriteString(c.rw, data+"\r\n"); err != nil {
		return errors.Wrapf(err, "%s: write failed", c.name)
	}
	return nil
}

// Expect waits for the earliest match of any of patterns in pending output.
// If two patterns match at the same position, the earlier one wins.
func (c *Console) Expect(ctx context.Context, timeout time.Duration, patterns ...*regexp.Regexp) (*Match, error) {
	timer := clk.NewTimer(timeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		if m := c.matchLocked(patterns); m != nil {
			c.mu.Unlock()
			return m, nil
		}
		if c.readErr != nil {
			err := c.readErr
			c.mu.Unlock()
			return nil, errors.Wrapf(err, "%s: console closed", c.name)
		}
		notify := c.notify
		c.mu.Unlock()

		select {
		case <-notify:
		case <-timer.C():
			return nil, errors.Wrapf(ErrExpectTimeout, "%s: no match for %s within %v", c.name, describe(patterns), timeout)
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "%s: expect interrupted", c.name)
		}
	}
}

func (c *Console) matchLocked(patterns []*regexp.Regexp) *Match {
	best := -1
	var loc []int
	for i, re := range patterns {
		l := re.FindSubmatchIndex(c.pending)
		if l == nil {
			continue
		}
		if best < 0 || l[0] < loc[0] {
			best, loc = i, l
		}
	}
	if best < 0 {
		return nil
	}

	m := &Match{Index: best, Text: string(c.pending[loc[0]:loc[1]])}
	for g := 1; g < len(loc)/2; g++ {
		s, e := loc[2*g], loc[2*g+1]
		if s < 0 {
			m.Groups = append(m.Groups, "")
			continue
		}
		m.Groups = append(m.Groups, string(c.pending[s:e]))
	}
	c.pending = append(c.pending[:0], c.pending[loc[1]:]...)
	return m
}

func describe(patterns []*regexp.Regexp) string {
	var b bytes.Buffer
	for i, re := range patterns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q", re.String())
	}
	return b.String()
}

// StartCapture starts recording raw output.
func (c *Console) StartCapture() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capture = &bytes.Buffer{}
}

// StopCapture stops recording and returns the recorded output.
func (c *Console) StopCapture() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil {
		return ""
	}
	s := c.capture.String()
	c.capture = nil
	return s
}

// Reset drops pending output and resets the device.
func (c *Console) Reset(ctx context.Context) error {
	c.mu.Lock()
	c.pending = c.pending[:0]
	c.mu.Unlock()

	if c.reset == nil {
		return errors.Errorf("%s: reset is not supported", c.name)
	}
	logging.Debugf(ctx, "%s: hardware reset", c.name)
	if err := c.reset(ctx); err != nil {
		return errors.Wrapf(err, "%s: reset failed", c.name)
	}
	return nil
}

// PerformanceItems returns the performance items printed since the last
// call.
func (c *Console) PerformanceItems() []PerformanceItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.perf
	c.perf = nil
	return items
}

// Close closes the underlying stream and waits for the reader to exit.
// Calling Close more than once returns the first result.
func (c *Console) Close() error {
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return err
	}
	c.closed = true
	c.mu.Unlock()

	err := c.rw.Close()
	<-c.done

	c.mu.Lock()
	c.closeErr = err
	c.mu.Unlock()
	return err
}
