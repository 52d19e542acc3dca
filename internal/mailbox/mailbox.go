// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package mailbox exchanges named signals between the workers of a
// multi-device case.
package mailbox

import (
	"context"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"golang.org/x/exp/slices"

	"go.chromium.org/utrun/errors"
)

// ErrWaitTimeout is returned by Wait when no matching signal arrived in time.
var ErrWaitTimeout = errors.New("timed out waiting for signal")

// Signal is a rendezvous message sent by one device to another.
type Signal struct {
	Name string
	// Parameter is written to the receiving device. It may be empty.
	Parameter []byte
}

// Mailbox holds signals sent but not yet received. A signal is delivered to
// the first waiter that finds it, whichever device that waiter drives.
type Mailbox struct {
	clk clock.Clock

	mu      sync.Mutex
	signals []Signal      // in send order
	notify  chan struct{} // closed and replaced on every Send
}

// New returns an empty Mailbox using clk for wait timeouts.
func New(clk clock.Clock) *Mailbox {
	return &Mailbox{clk: clk, notify: make(chan struct{})}
}

// Send posts a signal and wakes all waiters.
func (m *Mailbox) Send(s Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, s)
	close(m.notify)
	m.notify = make(chan struct{})
}

// take removes and returns the oldest signal called name. If there is none,
// it returns a channel closed on the next Send.
func (m *Mailbox) take(name string) (*Signal, <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.signals, func(s Signal) bool { return s.Name == name })
	if i < 0 {
		return nil, m.notify
	}
	s := m.signals[i]
	m.signals = slices.Delete(m.signals, i, i+1)
	return &s, nil
}

// Wait blocks until a signal called name is available and removes it, or
// until timeout passes or ctx is done.
func (m *Mailbox) Wait(ctx context.Context, name string, timeout time.Duration) (*Signal, error) {
	timer := m.clk.NewTimer(timeout)
	defer timer.Stop()

	for {
		s, notify := m.take(name)
		if s != nil {
			return s, nil
		}
		select {
		case <-notify:
		case <-timer.C():
			return nil, errors.Wrapf(ErrWaitTimeout, "signal %q after %v", name, timeout)
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for signal %q", name)
		}
	}
}

// Pending returns the number of signals not yet received.
func (m *Mailbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.signals)
}
