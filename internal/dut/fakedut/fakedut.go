// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package fakedut provides in-memory devices for unit tests. A Device is a
// real dut.Console connected through pipes to simulated firmware.
package fakedut

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"go.chromium.org/utrun/internal/dut"
)

// Firmware simulates the program running on a device. Calls are serialized.
type Firmware struct {
	// Boot returns the output printed after a hardware reset.
	Boot func() string
	// Handle returns the output printed in response to one input line,
	// without its line terminator.
	Handle func(line string) string
}

// Device is a fake device under test.
type Device struct {
	*dut.Console

	fw    Firmware
	devW  *io.PipeWriter
	fwMu  sync.Mutex // serializes firmware calls and device output
	inMu  sync.Mutex
	input []string
	reset int
}

type hostConn struct {
	*io.PipeReader
	*io.PipeWriter
}

func (c hostConn) Close() error {
	c.PipeReader.Close()
	return c.PipeWriter.Close()
}

// New starts a fake device running fw.
func New(name string, fw Firmware) *Device {
	hostR, devW := io.Pipe()
	devR, hostW := io.Pipe()

	d := &Device{fw: fw, devW: devW}
	d.Console = dut.NewConsole(name, hostConn{hostR, hostW}, d.hardReset, nil)
	go d.serve(devR)
	return d
}

func (d *Device) serve(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Split(splitCRLF)
	for sc.Scan() {
		line := sc.Text()
		d.inMu.Lock()
		d.input = append(d.input, line)
		d.inMu.Unlock()

		d.fwMu.Lock()
		if d.fw.Handle != nil {
			d.emitLocked(d.fw.Handle(line))
		}
		d.fwMu.Unlock()
	}
}

func (d *Device) hardReset(ctx context.Context) error {
	d.inMu.Lock()
	d.reset++
	d.inMu.Unlock()

	d.fwMu.Lock()
	defer d.fwMu.Unlock()
	if d.fw.Boot != nil {
		d.emitLocked(d.fw.Boot())
	}
	return nil
}

// Emit prints s on the device console as if the firmware printed it.
func (d *Device) Emit(s string) {
	d.fwMu.Lock()
	defer d.fwMu.Unlock()
	d.emitLocked(s)
}

func (d *Device) emitLocked(s string) {
	if s == "" {
		return
	}
	d.devW.Write([]byte(s))
}

// Input returns the lines written to the device so far.
func (d *Device) Input() []string {
	d.inMu.Lock()
	defer d.inMu.Unlock()
	return append([]string(nil), d.input...)
}

// Resets returns the number of hardware resets performed.
func (d *Device) Resets() int {
	d.inMu.Lock()
	defer d.inMu.Unlock()
	return d.reset
}

func splitCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.Index(data, []byte("\r\n")); i >= 0 {
		return i + 2, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Quote returns the input line that selects the case called name.
func Quote(name string) string {
	return `"` + name + `"`
}

// trimQuotes returns the case name selected by line, if any.
func trimQuotes(line string) (string, bool) {
	if len(line) >= 2 && strings.HasPrefix(line, `"`) && strings.HasSuffix(line, `"`) {
		return line[1 : len(line)-1], true
	}
	return "", false
}
