// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package dut

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"

	"go.chromium.org/utrun/errors"
	"go.chromium.org/utrun/internal/ctxutil"
	"go.chromium.org/utrun/internal/logging"
)

var supportedBaudRates = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1152000: unix.B1152000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	3000000: unix.B3000000,
}

// resetPulse is how long the chip enable line is held low.
const resetPulse = 100 * time.Millisecond

// OpenSerial opens the tty at port in raw mode and returns a Console for it.
// The device is reset by pulsing RTS, which development boards wire to the
// chip enable pin. Raw output is copied to log if it is non-nil.
func OpenSerial(ctx context.Context, name, port string, baud int, log io.Writer) (*Console, error) {
	rate, ok := supportedBaudRates[baud]
	if !ok {
		return nil, errors.Errorf("unsupported baud rate %d", baud)
	}

	warnPortHolders(ctx, port)

	// O_NONBLOCK avoids waiting for carrier detect and lets the runtime
	// poller interrupt a blocked Read on Close.
	f, err := os.OpenFile(port, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", port)
	}
	if err := control(f, func(fd int) error { return makeRaw(fd, rate) }); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to configure %s", port)
	}
	logging.Debugf(ctx, "%s: opened %s at %d baud", name, port, baud)

	reset := func(ctx context.Context) error { return pulseReset(ctx, f) }
	return NewConsole(name, f, reset, log), nil
}

// control runs fn on the descriptor of f without switching it to blocking
// mode as f.Fd would.
func control(f *os.File, fn func(fd int) error) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var ferr error
	if err := rc.Control(func(fd uintptr) { ferr = fn(int(fd)) }); err != nil {
		return err
	}
	return ferr
}

func makeRaw(fd int, rate uint32) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Iflag |= unix.IGNPAR
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | rate
	t.Cc[unix.VTIME] = 0
	t.Cc[unix.VMIN] = 1
	t.Ispeed = rate
	t.Ospeed = rate

	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

// pulseReset releases DTR so the boot strap pin stays high, then pulls the
// chip enable line low via RTS and releases it.
func pulseReset(ctx context.Context, f *os.File) error {
	setLine := func(req uint, line int) error {
		return control(f, func(fd int) error { return unix.IoctlSetPointerInt(fd, req, line) })
	}
	if err := setLine(unix.TIOCMBIC, unix.TIOCM_DTR); err != nil {
		return errors.Wrap(err, "failed to clear DTR")
	}
	if err := setLine(unix.TIOCMBIS, unix.TIOCM_RTS); err != nil {
		return errors.Wrap(err, "failed to set RTS")
	}
	if err := ctxutil.Sleep(ctx, clk, resetPulse); err != nil {
		setLine(unix.TIOCMBIC, unix.TIOCM_RTS)
		return err
	}
	if err := setLine(unix.TIOCMBIC, unix.TIOCM_RTS); err != nil {
		return errors.Wrap(err, "failed to clear RTS")
	}
	return nil
}

// warnPortHolders logs other processes that have port open, since they
// steal console output.
func warnPortHolders(ctx context.Context, port string) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		logging.Debugf(ctx, "Failed to list processes: %v", err)
		return
	}
	self := int32(os.Getpid())
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		files, err := p.OpenFilesWithContext(ctx)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.Path != port {
				continue
			}
			name, _ := p.NameWithContext(ctx)
			logging.Warningf(ctx, "%s is also held by process %d (%s)", port, p.Pid, name)
			break
		}
	}
}
