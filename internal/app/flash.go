// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package app

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	"go.chromium.org/utrun/errors"
	"go.chromium.org/utrun/internal/logging"
	"go.chromium.org/utrun/shutil"
)

// DefaultFlashCommand is the flash command template used when none is
// configured.
const DefaultFlashCommand = "esptool.py --chip {target} --port {port} --baud {baud} write_flash"

// runCmd runs a command and returns its combined output. Tests replace it.
var runCmd = func(ctx context.Context, args []string) ([]byte, error) {
	return exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
}

// Flasher writes applications to devices with an external command.
type Flasher struct {
	// Command is a command line template. "{port}", "{baud}" and "{target}"
	// are replaced in each argument. The write flash arguments and an
	// "offset path" pair per flash file are appended.
	Command string
	// Target is the chip target passed as "{target}".
	Target string
}

// Args returns the command line that flashes a to the device at port.
func (f *Flasher) Args(a *App, port string, baud int) ([]string, error) {
	tmpl := f.Command
	if tmpl == "" {
		tmpl = DefaultFlashCommand
	}
	args, err := shutil.Expand(tmpl, map[string]string{
		"port":   port,
		"baud":   strconv.Itoa(baud),
		"target": f.Target,
	})
	if err != nil {
		return nil, err
	}
	args = append(args, a.WriteFlashArgs...)
	for _, ff := range a.FlashFiles {
		args = append(args, ff.Offset, ff.Path)
	}
	return args, nil
}

// Flash writes a to the device at port.
func (f *Flasher) Flash(ctx context.Context, a *App, port string, baud int) error {
	args, err := f.Args(a, port, baud)
	if err != nil {
		return err
	}
	logging.Info(ctx, "Flashing ", a.Config, " to ", port)
	logging.Debug(ctx, "Running ", shutil.EscapeSlice(args))
	out, err := runCmd(ctx, args)
	if err != nil {
		if s := strings.TrimSpace(string(out)); s != "" {
			logging.Info(ctx, s)
		}
		return errors.Wrapf(err, "flashing %s to %s failed", a.Config, port)
	}
	logging.Info(ctx, "Download finished")
	return nil
}
