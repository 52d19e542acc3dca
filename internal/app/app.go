// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package app reads the build artifacts of the unit test application and
// flashes them to devices.
package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.chromium.org/utrun/errors"
	"go.chromium.org/utrun/internal/logging"
)

const (
	sdkconfigFile   = "sdkconfig"
	flasherArgsFile = "flasher_args.json"

	baudKey = "CONFIG_ESP_CONSOLE_UART_BAUDRATE"
	// DefaultConsoleBaud is used when the build configuration does not set
	// the console baud rate.
	DefaultConsoleBaud = 115200
)

// FlashFile is a binary written at a flash offset.
type FlashFile struct {
	Offset string
	Path   string
}

// App is the unit test application built for one configuration.
type App struct {
	// Config is the build configuration label, e.g. "default_2".
	Config string
	// Dir is the build directory of the configuration.
	Dir string
	// FlashFiles lists the binaries to flash in ascending offset order.
	// Paths are absolute.
	FlashFiles []FlashFile
	// WriteFlashArgs holds extra arguments for the flash command.
	WriteFlashArgs []string

	sdkconfig map[string]string
}

type flasherArgs struct {
	WriteFlashArgs []string          `json:"write_flash_args"`
	FlashFiles     map[string]string `json:"flash_files"`
}

// Load reads the application built for config under appsDir.
func Load(appsDir, config string) (*App, error) {
	dir := filepath.Join(appsDir, config)
	a := &App{Config: config, Dir: dir}

	b, err := os.ReadFile(filepath.Join(dir, sdkconfigFile))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read build configuration of %s", config)
	}
	if a.sdkconfig, err = parseSdkconfig(b); err != nil {
		return nil, errors.Wrapf(err, "%s: bad %s", config, sdkconfigFile)
	}

	b, err = os.ReadFile(filepath.Join(dir, flasherArgsFile))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read flash layout of %s", config)
	}
	var fa flasherArgs
	if err := json.Unmarshal(b, &fa); err != nil {
		return nil, errors.Wrapf(err, "%s: bad %s", config, flasherArgsFile)
	}
	if len(fa.FlashFiles) == 0 {
		return nil, errors.Errorf("%s: %s lists no flash files", config, flasherArgsFile)
	}
	a.WriteFlashArgs = fa.WriteFlashArgs
	for off, p := range fa.FlashFiles {
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		a.FlashFiles = append(a.FlashFiles, FlashFile{Offset: off, Path: p})
	}
	sort.Slice(a.FlashFiles, func(i, j int) bool {
		return offsetLess(a.FlashFiles[i].Offset, a.FlashFiles[j].Offset)
	})
	return a, nil
}

// offsetLess orders flash offsets numerically, falling back to string order
// for offsets that do not parse.
func offsetLess(a, b string) bool {
	x, errA := strconv.ParseUint(a, 0, 64)
	y, errB := strconv.ParseUint(b, 0, 64)
	if errA != nil || errB != nil {
		return a < b
	}
	return x < y
}

// parseSdkconfig parses KEY=value lines. Quoted values are unquoted and
// comment lines are ignored.
func parseSdkconfig(b []byte) (map[string]string, error) {
	vals := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(b))
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return nil, errors.Errorf("line %d: missing '=' in %q", n, line)
		}
		if len(val) >= 2 && strings.HasPrefix(val, `"`) && strings.HasSuffix(val, `"`) {
			uq, err := strconv.Unquote(val)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", n)
			}
			val = uq
		}
		vals[key] = val
	}
	return vals, sc.Err()
}

// Value returns the value of the build configuration option key.
func (a *App) Value(key string) (string, bool) {
	v, ok := a.sdkconfig[key]
	return v, ok
}

// ConsoleBaud returns the baud rate of the application console.
func (a *App) ConsoleBaud(ctx context.Context) (int, error) {
	v, ok := a.Value(baudKey)
	if !ok {
		logging.Infof(ctx, "Can't find console baudrate in sdkconfig, use %d as default", DefaultConsoleBaud)
		return DefaultConsoleBaud, nil
	}
	baud, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "bad %s", baudKey)
	}
	logging.Infof(ctx, "Console baudrate is %d", baud)
	return baud, nil
}

// ReplaceAppBin replaces the first flash file whose path ends in
// "/<name>.bin" with path. An empty path leaves the layout unchanged. It
// reports whether a file was replaced.
func (a *App) ReplaceAppBin(ctx context.Context, name, path string) bool {
	if path == "" {
		return false
	}
	suffix := "/" + name + ".bin"
	for i := range a.FlashFiles {
		if strings.HasSuffix(filepath.ToSlash(a.FlashFiles[i].Path), suffix) {
			a.FlashFiles[i].Path = path
			logging.Info(ctx, "The replaced application binary is ", path)
			return true
		}
	}
	return false
}
