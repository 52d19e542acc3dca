// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package env describes the bench of devices a run uses and hands them out
// flashed with the application under test.
package env

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v2"

	"go.chromium.org/utrun/errors"
	"go.chromium.org/utrun/internal/app"
	"go.chromium.org/utrun/internal/dut"
	"go.chromium.org/utrun/internal/logging"
)

// DefaultFlashBaud is the flashing baud rate used when none is configured.
const DefaultFlashBaud = 460800

// DUTConfig describes one device of the bench.
type DUTConfig struct {
	Name string `yaml:"name"`
	Port string `yaml:"port"`
	// Baud overrides the console baud rate of the application.
	Baud int `yaml:"baud"`
}

// Config is the contents of an environment file.
type Config struct {
	// Target is the chip target of all devices, e.g. "esp32".
	Target string `yaml:"target"`
	// AppsDir holds one build directory per configuration. A relative path
	// is resolved against the directory of the environment file.
	AppsDir string `yaml:"apps_dir"`
	// FlashCommand is the flash command template. See app.Flasher.
	FlashCommand string `yaml:"flash_command"`
	FlashBaud    int    `yaml:"flash_baud"`
	// LogDir receives a raw console log per device. Empty disables logs.
	LogDir string      `yaml:"log_dir"`
	DUTs   []DUTConfig `yaml:"duts"`
}

// LoadConfig reads the environment file at path.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read environment file")
	}
	var cfg Config
	if err := yaml.UnmarshalStrict(b, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	base := filepath.Dir(path)
	for _, p := range []*string{&cfg.AppsDir, &cfg.LogDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	if cfg.FlashBaud == 0 {
		cfg.FlashBaud = DefaultFlashBaud
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "bad environment file %s", path)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Target == "" {
		return errors.New("target is not set")
	}
	if c.AppsDir == "" {
		return errors.New("apps_dir is not set")
	}
	if len(c.DUTs) == 0 {
		return errors.New("no duts")
	}
	seen := make(map[string]bool)
	for i, d := range c.DUTs {
		if d.Name == "" || d.Port == "" {
			return errors.Errorf("dut %d needs a name and a port", i)
		}
		if seen[d.Name] {
			return errors.Errorf("duplicate dut name %q", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// flasher writes an application to the device at port.
type flasher interface {
	Flash(ctx context.Context, a *app.App, port string, baud int) error
}

// opener opens the console of a device.
type opener func(ctx context.Context, name, port string, baud int, log io.Writer) (dut.DUT, error)

func openSerial(ctx context.Context, name, port string, baud int, log io.Writer) (dut.DUT, error) {
	return dut.OpenSerial(ctx, name, port, baud, log)
}

type acquired struct {
	d   dut.DUT
	app *app.App
	log *os.File
}

// Env hands out the devices described by a Config. It is safe for
// concurrent use.
type Env struct {
	cfg   Config
	flash flasher
	open  opener

	mu   sync.Mutex
	duts map[int]*acquired
}

// New returns an Env for cfg.
func New(cfg *Config) *Env {
	return &Env{
		cfg:   *cfg,
		flash: &app.Flasher{Command: cfg.FlashCommand, Target: cfg.Target},
		open:  openSerial,
		duts:  make(map[int]*acquired),
	}
}

// Target returns the chip target of the devices.
func (e *Env) Target() string { return e.cfg.Target }

// NumDUTs returns the number of devices of the bench.
func (e *Env) NumDUTs() int { return len(e.cfg.DUTs) }

// LoadApp loads the application built for config.
func (e *Env) LoadApp(config string) (*app.App, error) {
	return app.Load(e.cfg.AppsDir, config)
}

// Acquire returns device index flashed with a. A device already holding a
// is returned as is; one holding another application is closed, flashed and
// reopened.
func (e *Env) Acquire(ctx context.Context, index int, a *app.App) (dut.DUT, error) {
	if index < 0 || index >= len(e.cfg.DUTs) {
		return nil, errors.Errorf("case needs dut %d but the environment has %d", index+1, len(e.cfg.DUTs))
	}
	dc := e.cfg.DUTs[index]

	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.duts[index]; ok {
		if cur.app == a {
			return cur.d, nil
		}
		delete(e.duts, index)
		if err := cur.close(); err != nil {
			return nil, errors.Wrapf(err, "failed to release %s", dc.Name)
		}
	}

	ctx = logging.SetLogPrefix(ctx, "["+dc.Name+"] ")
	if err := e.flash.Flash(ctx, a, dc.Port, e.cfg.FlashBaud); err != nil {
		return nil, err
	}
	baud := dc.Baud
	if baud == 0 {
		var err error
		if baud, err = a.ConsoleBaud(ctx); err != nil {
			return nil, err
		}
	}

	var log *os.File
	var w io.Writer
	if e.cfg.LogDir != "" {
		if err := os.MkdirAll(e.cfg.LogDir, 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create log directory")
		}
		var err error
		log, err = os.OpenFile(filepath.Join(e.cfg.LogDir, dc.Name+".log"), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open console log of %s", dc.Name)
		}
		w = log
	}
	d, err := e.open(ctx, dc.Name, dc.Port, baud, w)
	if err != nil {
		if log != nil {
			log.Close()
		}
		return nil, errors.Wrapf(err, "failed to open %s", dc.Name)
	}
	e.duts[index] = &acquired{d: d, app: a, log: log}
	return d, nil
}

func (a *acquired) close() error {
	var merr *multierror.Error
	if err := a.d.Close(); err != nil {
		merr = multierror.Append(merr, errors.Wrapf(err, "close %s", a.d.Name()))
	}
	if a.log != nil {
		if err := a.log.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

// ReleaseAll closes every acquired device.
func (e *Env) ReleaseAll(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var merr *multierror.Error
	for index, a := range e.duts {
		logging.Debugf(ctx, "Releasing %s", a.d.Name())
		if err := a.close(); err != nil {
			merr = multierror.Append(merr, err)
		}
		delete(e.duts, index)
	}
	return merr.ErrorOrNil()
}
