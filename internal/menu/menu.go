// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package menu reads the test menu printed by the unit test application and
// fills case attributes that are only known to the device.
package menu

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.chromium.org/utrun/errors"
	"go.chromium.org/utrun/internal/caseconf"
	"go.chromium.org/utrun/internal/dut"
	"go.chromium.org/utrun/internal/logging"
	"go.chromium.org/utrun/internal/pattern"
	"go.chromium.org/utrun/internal/runner"
)

// ErrUnresolvedCaseName is returned by Resolve for a case the device does not
// know.
var ErrUnresolvedCaseName = errors.New("unit test case not found in the flashed application")

const (
	// listTimeout bounds the wait for the whole menu listing.
	listTimeout = 20 * time.Second
	// DefaultTimeout is the case timeout used when the menu entry has no
	// timeout tag.
	DefaultTimeout = 30 * time.Second
)

var (
	entryRE   = regexp.MustCompile(`^\((\d+)\)\s+"([^"]+)"\s*(.*)$`)
	childRE   = regexp.MustCompile(`^\s+\((\d+)\)\s+"([^"]+)"`)
	timeoutRE = regexp.MustCompile(`\[timeout=(\d+)\]`)
)

// Entry is one test case listed in the menu.
type Entry struct {
	// Index is the 1-based position of the case in the menu.
	Index int
	Name  string
	// Tags is the raw tag text following the name, e.g. "[ignore][timeout=5]".
	Tags    string
	Type    caseconf.Type
	Timeout time.Duration
	// ChildCaseNum is the number of child entries. It is zero for simple
	// cases.
	ChildCaseNum int
	Children     []string
}

// Discover resets d with r and reads the menu the application prints for an
// empty input line.
func Discover(ctx context.Context, r *runner.Runner, d dut.DUT) ([]Entry, error) {
	if err := r.ResetDUT(ctx, d); err != nil {
		return nil, err
	}
	if err := d.Write(ctx, ""); err != nil {
		return nil, err
	}
	m, err := d.Expect(ctx, listTimeout, pattern.Menu)
	if err != nil {
		return nil, errors.Wrap(err, "timeout during getting the test list")
	}
	entries, err := Parse(m.Groups[0])
	if err != nil {
		return nil, err
	}
	logging.Debugf(ctx, "Found %d cases in the menu of %s", len(entries), d.Name())
	return entries, nil
}

// Parse parses the menu listing printed between the menu header and the
// selection prompt.
func Parse(listing string) ([]Entry, error) {
	var entries []Entry
	for i, line := range strings.Split(listing, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if m := childRE.FindStringSubmatch(line); m != nil {
			if len(entries) == 0 {
				return nil, errors.Errorf("line %d: child entry %q before any case", i+1, line)
			}
			e := &entries[len(entries)-1]
			e.Children = append(e.Children, m[2])
			e.ChildCaseNum = len(e.Children)
			continue
		}
		m := entryRE.FindStringSubmatch(line)
		if m == nil {
			return nil, errors.Errorf("line %d: malformed menu entry %q", i+1, line)
		}
		index, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", i+1)
		}
		e := Entry{
			Index:   index,
			Name:    m[2],
			Tags:    strings.TrimSpace(m[3]),
			Timeout: DefaultTimeout,
		}
		if tm := timeoutRE.FindStringSubmatch(e.Tags); tm != nil {
			sec, err := strconv.Atoi(tm[1])
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", i+1)
			}
			e.Timeout = time.Duration(sec) * time.Second
		}
		switch {
		case strings.Contains(e.Tags, "[multi_stage]"):
			e.Type = caseconf.MultiStage
		case strings.Contains(e.Tags, "[multi_device]"):
			e.Type = caseconf.MultiDevice
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Resolve updates cases with the attributes of their menu entries. The type
// and child count always come from the menu; the timeout only when the case
// does not set one.
func Resolve(cases []*caseconf.Case, entries []Entry) error {
	byName := make(map[string]*Entry, len(entries))
	for i := range entries {
		if _, ok := byName[entries[i].Name]; !ok {
			byName[entries[i].Name] = &entries[i]
		}
	}
	for _, c := range cases {
		e, ok := byName[c.Name]
		if !ok {
			return errors.Wrapf(ErrUnresolvedCaseName, "unit test %q", c.Name)
		}
		c.Type = e.Type
		if c.Timeout == 0 {
			c.Timeout = e.Timeout
		}
		if e.ChildCaseNum > 0 {
			c.ChildCaseNum = e.ChildCaseNum
		}
	}
	return nil
}
