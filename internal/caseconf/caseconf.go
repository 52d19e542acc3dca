// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package caseconf converts user-supplied unit test case descriptions into
// uniform case records grouped by build configuration.
package caseconf

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"go.chromium.org/utrun/errors"
)

// DefaultConfig is the build configuration used when a description does not
// name one.
const DefaultConfig = "default"

// ErrUnsupportedType is returned when a description is neither a string nor
// a mapping.
var ErrUnsupportedType = errors.New("not supported type during parsing unit test case")

// Type is the kind of a unit test case as announced by the device menu.
type Type int

const (
	// Simple cases run once and finish without a reboot, unless a reset is
	// expected.
	Simple Type = iota
	// MultiStage cases span several reboots of one device.
	MultiStage
	// MultiDevice cases run one child case on each of several devices.
	MultiDevice
)

func (t Type) String() string {
	switch t {
	case Simple:
		return "simple"
	case MultiStage:
		return "multi_stage"
	case MultiDevice:
		return "multi_device"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType parses the name or numeric id of a case type.
func ParseType(s string) (Type, error) {
	switch s {
	case "simple", "0":
		return Simple, nil
	case "multi_stage", "1":
		return MultiStage, nil
	case "multi_device", "2":
		return MultiDevice, nil
	}
	return Simple, errors.Errorf("unknown case type %q", s)
}

// Case is a normalized unit test case.
type Case struct {
	// Name identifies the case in the device menu.
	Name string
	// Config is the build configuration label.
	Config string
	// Target is the chip target, e.g. "esp32".
	Target string
	// Reset lists the expected reset reasons in order.
	Reset []string
	// Timeout bounds each expect call while the case runs. Zero means the
	// timeout is resolved later, typically from the device menu.
	Timeout time.Duration
	// ChildCaseNum is the number of stages or devices.
	ChildCaseNum int
	// AppBin optionally overrides the application binary to flash.
	AppBin string
	Type   Type
	// Extra holds unrecognized keys, reported as tags.
	Extra map[string]string
}

// ID returns the identifier used for the case in logs and reports.
func (c *Case) ID() string {
	return ID(c.Name, c.Target, c.Config)
}

// Tags returns the case attributes other than the name as "k=v" pairs.
func (c *Case) Tags() string {
	tags := []string{
		fmt.Sprintf("config=%s", c.Config),
		fmt.Sprintf("target=%s", c.Target),
		fmt.Sprintf("reset=[%s]", strings.Join(c.Reset, ", ")),
		fmt.Sprintf("type=%v", c.Type),
	}
	if c.Timeout > 0 {
		tags = append(tags, fmt.Sprintf("timeout=%d", int(c.Timeout/time.Second)))
	}
	if c.ChildCaseNum > 0 {
		tags = append(tags, fmt.Sprintf("child case num=%d", c.ChildCaseNum))
	}
	if c.AppBin != "" {
		tags = append(tags, fmt.Sprintf("app_bin=%s", c.AppBin))
	}
	var keys []string
	for k := range c.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		tags = append(tags, fmt.Sprintf("%s=%s", k, c.Extra[k]))
	}
	return strings.Join(tags, ", ")
}

// Validate checks that c can be run.
func (c *Case) Validate() error {
	if c.Name == "" {
		return errors.New("case name is empty")
	}
	if c.Type != Simple && c.ChildCaseNum < 1 {
		return errors.Errorf("%s case %q needs a positive child case num", c.Type, c.Name)
	}
	if c.Timeout <= 0 {
		return errors.Errorf("case %q has no timeout", c.Name)
	}
	return nil
}

// Group is the ordered list of cases sharing one build configuration.
type Group struct {
	Config string
	Cases  []*Case
}

// Parse converts one description into a Case. target is used when the
// description does not name one.
func Parse(d Desc, target string) (*Case, error) {
	var c *Case
	switch {
	case d.rec != nil:
		r := d.rec
		if r.Name == "" {
			return nil, errors.New("structured case description has no name")
		}
		c = &Case{
			Name:         r.Name,
			Config:       r.Config,
			Target:       r.Target,
			Reset:        slices.Clone([]string(r.Reset)),
			Timeout:      time.Duration(r.Timeout) * time.Second,
			ChildCaseNum: r.ChildCaseNum,
			AppBin:       r.AppBin,
		}
		if r.Type != "" {
			t, err := ParseType(r.Type)
			if err != nil {
				return nil, errors.Wrapf(err, "case %q", r.Name)
			}
			c.Type = t
		}
		if len(r.Extra) > 0 {
			c.Extra = make(map[string]string, len(r.Extra))
			for k, v := range r.Extra {
				c.Extra[k] = v
			}
		}
	case d.named:
		name, reset := parseNamed(d.name)
		c = &Case{Name: name, Reset: reset}
	default:
		return nil, errors.Wrap(ErrUnsupportedType, "empty description")
	}

	if c.Reset == nil {
		c.Reset = []string{}
	}
	if c.Config == "" {
		c.Config = DefaultConfig
	}
	if c.Target == "" {
		c.Target = target
	}
	return c, nil
}

// Normalize parses descs and groups the cases by build configuration.
// Groups appear in the order their configuration is first seen, and cases
// keep their input order within a group.
func Normalize(descs []Desc, target string) ([]Group, error) {
	var groups []Group
	for i, d := range descs {
		c, err := Parse(d, target)
		if err != nil {
			return nil, errors.Wrapf(err, "case description %d", i)
		}
		idx := slices.IndexFunc(groups, func(g Group) bool { return g.Config == c.Config })
		if idx < 0 {
			groups = append(groups, Group{Config: c.Config})
			idx = len(groups) - 1
		}
		groups[idx].Cases = append(groups[idx].Cases, c)
	}
	return groups, nil
}

const resetSep = " [reset="

// parseNamed splits "<name> [reset=R1,R2]" into its name and reset list.
func parseNamed(s string) (name string, reset []string) {
	parts := strings.Split(s, resetSep)
	if len(parts) < 2 {
		return parts[0], []string{}
	}
	rest := parts[1]
	if len(rest) > 0 {
		rest = rest[:len(rest)-1] // drop "]"
	}
	return parts[0], parseResetList(rest)
}

// parseResetList splits a comma-separated reset list, trimming spaces and
// dropping empty entries.
func parseResetList(s string) []string {
	out := []string{}
	for _, r := range strings.Split(s, ",") {
		if r = strings.Trim(r, " "); r != "" {
			out = append(out, r)
		}
	}
	return out
}

var stripConfigRE = regexp.MustCompile(`^(.+?)(_\d+)?$`)

// StripConfig removes a trailing "_<digits>" from a configuration label.
// Large suites are split across binaries named e.g. "default" and
// "default_2" that report as one configuration.
func StripConfig(config string) string {
	m := stripConfigRE.FindStringSubmatch(config)
	if m == nil {
		return config
	}
	return m[1]
}

// ID composes the report identifier of a case.
func ID(name, target, config string) string {
	return fmt.Sprintf("%s.%s.%s", target, StripConfig(config), name)
}

// ParseToken parses a command-line case token of comma-separated
// "key:value" items. A bare item sets the name.
func ParseToken(token string) (Record, error) {
	var r Record
	for _, item := range strings.Split(token, ",") {
		if item == "" {
			continue
		}
		pair := strings.SplitN(item, ":", 2)
		if len(pair) == 1 {
			r.Name = pair[0]
			continue
		}
		key, val := pair[0], pair[1]
		switch key {
		case "name":
			r.Name = val
		case "timeout", "child case num":
			n, err := strconv.Atoi(val)
			if err != nil {
				return Record{}, errors.Errorf("error in argument item %q of %q: %s is not an integer", item, token, key)
			}
			if key == "timeout" {
				r.Timeout = n
			} else {
				r.ChildCaseNum = n
			}
		case "config":
			r.Config = val
		case "reset":
			r.Reset = parseResetList(val)
		case "target":
			r.Target = val
		case "type":
			r.Type = val
		case "app_bin":
			r.AppBin = val
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]string)
			}
			r.Extra[key] = val
		}
	}
	if r.Name == "" {
		return Record{}, errors.Errorf("case token %q has no name", token)
	}
	return r, nil
}
