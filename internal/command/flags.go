// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package command contains helpers shared by the utrun command-line entry
// points.
package command

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DurationFlag implements flag.Value to save a user-supplied integer value
// as a time.Duration in the given units.
type DurationFlag struct {
	units time.Duration
	dst   *time.Duration
}

// NewDurationFlag returns a DurationFlag that assigns to dst. def is
// assigned to dst immediately.
func NewDurationFlag(units time.Duration, dst *time.Duration, def time.Duration) *DurationFlag {
	*dst = def
	return &DurationFlag{units: units, dst: dst}
}

func (f *DurationFlag) String() string {
	if f.dst == nil {
		return ""
	}
	return strconv.FormatInt(int64(*f.dst/f.units), 10)
}

// Set parses v as an integer number of units.
func (f *DurationFlag) Set(v string) error {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%q is not an integer", v)
	}
	if n < 0 {
		return fmt.Errorf("%d is negative", n)
	}
	*f.dst = time.Duration(n) * f.units
	return nil
}

// EnumFlag implements flag.Value to map a user-supplied string value to an
// enum value.
type EnumFlag struct {
	valid  map[string]int
	assign func(val int)
	def    string
}

// NewEnumFlag returns an EnumFlag using the supplied map of valid values and
// assignment function. def is assigned immediately.
func NewEnumFlag(valid map[string]int, assign func(val int), def string) *EnumFlag {
	f := &EnumFlag{valid: valid, assign: assign, def: def}
	if err := f.Set(def); err != nil {
		panic(err)
	}
	return f
}

// Default returns the default value used if the flag is unset.
func (f *EnumFlag) Default() string { return f.def }

// QuotedValues returns a comma-separated list of quoted values the user can
// supply.
func (f *EnumFlag) QuotedValues() string {
	var qn []string
	for n := range f.valid {
		qn = append(qn, strconv.Quote(n))
	}
	sort.Strings(qn)
	return strings.Join(qn, ", ")
}

func (f *EnumFlag) String() string { return "" }

// Set assigns the enum value corresponding to v.
func (f *EnumFlag) Set(v string) error {
	ev, ok := f.valid[v]
	if !ok {
		return fmt.Errorf("must be in %s", f.QuotedValues())
	}
	f.assign(ev)
	return nil
}

// RepeatedFlag implements flag.Value around a function that is called each
// time the flag is supplied.
type RepeatedFlag func(v string) error

func (f *RepeatedFlag) String() string { return "" }

// Set calls the underlying function.
func (f *RepeatedFlag) Set(v string) error { return (*f)(v) }
