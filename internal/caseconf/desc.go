// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package caseconf

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"go.chromium.org/utrun/errors"
)

// Record is a structured case description.
type Record struct {
	Name   string    `yaml:"name"`
	Reset  ResetList `yaml:"reset,omitempty"`
	Config string    `yaml:"config,omitempty"`
	Target string    `yaml:"target,omitempty"`
	// Timeout is in seconds.
	Timeout      int    `yaml:"timeout,omitempty"`
	ChildCaseNum int    `yaml:"child case num,omitempty"`
	AppBin       string `yaml:"app_bin,omitempty"`
	Type         string `yaml:"type,omitempty"`
	// Extra collects keys not listed above.
	Extra map[string]string `yaml:",inline"`
}

// ResetList is a list of expected reset reasons. In YAML it is either a
// sequence or a comma-separated string.
type ResetList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *ResetList) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		*l = parseResetList(s)
		return nil
	}
	var list []string
	if err := unmarshal(&list); err != nil {
		return errors.Wrap(err, "reset must be a string or a list of strings")
	}
	*l = list
	return nil
}

// Desc is one case description: either a bare name with an optional inline
// reset annotation, or a structured record.
type Desc struct {
	named bool
	name  string
	rec   *Record
}

// Named returns a description of the form "<name>[ [reset=R1,R2,...]]".
func Named(s string) Desc {
	return Desc{named: true, name: s}
}

// Structured returns a description holding r.
func Structured(r Record) Desc {
	return Desc{rec: &r}
}

func (d Desc) String() string {
	if d.rec != nil {
		return fmt.Sprintf("%+v", *d.rec)
	}
	return d.name
}

// UnmarshalYAML implements yaml.Unmarshaler. Strings become Named and
// mappings become Structured; any other node fails with ErrUnsupportedType.
func (d *Desc) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		*d = Named(v)
		return nil
	case map[interface{}]interface{}:
		var r Record
		if err := unmarshal(&r); err != nil {
			return err
		}
		*d = Structured(r)
		return nil
	}
	return errors.Wrapf(ErrUnsupportedType, "got %T", raw)
}

// LoadFile reads case descriptions from a YAML file holding either one
// description or a list of them.
func LoadFile(path string) ([]Desc, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	descs, err := parseYAML(b)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return descs, nil
}

func parseYAML(b []byte) ([]Desc, error) {
	var raw interface{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	switch raw.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		var descs []Desc
		if err := yaml.Unmarshal(b, &descs); err != nil {
			return nil, err
		}
		return descs, nil
	}
	var d Desc
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	return []Desc{d}, nil
}
