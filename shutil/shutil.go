// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package shutil provides shell-related utility functions.
package shutil

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/shlex"

	"go.chromium.org/utrun/errors"
)

const (
	// The character class \w is equivalent to [0-9A-Za-z_]. Leading equals sign is unsafe in zsh.
	leadingSafeChars  = `-\w@%+:,./`
	trailingSafeChars = leadingSafeChars + "="
)

// safeRE matches an argument that can be literally included in a shell
// command line without requiring escaping.
var safeRE = regexp.MustCompile(fmt.Sprintf("^[%s][%s]*$", leadingSafeChars, trailingSafeChars))

// placeholderRE matches a "{name}" placeholder in a command template.
var placeholderRE = regexp.MustCompile(`\{(\w+)\}`)

// Escape escapes a string so it can be safely included as an argument in a shell command line.
// The string is not modified if it can already be safely included.
func Escape(s string) string {
	if safeRE.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// EscapeSlice escapes a slice of strings so each will be treated as a separate
// argument in the returned shell command line. See Escape for more information.
func EscapeSlice(args []string) string {
	escaped := make([]string, len(args))
	for i, arg := range args {
		escaped[i] = Escape(arg)
	}
	return strings.Join(escaped, " ")
}

// Expand splits a command template into arguments with shell quoting rules
// and replaces "{name}" placeholders in each argument with vars[name].
// Placeholders are substituted after splitting, so values containing spaces
// stay within one argument. An unknown placeholder is an error.
func Expand(template string, vars map[string]string) ([]string, error) {
	words, err := shlex.Split(template)
	if err != nil {
		return nil, errors.Wrapf(err, "bad command template %q", template)
	}
	if len(words) == 0 {
		return nil, errors.Errorf("empty command template %q", template)
	}
	args := make([]string, len(words))
	for i, w := range words {
		var missing string
		args[i] = placeholderRE.ReplaceAllStringFunc(w, func(m string) string {
			key := m[1 : len(m)-1]
			v, ok := vars[key]
			if !ok && missing == "" {
				missing = key
			}
			return v
		})
		if missing != "" {
			return nil, errors.Errorf("unknown placeholder {%s} in command template %q", missing, template)
		}
	}
	return args, nil
}
