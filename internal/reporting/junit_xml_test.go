// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package reporting_test

import (
	"context"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"
	gotesting "testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/utrun/internal/dut"
	"go.chromium.org/utrun/internal/reporting"
)

func TestWriteJUnitXMLResults(t *gotesting.T) {
	timeZone := time.FixedZone("Local", 8*60*60)
	results := []*reporting.CaseResult{
		{
			Name:        "esp32.default.pass",
			Start:       time.Date(2021, 2, 3, 18, 0, 2, 0, timeZone),
			End:         time.Date(2021, 2, 3, 18, 0, 3, 0, timeZone),
			Performance: []dut.PerformanceItem{{Name: "flash_write_us", Value: "120"}},
		},
		{
			Name:       "esp32.default.ignored",
			Start:      time.Date(2021, 2, 3, 18, 0, 3, 0, timeZone),
			End:        time.Date(2021, 2, 3, 18, 0, 5, 0, timeZone),
			SkipReason: "ignored",
		},
		{
			Name:     "esp32.psram.fail",
			Start:    time.Date(2021, 2, 3, 18, 0, 7, 0, timeZone),
			End:      time.Date(2021, 2, 3, 18, 0, 10, 0.5e9, timeZone),
			Failures: []string{"timeout", "Running fail...\n1 Tests 1 Failures 0 Ignored"},
		},
	}

	path := filepath.Join(t.TempDir(), reporting.JUnitXMLFilename)
	if err := reporting.WriteJUnitXMLResults(path, results); err != nil {
		t.Fatalf("Failed to save to XML: %s", err)
	}

	x, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read XML: %v", err)
	}

	s := strings.Split(string(x), "\n")
	expected := strings.Split(
		`<?xml version="1.0" encoding="UTF-8"?>
<testsuites>
  <testsuite name="unit_test" tests="3" failures="1" skipped="1">
    <testcase name="esp32.default.pass" status="run" result="completed" timestamp="2021-02-03T10:00:02Z" time="1.0">
      <properties>
        <property name="flash_write_us" value="120"></property>
      </properties>
    </testcase>
    <testcase name="esp32.default.ignored" status="notrun" result="skipped" timestamp="2021-02-03T10:00:03Z" time="2.0">
      <skipped message="ignored"></skipped>
    </testcase>
    <testcase name="esp32.psram.fail" status="run" result="completed" timestamp="2021-02-03T10:00:07Z" time="3.5">
      <failure message="timeout"><![CDATA[timeout]]></failure>
      <failure message="Running fail..."><![CDATA[Running fail...
1 Tests 1 Failures 0 Ignored]]></failure>
    </testcase>
  </testsuite>
</testsuites>`, "\n")
	if diff := cmp.Diff(s, expected); diff != "" {
		t.Errorf("Unexpected XML output lines (-got +want):\n%s", diff)
	}
}

func TestWriteJUnitXMLResultsColoredOutput(t *gotesting.T) {
	start := time.Date(2021, 2, 3, 18, 0, 2, 0, time.UTC)
	out := "Running case...\r\n\x1b[0;31mE (123) boot: oops\x1b[0m\r\n"
	results := []*reporting.CaseResult{{
		Name:     "esp32.default.case",
		Start:    start,
		End:      start.Add(time.Second),
		Failures: []string{"\x1b[0;31mtimeout\x1b[0m", out},
	}}

	path := filepath.Join(t.TempDir(), reporting.JUnitXMLFilename)
	if err := reporting.WriteJUnitXMLResults(path, results); err != nil {
		t.Fatalf("Failed to save to XML: %s", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var texts []string
	dec := xml.NewDecoder(f)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal("Failed to parse XML: ", err)
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			if tok.Name.Local != "failure" {
				continue
			}
			for _, a := range tok.Attr {
				if a.Name.Local == "message" {
					texts = append(texts, a.Value)
				}
			}
		case xml.CharData:
			// Line breaks are normalized by the decoder.
			if s := strings.TrimSpace(strings.ReplaceAll(string(tok), "\r", "")); s != "" {
				texts = append(texts, s)
			}
		}
	}
	want := []string{
		"[0;31mtimeout[0m",
		"[0;31mtimeout[0m",
		"Running case...",
		"Running case...\n[0;31mE (123) boot: oops[0m",
	}
	if diff := cmp.Diff(texts, want); diff != "" {
		t.Errorf("Parsed failures mismatch (-got +want):\n%s", diff)
	}
}

func TestJUnitRecorder(t *gotesting.T) {
	ctx := context.Background()
	j := reporting.NewJUnitRecorder()
	var seen []string
	rec := reporting.MultiRecorder{j, recorderFunc(func(r *reporting.CaseResult) { seen = append(seen, r.Name) })}

	rec.CaseEnd(ctx, &reporting.CaseResult{Name: "a"})
	rec.CaseEnd(ctx, &reporting.CaseResult{Name: "b", Failures: []string{"boom"}})

	if diff := cmp.Diff(seen, []string{"a", "b"}); diff != "" {
		t.Errorf("Forwarded results mismatch (-got +want):\n%s", diff)
	}
	res := j.Results()
	if len(res) != 2 || res[0].Failed() || !res[1].Failed() {
		t.Errorf("Results = %+v; want a passing then a failing case", res)
	}

	path := filepath.Join(t.TempDir(), reporting.JUnitXMLFilename)
	if err := j.WriteJUnitXML(path); err != nil {
		t.Fatal("WriteJUnitXML failed: ", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `tests="2" failures="1" skipped="0"`) {
		t.Errorf("Report does not count the cases:\n%s", b)
	}
}

type recorderFunc func(r *reporting.CaseResult)

func (f recorderFunc) CaseEnd(ctx context.Context, r *reporting.CaseResult) { f(r) }
