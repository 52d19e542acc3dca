// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package reporting

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
	"time"
)

// JUnitXMLFilename is a file name to be used with WriteJUnitXMLResults.
const JUnitXMLFilename = "results.xml"

// suiteName is the name of the single test suite of a report.
const suiteName = "unit_test"

// testSuites is the top level XML element of JUnit result.
type testSuites struct {
	XMLName   xml.Name
	TestSuite testSuite `xml:"testsuite"`
}

// testSuite is an XML element in JUnit result.
// Errors are not distinguished from failures; every broken case is reported
// as a failure.
type testSuite struct {
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Skipped  int         `xml:"skipped,attr"`
	TestCase []*testCase `xml:"testcase"`
}

// testCase is an element in JUnit XML test result.
type testCase struct {
	Name      string `xml:"name,attr"`
	Status    string `xml:"status,attr"`         // run or notrun
	Result    string `xml:"result,attr"`         // more detailed result
	Timestamp string `xml:"timestamp,attr"`      // start time, in ISO8601
	Time      string `xml:"time,attr,omitempty"` // duration, in seconds (with a decimal point)

	Properties *properties `xml:"properties,omitempty"`
	Failure    []*failure  `xml:"failure,omitempty"`
	Skipped    *skipped    `xml:"skipped,omitempty"`
}

type properties struct {
	Property []*property `xml:"property"`
}

// property holds one performance item.
type property struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// failure is an element in JUnit XML test result, representing a test case failure.
type failure struct {
	Message string `xml:"message,attr,omitempty"`
	Details string `xml:",cdata"`
}

// skipped is an element in JUnit XML test result, representing a skipped test case.
type skipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// xmlChar reports whether r is allowed in an XML 1.0 document.
func xmlChar(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF, r >= 0xE000 && r <= 0xFFFD, r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}

// sanitize drops characters that cannot appear in XML, such as the escape
// codes of colored device logs.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if !xmlChar(r) {
			return -1
		}
		return r
	}, s)
}

// failureMessage is the attribute text of a failure. Details carry the
// device output.
func failureMessage(details string) string {
	const max = 80
	for i, c := range details {
		if c == '\r' || c == '\n' || i >= max {
			return details[:i]
		}
	}
	return details
}

// WriteJUnitXMLResults saves results to path in the JUnit XML format.
func WriteJUnitXMLResults(path string, results []*CaseResult) error {
	suites := testSuites{
		XMLName: xml.Name{Local: "testsuites"},
		TestSuite: testSuite{
			Name:  suiteName,
			Tests: len(results),
		},
	}
	suite := &suites.TestSuite
	for _, r := range results {
		tc := testCase{
			Name:      r.Name,
			Timestamp: r.Start.UTC().Format(time.RFC3339),
			// Decimal point is needed for distinguishing it from nanoseconds notation.
			Time:   fmt.Sprintf("%.1f", r.End.Sub(r.Start).Seconds()),
			Status: "run",
			Result: "completed",
		}
		if len(r.Performance) > 0 {
			tc.Properties = &properties{}
			for _, p := range r.Performance {
				tc.Properties.Property = append(tc.Properties.Property, &property{Name: p.Name, Value: p.Value})
			}
		}
		// An ignored case that also failed is reported as failed.
		switch {
		case r.Failed():
			for _, f := range r.Failures {
				f = sanitize(f)
				tc.Failure = append(tc.Failure, &failure{Message: failureMessage(f), Details: f})
			}
			suite.Failures++
		case r.SkipReason != "":
			tc.Status = "notrun"
			tc.Result = "skipped"
			tc.Skipped = &skipped{Message: r.SkipReason}
			suite.Skipped++
		}
		suite.TestCase = append(suite.TestCase, &tc)
	}

	data, err := xml.MarshalIndent(suites, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(xml.Header), data...), 0644)
}
