// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package fakedut

import (
	"fmt"
	"strconv"
	"strings"
)

// Banners printed by the simulated unit test application.
const (
	PowerOnBanner = "rst:0x1 (POWERON_RESET),boot:0x13 (SPI_FAST_FLASH_BOOT)\r\n"
	SWResetBanner = "rst:0xc (SW_CPU_RESET),boot:0x13 (SPI_FAST_FLASH_BOOT)\r\n"
	ReadyBanner   = "Press ENTER to see the list of tests.\r\n"
	BootOutput    = "ets Jun  8 2016 00:22:57\r\n\r\n" + PowerOnBanner + "I (29) boot: ESP-IDF bootloader\r\n" + ReadyBanner
	// RebootOutput is printed when a case restarts the chip.
	RebootOutput = "\r\nets Jun  8 2016 00:22:57\r\n\r\n" + SWResetBanner + "I (29) boot: ESP-IDF bootloader\r\n" + ReadyBanner
)

// Tally returns the line printed when a case finishes.
func Tally(failures, ignored int) string {
	return fmt.Sprintf("-----------------------\r\n1 Tests %d Failures %d Ignored \r\nOK\r\n", failures, ignored)
}

// Step consumes one input line and returns the output printed in response
// along with the step handling the following line. A nil step hands input
// back to the menu.
type Step func(line string) (output string, next Step)

// AppCase is a case of the simulated unit test application.
type AppCase struct {
	Name string
	// Tags is printed after the name in the menu, e.g. "[timeout=5]".
	Tags string
	// Children names the stages or roles of a multi-stage or multi-device
	// case.
	Children []string
	// Run returns the output after the case starts. stage is the selected
	// child index, or 0 for a simple case.
	Run func(stage int) (output string, next Step)
}

// App simulates the on-device unit test application.
type App struct {
	Cases []AppCase
	// Unresponsive makes the application ignore all input.
	Unresponsive bool

	selected *AppCase
	next     Step
}

// Firmware returns firmware running a.
func (a *App) Firmware() Firmware {
	return Firmware{
		Boot:   a.boot,
		Handle: a.handle,
	}
}

// NewApp starts a fake device running the unit test application.
func NewApp(name string, a *App) *Device {
	return New(name, a.Firmware())
}

func (a *App) boot() string {
	a.selected = nil
	a.next = nil
	return BootOutput
}

func (a *App) handle(line string) string {
	if a.Unresponsive {
		return ""
	}
	if a.next != nil {
		out, next := a.next(line)
		a.next = next
		return out
	}
	switch {
	case line == "-":
		return "0 Tests 0 Failures 0 Ignored \r\n"
	case line == "":
		return a.menu()
	}
	if name, ok := trimQuotes(line); ok {
		return a.selectCase(name)
	}
	if i, err := strconv.Atoi(line); err == nil && a.selected != nil && a.selected.Run != nil {
		out, next := a.selected.Run(i)
		a.next = next
		return out
	}
	return ""
}

func (a *App) selectCase(name string) string {
	for i := range a.Cases {
		c := &a.Cases[i]
		if c.Name != name {
			continue
		}
		a.selected = c
		out := "Running " + name + "...\r\n"
		if len(c.Children) > 0 {
			for j, child := range c.Children {
				out += fmt.Sprintf("\t(%d)\t%q\r\n", j+1, child)
			}
			return out
		}
		if c.Run != nil {
			o, next := c.Run(0)
			a.next = next
			out += o
		}
		return out
	}
	return ""
}

func (a *App) menu() string {
	var b strings.Builder
	b.WriteString("\r\nHere's the test menu, pick your combo:\r\n")
	for i, c := range a.Cases {
		fmt.Fprintf(&b, "(%d)\t%q %s\r\n", i+1, c.Name, c.Tags)
		for j, child := range c.Children {
			fmt.Fprintf(&b, "\t(%d)\t%q\r\n", j+1, child)
		}
	}
	b.WriteString("\r\nEnter test for running.\r\n")
	return b.String()
}
