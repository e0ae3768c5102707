// Package alarm maps a count of structures on fire to a fire-alarm staffing level.
package alarm

import (
	"strconv"
	"strings"
)

const (
	Unknown    = "Unknown - structure count not provided"
	Fireout    = "Fireout - Fire has been neutralized"
	Controlled = "Under Control - Low fire risk"
)

// Level is one row of the staffing table: any count at or above Min gets Label.
type Level struct {
	Min   int
	Label string
}

// levels is ordered from most to least severe. Classify walks it top down.
var levels = []Level{
	{80, "General Alarm - Major area affected (80 fire trucks)"},
	{36, "Task Force Delta - 36 fire trucks"},
	{32, "Task Force Charlie - 32 fire trucks"},
	{28, "Task Force Bravo - 28 fire trucks"},
	{24, "Task Force Alpha - 24 fire trucks"},
	{20, "Fifth Alarm - 20 fire trucks"},
	{16, "Fourth Alarm - 16 fire trucks"},
	{12, "Third Alarm - 12 fire trucks"},
	{8, "Second Alarm - 8 fire trucks"},
	{4, "First Alarm - 4 fire trucks"},
	{1, Controlled},
}

// Levels returns a copy of the staffing table, most severe first.
func Levels() []Level {
	return append([]Level(nil), levels...)
}

// Classify returns the alarm level for count. A nil count yields Unknown;
// zero and negative counts yield Fireout.
func Classify(count *int) string {
	if count == nil {
		return Unknown
	}
	for _, l := range levels {
		if *count >= l.Min {
			return l.Label
		}
	}
	return Fireout
}

// Severity ranks a label: 0 for Fireout up to len(Levels()) for General Alarm.
// Unknown and unrecognised labels rank -1.
func Severity(label string) int {
	if label == Fireout {
		return 0
	}
	for i, l := range levels {
		if l.Label == label {
			return len(levels) - i
		}
	}
	return -1
}

// ParseCount reads a structure count from form input. Blank or
// non-integer input is treated as not provided.
func ParseCount(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
