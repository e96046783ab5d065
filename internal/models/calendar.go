package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Weekday is a lower-case working day name as stored on timetable entries.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
)

// WorkingDays lists the bookable days in scheduling order.
var WorkingDays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// Index returns the position of the day inside WorkingDays, or -1 for unknown days.
func (d Weekday) Index() int {
	for i, day := range WorkingDays {
		if day == d {
			return i
		}
	}
	return -1
}

// Valid reports whether the day is a working day.
func (d Weekday) Valid() bool {
	return d.Index() >= 0
}

// ParseWeekday accepts full names in any case ("Wednesday", "WEDNESDAY").
func ParseWeekday(raw string) (Weekday, bool) {
	day := Weekday(strings.ToLower(strings.TrimSpace(raw)))
	return day, day.Valid()
}

// WeekdayFromTime maps a calendar date onto a working day. Sundays report false.
func WeekdayFromTime(t time.Time) (Weekday, bool) {
	switch t.Weekday() {
	case time.Monday:
		return Monday, true
	case time.Tuesday:
		return Tuesday, true
	case time.Wednesday:
		return Wednesday, true
	case time.Thursday:
		return Thursday, true
	case time.Friday:
		return Friday, true
	case time.Saturday:
		return Saturday, true
	default:
		return "", false
	}
}

// ClockTime is a wall-clock time of day expressed in minutes after midnight.
type ClockTime int

// ParseClockTime parses "HH:MM".
func ParseClockTime(raw string) (ClockTime, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", raw)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return ClockTime(hours*60 + minutes), nil
}

// MustClockTime parses "HH:MM" and panics on malformed input.
func MustClockTime(raw string) ClockTime {
	t, err := ParseClockTime(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// Add returns the time shifted by the given number of minutes.
func (t ClockTime) Add(minutes int) ClockTime {
	return t + ClockTime(minutes)
}

// String renders "HH:MM".
func (t ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// MarshalText renders the time as "HH:MM" in JSON payloads.
func (t ClockTime) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses "HH:MM".
func (t *ClockTime) UnmarshalText(text []byte) error {
	parsed, err := ParseClockTime(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TimeSlotLabel renders the stored representation of a slot, e.g. "09:00-10:00".
func TimeSlotLabel(start, end ClockTime) string {
	return start.String() + "-" + end.String()
}

// ParseTimeSlotStart extracts the start time from "HH:MM-HH:MM" or a bare "HH:MM".
func ParseTimeSlotStart(raw string) (ClockTime, error) {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, "-"); idx >= 0 {
		raw = raw[:idx]
	}
	return ParseClockTime(raw)
}
