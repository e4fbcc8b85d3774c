// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed cron expression bound to a time zone. Use Parse
// or ParseIn to create one, then Next to compute occurrences.
type Schedule struct {
	minutes     bitset64
	hours       bitset64
	daysOfMonth bitset64
	months      bitset64
	daysOfWeek  bitset64

	// Day-of-month and day-of-week combine with OR when both are
	// restricted, and with AND when either is a wildcard.
	daysOfMonthRestricted bool
	daysOfWeekRestricted  bool

	location *time.Location
}

// bitset64 uses a uint64 as a compact set of integers 0-63.
type bitset64 uint64

func (b bitset64) has(value int) bool { return b&(1<<uint(value)) != 0 }
func (b *bitset64) set(value int)     { *b |= 1 << uint(value) }

// descriptors are the @-shortcuts accepted in place of five fields.
var descriptors = map[string]string{
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
	"@monthly":  "0 0 1 * *",
	"@weekly":   "0 0 * * 0",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@hourly":   "0 * * * *",
}

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var dayNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// fieldSpec describes one of the five positional fields.
type fieldSpec struct {
	label            string
	minimum, maximum int
	names            map[string]int
}

var fieldSpecs = [5]fieldSpec{
	{label: "minute", minimum: 0, maximum: 59},
	{label: "hour", minimum: 0, maximum: 23},
	{label: "day-of-month", minimum: 1, maximum: 31},
	{label: "month", minimum: 1, maximum: 12, names: monthNames},
	// 7 is accepted as an alias for Sunday and folded onto 0.
	{label: "day-of-week", minimum: 0, maximum: 7, names: dayNames},
}

// Parse parses a cron expression evaluated in UTC.
func Parse(expression string) (Schedule, error) {
	return ParseIn(expression, time.UTC)
}

// ParseIn parses a cron expression whose fields are interpreted in
// location. The expression is either five whitespace-separated fields
// or one of the @yearly/@monthly/@weekly/@daily/@hourly descriptors.
func ParseIn(expression string, location *time.Location) (Schedule, error) {
	if location == nil {
		location = time.UTC
	}
	trimmed := strings.TrimSpace(expression)
	if strings.HasPrefix(trimmed, "@") {
		expanded, ok := descriptors[strings.ToLower(trimmed)]
		if !ok {
			return Schedule{}, fmt.Errorf("cron: unknown descriptor %q", trimmed)
		}
		trimmed = expanded
	}

	fields := strings.Fields(trimmed)
	if len(fields) != 5 {
		return Schedule{}, fmt.Errorf("cron: expected 5 fields, got %d", len(fields))
	}

	var sets [5]bitset64
	for i, field := range fields {
		bits, err := parseField(field, fieldSpecs[i])
		if err != nil {
			return Schedule{}, fmt.Errorf("cron: %s field: %w", fieldSpecs[i].label, err)
		}
		sets[i] = bits
	}
	if sets[4].has(7) {
		sets[4].set(0)
	}

	return Schedule{
		minutes:               sets[0],
		hours:                 sets[1],
		daysOfMonth:           sets[2],
		months:                sets[3],
		daysOfWeek:            sets[4],
		daysOfMonthRestricted: !strings.HasPrefix(fields[2], "*"),
		daysOfWeekRestricted:  !strings.HasPrefix(fields[4], "*"),
		location:              location,
	}, nil
}

// Location returns the time zone the schedule is evaluated in.
func (s Schedule) Location() *time.Location {
	if s.location == nil {
		return time.UTC
	}
	return s.location
}

// Next returns the earliest time strictly after t that matches the
// schedule, in the schedule's location.
//
// Returns an error if no matching time exists within 4 years of t
// (for example "0 0 31 2 *").
func (s Schedule) Next(t time.Time) (time.Time, error) {
	location := s.Location()
	t = t.In(location).Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		if !s.months.has(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, location)
			continue
		}
		if !s.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, location)
			continue
		}
		if !s.hours.has(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, location)
			continue
		}
		if !s.minutes.has(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t, nil
	}

	return time.Time{}, fmt.Errorf("cron: no matching time within 4 years of %s", t.Format(time.RFC3339))
}

func (s Schedule) dayMatches(t time.Time) bool {
	dayOfMonth := s.daysOfMonth.has(t.Day())
	dayOfWeek := s.daysOfWeek.has(int(t.Weekday()))
	if s.daysOfMonthRestricted && s.daysOfWeekRestricted {
		return dayOfMonth || dayOfWeek
	}
	return dayOfMonth && dayOfWeek
}

// parseField parses comma-separated terms into a bitset.
func parseField(field string, spec fieldSpec) (bitset64, error) {
	var result bitset64
	for _, term := range strings.Split(field, ",") {
		bits, err := parseTerm(term, spec)
		if err != nil {
			return 0, err
		}
		result |= bits
	}
	if result == 0 {
		return 0, fmt.Errorf("field %q produces empty set", field)
	}
	return result, nil
}

// parseTerm parses a single term: *, */N, V, V-V, V-V/N, V/N. Values may
// be names where the field allows them.
func parseTerm(term string, spec fieldSpec) (bitset64, error) {
	rangeExpression, stepExpression, hasStep := strings.Cut(term, "/")
	step := 1
	if hasStep {
		parsed, err := strconv.Atoi(stepExpression)
		if err != nil {
			return 0, fmt.Errorf("invalid step %q: %w", stepExpression, err)
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("step must be positive, got %d", parsed)
		}
		step = parsed
	}

	var start, end int
	switch {
	case rangeExpression == "*":
		start, end = spec.minimum, spec.maximum
	case strings.Contains(rangeExpression, "-"):
		startText, endText, _ := strings.Cut(rangeExpression, "-")
		var err error
		if start, err = parseValue(startText, spec); err != nil {
			return 0, err
		}
		if end, err = parseValue(endText, spec); err != nil {
			return 0, err
		}
		if start > end {
			return 0, fmt.Errorf("range start %d > end %d", start, end)
		}
	default:
		value, err := parseValue(rangeExpression, spec)
		if err != nil {
			return 0, err
		}
		start, end = value, value
		// "V/N" means from V to the field maximum in steps of N.
		if hasStep {
			end = spec.maximum
		}
	}

	if start < spec.minimum || end > spec.maximum {
		return 0, fmt.Errorf("value out of range [%d-%d]: got %d-%d", spec.minimum, spec.maximum, start, end)
	}

	var result bitset64
	for value := start; value <= end; value += step {
		result.set(value)
	}
	return result, nil
}

func parseValue(text string, spec fieldSpec) (int, error) {
	if value, err := strconv.Atoi(text); err == nil {
		return value, nil
	}
	if spec.names != nil {
		if value, ok := spec.names[strings.ToLower(text)]; ok {
			return value, nil
		}
	}
	return 0, fmt.Errorf("invalid value %q", text)
}
