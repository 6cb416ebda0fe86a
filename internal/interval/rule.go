/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package interval

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrNoOccurrences is returned when a recurrence rule yields nothing in range.
var ErrNoOccurrences = errors.New("recurrence rule has no occurrences in range")

// PayloadFunc builds the payload for the i-th generated interval.
type PayloadFunc func(i int, start time.Time) map[string]any

// FromRule expands an RRULE into intervals starting at each occurrence in
// [dtstart, until]. Each interval lasts span, clamped so it never runs into
// the next occurrence. A zero span makes the intervals contiguous.
func FromRule(rule string, dtstart, until time.Time, span time.Duration, payload PayloadFunc) (*Index, error) {
	rr, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("parse rrule %q: %w", rule, err)
	}
	rr.DTStart(dtstart)

	occurrences := rr.Between(dtstart, until, true)
	if len(occurrences) == 0 {
		return nil, ErrNoOccurrences
	}
	if span <= 0 && len(occurrences) == 1 {
		return nil, fmt.Errorf("a single occurrence needs an explicit span")
	}

	intervals := make([]Interval, 0, len(occurrences))
	for i, start := range occurrences {
		var stop time.Time
		switch {
		case span > 0:
			stop = start.Add(span)
		case i+1 < len(occurrences):
			stop = occurrences[i+1]
		default:
			// Last contiguous interval repeats the previous step.
			stop = start.Add(start.Sub(occurrences[i-1]))
		}
		if i+1 < len(occurrences) && stop.After(occurrences[i+1]) {
			stop = occurrences[i+1]
		}

		iv := Interval{Start: start, Stop: stop}
		if payload != nil {
			iv.Payload = payload(i, start)
		}
		intervals = append(intervals, iv)
	}

	return New(intervals)
}
