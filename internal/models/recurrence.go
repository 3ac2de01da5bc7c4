/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// Duration returns the load window length.
func (l ExternalLoad) Duration() time.Duration {
	return time.Duration(l.DurationMin) * time.Minute
}

// Occurrences expands the load into concrete windows overlapping [from, to).
// A load without a recurrence rule yields at most its single window. Windows
// are clipped against nothing: callers clamp to the grid themselves so
// partial overlap at the horizon edges still contributes usage.
func (l ExternalLoad) Occurrences(from, to time.Time) ([]Occurrence, error) {
	if !to.After(from) {
		return nil, nil
	}

	if l.Recurrence == "" {
		if l.EndTime.After(from) && l.StartTime.Before(to) {
			return []Occurrence{{Start: l.StartTime, End: l.EndTime}}, nil
		}
		return nil, nil
	}

	rule, err := rrule.StrToRRule(l.Recurrence)
	if err != nil {
		return nil, fmt.Errorf("parse recurrence for load %s: %w", l.ID, err)
	}
	rule.DTStart(l.StartTime.UTC())

	dur := l.Duration()
	// Widen the query so an occurrence that started before the window but is
	// still running gets picked up.
	starts := rule.Between(from.Add(-dur).UTC(), to.UTC(), true)

	occurrences := make([]Occurrence, 0, len(starts))
	for _, start := range starts {
		end := start.Add(dur)
		if end.After(from) && start.Before(to) {
			occurrences = append(occurrences, Occurrence{Start: start, End: end})
		}
	}
	return occurrences, nil
}
