/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package grid holds the time-slot arithmetic for the capacity grid. It is a
// pure indexing layer: fixed-width slots counted from an anchor instant.
package grid

import "time"

// SlotWidth is the fixed slot size of the capacity grid.
const SlotWidth = 5 * time.Minute

// Span is an inclusive range of slot indices. End >= Start always holds for
// spans produced by this package.
type Span struct {
	Start int
	End   int
}

// Contains reports whether the slot index falls inside the span.
func (s Span) Contains(slot int) bool {
	return slot >= s.Start && slot <= s.End
}

// Overlaps reports whether two spans share at least one slot.
func (s Span) Overlaps(other Span) bool {
	return s.Start <= other.End && other.Start <= s.End
}

// Shift moves the span by delta slots.
func (s Span) Shift(delta int) Span {
	return Span{Start: s.Start + delta, End: s.End + delta}
}

// Slots returns the number of slots the span covers.
func (s Span) Slots() int {
	return s.End - s.Start + 1
}

// Index returns the slot index of t relative to anchor. Instants before the
// anchor map to negative indices; callers treat those as off-grid.
func Index(anchor, t time.Time) int {
	return int(t.Sub(anchor) / SlotWidth)
}

// Start returns the starting instant of the slot at index.
func Start(anchor time.Time, index int) time.Time {
	return anchor.Add(time.Duration(index) * SlotWidth)
}

// Floor truncates t down to its slot boundary.
func Floor(t time.Time) time.Time {
	return t.UTC().Truncate(SlotWidth)
}

// Ceil rounds t up to the next slot boundary. Instants already on a boundary
// are returned unchanged.
func Ceil(t time.Time) time.Time {
	floored := Floor(t)
	if floored.Equal(t.UTC()) {
		return floored
	}
	return floored.Add(SlotWidth)
}

// SpanOf converts a half-open time window [from, to) into the inclusive slot
// span it touches. Zero-length or inverted windows collapse to the single
// slot containing from.
func SpanOf(anchor, from, to time.Time) Span {
	start := Index(anchor, from)
	if !to.After(from) {
		return Span{Start: start, End: start}
	}
	// to is exclusive: a window ending exactly on a boundary does not occupy
	// the following slot.
	end := Index(anchor, to.Add(-time.Nanosecond))
	if end < start {
		end = start
	}
	return Span{Start: start, End: end}
}

// SlotsFor returns how many slots a duration occupies, rounding up, with a
// minimum of one slot for any positive duration.
func SlotsFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	slots := int(d / SlotWidth)
	if d%SlotWidth != 0 {
		slots++
	}
	return slots
}
