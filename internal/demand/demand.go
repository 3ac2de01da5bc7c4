/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package demand converts raw request signals (item counts, load
// intensities) into the standardized point and duration vocabulary the
// capacity grid is priced in.
package demand

import (
	"errors"
	"fmt"

	"github.com/coupdefeu/coupdefeu/internal/models"
)

// ErrInvalidDemand rejects unclassifiable input at the boundary, before it
// reaches the placement algorithm.
var ErrInvalidDemand = errors.New("invalid demand")

// SizeClass prices one order size on the grid.
type SizeClass struct {
	Points         int `yaml:"points"`
	AssemblyPoints int `yaml:"assembly_points"`
	PrepSlots      int `yaml:"prep_slots"`
}

// Profile is the restaurant-level classification configuration. Thresholds,
// per-size costs and intensity points were not observable constants in the
// field, so they are injected rather than hard-coded.
type Profile struct {
	SmallMaxItems   int                            `yaml:"small_max_items"`
	LargeMinItems   int                            `yaml:"large_min_items"`
	Sizes           map[models.OrderSize]SizeClass `yaml:"sizes"`
	IntensityPoints map[models.LoadIntensity]int   `yaml:"intensity_points"`
	HandoffSlots    int                            `yaml:"handoff_slots"`
}

// DefaultProfile returns the baseline classification used when no restaurant
// profile file is configured.
func DefaultProfile() Profile {
	return Profile{
		SmallMaxItems: 3,
		LargeMinItems: 8,
		Sizes: map[models.OrderSize]SizeClass{
			models.OrderSizeS: {Points: 3, AssemblyPoints: 2, PrepSlots: 2},
			models.OrderSizeM: {Points: 6, AssemblyPoints: 3, PrepSlots: 3},
			models.OrderSizeL: {Points: 10, AssemblyPoints: 5, PrepSlots: 5},
		},
		IntensityPoints: map[models.LoadIntensity]int{
			models.LoadIntensityLow:    3,
			models.LoadIntensityMedium: 5,
			models.LoadIntensityHigh:   8,
		},
		HandoffSlots: 1,
	}
}

// Validate checks the profile is internally consistent: thresholds ordered,
// every size priced, and costs monotone S <= M <= L so growing an order can
// never cheapen it.
func (p Profile) Validate() error {
	if p.SmallMaxItems < 0 || p.LargeMinItems <= p.SmallMaxItems {
		return fmt.Errorf("size thresholds out of order: small_max=%d large_min=%d", p.SmallMaxItems, p.LargeMinItems)
	}
	for _, size := range []models.OrderSize{models.OrderSizeS, models.OrderSizeM, models.OrderSizeL} {
		class, ok := p.Sizes[size]
		if !ok {
			return fmt.Errorf("size class %s missing", size)
		}
		if class.Points <= 0 || class.PrepSlots <= 0 {
			return fmt.Errorf("size class %s must have positive points and prep slots", size)
		}
	}
	s, m, l := p.Sizes[models.OrderSizeS], p.Sizes[models.OrderSizeM], p.Sizes[models.OrderSizeL]
	if s.Points > m.Points || m.Points > l.Points {
		return fmt.Errorf("size points must be monotone S <= M <= L")
	}
	if s.PrepSlots > m.PrepSlots || m.PrepSlots > l.PrepSlots {
		return fmt.Errorf("size prep slots must be monotone S <= M <= L")
	}
	if p.IntensityPoints[models.LoadIntensityLow] > p.IntensityPoints[models.LoadIntensityMedium] ||
		p.IntensityPoints[models.LoadIntensityMedium] > p.IntensityPoints[models.LoadIntensityHigh] {
		return fmt.Errorf("intensity points must be monotone low <= medium <= high")
	}
	if p.HandoffSlots <= 0 {
		return fmt.Errorf("handoff_slots must be positive")
	}
	return nil
}

// ClassifySize thresholds an item count into S, M or L. Total for any
// non-negative count; negative counts are the caller's validation problem.
func (p Profile) ClassifySize(itemCount int) models.OrderSize {
	switch {
	case itemCount <= p.SmallMaxItems:
		return models.OrderSizeS
	case itemCount >= p.LargeMinItems:
		return models.OrderSizeL
	default:
		return models.OrderSizeM
	}
}

// SizeClassOf returns the pricing for a size.
func (p Profile) SizeClassOf(size models.OrderSize) SizeClass {
	return p.Sizes[size]
}

// IntensityPointsOf maps a load intensity to points per slot. Unknown or
// missing intensities fall back to the medium rate: external loads are
// operator-entered free-form data and must never be rejected outright.
func (p Profile) IntensityPointsOf(intensity models.LoadIntensity) int {
	if points, ok := p.IntensityPoints[intensity]; ok {
		return points
	}
	return p.IntensityPoints[models.LoadIntensityMedium]
}

// ValidateOrderInput guards the scheduling boundary. It is the only place
// order input can fail classification.
func ValidateOrderInput(itemCount int, orderType models.OrderType) error {
	if itemCount < 0 {
		return fmt.Errorf("%w: item count %d is negative", ErrInvalidDemand, itemCount)
	}
	switch orderType {
	case models.OrderTypePickup, models.OrderTypeDelivery, models.OrderTypeDineIn:
		return nil
	default:
		return fmt.Errorf("%w: unknown order type %q", ErrInvalidDemand, orderType)
	}
}
