/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package capacity models the point-priced capacity grid: per-resource
// ceilings, placed blocks, and usage derived on demand from the live block
// set rather than kept as a counter.
package capacity

import (
	"time"

	"github.com/coupdefeu/coupdefeu/internal/grid"
	"github.com/coupdefeu/coupdefeu/internal/models"
)

// BlockKind distinguishes the two demand sources on the grid.
type BlockKind string

const (
	BlockKindOrder        BlockKind = "order"
	BlockKindExternalLoad BlockKind = "external_load"
)

// Block is a placed interval of resource consumption. It contributes its
// full point cost to every slot in its inclusive span.
type Block struct {
	Kind     BlockKind       `json:"kind"`
	Resource models.Resource `json:"resource"`
	Points   int             `json:"points"`
	Span     grid.Span       `json:"span"`

	// Order block metadata.
	OrderID   string           `json:"order_id,omitempty"`
	OrderType models.OrderType `json:"order_type,omitempty"`
	OrderSize models.OrderSize `json:"order_size,omitempty"`

	// External-load block metadata.
	LoadID   string          `json:"load_id,omitempty"`
	LoadType models.LoadType `json:"load_type,omitempty"`
	Label    string          `json:"label,omitempty"`
}

// CapacityWindow overrides the base capacity for part of the day, e.g. a
// reduced livraison ceiling outside dinner service.
type CapacityWindow struct {
	StartHour int `yaml:"start_hour"`
	EndHour   int `yaml:"end_hour"`
	Points    int `yaml:"points"`
}

// ResourceCapacity is the configured ceiling for one resource.
type ResourceCapacity struct {
	Base    int              `yaml:"base"`
	Windows []CapacityWindow `yaml:"windows,omitempty"`
}

// Profile holds the restaurant's configured ceilings. Within the engine it
// behaves as a pure function of resource and instant.
type Profile struct {
	Resources map[models.Resource]ResourceCapacity `yaml:"resources"`
}

// DefaultProfile gives every resource a flat ceiling. Restaurants override
// this from their scheduling profile file.
func DefaultProfile() Profile {
	resources := make(map[models.Resource]ResourceCapacity, 4)
	for _, resource := range models.AllResources() {
		resources[resource] = ResourceCapacity{Base: 10}
	}
	return Profile{Resources: resources}
}

// CapacityAt returns the configured ceiling in points for the slot starting
// at the given instant. Unknown resources have zero capacity.
func (p Profile) CapacityAt(resource models.Resource, slotStart time.Time) int {
	rc, ok := p.Resources[resource]
	if !ok {
		return 0
	}
	hour := slotStart.UTC().Hour()
	for _, window := range rc.Windows {
		if windowApplies(window, hour) {
			return window.Points
		}
	}
	return rc.Base
}

func windowApplies(w CapacityWindow, hour int) bool {
	if w.StartHour == w.EndHour {
		return false
	}
	if w.StartHour < w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	// Wrapping window, e.g. 22-02.
	return hour >= w.StartHour || hour < w.EndHour
}

// UsedAt sums the points of all blocks for a resource overlapping the slot.
// Computed from the block set every time so nothing can drift.
func UsedAt(blocks []Block, resource models.Resource, slot int) int {
	used := 0
	for _, block := range blocks {
		if block.Resource == resource && block.Span.Contains(slot) {
			used += block.Points
		}
	}
	return used
}

// RemainingAt is capacity minus usage for one resource/slot pair. Negative
// values are valid: they report overflow, they are not an error.
func (p Profile) RemainingAt(anchor time.Time, blocks []Block, resource models.Resource, slot int) int {
	return p.CapacityAt(resource, grid.Start(anchor, slot)) - UsedAt(blocks, resource, slot)
}
