/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package capacity

import (
	"time"

	"github.com/coupdefeu/coupdefeu/internal/demand"
	"github.com/coupdefeu/coupdefeu/internal/grid"
	"github.com/coupdefeu/coupdefeu/internal/models"
)

// OrderBlocks re-derives the grid blocks an order contributes, keyed off its
// status: orders still being cooked consume the cook window, orders waiting
// for handoff consume the handoff window, and terminal orders consume
// nothing. Orders without a committed schedule contribute no blocks either —
// they were created without a timing commitment.
func OrderBlocks(profile demand.Profile, anchor time.Time, order models.Order) []Block {
	if !order.Scheduled() {
		return nil
	}

	class := profile.SizeClassOf(order.Size)

	switch order.Status {
	case models.OrderStatusPending, models.OrderStatusConfirmed, models.OrderStatusPreparing:
		return cookBlocks(class, anchor, order)
	case models.OrderStatusReady, models.OrderStatusDelivering:
		return handoffBlocks(profile, anchor, order)
	default:
		// completed and cancelled orders free their capacity on the very
		// next derivation.
		return nil
	}
}

func cookBlocks(class demand.SizeClass, anchor time.Time, order models.Order) []Block {
	span := grid.SpanOf(anchor, *order.CookStartAt, *order.ReadyAt)
	blocks := []Block{
		{
			Kind:      BlockKindOrder,
			Resource:  models.ResourceCuisine,
			Points:    class.Points,
			Span:      span,
			OrderID:   order.ID,
			OrderType: order.Type,
			OrderSize: order.Size,
		},
	}
	if class.AssemblyPoints > 0 {
		blocks = append(blocks, Block{
			Kind:      BlockKindOrder,
			Resource:  models.ResourcePreparation,
			Points:    class.AssemblyPoints,
			Span:      span,
			OrderID:   order.ID,
			OrderType: order.Type,
			OrderSize: order.Size,
		})
	}
	return blocks
}

func handoffBlocks(profile demand.Profile, anchor time.Time, order models.Order) []Block {
	class := profile.SizeClassOf(order.Size)

	resource := models.ResourceComptoir
	slots := profile.HandoffSlots
	start := *order.ReadyAt
	if order.Type == models.OrderTypeDelivery {
		resource = models.ResourceLivraison
		slots = grid.SlotsFor(time.Duration(order.TransitMin) * time.Minute)
		if slots < 1 {
			slots = 1
		}
		if order.HandoffAt != nil {
			start = *order.HandoffAt
		}
	}

	span := grid.SpanOf(anchor, start, start.Add(time.Duration(slots)*grid.SlotWidth))
	return []Block{
		{
			Kind:      BlockKindOrder,
			Resource:  resource,
			Points:    class.AssemblyPoints,
			Span:      span,
			OrderID:   order.ID,
			OrderType: order.Type,
			OrderSize: order.Size,
		},
	}
}

// LoadBlocks derives one block per affected resource per occurrence of an
// external load inside the window. The points were frozen on the load row
// when the intensity was written; derivation never re-prices them.
func LoadBlocks(anchor time.Time, load models.ExternalLoad, from, to time.Time) ([]Block, error) {
	occurrences, err := load.Occurrences(from, to)
	if err != nil {
		return nil, err
	}

	blocks := make([]Block, 0, len(occurrences)*len(load.Resources))
	for _, occurrence := range occurrences {
		span := grid.SpanOf(anchor, occurrence.Start, occurrence.End)
		for _, resource := range load.Resources {
			blocks = append(blocks, Block{
				Kind:     BlockKindExternalLoad,
				Resource: resource,
				Points:   load.PointsPerSlot,
				Span:     span,
				LoadID:   load.ID,
				LoadType: load.Type,
				Label:    load.Label,
			})
		}
	}
	return blocks, nil
}
