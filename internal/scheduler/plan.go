/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"time"

	"github.com/coupdefeu/coupdefeu/internal/capacity"
	"github.com/coupdefeu/coupdefeu/internal/demand"
	"github.com/coupdefeu/coupdefeu/internal/grid"
	"github.com/coupdefeu/coupdefeu/internal/models"
)

// blockPlan is the block template one demand stamps onto the grid: a cook
// window on cuisine and preparation, then a handoff window on comptoir or
// livraison. Spans are relative to the cook-start slot.
type blockPlan struct {
	orderType models.OrderType
	size      demand.SizeClass

	prepSlots    int
	handoffSlots int
	handoffRes   models.Resource
}

func newBlockPlan(profile demand.Profile, size models.OrderSize, orderType models.OrderType, transitMin int) blockPlan {
	class := profile.SizeClassOf(size)

	plan := blockPlan{
		orderType:    orderType,
		size:         class,
		prepSlots:    class.PrepSlots,
		handoffSlots: profile.HandoffSlots,
		handoffRes:   models.ResourceComptoir,
	}

	if orderType == models.OrderTypeDelivery {
		plan.handoffRes = models.ResourceLivraison
		plan.handoffSlots = grid.SlotsFor(time.Duration(transitMin) * time.Minute)
		if plan.handoffSlots < 1 {
			plan.handoffSlots = 1
		}
	}

	return plan
}

func (p blockPlan) prepDuration() time.Duration {
	return time.Duration(p.prepSlots) * grid.SlotWidth
}

func (p blockPlan) handoffDuration() time.Duration {
	return time.Duration(p.handoffSlots) * grid.SlotWidth
}

func (p blockPlan) totalDuration() time.Duration {
	return p.prepDuration() + p.handoffDuration()
}

// blocksAt materializes the template for a concrete cook-start instant.
func (p blockPlan) blocksAt(anchor, cookStart time.Time) []capacity.Block {
	ready := cookStart.Add(p.prepDuration())
	cookSpan := grid.SpanOf(anchor, cookStart, ready)
	handoffSpan := grid.SpanOf(anchor, ready, ready.Add(p.handoffDuration()))

	blocks := []capacity.Block{
		{Kind: capacity.BlockKindOrder, Resource: models.ResourceCuisine, Points: p.size.Points, Span: cookSpan, OrderType: p.orderType},
	}
	if p.size.AssemblyPoints > 0 {
		blocks = append(blocks,
			capacity.Block{Kind: capacity.BlockKindOrder, Resource: models.ResourcePreparation, Points: p.size.AssemblyPoints, Span: cookSpan, OrderType: p.orderType},
		)
	}
	blocks = append(blocks,
		capacity.Block{Kind: capacity.BlockKindOrder, Resource: p.handoffRes, Points: p.size.AssemblyPoints, Span: handoffSpan, OrderType: p.orderType},
	)
	return blocks
}

// placement assembles the committed timestamps for a cook start. The
// handoff instant only means something for deliveries and dine-in covers;
// for pickup it stays nil and the customer just collects at ready time.
func (p blockPlan) placement(size models.OrderSize, cookStart time.Time, mode PlacementMode) Placement {
	ready := cookStart.Add(p.prepDuration())
	placement := Placement{
		Size:        size,
		CookStartAt: cookStart,
		ReadyAt:     ready,
		Mode:        mode,
	}
	if p.orderType == models.OrderTypeDelivery || p.orderType == models.OrderTypeDineIn {
		handoff := ready
		placement.HandoffAt = &handoff
	}
	return placement
}
