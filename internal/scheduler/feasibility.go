/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"time"

	"github.com/coupdefeu/coupdefeu/internal/demand"
	"github.com/coupdefeu/coupdefeu/internal/grid"
	"github.com/coupdefeu/coupdefeu/internal/models"
	"github.com/coupdefeu/coupdefeu/internal/telemetry"
)

// AvailableSlots answers "what ready times can be offered for this demand"
// over the horizon. Each slot boundary runs the same simulation as the
// forward scan, anchored so the boundary is the ready time, but nothing is
// committed: this is a pure read, safe to call concurrently and repeatedly.
func (s *Service) AvailableSlots(ctx context.Context, restaurantID string, orderType models.OrderType, itemCount, transitMin int) ([]SlotOption, error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "AvailableSlots")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{
		"restaurant_id": restaurantID,
		"order_type":    string(orderType),
	})

	started := time.Now()
	defer func() {
		telemetry.SlotQueryDuration.WithLabelValues(restaurantID).Observe(time.Since(started).Seconds())
	}()

	if err := demand.ValidateOrderInput(itemCount, orderType); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	// Classify once; the class holds for every candidate slot.
	size := s.profile.ClassifySize(itemCount)
	plan := newBlockPlan(s.profile, size, orderType, transitMin)

	now := s.now().UTC()
	anchor := grid.Floor(now)
	scanEnd := now.Add(s.horizon)

	existing, err := s.existingBlocks(ctx, restaurantID, anchor, anchor, scanEnd.Add(plan.totalDuration()))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var options []SlotOption
	for ready := grid.Ceil(now); !ready.After(scanEnd); ready = ready.Add(grid.SlotWidth) {
		cookStart := ready.Add(-plan.prepDuration())
		feasible := !cookStart.Before(now) && s.feasible(anchor, existing, plan.blocksAt(anchor, cookStart))
		options = append(options, SlotOption{Time: ready, Feasible: feasible})
	}
	return options, nil
}
