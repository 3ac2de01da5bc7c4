/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package capacity

import (
	"testing"
	"time"

	"github.com/coupdefeu/coupdefeu/internal/demand"
	"github.com/coupdefeu/coupdefeu/internal/grid"
	"github.com/coupdefeu/coupdefeu/internal/models"
)

var anchor = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

func TestCapacityAtWindows(t *testing.T) {
	profile := Profile{
		Resources: map[models.Resource]ResourceCapacity{
			models.ResourceCuisine: {
				Base: 10,
				Windows: []CapacityWindow{
					{StartHour: 12, EndHour: 14, Points: 16},
					{StartHour: 22, EndHour: 2, Points: 4},
				},
			},
		},
	}

	tests := []struct {
		name string
		at   time.Time
		want int
	}{
		{"base hours", time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), 10},
		{"lunch window", time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC), 16},
		{"window end exclusive", time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC), 10},
		{"wrapping window late", time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC), 4},
		{"wrapping window early", time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := profile.CapacityAt(models.ResourceCuisine, tt.at); got != tt.want {
				t.Errorf("CapacityAt = %d, want %d", got, tt.want)
			}
		})
	}

	if got := profile.CapacityAt(models.ResourceLivraison, anchor); got != 0 {
		t.Errorf("unknown resource capacity = %d, want 0", got)
	}
}

func TestUsedAtAndRemaining(t *testing.T) {
	blocks := []Block{
		{Resource: models.ResourceCuisine, Points: 6, Span: grid.Span{Start: 0, End: 2}},
		{Resource: models.ResourceCuisine, Points: 3, Span: grid.Span{Start: 2, End: 4}},
		{Resource: models.ResourcePreparation, Points: 5, Span: grid.Span{Start: 0, End: 1}},
	}

	if got := UsedAt(blocks, models.ResourceCuisine, 1); got != 6 {
		t.Errorf("UsedAt slot 1 = %d, want 6", got)
	}
	if got := UsedAt(blocks, models.ResourceCuisine, 2); got != 9 {
		t.Errorf("UsedAt slot 2 = %d, want 9", got)
	}
	if got := UsedAt(blocks, models.ResourceCuisine, 5); got != 0 {
		t.Errorf("UsedAt slot 5 = %d, want 0", got)
	}

	profile := DefaultProfile()
	if got := profile.RemainingAt(anchor, blocks, models.ResourceCuisine, 2); got != 1 {
		t.Errorf("RemainingAt slot 2 = %d, want 1", got)
	}
}

func TestRemainingReportsOverflow(t *testing.T) {
	profile := DefaultProfile()
	blocks := []Block{
		{Resource: models.ResourceCuisine, Points: 6, Span: grid.Span{Start: 0, End: 3}},
		{Resource: models.ResourceCuisine, Points: 8, Span: grid.Span{Start: 0, End: 3}},
	}
	remaining := profile.RemainingAt(anchor, blocks, models.ResourceCuisine, 1)
	if remaining != -4 {
		t.Errorf("RemainingAt = %d, want -4 (overflow is a reportable state)", remaining)
	}
}

func scheduledOrder(status models.OrderStatus, orderType models.OrderType) models.Order {
	cookStart := anchor
	ready := anchor.Add(3 * grid.SlotWidth)
	handoff := ready
	return models.Order{
		ID:          "order-1",
		Status:      status,
		Type:        orderType,
		Size:        models.OrderSizeM,
		TransitMin:  12,
		CookStartAt: &cookStart,
		ReadyAt:     &ready,
		HandoffAt:   &handoff,
	}
}

func TestOrderBlocksByStatus(t *testing.T) {
	profile := demand.DefaultProfile()

	t.Run("cooking statuses occupy cuisine and preparation", func(t *testing.T) {
		for _, status := range []models.OrderStatus{models.OrderStatusPending, models.OrderStatusConfirmed, models.OrderStatusPreparing} {
			blocks := OrderBlocks(profile, anchor, scheduledOrder(status, models.OrderTypePickup))
			if len(blocks) != 2 {
				t.Fatalf("status %s: got %d blocks, want 2", status, len(blocks))
			}
			if blocks[0].Resource != models.ResourceCuisine || blocks[0].Points != 6 {
				t.Errorf("status %s: cuisine block = %+v", status, blocks[0])
			}
			if blocks[1].Resource != models.ResourcePreparation || blocks[1].Points != 3 {
				t.Errorf("status %s: preparation block = %+v", status, blocks[1])
			}
			want := grid.Span{Start: 0, End: 2}
			if blocks[0].Span != want {
				t.Errorf("status %s: cook span = %+v, want %+v", status, blocks[0].Span, want)
			}
		}
	})

	t.Run("ready pickup occupies comptoir", func(t *testing.T) {
		blocks := OrderBlocks(profile, anchor, scheduledOrder(models.OrderStatusReady, models.OrderTypePickup))
		if len(blocks) != 1 {
			t.Fatalf("got %d blocks, want 1", len(blocks))
		}
		if blocks[0].Resource != models.ResourceComptoir {
			t.Errorf("resource = %s, want comptoir", blocks[0].Resource)
		}
		if blocks[0].Span.Slots() != profile.HandoffSlots {
			t.Errorf("handoff slots = %d, want %d", blocks[0].Span.Slots(), profile.HandoffSlots)
		}
	})

	t.Run("delivering order occupies livraison for the transit window", func(t *testing.T) {
		blocks := OrderBlocks(profile, anchor, scheduledOrder(models.OrderStatusDelivering, models.OrderTypeDelivery))
		if len(blocks) != 1 {
			t.Fatalf("got %d blocks, want 1", len(blocks))
		}
		if blocks[0].Resource != models.ResourceLivraison {
			t.Errorf("resource = %s, want livraison", blocks[0].Resource)
		}
		// 12 min transit rounds up to 3 slots.
		if blocks[0].Span.Slots() != 3 {
			t.Errorf("transit slots = %d, want 3", blocks[0].Span.Slots())
		}
	})

	t.Run("terminal and unscheduled orders contribute nothing", func(t *testing.T) {
		for _, status := range []models.OrderStatus{models.OrderStatusCompleted, models.OrderStatusCancelled} {
			if blocks := OrderBlocks(profile, anchor, scheduledOrder(status, models.OrderTypePickup)); len(blocks) != 0 {
				t.Errorf("status %s: got %d blocks, want 0", status, len(blocks))
			}
		}
		unscheduled := models.Order{ID: "order-2", Status: models.OrderStatusPending, Size: models.OrderSizeS}
		if blocks := OrderBlocks(profile, anchor, unscheduled); len(blocks) != 0 {
			t.Errorf("unscheduled order: got %d blocks, want 0", len(blocks))
		}
	})
}

func TestLoadBlocks(t *testing.T) {
	load := models.ExternalLoad{
		ID:            "load-1",
		Type:          models.LoadTypeEvent,
		Resources:     models.ResourceList{models.ResourceCuisine, models.ResourceComptoir},
		Intensity:     models.LoadIntensityHigh,
		PointsPerSlot: 8,
		StartTime:     anchor.Add(2 * grid.SlotWidth),
		DurationMin:   20,
		EndTime:       anchor.Add(2 * grid.SlotWidth).Add(20 * time.Minute),
		Label:         "wedding party",
	}

	blocks, err := LoadBlocks(anchor, load, anchor, anchor.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("LoadBlocks returned error: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2 (one per resource)", len(blocks))
	}
	want := grid.Span{Start: 2, End: 5}
	for _, block := range blocks {
		if block.Span != want {
			t.Errorf("span = %+v, want %+v", block.Span, want)
		}
		if block.Points != 8 {
			t.Errorf("points = %d, want frozen 8", block.Points)
		}
	}
}

func TestLoadBlocksRecurring(t *testing.T) {
	load := models.ExternalLoad{
		ID:            "load-2",
		Type:          models.LoadTypeDineInWave,
		Resources:     models.ResourceList{models.ResourceCuisine},
		PointsPerSlot: 5,
		StartTime:     anchor,
		DurationMin:   30,
		EndTime:       anchor.Add(30 * time.Minute),
		Recurrence:    "FREQ=DAILY;COUNT=3",
	}

	blocks, err := LoadBlocks(anchor, load, anchor, anchor.Add(72*time.Hour))
	if err != nil {
		t.Fatalf("LoadBlocks returned error: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3 daily occurrences", len(blocks))
	}
	perDay := int((24 * time.Hour) / grid.SlotWidth)
	for i, block := range blocks {
		wantStart := i * perDay
		if block.Span.Start != wantStart {
			t.Errorf("occurrence %d starts at slot %d, want %d", i, block.Span.Start, wantStart)
		}
	}
}
