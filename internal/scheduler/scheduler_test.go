/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/coupdefeu/coupdefeu/internal/capacity"
	"github.com/coupdefeu/coupdefeu/internal/demand"
	"github.com/coupdefeu/coupdefeu/internal/grid"
	"github.com/coupdefeu/coupdefeu/internal/models"
	"github.com/coupdefeu/coupdefeu/internal/store"
)

var testNow = time.Date(2026, time.March, 2, 11, 0, 0, 0, time.UTC)

const testRestaurant = "rest-1"

func newTestEngine(t *testing.T) (*Service, *store.Store) {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	if err := database.AutoMigrate(&models.Order{}, &models.ExternalLoad{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	st := store.New(database)
	svc := New(st, demand.DefaultProfile(), capacity.DefaultProfile(), 6*time.Hour, zerolog.Nop())
	svc.SetNow(func() time.Time { return testNow })
	return svc, st
}

func createPendingOrder(t *testing.T, st *store.Store, orderType models.OrderType, itemCount int) models.Order {
	t.Helper()
	order := models.Order{
		ID:           uuid.NewString(),
		RestaurantID: testRestaurant,
		Status:       models.OrderStatusPending,
		Type:         orderType,
		ItemCount:    itemCount,
	}
	if err := st.CreateOrder(context.Background(), &order); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	return order
}

func scheduleAndCommit(t *testing.T, svc *Service, st *store.Store, req Request) Placement {
	t.Helper()
	ctx := context.Background()
	placement, err := svc.Schedule(ctx, testRestaurant, req)
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	order := createPendingOrder(t, st, req.OrderType, req.ItemCount)
	if err := svc.Commit(ctx, st, nil, testRestaurant, order.ID, placement); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	return placement
}

func TestScheduleTargetModeBackwardConsistency(t *testing.T) {
	svc, _ := newTestEngine(t)

	ready := testNow.Add(time.Hour)
	placement, err := svc.Schedule(context.Background(), testRestaurant, Request{
		ItemCount:        5, // M
		OrderType:        models.OrderTypePickup,
		RequestedReadyAt: &ready,
	})
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	if placement.Mode != ModeTarget {
		t.Errorf("mode = %s, want target", placement.Mode)
	}
	// cookStartAt + prepDuration(size) must equal the requested ready time.
	prep := 3 * grid.SlotWidth // M is 3 slots
	if !placement.CookStartAt.Add(prep).Equal(placement.ReadyAt) {
		t.Errorf("cook start %v + prep %v != ready %v", placement.CookStartAt, prep, placement.ReadyAt)
	}
	if !placement.ReadyAt.Equal(ready) {
		t.Errorf("ready = %v, want requested %v", placement.ReadyAt, ready)
	}
	if placement.HandoffAt != nil {
		t.Errorf("pickup handoff = %v, want nil", placement.HandoffAt)
	}
}

func TestScheduleDeliveryCarriesHandoff(t *testing.T) {
	svc, _ := newTestEngine(t)

	placement, err := svc.Schedule(context.Background(), testRestaurant, Request{
		ItemCount:  5,
		OrderType:  models.OrderTypeDelivery,
		TransitMin: 12,
	})
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if placement.HandoffAt == nil {
		t.Fatal("delivery placement missing handoff")
	}
	if !placement.HandoffAt.Equal(placement.ReadyAt) {
		t.Errorf("handoff = %v, want ready %v", placement.HandoffAt, placement.ReadyAt)
	}
}

func TestScheduleRejectsInvalidDemand(t *testing.T) {
	svc, _ := newTestEngine(t)

	_, err := svc.Schedule(context.Background(), testRestaurant, Request{
		ItemCount: -2,
		OrderType: models.OrderTypePickup,
	})
	if !errors.Is(err, demand.ErrInvalidDemand) {
		t.Fatalf("error = %v, want ErrInvalidDemand", err)
	}

	_, err = svc.Schedule(context.Background(), testRestaurant, Request{
		ItemCount: 2,
		OrderType: models.OrderType("teleport"),
	})
	if !errors.Is(err, demand.ErrInvalidDemand) {
		t.Fatalf("error = %v, want ErrInvalidDemand", err)
	}
}

func TestScheduleTargetInPastIsInfeasible(t *testing.T) {
	svc, _ := newTestEngine(t)

	// Ready in five minutes but M needs fifteen: cooking would have to
	// start in the past.
	ready := testNow.Add(grid.SlotWidth)
	_, err := svc.Schedule(context.Background(), testRestaurant, Request{
		ItemCount:        5,
		OrderType:        models.OrderTypePickup,
		RequestedReadyAt: &ready,
	})
	if !errors.Is(err, ErrInfeasible) {
		t.Fatalf("error = %v, want ErrInfeasible", err)
	}
}

// Cuisine capacity 10, an M order (6 pts, 3
// slots) committed at slot 0. A second M at the same target needs 12 > 10
// and is rejected; the earliest-feasible scan lands on slot 3, the first
// slot where the prior block has ended.
func TestSecondOrderRejectedThenScansPastFirst(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	ready := testNow.Add(3 * grid.SlotWidth)
	first := scheduleAndCommit(t, svc, st, Request{
		ItemCount:        5,
		OrderType:        models.OrderTypePickup,
		RequestedReadyAt: &ready,
	})
	if !first.CookStartAt.Equal(testNow) {
		t.Fatalf("first cook start = %v, want %v", first.CookStartAt, testNow)
	}

	// Same target must now be rejected, not silently moved.
	_, err := svc.Schedule(ctx, testRestaurant, Request{
		ItemCount:        5,
		OrderType:        models.OrderTypePickup,
		RequestedReadyAt: &ready,
	})
	if !errors.Is(err, ErrInfeasible) {
		t.Fatalf("second target placement error = %v, want ErrInfeasible", err)
	}

	// Falling back to the scan finds the first slot after the prior block.
	second, err := svc.Schedule(ctx, testRestaurant, Request{
		ItemCount: 5,
		OrderType: models.OrderTypePickup,
	})
	if err != nil {
		t.Fatalf("scan placement returned error: %v", err)
	}
	wantStart := testNow.Add(3 * grid.SlotWidth)
	if !second.CookStartAt.Equal(wantStart) {
		t.Errorf("scan cook start = %v, want %v (slot 3)", second.CookStartAt, wantStart)
	}
	if second.Mode != ModeScan {
		t.Errorf("mode = %s, want scan", second.Mode)
	}
}

// Immediately after placement every touched slot still satisfies
// used <= capacity.
func TestPlacementNeverOverflowsTouchedSlots(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	profile := demand.DefaultProfile()
	capProfile := capacity.DefaultProfile()
	anchor := grid.Floor(testNow)

	for i := 0; i < 5; i++ {
		placement, err := svc.Schedule(ctx, testRestaurant, Request{
			ItemCount: 5,
			OrderType: models.OrderTypePickup,
		})
		if err != nil {
			t.Fatalf("placement %d returned error: %v", i, err)
		}
		order := createPendingOrder(t, st, models.OrderTypePickup, 5)
		if err := svc.Commit(ctx, st, nil, testRestaurant, order.ID, placement); err != nil {
			t.Fatalf("commit %d returned error: %v", i, err)
		}

		orders, err := st.ActiveOrders(ctx, testRestaurant, anchor, testNow.Add(8*time.Hour))
		if err != nil {
			t.Fatalf("ActiveOrders returned error: %v", err)
		}
		var blocks []capacity.Block
		for _, o := range orders {
			blocks = append(blocks, capacity.OrderBlocks(profile, anchor, o)...)
		}
		for _, block := range blocks {
			for slot := block.Span.Start; slot <= block.Span.End; slot++ {
				used := capacity.UsedAt(blocks, block.Resource, slot)
				cap := capProfile.CapacityAt(block.Resource, grid.Start(anchor, slot))
				if used > cap {
					t.Fatalf("after placement %d: %s slot %d used %d > capacity %d", i, block.Resource, slot, used, cap)
				}
			}
		}
	}
}

func TestScheduleInfeasibleWhenGridSaturated(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	// A day-long high load eats the whole cuisine ceiling.
	load := models.ExternalLoad{
		ID:            uuid.NewString(),
		RestaurantID:  testRestaurant,
		Type:          models.LoadTypeEvent,
		Resources:     models.ResourceList{models.ResourceCuisine},
		Intensity:     models.LoadIntensityHigh,
		PointsPerSlot: 10,
		StartTime:     testNow.Add(-time.Hour),
		DurationMin:   24 * 60,
		EndTime:       testNow.Add(23 * time.Hour),
		Label:         "full buyout",
	}
	if err := st.CreateLoad(ctx, &load); err != nil {
		t.Fatalf("failed to create load: %v", err)
	}

	_, err := svc.Schedule(ctx, testRestaurant, Request{
		ItemCount: 5,
		OrderType: models.OrderTypePickup,
	})
	if !errors.Is(err, ErrInfeasible) {
		t.Fatalf("error = %v, want ErrInfeasible", err)
	}
}

func TestCancelledOrderFreesCapacity(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	ready := testNow.Add(3 * grid.SlotWidth)
	scheduleAndCommit(t, svc, st, Request{
		ItemCount:        5,
		OrderType:        models.OrderTypePickup,
		RequestedReadyAt: &ready,
	})

	// Identical target is blocked while the first order is live.
	if _, err := svc.Schedule(ctx, testRestaurant, Request{ItemCount: 5, OrderType: models.OrderTypePickup, RequestedReadyAt: &ready}); !errors.Is(err, ErrInfeasible) {
		t.Fatalf("error = %v, want ErrInfeasible while first order active", err)
	}

	var first models.Order
	if err := st.DB().Where("restaurant_id = ?", testRestaurant).First(&first).Error; err != nil {
		t.Fatalf("failed to load first order: %v", err)
	}
	if err := st.UpdateOrderStatus(ctx, first.ID, models.OrderStatusCancelled); err != nil {
		t.Fatalf("failed to cancel order: %v", err)
	}

	// No invalidation step needed: the next decision recomputes from source.
	if _, err := svc.Schedule(ctx, testRestaurant, Request{ItemCount: 5, OrderType: models.OrderTypePickup, RequestedReadyAt: &ready}); err != nil {
		t.Fatalf("placement after cancellation returned error: %v", err)
	}
}

func TestAvailableSlotsPureAndIdempotent(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	ready := testNow.Add(3 * grid.SlotWidth)
	scheduleAndCommit(t, svc, st, Request{
		ItemCount:        5,
		OrderType:        models.OrderTypePickup,
		RequestedReadyAt: &ready,
	})

	first, err := svc.AvailableSlots(ctx, testRestaurant, models.OrderTypePickup, 5, 0)
	if err != nil {
		t.Fatalf("AvailableSlots returned error: %v", err)
	}
	if len(first) == 0 {
		t.Fatal("expected slot options")
	}

	for i := 0; i < 3; i++ {
		again, err := svc.AvailableSlots(ctx, testRestaurant, models.OrderTypePickup, 5, 0)
		if err != nil {
			t.Fatalf("AvailableSlots call %d returned error: %v", i, err)
		}
		if len(again) != len(first) {
			t.Fatalf("call %d returned %d options, want %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("call %d option %d = %+v, want %+v", i, j, again[j], first[j])
			}
		}
	}

	// The committed order saturates ready times whose cook window overlaps
	// its block; those must be quoted infeasible.
	for _, option := range first {
		overlapsCommitted := option.Time.After(testNow) && !option.Time.After(ready.Add(2*grid.SlotWidth))
		if overlapsCommitted && option.Feasible {
			t.Errorf("ready time %v quoted feasible despite saturated cook window", option.Time)
		}
	}
}

func TestAvailableSlotsMonotoneInSize(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	ready := testNow.Add(3 * grid.SlotWidth)
	scheduleAndCommit(t, svc, st, Request{
		ItemCount:        5,
		OrderType:        models.OrderTypePickup,
		RequestedReadyAt: &ready,
	})

	small, err := svc.AvailableSlots(ctx, testRestaurant, models.OrderTypePickup, 1, 0)
	if err != nil {
		t.Fatalf("AvailableSlots(S) returned error: %v", err)
	}
	large, err := svc.AvailableSlots(ctx, testRestaurant, models.OrderTypePickup, 20, 0)
	if err != nil {
		t.Fatalf("AvailableSlots(L) returned error: %v", err)
	}

	byTime := make(map[time.Time]bool, len(small))
	for _, option := range small {
		byTime[option.Time] = option.Feasible
	}
	// Growing the demand can only turn feasible slots infeasible, never the
	// reverse.
	for _, option := range large {
		if option.Feasible && !byTime[option.Time] {
			t.Errorf("ready time %v feasible for L but not for S", option.Time)
		}
	}
}
