/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/coupdefeu/coupdefeu/internal/capacity"
	"github.com/coupdefeu/coupdefeu/internal/demand"
	"github.com/coupdefeu/coupdefeu/internal/models"
	"github.com/coupdefeu/coupdefeu/internal/store"
)

var testNow = time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC)

const testRestaurant = "rest-1"

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	if err := database.AutoMigrate(&models.Order{}, &models.ExternalLoad{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	st := store.New(database)
	svc := New(st, demand.DefaultProfile(), capacity.DefaultProfile(), zerolog.Nop())
	svc.SetNow(func() time.Time { return testNow })
	return svc, st
}

func createScheduledOrder(t *testing.T, st *store.Store, status models.OrderStatus, cookStart time.Time, prepSlots int) models.Order {
	t.Helper()
	ready := cookStart.Add(time.Duration(prepSlots) * 5 * time.Minute)
	order := models.Order{
		ID:           uuid.NewString(),
		RestaurantID: testRestaurant,
		Status:       status,
		Type:         models.OrderTypePickup,
		ItemCount:    5,
		Size:         models.OrderSizeM,
		CookStartAt:  &cookStart,
		ReadyAt:      &ready,
	}
	if err := st.CreateOrder(context.Background(), &order); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	return order
}

func usageAt(t *testing.T, snapshot *Snapshot, index int, resource models.Resource) ResourceUsage {
	t.Helper()
	for _, slot := range snapshot.Slots {
		if slot.Index == index {
			return slot.Resources[resource]
		}
	}
	t.Fatalf("snapshot has no slot %d", index)
	return ResourceUsage{}
}

func TestBuildDerivesOrderBlocks(t *testing.T) {
	svc, st := newTestService(t)

	createScheduledOrder(t, st, models.OrderStatusConfirmed, testNow, 3)

	snapshot, err := svc.Build(context.Background(), testRestaurant, testNow, testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if got := len(snapshot.Slots); got != 12 {
		t.Fatalf("slot count = %d, want 12", got)
	}
	if got := len(snapshot.Orders); got != 1 {
		t.Fatalf("order count = %d, want 1", got)
	}

	// An M order burns 6 cuisine and 3 preparation points over its three
	// cook slots, then nothing.
	for slot := 0; slot < 3; slot++ {
		if got := usageAt(t, snapshot, slot, models.ResourceCuisine); got.Used != 6 || got.Remaining != 4 {
			t.Errorf("cuisine slot %d = %+v, want used 6 remaining 4", slot, got)
		}
		if got := usageAt(t, snapshot, slot, models.ResourcePreparation); got.Used != 3 {
			t.Errorf("preparation slot %d used = %d, want 3", slot, got.Used)
		}
	}
	if got := usageAt(t, snapshot, 3, models.ResourceCuisine); got.Used != 0 {
		t.Errorf("cuisine slot 3 used = %d, want 0", got.Used)
	}
	// Pickup orders have no handoff block.
	if got := usageAt(t, snapshot, 3, models.ResourceComptoir); got.Used != 0 {
		t.Errorf("comptoir slot 3 used = %d, want 0", got.Used)
	}
}

func TestBuildReflectsStatusTransitions(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	order := createScheduledOrder(t, st, models.OrderStatusConfirmed, testNow, 3)

	snapshot, err := svc.Build(ctx, testRestaurant, testNow, testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if got := usageAt(t, snapshot, 0, models.ResourceCuisine).Used; got != 6 {
		t.Fatalf("cuisine slot 0 used = %d, want 6 before cancellation", got)
	}

	if err := st.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCancelled); err != nil {
		t.Fatalf("failed to cancel order: %v", err)
	}

	// No invalidation step: the next snapshot simply derives from the new
	// status and the blocks are gone.
	snapshot, err = svc.Build(ctx, testRestaurant, testNow, testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("Build after cancel returned error: %v", err)
	}
	if got := usageAt(t, snapshot, 0, models.ResourceCuisine).Used; got != 0 {
		t.Errorf("cuisine slot 0 used = %d after cancellation, want 0", got)
	}
	if got := len(snapshot.Blocks); got != 0 {
		t.Errorf("block count = %d after cancellation, want 0", got)
	}
}

func TestBuildReportsOverflowWithoutError(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	createScheduledOrder(t, st, models.OrderStatusPreparing, testNow, 3)

	// A high-intensity load lands on the same window without any
	// feasibility gate.
	load := models.ExternalLoad{
		ID:            uuid.NewString(),
		RestaurantID:  testRestaurant,
		Type:          models.LoadTypeCateringPickup,
		Resources:     models.ResourceList{models.ResourceCuisine},
		Intensity:     models.LoadIntensityHigh,
		PointsPerSlot: 8,
		StartTime:     testNow,
		DurationMin:   30,
		EndTime:       testNow.Add(30 * time.Minute),
		Label:         "wedding platters",
	}
	if err := st.CreateLoad(ctx, &load); err != nil {
		t.Fatalf("failed to create load: %v", err)
	}

	snapshot, err := svc.Build(ctx, testRestaurant, testNow, testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	got := usageAt(t, snapshot, 0, models.ResourceCuisine)
	if got.Used != 14 {
		t.Fatalf("cuisine slot 0 used = %d, want 14", got.Used)
	}
	if got.Remaining != -4 {
		t.Errorf("cuisine slot 0 remaining = %d, want -4", got.Remaining)
	}
	if !got.Overflow {
		t.Error("cuisine slot 0 not flagged as overflow")
	}
}

func TestBuildExpandsRecurringLoads(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	load := models.ExternalLoad{
		ID:            uuid.NewString(),
		RestaurantID:  testRestaurant,
		Type:          models.LoadTypeDineInWave,
		Resources:     models.ResourceList{models.ResourceCuisine, models.ResourceComptoir},
		Intensity:     models.LoadIntensityLow,
		PointsPerSlot: 3,
		StartTime:     testNow.AddDate(0, 0, -7),
		DurationMin:   15,
		EndTime:       testNow.AddDate(0, 0, -7).Add(15 * time.Minute),
		Recurrence:    "FREQ=DAILY",
		Label:         "aperitif rush",
	}
	if err := st.CreateLoad(ctx, &load); err != nil {
		t.Fatalf("failed to create load: %v", err)
	}

	snapshot, err := svc.Build(ctx, testRestaurant, testNow, testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	// Today's occurrence covers slots 0-2 on both listed resources.
	for _, resource := range []models.Resource{models.ResourceCuisine, models.ResourceComptoir} {
		if got := usageAt(t, snapshot, 1, resource).Used; got != 3 {
			t.Errorf("%s slot 1 used = %d, want 3", resource, got)
		}
		if got := usageAt(t, snapshot, 4, resource).Used; got != 0 {
			t.Errorf("%s slot 4 used = %d, want 0", resource, got)
		}
	}
}

func TestBuildRejectsEmptyWindow(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Build(context.Background(), testRestaurant, testNow, testNow); err == nil {
		t.Fatal("expected error for zero-length window")
	}
}
