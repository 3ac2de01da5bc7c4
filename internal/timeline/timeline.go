/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package timeline assembles read-model snapshots of the capacity grid: per
// slot and resource, the ceiling, the derived usage, and the block set that
// produced it. A snapshot is computed from the live order and load rows on
// every call and is never stored.
package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/coupdefeu/coupdefeu/internal/capacity"
	"github.com/coupdefeu/coupdefeu/internal/demand"
	"github.com/coupdefeu/coupdefeu/internal/grid"
	"github.com/coupdefeu/coupdefeu/internal/models"
	"github.com/coupdefeu/coupdefeu/internal/telemetry"
)

// Source supplies the rows a snapshot derives from.
type Source interface {
	ActiveOrders(ctx context.Context, restaurantID string, from, to time.Time) ([]models.Order, error)
	LoadsOverlapping(ctx context.Context, restaurantID string, from, to time.Time) ([]models.ExternalLoad, error)
}

// ResourceUsage is the state of one resource in one slot. Used may exceed
// Capacity: external loads land without feasibility checks, so the snapshot
// reports overflow instead of hiding it.
type ResourceUsage struct {
	Capacity  int  `json:"capacity"`
	Used      int  `json:"used"`
	Remaining int  `json:"remaining"`
	Overflow  bool `json:"overflow"`
}

// SlotView is one grid slot with the usage of every resource.
type SlotView struct {
	Index     int                               `json:"index"`
	StartTime time.Time                         `json:"start_time"`
	Resources map[models.Resource]ResourceUsage `json:"resources"`
}

// OrderSummary is the per-order slice of the snapshot.
type OrderSummary struct {
	ID          string             `json:"id"`
	Status      models.OrderStatus `json:"status"`
	Type        models.OrderType   `json:"type"`
	Size        models.OrderSize   `json:"size,omitempty"`
	ItemCount   int                `json:"item_count"`
	CookStartAt *time.Time         `json:"cook_start_at,omitempty"`
	ReadyAt     *time.Time         `json:"ready_at,omitempty"`
	HandoffAt   *time.Time         `json:"handoff_at,omitempty"`
}

// Snapshot is the full timeline view for one restaurant and window.
type Snapshot struct {
	RestaurantID string           `json:"restaurant_id"`
	GeneratedAt  time.Time        `json:"generated_at"`
	AnchorTime   time.Time        `json:"anchor_time"`
	SlotWidthMin int              `json:"slot_width_min"`
	From         time.Time        `json:"from"`
	To           time.Time        `json:"to"`
	Slots        []SlotView       `json:"slots"`
	Blocks       []capacity.Block `json:"blocks"`
	Orders       []OrderSummary   `json:"orders"`
}

// Service builds snapshots.
type Service struct {
	source   Source
	profile  demand.Profile
	capacity capacity.Profile
	logger   zerolog.Logger
	now      func() time.Time
}

func New(source Source, profile demand.Profile, capacityProfile capacity.Profile, logger zerolog.Logger) *Service {
	return &Service{
		source:   source,
		profile:  profile,
		capacity: capacityProfile,
		logger:   logger.With().Str("component", "timeline").Logger(),
		now:      time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// Build derives the snapshot for [from, to). The anchor is from floored to
// its slot boundary, so the first slot always covers from itself.
func (s *Service) Build(ctx context.Context, restaurantID string, from, to time.Time) (*Snapshot, error) {
	ctx, span := telemetry.StartSpan(ctx, "timeline", "Build")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{
		"restaurant_id": restaurantID,
	})

	started := time.Now()
	defer func() {
		telemetry.SnapshotBuildDuration.WithLabelValues(restaurantID).Observe(time.Since(started).Seconds())
	}()

	from = from.UTC()
	to = to.UTC()
	if !to.After(from) {
		return nil, fmt.Errorf("timeline window must end after it starts")
	}
	anchor := grid.Floor(from)

	orders, err := s.source.ActiveOrders(ctx, restaurantID, from, to)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("load active orders: %w", err)
	}
	loads, err := s.source.LoadsOverlapping(ctx, restaurantID, from, to)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("load external loads: %w", err)
	}

	blocks := make([]capacity.Block, 0, len(orders)+len(loads))
	summaries := make([]OrderSummary, 0, len(orders))
	for _, order := range orders {
		blocks = append(blocks, capacity.OrderBlocks(s.profile, anchor, order)...)
		summaries = append(summaries, OrderSummary{
			ID:          order.ID,
			Status:      order.Status,
			Type:        order.Type,
			Size:        order.Size,
			ItemCount:   order.ItemCount,
			CookStartAt: order.CookStartAt,
			ReadyAt:     order.ReadyAt,
			HandoffAt:   order.HandoffAt,
		})
	}
	for _, load := range loads {
		loadBlocks, err := capacity.LoadBlocks(anchor, load, from, to)
		if err != nil {
			s.logger.Warn().Err(err).Str("load", load.ID).Msg("skipping load with bad recurrence")
			continue
		}
		blocks = append(blocks, loadBlocks...)
	}

	snapshot := &Snapshot{
		RestaurantID: restaurantID,
		GeneratedAt:  s.now().UTC(),
		AnchorTime:   anchor,
		SlotWidthMin: int(grid.SlotWidth / time.Minute),
		From:         from,
		To:           to,
		Blocks:       blocks,
		Orders:       summaries,
	}

	for slotStart := anchor; slotStart.Before(to); slotStart = slotStart.Add(grid.SlotWidth) {
		index := grid.Index(anchor, slotStart)
		view := SlotView{
			Index:     index,
			StartTime: slotStart,
			Resources: make(map[models.Resource]ResourceUsage, 4),
		}
		for _, resource := range models.AllResources() {
			cap := s.capacity.CapacityAt(resource, slotStart)
			used := capacity.UsedAt(blocks, resource, index)
			usage := ResourceUsage{
				Capacity:  cap,
				Used:      used,
				Remaining: cap - used,
				Overflow:  used > cap,
			}
			if usage.Overflow {
				telemetry.OverflowSlotsObserved.WithLabelValues(restaurantID, string(resource)).Inc()
			}
			view.Resources[resource] = usage
		}
		snapshot.Slots = append(snapshot.Slots, view)
	}

	return snapshot, nil
}
