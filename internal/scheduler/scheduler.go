/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler places incoming demand on the capacity grid. Placement
// is greedy and non-backtracking: demands commit in arrival order and an
// earlier commitment is never moved to make room for a later one.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/coupdefeu/coupdefeu/internal/capacity"
	"github.com/coupdefeu/coupdefeu/internal/demand"
	"github.com/coupdefeu/coupdefeu/internal/events"
	"github.com/coupdefeu/coupdefeu/internal/grid"
	"github.com/coupdefeu/coupdefeu/internal/models"
	"github.com/coupdefeu/coupdefeu/internal/telemetry"
)

// ErrInfeasible reports that no slot inside the horizon can absorb the
// demand. Recoverable: order creation proceeds without a timing commitment.
var ErrInfeasible = errors.New("no feasible slot within horizon")

// PlacementMode records which algorithm produced a placement.
type PlacementMode string

const (
	ModeTarget PlacementMode = "target"
	ModeScan   PlacementMode = "scan"
)

// Source supplies the live demand set a placement decision is checked
// against. Implemented by the store; the engine never caches it.
type Source interface {
	ActiveOrders(ctx context.Context, restaurantID string, from, to time.Time) ([]models.Order, error)
	LoadsOverlapping(ctx context.Context, restaurantID string, from, to time.Time) ([]models.ExternalLoad, error)
}

// Committer persists a committed placement onto an order row.
type Committer interface {
	UpdateOrderSchedule(ctx context.Context, orderID string, size models.OrderSize, cookStartAt, readyAt time.Time, handoffAt *time.Time) error
}

// Request is one demand to place.
type Request struct {
	ItemCount        int
	OrderType        models.OrderType
	RequestedReadyAt *time.Time
	TransitMin       int
}

// Placement is a committed set of timestamps for an order.
type Placement struct {
	Size        models.OrderSize `json:"size"`
	CookStartAt time.Time        `json:"cook_start_at"`
	ReadyAt     time.Time        `json:"ready_at"`
	HandoffAt   *time.Time       `json:"handoff_at,omitempty"`
	Mode        PlacementMode    `json:"mode"`
}

// SlotOption is one entry of a feasibility quote.
type SlotOption struct {
	Time     time.Time `json:"time"`
	Feasible bool      `json:"feasible"`
}

// Service is the placement engine. It holds no grid state: every decision
// is computed fresh from the source, which makes concurrent reads safe
// without locking. Two simultaneous commits can still oversubscribe a slot;
// that bounded overcommit is accepted, the serialization point belongs to
// the deployment around the store.
type Service struct {
	source   Source
	profile  demand.Profile
	capacity capacity.Profile
	horizon  time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// New constructs the placement engine.
func New(source Source, profile demand.Profile, capacityProfile capacity.Profile, horizon time.Duration, logger zerolog.Logger) *Service {
	if horizon <= 0 {
		horizon = 6 * time.Hour
	}
	return &Service{
		source:   source,
		profile:  profile,
		capacity: capacityProfile,
		horizon:  horizon,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// Schedule finds a feasible placement for the request or proves there is
// none. With a requested ready time it works backward from that instant and
// either fits or rejects; it never silently falls back to scanning — the
// caller decides whether to retry without a target.
func (s *Service) Schedule(ctx context.Context, restaurantID string, req Request) (Placement, error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "Schedule")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{
		"restaurant_id": restaurantID,
		"order_type":    string(req.OrderType),
		"item_count":    req.ItemCount,
	})

	started := time.Now()
	defer func() {
		telemetry.PlacementDuration.WithLabelValues(restaurantID).Observe(time.Since(started).Seconds())
	}()

	if err := demand.ValidateOrderInput(req.ItemCount, req.OrderType); err != nil {
		telemetry.RecordError(span, err)
		return Placement{}, err
	}

	size := s.profile.ClassifySize(req.ItemCount)
	plan := newBlockPlan(s.profile, size, req.OrderType, req.TransitMin)

	now := s.now().UTC()
	anchor := grid.Floor(now)
	windowEnd := now.Add(s.horizon).Add(plan.totalDuration())

	existing, err := s.existingBlocks(ctx, restaurantID, anchor, anchor, windowEnd)
	if err != nil {
		telemetry.RecordError(span, err)
		return Placement{}, err
	}

	mode := ModeScan
	var placement Placement
	if req.RequestedReadyAt != nil {
		mode = ModeTarget
		placement, err = s.placeAtTarget(plan, size, anchor, now, *req.RequestedReadyAt, existing)
	} else {
		placement, err = s.placeEarliest(plan, size, anchor, now, existing)
	}

	if err != nil {
		if errors.Is(err, ErrInfeasible) {
			telemetry.PlacementInfeasibleTotal.WithLabelValues(restaurantID, string(mode)).Inc()
			s.logger.Info().
				Str("restaurant", restaurantID).
				Str("mode", string(mode)).
				Str("size", string(size)).
				Msg("placement infeasible")
		}
		telemetry.RecordError(span, err)
		return Placement{}, err
	}

	telemetry.PlacementsTotal.WithLabelValues(restaurantID, string(mode)).Inc()
	s.logger.Debug().
		Str("restaurant", restaurantID).
		Str("mode", string(mode)).
		Str("size", string(size)).
		Time("cook_start", placement.CookStartAt).
		Time("ready", placement.ReadyAt).
		Msg("placement found")

	return placement, nil
}

// Commit persists a placement onto an order and announces the change.
// Kept separate from Schedule so quoting flows can place without writing.
func (s *Service) Commit(ctx context.Context, committer Committer, bus *events.Bus, restaurantID, orderID string, placement Placement) error {
	if err := committer.UpdateOrderSchedule(ctx, orderID, placement.Size, placement.CookStartAt, placement.ReadyAt, placement.HandoffAt); err != nil {
		return fmt.Errorf("commit placement for order %s: %w", orderID, err)
	}
	if bus != nil {
		bus.Publish(events.EventOrderScheduled, events.Payload{
			"restaurant_id": restaurantID,
			"order_id":      orderID,
			"cook_start_at": placement.CookStartAt,
			"ready_at":      placement.ReadyAt,
		})
		bus.Publish(events.EventTimelineChanged, events.Payload{"restaurant_id": restaurantID})
	}
	return nil
}

// placeAtTarget works backward from the requested ready time.
func (s *Service) placeAtTarget(plan blockPlan, size models.OrderSize, anchor, now, ready time.Time, existing []capacity.Block) (Placement, error) {
	ready = ready.UTC()
	cookStart := ready.Add(-plan.prepDuration())

	if cookStart.Before(now) {
		return Placement{}, fmt.Errorf("%w: requested ready time %s needs cooking to start in the past", ErrInfeasible, ready.Format(time.RFC3339))
	}
	if ready.After(now.Add(s.horizon)) {
		return Placement{}, fmt.Errorf("%w: requested ready time %s is beyond the horizon", ErrInfeasible, ready.Format(time.RFC3339))
	}

	candidate := plan.blocksAt(anchor, cookStart)
	if !s.feasible(anchor, existing, candidate) {
		return Placement{}, ErrInfeasible
	}

	return plan.placement(size, cookStart, ModeTarget), nil
}

// placeEarliest scans forward slot by slot from the next boundary and takes
// the first candidate start whose entire simulated block set fits.
func (s *Service) placeEarliest(plan blockPlan, size models.OrderSize, anchor, now time.Time, existing []capacity.Block) (Placement, error) {
	scanEnd := now.Add(s.horizon)
	for cookStart := grid.Ceil(now); !cookStart.After(scanEnd); cookStart = cookStart.Add(grid.SlotWidth) {
		candidate := plan.blocksAt(anchor, cookStart)
		if s.feasible(anchor, existing, candidate) {
			return plan.placement(size, cookStart, ModeScan), nil
		}
	}
	return Placement{}, ErrInfeasible
}

// feasible checks every resource/slot pair the candidate blocks touch
// against remaining capacity. Existing overflow elsewhere on the grid does
// not poison slots the candidate never touches.
func (s *Service) feasible(anchor time.Time, existing, candidate []capacity.Block) bool {
	for _, block := range candidate {
		for slot := block.Span.Start; slot <= block.Span.End; slot++ {
			remaining := s.capacity.CapacityAt(block.Resource, grid.Start(anchor, slot)) -
				capacity.UsedAt(existing, block.Resource, slot) -
				capacity.UsedAt(candidate, block.Resource, slot)
			if remaining < 0 {
				return false
			}
		}
	}
	return true
}

// existingBlocks derives the current usage from the live order and load
// sets. Never cached: a cancellation or load edit is visible to the very
// next decision.
func (s *Service) existingBlocks(ctx context.Context, restaurantID string, anchor, from, to time.Time) ([]capacity.Block, error) {
	orders, err := s.source.ActiveOrders(ctx, restaurantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load active orders: %w", err)
	}
	loads, err := s.source.LoadsOverlapping(ctx, restaurantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load external loads: %w", err)
	}

	var blocks []capacity.Block
	for _, order := range orders {
		blocks = append(blocks, capacity.OrderBlocks(s.profile, anchor, order)...)
	}
	for _, load := range loads {
		loadBlocks, err := capacity.LoadBlocks(anchor, load, from, to)
		if err != nil {
			// A malformed recurrence must not wedge scheduling for the whole
			// restaurant; skip the load and surface it in the logs.
			s.logger.Warn().Err(err).Str("load", load.ID).Msg("skipping load with bad recurrence")
			continue
		}
		blocks = append(blocks, loadBlocks...)
	}
	return blocks, nil
}
