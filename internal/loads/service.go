/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package loads manages external load rows: capacity consumed by demand
// that does not arrive as an order, like catering commitments or a booked
// dining room. Loads skip the feasibility gate entirely, which is why the
// timeline can legitimately report overflow.
package loads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"

	"github.com/coupdefeu/coupdefeu/internal/demand"
	"github.com/coupdefeu/coupdefeu/internal/events"
	"github.com/coupdefeu/coupdefeu/internal/models"
	"github.com/coupdefeu/coupdefeu/internal/store"
)

// ErrInvalidLoad reports a load request that cannot be stored.
var ErrInvalidLoad = errors.New("invalid external load")

// ErrNotFound mirrors the store sentinel so callers need only this package.
var ErrNotFound = store.ErrNotFound

// CreateRequest describes a new external load.
type CreateRequest struct {
	Type        models.LoadType      `json:"type"`
	Resources   []models.Resource    `json:"resources"`
	Intensity   models.LoadIntensity `json:"intensity"`
	StartTime   time.Time            `json:"start_time"`
	DurationMin int                  `json:"duration_min"`
	Label       string               `json:"label"`
	Recurrence  string               `json:"recurrence,omitempty"`
}

// UpdateRequest carries the mutable fields of a load. Nil means keep.
type UpdateRequest struct {
	Type        *models.LoadType      `json:"type,omitempty"`
	Resources   []models.Resource     `json:"resources,omitempty"`
	Intensity   *models.LoadIntensity `json:"intensity,omitempty"`
	StartTime   *time.Time            `json:"start_time,omitempty"`
	DurationMin *int                  `json:"duration_min,omitempty"`
	Label       *string               `json:"label,omitempty"`
	Recurrence  *string               `json:"recurrence,omitempty"`
}

// Service owns the external load lifecycle.
type Service struct {
	store   *store.Store
	profile demand.Profile
	bus     *events.Bus
	logger  zerolog.Logger
}

func New(st *store.Store, profile demand.Profile, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		store:   st,
		profile: profile,
		bus:     bus,
		logger:  logger.With().Str("component", "loads").Logger(),
	}
}

// Create validates and stores a load. The point price is derived from the
// intensity here, at write time, and frozen on the row: a later profile
// change never reprices committed loads.
func (s *Service) Create(ctx context.Context, restaurantID string, req CreateRequest) (models.ExternalLoad, error) {
	if err := validateFields(req.Resources, req.StartTime, req.DurationMin, req.Recurrence); err != nil {
		return models.ExternalLoad{}, err
	}

	start := req.StartTime.UTC()
	load := models.ExternalLoad{
		ID:            uuid.NewString(),
		RestaurantID:  restaurantID,
		Type:          req.Type,
		Resources:     models.ResourceList(req.Resources),
		Intensity:     req.Intensity,
		PointsPerSlot: s.profile.IntensityPointsOf(req.Intensity),
		StartTime:     start,
		DurationMin:   req.DurationMin,
		EndTime:       start.Add(time.Duration(req.DurationMin) * time.Minute),
		Label:         req.Label,
		Recurrence:    req.Recurrence,
	}

	if err := s.store.CreateLoad(ctx, &load); err != nil {
		return models.ExternalLoad{}, fmt.Errorf("create load: %w", err)
	}

	s.logger.Info().
		Str("load", load.ID).
		Str("type", string(load.Type)).
		Int("points_per_slot", load.PointsPerSlot).
		Msg("external load created")
	s.publish(events.EventLoadCreated, restaurantID, load.ID)
	return load, nil
}

// Update applies the non-nil fields and recomputes the derived columns.
// Changing the intensity reprices the load; changing the start or duration
// moves the window.
func (s *Service) Update(ctx context.Context, loadID string, req UpdateRequest) (models.ExternalLoad, error) {
	load, err := s.store.GetLoad(ctx, loadID)
	if err != nil {
		return models.ExternalLoad{}, err
	}

	if req.Type != nil {
		load.Type = *req.Type
	}
	if req.Resources != nil {
		load.Resources = models.ResourceList(req.Resources)
	}
	if req.Intensity != nil {
		load.Intensity = *req.Intensity
		load.PointsPerSlot = s.profile.IntensityPointsOf(*req.Intensity)
	}
	if req.StartTime != nil {
		load.StartTime = req.StartTime.UTC()
	}
	if req.DurationMin != nil {
		load.DurationMin = *req.DurationMin
	}
	if req.Label != nil {
		load.Label = *req.Label
	}
	if req.Recurrence != nil {
		load.Recurrence = *req.Recurrence
	}
	load.EndTime = load.StartTime.Add(time.Duration(load.DurationMin) * time.Minute)

	if err := validateFields(load.Resources, load.StartTime, load.DurationMin, load.Recurrence); err != nil {
		return models.ExternalLoad{}, err
	}

	if err := s.store.SaveLoad(ctx, &load); err != nil {
		return models.ExternalLoad{}, fmt.Errorf("update load: %w", err)
	}

	s.logger.Info().Str("load", load.ID).Msg("external load updated")
	s.publish(events.EventLoadUpdated, load.RestaurantID, load.ID)
	return load, nil
}

// Delete removes a load. Its blocks disappear from the very next derived
// snapshot or placement decision.
func (s *Service) Delete(ctx context.Context, loadID string) error {
	load, err := s.store.GetLoad(ctx, loadID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteLoad(ctx, loadID); err != nil {
		return err
	}
	s.logger.Info().Str("load", loadID).Msg("external load deleted")
	s.publish(events.EventLoadDeleted, load.RestaurantID, loadID)
	return nil
}

// Get fetches one load.
func (s *Service) Get(ctx context.Context, loadID string) (models.ExternalLoad, error) {
	return s.store.GetLoad(ctx, loadID)
}

// List returns every load for a restaurant.
func (s *Service) List(ctx context.Context, restaurantID string) ([]models.ExternalLoad, error) {
	return s.store.ListLoads(ctx, restaurantID)
}

func (s *Service) publish(eventType events.EventType, restaurantID, loadID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventType, events.Payload{
		"restaurant_id": restaurantID,
		"load_id":       loadID,
	})
	s.bus.Publish(events.EventTimelineChanged, events.Payload{
		"restaurant_id": restaurantID,
	})
}

func validateFields(resources []models.Resource, start time.Time, durationMin int, recurrence string) error {
	if len(resources) == 0 {
		return fmt.Errorf("%w: at least one resource required", ErrInvalidLoad)
	}
	known := make(map[models.Resource]bool, 4)
	for _, resource := range models.AllResources() {
		known[resource] = true
	}
	for _, resource := range resources {
		if !known[resource] {
			return fmt.Errorf("%w: unknown resource %q", ErrInvalidLoad, resource)
		}
	}
	if start.IsZero() {
		return fmt.Errorf("%w: start time required", ErrInvalidLoad)
	}
	if durationMin <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidLoad)
	}
	if recurrence != "" {
		if _, err := rrule.StrToRRule(recurrence); err != nil {
			return fmt.Errorf("%w: bad recurrence rule: %v", ErrInvalidLoad, err)
		}
	}
	return nil
}
