/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store is the query layer between the scheduling engine and the
// database. The engine is stateless between calls: every placement decision
// and snapshot re-reads the live order and load sets through this package.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/coupdefeu/coupdefeu/internal/models"
)

// ErrNotFound is returned when an update or delete target does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the gorm handle with the queries the engine needs.
type Store struct {
	db *gorm.DB
}

// New constructs a store.
func New(database *gorm.DB) *Store {
	return &Store{db: database}
}

// DB exposes the underlying handle for wiring (migrations, callbacks).
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ActiveOrders loads orders in capacity-consuming statuses whose committed
// windows could overlap [from, to). Orders without a committed schedule are
// included so callers can list them, but they derive no blocks.
func (s *Store) ActiveOrders(ctx context.Context, restaurantID string, from, to time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Where("status IN ?", models.ActiveOrderStatuses()).
		Where("cook_start_at IS NULL OR cook_start_at < ?", to).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	// Transit tails and handoff windows extend past ready_at, so the lower
	// bound is filtered here rather than in SQL to keep it portable across
	// the three backends.
	filtered := orders[:0]
	for _, order := range orders {
		if order.Scheduled() {
			tail := order.ReadyAt.Add(time.Duration(order.TransitMin+60) * time.Minute)
			if tail.Before(from) {
				continue
			}
		}
		filtered = append(filtered, order)
	}
	return filtered, nil
}

// LoadsOverlapping returns external loads whose window, or any recurrence of
// it, can intersect [from, to). One-shot loads are filtered in SQL;
// recurring loads are returned whenever their series has started, since
// occurrence expansion happens in the capacity layer.
func (s *Store) LoadsOverlapping(ctx context.Context, restaurantID string, from, to time.Time) ([]models.ExternalLoad, error) {
	var loads []models.ExternalLoad
	err := s.db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Where("(recurrence <> '' AND start_time < ?) OR (end_time > ? AND start_time < ?)", to, from, to).
		Order("start_time ASC").
		Find(&loads).Error
	if err != nil {
		return nil, err
	}
	return loads, nil
}

// GetOrder fetches one order.
func (s *Store) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Order{}, ErrNotFound
	}
	return order, err
}

// CreateOrder persists a new order row.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	return s.db.WithContext(ctx).Create(order).Error
}

// UpdateOrderSchedule writes the committed scheduling fields. This is the
// commit step of the placement contract; serializing concurrent commits per
// restaurant is the host deployment's concern, not this layer's.
func (s *Store) UpdateOrderSchedule(ctx context.Context, orderID string, size models.OrderSize, cookStartAt, readyAt time.Time, handoffAt *time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"size":          size,
			"cook_start_at": cookStartAt,
			"ready_at":      readyAt,
			"handoff_at":    handoffAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateOrderStatus writes a status transition (used by tests and the
// surrounding lifecycle layer).
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) error {
	result := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateLoad persists a new external load.
func (s *Store) CreateLoad(ctx context.Context, load *models.ExternalLoad) error {
	return s.db.WithContext(ctx).Create(load).Error
}

// GetLoad fetches one external load.
func (s *Store) GetLoad(ctx context.Context, loadID string) (models.ExternalLoad, error) {
	var load models.ExternalLoad
	err := s.db.WithContext(ctx).Where("id = ?", loadID).First(&load).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ExternalLoad{}, ErrNotFound
	}
	return load, err
}

// SaveLoad writes back a mutated load row.
func (s *Store) SaveLoad(ctx context.Context, load *models.ExternalLoad) error {
	return s.db.WithContext(ctx).Save(load).Error
}

// DeleteLoad removes a load.
func (s *Store) DeleteLoad(ctx context.Context, loadID string) error {
	result := s.db.WithContext(ctx).Where("id = ?", loadID).Delete(&models.ExternalLoad{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLoads returns every load for a restaurant ordered by start time.
func (s *Store) ListLoads(ctx context.Context, restaurantID string) ([]models.ExternalLoad, error) {
	var loads []models.ExternalLoad
	err := s.db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Order("start_time ASC").
		Find(&loads).Error
	return loads, err
}
