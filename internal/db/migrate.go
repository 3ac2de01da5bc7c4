/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/coupdefeu/coupdefeu/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.Restaurant{},
		&models.Order{},
		&models.ExternalLoad{},
	); err != nil {
		return err
	}

	if err := applyPostgresLoadWindowGuard(database); err != nil {
		return err
	}

	return nil
}

// applyPostgresLoadWindowGuard rejects external loads whose end precedes
// their start at the database level. The service recomputes end_time on
// every write, but a direct SQL edit from an operator console must not be
// able to corrupt the grid.
func applyPostgresLoadWindowGuard(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
ALTER TABLE external_loads
  DROP CONSTRAINT IF EXISTS chk_external_load_window;
ALTER TABLE external_loads
  ADD CONSTRAINT chk_external_load_window
  CHECK (end_time > start_time AND duration_min > 0);
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres load window guard: %w", err)
	}

	return nil
}
