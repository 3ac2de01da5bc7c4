/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/coupdefeu/coupdefeu/internal/capacity"
	"github.com/coupdefeu/coupdefeu/internal/demand"
)

// SchedulingProfile bundles the restaurant-configurable knobs the engine is
// parameterized on: demand classification and per-resource capacities. The
// placement algorithm itself never reads this file format.
type SchedulingProfile struct {
	Demand   demand.Profile   `yaml:"demand"`
	Capacity capacity.Profile `yaml:"capacity"`
}

// DefaultSchedulingProfile is the baseline used when no profile file is
// configured.
func DefaultSchedulingProfile() SchedulingProfile {
	return SchedulingProfile{
		Demand:   demand.DefaultProfile(),
		Capacity: capacity.DefaultProfile(),
	}
}

// LoadSchedulingProfile reads a profile YAML file. Sections left out of the
// file keep their defaults, so a restaurant can override just capacities.
func LoadSchedulingProfile(path string) (SchedulingProfile, error) {
	profile := DefaultSchedulingProfile()
	if path == "" {
		return profile, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return profile, fmt.Errorf("read scheduling profile: %w", err)
	}

	if err := yaml.Unmarshal(data, &profile); err != nil {
		return profile, fmt.Errorf("parse scheduling profile: %w", err)
	}

	if err := profile.Demand.Validate(); err != nil {
		return profile, fmt.Errorf("scheduling profile %s: %w", path, err)
	}
	for resource, rc := range profile.Capacity.Resources {
		if rc.Base < 0 {
			return profile, fmt.Errorf("scheduling profile %s: resource %s has negative base capacity", path, resource)
		}
	}

	return profile, nil
}
