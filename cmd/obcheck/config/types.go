// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the obcheck.yaml file of the obcheck CLI.
package config

import (
	"github.com/AleutianAI/obcheck/services/phasecheck/telemetry"
)

// ObcheckConfig is the root of obcheck.yaml.
type ObcheckConfig struct {
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Store     StoreConfig      `yaml:"store"`
	Server    ServerConfig     `yaml:"server"`
	Check     CheckConfig      `yaml:"check"`
}

// LoggingConfig controls pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// StoreConfig locates the snapshot database.
type StoreConfig struct {
	// Path is the badger directory. Empty disables the store.
	Path string `yaml:"path"`
}

// ServerConfig configures `obcheck serve`.
type ServerConfig struct {
	Port int `yaml:"port" validate:"min=1,max=65535"`

	// CheckRate caps POST /check requests per second. Zero disables it.
	CheckRate  float64 `yaml:"check_rate" validate:"gte=0"`
	CheckBurst int     `yaml:"check_burst" validate:"gte=0"`
}

// CheckConfig holds defaults for `obcheck check`.
type CheckConfig struct {
	// Layout is a column layout file. Empty uses the built-in layout.
	Layout string `yaml:"layout"`

	// Format is "table" or "json".
	Format string `yaml:"format" validate:"oneof=table json"`

	// PhaseCacheCapacity and AssemblyCacheCapacity presize the session caches.
	PhaseCacheCapacity    int `yaml:"phase_cache_capacity" validate:"gte=0"`
	AssemblyCacheCapacity int `yaml:"assembly_cache_capacity" validate:"gte=0"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() ObcheckConfig {
	tc := telemetry.DefaultConfig()
	tc.MetricExporter = telemetry.ExporterNone
	return ObcheckConfig{
		Logging:   LoggingConfig{Level: "info"},
		Telemetry: tc,
		Store:     StoreConfig{Path: "~/.obcheck/snapshots"},
		Server:    ServerConfig{Port: 8080, CheckBurst: 4},
		Check: CheckConfig{
			Format:                "table",
			PhaseCacheCapacity:    4096,
			AssemblyCacheCapacity: 512,
		},
	}
}
