// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

// LabelopsConfig is the CLI configuration, read from
// ~/.labelops/labelops.yaml.
type LabelopsConfig struct {
	// API locates the remote label endpoints.
	API APIConfig `yaml:"api"`

	// Concurrency bounds outbound calls.
	Concurrency ConcurrencyConfig `yaml:"concurrency"`

	// History configures the local change history store.
	History HistoryConfig `yaml:"history"`

	// Inventory points at a discovery export.
	Inventory InventoryConfig `yaml:"inventory"`

	// Logging controls CLI log output.
	Logging LoggingConfig `yaml:"logging"`
}

type APIConfig struct {
	BaseURL        string `yaml:"base_url"`        // e.g. https://cloud.example.com
	TimeoutSeconds int    `yaml:"timeout_seconds"` // per-request HTTP timeout
}

type ConcurrencyConfig struct {
	Limit     int     `yaml:"limit"`      // concurrent outbound calls
	RateRPS   float64 `yaml:"rate_rps"`   // sustained requests per second
	RateBurst int     `yaml:"rate_burst"` // burst allowance
}

type HistoryConfig struct {
	Path           string `yaml:"path"`                      // BadgerDB directory
	SnapshotBucket string `yaml:"snapshot_bucket,omitempty"` // optional GCS bucket for batch snapshots
}

type InventoryConfig struct {
	Path string `yaml:"path"` // JSON export of managed resources
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir,omitempty"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() LabelopsConfig {
	return LabelopsConfig{
		API: APIConfig{
			BaseURL:        "http://localhost:12300",
			TimeoutSeconds: 30,
		},
		Concurrency: ConcurrencyConfig{
			Limit:     10,
			RateRPS:   50,
			RateBurst: 10,
		},
		History: HistoryConfig{
			Path: "~/.labelops/history",
		},
		Inventory: InventoryConfig{
			Path: "~/.labelops/inventory.json",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
