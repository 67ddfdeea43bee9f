// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates engine configuration from the
// project state directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the config.yaml location when set.
const EnvConfigPath = "SENTINEL_CONFIG_PATH"

// ErrInvalidConfig indicates a config file that parsed but failed
// validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// CheckerConfig selects and parameterizes the verdict backend.
type CheckerConfig struct {
	// Backend is "subprocess" or "openai".
	Backend string `yaml:"backend" validate:"oneof=subprocess openai"`

	// Argv is the subprocess command line, program first.
	Argv []string `yaml:"argv,omitempty"`

	// OpenAIModel and OpenAIBaseURL parameterize the openai backend.
	// The API key is taken from OPENAI_API_KEY, never from this file.
	OpenAIModel   string `yaml:"openai_model,omitempty"`
	OpenAIBaseURL string `yaml:"openai_base_url,omitempty"`
}

// Config is the engine configuration persisted as config.yaml.
type Config struct {
	MaxWorkers         int `yaml:"max_workers" validate:"min=1,max=64"`
	UnitTimeoutSeconds int `yaml:"unit_timeout_seconds" validate:"min=1"`

	// Deadline budgets per invocation mode.
	HookDeadlineSeconds     int `yaml:"hook_deadline_seconds" validate:"min=1"`
	FullScanDeadlineSeconds int `yaml:"full_scan_deadline_seconds" validate:"min=1"`
	StreamDeadlineSeconds   int `yaml:"stream_deadline_seconds" validate:"min=1"`

	// MinCollectionWindowSeconds floors the per-unit budget when the
	// global deadline is nearly spent.
	MinCollectionWindowSeconds int `yaml:"min_collection_window_seconds" validate:"min=1"`

	StreamRetention int `yaml:"stream_retention" validate:"min=1"`

	LeaseTTLSeconds       int `yaml:"lease_ttl_seconds" validate:"min=1"`
	LeaseGraceSeconds     int `yaml:"lease_grace_seconds" validate:"min=0"`
	ManualReviewThreshold int `yaml:"manual_review_threshold" validate:"min=1"`

	Checker CheckerConfig `yaml:"checker"`

	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns the configuration written on first run.
func Default() Config {
	return Config{
		MaxWorkers:                 4,
		UnitTimeoutSeconds:         60,
		HookDeadlineSeconds:        55,
		FullScanDeadlineSeconds:    600,
		StreamDeadlineSeconds:      1800,
		MinCollectionWindowSeconds: 5,
		StreamRetention:            5,
		LeaseTTLSeconds:            300,
		LeaseGraceSeconds:          30,
		ManualReviewThreshold:      3,
		Checker: CheckerConfig{
			Backend: "subprocess",
			Argv:    []string{"claude", "-p"},
		},
		LogLevel: "info",
	}
}

// Duration accessors keep callers out of the seconds arithmetic.

func (c Config) UnitTimeout() time.Duration { return time.Duration(c.UnitTimeoutSeconds) * time.Second }

func (c Config) MinCollectionWindow() time.Duration {
	return time.Duration(c.MinCollectionWindowSeconds) * time.Second
}

func (c Config) LeaseTTL() time.Duration { return time.Duration(c.LeaseTTLSeconds) * time.Second }

func (c Config) LeaseGrace() time.Duration { return time.Duration(c.LeaseGraceSeconds) * time.Second }

// DeadlineFor returns the global budget for an invocation mode.
func (c Config) DeadlineFor(mode string) time.Duration {
	switch mode {
	case "full-scan":
		return time.Duration(c.FullScanDeadlineSeconds) * time.Second
	case "stream":
		return time.Duration(c.StreamDeadlineSeconds) * time.Second
	default:
		return time.Duration(c.HookDeadlineSeconds) * time.Second
	}
}

// Load reads, validates, and returns the configuration at path.
//
// # Description
//
// When the file does not exist, the defaults are written there first
// so users have a concrete file to edit. EnvConfigPath overrides the
// path argument when set. Fields absent from the file keep their
// default values.
//
// # Outputs
//
//   - Config: validated configuration.
//   - error: I/O failure, YAML parse failure, or ErrInvalidConfig.
func Load(path string) (Config, error) {
	if env := os.Getenv(EnvConfigPath); env != "" {
		path = env
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if writeErr := writeDefault(path, cfg); writeErr != nil {
			return Config{}, writeErr
		}
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// writeDefault persists the default configuration on first run.
func writeDefault(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
