// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EnvRuleConfigPath overrides the rule-config.json location when set.
const EnvRuleConfigPath = "SENTINEL_RULE_CONFIG_PATH"

// ruleConfigVersion is the current on-disk schema version.
const ruleConfigVersion = 1

// DecisionEntry records one tuning decision for audit.
type DecisionEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Rule      string    `json:"rule"`
	Decision  string    `json:"decision"`
	Reason    string    `json:"reason,omitempty"`
}

// RuleConfig is per-rule tuning plus its decision log, persisted as
// rule-config.json.
type RuleConfig struct {
	Version     int                       `json:"version"`
	Rules       map[string]map[string]any `json:"rules"`
	DecisionLog []DecisionEntry           `json:"decision_log"`
}

// EmptyRuleConfig returns a normalized empty configuration.
func EmptyRuleConfig() RuleConfig {
	return RuleConfig{
		Version:     ruleConfigVersion,
		Rules:       make(map[string]map[string]any),
		DecisionLog: []DecisionEntry{},
	}
}

// normalize repairs nil collections after decoding a sparse file.
func (rc *RuleConfig) normalize() {
	if rc.Version == 0 {
		rc.Version = ruleConfigVersion
	}
	if rc.Rules == nil {
		rc.Rules = make(map[string]map[string]any)
	}
	if rc.DecisionLog == nil {
		rc.DecisionLog = []DecisionEntry{}
	}
}

// RuleOptions returns the tuning map for a rule, never nil.
func (rc *RuleConfig) RuleOptions(rule string) map[string]any {
	if opts, ok := rc.Rules[rule]; ok {
		return opts
	}
	return map[string]any{}
}

// LogDecision appends an audit entry.
func (rc *RuleConfig) LogDecision(rule, decision, reason string) {
	rc.DecisionLog = append(rc.DecisionLog, DecisionEntry{
		Timestamp: time.Now().UTC(),
		Rule:      rule,
		Decision:  decision,
		Reason:    reason,
	})
}

// LoadRuleConfig reads rule-config.json from path (or the
// EnvRuleConfigPath override).
//
// A missing or corrupt file degrades to the empty configuration:
// rule tuning is advisory and must never block a check run.
func LoadRuleConfig(path string) RuleConfig {
	if env := os.Getenv(EnvRuleConfigPath); env != "" {
		path = env
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return EmptyRuleConfig()
	}
	var rc RuleConfig
	if err := json.Unmarshal(data, &rc); err != nil {
		return EmptyRuleConfig()
	}
	rc.normalize()
	return rc
}

// SaveRuleConfig persists the configuration atomically.
func SaveRuleConfig(path string, rc RuleConfig) error {
	if env := os.Getenv(EnvRuleConfigPath); env != "" {
		path = env
	}
	rc.normalize()

	data, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding rule config: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating rule config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".rule-config-*")
	if err != nil {
		return fmt.Errorf("creating temp rule config: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing rule config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing rule config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publishing rule config: %w", err)
	}
	return nil
}
