// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/engine"
)

// hookSpecificOutput is the decision payload hook consumers parse.
type hookSpecificOutput struct {
	HookEventName      string `json:"hookEventName"`
	PermissionDecision string `json:"permissionDecision"`
	AdditionalContext  string `json:"additionalContext,omitempty"`
}

// hookOutput is the top-level hook document.
type hookOutput struct {
	HookSpecificOutput hookSpecificOutput `json:"hookSpecificOutput"`
}

// printHookDecision writes the hook JSON document to stdout.
func printHookDecision(decision, context string) error {
	doc := hookOutput{
		HookSpecificOutput: hookSpecificOutput{
			HookEventName:      "PreToolUse",
			PermissionDecision: decision,
			AdditionalContext:  context,
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding hook output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// hookContext condenses an outcome into the additional-context string.
func hookContext(outcome engine.Outcome) string {
	var parts []string
	for _, result := range outcome.Results {
		if result.Status == engine.StatusDeny {
			parts = append(parts, fmt.Sprintf("%s violates %s: %s", result.FilePath, result.Rule, result.Message))
		}
	}
	parts = append(parts, outcome.Warnings...)
	return strings.Join(parts, "\n")
}

// printOutcomeJSON writes the machine-readable outcome document.
func printOutcomeJSON(outcome engine.Outcome) error {
	doc := struct {
		Decision string              `json:"decision"`
		Results  []engine.UnitResult `json:"results"`
		Warnings []string            `json:"warnings,omitempty"`
	}{outcome.Decision, outcome.Results, outcome.Warnings}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding outcome: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// printOutcomeText writes the human-readable pass summary. Color-free
// plain rendering is chosen automatically when stdout is not a
// terminal.
func printOutcomeText(outcome engine.Outcome) {
	tty := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	mark := func(status string) string {
		if !tty {
			return status
		}
		switch status {
		case engine.StatusAllow:
			return "\033[32m" + status + "\033[0m"
		case engine.StatusDeny:
			return "\033[31m" + status + "\033[0m"
		default:
			return "\033[33m" + status + "\033[0m"
		}
	}

	for _, result := range outcome.Results {
		cached := ""
		if result.Cached {
			cached = " (cached)"
		}
		fmt.Printf("%-5s  %s ~ %s%s\n", mark(result.Status), result.Rule, result.FilePath, cached)
		if result.Status == engine.StatusDeny && result.Message != "" {
			fmt.Printf("       %s\n", strings.ReplaceAll(result.Message, "\n", "\n       "))
		}
	}
	for _, warning := range outcome.Warnings {
		fmt.Printf("warn   %s\n", warning)
	}
	fmt.Printf("decision: %s (%d units, %d warnings)\n",
		outcome.Decision, len(outcome.Results), len(outcome.Warnings))
}
