// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/engine"
)

// runCheck is the synchronous pass.
//
// Default (hook) invocation emits the hook JSON decision on stdout and
// always exits zero: the decision travels in the document, and any
// internal failure fails open so a broken checker never blocks a
// commit. Full-scan invocation prints text (or --json) and signals
// through exit codes: 0 clean, 1 violations, 2 setup or internal
// failure.
func runCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	hookMode := !fullScanMode && !jsonOutput

	outcome, err := executeCheck(ctx)
	if err != nil {
		if hookMode {
			return printHookDecision("allow", fmt.Sprintf("check skipped: %v", err))
		}
		if isCleanSetup(err) {
			fmt.Printf("nothing to check: %v\n", err)
			return nil
		}
		return err
	}

	if hookMode {
		decision := "allow"
		if outcome.Decision == engine.DecisionDeny {
			decision = "deny"
		}
		return printHookDecision(decision, hookContext(outcome))
	}

	if jsonOutput {
		if err := printOutcomeJSON(outcome); err != nil {
			return err
		}
	} else {
		printOutcomeText(outcome)
	}
	if fullScanMode && outcome.Decision == engine.DecisionDeny {
		os.Exit(1)
	}
	return nil
}

// executeCheck runs the resolver, collection, and engine for the
// current flag set.
func executeCheck(ctx context.Context) (engine.Outcome, error) {
	ws, err := openWorkspace(ctx)
	if err != nil {
		return engine.Outcome{}, err
	}

	ruleSet, warnings, err := ws.ruleSet()
	if err != nil {
		return engine.Outcome{}, err
	}
	for _, warning := range warnings {
		ws.logger.Warn("rule resolver", "detail", warning)
	}

	changed, contents, diffs, err := ws.changes(ctx)
	if err != nil {
		return engine.Outcome{}, err
	}
	units, err := engine.BuildUnits(ruleSet, changed, contents, diffs)
	if err != nil {
		return engine.Outcome{}, err
	}

	eng, err := ws.newEngine(ws.mode(), "", nil)
	if err != nil {
		return engine.Outcome{}, err
	}
	outcome, err := eng.Run(ctx, units, nil)
	if err != nil {
		return engine.Outcome{}, err
	}
	outcome.Warnings = append(warnings, outcome.Warnings...)
	return outcome, nil
}

// isCleanSetup reports whether a setup error means "nothing to do"
// rather than a broken workspace. Having no rules at all is treated
// as misconfiguration, not cleanliness.
func isCleanSetup(err error) bool {
	return errors.Is(err, engine.ErrNoCandidates) || errors.Is(err, engine.ErrNoMatches)
}
