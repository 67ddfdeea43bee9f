// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/engine"
	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/queue"
	"github.com/AleutianAI/sentinel/pkg/logging"
)

// unsafeNameChars matches everything not allowed in a result filename.
var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// ResultFileName derives the per-unit result filename: the rule name
// with path separators flattened to "__", then "__", then a short
// hash of the target path. The hash keeps two files with the same
// basename apart without reproducing their full paths on disk.
func ResultFileName(ruleName, filePath string) string {
	safeRule := strings.ReplaceAll(ruleName, "/", "__")
	safeRule = unsafeNameChars.ReplaceAllString(safeRule, "_")

	sum := sha256.Sum256([]byte(filePath))
	return fmt.Sprintf("%s__%s.json", safeRule, hex.EncodeToString(sum[:])[:12])
}

// Worker drives one stream pass: engine execution with per-unit
// result files, live status updates, and queue reconciliation.
type Worker struct {
	StreamID string

	// Dir is the stream's directory; results go to Dir/results.
	Dir string

	Logger *logging.Logger
}

// Execute runs the pass.
//
// # Description
//
// Publishes the initial status, runs the units, writes one result
// file per unit as it completes, and finishes with queue
// reconciliation: every violation seen this pass stays open, pending
// records not reproduced go stale. A pass with zero units completes
// immediately; engine failure marks the stream failed.
func (w *Worker) Execute(ctx context.Context, eng *engine.Engine, units []engine.Unit, q *queue.Queue) error {
	tracker := NewStatusTracker(w.Dir, w.StreamID)

	resultsDir := filepath.Join(w.Dir, "results")
	if err := os.MkdirAll(resultsDir, 0750); err != nil {
		tracker.Finish(StateFailed, err.Error())
		return fmt.Errorf("creating results directory: %w", err)
	}
	if err := tracker.Start(len(units)); err != nil {
		return err
	}
	if len(units) == 0 {
		return tracker.Finish(StateCompleted, "")
	}

	onResult := func(result engine.UnitResult) {
		if err := w.writeResult(resultsDir, result); err != nil {
			w.Logger.Warn("result write failed", "rule", result.Rule, "file", result.FilePath, "error", err)
		}
		if err := tracker.UnitDone(result.Status); err != nil {
			w.Logger.Warn("status update failed", "error", err)
		}
	}

	outcome, err := eng.Run(ctx, units, onResult)
	if err != nil {
		tracker.Finish(StateFailed, err.Error())
		return fmt.Errorf("stream pass: %w", err)
	}

	if q != nil {
		seen := make(map[string]struct{})
		for _, result := range outcome.Results {
			if result.Status != engine.StatusDeny {
				continue
			}
			seen[queue.ViolationID(result.Rule, result.FilePath)] = struct{}{}
		}
		if err := q.MarkStale(seen); err != nil {
			w.Logger.Warn("queue reconciliation failed", "error", err)
		}
	}

	for _, warning := range outcome.Warnings {
		w.Logger.Warn("degraded unit", "detail", warning)
	}
	w.Logger.Info("stream pass finished",
		"decision", outcome.Decision,
		"units", len(units),
		"warnings", len(outcome.Warnings))

	return tracker.Finish(StateCompleted, "")
}

// writeResult persists one unit result atomically.
func (w *Worker) writeResult(resultsDir string, result engine.UnitResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	tmp, err := os.CreateTemp(resultsDir, ".result-*")
	if err != nil {
		return fmt.Errorf("creating temp result: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing result: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing result: %w", err)
	}
	target := filepath.Join(resultsDir, ResultFileName(result.Rule, result.FilePath))
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publishing result: %w", err)
	}
	return nil
}
