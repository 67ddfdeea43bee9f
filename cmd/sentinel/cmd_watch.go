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
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/gitsource"
	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/watch"
)

// runWatch re-runs the check command whenever the repository's change
// signature moves. Full scans are rejected: watching makes sense for
// an evolving change set, not for repeatedly re-reading every tracked
// file.
func runWatch(cmd *cobra.Command, args []string) error {
	if fullScanMode {
		return errors.New("watch does not support --full-scan")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	binary, err := os.Executable()
	if err != nil {
		return err
	}

	checkArgs := []string{"check"}
	if stagedMode {
		checkArgs = append(checkArgs, "--staged")
	}
	if pluginDir != "" {
		checkArgs = append(checkArgs, "--plugin-dir", pluginDir)
	}

	runner := &watch.Runner{
		Root:     ws.root,
		Interval: watchInterval,
		Debounce: watchDebounce,
		MaxRuns:  watchMaxRuns,
		Logger:   ws.logger,
	}

	signature := func(ctx context.Context) (string, error) {
		targets, err := ws.git.ChangedFiles(ctx, stagedMode)
		if err != nil {
			return "", err
		}
		unified, err := ws.git.Diff(ctx, stagedMode)
		if err != nil {
			return "", err
		}
		return watch.Signature(targets, gitsource.SplitDiff(unified)), nil
	}

	action := func(ctx context.Context) error {
		check := exec.CommandContext(ctx, binary, checkArgs...)
		check.Stdout = os.Stdout
		check.Stderr = os.Stderr
		return check.Run()
	}

	ws.logger.Info("watching for changes", "root", ws.root, "staged", stagedMode)
	return runner.Run(ctx, signature, action)
}
