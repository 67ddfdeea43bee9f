// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/engine"
	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/queue"
	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/stream"
	"github.com/AleutianAI/sentinel/pkg/logging"
)

// runStreamStart mints a stream id, prepares its directory, spawns
// the detached worker, and prints the id. Returns as soon as the
// worker is launched; progress is read through stream status.
func runStreamStart(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}

	streamID := stream.NewID(time.Now())
	streamDir := filepath.Join(ws.streamRoot(), streamID)
	if err := os.MkdirAll(streamDir, 0750); err != nil {
		return fmt.Errorf("creating stream directory: %w", err)
	}
	if err := stream.Prune(ws.streamRoot(), ws.cfg.StreamRetention); err != nil {
		ws.logger.Warn("stream retention prune failed", "error", err)
	}

	binary, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}
	workerArgs := []string{"stream", "worker", "--stream-id", streamID}
	if stagedMode {
		workerArgs = append(workerArgs, "--staged")
	}
	if fullScanMode {
		workerArgs = append(workerArgs, "--full-scan")
	}
	if pluginDir != "" {
		workerArgs = append(workerArgs, "--plugin-dir", pluginDir)
	}

	logPath := filepath.Join(streamDir, "worker.log")
	if err := stream.Spawn(binary, workerArgs, ws.root, logPath); err != nil {
		return err
	}

	fmt.Println(streamID)
	return nil
}

// runStreamWorker is the hidden worker entry point.
func runStreamWorker(cmd *cobra.Command, args []string) error {
	if !stream.ValidID(workerStream) {
		return fmt.Errorf("invalid stream id %q", workerStream)
	}

	ctx := context.Background()
	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}

	streamDir := filepath.Join(ws.streamRoot(), workerStream)
	logger, err := logging.New(logging.Config{
		Level:   logging.ParseLevel(ws.cfg.LogLevel),
		LogFile: filepath.Join(streamDir, "worker.log"),
		Service: "stream-worker",
		Quiet:   true,
	})
	if err != nil {
		return err
	}
	defer logger.Close()
	ws.logger = logger.With("stream_id", workerStream)

	worker := &stream.Worker{StreamID: workerStream, Dir: streamDir, Logger: ws.logger}

	units, q, err := prepareStreamPass(ctx, ws)
	if err != nil {
		// Nothing to do is a completed stream; anything else failed.
		tracker := stream.NewStatusTracker(streamDir, workerStream)
		if isCleanSetup(err) {
			tracker.Start(0)
			return tracker.Finish(stream.StateCompleted, "")
		}
		tracker.Start(0)
		tracker.Finish(stream.StateFailed, err.Error())
		return err
	}

	eng, err := ws.newEngine("stream", workerStream, q)
	if err != nil {
		tracker := stream.NewStatusTracker(streamDir, workerStream)
		tracker.Start(0)
		tracker.Finish(stream.StateFailed, err.Error())
		return err
	}

	return worker.Execute(ctx, eng, units, q)
}

// prepareStreamPass resolves rules, collects changes, and opens the
// stream's queue.
func prepareStreamPass(ctx context.Context, ws *workspace) ([]engine.Unit, *queue.Queue, error) {
	ruleSet, warnings, err := ws.ruleSet()
	if err != nil {
		return nil, nil, err
	}
	for _, warning := range warnings {
		ws.logger.Warn("rule resolver", "detail", warning)
	}

	changed, contents, diffs, err := ws.changes(ctx)
	if err != nil {
		return nil, nil, err
	}
	units, err := engine.BuildUnits(ruleSet, changed, contents, diffs)
	if err != nil {
		return nil, nil, err
	}

	q, err := ws.openQueue(workerStream)
	if err != nil {
		return nil, nil, err
	}
	return units, q, nil
}

// runStreamStatus prints a stream's status snapshot as JSON.
func runStreamStatus(cmd *cobra.Command, args []string) error {
	streamID := args[0]
	if !stream.ValidID(streamID) {
		return fmt.Errorf("invalid stream id %q", streamID)
	}

	ctx := context.Background()
	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}

	status, err := stream.ReadStatus(filepath.Join(ws.streamRoot(), streamID))
	if err != nil {
		if errors.Is(err, stream.ErrNoStatus) {
			return fmt.Errorf("no such stream: %s", streamID)
		}
		return err
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
