// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"time"

	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	stagedMode    bool
	fullScanMode  bool
	pluginDir     string
	jsonOutput    bool
	claimUUIDFlag string
	stateVersion  int
	workerStream  string
	watchInterval time.Duration
	watchDebounce time.Duration
	watchMaxRuns  int

	rootCmd = &cobra.Command{
		Use:   "sentinel",
		Short: "A cli that checks code changes against project rule documents",
		Long: `Sentinel resolves layered rule documents, checks changed files
				against them through an external judge, and tracks the
				resulting violations in a durable work queue.`,
		SilenceUsage: true,
	}

	// --- Check ---
	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Run a synchronous compliance pass over the current changes",
		RunE:  runCheck, // Defined in cmd_check.go
	}

	// --- Streams ---
	streamCmd = &cobra.Command{
		Use:   "stream",
		Short: "Run compliance passes in a detached background worker",
	}
	streamStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start a background pass and print its stream id",
		RunE:  runStreamStart, // Defined in cmd_stream.go
	}
	streamWorkerCmd = &cobra.Command{
		Use:    "worker",
		Short:  "Internal worker entry point",
		Hidden: true,
		RunE:   runStreamWorker, // Defined in cmd_stream.go
	}
	streamStatusCmd = &cobra.Command{
		Use:   "status [stream-id]",
		Short: "Print the status snapshot of a stream",
		Args:  cobra.ExactArgs(1),
		RunE:  runStreamStatus, // Defined in cmd_stream.go
	}

	// --- Violation Queue ---
	queueCmd = &cobra.Command{
		Use:   "queue",
		Short: "Inspect and work the violation queue",
	}
	queueListCmd = &cobra.Command{
		Use:   "list [stream-id]",
		Short: "List open violations for a stream in priority order",
		Args:  cobra.ExactArgs(1),
		RunE:  runQueueList, // Defined in cmd_queue.go
	}
	queueClaimCmd = &cobra.Command{
		Use:   "claim [stream-id] [violation-id]",
		Short: "Claim a violation (or the highest-priority pending one)",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runQueueClaim, // Defined in cmd_queue.go
	}
	queueResolveCmd = &cobra.Command{
		Use:   "resolve [stream-id] [violation-id]",
		Short: "Resolve a claimed violation using its claim tokens",
		Args:  cobra.ExactArgs(2),
		RunE:  runQueueResolve, // Defined in cmd_queue.go
	}

	// --- Watch ---
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Re-run checks whenever the change signature shifts",
		RunE:  runWatch, // Defined in cmd_watch.go
	}
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&stagedMode, "staged", false, "Check staged changes instead of the working tree")
	checkCmd.Flags().BoolVar(&fullScanMode, "full-scan", false, "Check every tracked file, not just changes")
	checkCmd.Flags().StringVar(&pluginDir, "plugin-dir", "", "Plugin directory providing base rule documents")
	checkCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON instead of text")

	rootCmd.AddCommand(streamCmd)
	streamCmd.AddCommand(streamStartCmd)
	streamCmd.AddCommand(streamWorkerCmd)
	streamCmd.AddCommand(streamStatusCmd)
	streamStartCmd.Flags().BoolVar(&stagedMode, "staged", false, "Check staged changes instead of the working tree")
	streamStartCmd.Flags().BoolVar(&fullScanMode, "full-scan", false, "Check every tracked file, not just changes")
	streamStartCmd.Flags().StringVar(&pluginDir, "plugin-dir", "", "Plugin directory providing base rule documents")
	streamWorkerCmd.Flags().StringVar(&workerStream, "stream-id", "", "Stream id assigned by stream start")
	streamWorkerCmd.Flags().BoolVar(&stagedMode, "staged", false, "")
	streamWorkerCmd.Flags().BoolVar(&fullScanMode, "full-scan", false, "")
	streamWorkerCmd.Flags().StringVar(&pluginDir, "plugin-dir", "", "")

	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueClaimCmd)
	queueCmd.AddCommand(queueResolveCmd)
	queueResolveCmd.Flags().StringVar(&claimUUIDFlag, "claim-uuid", "", "Claim UUID returned by claim")
	queueResolveCmd.Flags().IntVar(&stateVersion, "state-version", 0, "State version returned by claim")
	queueResolveCmd.MarkFlagRequired("claim-uuid")
	queueResolveCmd.MarkFlagRequired("state-version")

	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&stagedMode, "staged", false, "Watch staged changes instead of the working tree")
	watchCmd.Flags().BoolVar(&fullScanMode, "full-scan", false, "Rejected; watch only makes sense for changes")
	watchCmd.Flags().StringVar(&pluginDir, "plugin-dir", "", "Plugin directory providing base rule documents")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 10*time.Second, "Periodic signature poll interval")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "Quiet window after filesystem events")
	watchCmd.Flags().IntVar(&watchMaxRuns, "max-runs", 0, "Stop after N check runs (0 = unlimited)")
}
