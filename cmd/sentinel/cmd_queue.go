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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/queue"
	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/stream"
)

// streamQueue validates the stream id argument and opens its queue.
func streamQueue(ctx context.Context, streamID string) (*queue.Queue, error) {
	if !stream.ValidID(streamID) {
		return nil, fmt.Errorf("invalid stream id %q", streamID)
	}
	ws, err := openWorkspace(ctx)
	if err != nil {
		return nil, err
	}
	return ws.openQueue(streamID)
}

// printRecords renders queue records as JSON.
func printRecords(records any) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// runQueueList prints a stream's open violations in priority order.
func runQueueList(cmd *cobra.Command, args []string) error {
	q, err := streamQueue(context.Background(), args[0])
	if err != nil {
		return err
	}
	records, err := q.List()
	if err != nil {
		return err
	}
	if records == nil {
		records = []queue.Record{}
	}
	return printRecords(records)
}

// runQueueClaim claims a specific violation, or the highest-priority
// pending one when no violation id is given. The printed record
// carries the claim_uuid and state_version the resolve call needs.
func runQueueClaim(cmd *cobra.Command, args []string) error {
	q, err := streamQueue(context.Background(), args[0])
	if err != nil {
		return err
	}
	violationID := ""
	if len(args) > 1 {
		violationID = args[1]
	}
	record, err := q.Claim(violationID)
	if err != nil {
		return err
	}
	return printRecords(record)
}

// runQueueResolve resolves a claimed violation. The tokens must match
// what claim handed out; anything stale is rejected untouched.
func runQueueResolve(cmd *cobra.Command, args []string) error {
	q, err := streamQueue(context.Background(), args[0])
	if err != nil {
		return err
	}
	record, err := q.Resolve(args[1], claimUUIDFlag, stateVersion)
	if err != nil {
		return err
	}
	return printRecords(record)
}
