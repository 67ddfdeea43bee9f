// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates no record exists for the violation id.
	ErrNotFound = errors.New("violation not found")

	// ErrNotClaimable indicates the record is not in a claimable
	// state (already resolved, escalated, or stale).
	ErrNotClaimable = errors.New("violation not claimable")

	// ErrFileBusy indicates another active claim covers the same
	// target file.
	ErrFileBusy = errors.New("target file has an active claim")

	// ErrStaleToken indicates a resolve whose claim_uuid or
	// state_version no longer matches the record.
	ErrStaleToken = errors.New("stale claim token")

	// ErrNothingPending indicates a claim-next call on a queue with
	// no pending work.
	ErrNothingPending = errors.New("no pending violations")
)

// QueueError wraps a failed queue operation with its name.
type QueueError struct {
	Op  string
	Err error
}

// Error returns the formatted error string.
func (e *QueueError) Error() string {
	return fmt.Sprintf("queue %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is checks.
func (e *QueueError) Unwrap() error {
	return e.Err
}
