// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package queue is the durable violation work queue. One record file
// per violation, priority-encoded filenames, optimistic concurrency
// through claim tokens and state versions.
package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Record statuses.
const (
	StatusPending      = "pending"
	StatusInProgress   = "in_progress"
	StatusResolved     = "resolved"
	StatusManualReview = "manual_review"
	StatusStale        = "stale"
)

// severityPriority encodes severity into a numeric filename prefix so
// lexicographic directory listing yields priority order.
var severityPriority = map[string]int{
	"critical": 0,
	"high":     100,
	"medium":   200,
	"low":      300,
	"info":     400,
}

// priorityUnknown is the prefix for unrecognized severities.
const priorityUnknown = 500

// PriorityFor maps a severity label to its filename prefix.
func PriorityFor(severity string) int {
	if p, ok := severityPriority[severity]; ok {
		return p
	}
	return priorityUnknown
}

// ViolationID derives the stable identity for a (rule, target file)
// pair: the first 16 hex characters of SHA-256 over the two values
// joined by a NUL byte. The NUL keeps "ab"+"c" distinct from "a"+"bc".
func ViolationID(rule, path string) string {
	sum := sha256.Sum256([]byte(rule + "\x00" + path))
	return hex.EncodeToString(sum[:])[:16]
}

// Record is one violation's durable state.
type Record struct {
	ID       string `json:"id"`
	StreamID string `json:"stream_id"`
	Rule     string `json:"rule"`
	FilePath string `json:"file_path"`
	Severity string `json:"severity"`
	Priority int    `json:"priority"`
	Status   string `json:"status"`
	Message  string `json:"message"`

	// ClaimUUID and StateVersion are the optimistic concurrency
	// tokens. ClaimUUID is set only while in_progress; StateVersion
	// increments on every successful transition.
	ClaimUUID    string `json:"claim_uuid,omitempty"`
	StateVersion int    `json:"state_version"`

	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`

	// ReclaimCount counts expired-lease reclamations; crossing the
	// manual-review threshold escalates the record.
	ReclaimCount int `json:"reclaim_count"`

	DetectedAt time.Time  `json:"detected_at"`
	LastSeenAt time.Time  `json:"last_seen_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// FileName returns the record's priority-encoded file name.
func (r Record) FileName() string {
	return fmt.Sprintf("%03d-%s.json", r.Priority, r.ID)
}

// Active reports whether the record represents open work.
func (r Record) Active() bool {
	return r.Status == StatusPending || r.Status == StatusInProgress
}

// leaseExpired reports whether an in_progress record's lease, plus
// grace, has passed.
func (r Record) leaseExpired(now time.Time, grace time.Duration) bool {
	if r.Status != StatusInProgress || r.LeaseExpiresAt == nil {
		return false
	}
	return now.After(r.LeaseExpiresAt.Add(grace))
}
