// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Stream states.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// ErrNoStatus indicates the stream has no status file yet (or the id
// is unknown).
var ErrNoStatus = errors.New("stream status not found")

// Summary counts unit outcomes.
type Summary struct {
	Allow   int `json:"allow"`
	Deny    int `json:"deny"`
	Error   int `json:"error"`
	Pending int `json:"pending"`
}

// Status is the polling snapshot persisted as status.json.
type Status struct {
	StreamID       string    `json:"stream_id"`
	TotalUnits     int       `json:"total_units"`
	CompletedUnits int       `json:"completed_units"`
	Status         string    `json:"status"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Summary        Summary   `json:"summary"`

	// Error carries the failure reason when Status is failed.
	Error string `json:"error,omitempty"`
}

// StatusTracker maintains status.json for one stream.
//
// # Thread Safety
//
// Safe for concurrent use within the worker process. The worker is
// the file's only writer; every rewrite goes through a temp file and
// atomic rename so concurrent readers always see a complete document.
type StatusTracker struct {
	mu     sync.Mutex
	path   string
	status Status
}

// NewStatusTracker creates a tracker writing to dir/status.json.
func NewStatusTracker(dir, streamID string) *StatusTracker {
	return &StatusTracker{
		path: filepath.Join(dir, "status.json"),
		status: Status{
			StreamID: streamID,
			Status:   StateRunning,
		},
	}
}

// Start records the unit total and publishes the initial snapshot.
func (t *StatusTracker) Start(totalUnits int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	t.status.TotalUnits = totalUnits
	t.status.CompletedUnits = 0
	t.status.StartedAt = now
	t.status.Summary = Summary{Pending: totalUnits}
	return t.write(now)
}

// UnitDone folds one unit outcome into the counts and republishes.
func (t *StatusTracker) UnitDone(unitStatus string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.CompletedUnits++
	if t.status.Summary.Pending > 0 {
		t.status.Summary.Pending--
	}
	switch unitStatus {
	case "allow":
		t.status.Summary.Allow++
	case "deny":
		t.status.Summary.Deny++
	default:
		t.status.Summary.Error++
	}
	return t.write(time.Now().UTC())
}

// Finish publishes the terminal state. reason is recorded when the
// state is failed.
func (t *StatusTracker) Finish(state, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Status = state
	t.status.Error = reason
	return t.write(time.Now().UTC())
}

// write persists the snapshot atomically. Callers hold t.mu.
func (t *StatusTracker) write(now time.Time) error {
	t.status.UpdatedAt = now

	data, err := json.MarshalIndent(t.status, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, ".status-*")
	if err != nil {
		return fmt.Errorf("creating temp status: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing status: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publishing status: %w", err)
	}
	return nil
}

// ReadStatus loads a stream's snapshot.
func ReadStatus(dir string) (Status, error) {
	data, err := os.ReadFile(filepath.Join(dir, "status.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return Status{}, ErrNoStatus
		}
		return Status{}, fmt.Errorf("reading status: %w", err)
	}
	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return Status{}, fmt.Errorf("parsing status: %w", err)
	}
	return status, nil
}
