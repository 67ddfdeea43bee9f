// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Options tunes queue behavior. Zero fields take the defaults below.
type Options struct {
	LeaseTTL              time.Duration
	LeaseGrace            time.Duration
	ManualReviewThreshold int
}

const (
	defaultLeaseTTL              = 300 * time.Second
	defaultLeaseGrace            = 30 * time.Second
	defaultManualReviewThreshold = 3
)

// Queue is the violation queue for one stream, rooted at a directory.
//
// # Thread Safety
//
// Safe for concurrent use across goroutines and processes. Every
// mutation runs a read-modify-write under the queue's file lock;
// record files are replaced atomically so readers never see partial
// state. Stale claimants are rejected by the CAS tokens even if they
// bypass the lock timing.
type Queue struct {
	dir  string
	opts Options
	now  func() time.Time
}

// Open creates or opens the queue at dir.
func Open(dir string, opts Options) (*Queue, error) {
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = defaultLeaseTTL
	}
	if opts.LeaseGrace <= 0 {
		opts.LeaseGrace = defaultLeaseGrace
	}
	if opts.ManualReviewThreshold <= 0 {
		opts.ManualReviewThreshold = defaultManualReviewThreshold
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, &QueueError{Op: "open", Err: err}
	}
	return &Queue{dir: dir, opts: opts, now: time.Now}, nil
}

// withLock runs fn holding the queue's exclusive file lock.
func (q *Queue) withLock(op string, fn func() error) error {
	lock := newFileLock(q.dir)
	if err := lock.acquire(); err != nil {
		return &QueueError{Op: op, Err: err}
	}
	defer lock.release()

	if err := fn(); err != nil {
		return &QueueError{Op: op, Err: err}
	}
	return nil
}

// load reads every record in priority order. Unreadable files are
// skipped rather than failing the whole queue.
func (q *Queue) load() ([]Record, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, fmt.Errorf("reading queue directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]Record, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(q.dir, name))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// save atomically replaces a record's file. When a severity change
// moved the record to a new priority prefix, the old file is removed
// after the new one is in place.
func (q *Queue) save(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	tmp, err := os.CreateTemp(q.dir, ".record-*")
	if err != nil {
		return fmt.Errorf("creating temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing record: %w", err)
	}

	target := filepath.Join(q.dir, rec.FileName())
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publishing record: %w", err)
	}

	matches, _ := filepath.Glob(filepath.Join(q.dir, "???-"+rec.ID+".json"))
	for _, match := range matches {
		if match != target {
			os.Remove(match)
		}
	}
	return nil
}

// reclaim lazily returns expired-lease records to pending, escalating
// repeat offenders to manual review. Mutated records are persisted and
// the refreshed slice is returned.
func (q *Queue) reclaim(records []Record) ([]Record, error) {
	now := q.now()
	for i := range records {
		rec := &records[i]
		if !rec.leaseExpired(now, q.opts.LeaseGrace) {
			continue
		}
		rec.ReclaimCount++
		rec.ClaimUUID = ""
		rec.LeaseExpiresAt = nil
		rec.StateVersion++
		if rec.ReclaimCount >= q.opts.ManualReviewThreshold {
			rec.Status = StatusManualReview
		} else {
			rec.Status = StatusPending
		}
		if err := q.save(*rec); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Report records a detected violation: a new pending record, a
// refresh of an existing active one, or a reopen of one previously
// resolved or stale.
func (q *Queue) Report(streamID, rule, path, severity, message string) (Record, error) {
	var out Record
	err := q.withLock("report", func() error {
		records, err := q.load()
		if err != nil {
			return err
		}

		id := ViolationID(rule, path)
		now := q.now().UTC()

		for i := range records {
			if records[i].ID != id {
				continue
			}
			rec := &records[i]
			rec.LastSeenAt = now
			rec.Message = message
			rec.Severity = severity
			rec.Priority = PriorityFor(severity)
			if rec.Status == StatusResolved || rec.Status == StatusStale {
				rec.Status = StatusPending
				rec.ResolvedAt = nil
				rec.StateVersion++
			}
			if err := q.save(*rec); err != nil {
				return err
			}
			out = *rec
			return nil
		}

		out = Record{
			ID:           id,
			StreamID:     streamID,
			Rule:         rule,
			FilePath:     path,
			Severity:     severity,
			Priority:     PriorityFor(severity),
			Status:       StatusPending,
			Message:      message,
			StateVersion: 1,
			DetectedAt:   now,
			LastSeenAt:   now,
		}
		return q.save(out)
	})
	return out, err
}

// ResolveByEvidence closes the record for (rule, path) because a fresh
// compliant verdict proved the violation gone. In-progress records are
// left to their claimant; resolving under them would invalidate a
// token someone is about to use.
func (q *Queue) ResolveByEvidence(rule, path string) error {
	return q.withLock("resolve-by-evidence", func() error {
		records, err := q.load()
		if err != nil {
			return err
		}
		id := ViolationID(rule, path)
		for i := range records {
			rec := &records[i]
			if rec.ID != id || rec.Status != StatusPending {
				continue
			}
			now := q.now().UTC()
			rec.Status = StatusResolved
			rec.ResolvedAt = &now
			rec.ClaimUUID = ""
			rec.LeaseExpiresAt = nil
			rec.StateVersion++
			return q.save(*rec)
		}
		return nil
	})
}

// MarkStale flags pending records whose violation id is absent from
// seen. Called at the end of a full reconciliation pass; in-progress
// records keep their claim.
func (q *Queue) MarkStale(seen map[string]struct{}) error {
	return q.withLock("mark-stale", func() error {
		records, err := q.load()
		if err != nil {
			return err
		}
		for i := range records {
			rec := &records[i]
			if rec.Status != StatusPending {
				continue
			}
			if _, ok := seen[rec.ID]; ok {
				continue
			}
			rec.Status = StatusStale
			rec.StateVersion++
			if err := q.save(*rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns open work in priority order, after lazy lease
// reclamation.
func (q *Queue) List() ([]Record, error) {
	var out []Record
	err := q.withLock("list", func() error {
		records, err := q.load()
		if err != nil {
			return err
		}
		records, err = q.reclaim(records)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if rec.Active() {
				out = append(out, rec)
			}
		}
		return nil
	})
	return out, err
}

// Claim takes exclusive ownership of a violation.
//
// # Description
//
// With an empty violationID the highest-priority pending record is
// chosen. The claim fails when the record is not pending, or when any
// other record for the same target file is in progress under an
// unexpired lease. On success the record carries a fresh claim UUID
// and a lease of LeaseTTL; the caller must present the UUID and the
// returned state version to Resolve.
//
// # Outputs
//
//   - Record: the claimed record with its tokens.
//   - error: ErrNotFound, ErrNothingPending, ErrNotClaimable,
//     ErrFileBusy, or an I/O failure, wrapped in QueueError.
func (q *Queue) Claim(violationID string) (Record, error) {
	var out Record
	err := q.withLock("claim", func() error {
		records, err := q.load()
		if err != nil {
			return err
		}
		records, err = q.reclaim(records)
		if err != nil {
			return err
		}

		idx := -1
		if violationID == "" {
			for i := range records {
				if records[i].Status == StatusPending {
					idx = i
					break
				}
			}
			if idx < 0 {
				return ErrNothingPending
			}
		} else {
			for i := range records {
				if records[i].ID == violationID {
					idx = i
					break
				}
			}
			if idx < 0 {
				return ErrNotFound
			}
			if records[idx].Status != StatusPending {
				return fmt.Errorf("%w: status is %s", ErrNotClaimable, records[idx].Status)
			}
		}

		now := q.now()
		target := &records[idx]
		for i := range records {
			if i == idx {
				continue
			}
			other := records[i]
			if other.FilePath == target.FilePath &&
				other.Status == StatusInProgress &&
				!other.leaseExpired(now, q.opts.LeaseGrace) {
				return fmt.Errorf("%w: %s held by claim on %s", ErrFileBusy, other.FilePath, other.ID)
			}
		}

		expires := now.Add(q.opts.LeaseTTL).UTC()
		target.Status = StatusInProgress
		target.ClaimUUID = uuid.NewString()
		target.StateVersion++
		target.LeaseExpiresAt = &expires
		if err := q.save(*target); err != nil {
			return err
		}
		out = *target
		return nil
	})
	return out, err
}

// Resolve completes claimed work.
//
// Compare-and-swap on both tokens: claimUUID must match the record's
// current claim and stateVersion the version handed out at claim time.
// Any mismatch leaves the record untouched, so a claimant whose lease
// was reclaimed (and possibly re-issued to someone else) cannot
// overwrite the successor's work.
func (q *Queue) Resolve(violationID, claimUUID string, stateVersion int) (Record, error) {
	var out Record
	err := q.withLock("resolve", func() error {
		records, err := q.load()
		if err != nil {
			return err
		}

		for i := range records {
			rec := &records[i]
			if rec.ID != violationID {
				continue
			}
			if rec.Status != StatusInProgress || rec.ClaimUUID != claimUUID || rec.StateVersion != stateVersion {
				return fmt.Errorf("%w: claim %q version %d does not match record",
					ErrStaleToken, claimUUID, stateVersion)
			}
			now := q.now().UTC()
			rec.Status = StatusResolved
			rec.ResolvedAt = &now
			rec.ClaimUUID = ""
			rec.LeaseExpiresAt = nil
			rec.StateVersion++
			if err := q.save(*rec); err != nil {
				return err
			}
			out = *rec
			return nil
		}
		return ErrNotFound
	})
	return out, err
}
