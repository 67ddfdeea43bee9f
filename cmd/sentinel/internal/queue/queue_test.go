// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package queue

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(t.TempDir(), Options{
		LeaseTTL:              300 * time.Second,
		LeaseGrace:            30 * time.Second,
		ManualReviewThreshold: 3,
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return q
}

// TestViolationID tests identity stability and separator safety.
func TestViolationID(t *testing.T) {
	a := ViolationID("naming.md", "app.py")
	if a != ViolationID("naming.md", "app.py") {
		t.Error("identity not stable")
	}
	if len(a) != 16 {
		t.Errorf("id length = %d, want 16", len(a))
	}
	if ViolationID("ab", "c") == ViolationID("a", "bc") {
		t.Error("separator failed to keep rule and path apart")
	}
}

// TestPriorityFileName tests severity encoding in filenames.
func TestPriorityFileName(t *testing.T) {
	cases := map[string]int{
		"critical": 0,
		"high":     100,
		"medium":   200,
		"low":      300,
		"info":     400,
		"bogus":    500,
		"":         500,
	}
	for severity, want := range cases {
		if got := PriorityFor(severity); got != want {
			t.Errorf("PriorityFor(%q) = %d, want %d", severity, got, want)
		}
	}

	rec := Record{ID: "deadbeefdeadbeef", Priority: 100}
	if rec.FileName() != "100-deadbeefdeadbeef.json" {
		t.Errorf("FileName = %q", rec.FileName())
	}
	rec.Priority = 0
	if rec.FileName() != "000-deadbeefdeadbeef.json" {
		t.Errorf("FileName = %q", rec.FileName())
	}
}

// TestReportAndList tests creation and priority ordering.
func TestReportAndList(t *testing.T) {
	q := openTestQueue(t)

	if _, err := q.Report("s1", "style.md", "low.py", "low", "minor"); err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if _, err := q.Report("s1", "security.md", "hot.py", "critical", "injection"); err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	records, err := q.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("List returned %d records", len(records))
	}
	if records[0].Severity != "critical" || records[1].Severity != "low" {
		t.Errorf("priority order wrong: %s then %s", records[0].Severity, records[1].Severity)
	}
	if records[0].Status != StatusPending || records[0].StateVersion != 1 {
		t.Errorf("new record state: %+v", records[0])
	}
}

// TestReportRefresh tests that re-detection refreshes, not duplicates.
func TestReportRefresh(t *testing.T) {
	q := openTestQueue(t)

	first, err := q.Report("s1", "r.md", "a.py", "medium", "v1")
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	second, err := q.Report("s1", "r.md", "a.py", "high", "v2")
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	if second.ID != first.ID {
		t.Error("re-detection minted a new identity")
	}
	if second.Message != "v2" || second.Severity != "high" {
		t.Errorf("refresh did not update fields: %+v", second)
	}

	records, err := q.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after refresh, got %d", len(records))
	}
	// Severity change moved the priority prefix; the old file must be gone.
	if records[0].Priority != 100 {
		t.Errorf("priority not updated: %d", records[0].Priority)
	}
}

// TestClaimResolve tests the happy path and token single-use.
func TestClaimResolve(t *testing.T) {
	q := openTestQueue(t)
	rec, err := q.Report("s1", "r.md", "a.py", "high", "msg")
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	claimed, err := q.Claim(rec.ID)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed.Status != StatusInProgress || claimed.ClaimUUID == "" {
		t.Fatalf("claim state: %+v", claimed)
	}
	if claimed.LeaseExpiresAt == nil {
		t.Fatal("claim carries no lease")
	}

	resolved, err := q.Resolve(rec.ID, claimed.ClaimUUID, claimed.StateVersion)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Status != StatusResolved || resolved.ClaimUUID != "" || resolved.ResolvedAt == nil {
		t.Errorf("resolve state: %+v", resolved)
	}

	// The spent token must not work again.
	if _, err := q.Resolve(rec.ID, claimed.ClaimUUID, claimed.StateVersion); !errors.Is(err, ErrStaleToken) {
		t.Fatalf("second resolve: expected ErrStaleToken, got %v", err)
	}
}

// TestResolveWrongToken tests CAS rejection without mutation.
func TestResolveWrongToken(t *testing.T) {
	q := openTestQueue(t)
	rec, _ := q.Report("s1", "r.md", "a.py", "high", "msg")
	claimed, err := q.Claim(rec.ID)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	if _, err := q.Resolve(rec.ID, "wrong-uuid", claimed.StateVersion); !errors.Is(err, ErrStaleToken) {
		t.Fatalf("expected ErrStaleToken, got %v", err)
	}
	if _, err := q.Resolve(rec.ID, claimed.ClaimUUID, claimed.StateVersion+7); !errors.Is(err, ErrStaleToken) {
		t.Fatalf("expected ErrStaleToken, got %v", err)
	}

	records, err := q.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 || records[0].Status != StatusInProgress {
		t.Errorf("rejected resolve mutated the record: %+v", records)
	}
}

// TestClaimConflicts tests double claims and unknown ids.
func TestClaimConflicts(t *testing.T) {
	q := openTestQueue(t)
	rec, _ := q.Report("s1", "r.md", "a.py", "high", "msg")

	if _, err := q.Claim(rec.ID); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if _, err := q.Claim(rec.ID); !errors.Is(err, ErrNotClaimable) {
		t.Fatalf("second claim: expected ErrNotClaimable, got %v", err)
	}
	if _, err := q.Claim("ffffffffffffffff"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id: expected ErrNotFound, got %v", err)
	}
	if _, err := q.Claim(""); !errors.Is(err, ErrNothingPending) {
		t.Fatalf("claim-next on busy queue: expected ErrNothingPending, got %v", err)
	}
}

// TestClaimFileBusy tests the one-claim-per-target-file rule.
func TestClaimFileBusy(t *testing.T) {
	q := openTestQueue(t)
	first, _ := q.Report("s1", "r1.md", "a.py", "high", "msg")
	second, _ := q.Report("s1", "r2.md", "a.py", "medium", "msg")

	if _, err := q.Claim(first.ID); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if _, err := q.Claim(second.ID); !errors.Is(err, ErrFileBusy) {
		t.Fatalf("expected ErrFileBusy, got %v", err)
	}
}

// TestConcurrentClaimers tests that exactly one of N claimers wins.
func TestConcurrentClaimers(t *testing.T) {
	q := openTestQueue(t)
	rec, _ := q.Report("s1", "r.md", "a.py", "high", "msg")

	const n = 8
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = q.Claim(rec.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrNotClaimable) {
			t.Errorf("loser got unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 winning claim, got %d", wins)
	}
}

// TestLeaseReclaim tests expired-lease recovery without a resolve.
func TestLeaseReclaim(t *testing.T) {
	q := openTestQueue(t)
	rec, _ := q.Report("s1", "r.md", "a.py", "high", "msg")

	base := time.Now()
	q.now = func() time.Time { return base }

	stale, err := q.Claim(rec.ID)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	// Within lease + grace nothing is reclaimed.
	q.now = func() time.Time { return base.Add(300*time.Second + 10*time.Second) }
	records, err := q.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if records[0].Status != StatusInProgress {
		t.Fatalf("reclaimed inside the grace window: %+v", records[0])
	}

	// Past the grace the record returns to pending and is claimable.
	q.now = func() time.Time { return base.Add(331 * time.Second) }
	fresh, err := q.Claim(rec.ID)
	if err != nil {
		t.Fatalf("reclaim-then-claim failed: %v", err)
	}
	if fresh.ClaimUUID == stale.ClaimUUID {
		t.Error("reissued claim kept the old UUID")
	}
	if fresh.ReclaimCount != 1 {
		t.Errorf("ReclaimCount = %d, want 1", fresh.ReclaimCount)
	}

	// The original claimant's tokens are now dead.
	if _, err := q.Resolve(rec.ID, stale.ClaimUUID, stale.StateVersion); !errors.Is(err, ErrStaleToken) {
		t.Fatalf("stale claimant resolve: expected ErrStaleToken, got %v", err)
	}
}

// TestManualReviewEscalation tests the reclaim-count threshold.
func TestManualReviewEscalation(t *testing.T) {
	q := openTestQueue(t)
	rec, _ := q.Report("s1", "r.md", "a.py", "high", "msg")

	base := time.Now()
	for round := 0; round < 3; round++ {
		offset := time.Duration(round) * time.Hour
		q.now = func() time.Time { return base.Add(offset) }
		if _, err := q.Claim(rec.ID); err != nil {
			t.Fatalf("round %d claim failed: %v", round, err)
		}
	}

	// Third lease expires; the third reclaim crosses the threshold.
	q.now = func() time.Time { return base.Add(4 * time.Hour) }
	records, err := q.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("escalated record still listed as open: %+v", records)
	}
	if _, err := q.Claim(rec.ID); !errors.Is(err, ErrNotClaimable) {
		t.Fatalf("manual_review claim: expected ErrNotClaimable, got %v", err)
	}
}

// TestResolveByEvidence tests compliant-verdict resolution.
func TestResolveByEvidence(t *testing.T) {
	q := openTestQueue(t)
	if _, err := q.Report("s1", "r.md", "a.py", "high", "msg"); err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	if err := q.ResolveByEvidence("r.md", "a.py"); err != nil {
		t.Fatalf("ResolveByEvidence failed: %v", err)
	}
	records, err := q.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("record still open after evidence resolve: %+v", records)
	}

	// Reappearance reopens the same identity.
	reopened, err := q.Report("s1", "r.md", "a.py", "high", "back")
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if reopened.Status != StatusPending || reopened.ResolvedAt != nil {
		t.Errorf("reopen state: %+v", reopened)
	}
}

// TestMarkStale tests end-of-pass reconciliation.
func TestMarkStale(t *testing.T) {
	q := openTestQueue(t)
	kept, _ := q.Report("s1", "r.md", "a.py", "high", "msg")
	gone, _ := q.Report("s1", "r.md", "b.py", "high", "msg")

	seen := map[string]struct{}{kept.ID: {}}
	if err := q.MarkStale(seen); err != nil {
		t.Fatalf("MarkStale failed: %v", err)
	}

	records, err := q.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != kept.ID {
		t.Errorf("expected only the seen record to stay open: %+v", records)
	}
	if _, err := q.Claim(gone.ID); !errors.Is(err, ErrNotClaimable) {
		t.Fatalf("stale claim: expected ErrNotClaimable, got %v", err)
	}
}
