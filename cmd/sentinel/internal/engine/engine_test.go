// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/cache"
	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/checker"
	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/queue"
	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/rules"
	"github.com/AleutianAI/sentinel/pkg/logging"
)

// fakeChecker scripts verdicts per (rule, file) and counts calls.
type fakeChecker struct {
	calls    atomic.Int64
	err      error
	verdicts map[string]checker.Verdict
}

func (f *fakeChecker) Check(ctx context.Context, req checker.Request) (checker.Verdict, error) {
	f.calls.Add(1)
	if f.err != nil {
		return checker.Verdict{}, f.err
	}
	if v, ok := f.verdicts[req.RuleName+"|"+req.FilePath]; ok {
		return v, nil
	}
	return checker.Verdict{Status: checker.StatusAllow, Message: checker.PhraseCompliant}, nil
}

func quietLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New(logging.Config{Quiet: true})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return logger
}

func testStore(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func pyRule() rules.Rule {
	return rules.Rule{Name: "naming.md", Patterns: []string{"*.py"}, Body: "Use snake_case."}
}

// TestBuildUnitsSingleMatch tests that a *.py rule over {a.py, b.md}
// yields exactly one unit.
func TestBuildUnitsSingleMatch(t *testing.T) {
	contents := map[string]string{"a.py": "x = 1\n", "b.md": "# doc\n"}
	units, err := BuildUnits([]rules.Rule{pyRule()}, []string{"a.py", "b.md"}, contents, nil)
	if err != nil {
		t.Fatalf("BuildUnits failed: %v", err)
	}
	if len(units) != 1 || units[0].FilePath != "a.py" {
		t.Fatalf("units = %+v", units)
	}
}

// TestBuildUnitsSetupErrors tests the terminal setup conditions.
func TestBuildUnitsSetupErrors(t *testing.T) {
	if _, err := BuildUnits([]rules.Rule{pyRule()}, nil, nil, nil); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("expected ErrNoCandidates, got %v", err)
	}
	contents := map[string]string{"a.md": "# doc\n"}
	if _, err := BuildUnits([]rules.Rule{pyRule()}, []string{"a.md"}, contents, nil); !errors.Is(err, ErrNoMatches) {
		t.Errorf("expected ErrNoMatches, got %v", err)
	}
	// A matching file without loadable content produces no units.
	if _, err := BuildUnits([]rules.Rule{pyRule()}, []string{"a.py"}, map[string]string{}, nil); !errors.Is(err, ErrNoMatches) {
		t.Errorf("expected ErrNoMatches for contentless file, got %v", err)
	}
}

// TestRunDenyAggregation tests that one deny flips the decision.
func TestRunDenyAggregation(t *testing.T) {
	chk := &fakeChecker{verdicts: map[string]checker.Verdict{
		"naming.md|bad.py": {
			Status:  checker.StatusDeny,
			Message: "[action required] rename",
			Findings: []checker.Finding{
				{Rule: "naming.md", File: "bad.py", Severity: "high", Message: "rename"},
			},
		},
	}}
	eng := New(chk, testStore(t), nil, quietLogger(t), Options{Mode: "diff"})

	contents := map[string]string{"good.py": "a = 1\n", "bad.py": "B = 2\n"}
	units, err := BuildUnits([]rules.Rule{pyRule()}, []string{"good.py", "bad.py"}, contents, nil)
	if err != nil {
		t.Fatalf("BuildUnits failed: %v", err)
	}

	outcome, err := eng.Run(context.Background(), units, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.Decision != DecisionDeny {
		t.Errorf("Decision = %q", outcome.Decision)
	}
	if len(outcome.Results) != 2 {
		t.Errorf("Results = %+v", outcome.Results)
	}
	if len(outcome.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", outcome.Warnings)
	}
}

// TestRunIdempotentRerun tests that an unchanged second pass is all
// cache hits with the same decision.
func TestRunIdempotentRerun(t *testing.T) {
	chk := &fakeChecker{}
	eng := New(chk, testStore(t), nil, quietLogger(t), Options{Mode: "diff"})

	contents := map[string]string{"a.py": "x = 1\n"}
	units, err := BuildUnits([]rules.Rule{pyRule()}, []string{"a.py"}, contents, nil)
	if err != nil {
		t.Fatalf("BuildUnits failed: %v", err)
	}

	first, err := eng.Run(context.Background(), units, nil)
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if chk.calls.Load() != 1 {
		t.Fatalf("first pass calls = %d", chk.calls.Load())
	}

	second, err := eng.Run(context.Background(), units, nil)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if chk.calls.Load() != 1 {
		t.Errorf("second pass re-invoked the checker: calls = %d", chk.calls.Load())
	}
	if !second.Results[0].Cached {
		t.Error("second pass result not marked cached")
	}
	if second.Decision != first.Decision {
		t.Errorf("decision changed across identical passes: %q vs %q", first.Decision, second.Decision)
	}
}

// TestRunFailOpen tests checker failure: allow, warning, no cache.
func TestRunFailOpen(t *testing.T) {
	chk := &fakeChecker{err: errors.New("backend down")}
	eng := New(chk, testStore(t), nil, quietLogger(t), Options{Mode: "diff"})

	contents := map[string]string{"a.py": "x = 1\n"}
	units, _ := BuildUnits([]rules.Rule{pyRule()}, []string{"a.py"}, contents, nil)

	outcome, err := eng.Run(context.Background(), units, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.Decision != DecisionAllow {
		t.Errorf("degraded pass should allow, got %q", outcome.Decision)
	}
	if outcome.Results[0].Status != StatusError {
		t.Errorf("unit status = %q", outcome.Results[0].Status)
	}
	if len(outcome.Warnings) != 1 {
		t.Fatalf("Warnings = %v", outcome.Warnings)
	}

	// No cache entry was written: a healthy rerun invokes the checker.
	chk.err = nil
	if _, err := eng.Run(context.Background(), units, nil); err != nil {
		t.Fatalf("rerun failed: %v", err)
	}
	if chk.calls.Load() != 2 {
		t.Errorf("failed unit was cached: calls = %d", chk.calls.Load())
	}
}

// TestRunDeadlineExhausted tests degradation without invoking the
// checker when the global budget is spent.
func TestRunDeadlineExhausted(t *testing.T) {
	chk := &fakeChecker{}
	eng := New(chk, testStore(t), nil, quietLogger(t), Options{
		Mode:                "diff",
		Deadline:            time.Nanosecond,
		MinCollectionWindow: time.Second,
	})

	contents := map[string]string{"a.py": "x = 1\n"}
	units, _ := BuildUnits([]rules.Rule{pyRule()}, []string{"a.py"}, contents, nil)

	outcome, err := eng.Run(context.Background(), units, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if chk.calls.Load() != 0 {
		t.Errorf("checker invoked despite exhausted deadline")
	}
	if outcome.Decision != DecisionAllow || len(outcome.Warnings) != 1 {
		t.Errorf("outcome = %+v", outcome)
	}
}

// TestRunFeedsQueue tests deny reporting and evidence resolution.
func TestRunFeedsQueue(t *testing.T) {
	q, err := queue.Open(t.TempDir(), queue.Options{})
	if err != nil {
		t.Fatalf("queue.Open failed: %v", err)
	}
	chk := &fakeChecker{verdicts: map[string]checker.Verdict{
		"naming.md|bad.py": {
			Status: checker.StatusDeny,
			Findings: []checker.Finding{
				{Rule: "naming.md", File: "bad.py", Severity: "high", Message: "rename"},
			},
		},
	}}
	eng := New(chk, testStore(t), q, quietLogger(t), Options{Mode: "stream", StreamID: "s1"})

	contents := map[string]string{"bad.py": "B = 2\n"}
	units, _ := BuildUnits([]rules.Rule{pyRule()}, []string{"bad.py"}, contents, nil)
	if _, err := eng.Run(context.Background(), units, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	records, err := q.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 || records[0].Severity != "high" {
		t.Fatalf("queue records = %+v", records)
	}

	// The violation is fixed: a compliant verdict resolves the record.
	chk.verdicts = nil
	fixed := map[string]string{"bad.py": "b = 2\n"}
	units, _ = BuildUnits([]rules.Rule{pyRule()}, []string{"bad.py"}, fixed, nil)
	if _, err := eng.Run(context.Background(), units, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	records, err = q.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("record not resolved by evidence: %+v", records)
	}
}

// TestRunOnResultCallback tests per-unit observation.
func TestRunOnResultCallback(t *testing.T) {
	chk := &fakeChecker{}
	eng := New(chk, testStore(t), nil, quietLogger(t), Options{Mode: "stream"})

	contents := map[string]string{"a.py": "x = 1\n", "b.py": "y = 2\n"}
	units, _ := BuildUnits([]rules.Rule{pyRule()}, []string{"a.py", "b.py"}, contents, nil)

	var observed atomic.Int64
	if _, err := eng.Run(context.Background(), units, func(UnitResult) { observed.Add(1) }); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if observed.Load() != 2 {
		t.Errorf("observed %d results, want 2", observed.Load())
	}
}
