// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/sentinel/pkg/logging"
)

// TestSignature tests stability, order independence, and sensitivity.
func TestSignature(t *testing.T) {
	diffs := map[string]string{"a.py": "+x\n", "b.py": "+y\n"}

	sig := Signature([]string{"a.py", "b.py"}, diffs)
	if sig == EmptySignature {
		t.Fatal("dirty tree reported empty signature")
	}
	if Signature([]string{"b.py", "a.py"}, diffs) != sig {
		t.Error("signature depends on target order")
	}

	edited := map[string]string{"a.py": "+x\n+z\n", "b.py": "+y\n"}
	if Signature([]string{"a.py", "b.py"}, edited) == sig {
		t.Error("diff edit did not move the signature")
	}
	if Signature([]string{"a.py"}, diffs) == sig {
		t.Error("target set change did not move the signature")
	}
}

// TestSignatureEmpty tests the clean-tree sentinel.
func TestSignatureEmpty(t *testing.T) {
	if Signature(nil, nil) != EmptySignature {
		t.Errorf("Signature(nil) = %q", Signature(nil, nil))
	}
}

// TestRunnerMaxRuns tests that the runner acts once per signature
// change and stops at the run limit.
func TestRunnerMaxRuns(t *testing.T) {
	root := t.TempDir()
	logger, err := logging.New(logging.Config{Quiet: true})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	var sig atomic.Value
	sig.Store("sig-1")
	var runs atomic.Int64

	runner := &Runner{
		Root:     root,
		Debounce: 20 * time.Millisecond,
		Interval: 30 * time.Millisecond,
		MaxRuns:  2,
		Logger:   logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- runner.Run(ctx,
			func(context.Context) (string, error) { return sig.Load().(string), nil },
			func(context.Context) error { runs.Add(1); return nil })
	}()

	// First signature is acted on at startup; move it once to trigger
	// the second (and final) run.
	time.Sleep(50 * time.Millisecond)
	sig.Store("sig-2")
	if err := os.WriteFile(filepath.Join(root, "touch.py"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop at MaxRuns")
	}
	if runs.Load() != 2 {
		t.Errorf("runs = %d, want 2", runs.Load())
	}
}

// TestRunnerSkipsUnchanged tests that a stable signature never
// re-triggers the action.
func TestRunnerSkipsUnchanged(t *testing.T) {
	root := t.TempDir()
	logger, err := logging.New(logging.Config{Quiet: true})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	var runs atomic.Int64
	runner := &Runner{
		Root:     root,
		Debounce: 10 * time.Millisecond,
		Interval: 15 * time.Millisecond,
		Logger:   logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = runner.Run(ctx,
		func(context.Context) (string, error) { return "constant", nil },
		func(context.Context) error { runs.Add(1); return nil })
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if runs.Load() != 1 {
		t.Errorf("runs = %d, want exactly 1 for a constant signature", runs.Load())
	}
}
