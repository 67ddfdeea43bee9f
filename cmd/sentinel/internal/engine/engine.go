// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine enumerates check units and executes them across a
// bounded worker pool under a global deadline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/cache"
	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/checker"
	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/queue"
	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/rules"
	"github.com/AleutianAI/sentinel/pkg/logging"
)

// Decisions for a whole pass.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Unit result statuses. StatusError marks a degraded unit that failed
// open: it contributes allow plus a warning.
const (
	StatusAllow = "allow"
	StatusDeny  = "deny"
	StatusError = "error"
)

var (
	// ErrNoCandidates indicates the change collection found nothing
	// to check.
	ErrNoCandidates = errors.New("no candidate files")

	// ErrNoMatches indicates candidates exist but no rule applies to
	// any of them.
	ErrNoMatches = errors.New("no rule matches any candidate file")
)

// Unit is one (rule, file) judgment to perform.
type Unit struct {
	Rule     rules.Rule
	FilePath string

	// Content is the file text; Diff the file's chunk in diff mode.
	Content string
	Diff    string
}

// UnitResult is the outcome of one unit.
type UnitResult struct {
	Rule     string            `json:"rule"`
	FilePath string            `json:"file_path"`
	Status   string            `json:"status"`
	Message  string            `json:"message,omitempty"`
	Findings []checker.Finding `json:"findings,omitempty"`
	Cached   bool              `json:"cached"`
	Duration time.Duration     `json:"duration_ns"`
}

// Outcome aggregates a pass.
type Outcome struct {
	// Decision is DecisionDeny iff any successful unit found a
	// violation; degraded units never deny.
	Decision string

	Results []UnitResult

	// Warnings describes degraded units and dropped rule documents.
	Warnings []string
}

// Options configures a pass.
type Options struct {
	// Mode is the change-collection mode: diff, full-scan, or stream.
	Mode string

	// Granularity scopes cache entries; the engine runs per-file.
	Granularity string

	MaxWorkers  int
	UnitTimeout time.Duration

	// Deadline is the global budget for the pass; zero disables it.
	Deadline time.Duration

	// MinCollectionWindow floors the per-unit budget. A unit whose
	// remaining budget is below it degrades instead of starting.
	MinCollectionWindow time.Duration

	// Suppressions is the verbatim suppression document.
	Suppressions string

	// StreamID tags queue records; empty disables queue feeding.
	StreamID string
}

// Engine runs check passes.
type Engine struct {
	checker checker.Checker
	cache   *cache.Store
	queue   *queue.Queue
	logger  *logging.Logger
	opts    Options
}

// New creates an Engine. queue may be nil for passes that do not feed
// violation records.
func New(chk checker.Checker, store *cache.Store, q *queue.Queue, logger *logging.Logger, opts Options) *Engine {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.UnitTimeout <= 0 {
		opts.UnitTimeout = 60 * time.Second
	}
	if opts.MinCollectionWindow <= 0 {
		opts.MinCollectionWindow = 5 * time.Second
	}
	if opts.Granularity == "" {
		opts.Granularity = "per-file"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{checker: chk, cache: store, queue: q, logger: logger, opts: opts}
}

// BuildUnits enumerates (rule, file) units.
//
// # Description
//
// Each rule's candidate pool starts from the changed files, widened by
// cross-file expansion where the rule asks for it, then narrowed to
// basename matches. Files with no loadable content produce no units.
// diffs may be nil in full-content modes.
//
// # Outputs
//
//   - []Unit: in deterministic rule-then-file order.
//   - error: ErrNoCandidates or ErrNoMatches on terminal setup
//     conditions.
func BuildUnits(ruleSet []rules.Rule, changed []string, contents map[string]string, diffs map[string]string) ([]Unit, error) {
	if len(changed) == 0 {
		return nil, ErrNoCandidates
	}

	var units []Unit
	for _, rule := range ruleSet {
		pool := rules.TargetPool(rule, changed, contents)
		for _, path := range rule.MatchingFiles(pool) {
			content, ok := contents[path]
			if !ok {
				continue
			}
			units = append(units, Unit{
				Rule:     rule,
				FilePath: path,
				Content:  content,
				Diff:     diffs[path],
			})
		}
	}
	if len(units) == 0 {
		return nil, ErrNoMatches
	}

	sort.Slice(units, func(i, j int) bool {
		if units[i].Rule.Name != units[j].Rule.Name {
			return units[i].Rule.Name < units[j].Rule.Name
		}
		return units[i].FilePath < units[j].FilePath
	})
	return units, nil
}

// Run executes units across the worker pool.
//
// # Description
//
// Every unit is fingerprinted and served from cache when possible. On
// a miss the checker runs under min(unit timeout, remaining global
// budget); a unit whose budget fell below the minimum collection
// window, and any checker failure, degrades to a fail-open allow with
// a warning and no cache write. onResult, when non-nil, observes each
// result as it lands (the stream worker's per-unit files hang off it).
//
// # Outputs
//
//   - Outcome: aggregate decision, per-unit results in input order,
//     warnings.
//   - error: non-nil only when the pass itself could not run.
func (e *Engine) Run(ctx context.Context, units []Unit, onResult func(UnitResult)) (Outcome, error) {
	start := time.Now()
	results := make([]UnitResult, len(units))

	var mu sync.Mutex
	var warnings []string

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(e.opts.MaxWorkers)

	for i, unit := range units {
		group.Go(func() error {
			result, warning := e.runUnit(ctx, unit, start)

			mu.Lock()
			results[i] = result
			if warning != "" {
				warnings = append(warnings, warning)
			}
			mu.Unlock()

			if onResult != nil {
				onResult(result)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Outcome{}, err
	}

	decision := DecisionAllow
	for _, result := range results {
		if result.Status == StatusDeny {
			decision = DecisionDeny
			break
		}
	}
	return Outcome{Decision: decision, Results: results, Warnings: warnings}, nil
}

// runUnit executes one unit and returns its result plus an optional
// degradation warning.
func (e *Engine) runUnit(ctx context.Context, unit Unit, passStart time.Time) (UnitResult, string) {
	unitStart := time.Now()

	// In full-content modes the diff slot carries the file text so an
	// edit still moves the fingerprint.
	changeText := unit.Diff
	if changeText == "" {
		changeText = unit.Content
	}
	key := cache.Key{
		Mode:         e.opts.Mode,
		Granularity:  e.opts.Granularity,
		RuleName:     unit.Rule.Name,
		FilePath:     unit.FilePath,
		RuleBody:     unit.Rule.Body,
		Diff:         changeText,
		Suppressions: e.opts.Suppressions,
	}
	fp := key.Fingerprint()

	if entry, ok := e.cache.Lookup(fp); ok {
		e.logger.Debug("cache hit", "rule", unit.Rule.Name, "file", unit.FilePath)
		result := UnitResult{
			Rule:     unit.Rule.Name,
			FilePath: unit.FilePath,
			Status:   entry.Status,
			Message:  entry.Message,
			Cached:   true,
			Duration: time.Since(unitStart),
		}
		e.feedQueue(result)
		return result, ""
	}

	budget := e.opts.UnitTimeout
	if e.opts.Deadline > 0 {
		remaining := e.opts.Deadline - time.Since(passStart)
		if remaining < budget {
			budget = remaining
		}
	}
	if budget < e.opts.MinCollectionWindow {
		warning := fmt.Sprintf("deadline exhausted before checking %s against %s; allowing without verdict",
			unit.FilePath, unit.Rule.Name)
		e.logger.Warn("unit skipped", "rule", unit.Rule.Name, "file", unit.FilePath, "budget", budget)
		return UnitResult{
			Rule:     unit.Rule.Name,
			FilePath: unit.FilePath,
			Status:   StatusError,
			Message:  warning,
			Duration: time.Since(unitStart),
		}, warning
	}

	unitCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	verdict, err := e.checker.Check(unitCtx, checker.Request{
		RuleName:     unit.Rule.Name,
		RuleBody:     unit.Rule.Body,
		FilePath:     unit.FilePath,
		FileContent:  unit.Content,
		Diff:         unit.Diff,
		Suppressions: e.opts.Suppressions,
		Mode:         e.opts.Mode,
	})
	if err != nil {
		// Fail open: no verdict means no block, and no cache entry so
		// the next run retries.
		warning := fmt.Sprintf("checker failed for %s against %s: %v; allowing without verdict",
			unit.FilePath, unit.Rule.Name, err)
		e.logger.Warn("unit degraded", "rule", unit.Rule.Name, "file", unit.FilePath, "error", err)
		return UnitResult{
			Rule:     unit.Rule.Name,
			FilePath: unit.FilePath,
			Status:   StatusError,
			Message:  warning,
			Duration: time.Since(unitStart),
		}, warning
	}

	if err := e.cache.Save(fp, cache.Entry{
		Status:    verdict.Status,
		Message:   verdict.Message,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		e.logger.Warn("cache write failed", "rule", unit.Rule.Name, "file", unit.FilePath, "error", err)
	}

	result := UnitResult{
		Rule:     unit.Rule.Name,
		FilePath: unit.FilePath,
		Status:   verdict.Status,
		Message:  verdict.Message,
		Findings: verdict.Findings,
		Duration: time.Since(unitStart),
	}
	e.feedQueue(result)
	return result, ""
}

// feedQueue mirrors a successful unit result into the violation queue:
// deny findings become pending records, allow verdicts resolve prior
// records by evidence.
func (e *Engine) feedQueue(result UnitResult) {
	if e.queue == nil || e.opts.StreamID == "" {
		return
	}
	switch result.Status {
	case StatusDeny:
		findings := result.Findings
		if len(findings) == 0 {
			findings = []checker.Finding{{
				Rule:     result.Rule,
				File:     result.FilePath,
				Severity: "unknown",
				Message:  result.Message,
			}}
		}
		for _, f := range findings {
			if _, err := e.queue.Report(e.opts.StreamID, result.Rule, result.FilePath, f.Severity, f.Message); err != nil {
				e.logger.Warn("queue report failed", "rule", result.Rule, "file", result.FilePath, "error", err)
			}
		}
	case StatusAllow:
		if err := e.queue.ResolveByEvidence(result.Rule, result.FilePath); err != nil {
			e.logger.Warn("queue evidence resolve failed", "rule", result.Rule, "file", result.FilePath, "error", err)
		}
	}
}
