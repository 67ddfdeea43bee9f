// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/cache"
	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/checker"
	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/config"
	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/engine"
	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/gitsource"
	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/queue"
	"github.com/AleutianAI/sentinel/cmd/sentinel/internal/rules"
	"github.com/AleutianAI/sentinel/pkg/logging"
)

// workspace bundles everything a command needs: the repository root,
// the state directory, loaded configuration, and the shared clients.
type workspace struct {
	root     string
	stateDir string
	cfg      config.Config
	git      gitsource.Client
	logger   *logging.Logger
}

// openWorkspace locates the enclosing repository and loads its state.
func openWorkspace(ctx context.Context) (*workspace, error) {
	git := gitsource.NewClient("")
	root, err := git.RepoRoot(ctx)
	if err != nil {
		return nil, fmt.Errorf("locating repository: %w", err)
	}

	stateDir := filepath.Join(root, rules.StateDirName)
	cfg, err := config.Load(filepath.Join(stateDir, "config.yaml"))
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		Service: "sentinel",
	})
	if err != nil {
		return nil, err
	}

	return &workspace{
		root:     root,
		stateDir: stateDir,
		cfg:      cfg,
		git:      git,
		logger:   logger,
	}, nil
}

// mode maps the shared flags to the change-collection mode.
func (w *workspace) mode() string {
	if fullScanMode {
		return "full-scan"
	}
	return "diff"
}

// suppressions reads the suppression document; a missing file is an
// empty one.
func (w *workspace) suppressions() string {
	data, err := os.ReadFile(filepath.Join(w.stateDir, "suppressions.md"))
	if err != nil {
		return ""
	}
	return string(data)
}

// ruleSet resolves the layered rules: project layers from the working
// directory up to the repository root, plus the optional plugin base.
func (w *workspace) ruleSet() ([]rules.Rule, []string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("getting working directory: %w", err)
	}
	projectDirs, err := rules.FindProjectRuleDirs(cwd, w.root)
	if err != nil {
		return nil, nil, err
	}
	baseDir := ""
	if pluginDir != "" {
		baseDir = filepath.Join(pluginDir, "rules")
	}
	return rules.Resolve(baseDir, projectDirs)
}

// changes collects the candidate files, their contents, and per-file
// diff chunks for the current mode.
func (w *workspace) changes(ctx context.Context) (changed []string, contents map[string]string, diffs map[string]string, err error) {
	contents = make(map[string]string)

	if fullScanMode {
		changed, err = w.git.TrackedFiles(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
	} else {
		changed, err = w.git.ChangedFiles(ctx, stagedMode)
		if err != nil {
			return nil, nil, nil, err
		}
		unified, err := w.git.Diff(ctx, stagedMode)
		if err != nil {
			return nil, nil, nil, err
		}
		diffs = gitsource.SplitDiff(unified)
	}

	for _, path := range changed {
		content, err := w.git.FileContent(ctx, path, stagedMode && !fullScanMode)
		if err != nil {
			// Unreadable files produce no units; the resolver logs
			// and moves on.
			w.logger.Warn("skipping unreadable file", "path", path, "error", err)
			continue
		}
		contents[path] = content
	}
	return changed, contents, diffs, nil
}

// newChecker builds the configured verdict backend.
func (w *workspace) newChecker() (checker.Checker, error) {
	switch w.cfg.Checker.Backend {
	case "openai":
		return checker.NewOpenAIChecker("", w.cfg.Checker.OpenAIBaseURL, w.cfg.Checker.OpenAIModel)
	default:
		return checker.NewSubprocessChecker(w.cfg.Checker.Argv), nil
	}
}

// newEngine assembles an engine for the given mode. q may be nil when
// the pass does not feed the violation queue.
func (w *workspace) newEngine(mode, streamID string, q *queue.Queue) (*engine.Engine, error) {
	chk, err := w.newChecker()
	if err != nil {
		return nil, err
	}
	store, err := cache.NewStore(filepath.Join(w.stateDir, "cache"))
	if err != nil {
		return nil, err
	}
	return engine.New(chk, store, q, w.logger, engine.Options{
		Mode:                mode,
		MaxWorkers:          w.cfg.MaxWorkers,
		UnitTimeout:         w.cfg.UnitTimeout(),
		Deadline:            w.cfg.DeadlineFor(mode),
		MinCollectionWindow: w.cfg.MinCollectionWindow(),
		Suppressions:        w.suppressions(),
		StreamID:            streamID,
	}), nil
}

// openQueue opens the violation queue for a stream.
func (w *workspace) openQueue(streamID string) (*queue.Queue, error) {
	return queue.Open(filepath.Join(w.stateDir, "queue", streamID), queue.Options{
		LeaseTTL:              w.cfg.LeaseTTL(),
		LeaseGrace:            w.cfg.LeaseGrace(),
		ManualReviewThreshold: w.cfg.ManualReviewThreshold,
	})
}

// streamRoot is the directory holding all stream job directories.
func (w *workspace) streamRoot() string {
	return filepath.Join(w.stateDir, "stream-results")
}
