// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// Entry is one cached verdict.
type Entry struct {
	// Status is the verdict outcome: allow or deny.
	Status string `json:"status"`

	// Message is the rendered checker message shown for the verdict.
	Message string `json:"message"`

	CreatedAt time.Time `json:"created_at"`
}

// fingerprintPattern guards the store against path injection through
// a corrupted fingerprint. Valid fingerprints are SHA-256 hex.
var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Store is a one-file-per-entry verdict cache rooted at a directory.
//
// # Thread Safety
//
// Safe for concurrent use across goroutines and processes. Entries
// are immutable once keyed, so concurrent writers of the same
// fingerprint write identical content and last-writer-wins is
// harmless. Writes go through a temp file plus atomic rename, so
// readers never observe a partial entry.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// path maps a fingerprint to its entry file.
func (s *Store) path(fingerprint string) (string, error) {
	if !fingerprintPattern.MatchString(fingerprint) {
		return "", fmt.Errorf("invalid fingerprint %q", fingerprint)
	}
	return filepath.Join(s.dir, fingerprint+".json"), nil
}

// Lookup fetches the entry for a fingerprint.
//
// # Outputs
//
//   - Entry: the cached verdict, zero when absent.
//   - bool: true on a hit. A corrupt entry file counts as a miss so
//     the unit simply re-executes.
func (s *Store) Lookup(fingerprint string) (Entry, bool) {
	path, err := s.path(fingerprint)
	if err != nil {
		return Entry{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false
	}
	return entry, true
}

// Save persists an entry under its fingerprint.
func (s *Store) Save(fingerprint string, entry Entry) error {
	path, err := s.path(fingerprint)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("creating temp entry: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing cache entry: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publishing cache entry: %w", err)
	}
	return nil
}
