// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream runs detached background check passes and exposes
// their progress through polling-safe status files.
package stream

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// idPattern validates stream ids before they are used in paths.
var idPattern = regexp.MustCompile(`^\d{8}-\d{6}-[0-9a-f]{6}$`)

// NewID mints a stream id: a second-resolution timestamp plus a short
// random suffix. The timestamp prefix makes ids sort chronologically,
// which the retention pruner relies on; the suffix keeps two starts in
// the same second apart.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s-%s", now.Format("20060102-150405"), suffix)
}

// ValidID reports whether id has the expected shape. Callers must
// reject anything else before joining it into a path.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
