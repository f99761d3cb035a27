// Package timespec parses the --since/--until flags of the tally CLI.
package timespec

import (
	"fmt"
	"time"
)

// Parse parses a time specification into a Unix timestamp (milliseconds).
// Supports two formats:
//   - Go duration format: "1h", "30m", "1h30m" (that long before now)
//   - RFC3339 timestamps: "2025-10-29T13:00:00Z"
func Parse(spec string) (int64, error) {
	return ParseAt(spec, time.Now())
}

// ParseAt is Parse with durations measured back from now.
func ParseAt(spec string, now time.Time) (int64, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty time specification")
	}

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.UnixMilli(), nil
	}

	if d, err := time.ParseDuration(spec); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative duration: %s", spec)
		}
		return now.Add(-d).UnixMilli(), nil
	}

	return 0, fmt.Errorf("invalid time specification: %s (use duration like '1h30m' or RFC3339 like '2025-10-29T13:00:00Z')", spec)
}

// Range is a creation-time window in Unix milliseconds. Zero means unbounded.
type Range struct {
	SinceMs int64
	UntilMs int64
}

// Contains reports whether atMs falls inside the window. Both ends are inclusive.
func (r Range) Contains(atMs int64) bool {
	if r.SinceMs > 0 && atMs < r.SinceMs {
		return false
	}
	if r.UntilMs > 0 && atMs > r.UntilMs {
		return false
	}
	return true
}

// ParseRange parses both --since and --until flags.
// Validates that since < until if both are specified.
func ParseRange(since, until string) (Range, error) {
	return ParseRangeAt(since, until, time.Now())
}

// ParseRangeAt is ParseRange with durations measured back from now.
func ParseRangeAt(since, until string, now time.Time) (Range, error) {
	var r Range
	var err error

	if since != "" {
		r.SinceMs, err = ParseAt(since, now)
		if err != nil {
			return Range{}, fmt.Errorf("invalid --since: %w", err)
		}
	}

	if until != "" {
		r.UntilMs, err = ParseAt(until, now)
		if err != nil {
			return Range{}, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if r.SinceMs > 0 && r.UntilMs > 0 && r.SinceMs >= r.UntilMs {
		return Range{}, fmt.Errorf("--since must be before --until")
	}

	return r, nil
}
