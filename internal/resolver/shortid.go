// Package resolver turns short checklist id prefixes typed on the command line
// into full checklist ids.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/tally/pkg/store"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// ChecklistStore is the subset of *store.Client the resolver needs.
type ChecklistStore interface {
	ScanChecklistIDs(ctx context.Context, prefix string) ([]string, error)
}

// ResolveChecklistID resolves a short ID prefix to a full checklist id.
// An exact id match always wins, even if it is also a prefix of other ids.
// Returns NotFoundError or AmbiguousError when the prefix does not identify
// exactly one checklist.
func ResolveChecklistID(ctx context.Context, client ChecklistStore, shortID string) (string, error) {
	shortID = strings.TrimSpace(shortID)
	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	matches, err := client.ScanChecklistIDs(ctx, shortID)
	if err != nil {
		return "", fmt.Errorf("failed to search for checklist: %w", err)
	}

	for _, id := range matches {
		if id == shortID {
			return id, nil
		}
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// Verify interface compliance
var _ ChecklistStore = (*store.Client)(nil)

// NotFoundError indicates no checklists matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no checklists found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple checklists matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d checklists", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError lists the matching ids (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous short ID '%s' matches %d checklists:\n", err.ShortID, len(err.Matches))

	shown := err.Matches
	if len(shown) > 10 {
		shown = shown[:10]
	}
	for _, id := range shown {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	if len(err.Matches) > 10 {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-10)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the checklist.")
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
