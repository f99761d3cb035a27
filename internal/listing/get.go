package listing

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/tally/pkg/store"
)

// GetChecklist writes one checklist as pretty-printed JSON.
func GetChecklist(ctx context.Context, client Reader, checklistID string, w io.Writer) error {
	c, err := client.GetChecklist(ctx, checklistID)
	if err != nil {
		if store.IsNotFound(err) {
			return &ChecklistNotFoundError{ChecklistID: checklistID}
		}
		return fmt.Errorf("failed to fetch checklist: %w", err)
	}

	if err := FormatSingleJSON(w, c); err != nil {
		return fmt.Errorf("failed to format checklist: %w", err)
	}
	return nil
}

// ChecklistNotFoundError lets callers tell a missing checklist from other failures.
type ChecklistNotFoundError struct {
	ChecklistID string
}

func (e *ChecklistNotFoundError) Error() string {
	return fmt.Sprintf("checklist with ID '%s' not found", e.ChecklistID)
}

// IsNotFound returns true if the error is a ChecklistNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*ChecklistNotFoundError)
	return ok
}
