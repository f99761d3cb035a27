package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/dyluth/tally/pkg/store"
)

// ChecklistGetter is the subset of *store.Client polled by PollForChecklist.
type ChecklistGetter interface {
	GetChecklist(ctx context.Context, checklistID string) (*fulfillment.Checklist, error)
}

// PollInterval is how often PollForChecklist reads the store.
var PollInterval = 200 * time.Millisecond

// PollForChecklist polls the store until the checklist satisfies done.
// A checklist that does not exist yet is polled again; any other read error
// ends the poll.
func PollForChecklist(ctx context.Context, client ChecklistGetter, checklistID string, done func(*fulfillment.Checklist) bool, timeout time.Duration) (*fulfillment.Checklist, error) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for checklist %s after %v", checklistID, timeout)

		case <-ticker.C:
			c, err := client.GetChecklist(ctx, checklistID)
			if err != nil {
				if store.IsNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("failed to query checklist: %w", err)
			}
			if done(c) {
				return c, nil
			}
		}
	}
}

// Complete reports whether every item of the checklist is scanned.
func Complete(c *fulfillment.Checklist) bool {
	return c.Progress().IsComplete
}

// InStatus returns a condition matching one lifecycle status.
func InStatus(status fulfillment.Status) func(*fulfillment.Checklist) bool {
	return func(c *fulfillment.Checklist) bool { return c.Status == status }
}
