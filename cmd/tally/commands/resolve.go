package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/internal/resolver"
	"github.com/dyluth/tally/pkg/store"
)

// resolveChecklist expands a short checklist id, printing a friendly error when
// it matches nothing or more than one checklist.
func resolveChecklist(ctx context.Context, client *store.Client, shortID string) (string, error) {
	fullID, err := resolver.ResolveChecklistID(ctx, client, shortID)
	if err == nil {
		return fullID, nil
	}

	if resolver.IsNotFoundError(err) {
		return "", printer.Error(
			fmt.Sprintf("checklist with ID '%s' not found", shortID),
			"No checklist with that ID exists for this instance.",
			[]string{
				"List all checklists:\n  tally checklists",
				fmt.Sprintf("Check the instance:\n  tally checklists --name %s", client.InstanceName()),
			},
		)
	}
	if resolver.IsAmbiguousError(err) {
		fmt.Fprintln(os.Stderr, resolver.FormatAmbiguousError(err.(*resolver.AmbiguousError)))
		return "", fmt.Errorf("ambiguous short ID")
	}
	return "", printer.Error("failed to resolve checklist ID", err.Error(), nil)
}
