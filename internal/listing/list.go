// Package listing reads checklists straight from the store for the CLI, with
// filters and table, JSONL or JSON output. It never goes through the engine, so
// it works against a store whether or not a server is running.
package listing

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dyluth/tally/internal/timespec"
	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/dyluth/tally/pkg/store"
)

// OutputFormat specifies how to format the checklist list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table with truncated ids
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete checklists as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"

	// OutputFormatJSON outputs a single JSON array
	OutputFormatJSON OutputFormat = "json"
)

// ParseFormat maps a --output flag value onto an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputFormatDefault:
		return OutputFormatDefault, nil
	case OutputFormatJSONL, OutputFormatJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format: %s (use default, jsonl or json)", s)
	}
}

// FilterCriteria defines filtering options for the checklist list.
// All filters are ANDed together; zero values do not filter.
type FilterCriteria struct {
	Created     timespec.Range
	Status      fulfillment.Status
	CustomerID  string
	WorkspaceID string
}

// Validate rejects an unknown status filter.
func (fc *FilterCriteria) Validate() error {
	if fc.Status == "" {
		return nil
	}
	return fc.Status.Validate()
}

func (fc *FilterCriteria) matches(c *fulfillment.Checklist) bool {
	if !fc.Created.Contains(c.CreatedAtMs) {
		return false
	}
	if fc.Status != "" && c.Status != fc.Status {
		return false
	}
	if fc.CustomerID != "" && c.CustomerID != fc.CustomerID {
		return false
	}
	if fc.WorkspaceID != "" && c.WorkspaceID != fc.WorkspaceID {
		return false
	}
	return true
}

// Reader is the subset of *store.Client used for listing.
type Reader interface {
	InstanceName() string
	ScanChecklistIDs(ctx context.Context, prefix string) ([]string, error)
	GetChecklist(ctx context.Context, checklistID string) (*fulfillment.Checklist, error)
}

// Verify interface compliance
var _ Reader = (*store.Client)(nil)

// ListChecklists loads the instance's checklists, applies filters, sorts them
// by creation time and writes them to w. Malformed checklists are skipped with
// a warning on stderr.
func ListChecklists(ctx context.Context, client Reader, format OutputFormat, filters *FilterCriteria, w io.Writer) error {
	checklists, err := Collect(ctx, client, filters, os.Stderr)
	if err != nil {
		return err
	}

	switch format {
	case OutputFormatDefault, "":
		FormatTable(w, checklists, client.InstanceName())
	case OutputFormatJSONL:
		if err := FormatJSONL(w, checklists); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	case OutputFormatJSON:
		if err := FormatJSON(w, checklists); err != nil {
			return fmt.Errorf("failed to format JSON output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
	return nil
}

// Collect returns the filtered checklists oldest first. Warnings about skipped
// entries go to warn.
func Collect(ctx context.Context, client Reader, filters *FilterCriteria, warn io.Writer) ([]*fulfillment.Checklist, error) {
	if filters != nil {
		if err := filters.Validate(); err != nil {
			return nil, err
		}
	}

	ids, err := client.ScanChecklistIDs(ctx, "")
	if err != nil {
		return nil, err
	}

	checklists := make([]*fulfillment.Checklist, 0, len(ids))
	for _, id := range ids {
		c, err := client.GetChecklist(ctx, id)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			fmt.Fprintf(warn, "⚠️  Skipping malformed checklist: id=%s (error: %v)\n", id, err)
			continue
		}
		if filters != nil && !filters.matches(c) {
			continue
		}
		checklists = append(checklists, c)
	}

	sort.SliceStable(checklists, func(i, j int) bool {
		if checklists[i].CreatedAtMs != checklists[j].CreatedAtMs {
			return checklists[i].CreatedAtMs < checklists[j].CreatedAtMs
		}
		return checklists[i].ID < checklists[j].ID
	})
	return checklists, nil
}
