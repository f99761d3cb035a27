package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/dyluth/tally/internal/listing"
	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/internal/timespec"
	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/spf13/cobra"
)

var (
	checklistsOutput    string
	checklistsSince     string
	checklistsUntil     string
	checklistsStatus    string
	checklistsCustomer  string
	checklistsWorkspace string
)

var checklistsCmd = &cobra.Command{
	Use:     "checklists [CHECKLIST_ID]",
	Aliases: []string{"ls"},
	Short:   "Inspect checklists with filtering",
	Long: `Inspect checklists straight from the store, in list or get mode.

List Mode (no CHECKLIST_ID):
  Displays checklists matching filters, oldest first.

Get Mode (with CHECKLIST_ID):
  Displays one checklist as pretty-printed JSON.
  Supports short IDs (e.g., "3f2a9c" instead of the full UUID).

Output Formats (list mode only):
  default - Table with ID, status, customer, items, weight, scan progress and age
  jsonl   - Line-delimited JSON, one checklist per line
  json    - A single JSON array

Examples:
  # Checklists currently open for scanning
  tally checklists --status=locked

  # Everything created for one customer in the last day, as JSONL
  tally checklists --customer=acme --since=24h -o jsonl | jq .id

  # One checklist by short ID
  tally checklists 3f2a9c`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChecklists,
}

func init() {
	checklistsCmd.Flags().StringVarP(&checklistsOutput, "output", "o", "default", "Output format: default, jsonl or json (ignored in get mode)")
	checklistsCmd.Flags().StringVar(&checklistsSince, "since", "", "Show checklists created after time (duration or RFC3339)")
	checklistsCmd.Flags().StringVar(&checklistsUntil, "until", "", "Show checklists created before time (duration or RFC3339)")
	checklistsCmd.Flags().StringVar(&checklistsStatus, "status", "", "Filter by status: draft, confirmed, locked, modification_requested")
	checklistsCmd.Flags().StringVar(&checklistsCustomer, "customer", "", "Filter by customer id (exact match)")
	checklistsCmd.Flags().StringVar(&checklistsWorkspace, "workspace", "", "Filter by workspace id (exact match)")
	rootCmd.AddCommand(checklistsCmd)
}

func runChecklists(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var format listing.OutputFormat
	var filters *listing.FilterCriteria
	if len(args) == 0 {
		var err error
		format, err = listing.ParseFormat(checklistsOutput)
		if err != nil {
			return printer.Error("invalid output format", err.Error(), []string{"Valid formats: default, jsonl, json"})
		}

		created, err := timespec.ParseRange(checklistsSince, checklistsUntil)
		if err != nil {
			return printer.Error(
				"invalid time filter",
				err.Error(),
				[]string{"Use duration format like '1h30m' or RFC3339 like '2025-10-29T13:00:00Z'"},
			)
		}

		filters = &listing.FilterCriteria{
			Created:     created,
			Status:      fulfillment.Status(checklistsStatus),
			CustomerID:  checklistsCustomer,
			WorkspaceID: checklistsWorkspace,
		}
		if err := filters.Validate(); err != nil {
			return printer.Error("invalid status filter", err.Error(), nil)
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if len(args) == 0 {
		if err := listing.ListChecklists(ctx, client, format, filters, os.Stdout); err != nil {
			return fmt.Errorf("failed to list checklists: %w", err)
		}
		return nil
	}

	fullID, err := resolveChecklist(ctx, client, args[0])
	if err != nil {
		return err
	}

	if err := listing.GetChecklist(ctx, client, fullID, os.Stdout); err != nil {
		if listing.IsNotFound(err) {
			return printer.Error(
				err.Error(),
				"The checklist was resolved but could not be fetched.",
				[]string{"It may have been removed meanwhile. Try again."},
			)
		}
		return fmt.Errorf("failed to get checklist: %w", err)
	}
	return nil
}
