package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/internal/watch"
	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/spf13/cobra"
)

var (
	watchOutput    string
	watchWorkspace string
	watchChecklist string
	watchTypes     string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream fulfillment events in real time",
	Long: `Stream the events published after every change: scans accepted and
rejected, checklist transitions, modification requests and workspace changes.

Output Formats:
  default - One human-readable line per event
  json    - Line-delimited JSON for piping

Examples:
  tally watch
  tally watch --checklist=3f2a9c0e-... --type=scan_accepted,scan_rejected
  tally watch -o json | jq 'select(.type=="scan_rejected")'`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	waitTimeout time.Duration
	waitStatus  string
)

var waitCmd = &cobra.Command{
	Use:   "wait CHECKLIST_ID",
	Short: "Block until a checklist reaches a status or is fully scanned",
	Long: `Poll a checklist until it is fully scanned, or until it reaches the status
given with --status. Exits non-zero on timeout.

Examples:
  tally wait 3f2a9c --timeout=30m
  tally wait 3f2a9c --status=locked`,
	Args: cobra.ExactArgs(1),
	RunE: runWait,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "default", "Output format: default or json")
	watchCmd.Flags().StringVar(&watchWorkspace, "workspace", "", "Only events of this workspace")
	watchCmd.Flags().StringVar(&watchChecklist, "checklist", "", "Only events of this checklist")
	watchCmd.Flags().StringVar(&watchTypes, "type", "", "Comma-separated event types to show")
	rootCmd.AddCommand(watchCmd)

	waitCmd.Flags().DurationVar(&waitTimeout, "timeout", 10*time.Minute, "Give up after this long")
	waitCmd.Flags().StringVar(&waitStatus, "status", "", "Wait for this status instead of completion")
	rootCmd.AddCommand(waitCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var format watch.OutputFormat
	switch watchOutput {
	case "default":
		format = watch.OutputFormatDefault
		watch.RenderKind = printer.Kind
	case "json":
		format = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutput),
			[]string{"Valid formats: default, json"},
		)
	}

	filter, err := parseWatchFilter(watchWorkspace, watchChecklist, watchTypes)
	if err != nil {
		return printer.Error("invalid event type", err.Error(), []string{"Run 'tally watch --help' for the event names"})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := watch.StreamEvents(ctx, client, format, filter, os.Stdout); err != nil {
		return printer.Error("watch failed", err.Error(), nil)
	}
	return nil
}

var knownEventTypes = []fulfillment.EventType{
	fulfillment.EventWorkspaceCreated,
	fulfillment.EventWorkspaceClosed,
	fulfillment.EventChecklistCreated,
	fulfillment.EventChecklistRemoved,
	fulfillment.EventChecklistChanged,
	fulfillment.EventChecklistTransition,
	fulfillment.EventScanAccepted,
	fulfillment.EventScanRejected,
	fulfillment.EventModificationRequest,
	fulfillment.EventModificationResolved,
}

func parseWatchFilter(workspaceID, checklistID, types string) (*watch.Filter, error) {
	filter := &watch.Filter{WorkspaceID: workspaceID, ChecklistID: checklistID}
	if types == "" {
		return filter, nil
	}

	for _, raw := range strings.Split(types, ",") {
		t := fulfillment.EventType(strings.TrimSpace(raw))
		if t == "" {
			continue
		}
		known := false
		for _, k := range knownEventTypes {
			if k == t {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown event type %q", t)
		}
		filter.Types = append(filter.Types, t)
	}
	return filter, nil
}

func runWait(cmd *cobra.Command, args []string) error {
	done := watch.Complete
	what := "fully scanned"
	if waitStatus != "" {
		status := fulfillment.Status(waitStatus)
		if err := status.Validate(); err != nil {
			return printer.Error("invalid status", err.Error(), nil)
		}
		done = watch.InStatus(status)
		what = "in status " + waitStatus
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	fullID, err := resolveChecklist(ctx, client, args[0])
	if err != nil {
		return err
	}

	printer.Step("Waiting for checklist %s to be %s...\n", fullID, what)
	c, err := watch.PollForChecklist(ctx, client, fullID, done, waitTimeout)
	if err != nil {
		return printer.Error("wait failed", err.Error(), nil)
	}

	p := c.Progress()
	printer.Success("Checklist %s is %s (%d/%d scanned)\n", fullID, what, p.ScannedCount, p.TotalItems)
	return nil
}
