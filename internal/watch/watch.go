// Package watch streams fulfillment events from the store to a terminal or a
// JSONL pipe, and polls checklists until they reach a condition.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/dyluth/tally/pkg/store"
)

// OutputFormat specifies how events are written.
type OutputFormat string

const (
	// OutputFormatDefault is one human-readable line per event
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON is line-delimited JSON
	OutputFormatJSON OutputFormat = "json"
)

// Filter narrows the stream. Zero values match everything.
type Filter struct {
	WorkspaceID string
	ChecklistID string
	Types       []fulfillment.EventType
}

func (f *Filter) matches(ev *fulfillment.Event) bool {
	if f == nil {
		return true
	}
	if f.WorkspaceID != "" && ev.WorkspaceID != f.WorkspaceID {
		return false
	}
	if f.ChecklistID != "" && ev.ChecklistID != f.ChecklistID {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if ev.Type == t {
			return true
		}
	}
	return false
}

// EventSource delivers events. *store.Subscription satisfies it.
type EventSource interface {
	Events() <-chan *fulfillment.Event
	Errors() <-chan error
}

// StreamEvents subscribes to the instance's events and writes them to w until
// ctx is cancelled.
func StreamEvents(ctx context.Context, client *store.Client, format OutputFormat, filter *Filter, w io.Writer) error {
	sub, err := client.SubscribeEvents(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	if format == OutputFormatDefault {
		fmt.Fprintf(w, "Watching events for instance '%s' (Ctrl+C to stop)\n\n", client.InstanceName())
	}
	return Stream(ctx, sub, format, filter, w)
}

// Stream writes events from src to w until ctx is cancelled or src closes.
// Malformed payloads reported by src are written as warnings and skipped.
func Stream(ctx context.Context, src EventSource, format OutputFormat, filter *Filter, w io.Writer) error {
	events, errs := src.Events(), src.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if format == OutputFormatDefault {
				fmt.Fprintf(w, "⚠️  %v\n", err)
			}

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !filter.matches(ev) {
				continue
			}
			if err := writeEvent(w, format, ev); err != nil {
				return err
			}
		}
	}
}

func writeEvent(w io.Writer, format OutputFormat, ev *fulfillment.Event) error {
	switch format {
	case OutputFormatJSON:
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	case OutputFormatDefault, "":
		_, err := fmt.Fprintf(w, "[%s] %s\n", formatClock(ev.AtMs), FormatEvent(ev))
		return err
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// RenderKind styles the error kind of rejected scans in the default format.
// The CLI swaps in coloured output.
var RenderKind = func(kind fulfillment.Kind) string { return string(kind) }

// FormatEvent renders an event as a single human-readable line without the timestamp.
func FormatEvent(ev *fulfillment.Event) string {
	cl := shortID(ev.ChecklistID)
	switch ev.Type {
	case fulfillment.EventWorkspaceCreated:
		return fmt.Sprintf("🗂️  Workspace opened: %s", shortID(ev.WorkspaceID))
	case fulfillment.EventWorkspaceClosed:
		return fmt.Sprintf("🗑️  Workspace closed: %s", shortID(ev.WorkspaceID))
	case fulfillment.EventChecklistCreated:
		return fmt.Sprintf("📋 Checklist created: %s in workspace %s", cl, shortID(ev.WorkspaceID))
	case fulfillment.EventChecklistRemoved:
		return fmt.Sprintf("🗑️  Checklist removed: %s", cl)
	case fulfillment.EventChecklistChanged:
		line := fmt.Sprintf("✏️  Checklist changed: %s %s", cl, ev.Action)
		if ev.UnitID != "" {
			line += " unit=" + ev.UnitID
		}
		if ev.Message != "" {
			line += " (" + ev.Message + ")"
		}
		return line
	case fulfillment.EventChecklistTransition:
		return fmt.Sprintf("🔁 Checklist %s: %s → %s by=%s", cl, ev.Action, ev.Status, orDash(ev.ActorID))
	case fulfillment.EventScanAccepted:
		return fmt.Sprintf("✅ Scan accepted: unit=%s checklist=%s by=%s", ev.UnitID, cl, orDash(ev.ActorID))
	case fulfillment.EventScanRejected:
		return fmt.Sprintf("❌ Scan rejected: %s checklist=%s by=%s: %s", RenderKind(ev.ErrorKind), orDash(cl), orDash(ev.ActorID), ev.Message)
	case fulfillment.EventModificationRequest:
		return fmt.Sprintf("✋ Modification requested: checklist=%s by=%s: %s", cl, orDash(ev.ActorID), ev.Message)
	case fulfillment.EventModificationResolved:
		return fmt.Sprintf("⚖️  Modification %s: checklist=%s by=%s (now %s)", resolvedVerb(ev.Action), cl, orDash(ev.ActorID), ev.Status)
	default:
		return fmt.Sprintf("• %s checklist=%s", ev.Type, orDash(cl))
	}
}

func resolvedVerb(action fulfillment.Action) string {
	if action == fulfillment.ActionApprove {
		return "approved"
	}
	return "rejected"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatClock(atMs int64) string {
	if atMs == 0 {
		return "--:--:--"
	}
	return time.UnixMilli(atMs).UTC().Format("15:04:05")
}
