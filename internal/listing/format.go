package listing

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/pkg/fulfillment"
)

// FormatTable writes checklists as a table with columns ID, STATUS, CUSTOMER,
// ITEMS, WEIGHT, SCANNED and AGE. Returns the number of rows written.
func FormatTable(w io.Writer, checklists []*fulfillment.Checklist, instanceName string) int {
	return formatTable(w, checklists, instanceName, time.Now())
}

func formatTable(w io.Writer, checklists []*fulfillment.Checklist, instanceName string, now time.Time) int {
	if len(checklists) == 0 {
		fmt.Fprintf(w, "No checklists found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Checklists for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-10s %-22s %-14s %5s %10s %-9s %s\n",
		"ID", "STATUS", "CUSTOMER", "ITEMS", "WEIGHT", "SCANNED", "AGE")
	fmt.Fprintf(w, "%-10s %-22s %-14s %5s %10s %-9s %s\n",
		"----------", "----------------------", "--------------", "-----", "----------", "---------", "--------")

	for _, c := range checklists {
		p := c.Progress()
		fmt.Fprintf(w, "%-10s %s %-14s %5d %10s %-9s %s\n",
			formatID(c.ID),
			printer.Status(c.Status, 22),
			truncate(c.CustomerID, 14),
			c.TotalItems,
			c.TotalWeight.String(),
			formatProgress(p),
			formatAge(c.CreatedAtMs, now),
		)
	}

	noun := "checklist"
	if len(checklists) != 1 {
		noun = "checklists"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(checklists), noun)

	return len(checklists)
}

// FormatJSONL writes one compact JSON object per line, for jq and friends.
func FormatJSONL(w io.Writer, checklists []*fulfillment.Checklist) error {
	for _, c := range checklists {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal checklist to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatJSON writes all checklists as one indented JSON array ([] when empty).
func FormatJSON(w io.Writer, checklists []*fulfillment.Checklist) error {
	if checklists == nil {
		checklists = []*fulfillment.Checklist{}
	}
	data, err := json.MarshalIndent(checklists, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checklists to JSON: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// FormatSingleJSON writes one checklist as pretty-printed JSON.
func FormatSingleJSON(w io.Writer, c *fulfillment.Checklist) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checklist to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// formatID truncates the id to its first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if s == "" {
		return "-"
	}
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}

// formatProgress shows scanned/total, with a trailing * once complete.
func formatProgress(p fulfillment.Progress) string {
	s := fmt.Sprintf("%d/%d", p.ScannedCount, p.TotalItems)
	if p.IsComplete {
		s += "*"
	}
	return s
}

// formatAge renders a creation timestamp as "2m ago", "1h ago" and so on.
func formatAge(timestampMs int64, now time.Time) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := now.Sub(time.UnixMilli(timestampMs))
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
