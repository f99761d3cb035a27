// Package export renders a checklist into its transfer artifacts: the manifest
// (one line per item in position order), a per-grouping summary, and the
// payload printed into the shipment QR code.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/shopspring/decimal"
)

// QRVersion prefixes every QR payload so readers can reject unknown layouts.
const QRVersion = "TALLY1"

// ManifestLine is one item of the manifest.
type ManifestLine struct {
	Position     int             `json:"position"`
	ManifestCode string          `json:"manifest_code"`
	UnitID       string          `json:"unit_id"`
	Label        string          `json:"label"`
	Weight       decimal.Decimal `json:"weight"`
	Scanned      bool            `json:"scanned"`
}

// GroupSummary aggregates the items of one product grouping.
type GroupSummary struct {
	GroupingID     string          `json:"grouping_id"`
	Count          int             `json:"count"`
	TotalWeight    decimal.Decimal `json:"total_weight"`
	AverageQuality decimal.Decimal `json:"average_quality"`
}

// Export is the full transfer document for one checklist.
type Export struct {
	ChecklistID   string             `json:"checklist_id"`
	WorkspaceID   string             `json:"workspace_id"`
	CustomerID    string             `json:"customer_id"`
	Status        fulfillment.Status `json:"status"`
	Manifest      []ManifestLine     `json:"manifest"`
	Summary       []GroupSummary     `json:"summary"`
	TotalItems    int                `json:"total_items"`
	TotalWeight   decimal.Decimal    `json:"total_weight"`
	ScannedCount  int                `json:"scanned_count"`
	IsComplete    bool               `json:"is_complete"`
	QRPayload     string             `json:"qr_payload"`
	GeneratedAtMs int64              `json:"generated_at_ms"`
}

// Build produces the export of c. It fails with ExportValidation when the
// checklist is empty or an item has no manifest code. c is not modified.
func Build(c *fulfillment.Checklist, at time.Time) (*Export, error) {
	const op = "export"
	if c.TotalItems == 0 || len(c.Items) == 0 {
		return nil, fulfillment.NewError(fulfillment.KindExportValidation, op, "checklist %s has no items", c.ID)
	}

	items := make([]fulfillment.Item, len(c.Items))
	copy(items, c.Items)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })

	manifest := make([]ManifestLine, 0, len(items))
	groups := make(map[string]*groupAcc)
	for _, it := range items {
		if it.ManifestCode == "" {
			return nil, fulfillment.NewError(fulfillment.KindExportValidation, op,
				"item %s at position %d has no manifest code", it.UnitID, it.Position)
		}
		manifest = append(manifest, ManifestLine{
			Position:     it.Position,
			ManifestCode: it.ManifestCode,
			UnitID:       it.UnitID,
			Label:        it.Label,
			Weight:       it.Weight,
			Scanned:      it.Scanned,
		})

		g, ok := groups[it.GroupingID]
		if !ok {
			g = &groupAcc{weight: decimal.Zero, score: decimal.Zero}
			groups[it.GroupingID] = g
		}
		g.count++
		g.weight = g.weight.Add(it.Weight)
		g.score = g.score.Add(it.QualityScore)
	}

	progress := c.Progress()
	x := &Export{
		ChecklistID:   c.ID,
		WorkspaceID:   c.WorkspaceID,
		CustomerID:    c.CustomerID,
		Status:        c.Status,
		Manifest:      manifest,
		Summary:       summarize(groups),
		TotalItems:    c.TotalItems,
		TotalWeight:   c.TotalWeight,
		ScannedCount:  progress.ScannedCount,
		IsComplete:    progress.IsComplete,
		GeneratedAtMs: at.UnixMilli(),
	}
	x.QRPayload = qrPayload(x)
	return x, nil
}

type groupAcc struct {
	count  int
	weight decimal.Decimal
	score  decimal.Decimal
}

// summarize orders groups by grouping id. Average quality is rounded to two places.
func summarize(groups map[string]*groupAcc) []GroupSummary {
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]GroupSummary, 0, len(ids))
	for _, id := range ids {
		g := groups[id]
		out = append(out, GroupSummary{
			GroupingID:     id,
			Count:          g.count,
			TotalWeight:    g.weight,
			AverageQuality: g.score.Div(decimal.NewFromInt(int64(g.count))).Round(2),
		})
	}
	return out
}

// qrPayload packs the manifest as
// TALLY1|<checklist>|<customer>|<items>|<weight>|<code>,<code>,...
func qrPayload(x *Export) string {
	codes := make([]string, len(x.Manifest))
	for i, line := range x.Manifest {
		codes[i] = line.ManifestCode
	}
	return strings.Join([]string{
		QRVersion,
		x.ChecklistID,
		x.CustomerID,
		fmt.Sprintf("%d", x.TotalItems),
		x.TotalWeight.String(),
		strings.Join(codes, ","),
	}, "|")
}

// ManifestText returns the manifest as "<code> <label>" lines in position order.
func (x *Export) ManifestText() string {
	var b strings.Builder
	for _, line := range x.Manifest {
		fmt.Fprintf(&b, "%s %s\n", line.ManifestCode, line.Label)
	}
	return b.String()
}

// Render writes the human-readable document: header, manifest, then summary.
func (x *Export) Render(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Checklist %s  customer %s  status %s\n", x.ChecklistID, x.CustomerID, x.Status)
	fmt.Fprintf(&b, "Items %d  weight %s  scanned %d/%d\n\n", x.TotalItems, x.TotalWeight, x.ScannedCount, x.TotalItems)

	fmt.Fprintf(&b, "%-4s  %-18s  %-12s  %-24s  %10s  %s\n", "POS", "CODE", "UNIT", "LABEL", "WEIGHT", "SCANNED")
	for _, line := range x.Manifest {
		scanned := "no"
		if line.Scanned {
			scanned = "yes"
		}
		fmt.Fprintf(&b, "%-4d  %-18s  %-12s  %-24s  %10s  %s\n",
			line.Position, line.ManifestCode, line.UnitID, truncate(line.Label, 24), line.Weight, scanned)
	}

	fmt.Fprintf(&b, "\n%-16s  %5s  %12s  %11s\n", "GROUPING", "COUNT", "WEIGHT", "AVG QUALITY")
	for _, g := range x.Summary {
		fmt.Fprintf(&b, "%-16s  %5d  %12s  %11s\n", g.GroupingID, g.Count, g.TotalWeight, g.AverageQuality.StringFixed(2))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
