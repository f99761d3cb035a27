package fulfillment

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ManifestCodePrefix marks a scan code as a manifest code rather than a unit id or position.
const ManifestCodePrefix = "BL-"

// NewChecklist creates an empty checklist in draft.
func NewChecklist(id, workspaceID, customerID string, at time.Time) *Checklist {
	return &Checklist{
		ID:           id,
		WorkspaceID:  workspaceID,
		CustomerID:   customerID,
		Items:        []Item{},
		TotalWeight:  decimal.Zero,
		Status:       StatusDraft,
		NextPosition: 1,
		CreatedAtMs:  at.UnixMilli(),
	}
}

// ManifestCode derives the immutable label code for the item at position on checklist id.
func ManifestCode(checklistID string, position int) string {
	short := strings.ReplaceAll(checklistID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s%s-%04d", ManifestCodePrefix, strings.ToUpper(short), position)
}

// Validate checks the input shape and the quality gate for a new item.
func (in ItemInput) Validate() error {
	if in.Unit.ID == "" {
		return newError(KindValidation, "add_item", "unit id cannot be empty")
	}
	if in.Grouping.ID == "" {
		return newError(KindValidation, "add_item", "grouping id cannot be empty for unit %s", in.Unit.ID)
	}
	if in.Unit.Weight.IsNegative() {
		return newError(KindValidation, "add_item", "unit %s has negative weight %s", in.Unit.ID, in.Unit.Weight)
	}
	if !in.Quality.Approved {
		return newError(KindValidation, "add_item", "unit %s has not passed quality control", in.Unit.ID)
	}
	return nil
}

// HasUnit reports whether the checklist already contains unitID.
func (c *Checklist) HasUnit(unitID string) bool {
	return c.indexOfUnit(unitID) >= 0
}

func (c *Checklist) indexOfUnit(unitID string) int {
	for i := range c.Items {
		if c.Items[i].UnitID == unitID {
			return i
		}
	}
	return -1
}

// AddItem appends a unit in draft. Adding a unit that is already present is a no-op.
// Returns true if an item was added.
func (c *Checklist) AddItem(in ItemInput) (bool, error) {
	if c.Status != StatusDraft {
		return false, c.invalidState(ActionAddItem)
	}
	if err := in.Validate(); err != nil {
		return false, err
	}
	if c.HasUnit(in.Unit.ID) {
		return false, nil
	}

	label := in.Unit.Label
	if label == "" {
		label = strings.TrimSpace(fmt.Sprintf("%s %s", in.Grouping.Name, in.Unit.ID))
	}

	position := c.NextPosition
	c.NextPosition++
	c.Items = append(c.Items, Item{
		UnitID:       in.Unit.ID,
		GroupingID:   in.Grouping.ID,
		Label:        label,
		ManifestCode: ManifestCode(c.ID, position),
		Weight:       in.Unit.Weight,
		QualityGrade: in.Quality.Grade,
		QualityScore: in.Quality.Score,
		Position:     position,
	})
	c.recompute()
	return true, nil
}

// RemoveItem drops unitID in draft. Absence is silently ignored.
// Returns true if an item was removed.
func (c *Checklist) RemoveItem(unitID string) (bool, error) {
	if c.Status != StatusDraft {
		return false, c.invalidState(ActionRemoveItem)
	}
	i := c.indexOfUnit(unitID)
	if i < 0 {
		return false, nil
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	c.recompute()
	return true, nil
}

// Confirm moves a non-empty draft to confirmed.
func (c *Checklist) Confirm(actorID string, at time.Time) error {
	if c.Status != StatusDraft {
		return c.invalidState(ActionConfirm)
	}
	if c.TotalItems == 0 {
		return newError(KindEmptyChecklist, string(ActionConfirm), "checklist %s has no items", c.ID)
	}
	c.Status = StatusConfirmed
	c.ConfirmedBy = actorID
	c.ConfirmedAtMs = at.UnixMilli()
	return nil
}

// Lock freezes composition and opens the checklist for scanning.
func (c *Checklist) Lock(at time.Time) error {
	if c.Status != StatusConfirmed {
		return c.invalidState(ActionLock)
	}
	c.Status = StatusLocked
	c.LockedAtMs = at.UnixMilli()
	return nil
}

// ClearScans resets the scan fields of the named units. Only allowed in draft,
// i.e. after an approved modification request. Unknown unit ids are ignored.
// Returns the number of items whose scan state was cleared.
func (c *Checklist) ClearScans(unitIDs []string) (int, error) {
	if c.Status != StatusDraft {
		return 0, c.invalidState(ActionClearScans)
	}
	cleared := 0
	for _, id := range unitIDs {
		i := c.indexOfUnit(id)
		if i < 0 || !c.Items[i].Scanned {
			continue
		}
		c.Items[i].Scanned = false
		c.Items[i].ScannedAtMs = 0
		c.Items[i].ScannedBy = ""
		cleared++
	}
	return cleared, nil
}

// Progress derives scan progress from the item list.
func (c *Checklist) Progress() Progress {
	scanned := 0
	for i := range c.Items {
		if c.Items[i].Scanned {
			scanned++
		}
	}
	return Progress{
		ScannedCount: scanned,
		TotalItems:   c.TotalItems,
		IsComplete:   c.TotalItems > 0 && scanned == c.TotalItems,
	}
}

// Snapshot captures current counts.
func (c *Checklist) Snapshot() Snapshot {
	return Snapshot{
		TotalItems:   c.TotalItems,
		TotalWeight:  c.TotalWeight,
		ScannedCount: c.Progress().ScannedCount,
	}
}

// Clone returns a deep copy safe to hand to readers outside the checklist lock.
func (c *Checklist) Clone() *Checklist {
	cp := *c
	cp.Items = make([]Item, len(c.Items))
	copy(cp.Items, c.Items)
	if c.RequestSnapshot != nil {
		snap := *c.RequestSnapshot
		cp.RequestSnapshot = &snap
	}
	return &cp
}

// Validate checks structural invariants. Used when loading persisted checklists.
func (c *Checklist) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("checklist id cannot be empty")
	}
	if c.WorkspaceID == "" {
		return fmt.Errorf("checklist %s: workspace id cannot be empty", c.ID)
	}
	if err := c.Status.Validate(); err != nil {
		return fmt.Errorf("checklist %s: %w", c.ID, err)
	}
	seen := make(map[string]bool, len(c.Items))
	for _, it := range c.Items {
		if seen[it.UnitID] {
			return fmt.Errorf("checklist %s: duplicate unit %s", c.ID, it.UnitID)
		}
		seen[it.UnitID] = true
		if it.Position >= c.NextPosition {
			return fmt.Errorf("checklist %s: item %s position %d not below next position %d", c.ID, it.UnitID, it.Position, c.NextPosition)
		}
	}
	if c.TotalItems != len(c.Items) {
		return fmt.Errorf("checklist %s: total_items %d does not match %d items", c.ID, c.TotalItems, len(c.Items))
	}
	return nil
}

// recompute refreshes the derived aggregates. Called on every item mutation.
func (c *Checklist) recompute() {
	total := decimal.Zero
	for i := range c.Items {
		total = total.Add(c.Items[i].Weight)
	}
	c.TotalItems = len(c.Items)
	c.TotalWeight = total
}

func (c *Checklist) invalidState(action Action) *Error {
	return newError(KindInvalidState, string(action), "checklist %s is %s", c.ID, c.Status)
}
