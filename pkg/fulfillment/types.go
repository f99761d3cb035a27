package fulfillment

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a checklist.
// draft → confirmed → locked → modification_requested → draft (approval) or locked (rejection).
type Status string

const (
	// StatusDraft is the only state in which items may be added or removed.
	StatusDraft Status = "draft"

	// StatusConfirmed means composition is agreed but scanning has not started.
	StatusConfirmed Status = "confirmed"

	// StatusLocked is the only state in which scans may be recorded.
	StatusLocked Status = "locked"

	// StatusModificationRequested freezes the checklist until an administrator resolves the request.
	StatusModificationRequested Status = "modification_requested"
)

// Statuses lists every lifecycle state in transition order.
var Statuses = []Status{StatusDraft, StatusConfirmed, StatusLocked, StatusModificationRequested}

// Validate checks if the Status is a valid enum value.
func (s Status) Validate() error {
	switch s {
	case StatusDraft, StatusConfirmed, StatusLocked, StatusModificationRequested:
		return nil
	default:
		return fmt.Errorf("unknown checklist status: %q", s)
	}
}

// Scanning reports whether scans may be recorded in this state.
func (s Status) Scanning() bool {
	return s == StatusLocked
}

// Frozen reports whether the checklist occupies a workspace's scanning slot.
func (s Status) Frozen() bool {
	return s == StatusLocked || s == StatusModificationRequested
}

// Action names an operation on a checklist, used by the transition endpoint and in events.
type Action string

const (
	ActionAddItem             Action = "add_item"
	ActionRemoveItem          Action = "remove_item"
	ActionConfirm             Action = "confirm"
	ActionLock                Action = "lock"
	ActionRequestModification Action = "request_modification"
	ActionApprove             Action = "approve"
	ActionReject              Action = "reject"
	ActionScan                Action = "scan"
	ActionClearScans          Action = "clear_scans"
)

// Unit is an inventory unit (a bale) as supplied by the inventory collaborator.
type Unit struct {
	ID     string          `json:"id" yaml:"id"`
	Label  string          `json:"label,omitempty" yaml:"label,omitempty"`
	Weight decimal.Decimal `json:"weight" yaml:"weight"`
}

// Grouping is the product grouping ("marka") a unit belongs to.
type Grouping struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// QualityResult is the outcome of quality control for one unit.
type QualityResult struct {
	Grade    string          `json:"grade" yaml:"grade"`
	Score    decimal.Decimal `json:"score" yaml:"score"`
	Approved bool            `json:"approved" yaml:"approved"`
}

// ItemInput bundles the three inputs needed to add an item to a checklist.
type ItemInput struct {
	Unit     Unit          `json:"unit"`
	Grouping Grouping      `json:"grouping"`
	Quality  QualityResult `json:"quality"`
}

// Item is one inventory unit slated for shipment on a checklist.
// Scan fields are mutated only by scan reconciliation or an explicit ClearScans.
type Item struct {
	UnitID       string          `json:"unit_id"`
	GroupingID   string          `json:"grouping_id"`
	Label        string          `json:"label"`
	ManifestCode string          `json:"manifest_code"` // Assigned once at insertion, never changed
	Weight       decimal.Decimal `json:"weight"`
	QualityGrade string          `json:"quality_grade"`
	QualityScore decimal.Decimal `json:"quality_score"`
	Position     int             `json:"position"` // 1-based, never reused after removal
	Scanned      bool            `json:"scanned"`
	ScannedAtMs  int64           `json:"scanned_at_ms,omitempty"`
	ScannedBy    string          `json:"scanned_by,omitempty"`
}

// Snapshot captures checklist counts at a point in time for audit.
type Snapshot struct {
	TotalItems   int             `json:"total_items"`
	TotalWeight  decimal.Decimal `json:"total_weight"`
	ScannedCount int             `json:"scanned_count"`
}

// Progress is derived from items on every read and never stored.
type Progress struct {
	ScannedCount int  `json:"scanned_count"`
	TotalItems   int  `json:"total_items"`
	IsComplete   bool `json:"is_complete"`
}

// Checklist lists the inventory units slated for one customer shipment.
type Checklist struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	CustomerID  string          `json:"customer_id"`
	Items       []Item          `json:"items"`
	TotalItems  int             `json:"total_items"`  // Always len(Items)
	TotalWeight decimal.Decimal `json:"total_weight"` // Always sum of item weights
	Status      Status          `json:"status"`

	NextPosition int `json:"next_position"`

	CreatedAtMs               int64  `json:"created_at_ms"`
	ConfirmedAtMs             int64  `json:"confirmed_at_ms,omitempty"`
	ConfirmedBy               string `json:"confirmed_by,omitempty"`
	LockedAtMs                int64  `json:"locked_at_ms,omitempty"`
	ModificationRequestedAtMs int64  `json:"modification_requested_at_ms,omitempty"`

	// Present only while Status == StatusModificationRequested.
	ModificationReason string    `json:"modification_reason,omitempty"`
	PendingRequestID   string    `json:"pending_request_id,omitempty"`
	RequestSnapshot    *Snapshot `json:"request_snapshot,omitempty"`
}
