package fulfillment

import "fmt"

// Step is the UI step a workspace is on.
type Step string

const (
	StepToys      Step = "toys"
	StepChecklist Step = "checklist"
	StepScanning  Step = "scanning"
	StepShipment  Step = "shipment"
)

// Validate checks if the Step is a valid enum value.
func (s Step) Validate() error {
	switch s {
	case StepToys, StepChecklist, StepScanning, StepShipment:
		return nil
	default:
		return fmt.Errorf("unknown workspace step: %q", s)
	}
}

// DefaultNotificationLimit bounds each workspace's notification feed.
const DefaultNotificationLimit = 50

// NotificationKind is the severity tag of a notification.
type NotificationKind string

const (
	NotifyInfo    NotificationKind = "info"
	NotifySuccess NotificationKind = "success"
	NotifyWarning NotificationKind = "warning"
	NotifyError   NotificationKind = "error"
)

// Notification is one entry in a workspace feed.
type Notification struct {
	ID          string           `json:"id"`
	Kind        NotificationKind `json:"kind"`
	Message     string           `json:"message"`
	ChecklistID string           `json:"checklist_id,omitempty"`
	Read        bool             `json:"read"`
	CreatedAtMs int64            `json:"created_at_ms"`
}

// Workspace is an isolated session scoped to one customer.
type Workspace struct {
	ID                string         `json:"id"`
	CustomerID        string         `json:"customer_id"`
	CustomerLabel     string         `json:"customer_label,omitempty"`
	ChecklistIDs      []string       `json:"checklist_ids"`
	ActiveChecklistID string         `json:"active_checklist_id,omitempty"`
	Step              Step           `json:"step"`
	StatusTag         string         `json:"status_tag,omitempty"`
	Selection         []string       `json:"selection"`
	Notifications     []Notification `json:"notifications"` // Oldest first
	UnreadCount       int            `json:"unread_count"`  // Always the number of unread notifications
	CompletedScans    []string       `json:"completed_scans"`
	CreatedAtMs       int64          `json:"created_at_ms"`
}

// NewWorkspace allocates an empty workspace in the toys step.
func NewWorkspace(id, customerID, customerLabel string, createdAtMs int64) *Workspace {
	return &Workspace{
		ID:             id,
		CustomerID:     customerID,
		CustomerLabel:  customerLabel,
		ChecklistIDs:   []string{},
		Step:           StepToys,
		Selection:      []string{},
		Notifications:  []Notification{},
		CompletedScans: []string{},
		CreatedAtMs:    createdAtMs,
	}
}

// Clone returns a deep copy.
func (w *Workspace) Clone() *Workspace {
	cp := *w
	cp.ChecklistIDs = append([]string{}, w.ChecklistIDs...)
	cp.Selection = append([]string{}, w.Selection...)
	cp.Notifications = append([]Notification{}, w.Notifications...)
	cp.CompletedScans = append([]string{}, w.CompletedScans...)
	return &cp
}

// Owns reports whether checklistID belongs to this workspace.
func (w *Workspace) Owns(checklistID string) bool {
	for _, id := range w.ChecklistIDs {
		if id == checklistID {
			return true
		}
	}
	return false
}

// SetSelection replaces the selected-but-uncommitted unit ids, dropping blanks and duplicates.
func (w *Workspace) SetSelection(unitIDs []string) {
	seen := make(map[string]bool, len(unitIDs))
	sel := make([]string, 0, len(unitIDs))
	for _, id := range unitIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		sel = append(sel, id)
	}
	w.Selection = sel
}

// DetachChecklist forgets checklistID and repoints the active checklist if needed.
func (w *Workspace) DetachChecklist(checklistID string) {
	ids := w.ChecklistIDs[:0]
	for _, id := range w.ChecklistIDs {
		if id != checklistID {
			ids = append(ids, id)
		}
	}
	w.ChecklistIDs = ids
	if w.ActiveChecklistID == checklistID {
		w.ActiveChecklistID = ""
		if len(ids) > 0 {
			w.ActiveChecklistID = ids[len(ids)-1]
		}
	}
}

// RecordScan appends unitID to the completed scans of this workspace.
func (w *Workspace) RecordScan(unitID string) {
	w.CompletedScans = append(w.CompletedScans, unitID)
}

// Notify appends a notification, evicting the oldest once limit is reached.
func (w *Workspace) Notify(n Notification, limit int) {
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	n.Read = false
	w.Notifications = append(w.Notifications, n)
	if over := len(w.Notifications) - limit; over > 0 {
		w.Notifications = append([]Notification{}, w.Notifications[over:]...)
	}
	w.recountUnread()
}

// MarkRead marks one notification read. Returns false if id is unknown.
func (w *Workspace) MarkRead(id string) bool {
	for i := range w.Notifications {
		if w.Notifications[i].ID == id {
			w.Notifications[i].Read = true
			w.recountUnread()
			return true
		}
	}
	return false
}

// MarkAllRead marks every notification read.
func (w *Workspace) MarkAllRead() {
	for i := range w.Notifications {
		w.Notifications[i].Read = true
	}
	w.UnreadCount = 0
}

// ClearNotifications empties the feed.
func (w *Workspace) ClearNotifications() {
	w.Notifications = []Notification{}
	w.UnreadCount = 0
}

// recountUnread keeps UnreadCount equal to the unread entries, including after
// the ring evicts an unread notification.
func (w *Workspace) recountUnread() {
	unread := 0
	for i := range w.Notifications {
		if !w.Notifications[i].Read {
			unread++
		}
	}
	w.UnreadCount = unread
}
