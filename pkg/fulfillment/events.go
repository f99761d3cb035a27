package fulfillment

// EventType names a published state change.
type EventType string

const (
	EventWorkspaceCreated     EventType = "workspace_created"
	EventWorkspaceClosed      EventType = "workspace_closed"
	EventChecklistCreated     EventType = "checklist_created"
	EventChecklistRemoved     EventType = "checklist_removed"
	EventChecklistChanged     EventType = "checklist_changed"
	EventChecklistTransition  EventType = "checklist_transition"
	EventScanAccepted         EventType = "scan_accepted"
	EventScanRejected         EventType = "scan_rejected"
	EventModificationRequest  EventType = "modification_requested"
	EventModificationResolved EventType = "modification_resolved"
)

// Event is the message published after every successful mutation and every
// rejected scan. It is informational; the store remains the source of truth.
type Event struct {
	Type        EventType `json:"type"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	ChecklistID string    `json:"checklist_id,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	UnitID      string    `json:"unit_id,omitempty"`
	Action      Action    `json:"action,omitempty"`
	Status      string    `json:"status,omitempty"`
	ActorID     string    `json:"actor_id,omitempty"`
	ErrorKind   Kind      `json:"error_kind,omitempty"`
	Message     string    `json:"message,omitempty"`
	AtMs        int64     `json:"at_ms"`
}
