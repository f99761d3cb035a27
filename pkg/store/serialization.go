package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/shopspring/decimal"
)

// Serialization helpers for converting between domain structs and Redis hashes
//
// Scalar fields get their own hash field; lists and nested structs are JSON-encoded
// into a single field. Decimals are stored in their exact string form.

// ChecklistToHash converts a Checklist to a Redis hash.
func ChecklistToHash(c *fulfillment.Checklist) (map[string]interface{}, error) {
	items := c.Items
	if items == nil {
		items = []fulfillment.Item{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal items: %w", err)
	}

	snapshot := ""
	if c.RequestSnapshot != nil {
		snapJSON, err := json.Marshal(c.RequestSnapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request_snapshot: %w", err)
		}
		snapshot = string(snapJSON)
	}

	return map[string]interface{}{
		"id":                           c.ID,
		"workspace_id":                 c.WorkspaceID,
		"customer_id":                  c.CustomerID,
		"status":                       string(c.Status),
		"items":                        string(itemsJSON),
		"total_items":                  c.TotalItems,
		"total_weight":                 c.TotalWeight.String(),
		"next_position":                c.NextPosition,
		"created_at_ms":                c.CreatedAtMs,
		"confirmed_at_ms":              c.ConfirmedAtMs,
		"confirmed_by":                 c.ConfirmedBy,
		"locked_at_ms":                 c.LockedAtMs,
		"modification_requested_at_ms": c.ModificationRequestedAtMs,
		"modification_reason":          c.ModificationReason,
		"pending_request_id":           c.PendingRequestID,
		"request_snapshot":             snapshot,
	}, nil
}

// HashToChecklist converts a Redis hash back to a Checklist.
func HashToChecklist(hash map[string]string) (*fulfillment.Checklist, error) {
	var items []fulfillment.Item
	if raw := hash["items"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal items: %w", err)
		}
	}
	if items == nil {
		items = []fulfillment.Item{}
	}

	totalItems, err := strconv.Atoi(hash["total_items"])
	if err != nil {
		return nil, fmt.Errorf("invalid total_items field: %w", err)
	}

	totalWeight, err := decimal.NewFromString(hash["total_weight"])
	if err != nil {
		return nil, fmt.Errorf("invalid total_weight field: %w", err)
	}

	nextPosition, err := strconv.Atoi(hash["next_position"])
	if err != nil {
		return nil, fmt.Errorf("invalid next_position field: %w", err)
	}

	var snapshot *fulfillment.Snapshot
	if raw := hash["request_snapshot"]; raw != "" {
		snapshot = &fulfillment.Snapshot{}
		if err := json.Unmarshal([]byte(raw), snapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal request_snapshot: %w", err)
		}
	}

	return &fulfillment.Checklist{
		ID:                        hash["id"],
		WorkspaceID:               hash["workspace_id"],
		CustomerID:                hash["customer_id"],
		Items:                     items,
		TotalItems:                totalItems,
		TotalWeight:               totalWeight,
		Status:                    fulfillment.Status(hash["status"]),
		NextPosition:              nextPosition,
		CreatedAtMs:               parseMs(hash["created_at_ms"]),
		ConfirmedAtMs:             parseMs(hash["confirmed_at_ms"]),
		ConfirmedBy:               hash["confirmed_by"],
		LockedAtMs:                parseMs(hash["locked_at_ms"]),
		ModificationRequestedAtMs: parseMs(hash["modification_requested_at_ms"]),
		ModificationReason:        hash["modification_reason"],
		PendingRequestID:          hash["pending_request_id"],
		RequestSnapshot:           snapshot,
	}, nil
}

// WorkspaceToHash converts a Workspace to a Redis hash.
func WorkspaceToHash(w *fulfillment.Workspace) (map[string]interface{}, error) {
	fields := map[string]interface{}{
		"checklist_ids":   w.ChecklistIDs,
		"selection":       w.Selection,
		"notifications":   w.Notifications,
		"completed_scans": w.CompletedScans,
	}
	hash := map[string]interface{}{
		"id":                  w.ID,
		"customer_id":         w.CustomerID,
		"customer_label":      w.CustomerLabel,
		"active_checklist_id": w.ActiveChecklistID,
		"step":                string(w.Step),
		"status_tag":          w.StatusTag,
		"unread_count":        w.UnreadCount,
		"created_at_ms":       w.CreatedAtMs,
	}
	for name, v := range fields {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", name, err)
		}
		hash[name] = string(data)
	}
	return hash, nil
}

// HashToWorkspace converts a Redis hash back to a Workspace.
func HashToWorkspace(hash map[string]string) (*fulfillment.Workspace, error) {
	w := fulfillment.NewWorkspace(hash["id"], hash["customer_id"], hash["customer_label"], parseMs(hash["created_at_ms"]))
	w.ActiveChecklistID = hash["active_checklist_id"]
	w.Step = fulfillment.Step(hash["step"])
	w.StatusTag = hash["status_tag"]

	unread, err := strconv.Atoi(hash["unread_count"])
	if err != nil {
		return nil, fmt.Errorf("invalid unread_count field: %w", err)
	}
	w.UnreadCount = unread

	targets := []struct {
		name string
		dst  interface{}
	}{
		{"checklist_ids", &w.ChecklistIDs},
		{"selection", &w.Selection},
		{"notifications", &w.Notifications},
		{"completed_scans", &w.CompletedScans},
	}
	for _, t := range targets {
		raw := hash[t.name]
		if raw == "" || raw == "null" {
			continue
		}
		if err := json.Unmarshal([]byte(raw), t.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", t.name, err)
		}
	}
	return w, nil
}

// ModificationToHash converts a ModificationRequest to a Redis hash.
func ModificationToHash(r *fulfillment.ModificationRequest) (map[string]interface{}, error) {
	snapJSON, err := json.Marshal(r.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return map[string]interface{}{
		"id":             r.ID,
		"checklist_id":   r.ChecklistID,
		"workspace_id":   r.WorkspaceID,
		"requester_id":   r.RequesterID,
		"requester_role": r.RequesterRole,
		"customer_label": r.CustomerLabel,
		"reason":         r.Reason,
		"status":         string(r.Status),
		"reviewer_id":    r.ReviewerID,
		"review_note":    r.ReviewNote,
		"created_at_ms":  r.CreatedAtMs,
		"reviewed_at_ms": r.ReviewedAtMs,
		"snapshot":       string(snapJSON),
	}, nil
}

// HashToModification converts a Redis hash back to a ModificationRequest.
func HashToModification(hash map[string]string) (*fulfillment.ModificationRequest, error) {
	var snap fulfillment.Snapshot
	if raw := hash["snapshot"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
	}

	status := fulfillment.RequestStatus(hash["status"])
	if err := status.Validate(); err != nil {
		return nil, err
	}

	return &fulfillment.ModificationRequest{
		ID:            hash["id"],
		ChecklistID:   hash["checklist_id"],
		WorkspaceID:   hash["workspace_id"],
		RequesterID:   hash["requester_id"],
		RequesterRole: hash["requester_role"],
		CustomerLabel: hash["customer_label"],
		Reason:        hash["reason"],
		Status:        status,
		ReviewerID:    hash["reviewer_id"],
		ReviewNote:    hash["review_note"],
		CreatedAtMs:   parseMs(hash["created_at_ms"]),
		ReviewedAtMs:  parseMs(hash["reviewed_at_ms"]),
		Snapshot:      snap,
	}, nil
}

// parseMs reads an optional millisecond timestamp; missing or malformed values are zero.
func parseMs(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
