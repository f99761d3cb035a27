package fulfillment

import (
	"fmt"
	"strings"
	"time"
)

// RequestStatus is the lifecycle state of a modification request.
// approved and rejected are terminal.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// Validate checks if the RequestStatus is a valid enum value.
func (s RequestStatus) Validate() error {
	switch s {
	case RequestPending, RequestApproved, RequestRejected:
		return nil
	default:
		return fmt.Errorf("unknown request status: %q", s)
	}
}

// ModificationRequest asks to reopen a locked checklist for composition changes.
// At most one pending request exists per checklist.
type ModificationRequest struct {
	ID            string        `json:"id"`
	ChecklistID   string        `json:"checklist_id"`
	WorkspaceID   string        `json:"workspace_id"`
	RequesterID   string        `json:"requester_id"`
	RequesterRole string        `json:"requester_role,omitempty"`
	CustomerLabel string        `json:"customer_label,omitempty"`
	Reason        string        `json:"reason"`
	Status        RequestStatus `json:"status"`
	ReviewerID    string        `json:"reviewer_id,omitempty"`
	ReviewNote    string        `json:"review_note,omitempty"`
	CreatedAtMs   int64         `json:"created_at_ms"`
	ReviewedAtMs  int64         `json:"reviewed_at_ms,omitempty"`
	Snapshot      Snapshot      `json:"snapshot"`
}

// RequestInput carries the caller-supplied fields of a new request.
type RequestInput struct {
	RequesterID   string `json:"requester_id"`
	RequesterRole string `json:"requester_role,omitempty"`
	CustomerLabel string `json:"customer_label,omitempty"`
	Reason        string `json:"reason"`
}

// Clone returns a copy of the request.
func (r *ModificationRequest) Clone() *ModificationRequest {
	cp := *r
	return &cp
}

// Terminal reports whether the request has been resolved.
func (r *ModificationRequest) Terminal() bool {
	return r.Status == RequestApproved || r.Status == RequestRejected
}

// RequestModification moves a locked checklist to modification_requested and
// returns the new pending request. A second request while one is pending fails
// with DuplicateRequest regardless of state.
func (c *Checklist) RequestModification(requestID string, in RequestInput, at time.Time) (*ModificationRequest, error) {
	op := string(ActionRequestModification)
	if c.PendingRequestID != "" {
		return nil, newError(KindDuplicateRequest, op, "checklist %s already has pending request %s", c.ID, c.PendingRequestID)
	}
	if c.Status != StatusLocked {
		return nil, c.invalidState(ActionRequestModification)
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, newError(KindValidation, op, "modification reason cannot be empty")
	}
	if in.RequesterID == "" {
		return nil, newError(KindValidation, op, "requester id cannot be empty")
	}

	snap := c.Snapshot()
	c.Status = StatusModificationRequested
	c.ModificationReason = reason
	c.ModificationRequestedAtMs = at.UnixMilli()
	c.PendingRequestID = requestID
	c.RequestSnapshot = &snap

	return &ModificationRequest{
		ID:            requestID,
		ChecklistID:   c.ID,
		WorkspaceID:   c.WorkspaceID,
		RequesterID:   in.RequesterID,
		RequesterRole: in.RequesterRole,
		CustomerLabel: in.CustomerLabel,
		Reason:        reason,
		Status:        RequestPending,
		CreatedAtMs:   at.UnixMilli(),
		Snapshot:      snap,
	}, nil
}

// ResolveModification applies exactly one terminal outcome to req. Approval returns
// the checklist to draft, rejection returns it to locked; recorded scans survive both.
// Resolving an already-resolved request is a no-op and reports false.
func (c *Checklist) ResolveModification(req *ModificationRequest, approve bool, reviewerID, note string, at time.Time) (bool, error) {
	action := ActionReject
	if approve {
		action = ActionApprove
	}
	if req.Terminal() {
		return false, nil
	}
	if req.ChecklistID != c.ID {
		return false, newError(KindValidation, string(action), "request %s belongs to checklist %s, not %s", req.ID, req.ChecklistID, c.ID)
	}
	if c.Status != StatusModificationRequested || c.PendingRequestID != req.ID {
		return false, c.invalidState(action)
	}
	if reviewerID == "" {
		return false, newError(KindValidation, string(action), "reviewer id cannot be empty")
	}

	if approve {
		c.Status = StatusDraft
		req.Status = RequestApproved
	} else {
		c.Status = StatusLocked
		req.Status = RequestRejected
	}
	c.ModificationReason = ""
	c.PendingRequestID = ""
	c.RequestSnapshot = nil

	req.ReviewerID = reviewerID
	req.ReviewNote = note
	req.ReviewedAtMs = at.UnixMilli()
	return true, nil
}
