package engine

import (
	"context"
	"sort"

	"github.com/dyluth/tally/pkg/fulfillment"
)

// RequestModification opens a pending request to reopen a locked checklist.
// The customer label defaults to the owning workspace's label.
func (e *Engine) RequestModification(ctx context.Context, checklistID string, in fulfillment.RequestInput) (*fulfillment.ModificationRequest, error) {
	const op = "request_modification"
	ce, err := e.checklistEntry(op, checklistID)
	if err != nil {
		return nil, err
	}
	workspaceID := ce.cl.WorkspaceID
	if in.CustomerLabel == "" {
		if w, err := e.Workspace(workspaceID); err == nil {
			in.CustomerLabel = w.CustomerLabel
		}
	}

	var re *requestEntry
	var reqSnap *fulfillment.ModificationRequest
	ch, err := e.mutateChecklist(op, checklistID, func(c *fulfillment.Checklist) (bool, error) {
		req, err := c.RequestModification(e.newID(), in, e.now())
		if err != nil {
			return false, err
		}
		re = &requestEntry{req: req, seq: 1}
		reqSnap = req.Clone()
		e.mu.Lock()
		e.requests[req.ID] = re
		e.mu.Unlock()
		return true, nil
	})
	if err != nil {
		e.logRejected(op, checklistID, err)
		return nil, err
	}

	persistErr := e.save(ctx, ch)
	reqErr := e.saveRequest(ctx, re, reqSnap, 1)
	wsErr := e.afterChecklistChange(ctx, op, workspaceID, checklistID,
		fulfillment.NotifyWarning, "Modification requested by %s: %s", reqSnap.RequesterID, reqSnap.Reason)

	e.logEvent("modification_requested", "info", map[string]interface{}{
		"checklist_id": checklistID,
		"request_id":   reqSnap.ID,
		"requester_id": reqSnap.RequesterID,
	})
	e.publish(ctx, fulfillment.Event{
		Type:        fulfillment.EventModificationRequest,
		WorkspaceID: workspaceID,
		ChecklistID: checklistID,
		RequestID:   reqSnap.ID,
		Action:      fulfillment.ActionRequestModification,
		Status:      string(ch.snap.Status),
		ActorID:     reqSnap.RequesterID,
		Message:     reqSnap.Reason,
	})

	return reqSnap, e.finish(op, persistErr, reqErr, wsErr)
}

// ResolveModification applies the reviewer's decision. The reviewer must pass the
// Authorizer for approve or reject. Resolving an already resolved request is a
// no-op that returns the request unchanged.
func (e *Engine) ResolveModification(ctx context.Context, requestID string, approve bool, reviewerID, note string) (*fulfillment.ModificationRequest, error) {
	const op = "resolve_modification"
	action := fulfillment.ActionReject
	if approve {
		action = fulfillment.ActionApprove
	}

	e.mu.RLock()
	re, ok := e.requests[requestID]
	e.mu.RUnlock()
	if !ok {
		return nil, fulfillment.NewError(fulfillment.KindNotFound, op, "modification request %s not found", requestID)
	}
	checklistID := re.req.ChecklistID

	if err := e.authorizer.Authorize(reviewerID, action); err != nil {
		e.logRejected(op, checklistID, err)
		return nil, err
	}

	var reqSnap *fulfillment.ModificationRequest
	var reqSeq uint64
	ch, err := e.mutateChecklist(op, checklistID, func(c *fulfillment.Checklist) (bool, error) {
		changed, err := c.ResolveModification(re.req, approve, reviewerID, note, e.now())
		if err != nil {
			return false, err
		}
		if changed {
			re.seq++
		}
		reqSnap, reqSeq = re.req.Clone(), re.seq
		return changed, nil
	})
	if err != nil {
		e.logRejected(op, checklistID, err)
		return nil, err
	}
	if !ch.changed {
		return reqSnap, nil
	}

	persistErr := e.save(ctx, ch)
	reqErr := e.saveRequest(ctx, re, reqSnap, reqSeq)

	kind, msg := fulfillment.NotifySuccess, "Modification approved by %s; checklist reopened"
	if !approve {
		kind, msg = fulfillment.NotifyError, "Modification rejected by %s; checklist stays locked"
	}
	wsErr := e.afterChecklistChange(ctx, op, ch.snap.WorkspaceID, checklistID, kind, msg, reviewerID)

	e.logEvent("modification_resolved", "info", map[string]interface{}{
		"checklist_id": checklistID,
		"request_id":   requestID,
		"reviewer_id":  reviewerID,
		"outcome":      string(reqSnap.Status),
	})
	e.publish(ctx, fulfillment.Event{
		Type:        fulfillment.EventModificationResolved,
		WorkspaceID: ch.snap.WorkspaceID,
		ChecklistID: checklistID,
		RequestID:   requestID,
		Action:      action,
		Status:      string(ch.snap.Status),
		ActorID:     reviewerID,
		Message:     note,
	})

	return reqSnap, e.finish(op, persistErr, reqErr, wsErr)
}

// ModificationRequest returns a copy of one request.
func (e *Engine) ModificationRequest(requestID string) (*fulfillment.ModificationRequest, error) {
	const op = "get_modification"
	e.mu.RLock()
	re, ok := e.requests[requestID]
	e.mu.RUnlock()
	if !ok {
		return nil, fulfillment.NewError(fulfillment.KindNotFound, op, "modification request %s not found", requestID)
	}

	ce, err := e.checklistEntry(op, re.req.ChecklistID)
	if err != nil {
		return nil, err
	}
	return ce.requestSnapshot(re), nil
}

// ModificationRequests returns copies of a checklist's requests, oldest first.
func (e *Engine) ModificationRequests(checklistID string) ([]*fulfillment.ModificationRequest, error) {
	ce, err := e.checklistEntry("list_modifications", checklistID)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	var entries []*requestEntry
	for _, re := range e.requests {
		if re.req.ChecklistID == checklistID {
			entries = append(entries, re)
		}
	}
	e.mu.RUnlock()

	out := make([]*fulfillment.ModificationRequest, 0, len(entries))
	for _, re := range entries {
		out = append(out, ce.requestSnapshot(re))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtMs != out[j].CreatedAtMs {
			return out[i].CreatedAtMs < out[j].CreatedAtMs
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// requestSnapshot copies re under the owning checklist's lock.
func (ce *checklistEntry) requestSnapshot(re *requestEntry) *fulfillment.ModificationRequest {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	return re.req.Clone()
}
