package engine

import (
	"context"
	"strings"

	"github.com/dyluth/tally/pkg/fulfillment"
)

// deleted is the write sequence used for removals; no later snapshot can overwrite it.
const deleted = ^uint64(0)

// CreateWorkspace allocates an empty workspace in step toys for a customer.
// The first workspace created becomes the active one.
func (e *Engine) CreateWorkspace(ctx context.Context, customerID, customerLabel string) (*fulfillment.Workspace, error) {
	const op = "create_workspace"
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fulfillment.NewError(fulfillment.KindValidation, op, "customer id cannot be empty")
	}

	w := fulfillment.NewWorkspace(e.newID(), customerID, strings.TrimSpace(customerLabel), e.now().UnixMilli())
	entry := &workspaceEntry{ws: w, seq: 1}
	snap := w.Clone()

	e.mu.Lock()
	e.workspaces[w.ID] = entry
	if e.activeWorkspaceID == "" {
		e.activeWorkspaceID = w.ID
	}
	e.mu.Unlock()

	persistErr := e.saveWorkspace(ctx, entry, snap, 1)

	e.logEvent("workspace_created", "info", map[string]interface{}{
		"workspace_id": w.ID,
		"customer_id":  customerID,
	})
	e.publish(ctx, fulfillment.Event{Type: fulfillment.EventWorkspaceCreated, WorkspaceID: w.ID})

	return snap, e.finish(op, persistErr)
}

// CloseWorkspace removes a workspace with all its checklists and notifications.
// If it was the active workspace the oldest remaining one becomes active.
// Other workspaces are never touched. Modification requests stay persisted for audit.
func (e *Engine) CloseWorkspace(ctx context.Context, workspaceID string) error {
	const op = "close_workspace"
	entry, err := e.lockWorkspace(op, workspaceID)
	if err != nil {
		return err
	}

	entry.removed = true
	checklistIDs := append([]string{}, entry.ws.ChecklistIDs...)

	type removedChecklist struct {
		entry *checklistEntry
		id    string
		units []string
	}
	var removed []removedChecklist
	for _, id := range checklistIDs {
		e.mu.RLock()
		ce, ok := e.checklists[id]
		e.mu.RUnlock()
		if !ok {
			continue
		}
		ce.mu.Lock()
		ce.removed = true
		units := unitIDs(ce.cl)
		ce.mu.Unlock()
		removed = append(removed, removedChecklist{entry: ce, id: id, units: units})
	}
	entry.mu.Unlock()

	e.mu.Lock()
	delete(e.workspaces, workspaceID)
	for _, rc := range removed {
		delete(e.checklists, rc.id)
	}
	for id, re := range e.requests {
		for _, rc := range removed {
			if re.req.ChecklistID == rc.id {
				delete(e.requests, id)
				break
			}
		}
	}
	if e.activeWorkspaceID == workspaceID {
		e.activeWorkspaceID = e.oldestWorkspaceLocked()
	}
	e.mu.Unlock()

	var errs []error
	for _, rc := range removed {
		id := rc.id
		errs = append(errs, rc.entry.write(deleted, func() error { return e.persister.DeleteChecklist(ctx, id) }))
	}
	errs = append(errs, entry.write(deleted, func() error { return e.persister.DeleteWorkspace(ctx, workspaceID) }))
	for _, rc := range removed {
		e.release(ctx, rc.id, rc.units)
	}

	e.logEvent("workspace_closed", "info", map[string]interface{}{
		"workspace_id": workspaceID,
		"checklists":   len(removed),
	})
	e.publish(ctx, fulfillment.Event{Type: fulfillment.EventWorkspaceClosed, WorkspaceID: workspaceID})

	return e.finish(op, errs...)
}

// oldestWorkspaceLocked returns the id of the oldest registered workspace. Caller holds e.mu.
func (e *Engine) oldestWorkspaceLocked() string {
	var best *fulfillment.Workspace
	for _, entry := range e.workspaces {
		w := entry.ws
		if best == nil || w.CreatedAtMs < best.CreatedAtMs || (w.CreatedAtMs == best.CreatedAtMs && w.ID < best.ID) {
			best = w
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}

// ActiveWorkspace returns the id of the active workspace, or "" when there is none.
func (e *Engine) ActiveWorkspace() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.activeWorkspaceID
}

// SetActiveWorkspace points the active workspace at workspaceID.
func (e *Engine) SetActiveWorkspace(workspaceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.workspaces[workspaceID]; !ok {
		return fulfillment.NewError(fulfillment.KindNotFound, "set_active_workspace", "workspace %s not found", workspaceID)
	}
	e.activeWorkspaceID = workspaceID
	return nil
}

// Workspace returns a copy of one workspace.
func (e *Engine) Workspace(workspaceID string) (*fulfillment.Workspace, error) {
	entry, err := e.lockWorkspace("get_workspace", workspaceID)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()
	return entry.ws.Clone(), nil
}

// Workspaces returns copies of all workspaces, oldest first.
func (e *Engine) Workspaces() []*fulfillment.Workspace {
	entries := e.sortedWorkspaceEntries()
	out := make([]*fulfillment.Workspace, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		if !entry.removed {
			out = append(out, entry.ws.Clone())
		}
		entry.mu.Unlock()
	}
	return out
}

// SetStep moves a workspace to another UI step.
func (e *Engine) SetStep(ctx context.Context, workspaceID string, step fulfillment.Step) (*fulfillment.Workspace, error) {
	const op = "set_step"
	if err := step.Validate(); err != nil {
		return nil, fulfillment.NewError(fulfillment.KindValidation, op, "%v", err)
	}
	return e.mutateWorkspace(ctx, op, workspaceID, func(w *fulfillment.Workspace) error {
		w.Step = step
		return nil
	})
}

// SetSelection replaces the selected-but-uncommitted units of a workspace.
func (e *Engine) SetSelection(ctx context.Context, workspaceID string, unitIDs []string) (*fulfillment.Workspace, error) {
	return e.mutateWorkspace(ctx, "set_selection", workspaceID, func(w *fulfillment.Workspace) error {
		w.SetSelection(unitIDs)
		return nil
	})
}

// AddChecklist creates a draft checklist holding inputs in a workspace, makes it
// the active checklist and posts a notification. All inputs are validated first;
// one invalid input creates nothing.
func (e *Engine) AddChecklist(ctx context.Context, workspaceID string, inputs []fulfillment.ItemInput) (*fulfillment.Checklist, error) {
	const op = "add_checklist"
	for _, in := range inputs {
		if err := in.Validate(); err != nil {
			return nil, err
		}
	}

	entry, err := e.lockWorkspace(op, workspaceID)
	if err != nil {
		return nil, err
	}
	w := entry.ws

	cl := fulfillment.NewChecklist(e.newID(), w.ID, w.CustomerID, e.now())
	for _, in := range inputs {
		if _, err := cl.AddItem(in); err != nil {
			entry.mu.Unlock()
			return nil, err
		}
	}
	ce := &checklistEntry{cl: cl, seq: 1}
	clSnap := cl.Clone()

	e.mu.Lock()
	e.checklists[cl.ID] = ce
	e.mu.Unlock()

	w.ChecklistIDs = append(w.ChecklistIDs, cl.ID)
	w.ActiveChecklistID = cl.ID
	w.StatusTag = string(clSnap.Status)
	if w.Step == fulfillment.StepToys {
		w.Step = fulfillment.StepChecklist
	}
	committed := make(map[string]bool, len(clSnap.Items))
	for _, it := range clSnap.Items {
		committed[it.UnitID] = true
	}
	remaining := make([]string, 0, len(w.Selection))
	for _, id := range w.Selection {
		if !committed[id] {
			remaining = append(remaining, id)
		}
	}
	w.Selection = remaining
	e.notifyLocked(w, fulfillment.NotifyInfo, clSnap.ID, "Checklist created with %d items", clSnap.TotalItems)
	entry.seq++
	wsSnap, wsSeq := w.Clone(), entry.seq
	entry.mu.Unlock()

	clErr := e.saveChecklist(ctx, ce, clSnap, 1)
	wsErr := e.saveWorkspace(ctx, entry, wsSnap, wsSeq)
	e.reserve(ctx, clSnap.ID, unitIDs(clSnap))

	e.logEvent("checklist_created", "info", map[string]interface{}{
		"workspace_id": workspaceID,
		"checklist_id": clSnap.ID,
		"total_items":  clSnap.TotalItems,
	})
	e.publish(ctx, fulfillment.Event{
		Type:        fulfillment.EventChecklistCreated,
		WorkspaceID: workspaceID,
		ChecklistID: clSnap.ID,
		Status:      string(clSnap.Status),
	})

	return clSnap, e.finish(op, clErr, wsErr)
}

// SetActiveChecklist selects which of its checklists a workspace is working on.
func (e *Engine) SetActiveChecklist(ctx context.Context, workspaceID, checklistID string) (*fulfillment.Workspace, error) {
	const op = "set_active_checklist"
	return e.mutateWorkspace(ctx, op, workspaceID, func(w *fulfillment.Workspace) error {
		if !w.Owns(checklistID) {
			return fulfillment.NewError(fulfillment.KindNotFound, op, "checklist %s is not in workspace %s", checklistID, workspaceID)
		}
		w.ActiveChecklistID = checklistID
		if status, ok := e.checklistStatus(checklistID); ok {
			w.StatusTag = string(status)
		}
		return nil
	})
}

// RemoveChecklist deletes a draft checklist from its workspace.
func (e *Engine) RemoveChecklist(ctx context.Context, workspaceID, checklistID string) (*fulfillment.Workspace, error) {
	const op = "remove_checklist"
	entry, err := e.lockWorkspace(op, workspaceID)
	if err != nil {
		return nil, err
	}
	w := entry.ws
	if !w.Owns(checklistID) {
		entry.mu.Unlock()
		return nil, fulfillment.NewError(fulfillment.KindNotFound, op, "checklist %s is not in workspace %s", checklistID, workspaceID)
	}

	e.mu.RLock()
	ce, ok := e.checklists[checklistID]
	e.mu.RUnlock()

	var units []string
	if ok {
		ce.mu.Lock()
		if ce.cl.Status != fulfillment.StatusDraft {
			status := ce.cl.Status
			ce.mu.Unlock()
			entry.mu.Unlock()
			return nil, fulfillment.NewError(fulfillment.KindInvalidState, op, "checklist %s is %s", checklistID, status)
		}
		ce.removed = true
		units = unitIDs(ce.cl)
		ce.mu.Unlock()
	}

	w.DetachChecklist(checklistID)
	w.StatusTag = ""
	if w.ActiveChecklistID != "" {
		if status, ok := e.checklistStatus(w.ActiveChecklistID); ok {
			w.StatusTag = string(status)
		}
	}
	e.notifyLocked(w, fulfillment.NotifyInfo, checklistID, "Checklist removed")
	entry.seq++
	snap, seq := w.Clone(), entry.seq
	entry.mu.Unlock()

	e.mu.Lock()
	delete(e.checklists, checklistID)
	e.mu.Unlock()

	var clErr error
	if ok {
		clErr = ce.write(deleted, func() error { return e.persister.DeleteChecklist(ctx, checklistID) })
	}
	wsErr := e.saveWorkspace(ctx, entry, snap, seq)
	e.release(ctx, checklistID, units)

	e.logEvent("checklist_removed", "info", map[string]interface{}{
		"workspace_id": workspaceID,
		"checklist_id": checklistID,
	})
	e.publish(ctx, fulfillment.Event{
		Type:        fulfillment.EventChecklistRemoved,
		WorkspaceID: workspaceID,
		ChecklistID: checklistID,
	})

	return snap, e.finish(op, clErr, wsErr)
}

// mutateWorkspace applies fn under the workspace lock and persists the result.
func (e *Engine) mutateWorkspace(ctx context.Context, op, workspaceID string, fn func(w *fulfillment.Workspace) error) (*fulfillment.Workspace, error) {
	entry, err := e.lockWorkspace(op, workspaceID)
	if err != nil {
		return nil, err
	}
	if err := fn(entry.ws); err != nil {
		entry.mu.Unlock()
		return nil, err
	}
	entry.seq++
	snap, seq := entry.ws.Clone(), entry.seq
	entry.mu.Unlock()

	return snap, e.finish(op, e.saveWorkspace(ctx, entry, snap, seq))
}

// checklistStatus reads one checklist's status. Safe to call with a workspace lock held.
func (e *Engine) checklistStatus(checklistID string) (fulfillment.Status, bool) {
	e.mu.RLock()
	ce, ok := e.checklists[checklistID]
	e.mu.RUnlock()
	if !ok {
		return "", false
	}
	ce.mu.Lock()
	defer ce.mu.Unlock()
	if ce.removed {
		return "", false
	}
	return ce.cl.Status, true
}

// afterChecklistChange refreshes the owning workspace's status tag and optionally
// posts a notification. A workspace closed meanwhile is ignored.
func (e *Engine) afterChecklistChange(ctx context.Context, op, workspaceID, checklistID string, kind fulfillment.NotificationKind, format string, a ...interface{}) error {
	_, err := e.mutateWorkspace(ctx, op, workspaceID, func(w *fulfillment.Workspace) error {
		if w.ActiveChecklistID == checklistID {
			if status, ok := e.checklistStatus(checklistID); ok {
				w.StatusTag = string(status)
			}
		}
		if format != "" {
			e.notifyLocked(w, kind, checklistID, format, a...)
		}
		return nil
	})
	if fulfillment.KindOf(err) == fulfillment.KindNotFound {
		return nil
	}
	return err
}

func unitIDs(c *fulfillment.Checklist) []string {
	ids := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		ids = append(ids, it.UnitID)
	}
	return ids
}

func (e *Engine) reserve(ctx context.Context, checklistID string, units []string) {
	if e.inventory == nil || len(units) == 0 {
		return
	}
	if err := e.inventory.Reserve(ctx, checklistID, units); err != nil {
		e.logEvent("inventory_reserve_failed", "error", map[string]interface{}{
			"checklist_id": checklistID,
			"error":        err.Error(),
		})
	}
}

func (e *Engine) release(ctx context.Context, checklistID string, units []string) {
	if e.inventory == nil || len(units) == 0 {
		return
	}
	if err := e.inventory.Release(ctx, checklistID, units); err != nil {
		e.logEvent("inventory_release_failed", "error", map[string]interface{}{
			"checklist_id": checklistID,
			"units":        len(units),
			"error": err.Error(),
		})
	}
}
