package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/tally/pkg/fulfillment"
)

// checklistChange is the outcome of one mutation applied under a checklist lock.
type checklistChange struct {
	entry   *checklistEntry
	snap    *fulfillment.Checklist
	seq     uint64
	changed bool
}

// mutateChecklist applies fn under the checklist lock. fn reports whether it changed state.
func (e *Engine) mutateChecklist(op, checklistID string, fn func(c *fulfillment.Checklist) (bool, error)) (checklistChange, error) {
	entry, err := e.lockChecklist(op, checklistID)
	if err != nil {
		return checklistChange{}, err
	}
	defer entry.mu.Unlock()

	changed, err := fn(entry.cl)
	if err != nil {
		return checklistChange{}, err
	}
	if changed {
		entry.seq++
	}
	return checklistChange{entry: entry, snap: entry.cl.Clone(), seq: entry.seq, changed: changed}, nil
}

// save persists ch when it changed state.
func (e *Engine) save(ctx context.Context, ch checklistChange) error {
	if !ch.changed {
		return nil
	}
	return e.saveChecklist(ctx, ch.entry, ch.snap, ch.seq)
}

// Checklist returns a copy of one checklist.
func (e *Engine) Checklist(checklistID string) (*fulfillment.Checklist, error) {
	entry, err := e.lockChecklist("get_checklist", checklistID)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()
	return entry.cl.Clone(), nil
}

// WorkspaceChecklists returns copies of a workspace's checklists in creation order.
func (e *Engine) WorkspaceChecklists(workspaceID string) ([]*fulfillment.Checklist, error) {
	w, err := e.Workspace(workspaceID)
	if err != nil {
		return nil, err
	}
	out := make([]*fulfillment.Checklist, 0, len(w.ChecklistIDs))
	for _, id := range w.ChecklistIDs {
		c, err := e.Checklist(id)
		if err != nil {
			continue // removed meanwhile
		}
		out = append(out, c)
	}
	return out, nil
}

// AddItem adds one unit to a draft checklist. Adding a unit already present is a no-op.
func (e *Engine) AddItem(ctx context.Context, checklistID string, in fulfillment.ItemInput) (*fulfillment.Checklist, error) {
	const op = "add_item"
	ch, err := e.mutateChecklist(op, checklistID, func(c *fulfillment.Checklist) (bool, error) {
		return c.AddItem(in)
	})
	if err != nil {
		return nil, err
	}
	if !ch.changed {
		return ch.snap, nil
	}

	persistErr := e.save(ctx, ch)
	e.reserve(ctx, checklistID, []string{in.Unit.ID})
	e.publish(ctx, fulfillment.Event{
		Type:        fulfillment.EventChecklistChanged,
		WorkspaceID: ch.snap.WorkspaceID,
		ChecklistID: checklistID,
		UnitID:      in.Unit.ID,
		Action:      fulfillment.ActionAddItem,
		Status:      string(ch.snap.Status),
	})
	return ch.snap, e.finish(op, persistErr)
}

// RemoveItem drops one unit from a draft checklist. An absent unit is ignored.
func (e *Engine) RemoveItem(ctx context.Context, checklistID, unitID string) (*fulfillment.Checklist, error) {
	const op = "remove_item"
	ch, err := e.mutateChecklist(op, checklistID, func(c *fulfillment.Checklist) (bool, error) {
		return c.RemoveItem(unitID)
	})
	if err != nil {
		return nil, err
	}
	if !ch.changed {
		return ch.snap, nil
	}

	persistErr := e.save(ctx, ch)
	e.release(ctx, checklistID, []string{unitID})
	e.publish(ctx, fulfillment.Event{
		Type:        fulfillment.EventChecklistChanged,
		WorkspaceID: ch.snap.WorkspaceID,
		ChecklistID: checklistID,
		UnitID:      unitID,
		Action:      fulfillment.ActionRemoveItem,
		Status:      string(ch.snap.Status),
	})
	return ch.snap, e.finish(op, persistErr)
}

// PopulateChecklist bulk-adds eligible units of one grouping and grade from the
// inventory source to a draft checklist. limit <= 0 adds every eligible unit.
// Units already on the checklist are skipped. Returns the number of units added.
func (e *Engine) PopulateChecklist(ctx context.Context, checklistID, groupingID, grade string, limit int) (int, *fulfillment.Checklist, error) {
	const op = "populate"
	if e.inventory == nil {
		return 0, nil, fulfillment.NewError(fulfillment.KindValidation, op, "no inventory source configured")
	}
	groupingID = strings.TrimSpace(groupingID)
	if groupingID == "" {
		return 0, nil, fulfillment.NewError(fulfillment.KindValidation, op, "grouping id cannot be empty")
	}
	if _, err := e.checklistEntry(op, checklistID); err != nil {
		return 0, nil, err
	}

	candidates, err := e.inventory.Eligible(ctx, groupingID, grade)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to query inventory: %w", err)
	}

	var added []string
	ch, err := e.mutateChecklist(op, checklistID, func(c *fulfillment.Checklist) (bool, error) {
		if c.Status != fulfillment.StatusDraft {
			return false, fulfillment.NewError(fulfillment.KindInvalidState, op, "checklist %s is %s", c.ID, c.Status)
		}
		for _, in := range candidates {
			if limit > 0 && len(added) >= limit {
				break
			}
			ok, err := c.AddItem(in)
			if err != nil {
				e.logEvent("populate_skipped_unit", "info", map[string]interface{}{
					"checklist_id": c.ID,
					"unit_id":      in.Unit.ID,
					"reason":       err.Error(),
				})
				continue
			}
			if ok {
				added = append(added, in.Unit.ID)
			}
		}
		return len(added) > 0, nil
	})
	if err != nil {
		return 0, nil, err
	}
	if !ch.changed {
		return 0, ch.snap, nil
	}

	persistErr := e.save(ctx, ch)
	e.reserve(ctx, checklistID, added)
	wsErr := e.afterChecklistChange(ctx, op, ch.snap.WorkspaceID, checklistID,
		fulfillment.NotifyInfo, "Added %d units from grouping %s", len(added), groupingID)

	e.logEvent("checklist_populated", "info", map[string]interface{}{
		"checklist_id": checklistID,
		"grouping_id":  groupingID,
		"grade":        grade,
		"added":        len(added),
	})
	e.publish(ctx, fulfillment.Event{
		Type:        fulfillment.EventChecklistChanged,
		WorkspaceID: ch.snap.WorkspaceID,
		ChecklistID: checklistID,
		Action:      fulfillment.ActionAddItem,
		Status:      string(ch.snap.Status),
		Message:     fmt.Sprintf("added %d units", len(added)),
	})
	return len(added), ch.snap, e.finish(op, persistErr, wsErr)
}

// Transition applies a composition lifecycle action (confirm or lock) on behalf of actorID.
func (e *Engine) Transition(ctx context.Context, checklistID string, action fulfillment.Action, actorID string) (*fulfillment.Checklist, error) {
	switch action {
	case fulfillment.ActionConfirm:
		return e.Confirm(ctx, checklistID, actorID)
	case fulfillment.ActionLock:
		return e.Lock(ctx, checklistID, actorID)
	default:
		return nil, fulfillment.NewError(fulfillment.KindValidation, "transition", "unsupported transition %q", action)
	}
}

// Confirm moves a non-empty draft checklist to confirmed.
func (e *Engine) Confirm(ctx context.Context, checklistID, actorID string) (*fulfillment.Checklist, error) {
	const op = "confirm"
	ch, err := e.mutateChecklist(op, checklistID, func(c *fulfillment.Checklist) (bool, error) {
		return true, c.Confirm(actorID, e.now())
	})
	if err != nil {
		e.logRejected(op, checklistID, err)
		return nil, err
	}

	persistErr := e.save(ctx, ch)
	wsErr := e.afterChecklistChange(ctx, op, ch.snap.WorkspaceID, checklistID,
		fulfillment.NotifyInfo, "Checklist confirmed with %d items", ch.snap.TotalItems)
	e.transitioned(ctx, ch.snap, fulfillment.ActionConfirm, actorID)
	return ch.snap, e.finish(op, persistErr, wsErr)
}

// Lock freezes a confirmed checklist and opens it for scanning. While the owning
// workspace is in step scanning, no other checklist of that workspace may be
// locked or awaiting a modification decision.
func (e *Engine) Lock(ctx context.Context, checklistID, actorID string) (*fulfillment.Checklist, error) {
	const op = "lock"
	if err := e.authorizer.Authorize(actorID, fulfillment.ActionLock); err != nil {
		e.logRejected(op, checklistID, err)
		return nil, err
	}

	ce, err := e.checklistEntry(op, checklistID)
	if err != nil {
		return nil, err
	}
	workspaceID := ce.cl.WorkspaceID

	wsEntry, err := e.lockWorkspace(op, workspaceID)
	if err != nil {
		return nil, err
	}
	w := wsEntry.ws

	if w.Step == fulfillment.StepScanning {
		for _, id := range w.ChecklistIDs {
			if id == checklistID {
				continue
			}
			if status, ok := e.checklistStatus(id); ok && status.Frozen() {
				wsEntry.mu.Unlock()
				err := fulfillment.NewError(fulfillment.KindInvalidState, op,
					"workspace %s is scanning checklist %s (%s)", workspaceID, id, status)
				e.logRejected(op, checklistID, err)
				return nil, err
			}
		}
	}

	ch, err := e.mutateChecklist(op, checklistID, func(c *fulfillment.Checklist) (bool, error) {
		return true, c.Lock(e.now())
	})
	if err != nil {
		wsEntry.mu.Unlock()
		e.logRejected(op, checklistID, err)
		return nil, err
	}

	if w.ActiveChecklistID == checklistID {
		w.StatusTag = string(ch.snap.Status)
	}
	e.notifyLocked(w, fulfillment.NotifySuccess, checklistID, "Checklist locked for scanning (%d items)", ch.snap.TotalItems)
	wsEntry.seq++
	wsSnap, wsSeq := w.Clone(), wsEntry.seq
	wsEntry.mu.Unlock()

	persistErr := e.save(ctx, ch)
	wsErr := e.saveWorkspace(ctx, wsEntry, wsSnap, wsSeq)
	e.transitioned(ctx, ch.snap, fulfillment.ActionLock, actorID)
	return ch.snap, e.finish(op, persistErr, wsErr)
}

// ClearScans resets the scan state of the named units on a draft checklist, the
// explicit follow-up to an approved modification. Returns the number cleared.
func (e *Engine) ClearScans(ctx context.Context, checklistID string, unitIDs []string, actorID string) (int, *fulfillment.Checklist, error) {
	const op = "clear_scans"
	var cleared int
	ch, err := e.mutateChecklist(op, checklistID, func(c *fulfillment.Checklist) (bool, error) {
		n, err := c.ClearScans(unitIDs)
		cleared = n
		return n > 0, err
	})
	if err != nil {
		e.logRejected(op, checklistID, err)
		return 0, nil, err
	}
	if !ch.changed {
		return 0, ch.snap, nil
	}

	persistErr := e.save(ctx, ch)
	wsErr := e.afterChecklistChange(ctx, op, ch.snap.WorkspaceID, checklistID,
		fulfillment.NotifyWarning, "Cleared %d scans", cleared)

	e.logEvent("scans_cleared", "info", map[string]interface{}{
		"checklist_id": checklistID,
		"actor_id":     actorID,
		"cleared":      cleared,
	})
	e.publish(ctx, fulfillment.Event{
		Type:        fulfillment.EventChecklistChanged,
		WorkspaceID: ch.snap.WorkspaceID,
		ChecklistID: checklistID,
		Action:      fulfillment.ActionClearScans,
		Status:      string(ch.snap.Status),
		ActorID:     actorID,
	})
	return cleared, ch.snap, e.finish(op, persistErr, wsErr)
}

func (e *Engine) transitioned(ctx context.Context, c *fulfillment.Checklist, action fulfillment.Action, actorID string) {
	e.logEvent("checklist_transition", "info", map[string]interface{}{
		"checklist_id": c.ID,
		"workspace_id": c.WorkspaceID,
		"action":       string(action),
		"status":       string(c.Status),
		"actor_id":     actorID,
	})
	e.publish(ctx, fulfillment.Event{
		Type:        fulfillment.EventChecklistTransition,
		WorkspaceID: c.WorkspaceID,
		ChecklistID: c.ID,
		Action:      action,
		Status:      string(c.Status),
		ActorID:     actorID,
	})
}

// logRejected records an expected domain rejection as an outcome.
func (e *Engine) logRejected(op, checklistID string, err error) {
	e.logEvent("operation_rejected", "info", map[string]interface{}{
		"op":           op,
		"checklist_id": checklistID,
		"kind":         string(fulfillment.KindOf(err)),
		"error":        err.Error(),
	})
}
