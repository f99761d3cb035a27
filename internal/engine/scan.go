package engine

import (
	"context"
	"strings"

	"github.com/dyluth/tally/pkg/fulfillment"
)

// Scan reconciles one decoded code against a locked checklist on behalf of actorID.
// UnknownCode, DuplicateScan and NotScanning leave all state unchanged.
// Concurrent scans of one checklist are applied one at a time in lock order.
func (e *Engine) Scan(ctx context.Context, checklistID, code, actorID string) (*fulfillment.ScanResult, error) {
	const op = "scan"
	entry, err := e.lockChecklist(op, checklistID)
	if err != nil {
		return nil, err
	}

	res, scanErr := entry.cl.Scan(code, actorID, e.now())
	workspaceID := entry.cl.WorkspaceID
	var ch checklistChange
	if scanErr == nil {
		entry.seq++
		ch = checklistChange{entry: entry, snap: entry.cl.Clone(), seq: entry.seq, changed: true}
	}
	entry.mu.Unlock()

	if scanErr != nil {
		e.rejectScan(ctx, workspaceID, checklistID, code, actorID, scanErr)
		return nil, scanErr
	}

	persistErr := e.save(ctx, ch)
	wsErr := e.recordScan(ctx, workspaceID, res)

	e.logEvent("scan_accepted", "info", map[string]interface{}{
		"workspace_id":  workspaceID,
		"checklist_id":  checklistID,
		"unit_id":       res.MatchedUnitID,
		"rule":          string(res.Rule),
		"actor_id":      actorID,
		"scanned_count": res.ScannedCount,
		"total_items":   res.TotalItems,
	})
	e.publish(ctx, fulfillment.Event{
		Type:        fulfillment.EventScanAccepted,
		WorkspaceID: workspaceID,
		ChecklistID: checklistID,
		UnitID:      res.MatchedUnitID,
		Action:      fulfillment.ActionScan,
		Status:      string(ch.snap.Status),
		ActorID:     actorID,
	})

	return res, e.finish(op, persistErr, wsErr)
}

// RouteScan handles a code that arrives without checklist context: it finds the
// checklist holding the unit (or manifest code) across all workspaces and
// reconciles the scan there. The lookup holds no checklist lock while searching;
// the duplicate check inside Scan is authoritative.
func (e *Engine) RouteScan(ctx context.Context, code, actorID string) (*fulfillment.ScanResult, error) {
	const op = "route_scan"
	code = strings.TrimSpace(code)

	_, checklistID, ok := e.locate(code)
	if !ok {
		err := fulfillment.NewError(fulfillment.KindUnknownCode, op, "code %q is not on any checklist", code)
		e.rejectScan(ctx, "", "", code, actorID, err)
		return nil, err
	}
	return e.Scan(ctx, checklistID, code, actorID)
}

// LocateWorkspaceForUnit returns the workspace owning a checklist that contains unitID.
func (e *Engine) LocateWorkspaceForUnit(unitID string) (string, error) {
	workspaceID, _, ok := e.locate(strings.TrimSpace(unitID))
	if !ok {
		return "", fulfillment.NewError(fulfillment.KindNotFound, "locate_unit", "unit %s is not on any checklist", unitID)
	}
	return workspaceID, nil
}

// locate walks workspaces oldest first and their checklists in order. A checklist
// open for scanning wins over an earlier match in any other state.
func (e *Engine) locate(code string) (workspaceID, checklistID string, ok bool) {
	if code == "" {
		return "", "", false
	}

	for _, wsEntry := range e.sortedWorkspaceEntries() {
		wsEntry.mu.Lock()
		if wsEntry.removed {
			wsEntry.mu.Unlock()
			continue
		}
		wsID := wsEntry.ws.ID
		ids := append([]string{}, wsEntry.ws.ChecklistIDs...)
		wsEntry.mu.Unlock()

		for _, id := range ids {
			e.mu.RLock()
			ce, found := e.checklists[id]
			e.mu.RUnlock()
			if !found {
				continue
			}

			ce.mu.Lock()
			hit, scanning := false, false
			if !ce.removed {
				if _, rule, matched := ce.cl.Match(code); matched && rule != fulfillment.MatchPosition {
					hit = true
					scanning = ce.cl.Status.Scanning()
				}
			}
			ce.mu.Unlock()

			if !hit {
				continue
			}
			if scanning {
				return wsID, id, true
			}
			if !ok {
				workspaceID, checklistID, ok = wsID, id, true
			}
		}
	}
	return workspaceID, checklistID, ok
}

// recordScan appends the unit to the workspace's completed scans and posts a
// notification once the checklist is complete.
func (e *Engine) recordScan(ctx context.Context, workspaceID string, res *fulfillment.ScanResult) error {
	_, err := e.mutateWorkspace(ctx, "scan", workspaceID, func(w *fulfillment.Workspace) error {
		w.RecordScan(res.MatchedUnitID)
		if res.IsComplete {
			e.notifyLocked(w, fulfillment.NotifySuccess, res.ChecklistID,
				"All %d items scanned", res.TotalItems)
		}
		return nil
	})
	if fulfillment.KindOf(err) == fulfillment.KindNotFound {
		return nil
	}
	return err
}

func (e *Engine) rejectScan(ctx context.Context, workspaceID, checklistID, code, actorID string, err error) {
	kind := fulfillment.KindOf(err)
	e.logEvent("scan_rejected", "info", map[string]interface{}{
		"workspace_id": workspaceID,
		"checklist_id": checklistID,
		"code":         code,
		"actor_id":     actorID,
		"kind":         string(kind),
	})
	e.publish(ctx, fulfillment.Event{
		Type:        fulfillment.EventScanRejected,
		WorkspaceID: workspaceID,
		ChecklistID: checklistID,
		Action:      fulfillment.ActionScan,
		ActorID:     actorID,
		ErrorKind:   kind,
		Message:     err.Error(),
	})
}
