package engine

import (
	"context"
	"fmt"
)

// RestoreStats counts what Restore loaded.
type RestoreStats struct {
	Workspaces int `json:"workspaces"`
	Checklists int `json:"checklists"`
	Requests   int `json:"requests"`
	Skipped    int `json:"skipped"`
}

// Restore loads persisted state into an empty engine. Checklists whose workspace
// is gone, checklist ids a workspace lists but the store lacks, and requests
// whose checklist is gone are skipped. The oldest workspace becomes active.
func (e *Engine) Restore(ctx context.Context, loader Loader) (RestoreStats, error) {
	var stats RestoreStats

	e.mu.RLock()
	empty := len(e.workspaces) == 0 && len(e.checklists) == 0
	e.mu.RUnlock()
	if !empty {
		return stats, fmt.Errorf("restore requires an empty engine")
	}

	workspaces, err := loader.ListWorkspaces(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load workspaces: %w", err)
	}
	checklists, err := loader.ListChecklists(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load checklists: %w", err)
	}
	requests, err := loader.ListModificationRequests(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load modification requests: %w", err)
	}

	wsEntries := make(map[string]*workspaceEntry, len(workspaces))
	for _, w := range workspaces {
		wsEntries[w.ID] = &workspaceEntry{ws: w, seq: 1, versioned: versioned{persisted: 1}}
	}

	clEntries := make(map[string]*checklistEntry, len(checklists))
	for _, c := range checklists {
		if err := c.Validate(); err != nil {
			stats.Skipped++
			e.logEvent("restore_skipped", "error", map[string]interface{}{
				"checklist_id": c.ID,
				"error":        err.Error(),
			})
			continue
		}
		wsEntry, ok := wsEntries[c.WorkspaceID]
		if !ok || !wsEntry.ws.Owns(c.ID) {
			stats.Skipped++
			e.logEvent("restore_skipped", "info", map[string]interface{}{
				"checklist_id": c.ID,
				"workspace_id": c.WorkspaceID,
				"reason":       "orphaned checklist",
			})
			continue
		}
		clEntries[c.ID] = &checklistEntry{cl: c, seq: 1, versioned: versioned{persisted: 1}}
	}

	for _, wsEntry := range wsEntries {
		w := wsEntry.ws
		kept := make([]string, 0, len(w.ChecklistIDs))
		for _, id := range w.ChecklistIDs {
			if _, ok := clEntries[id]; ok {
				kept = append(kept, id)
			}
		}
		if len(kept) != len(w.ChecklistIDs) {
			stats.Skipped += len(w.ChecklistIDs) - len(kept)
			w.ChecklistIDs = kept
			if w.ActiveChecklistID != "" && !w.Owns(w.ActiveChecklistID) {
				w.ActiveChecklistID = ""
				if len(kept) > 0 {
					w.ActiveChecklistID = kept[len(kept)-1]
				}
			}
			wsEntry.seq++
		}
	}

	reqEntries := make(map[string]*requestEntry, len(requests))
	for _, r := range requests {
		if _, ok := clEntries[r.ChecklistID]; !ok {
			continue
		}
		reqEntries[r.ID] = &requestEntry{req: r, seq: 1, versioned: versioned{persisted: 1}}
	}

	e.mu.Lock()
	e.workspaces = wsEntries
	e.checklists = clEntries
	e.requests = reqEntries
	e.activeWorkspaceID = e.oldestWorkspaceLocked()
	e.mu.Unlock()

	stats.Workspaces = len(wsEntries)
	stats.Checklists = len(clEntries)
	stats.Requests = len(reqEntries)

	e.logEvent("restored", "info", map[string]interface{}{
		"workspaces": stats.Workspaces,
		"checklists": stats.Checklists,
		"requests":   stats.Requests,
		"skipped":    stats.Skipped,
	})
	return stats, nil
}
