package server

import (
	"net/http"

	"github.com/dyluth/tally/pkg/fulfillment"
)

// CreateWorkspaceRequest is the body of POST /workspaces.
type CreateWorkspaceRequest struct {
	CustomerID    string `json:"customer_id"`
	CustomerLabel string `json:"customer_label,omitempty"`
}

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkspaceRequest
	if err := decode(r, "create_workspace", &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ws, err := s.engine.CreateWorkspace(r.Context(), req.CustomerID, req.CustomerLabel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

// WorkspaceList is the response of GET /workspaces.
type WorkspaceList struct {
	ActiveWorkspaceID string                   `json:"active_workspace_id"`
	Workspaces        []*fulfillment.Workspace `json:"workspaces"`
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, WorkspaceList{
		ActiveWorkspaceID: s.engine.ActiveWorkspace(),
		Workspaces:        s.engine.Workspaces(),
	})
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := s.engine.Workspace(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleCloseWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.CloseWorkspace(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivateWorkspace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.SetActiveWorkspace(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleGetWorkspace(w, r)
}

// StepRequest is the body of POST /workspaces/{id}/step.
type StepRequest struct {
	Step fulfillment.Step `json:"step"`
}

func (s *Server) handleSetStep(w http.ResponseWriter, r *http.Request) {
	var req StepRequest
	if err := decode(r, "set_step", &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ws, err := s.engine.SetStep(r.Context(), r.PathValue("id"), req.Step)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// SelectionRequest is the body of POST /workspaces/{id}/selection.
type SelectionRequest struct {
	UnitIDs []string `json:"unit_ids"`
}

func (s *Server) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if err := decode(r, "set_selection", &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ws, err := s.engine.SetSelection(r.Context(), r.PathValue("id"), req.UnitIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleWorkspaceChecklists(w http.ResponseWriter, r *http.Request) {
	cls, err := s.engine.WorkspaceChecklists(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cls)
}

// AddChecklistRequest creates a checklist from full item inputs, catalog unit
// ids, or both. Items come first, then unit ids, in request order.
type AddChecklistRequest struct {
	Items   []fulfillment.ItemInput `json:"items,omitempty"`
	UnitIDs []string                `json:"unit_ids,omitempty"`
}

func (s *Server) handleAddChecklist(w http.ResponseWriter, r *http.Request) {
	const op = "add_checklist"
	var req AddChecklistRequest
	if err := decode(r, op, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	inputs := append([]fulfillment.ItemInput{}, req.Items...)
	for _, id := range req.UnitIDs {
		in, err := s.resolveItem(op, ItemRequest{UnitID: id})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		inputs = append(inputs, in)
	}

	c, err := s.engine.AddChecklist(r.Context(), r.PathValue("id"), inputs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ActiveChecklistRequest is the body of POST /workspaces/{id}/active-checklist.
type ActiveChecklistRequest struct {
	ChecklistID string `json:"checklist_id"`
}

func (s *Server) handleSetActiveChecklist(w http.ResponseWriter, r *http.Request) {
	var req ActiveChecklistRequest
	if err := decode(r, "set_active_checklist", &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ws, err := s.engine.SetActiveChecklist(r.Context(), r.PathValue("id"), req.ChecklistID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleRemoveChecklist(w http.ResponseWriter, r *http.Request) {
	ws, err := s.engine.RemoveChecklist(r.Context(), r.PathValue("id"), r.PathValue("checklistID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// NotificationFeed is the response of GET /workspaces/{id}/notifications.
type NotificationFeed struct {
	Notifications []fulfillment.Notification `json:"notifications"`
	UnreadCount   int                        `json:"unread_count"`
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	feed, unread, err := s.engine.Notifications(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NotificationFeed{Notifications: feed, UnreadCount: unread})
}

// NotifyRequest is the body of POST /workspaces/{id}/notifications.
type NotifyRequest struct {
	Kind    fulfillment.NotificationKind `json:"kind"`
	Message string                       `json:"message"`
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := decode(r, "notify", &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Kind == "" {
		req.Kind = fulfillment.NotifyInfo
	}
	ws, err := s.engine.Notify(r.Context(), r.PathValue("id"), req.Kind, req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	ws, err := s.engine.MarkNotificationRead(r.Context(), r.PathValue("id"), r.PathValue("nid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	ws, err := s.engine.MarkAllNotificationsRead(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	ws, err := s.engine.ClearNotifications(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}
