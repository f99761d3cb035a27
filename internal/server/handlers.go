package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/dyluth/tally/internal/export"
	"github.com/dyluth/tally/pkg/fulfillment"
)

// ScanRequest is the body of POST /scan. Without a checklist id the code is
// routed across all workspaces.
type ScanRequest struct {
	ChecklistID string `json:"checklist_id,omitempty"`
	Code        string `json:"code"`
	ActorID     string `json:"actor_id"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := decode(r, "scan", &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var res *fulfillment.ScanResult
	var err error
	if req.ChecklistID == "" {
		res, err = s.engine.RouteScan(r.Context(), req.Code, req.ActorID)
	} else {
		res, err = s.engine.Scan(r.Context(), req.ChecklistID, req.Code, req.ActorID)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetChecklist(w http.ResponseWriter, r *http.Request) {
	c, err := s.engine.Checklist(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UnitLocation is the response of GET /units/{unitID}/workspace.
type UnitLocation struct {
	UnitID      string `json:"unit_id"`
	WorkspaceID string `json:"workspace_id"`
}

func (s *Server) handleLocateUnit(w http.ResponseWriter, r *http.Request) {
	unitID := r.PathValue("unitID")
	workspaceID, err := s.engine.LocateWorkspaceForUnit(unitID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UnitLocation{UnitID: unitID, WorkspaceID: workspaceID})
}

// TransitionRequest is the body of POST /checklists/{id}/transition.
type TransitionRequest struct {
	Action  fulfillment.Action `json:"action"`
	ActorID string             `json:"actor_id"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := decode(r, "transition", &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.engine.Transition(r.Context(), r.PathValue("id"), req.Action, req.ActorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ItemRequest adds one unit. Either the full input or a bare unit id that the
// inventory catalog can resolve.
type ItemRequest struct {
	UnitID string `json:"unit_id,omitempty"`
	fulfillment.ItemInput
}

func (s *Server) resolveItem(op string, req ItemRequest) (fulfillment.ItemInput, error) {
	if req.Unit.ID != "" || req.UnitID == "" {
		return req.ItemInput, nil
	}
	if s.catalog == nil {
		return fulfillment.ItemInput{}, badRequest(op, "unit %s needs full item input: no inventory catalog", req.UnitID)
	}
	in, ok := s.catalog.Lookup(req.UnitID)
	if !ok {
		return fulfillment.ItemInput{}, badRequest(op, "unit %s is not in inventory", req.UnitID)
	}
	return in, nil
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	const op = "add_item"
	var req ItemRequest
	if err := decode(r, op, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := s.resolveItem(op, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.engine.AddItem(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	c, err := s.engine.RemoveItem(r.Context(), r.PathValue("id"), r.PathValue("unitID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// PopulateRequest is the body of POST /checklists/{id}/populate.
type PopulateRequest struct {
	GroupingID string `json:"grouping_id"`
	Grade      string `json:"grade,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// CountResponse reports how many items an operation touched.
type CountResponse struct {
	Count     int                    `json:"count"`
	Checklist *fulfillment.Checklist `json:"checklist"`
}

func (s *Server) handlePopulate(w http.ResponseWriter, r *http.Request) {
	var req PopulateRequest
	if err := decode(r, "populate", &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	n, c, err := s.engine.PopulateChecklist(r.Context(), r.PathValue("id"), req.GroupingID, req.Grade, req.Limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n, Checklist: c})
}

// ClearScansRequest is the body of POST /checklists/{id}/clear-scans.
type ClearScansRequest struct {
	UnitIDs []string `json:"unit_ids"`
	ActorID string   `json:"actor_id"`
}

func (s *Server) handleClearScans(w http.ResponseWriter, r *http.Request) {
	var req ClearScansRequest
	if err := decode(r, "clear_scans", &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	n, c, err := s.engine.ClearScans(r.Context(), r.PathValue("id"), req.UnitIDs, req.ActorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n, Checklist: c})
}

func (s *Server) handleListModifications(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.engine.ModificationRequests(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// handleExport returns the export document as JSON. ?format=text renders the
// full document and ?format=manifest only the manifest lines.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	c, err := s.engine.Checklist(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	x, err := export.Build(c, s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		x.Render(w)
	case "manifest":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, x.ManifestText())
	default:
		writeJSON(w, http.StatusOK, x)
	}
}

// ModificationRequestBody is the body of POST /modifications/request.
type ModificationRequestBody struct {
	ChecklistID string `json:"checklist_id"`
	fulfillment.RequestInput
}

func (s *Server) handleRequestModification(w http.ResponseWriter, r *http.Request) {
	const op = "request_modification"
	var req ModificationRequestBody
	if err := decode(r, op, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ChecklistID == "" {
		s.writeError(w, r, badRequest(op, "checklist_id is required"))
		return
	}
	mr, err := s.engine.RequestModification(r.Context(), req.ChecklistID, req.RequestInput)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mr)
}

func (s *Server) handleGetModification(w http.ResponseWriter, r *http.Request) {
	mr, err := s.engine.ModificationRequest(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mr)
}

// ResolveRequest is the body of POST /modifications/{id}/resolve.
type ResolveRequest struct {
	Approve    bool   `json:"approve"`
	ReviewerID string `json:"reviewer_id"`
	Note       string `json:"note,omitempty"`
}

func (s *Server) handleResolveModification(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := decode(r, "resolve_modification", &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	mr, err := s.engine.ResolveModification(r.Context(), r.PathValue("id"), req.Approve, req.ReviewerID, req.Note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mr)
}
