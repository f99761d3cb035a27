// Package server exposes the engine over JSON-over-HTTP for scanners, UIs and
// administrative tools.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/dyluth/tally/internal/engine"
	"github.com/dyluth/tally/pkg/fulfillment"
)

// Pinger checks the persistence store. *store.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Catalog resolves a bare unit id into checklist item input.
// *inventory.Repository satisfies it.
type Catalog interface {
	Lookup(unitID string) (fulfillment.ItemInput, bool)
}

// Options configures a Server. Store and Catalog are optional.
type Options struct {
	InstanceName string
	Store        Pinger
	Catalog      Catalog
	Clock        func() time.Time
}

// Server routes HTTP requests to the engine.
type Server struct {
	engine       *engine.Engine
	store        Pinger
	catalog      Catalog
	instanceName string
	now          func() time.Time
	mux          *http.ServeMux
}

// New creates a server with all routes registered.
func New(eng *engine.Engine, opts Options) *Server {
	s := &Server{
		engine:       eng,
		store:        opts.Store,
		catalog:      opts.Catalog,
		instanceName: opts.InstanceName,
		now:          opts.Clock,
		mux:          http.NewServeMux(),
	}
	if s.instanceName == "" {
		s.instanceName = "default"
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /scan", s.handleScan)
	s.mux.HandleFunc("GET /units/{unitID}/workspace", s.handleLocateUnit)

	s.mux.HandleFunc("GET /checklists/{id}", s.handleGetChecklist)
	s.mux.HandleFunc("POST /checklists/{id}/transition", s.handleTransition)
	s.mux.HandleFunc("POST /checklists/{id}/items", s.handleAddItem)
	s.mux.HandleFunc("DELETE /checklists/{id}/items/{unitID}", s.handleRemoveItem)
	s.mux.HandleFunc("POST /checklists/{id}/populate", s.handlePopulate)
	s.mux.HandleFunc("POST /checklists/{id}/clear-scans", s.handleClearScans)
	s.mux.HandleFunc("GET /checklists/{id}/modifications", s.handleListModifications)
	s.mux.HandleFunc("GET /checklists/{id}/export", s.handleExport)

	s.mux.HandleFunc("POST /modifications/request", s.handleRequestModification)
	s.mux.HandleFunc("GET /modifications/{id}", s.handleGetModification)
	s.mux.HandleFunc("POST /modifications/{id}/resolve", s.handleResolveModification)

	s.mux.HandleFunc("POST /workspaces", s.handleCreateWorkspace)
	s.mux.HandleFunc("GET /workspaces", s.handleListWorkspaces)
	s.mux.HandleFunc("GET /workspaces/{id}", s.handleGetWorkspace)
	s.mux.HandleFunc("DELETE /workspaces/{id}", s.handleCloseWorkspace)
	s.mux.HandleFunc("POST /workspaces/{id}/activate", s.handleActivateWorkspace)
	s.mux.HandleFunc("POST /workspaces/{id}/step", s.handleSetStep)
	s.mux.HandleFunc("POST /workspaces/{id}/selection", s.handleSetSelection)
	s.mux.HandleFunc("GET /workspaces/{id}/checklists", s.handleWorkspaceChecklists)
	s.mux.HandleFunc("POST /workspaces/{id}/checklists", s.handleAddChecklist)
	s.mux.HandleFunc("POST /workspaces/{id}/active-checklist", s.handleSetActiveChecklist)
	s.mux.HandleFunc("DELETE /workspaces/{id}/checklists/{checklistID}", s.handleRemoveChecklist)
	s.mux.HandleFunc("GET /workspaces/{id}/notifications", s.handleNotifications)
	s.mux.HandleFunc("POST /workspaces/{id}/notifications", s.handleNotify)
	s.mux.HandleFunc("POST /workspaces/{id}/notifications/read-all", s.handleMarkAllRead)
	s.mux.HandleFunc("POST /workspaces/{id}/notifications/{nid}/read", s.handleMarkRead)
	s.mux.HandleFunc("DELETE /workspaces/{id}/notifications", s.handleClearNotifications)
}

// Handler returns the routed handler wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logEvent("server_started", "info", map[string]interface{}{"listen": addr})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.logEvent("server_stopped", "info", map[string]interface{}{"listen": addr})
		return err
	}
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status     string `json:"status"`
	Redis      string `json:"redis,omitempty"`
	Workspaces int    `json:"workspaces"`
	Error      string `json:"error,omitempty"`
}

// handleHealth returns 200 if the store is reachable, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:     "healthy",
		Workspaces: len(s.engine.Workspaces()),
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, response)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Redis = "disconnected"
		response.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	response.Redis = "connected"
	writeJSON(w, http.StatusOK, response)
}

// ErrorBody is the error envelope of every failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error kind and a human-readable message.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Kinds reported for failures outside the domain taxonomy.
const (
	KindPersist  = "PersistError"
	KindInternal = "InternalError"
)

// statusFor maps a domain error kind to its HTTP status.
func statusFor(kind fulfillment.Kind) int {
	switch kind {
	case fulfillment.KindValidation, fulfillment.KindEmptyChecklist:
		return http.StatusBadRequest
	case fulfillment.KindNotFound:
		return http.StatusNotFound
	case fulfillment.KindInvalidState, fulfillment.KindDuplicateScan,
		fulfillment.KindDuplicateRequest, fulfillment.KindNotScanning:
		return http.StatusConflict
	case fulfillment.KindUnauthorized:
		return http.StatusForbidden
	case fulfillment.KindUnknownCode, fulfillment.KindExportValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err in the error envelope.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *fulfillment.Error
	var persistErr *engine.PersistError

	switch {
	case errors.As(err, &persistErr):
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: ErrorDetail{Kind: KindPersist, Message: err.Error()}})
	case errors.As(err, &domainErr):
		writeJSON(w, statusFor(domainErr.Kind), ErrorBody{Error: ErrorDetail{Kind: string(domainErr.Kind), Message: domainErr.Message}})
		return
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: ErrorDetail{Kind: KindInternal, Message: err.Error()}})
	}

	s.logEvent("request_failed", "error", map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
		"error":  err.Error(),
	})
}

func badRequest(op, format string, a ...any) error {
	return fulfillment.NewError(fulfillment.KindValidation, op, format, a...)
}

// decode reads a JSON request body into v. An empty body leaves v untouched.
func decode(r *http.Request, op string, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return badRequest(op, "invalid request body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if r.URL.Path == "/healthz" {
			return
		}
		s.logEvent("http_request", "info", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

// logEvent writes one structured JSON log line.
func (s *Server) logEvent(eventType, level string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = level
	data["component"] = "server"
	data["event_type"] = eventType
	data["instance"] = s.instanceName

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Server] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
