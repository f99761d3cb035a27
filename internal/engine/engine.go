// Package engine owns the in-memory fulfillment state: workspaces, checklists
// and modification requests, with per-checklist mutual exclusion, scan routing
// across workspaces, and persistence plus event fan-out after each operation.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/google/uuid"
)

// Persister durably records state after each successful operation.
// *store.Client satisfies it.
type Persister interface {
	SaveChecklist(ctx context.Context, c *fulfillment.Checklist) error
	DeleteChecklist(ctx context.Context, checklistID string) error
	SaveWorkspace(ctx context.Context, w *fulfillment.Workspace) error
	DeleteWorkspace(ctx context.Context, workspaceID string) error
	SaveModificationRequest(ctx context.Context, r *fulfillment.ModificationRequest) error
}

// Publisher fans out informational events. *store.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, ev fulfillment.Event) error
}

// Loader reads persisted state back at startup. *store.Client satisfies it.
type Loader interface {
	ListWorkspaces(ctx context.Context) ([]*fulfillment.Workspace, error)
	ListChecklists(ctx context.Context) ([]*fulfillment.Checklist, error)
	ListModificationRequests(ctx context.Context) ([]*fulfillment.ModificationRequest, error)
}

// InventorySource supplies unreserved, quality-approved units for bulk population
// and tracks which units are committed to a checklist.
type InventorySource interface {
	Eligible(ctx context.Context, groupingID, grade string) ([]fulfillment.ItemInput, error)
	Reserve(ctx context.Context, checklistID string, unitIDs []string) error
	Release(ctx context.Context, checklistID string, unitIDs []string) error
}

// Authorizer decides whether actorID may perform action.
// It returns nil or an error of kind Unauthorized.
type Authorizer interface {
	Authorize(actorID string, action fulfillment.Action) error
}

// Options configures an Engine. Zero values select in-memory defaults.
type Options struct {
	InstanceName      string
	Persister         Persister
	Publisher         Publisher
	Inventory         InventorySource
	Authorizer        Authorizer
	NotificationLimit int
	Clock             func() time.Time
	NewID             func() string
}

// Engine owns all workspace, checklist and modification request state of one
// deployment. Each checklist and each workspace has its own mutex; mu only
// guards the lookup maps and is never held while acquiring another lock.
// When both are needed the workspace lock is taken before the checklist lock.
type Engine struct {
	instanceName string
	persister    Persister
	publisher    Publisher
	inventory    InventorySource
	authorizer   Authorizer
	notifyLimit  int
	now          func() time.Time
	newID        func() string

	mu                sync.RWMutex
	workspaces        map[string]*workspaceEntry
	checklists        map[string]*checklistEntry
	requests          map[string]*requestEntry
	activeWorkspaceID string
}

// versioned orders writes of one entity so an older snapshot never overwrites a newer one.
type versioned struct {
	writeMu   sync.Mutex
	persisted uint64
}

func (v *versioned) write(seq uint64, fn func() error) error {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	if seq <= v.persisted {
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	v.persisted = seq
	return nil
}

type workspaceEntry struct {
	mu      sync.Mutex
	ws      *fulfillment.Workspace
	seq     uint64
	removed bool
	versioned
}

type checklistEntry struct {
	mu      sync.Mutex
	cl      *fulfillment.Checklist
	seq     uint64
	removed bool
	versioned
}

// requestEntry is mutated only while holding the owning checklist's lock.
type requestEntry struct {
	req *fulfillment.ModificationRequest
	seq uint64
	versioned
}

// New creates an engine with no workspaces.
func New(opts Options) *Engine {
	e := &Engine{
		instanceName: opts.InstanceName,
		persister:    opts.Persister,
		publisher:    opts.Publisher,
		inventory:    opts.Inventory,
		authorizer:   opts.Authorizer,
		notifyLimit:  opts.NotificationLimit,
		now:          opts.Clock,
		newID:        opts.NewID,
		workspaces:   make(map[string]*workspaceEntry),
		checklists:   make(map[string]*checklistEntry),
		requests:     make(map[string]*requestEntry),
	}
	if e.instanceName == "" {
		e.instanceName = "default"
	}
	if e.persister == nil {
		e.persister = nopPersister{}
	}
	if e.publisher == nil {
		e.publisher = nopPersister{}
	}
	if e.authorizer == nil {
		e.authorizer = allowAll{}
	}
	if e.notifyLimit <= 0 {
		e.notifyLimit = fulfillment.DefaultNotificationLimit
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e
}

// PersistError reports that an operation was applied in memory but could not be
// recorded by the Persister. The state change is not rolled back or retried.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s: applied but not persisted: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

type nopPersister struct{}

func (nopPersister) SaveChecklist(context.Context, *fulfillment.Checklist) error { return nil }
func (nopPersister) DeleteChecklist(context.Context, string) error               { return nil }
func (nopPersister) SaveWorkspace(context.Context, *fulfillment.Workspace) error { return nil }
func (nopPersister) DeleteWorkspace(context.Context, string) error               { return nil }
func (nopPersister) SaveModificationRequest(context.Context, *fulfillment.ModificationRequest) error {
	return nil
}
func (nopPersister) Publish(context.Context, fulfillment.Event) error { return nil }

type allowAll struct{}

func (allowAll) Authorize(string, fulfillment.Action) error { return nil }

// lookups

func (e *Engine) workspaceEntry(op, id string) (*workspaceEntry, error) {
	e.mu.RLock()
	entry, ok := e.workspaces[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fulfillment.NewError(fulfillment.KindNotFound, op, "workspace %s not found", id)
	}
	return entry, nil
}

func (e *Engine) checklistEntry(op, id string) (*checklistEntry, error) {
	e.mu.RLock()
	entry, ok := e.checklists[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fulfillment.NewError(fulfillment.KindNotFound, op, "checklist %s not found", id)
	}
	return entry, nil
}

// lockWorkspace returns the locked entry, or NotFound if it was closed meanwhile.
func (e *Engine) lockWorkspace(op, id string) (*workspaceEntry, error) {
	entry, err := e.workspaceEntry(op, id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	if entry.removed {
		entry.mu.Unlock()
		return nil, fulfillment.NewError(fulfillment.KindNotFound, op, "workspace %s not found", id)
	}
	return entry, nil
}

func (e *Engine) lockChecklist(op, id string) (*checklistEntry, error) {
	entry, err := e.checklistEntry(op, id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	if entry.removed {
		entry.mu.Unlock()
		return nil, fulfillment.NewError(fulfillment.KindNotFound, op, "checklist %s not found", id)
	}
	return entry, nil
}

// sortedWorkspaceEntries snapshots the registry, oldest workspace first.
func (e *Engine) sortedWorkspaceEntries() []*workspaceEntry {
	e.mu.RLock()
	entries := make([]*workspaceEntry, 0, len(e.workspaces))
	for _, entry := range e.workspaces {
		entries = append(entries, entry)
	}
	e.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].ws, entries[j].ws
		if a.CreatedAtMs != b.CreatedAtMs {
			return a.CreatedAtMs < b.CreatedAtMs
		}
		return a.ID < b.ID
	})
	return entries
}

// persistence, called without holding any mutation lock

func (e *Engine) saveChecklist(ctx context.Context, entry *checklistEntry, snap *fulfillment.Checklist, seq uint64) error {
	return entry.write(seq, func() error { return e.persister.SaveChecklist(ctx, snap) })
}

func (e *Engine) saveWorkspace(ctx context.Context, entry *workspaceEntry, snap *fulfillment.Workspace, seq uint64) error {
	return entry.write(seq, func() error { return e.persister.SaveWorkspace(ctx, snap) })
}

func (e *Engine) saveRequest(ctx context.Context, entry *requestEntry, snap *fulfillment.ModificationRequest, seq uint64) error {
	return entry.write(seq, func() error { return e.persister.SaveModificationRequest(ctx, snap) })
}

// finish folds persistence failures of one operation into a *PersistError.
func (e *Engine) finish(op string, errs ...error) error {
	for _, err := range errs {
		if err == nil {
			continue
		}
		var pe *PersistError
		if errors.As(err, &pe) {
			return pe
		}
		e.logEvent("persist_failed", "error", map[string]interface{}{
			"op":    op,
			"error": err.Error(),
		})
		return &PersistError{Op: op, Err: err}
	}
	return nil
}

// publish sends ev; failures are logged and never returned.
func (e *Engine) publish(ctx context.Context, ev fulfillment.Event) {
	if ev.AtMs == 0 {
		ev.AtMs = e.now().UnixMilli()
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logEvent("publish_failed", "error", map[string]interface{}{
			"type":  string(ev.Type),
			"error": err.Error(),
		})
	}
}

// logEvent writes one structured JSON log line.
func (e *Engine) logEvent(eventType, level string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = level
	data["component"] = "engine"
	data["event_type"] = eventType
	data["instance"] = e.instanceName

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Engine] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
