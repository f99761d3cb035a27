// Package inventory is the in-memory inventory eligibility source: it holds the
// units known to the warehouse and which of them are committed to a checklist.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dyluth/tally/internal/engine"
	"github.com/dyluth/tally/pkg/fulfillment"
)

// Record is one inventory unit with its grouping and quality result.
type Record struct {
	Unit     fulfillment.Unit
	Grouping fulfillment.Grouping
	Quality  fulfillment.QualityResult
}

// Input converts the record into checklist item input.
func (r Record) Input() fulfillment.ItemInput {
	return fulfillment.ItemInput{Unit: r.Unit, Grouping: r.Grouping, Quality: r.Quality}
}

// Repository provides thread-safe in-memory inventory storage.
type Repository struct {
	mu       sync.RWMutex
	records  []Record
	index    map[string]int    // unit id -> records index
	reserved map[string]string // unit id -> checklist id
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{
		records:  []Record{},
		index:    make(map[string]int),
		reserved: make(map[string]string),
	}
}

// Verify interface compliance
var _ engine.InventorySource = (*Repository)(nil)

// Add stores a unit. Unit ids must be unique.
func (r *Repository) Add(rec Record) error {
	if rec.Unit.ID == "" {
		return fmt.Errorf("unit id cannot be empty")
	}
	if rec.Grouping.ID == "" {
		return fmt.Errorf("unit %s: grouping id cannot be empty", rec.Unit.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index[rec.Unit.ID]; exists {
		return fmt.Errorf("unit %s already exists", rec.Unit.ID)
	}
	r.index[rec.Unit.ID] = len(r.records)
	r.records = append(r.records, rec)
	return nil
}

// Get returns one unit.
func (r *Repository) Get(unitID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[unitID]
	if !ok {
		return Record{}, false
	}
	return r.records[i], true
}

// Lookup returns the checklist input for a known unit.
func (r *Repository) Lookup(unitID string) (fulfillment.ItemInput, bool) {
	rec, ok := r.Get(unitID)
	if !ok {
		return fulfillment.ItemInput{}, false
	}
	return rec.Input(), true
}

// Units returns all units in insertion order.
func (r *Repository) Units() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Record{}, r.records...)
}

// Eligible returns the unreserved, quality-approved units of a grouping in
// insertion order. An empty grade matches any grade.
func (r *Repository) Eligible(_ context.Context, groupingID, grade string) ([]fulfillment.ItemInput, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []fulfillment.ItemInput
	for _, rec := range r.records {
		if rec.Grouping.ID != groupingID || !rec.Quality.Approved {
			continue
		}
		if grade != "" && rec.Quality.Grade != grade {
			continue
		}
		if _, taken := r.reserved[rec.Unit.ID]; taken {
			continue
		}
		out = append(out, rec.Input())
	}
	return out, nil
}

// Reserve commits units to a checklist. Units unknown to the repository are
// ignored. A unit already held by another checklist makes the whole call fail
// without reserving anything.
func (r *Repository) Reserve(_ context.Context, checklistID string, unitIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var conflicts []string
	for _, id := range unitIDs {
		if holder, ok := r.reserved[id]; ok && holder != checklistID {
			conflicts = append(conflicts, fmt.Sprintf("%s (held by %s)", id, holder))
		}
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return fmt.Errorf("units already reserved: %v", conflicts)
	}

	for _, id := range unitIDs {
		if _, known := r.index[id]; known {
			r.reserved[id] = checklistID
		}
	}
	return nil
}

// Release returns units held by checklistID to the eligible pool. Units held by
// another checklist keep their hold.
func (r *Repository) Release(_ context.Context, checklistID string, unitIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range unitIDs {
		if holder, ok := r.reserved[id]; ok && holder == checklistID {
			delete(r.reserved, id)
		}
	}
	return nil
}

// ReservedBy reports which checklist holds unitID.
func (r *Repository) ReservedBy(unitID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.reserved[unitID]
	return id, ok
}

// RestoreReservations marks every unit on the given checklists as reserved.
// Used after the engine reloads persisted checklists.
func (r *Repository) RestoreReservations(checklists []*fulfillment.Checklist) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range checklists {
		for _, it := range c.Items {
			if _, known := r.index[it.UnitID]; known {
				r.reserved[it.UnitID] = c.ID
			}
		}
	}
}
