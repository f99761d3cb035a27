package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/dyluth/tally/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *store.Client {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := store.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPersistAndRestore(t *testing.T) {
	ctx := context.Background()
	client := setupStore(t)
	e := newTestEngine(t, Options{Persister: client, Publisher: client})

	ws, cl := lockedChecklist(t, e, "cust", "A", "B")
	_, err := e.Scan(ctx, cl.ID, "A", "scanner")
	require.NoError(t, err)
	req, err := e.RequestModification(ctx, cl.ID, fulfillment.RequestInput{RequesterID: "clerk", Reason: "swap B"})
	require.NoError(t, err)

	stored, err := client.GetChecklist(ctx, cl.ID)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusModificationRequested, stored.Status)
	assert.Equal(t, 1, stored.Progress().ScannedCount)

	restored := newTestEngine(t, Options{Persister: client, Publisher: client})
	stats, err := restored.Restore(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, RestoreStats{Workspaces: 1, Checklists: 1, Requests: 1}, stats)
	assert.Equal(t, ws.ID, restored.ActiveWorkspace())

	w, err := restored.Workspace(ws.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, w.CompletedScans)

	t.Run("restored engine keeps the workflow going", func(t *testing.T) {
		_, err := restored.ResolveModification(ctx, req.ID, false, "admin", "keep it")
		require.NoError(t, err)

		_, err = restored.Scan(ctx, cl.ID, "B", "scanner")
		require.NoError(t, err)

		stored, err := client.GetChecklist(ctx, cl.ID)
		require.NoError(t, err)
		assert.True(t, stored.Progress().IsComplete)

		storedReq, err := client.GetModificationRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, fulfillment.RequestRejected, storedReq.Status)
	})

	t.Run("restore refuses a populated engine", func(t *testing.T) {
		_, err := restored.Restore(ctx, client)
		assert.Error(t, err)
	})

	t.Run("close deletes from the store", func(t *testing.T) {
		require.NoError(t, restored.CloseWorkspace(ctx, ws.ID))
		_, err := client.GetWorkspace(ctx, ws.ID)
		assert.True(t, store.IsNotFound(err))
		_, err = client.GetChecklist(ctx, cl.ID)
		assert.True(t, store.IsNotFound(err))
	})
}

func TestRestoreSkipsOrphans(t *testing.T) {
	ctx := context.Background()
	client := setupStore(t)

	orphan := fulfillment.NewChecklist("orphan", "no-such-workspace", "cust", testTime)
	require.NoError(t, client.SaveChecklist(ctx, orphan))

	w := fulfillment.NewWorkspace("ws-1", "cust", "", testTime.UnixMilli())
	w.ChecklistIDs = []string{"gone"}
	w.ActiveChecklistID = "gone"
	require.NoError(t, client.SaveWorkspace(ctx, w))

	e := newTestEngine(t, Options{})
	stats, err := e.Restore(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Workspaces)
	assert.Equal(t, 0, stats.Checklists)
	assert.Equal(t, 2, stats.Skipped)

	got, err := e.Workspace("ws-1")
	require.NoError(t, err)
	assert.Empty(t, got.ChecklistIDs)
	assert.Empty(t, got.ActiveChecklistID)
}

// flakyPersister fails every checklist write.
type flakyPersister struct {
	nopPersister
}

func (flakyPersister) SaveChecklist(context.Context, *fulfillment.Checklist) error {
	return errors.New("redis: connection refused")
}

func TestPersistErrorKeepsAppliedState(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Options{Persister: flakyPersister{}})

	ws, err := e.CreateWorkspace(ctx, "cust", "")
	require.NoError(t, err)

	cl, err := e.AddChecklist(ctx, ws.ID, []fulfillment.ItemInput{bale("A", 1)})
	var pe *PersistError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "add_checklist", pe.Op)
	require.NotNil(t, cl)

	_, err = e.Confirm(ctx, cl.ID, "clerk")
	require.True(t, errors.As(err, &pe))
	assert.Empty(t, fulfillment.KindOf(err))

	got, err := e.Checklist(cl.ID)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusConfirmed, got.Status)
}

// memInventory is a minimal InventorySource.
type memInventory struct {
	mu       sync.Mutex
	units    []fulfillment.ItemInput
	reserved map[string]string
}

func (m *memInventory) Eligible(_ context.Context, groupingID, grade string) ([]fulfillment.ItemInput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []fulfillment.ItemInput
	for _, u := range m.units {
		if u.Grouping.ID == groupingID && (grade == "" || u.Quality.Grade == grade) && m.reserved[u.Unit.ID] == "" {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memInventory) Reserve(_ context.Context, checklistID string, unitIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range unitIDs {
		if holder := m.reserved[id]; holder != "" && holder != checklistID {
			return fmt.Errorf("unit %s held by %s", id, holder)
		}
	}
	for _, id := range unitIDs {
		m.reserved[id] = checklistID
	}
	return nil
}

func (m *memInventory) Release(_ context.Context, checklistID string, unitIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range unitIDs {
		if m.reserved[id] == checklistID {
			delete(m.reserved, id)
		}
	}
	return nil
}

func TestPopulateChecklist(t *testing.T) {
	ctx := context.Background()
	inv := &memInventory{reserved: map[string]string{}}
	for _, id := range []string{"P1", "P2", "P3"} {
		inv.units = append(inv.units, bale(id, 10))
	}
	other := bale("Q1", 10)
	other.Grouping.ID = "marka-2"
	inv.units = append(inv.units, other)

	e := newTestEngine(t, Options{Inventory: inv})
	ws, err := e.CreateWorkspace(ctx, "cust", "")
	require.NoError(t, err)
	cl, err := e.AddChecklist(ctx, ws.ID, nil)
	require.NoError(t, err)

	added, got, err := e.PopulateChecklist(ctx, cl.ID, "marka-1", "A", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, 2, got.TotalItems)
	assert.Equal(t, "20", got.TotalWeight.String())
	assert.Equal(t, cl.ID, inv.reserved["P1"])

	added, got, err = e.PopulateChecklist(ctx, cl.ID, "marka-1", "A", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, added, "reserved units are no longer eligible")
	assert.Equal(t, 3, got.TotalItems)

	_, err = e.RemoveItem(ctx, cl.ID, "P1")
	require.NoError(t, err)
	assert.Empty(t, inv.reserved["P1"])

	_, _, err = e.PopulateChecklist(ctx, cl.ID, "", "A", 0)
	assert.True(t, errors.Is(err, fulfillment.ErrValidation))

	_, err = e.Confirm(ctx, cl.ID, "clerk")
	require.NoError(t, err)
	_, _, err = e.PopulateChecklist(ctx, cl.ID, "marka-1", "A", 0)
	assert.True(t, errors.Is(err, fulfillment.ErrInvalidState))

	t.Run("no inventory source", func(t *testing.T) {
		bare := newTestEngine(t, Options{})
		_, _, err := bare.PopulateChecklist(ctx, "x", "marka-1", "", 0)
		assert.True(t, errors.Is(err, fulfillment.ErrValidation))
	})
}

func TestReleaseKeepsOtherChecklistsHold(t *testing.T) {
	ctx := context.Background()
	inv := &memInventory{reserved: map[string]string{}}
	inv.units = append(inv.units, bale("P1", 10), bale("P2", 10))

	e := newTestEngine(t, Options{Inventory: inv})
	ws, err := e.CreateWorkspace(ctx, "cust", "")
	require.NoError(t, err)
	a, err := e.AddChecklist(ctx, ws.ID, nil)
	require.NoError(t, err)
	b, err := e.AddChecklist(ctx, ws.ID, nil)
	require.NoError(t, err)

	_, err = e.AddItem(ctx, a.ID, bale("P1", 10))
	require.NoError(t, err)
	require.Equal(t, a.ID, inv.reserved["P1"])

	// the hold stays with a when b takes and drops the same unit
	_, err = e.AddItem(ctx, b.ID, bale("P1", 10))
	require.NoError(t, err)
	_, err = e.RemoveItem(ctx, b.ID, "P1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, inv.reserved["P1"])

	c, err := e.AddChecklist(ctx, ws.ID, nil)
	require.NoError(t, err)
	added, got, err := e.PopulateChecklist(ctx, c.ID, "marka-1", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "P2", got.Items[0].UnitID)

	_, err = e.RemoveChecklist(ctx, ws.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, inv.reserved["P1"])

	require.NoError(t, e.CloseWorkspace(ctx, ws.ID))
	assert.Empty(t, inv.reserved)
}
