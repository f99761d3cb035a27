package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func bale(id string, kg int64) fulfillment.ItemInput {
	return fulfillment.ItemInput{
		Unit:     fulfillment.Unit{ID: id, Weight: decimal.NewFromInt(kg)},
		Grouping: fulfillment.Grouping{ID: "marka-1", Name: "Marka 1"},
		Quality:  fulfillment.QualityResult{Grade: "A", Score: decimal.NewFromInt(9), Approved: true},
	}
}

// recorder captures published events.
type recorder struct {
	mu     sync.Mutex
	events []fulfillment.Event
}

func (r *recorder) Publish(_ context.Context, ev fulfillment.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []fulfillment.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]fulfillment.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return testTime }
	}
	if opts.InstanceName == "" {
		opts.InstanceName = "test-instance"
	}
	return New(opts)
}

// lockedChecklist creates a workspace for customer with a locked checklist of units.
func lockedChecklist(t *testing.T, e *Engine, customer string, units ...string) (*fulfillment.Workspace, *fulfillment.Checklist) {
	t.Helper()
	ctx := context.Background()
	ws, err := e.CreateWorkspace(ctx, customer, "")
	require.NoError(t, err)

	inputs := make([]fulfillment.ItemInput, 0, len(units))
	for i, u := range units {
		inputs = append(inputs, bale(u, int64(100+i)))
	}
	cl, err := e.AddChecklist(ctx, ws.ID, inputs)
	require.NoError(t, err)
	_, err = e.Confirm(ctx, cl.ID, "clerk")
	require.NoError(t, err)
	cl, err = e.Lock(ctx, cl.ID, "clerk")
	require.NoError(t, err)
	return ws, cl
}

func TestScanScenario(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Options{})

	ws, err := e.CreateWorkspace(ctx, "customer-c", "Customer C")
	require.NoError(t, err)
	assert.Equal(t, fulfillment.StepToys, ws.Step)

	cl, err := e.AddChecklist(ctx, ws.ID, []fulfillment.ItemInput{bale("A", 100), bale("B", 110), bale("C", 120)})
	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusDraft, cl.Status)
	assert.Equal(t, 3, cl.TotalItems)
	assert.Equal(t, "330", cl.TotalWeight.String())

	cl, err = e.Transition(ctx, cl.ID, fulfillment.ActionConfirm, "clerk")
	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusConfirmed, cl.Status)

	cl, err = e.Transition(ctx, cl.ID, fulfillment.ActionLock, "clerk")
	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusLocked, cl.Status)

	res, err := e.Scan(ctx, cl.ID, "A", "scanner-1")
	require.NoError(t, err)
	assert.Equal(t, "A", res.MatchedUnitID)
	assert.Equal(t, 1, res.ScannedCount)

	_, err = e.Scan(ctx, cl.ID, "A", "scanner-1")
	assert.True(t, errors.Is(err, fulfillment.ErrDuplicateScan))

	_, err = e.Scan(ctx, cl.ID, "XYZ", "scanner-1")
	assert.True(t, errors.Is(err, fulfillment.ErrUnknownCode))

	got, err := e.Checklist(cl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Progress().ScannedCount)

	_, err = e.Scan(ctx, cl.ID, "B", "scanner-1")
	require.NoError(t, err)
	res, err = e.Scan(ctx, cl.ID, "C", "scanner-1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ScannedCount)
	assert.True(t, res.IsComplete)

	got, err = e.Checklist(cl.ID)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusLocked, got.Status, "completion does not transition state")

	w, err := e.Workspace(ws.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, w.CompletedScans)
	last := w.Notifications[len(w.Notifications)-1]
	assert.Equal(t, fulfillment.NotifySuccess, last.Kind)
	assert.Contains(t, last.Message, "All 3 items scanned")
}

func TestModificationScenario(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Options{})

	ws, err := e.CreateWorkspace(ctx, "customer-c", "")
	require.NoError(t, err)
	cl, err := e.AddChecklist(ctx, ws.ID, []fulfillment.ItemInput{bale("A", 100)})
	require.NoError(t, err)

	_, err = e.RequestModification(ctx, cl.ID, fulfillment.RequestInput{RequesterID: "clerk", Reason: "wrong bale"})
	assert.True(t, errors.Is(err, fulfillment.ErrInvalidState))

	_, err = e.Confirm(ctx, cl.ID, "clerk")
	require.NoError(t, err)
	_, err = e.Lock(ctx, cl.ID, "clerk")
	require.NoError(t, err)

	req, err := e.RequestModification(ctx, cl.ID, fulfillment.RequestInput{RequesterID: "clerk", Reason: "wrong bale"})
	require.NoError(t, err)
	assert.Equal(t, fulfillment.RequestPending, req.Status)

	got, err := e.Checklist(cl.ID)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusModificationRequested, got.Status)
	assert.Equal(t, "wrong bale", got.ModificationReason)

	_, err = e.RequestModification(ctx, cl.ID, fulfillment.RequestInput{RequesterID: "clerk", Reason: "again"})
	assert.True(t, errors.Is(err, fulfillment.ErrDuplicateRequest))

	resolved, err := e.ResolveModification(ctx, req.ID, true, "admin", "ok")
	require.NoError(t, err)
	assert.Equal(t, fulfillment.RequestApproved, resolved.Status)

	got, err = e.Checklist(cl.ID)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusDraft, got.Status)
	assert.Empty(t, got.ModificationReason)

	t.Run("second resolve is a no-op", func(t *testing.T) {
		again, err := e.ResolveModification(ctx, req.ID, false, "admin", "")
		require.NoError(t, err)
		assert.Equal(t, fulfillment.RequestApproved, again.Status)
		got, err := e.Checklist(cl.ID)
		require.NoError(t, err)
		assert.Equal(t, fulfillment.StatusDraft, got.Status)
	})

	t.Run("requests are listed per checklist", func(t *testing.T) {
		list, err := e.ModificationRequests(cl.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, req.ID, list[0].ID)

		one, err := e.ModificationRequest(req.ID)
		require.NoError(t, err)
		assert.Equal(t, "admin", one.ReviewerID)
	})
}

type denyAll struct{}

func (denyAll) Authorize(actorID string, action fulfillment.Action) error {
	if action == fulfillment.ActionLock {
		return nil
	}
	return fulfillment.NewError(fulfillment.KindUnauthorized, string(action), "%s may not %s", actorID, action)
}

func TestResolveRequiresAuthorization(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Options{Authorizer: denyAll{}})
	_, cl := lockedChecklist(t, e, "cust", "A")

	req, err := e.RequestModification(ctx, cl.ID, fulfillment.RequestInput{RequesterID: "clerk", Reason: "fix"})
	require.NoError(t, err)

	_, err = e.ResolveModification(ctx, req.ID, true, "clerk", "")
	assert.True(t, errors.Is(err, fulfillment.ErrUnauthorized))

	got, err := e.Checklist(cl.ID)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.StatusModificationRequested, got.Status)

	_, err = e.ResolveModification(ctx, "missing", true, "admin", "")
	assert.True(t, errors.Is(err, fulfillment.ErrNotFound))
}

func TestCrossWorkspaceIsolation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Options{})

	_, clA := lockedChecklist(t, e, "cust-a", "A1", "A2")
	wsB, clB := lockedChecklist(t, e, "cust-b", "B1", "B2")
	before, err := e.Checklist(clB.ID)
	require.NoError(t, err)
	wsBefore, err := e.Workspace(wsB.ID)
	require.NoError(t, err)

	_, err = e.Scan(ctx, clA.ID, "A1", "scanner")
	require.NoError(t, err)
	req, err := e.RequestModification(ctx, clA.ID, fulfillment.RequestInput{RequesterID: "u", Reason: "r"})
	require.NoError(t, err)
	_, err = e.ResolveModification(ctx, req.ID, true, "admin", "")
	require.NoError(t, err)
	_, err = e.AddItem(ctx, clA.ID, bale("A3", 5))
	require.NoError(t, err)

	after, err := e.Checklist(clB.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	wsAfter, err := e.Workspace(wsB.ID)
	require.NoError(t, err)
	assert.Equal(t, wsBefore, wsAfter)
}

func TestConcurrentScansSameChecklist(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Options{})

	units := make([]string, 40)
	for i := range units {
		units[i] = fmt.Sprintf("U%02d", i)
	}
	_, cl := lockedChecklist(t, e, "cust", units...)

	var wg sync.WaitGroup
	errs := make(chan error, len(units)*2)
	for _, u := range units {
		for n := 0; n < 2; n++ {
			wg.Add(1)
			go func(code string) {
				defer wg.Done()
				_, err := e.Scan(ctx, cl.ID, code, "scanner")
				errs <- err
			}(u)
		}
	}
	wg.Wait()
	close(errs)

	accepted, duplicates := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, fulfillment.ErrDuplicateScan):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, len(units), accepted)
	assert.Equal(t, len(units), duplicates)

	got, err := e.Checklist(cl.ID)
	require.NoError(t, err)
	p := got.Progress()
	assert.Equal(t, len(units), p.ScannedCount)
	assert.True(t, p.IsComplete)

	w, err := e.Workspace(got.WorkspaceID)
	require.NoError(t, err)
	assert.Len(t, w.CompletedScans, len(units))
}

func TestConcurrentWorkspacesDoNotInterfere(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Options{})

	const n = 8
	checklists := make([]*fulfillment.Checklist, n)
	for i := 0; i < n; i++ {
		_, checklists[i] = lockedChecklist(t, e, fmt.Sprintf("cust-%d", i), "X", "Y", "Z")
	}

	var wg sync.WaitGroup
	for _, cl := range checklists {
		for _, code := range []string{"X", "Y", "Z"} {
			wg.Add(1)
			go func(id, code string) {
				defer wg.Done()
				_, err := e.Scan(ctx, id, code, "scanner")
				assert.NoError(t, err)
			}(cl.ID, code)
		}
	}
	wg.Wait()

	for _, cl := range checklists {
		got, err := e.Checklist(cl.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.Progress().ScannedCount)
	}
}

func TestClearScansAfterApproval(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	e := newTestEngine(t, Options{Publisher: rec})
	_, cl := lockedChecklist(t, e, "customer-c", "A", "B")

	_, err := e.Scan(ctx, cl.ID, "A", "scanner-1")
	require.NoError(t, err)

	t.Run("rejected outside draft", func(t *testing.T) {
		_, _, err := e.ClearScans(ctx, cl.ID, []string{"A"}, "clerk")
		assert.True(t, errors.Is(err, fulfillment.ErrInvalidState))
	})

	req, err := e.RequestModification(ctx, cl.ID, fulfillment.RequestInput{RequesterID: "clerk", Reason: "rescan A"})
	require.NoError(t, err)
	_, err = e.ResolveModification(ctx, req.ID, true, "admin", "")
	require.NoError(t, err)

	got, err := e.Checklist(cl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Progress().ScannedCount, "scans persist across approval")

	n, after, err := e.ClearScans(ctx, cl.ID, []string{"A", "B", "missing"}, "clerk")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, after.Progress().ScannedCount)
	assert.Contains(t, rec.types(), fulfillment.EventChecklistChanged)

	t.Run("nothing left to clear", func(t *testing.T) {
		n, same, err := e.ClearScans(ctx, cl.ID, []string{"A"}, "clerk")
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, fulfillment.StatusDraft, same.Status)
	})
}
