package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.Equal(t, "test-instance", client.InstanceName())
		assert.NotNil(t, client.RedisClient())
		assert.NoError(t, client.Ping(context.Background()))
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})
}

func TestChecklistCRUD(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	c := lockedChecklist(t, uuid.New().String(), "ws-1")
	require.NoError(t, client.SaveChecklist(ctx, c))
	assert.True(t, mr.Exists(ChecklistKey("test-instance", c.ID)))

	got, err := client.GetChecklist(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, fulfillment.StatusLocked, got.Status)
	assert.Equal(t, 1, got.Progress().ScannedCount)

	t.Run("missing checklist is redis.Nil", func(t *testing.T) {
		_, err := client.GetChecklist(ctx, "nope")
		assert.True(t, IsNotFound(err))
	})

	t.Run("invalid checklist is not written", func(t *testing.T) {
		bad := fulfillment.NewChecklist("", "ws-1", "cust", testTime)
		assert.Error(t, client.SaveChecklist(ctx, bad))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, client.DeleteChecklist(ctx, c.ID))
		_, err := client.GetChecklist(ctx, c.ID)
		assert.True(t, IsNotFound(err))
		assert.NoError(t, client.DeleteChecklist(ctx, c.ID))
	})
}

func TestListAndScanChecklists(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	first := fulfillment.NewChecklist("abc-1", "ws-1", "cust", testTime)
	second := fulfillment.NewChecklist("abd-2", "ws-1", "cust", testTime.Add(time.Minute))
	third := fulfillment.NewChecklist("xyz-3", "ws-2", "cust", testTime.Add(-time.Minute))
	for _, c := range []*fulfillment.Checklist{first, second, third} {
		require.NoError(t, client.SaveChecklist(ctx, c))
	}

	all, err := client.ListChecklists(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "xyz-3", all[0].ID)
	assert.Equal(t, "abd-2", all[2].ID)

	ids, err := client.ScanChecklistIDs(ctx, "ab")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc-1", "abd-2"}, ids)

	ids, err = client.ScanChecklistIDs(ctx, "q")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestWorkspaceCRUD(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	w := fulfillment.NewWorkspace("ws-1", "cust-1", "Acme", testTime.UnixMilli())
	w.ChecklistIDs = []string{"c-1"}
	w.Notify(fulfillment.Notification{ID: "n1", Message: "hello"}, 0)
	require.NoError(t, client.SaveWorkspace(ctx, w))

	got, err := client.GetWorkspace(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, w, got)

	other := fulfillment.NewWorkspace("ws-0", "cust-2", "", testTime.Add(-time.Hour).UnixMilli())
	require.NoError(t, client.SaveWorkspace(ctx, other))

	list, err := client.ListWorkspaces(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ws-0", list[0].ID)

	w.Step = "packing"
	assert.Error(t, client.SaveWorkspace(ctx, w))

	require.NoError(t, client.DeleteWorkspace(ctx, "ws-1"))
	_, err = client.GetWorkspace(ctx, "ws-1")
	assert.True(t, IsNotFound(err))
}

func TestModificationRequestCRUD(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	c := lockedChecklist(t, "c-1", "ws-1")
	req, err := c.RequestModification("r-1", fulfillment.RequestInput{RequesterID: "u", Reason: "add bale"}, testTime)
	require.NoError(t, err)
	require.NoError(t, client.SaveModificationRequest(ctx, req))

	got, err := client.GetModificationRequest(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, fulfillment.RequestPending, got.Status)
	assert.Equal(t, "add bale", got.Reason)
	assert.Equal(t, 1, got.Snapshot.ScannedCount)

	list, err := client.ListModificationRequests(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = client.GetModificationRequest(ctx, "r-2")
	assert.True(t, IsNotFound(err))

	assert.Error(t, client.SaveModificationRequest(ctx, &fulfillment.ModificationRequest{ID: "r-3"}))
}

func TestSubscribeEvents(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	sub, err := client.SubscribeEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()
	assert.NotNil(t, sub.Errors())

	ev := fulfillment.Event{
		Type:        fulfillment.EventScanAccepted,
		WorkspaceID: "ws-1",
		ChecklistID: "c-1",
		UnitID:      "U1",
		AtMs:        42,
	}
	require.NoError(t, client.Publish(ctx, ev))

	select {
	case got := <-sub.Events():
		assert.Equal(t, ev, *got)
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	t.Run("close is idempotent and ends the stream", func(t *testing.T) {
		assert.NoError(t, sub.Close())
		assert.NoError(t, sub.Close())
		select {
		case _, ok := <-sub.Events():
			assert.False(t, ok)
		case <-time.After(1 * time.Second):
			t.Fatal("events channel not closed")
		}
	})
}

func TestInstanceNamespacing(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	defer mr.Close()

	a, err := NewClient(&redis.Options{Addr: mr.Addr()}, "alpha")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewClient(&redis.Options{Addr: mr.Addr()}, "beta")
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, a.SaveChecklist(ctx, fulfillment.NewChecklist("c-1", "ws", "cust", testTime)))

	_, err = b.GetChecklist(ctx, "c-1")
	assert.True(t, IsNotFound(err))

	list, err := b.ListChecklists(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
