package fulfillment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestModification(t *testing.T) {
	t.Run("draft is rejected", func(t *testing.T) {
		c, _ := checklistIn(t, StatusDraft)
		_, err := c.RequestModification("r", RequestInput{RequesterID: "u", Reason: "x"}, testTime)
		assert.True(t, errors.Is(err, ErrInvalidState))
	})

	t.Run("empty reason is a validation error", func(t *testing.T) {
		c, _ := checklistIn(t, StatusLocked)
		_, err := c.RequestModification("r", RequestInput{RequesterID: "u", Reason: "   "}, testTime)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Equal(t, StatusLocked, c.Status)
	})

	t.Run("locked checklist records reason and snapshot", func(t *testing.T) {
		c, _ := checklistIn(t, StatusLocked)
		_, err := c.Scan("U1", "s", testTime)
		require.NoError(t, err)

		req, err := c.RequestModification("r-1", RequestInput{RequesterID: "u", RequesterRole: "clerk", Reason: " wrong marka "}, testTime)
		require.NoError(t, err)
		assert.Equal(t, StatusModificationRequested, c.Status)
		assert.Equal(t, "wrong marka", c.ModificationReason)
		assert.Equal(t, "r-1", c.PendingRequestID)
		assert.Equal(t, RequestPending, req.Status)
		assert.Equal(t, 2, req.Snapshot.TotalItems)
		assert.Equal(t, 1, req.Snapshot.ScannedCount)
		assert.Equal(t, "201", req.Snapshot.TotalWeight.String())
	})

	t.Run("second request while pending is a duplicate", func(t *testing.T) {
		c, _ := checklistIn(t, StatusModificationRequested)
		_, err := c.RequestModification("r-2", RequestInput{RequesterID: "u", Reason: "again"}, testTime)
		assert.True(t, errors.Is(err, ErrDuplicateRequest))
		assert.Equal(t, "req-1", c.PendingRequestID)
	})
}

func TestResolveModification(t *testing.T) {
	t.Run("approve returns to draft and clears reason", func(t *testing.T) {
		c, req := checklistIn(t, StatusModificationRequested)
		changed, err := c.ResolveModification(req, true, "admin", "go ahead", testTime)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, StatusDraft, c.Status)
		assert.Empty(t, c.ModificationReason)
		assert.Empty(t, c.PendingRequestID)
		assert.Nil(t, c.RequestSnapshot)
		assert.Equal(t, RequestApproved, req.Status)
		assert.Equal(t, "admin", req.ReviewerID)
		assert.Equal(t, "go ahead", req.ReviewNote)
	})

	t.Run("reject returns to locked", func(t *testing.T) {
		c, req := checklistIn(t, StatusModificationRequested)
		changed, err := c.ResolveModification(req, false, "admin", "no", testTime)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, StatusLocked, c.Status)
		assert.Equal(t, RequestRejected, req.Status)
	})

	t.Run("resolving twice is a no-op", func(t *testing.T) {
		c, req := checklistIn(t, StatusModificationRequested)
		_, err := c.ResolveModification(req, true, "admin", "", testTime)
		require.NoError(t, err)
		before := c.Clone()

		changed, err := c.ResolveModification(req, false, "other-admin", "", testTime)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, before, c)
		assert.Equal(t, RequestApproved, req.Status)
		assert.Equal(t, "admin", req.ReviewerID)
	})

	t.Run("request for another checklist", func(t *testing.T) {
		c, _ := checklistIn(t, StatusModificationRequested)
		other := &ModificationRequest{ID: "req-1", ChecklistID: "someone-else", Status: RequestPending}
		_, err := c.ResolveModification(other, true, "admin", "", testTime)
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("scans survive the approval round trip", func(t *testing.T) {
		c, _ := checklistIn(t, StatusLocked)
		_, err := c.Scan("U1", "s", testTime)
		require.NoError(t, err)
		req, err := c.RequestModification("r", RequestInput{RequesterID: "u", Reason: "add bale"}, testTime)
		require.NoError(t, err)
		_, err = c.ResolveModification(req, true, "admin", "", testTime)
		require.NoError(t, err)

		_, err = c.AddItem(bale("U3", 7))
		require.NoError(t, err)
		require.NoError(t, c.Confirm("clerk", testTime))
		require.NoError(t, c.Lock(testTime))

		p := c.Progress()
		assert.Equal(t, 1, p.ScannedCount)
		assert.Equal(t, 3, p.TotalItems)
		_, err = c.Scan("U1", "s", testTime)
		assert.True(t, errors.Is(err, ErrDuplicateScan))
	})
}
