package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetChecklist(t *testing.T) {
	ctx := context.Background()
	client := setupClient(t)
	saveChecklist(t, client, "cl-1", "acme", base, fulfillment.StatusConfirmed, "B-1")

	t.Run("found", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, GetChecklist(ctx, client, "cl-1", &buf))

		var got fulfillment.Checklist
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, fulfillment.StatusConfirmed, got.Status)
		assert.Equal(t, "B-1", got.Items[0].UnitID)
		assert.Contains(t, buf.String(), "\n  \"id\"", "pretty-printed")
	})

	t.Run("not found", func(t *testing.T) {
		var buf bytes.Buffer
		err := GetChecklist(ctx, client, "cl-404", &buf)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.Contains(t, err.Error(), "cl-404")
	})
}
