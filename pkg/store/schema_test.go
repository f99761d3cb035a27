package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyPatterns(t *testing.T) {
	assert.Equal(t, "tally:prod:checklist:c-1", ChecklistKey("prod", "c-1"))
	assert.Equal(t, "tally:prod:workspace:w-1", WorkspaceKey("prod", "w-1"))
	assert.Equal(t, "tally:prod:modification:r-1", ModificationKey("prod", "r-1"))
	assert.Equal(t, "tally:prod:events", EventsChannel("prod"))
	assert.Equal(t, "tally:prod:checklist:", keyPrefix("prod", "checklist"))
}
