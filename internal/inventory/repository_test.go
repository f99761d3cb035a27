package inventory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
units:
  - id: B-100
    weight: "182.5"
    grouping_id: marka-7
    grouping_name: Marka 7
    grade: A
    score: "8.9"
    approved: true
  - id: B-101
    weight: "176"
    grouping_id: marka-7
    grade: B
    score: "7.1"
    approved: true
  - id: B-102
    weight: "190"
    grouping_id: marka-7
    grade: A
    approved: false
  - id: B-200
    weight: "150"
    grouping_id: marka-9
    grade: A
    approved: true
`

func seeded(t *testing.T) *Repository {
	t.Helper()
	repo := NewRepository()
	n, err := repo.Load(strings.NewReader(seedYAML))
	require.NoError(t, err)
	require.Equal(t, 4, n)
	return repo
}

func ids(inputs []fulfillment.ItemInput) []string {
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, in.Unit.ID)
	}
	return out
}

func TestEligible(t *testing.T) {
	repo := seeded(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		grouping string
		grade    string
		expected []string
	}{
		{name: "any grade skips unapproved", grouping: "marka-7", expected: []string{"B-100", "B-101"}},
		{name: "grade filter", grouping: "marka-7", grade: "A", expected: []string{"B-100"}},
		{name: "other grouping", grouping: "marka-9", expected: []string{"B-200"}},
		{name: "unknown grouping", grouping: "marka-0", expected: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Eligible(ctx, tt.grouping, tt.grade)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids(got))
		})
	}

	got, err := repo.Eligible(ctx, "marka-7", "A")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "182.5", got[0].Unit.Weight.String())
	assert.Equal(t, "Marka 7", got[0].Grouping.Name)
	assert.Equal(t, "8.9", got[0].Quality.Score.String())
	assert.NoError(t, got[0].Validate())
}

func TestReserveAndRelease(t *testing.T) {
	repo := seeded(t)
	ctx := context.Background()

	require.NoError(t, repo.Reserve(ctx, "cl-1", []string{"B-100", "unknown"}))
	holder, ok := repo.ReservedBy("B-100")
	assert.True(t, ok)
	assert.Equal(t, "cl-1", holder)
	_, ok = repo.ReservedBy("unknown")
	assert.False(t, ok)

	got, err := repo.Eligible(ctx, "marka-7", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"B-101"}, ids(got))

	t.Run("conflicting reservation changes nothing", func(t *testing.T) {
		err := repo.Reserve(ctx, "cl-2", []string{"B-101", "B-100"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "held by cl-1")
		_, ok := repo.ReservedBy("B-101")
		assert.False(t, ok)
	})

	t.Run("same checklist may reserve again", func(t *testing.T) {
		assert.NoError(t, repo.Reserve(ctx, "cl-1", []string{"B-100"}))
	})

	t.Run("release by another checklist keeps the hold", func(t *testing.T) {
		require.NoError(t, repo.Release(ctx, "cl-2", []string{"B-100"}))
		holder, ok := repo.ReservedBy("B-100")
		assert.True(t, ok)
		assert.Equal(t, "cl-1", holder)
	})

	require.NoError(t, repo.Release(ctx, "cl-1", []string{"B-100"}))
	got, err = repo.Eligible(ctx, "marka-7", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"B-100", "B-101"}, ids(got))
}

func TestRestoreReservations(t *testing.T) {
	repo := seeded(t)
	rec, ok := repo.Get("B-100")
	require.True(t, ok)

	c := fulfillment.NewChecklist("cl-9", "ws", "cust", time.Now())
	_, err := c.AddItem(rec.Input())
	require.NoError(t, err)

	repo.RestoreReservations([]*fulfillment.Checklist{c})
	holder, ok := repo.ReservedBy("B-100")
	assert.True(t, ok)
	assert.Equal(t, "cl-9", holder)
}

func TestLookup(t *testing.T) {
	repo := seeded(t)

	in, ok := repo.Lookup("B-101")
	require.True(t, ok)
	assert.Equal(t, "marka-7", in.Grouping.ID)
	assert.Equal(t, "B", in.Quality.Grade)
	assert.True(t, in.Unit.Weight.Equal(decimal.NewFromInt(176)))

	_, ok = repo.Lookup("B-999")
	assert.False(t, ok)
}

func TestAddValidation(t *testing.T) {
	repo := NewRepository()
	assert.Error(t, repo.Add(Record{}))
	assert.Error(t, repo.Add(Record{Unit: fulfillment.Unit{ID: "x"}}))

	rec := Record{Unit: fulfillment.Unit{ID: "x", Weight: decimal.NewFromInt(1)}, Grouping: fulfillment.Grouping{ID: "g"}}
	require.NoError(t, repo.Add(rec))
	assert.Error(t, repo.Add(rec))
	assert.Len(t, repo.Units(), 1)
}

func TestLoadSeed(t *testing.T) {
	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "inventory.yml")
		require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o644))

		repo := NewRepository()
		n, err := repo.LoadSeed(path)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewRepository().LoadSeed(filepath.Join(t.TempDir(), "nope.yml"))
		assert.Error(t, err)
	})

	t.Run("empty document", func(t *testing.T) {
		n, err := NewRepository().Load(strings.NewReader(""))
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	tests := []struct {
		name string
		doc  string
	}{
		{"bad weight", "units:\n  - {id: a, grouping_id: g, weight: heavy}\n"},
		{"negative weight", "units:\n  - {id: a, grouping_id: g, weight: \"-1\"}\n"},
		{"bad score", "units:\n  - {id: a, grouping_id: g, score: good}\n"},
		{"unknown field", "units:\n  - {id: a, grouping_id: g, colour: red}\n"},
		{"duplicate unit", "units:\n  - {id: a, grouping_id: g}\n  - {id: a, grouping_id: g}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRepository().Load(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}
