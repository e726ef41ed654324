// ABOUTME: Test helpers and estimate-level tests for the SQLite store
// ABOUTME: Covers creation defaults, ownership opacity and full cascade deletes

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "owner-1"

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// countRows is a raw count helper for matrix/cascade assertions.
func countRows(t *testing.T, s *SQLiteStore, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestStore_CreateEstimate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	est, err := store.CreateEstimate(ctx, testOwner, "Kitchen remodel")
	require.NoError(t, err)
	assert.NotEmpty(t, est.ID)
	assert.Equal(t, "Kitchen remodel", est.Title)

	retrieved, err := store.GetEstimate(ctx, testOwner, est.ID)
	require.NoError(t, err)
	assert.Equal(t, est.ID, retrieved.ID)
	assert.Nil(t, retrieved.SyncedAt)

	// Every estimate starts with one view.
	tree, err := store.GetEstimateTree(ctx, testOwner, est.ID)
	require.NoError(t, err)
	require.Len(t, tree.Views, 1)
	assert.Equal(t, "Main", tree.Views[0].Name)
	assert.NotEmpty(t, tree.Views[0].LinkToken)
}

func TestStore_CreateEstimate_Validation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.CreateEstimate(ctx, testOwner, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = store.CreateEstimate(ctx, "", "Title")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStore_GetEstimate_WrongOwner(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	est, err := store.CreateEstimate(ctx, testOwner, "Kitchen remodel")
	require.NoError(t, err)

	// Another owner sees plain NotFound, same as a missing id.
	_, err = store.GetEstimate(ctx, "owner-2", est.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetEstimate(ctx, testOwner, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListEstimates(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.CreateEstimate(ctx, testOwner, "First")
	require.NoError(t, err)
	_, err = store.CreateEstimate(ctx, testOwner, "Second")
	require.NoError(t, err)
	_, err = store.CreateEstimate(ctx, "owner-2", "Other")
	require.NoError(t, err)

	estimates, err := store.ListEstimates(ctx, testOwner)
	require.NoError(t, err)
	assert.Len(t, estimates, 2)
}

func TestStore_DeleteEstimate_Cascades(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	est, err := store.CreateEstimate(ctx, testOwner, "Kitchen remodel")
	require.NoError(t, err)
	sec, err := store.CreateSection(ctx, testOwner, est.ID, "Demolition")
	require.NoError(t, err)
	_, err = store.CreateItem(ctx, testOwner, sec.ID, "Remove cabinets", "h", 2)
	require.NoError(t, err)
	_, err = store.CreateView(ctx, testOwner, est.ID, "Client")
	require.NoError(t, err)
	_, err = store.CreateVersion(ctx, testOwner, est.ID, "before delete")
	require.NoError(t, err)

	require.NoError(t, store.DeleteEstimate(ctx, testOwner, est.ID))

	_, err = store.GetEstimate(ctx, testOwner, est.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	for _, table := range []string{
		"sections", "items", "views", "view_sections", "view_items",
		"versions", "version_sections", "version_items", "version_views",
		"version_view_sections", "version_view_items",
	} {
		assert.Zero(t, countRows(t, store, table), "table %s should be empty", table)
	}
}
