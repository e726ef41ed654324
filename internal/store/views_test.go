// ABOUTME: View lifecycle and settings matrix tests
// ABOUTME: Covers backfill completeness, duplication, last-view guard and cross-estimate rejection

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SettingsMatrixComplete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	est, err := store.CreateEstimate(ctx, testOwner, "Kitchen remodel")
	require.NoError(t, err)

	// Interleave entity and view creation; the matrix must stay complete.
	secA, err := store.CreateSection(ctx, testOwner, est.ID, "Demolition")
	require.NoError(t, err)
	_, err = store.CreateItem(ctx, testOwner, secA.ID, "Remove cabinets", "h", 1)
	require.NoError(t, err)

	_, err = store.CreateView(ctx, testOwner, est.ID, "Client")
	require.NoError(t, err)
	_, err = store.CreateView(ctx, testOwner, est.ID, "Contractor")
	require.NoError(t, err)

	secB, err := store.CreateSection(ctx, testOwner, est.ID, "Plumbing")
	require.NoError(t, err)
	_, err = store.CreateItem(ctx, testOwner, secB.ID, "Rough-in", "h", 8)
	require.NoError(t, err)
	_, err = store.CreateItem(ctx, testOwner, secB.ID, "Fixtures", "pcs", 3)
	require.NoError(t, err)

	// 3 views ("Main" + 2) × 2 sections and × 3 items.
	assert.Equal(t, 6, countRows(t, store, "view_sections"))
	assert.Equal(t, 9, countRows(t, store, "view_items"))
}

func TestStore_CreateView_SeedsDefaults(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	est, err := store.CreateEstimate(ctx, testOwner, "Kitchen remodel")
	require.NoError(t, err)
	sec, err := store.CreateSection(ctx, testOwner, est.ID, "Demolition")
	require.NoError(t, err)
	item, err := store.CreateItem(ctx, testOwner, sec.ID, "Remove cabinets", "h", 1)
	require.NoError(t, err)

	view, err := store.CreateView(ctx, testOwner, est.ID, "Client")
	require.NoError(t, err)
	assert.NotEmpty(t, view.LinkToken)

	content, err := store.GetViewContent(ctx, view.ID)
	require.NoError(t, err)
	require.Contains(t, content.SectionSettings, sec.ID)
	assert.True(t, content.SectionSettings[sec.ID].Visible)
	require.Contains(t, content.ItemSettings, item.ID)
	assert.Zero(t, content.ItemSettings[item.ID].Price)
	assert.True(t, content.ItemSettings[item.ID].Visible)
}

func TestStore_DuplicateView_CopiesPrices(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	est, err := store.CreateEstimate(ctx, testOwner, "Kitchen remodel")
	require.NoError(t, err)
	sec, err := store.CreateSection(ctx, testOwner, est.ID, "Demolition")
	require.NoError(t, err)
	item, err := store.CreateItem(ctx, testOwner, sec.ID, "Remove cabinets", "h", 2)
	require.NoError(t, err)

	view, err := store.CreateView(ctx, testOwner, est.ID, "Client")
	require.NoError(t, err)
	price := 150.0
	hidden := false
	require.NoError(t, store.SetItemSetting(ctx, testOwner, view.ID, item.ID, ItemSettingUpdate{Price: &price}))
	require.NoError(t, store.SetSectionVisibility(ctx, testOwner, view.ID, sec.ID, hidden))

	clone, err := store.DuplicateView(ctx, testOwner, view.ID)
	require.NoError(t, err)
	assert.Equal(t, "Client (copy)", clone.Name)
	assert.NotEqual(t, view.LinkToken, clone.LinkToken)

	content, err := store.GetViewContent(ctx, clone.ID)
	require.NoError(t, err)
	assert.Equal(t, 150.0, content.ItemSettings[item.ID].Price)
	assert.Equal(t, 300.0, content.ItemSettings[item.ID].Total)
	assert.False(t, content.SectionSettings[sec.ID].Visible)
}

func TestStore_UpdateView_PasswordClear(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	est, err := store.CreateEstimate(ctx, testOwner, "Kitchen remodel")
	require.NoError(t, err)
	view, err := store.CreateView(ctx, testOwner, est.ID, "Client")
	require.NoError(t, err)

	secret := "hunter2"
	require.NoError(t, store.UpdateView(ctx, testOwner, view.ID, ViewUpdate{Password: &secret}))
	got, err := store.GetViewByToken(ctx, view.LinkToken)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got.Password)

	// Empty string clears protection.
	empty := ""
	require.NoError(t, store.UpdateView(ctx, testOwner, view.ID, ViewUpdate{Password: &empty}))
	got, err = store.GetViewByToken(ctx, view.LinkToken)
	require.NoError(t, err)
	assert.Empty(t, got.Password)
}

func TestStore_DeleteView_LastViewRefused(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	est, err := store.CreateEstimate(ctx, testOwner, "Kitchen remodel")
	require.NoError(t, err)
	tree, err := store.GetEstimateTree(ctx, testOwner, est.ID)
	require.NoError(t, err)
	mainView := tree.Views[0]

	err = store.DeleteView(ctx, testOwner, mainView.ID)
	assert.ErrorIs(t, err, ErrLastView)

	second, err := store.CreateView(ctx, testOwner, est.ID, "Client")
	require.NoError(t, err)
	require.NoError(t, store.DeleteView(ctx, testOwner, second.ID))

	// Back to one view: refused again.
	err = store.DeleteView(ctx, testOwner, mainView.ID)
	assert.ErrorIs(t, err, ErrLastView)
}

func TestStore_SetSetting_CrossEstimateRejected(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	estA, err := store.CreateEstimate(ctx, testOwner, "Kitchen remodel")
	require.NoError(t, err)
	estB, err := store.CreateEstimate(ctx, testOwner, "Bathroom remodel")
	require.NoError(t, err)

	secA, err := store.CreateSection(ctx, testOwner, estA.ID, "Demolition")
	require.NoError(t, err)
	itemA, err := store.CreateItem(ctx, testOwner, secA.ID, "Remove cabinets", "h", 1)
	require.NoError(t, err)
	viewB, err := store.CreateView(ctx, testOwner, estB.ID, "Client")
	require.NoError(t, err)

	err = store.SetSectionVisibility(ctx, testOwner, viewB.ID, secA.ID, false)
	assert.ErrorIs(t, err, ErrValidation)

	price := 10.0
	err = store.SetItemSetting(ctx, testOwner, viewB.ID, itemA.ID, ItemSettingUpdate{Price: &price})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStore_GetViewByToken(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	est, err := store.CreateEstimate(ctx, testOwner, "Kitchen remodel")
	require.NoError(t, err)
	view, err := store.CreateView(ctx, testOwner, est.ID, "Client")
	require.NoError(t, err)

	got, err := store.GetViewByToken(ctx, view.LinkToken)
	require.NoError(t, err)
	assert.Equal(t, view.ID, got.ID)

	_, err = store.GetViewByToken(ctx, "bogus")
	assert.ErrorIs(t, err, ErrNotFound)
}
