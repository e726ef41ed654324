// ABOUTME: HTTP-level tests for the owner API and the public share-link surface
// ABOUTME: Runs httptest requests against a real SQLite-backed store

package webapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopebook/scopebook/internal/auth"
	"github.com/scopebook/scopebook/internal/projector"
	"github.com/scopebook/scopebook/internal/store"
)

const testOwner = "owner-1"

func setupTestAPI(t *testing.T) (http.Handler, store.Store) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	api := New(st, projector.New(st), auth.NewViewTokens([]byte("test-secret")), Config{AccessTTL: time.Hour})
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	return mux, st
}

// doJSON sends a request with the owner header and a JSON body and
// returns the recorded response.
func doJSON(t *testing.T, handler http.Handler, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

func TestAPI_EstimateLifecycle(t *testing.T) {
	handler, _ := setupTestAPI(t)

	rec := doJSON(t, handler, "POST", "/api/estimates", testOwner, map[string]string{"title": "Kitchen remodel"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created estimateResponse
	decodeJSON(t, rec, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Kitchen remodel", created.Title)

	rec = doJSON(t, handler, "GET", "/api/estimates", testOwner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []estimateResponse
	decodeJSON(t, rec, &list)
	require.Len(t, list, 1)

	// The tree carries the initial view minted at creation.
	rec = doJSON(t, handler, "GET", "/api/estimates/"+created.ID, testOwner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tree treeResponse
	decodeJSON(t, rec, &tree)
	require.Len(t, tree.Views, 1)
	assert.Equal(t, "Main", tree.Views[0].Name)
	assert.NotEmpty(t, tree.Views[0].LinkToken)

	rec = doJSON(t, handler, "DELETE", "/api/estimates/"+created.ID, testOwner, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, "GET", "/api/estimates/"+created.ID, testOwner, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_MissingOwnerHeader(t *testing.T) {
	handler, _ := setupTestAPI(t)

	rec := doJSON(t, handler, "GET", "/api/estimates", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_OwnershipIsOpaque(t *testing.T) {
	handler, _ := setupTestAPI(t)

	rec := doJSON(t, handler, "POST", "/api/estimates", testOwner, map[string]string{"title": "Private"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created estimateResponse
	decodeJSON(t, rec, &created)

	// Another owner sees 404, never 403.
	rec = doJSON(t, handler, "GET", "/api/estimates/"+created.ID, "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, handler, "DELETE", "/api/estimates/"+created.ID, "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ValidationMapsTo400(t *testing.T) {
	handler, _ := setupTestAPI(t)

	rec := doJSON(t, handler, "POST", "/api/estimates", testOwner, map[string]string{"title": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	decodeJSON(t, rec, &resp)
	assert.NotEmpty(t, resp.Error)
}

func TestAPI_SectionsAndItems(t *testing.T) {
	handler, _ := setupTestAPI(t)

	rec := doJSON(t, handler, "POST", "/api/estimates", testOwner, map[string]string{"title": "Bathroom"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var est estimateResponse
	decodeJSON(t, rec, &est)

	rec = doJSON(t, handler, "POST", "/api/estimates/"+est.ID+"/sections", testOwner, map[string]string{"name": "Demolition"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var sec sectionResponse
	decodeJSON(t, rec, &sec)
	assert.Equal(t, 1, sec.SortOrder)

	rec = doJSON(t, handler, "POST", "/api/sections/"+sec.ID+"/items", testOwner,
		map[string]any{"name": "Remove tiles", "unit": "m2", "quantity": 12.5})
	require.Equal(t, http.StatusCreated, rec.Code)
	var item itemResponse
	decodeJSON(t, rec, &item)
	assert.Equal(t, 12.5, item.Quantity)

	rec = doJSON(t, handler, "PATCH", "/api/items/"+item.ID, testOwner, map[string]any{"quantity": 15.0})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, "PATCH", "/api/sections/"+sec.ID, testOwner, map[string]string{"name": "Demo & prep"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, "GET", "/api/estimates/"+est.ID, testOwner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tree treeResponse
	decodeJSON(t, rec, &tree)
	require.Len(t, tree.Sections, 1)
	assert.Equal(t, "Demo & prep", tree.Sections[0].Name)
	require.Len(t, tree.Sections[0].Items, 1)
	assert.Equal(t, 15.0, tree.Sections[0].Items[0].Quantity)

	rec = doJSON(t, handler, "DELETE", "/api/items/"+item.ID, testOwner, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, handler, "DELETE", "/api/sections/"+sec.ID, testOwner, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAPI_ViewSettingsAndLastView(t *testing.T) {
	handler, _ := setupTestAPI(t)

	rec := doJSON(t, handler, "POST", "/api/estimates", testOwner, map[string]string{"title": "Garage"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var est estimateResponse
	decodeJSON(t, rec, &est)

	rec = doJSON(t, handler, "POST", "/api/estimates/"+est.ID+"/sections", testOwner, map[string]string{"name": "Framing"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var sec sectionResponse
	decodeJSON(t, rec, &sec)

	rec = doJSON(t, handler, "POST", "/api/sections/"+sec.ID+"/items", testOwner,
		map[string]any{"name": "Studs", "unit": "pcs", "quantity": 40.0})
	require.Equal(t, http.StatusCreated, rec.Code)
	var item itemResponse
	decodeJSON(t, rec, &item)

	rec = doJSON(t, handler, "POST", "/api/estimates/"+est.ID+"/views", testOwner, map[string]string{"name": "Client"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var client viewResponse
	decodeJSON(t, rec, &client)

	price := 3.5
	rec = doJSON(t, handler, "PUT", "/api/views/"+client.ID+"/items/"+item.ID, testOwner,
		map[string]any{"price": price})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, "PUT", "/api/views/"+client.ID+"/sections/"+sec.ID, testOwner,
		map[string]any{"visible": false})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, "GET", "/api/estimates/"+est.ID, testOwner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tree treeResponse
	decodeJSON(t, rec, &tree)
	require.Len(t, tree.Sections, 1)
	assert.False(t, tree.Sections[0].Visibility[client.ID])
	setting := tree.Sections[0].Items[0].Settings[client.ID]
	assert.Equal(t, 3.5, setting.Price)
	assert.Equal(t, 140.0, setting.Total)

	// Duplicating carries settings over.
	rec = doJSON(t, handler, "POST", "/api/views/"+client.ID+"/duplicate", testOwner, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var dup viewResponse
	decodeJSON(t, rec, &dup)
	assert.Equal(t, "Client (copy)", dup.Name)
	assert.NotEqual(t, client.LinkToken, dup.LinkToken)

	// Deleting down to one view is fine; deleting the last one is not.
	rec = doJSON(t, handler, "DELETE", "/api/views/"+dup.ID, testOwner, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, handler, "DELETE", "/api/views/"+client.ID, testOwner, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, "GET", "/api/estimates/"+est.ID, testOwner, nil)
	decodeJSON(t, rec, &tree)
	require.Len(t, tree.Views, 1)
	rec = doJSON(t, handler, "DELETE", "/api/views/"+tree.Views[0].ID, testOwner, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_VersionsAndRestore(t *testing.T) {
	handler, _ := setupTestAPI(t)

	rec := doJSON(t, handler, "POST", "/api/estimates", testOwner, map[string]string{"title": "Roof"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var est estimateResponse
	decodeJSON(t, rec, &est)

	rec = doJSON(t, handler, "POST", "/api/estimates/"+est.ID+"/sections", testOwner, map[string]string{"name": "Shingles"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var sec sectionResponse
	decodeJSON(t, rec, &sec)

	rec = doJSON(t, handler, "POST", "/api/estimates/"+est.ID+"/versions", testOwner, map[string]string{"name": "sent to client"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var ver versionResponse
	decodeJSON(t, rec, &ver)
	assert.Equal(t, 1, ver.Number)

	rec = doJSON(t, handler, "GET", "/api/versions/"+ver.ID, testOwner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var vtree versionTreeResponse
	decodeJSON(t, rec, &vtree)
	require.Len(t, vtree.Sections, 1)
	assert.Equal(t, "Shingles", vtree.Sections[0].Name)
	assert.Equal(t, sec.ID, vtree.Sections[0].SourceID)

	// Mutate live content, then restore and confirm the edit is gone.
	rec = doJSON(t, handler, "PATCH", "/api/sections/"+sec.ID, testOwner, map[string]string{"name": "Metal panels"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, "POST", "/api/estimates/"+est.ID+"/versions/"+ver.ID+"/restore", testOwner, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, "GET", "/api/estimates/"+est.ID, testOwner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tree treeResponse
	decodeJSON(t, rec, &tree)
	require.Len(t, tree.Sections, 1)
	assert.Equal(t, "Shingles", tree.Sections[0].Name)

	rec = doJSON(t, handler, "GET", "/api/estimates/"+est.ID+"/versions", testOwner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var versions []versionResponse
	decodeJSON(t, rec, &versions)
	assert.Len(t, versions, 1)
}

func TestAPI_ReplaceContent(t *testing.T) {
	handler, _ := setupTestAPI(t)

	rec := doJSON(t, handler, "POST", "/api/estimates", testOwner, map[string]string{"title": "Import"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var est estimateResponse
	decodeJSON(t, rec, &est)

	body := map[string]any{
		"sections": []map[string]any{
			{
				"name": "Electrical",
				"items": []map[string]any{
					{"display_no": "1", "name": "Outlets", "unit": "pcs", "quantity": 10.0,
						"prices": map[string]float64{"Main": 25.0}},
				},
			},
		},
	}
	rec = doJSON(t, handler, "PUT", "/api/estimates/"+est.ID+"/content", testOwner, body)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, "GET", "/api/estimates/"+est.ID, testOwner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tree treeResponse
	decodeJSON(t, rec, &tree)
	require.Len(t, tree.Sections, 1)
	require.Len(t, tree.Sections[0].Items, 1)
	assert.NotNil(t, tree.Estimate.SyncedAt)

	mainID := tree.Views[0].ID
	setting := tree.Sections[0].Items[0].Settings[mainID]
	assert.Equal(t, 25.0, setting.Price)
	assert.Equal(t, 250.0, setting.Total)

	// Unknown view name fails validation with nothing replaced.
	body = map[string]any{
		"sections": []map[string]any{
			{"name": "Plumbing", "items": []map[string]any{
				{"name": "Pipes", "quantity": 1.0, "prices": map[string]float64{"Nope": 5.0}},
			}},
		},
	}
	rec = doJSON(t, handler, "PUT", "/api/estimates/"+est.ID+"/content", testOwner, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_PublicUnprotected(t *testing.T) {
	handler, _ := setupTestAPI(t)

	rec := doJSON(t, handler, "POST", "/api/estimates", testOwner, map[string]string{"title": "Deck"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var est estimateResponse
	decodeJSON(t, rec, &est)

	rec = doJSON(t, handler, "POST", "/api/estimates/"+est.ID+"/sections", testOwner, map[string]string{"name": "Boards"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var sec sectionResponse
	decodeJSON(t, rec, &sec)
	rec = doJSON(t, handler, "POST", "/api/sections/"+sec.ID+"/items", testOwner,
		map[string]any{"name": "Decking", "unit": "m2", "quantity": 20.0})
	require.Equal(t, http.StatusCreated, rec.Code)
	var item itemResponse
	decodeJSON(t, rec, &item)

	rec = doJSON(t, handler, "GET", "/api/estimates/"+est.ID, testOwner, nil)
	var tree treeResponse
	decodeJSON(t, rec, &tree)
	mainView := tree.Views[0]

	rec = doJSON(t, handler, "PUT", "/api/views/"+mainView.ID+"/items/"+item.ID, testOwner,
		map[string]any{"price": 50.0})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, "GET", "/public/"+mainView.LinkToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var doc projector.Document
	decodeJSON(t, rec, &doc)
	assert.Equal(t, "Deck", doc.Title)
	assert.Equal(t, 1000.0, doc.Total)

	rec = doJSON(t, handler, "GET", "/public/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_PublicPasswordFlow(t *testing.T) {
	handler, _ := setupTestAPI(t)

	rec := doJSON(t, handler, "POST", "/api/estimates", testOwner, map[string]string{"title": "Fence"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var est estimateResponse
	decodeJSON(t, rec, &est)

	rec = doJSON(t, handler, "GET", "/api/estimates/"+est.ID, testOwner, nil)
	var tree treeResponse
	decodeJSON(t, rec, &tree)
	mainView := tree.Views[0]

	password := "hunter2"
	rec = doJSON(t, handler, "PATCH", "/api/views/"+mainView.ID, testOwner, map[string]any{"password": password})
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Without a bearer token the projection is withheld.
	rec = doJSON(t, handler, "GET", "/public/"+mainView.LinkToken, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, handler, "POST", "/public/"+mainView.LinkToken+"/verify", "", map[string]string{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, handler, "POST", "/public/"+mainView.LinkToken+"/verify", "", map[string]string{"password": "  hunter2  "})
	require.Equal(t, http.StatusOK, rec.Code)
	var verified struct {
		AccessToken string `json:"access_token"`
	}
	decodeJSON(t, rec, &verified)
	require.NotEmpty(t, verified.AccessToken)

	req := httptest.NewRequest("GET", "/public/"+mainView.LinkToken, nil)
	req.Header.Set("Authorization", "Bearer "+verified.AccessToken)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	// A token for a different view does not unlock this one.
	other := auth.NewViewTokens([]byte("test-secret"))
	foreign, err := other.Issue("some-other-view", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/public/"+mainView.LinkToken, nil)
	req.Header.Set("Authorization", "Bearer "+foreign)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
