// ABOUTME: HTTP JSON API for owner editing, versioning and the public share-link surface
// ABOUTME: Maps store errors onto stable status codes so calling UIs can branch

package webapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/scopebook/scopebook/internal/auth"
	"github.com/scopebook/scopebook/internal/projector"
	"github.com/scopebook/scopebook/internal/store"
)

// OwnerHeader carries the authenticated owner id, set by the fronting
// proxy. Authentication itself is outside this service.
const OwnerHeader = "X-Scopebook-Owner"

// Config holds API configuration
type Config struct {
	// AccessTTL is how long a verified password unlocks a protected view
	AccessTTL time.Duration
}

// API handles all HTTP routes
type API struct {
	store     store.Store
	projector *projector.Projector
	tokens    *auth.ViewTokens
	config    Config
	logger    *slog.Logger
}

// New creates a new API handler
func New(st store.Store, proj *projector.Projector, tokens *auth.ViewTokens, cfg Config) *API {
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = auth.DefaultAccessTTL
	}
	return &API{
		store:     st,
		projector: proj,
		tokens:    tokens,
		config:    cfg,
		logger:    slog.Default().With("component", "webapi"),
	}
}

// RegisterRoutes registers all routes on the given mux
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	// Owner surface
	mux.HandleFunc("POST /api/estimates", a.requireOwner(a.handleCreateEstimate))
	mux.HandleFunc("GET /api/estimates", a.requireOwner(a.handleListEstimates))
	mux.HandleFunc("GET /api/estimates/{id}", a.requireOwner(a.handleGetEstimateTree))
	mux.HandleFunc("DELETE /api/estimates/{id}", a.requireOwner(a.handleDeleteEstimate))

	mux.HandleFunc("POST /api/estimates/{id}/sections", a.requireOwner(a.handleCreateSection))
	mux.HandleFunc("PATCH /api/sections/{id}", a.requireOwner(a.handleRenameSection))
	mux.HandleFunc("DELETE /api/sections/{id}", a.requireOwner(a.handleDeleteSection))

	mux.HandleFunc("POST /api/sections/{id}/items", a.requireOwner(a.handleCreateItem))
	mux.HandleFunc("PATCH /api/items/{id}", a.requireOwner(a.handleUpdateItem))
	mux.HandleFunc("DELETE /api/items/{id}", a.requireOwner(a.handleDeleteItem))

	mux.HandleFunc("POST /api/estimates/{id}/views", a.requireOwner(a.handleCreateView))
	mux.HandleFunc("POST /api/views/{id}/duplicate", a.requireOwner(a.handleDuplicateView))
	mux.HandleFunc("PATCH /api/views/{id}", a.requireOwner(a.handleUpdateView))
	mux.HandleFunc("DELETE /api/views/{id}", a.requireOwner(a.handleDeleteView))
	mux.HandleFunc("PUT /api/views/{id}/sections/{sectionID}", a.requireOwner(a.handleSetSectionVisibility))
	mux.HandleFunc("PUT /api/views/{id}/items/{itemID}", a.requireOwner(a.handleSetItemSetting))

	mux.HandleFunc("GET /api/estimates/{id}/versions", a.requireOwner(a.handleListVersions))
	mux.HandleFunc("POST /api/estimates/{id}/versions", a.requireOwner(a.handleCreateVersion))
	mux.HandleFunc("GET /api/versions/{id}", a.requireOwner(a.handleGetVersionTree))
	mux.HandleFunc("POST /api/estimates/{id}/versions/{versionID}/restore", a.requireOwner(a.handleRestoreVersion))

	mux.HandleFunc("PUT /api/estimates/{id}/content", a.requireOwner(a.handleReplaceContent))

	// Public surface (no owner)
	mux.HandleFunc("GET /public/{token}", a.handlePublicView)
	mux.HandleFunc("POST /public/{token}/verify", a.handleVerifyPassword)
}

// ownerHandler is an owner-scoped handler with the owner id resolved.
type ownerHandler func(w http.ResponseWriter, r *http.Request, ownerID string)

// requireOwner rejects requests without the owner header.
func (a *API) requireOwner(next ownerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := strings.TrimSpace(r.Header.Get(OwnerHeader))
		if ownerID == "" {
			a.writeError(w, http.StatusUnauthorized, "missing owner identity")
			return
		}
		next(w, r, ownerID)
	}
}

// errorResponse is the stable error payload shape.
type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("failed to encode response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, errorResponse{Error: msg})
}

// writeStoreError maps the error taxonomy onto stable status codes:
// NotFound 404, Validation 400, last-view Conflict 409, bad password 401.
func (a *API) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		a.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrValidation):
		a.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrLastView):
		a.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, projector.ErrBadPassword):
		a.writeError(w, http.StatusUnauthorized, "wrong password")
	default:
		a.logger.Error("internal error", "error", err)
		a.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func (a *API) handleCreateEstimate(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req struct {
		Title string `json:"title"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	est, err := a.store.CreateEstimate(r.Context(), ownerID, req.Title)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, estimateJSON(est))
}

func (a *API) handleListEstimates(w http.ResponseWriter, r *http.Request, ownerID string) {
	estimates, err := a.store.ListEstimates(r.Context(), ownerID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	out := make([]any, 0, len(estimates))
	for _, est := range estimates {
		out = append(out, estimateJSON(est))
	}
	a.writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGetEstimateTree(w http.ResponseWriter, r *http.Request, ownerID string) {
	tree, err := a.store.GetEstimateTree(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, treeJSON(tree))
}

func (a *API) handleDeleteEstimate(w http.ResponseWriter, r *http.Request, ownerID string) {
	if err := a.store.DeleteEstimate(r.Context(), ownerID, r.PathValue("id")); err != nil {
		a.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCreateSection(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	sec, err := a.store.CreateSection(r.Context(), ownerID, r.PathValue("id"), req.Name)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, sectionJSON(sec))
}

func (a *API) handleRenameSection(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := a.store.RenameSection(r.Context(), ownerID, r.PathValue("id"), req.Name); err != nil {
		a.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeleteSection(w http.ResponseWriter, r *http.Request, ownerID string) {
	if err := a.store.DeleteSection(r.Context(), ownerID, r.PathValue("id")); err != nil {
		a.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCreateItem(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req struct {
		Name     string  `json:"name"`
		Unit     string  `json:"unit"`
		Quantity float64 `json:"quantity"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	item, err := a.store.CreateItem(r.Context(), ownerID, r.PathValue("id"), req.Name, req.Unit, req.Quantity)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, itemJSON(item))
}

func (a *API) handleUpdateItem(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req struct {
		DisplayNo *string  `json:"display_no"`
		Name      *string  `json:"name"`
		Unit      *string  `json:"unit"`
		Quantity  *float64 `json:"quantity"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	upd := store.ItemUpdate{DisplayNo: req.DisplayNo, Name: req.Name, Unit: req.Unit, Quantity: req.Quantity}
	if err := a.store.UpdateItem(r.Context(), ownerID, r.PathValue("id"), upd); err != nil {
		a.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeleteItem(w http.ResponseWriter, r *http.Request, ownerID string) {
	if err := a.store.DeleteItem(r.Context(), ownerID, r.PathValue("id")); err != nil {
		a.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCreateView(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	view, err := a.store.CreateView(r.Context(), ownerID, r.PathValue("id"), req.Name)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, viewJSON(view))
}

func (a *API) handleDuplicateView(w http.ResponseWriter, r *http.Request, ownerID string) {
	view, err := a.store.DuplicateView(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, viewJSON(view))
}

func (a *API) handleUpdateView(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req struct {
		Name     *string `json:"name"`
		Password *string `json:"password"`
		Intro    *string `json:"intro"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	upd := store.ViewUpdate{Name: req.Name, Password: req.Password, Intro: req.Intro}
	if err := a.store.UpdateView(r.Context(), ownerID, r.PathValue("id"), upd); err != nil {
		a.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeleteView(w http.ResponseWriter, r *http.Request, ownerID string) {
	if err := a.store.DeleteView(r.Context(), ownerID, r.PathValue("id")); err != nil {
		a.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSetSectionVisibility(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req struct {
		Visible bool `json:"visible"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	err := a.store.SetSectionVisibility(r.Context(), ownerID, r.PathValue("id"), r.PathValue("sectionID"), req.Visible)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSetItemSetting(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req struct {
		Price   *float64 `json:"price"`
		Visible *bool    `json:"visible"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	upd := store.ItemSettingUpdate{Price: req.Price, Visible: req.Visible}
	err := a.store.SetItemSetting(r.Context(), ownerID, r.PathValue("id"), r.PathValue("itemID"), upd)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListVersions(w http.ResponseWriter, r *http.Request, ownerID string) {
	versions, err := a.store.ListVersions(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	out := make([]any, 0, len(versions))
	for _, ver := range versions {
		out = append(out, versionJSON(ver))
	}
	a.writeJSON(w, http.StatusOK, out)
}

func (a *API) handleCreateVersion(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	ver, err := a.store.CreateVersion(r.Context(), ownerID, r.PathValue("id"), req.Name)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, versionJSON(ver))
}

func (a *API) handleGetVersionTree(w http.ResponseWriter, r *http.Request, ownerID string) {
	tree, err := a.store.GetVersionTree(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, versionTreeJSON(tree))
}

func (a *API) handleRestoreVersion(w http.ResponseWriter, r *http.Request, ownerID string) {
	err := a.store.RestoreVersion(r.Context(), ownerID, r.PathValue("id"), r.PathValue("versionID"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleReplaceContent(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req struct {
		Sections []struct {
			Name  string `json:"name"`
			Items []struct {
				DisplayNo string             `json:"display_no"`
				Name      string             `json:"name"`
				Unit      string             `json:"unit"`
				Quantity  float64            `json:"quantity"`
				Prices    map[string]float64 `json:"prices"`
			} `json:"items"`
		} `json:"sections"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	sections := make([]store.SectionImport, 0, len(req.Sections))
	for _, sec := range req.Sections {
		imp := store.SectionImport{Name: sec.Name}
		for _, it := range sec.Items {
			imp.Items = append(imp.Items, store.ItemImport{
				DisplayNo: it.DisplayNo,
				Name:      it.Name,
				Unit:      it.Unit,
				Quantity:  it.Quantity,
				Prices:    it.Prices,
			})
		}
		sections = append(sections, imp)
	}

	if err := a.store.ReplaceContent(r.Context(), ownerID, r.PathValue("id"), sections); err != nil {
		a.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePublicView serves the projection behind a link token. Protected
// views require a bearer access token from the verify endpoint.
func (a *API) handlePublicView(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	view, protected, err := a.projector.Protected(r.Context(), token)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	if protected {
		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		viewID, err := a.tokens.Verify(bearer)
		if err != nil || viewID != view.ID {
			a.writeError(w, http.StatusUnauthorized, "password required")
			return
		}
	}

	doc, err := a.projector.Project(r.Context(), view.ID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, doc)
}

// handleVerifyPassword checks a password for a protected link token and
// returns a short-lived access token on success.
func (a *API) handleVerifyPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	view, err := a.store.GetViewByToken(r.Context(), r.PathValue("token"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	if err := projector.VerifyPassword(view, req.Password); err != nil {
		a.writeStoreError(w, err)
		return
	}

	access, err := a.tokens.Issue(view.ID, a.config.AccessTTL)
	if err != nil {
		a.logger.Error("failed to issue access token", "error", err)
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"access_token": access})
}
