// ABOUTME: Store interfaces and data types for scopebook persistence
// ABOUTME: Defines Estimate/Section/Item/View/Version structs and the per-concern store interfaces

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist or the
// caller does not own its estimate. The two cases are intentionally
// indistinguishable so ownership cannot be probed.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when input fails a validation check before any
// write happens (empty required name, negative quantity or price).
var ErrValidation = errors.New("invalid input")

// ErrLastView is returned when deleting a view would leave its estimate
// with no views at all.
var ErrLastView = errors.New("cannot delete the last view of an estimate")

// Estimate is the root aggregate: an ordered list of sections presented
// through one or more views.
type Estimate struct {
	ID        string
	OwnerID   string
	Title     string
	CreatedAt time.Time
	SyncedAt  *time.Time // last bulk content replacement, nil if never synced
}

// Section is an ordered grouping of items within an estimate.
type Section struct {
	ID         string
	EstimateID string
	Name       string
	SortOrder  int
}

// Item is a priced line. Quantity is shared across all views; price and
// total live in per-view ItemSetting rows.
type Item struct {
	ID        string
	SectionID string
	DisplayNo string
	Name      string
	Unit      string
	Quantity  float64
	SortOrder int
}

// View is a named lens over an estimate with its own pricing and
// visibility, reachable through a public link token.
type View struct {
	ID         string
	EstimateID string
	Name       string
	LinkToken  string
	Password   string // empty means not protected
	Intro      string // optional markdown note shown on the public page
	SortOrder  int
}

// SectionSetting is the per-(view, section) visibility flag. A missing row
// reads as visible.
type SectionSetting struct {
	ViewID    string
	SectionID string
	Visible   bool
}

// ItemSetting carries the per-(view, item) price, the persisted
// price×quantity total, and the visibility flag. A missing row reads as
// price 0, total 0, visible.
type ItemSetting struct {
	ViewID  string
	ItemID  string
	Price   float64
	Total   float64
	Visible bool
}

// Version is an immutable snapshot of an estimate's full
// view×section×item graph. Numbers increase per estimate.
type Version struct {
	ID         string
	EstimateID string
	Number     int
	Name       string
	CreatedAt  time.Time
}

// VersionSection is a frozen section. SourceID records the live section id
// at freeze time for traceability only; it is never dereferenced.
type VersionSection struct {
	ID        string
	VersionID string
	SourceID  string
	Name      string
	SortOrder int
}

// VersionItem is a frozen item keyed under its frozen section.
type VersionItem struct {
	ID               string
	VersionID        string
	VersionSectionID string
	SourceID         string
	DisplayNo        string
	Name             string
	Unit             string
	Quantity         float64
	SortOrder        int
}

// VersionView is a frozen view. Link token and password are deliberately
// not captured: a snapshot must never re-expose a public link.
type VersionView struct {
	ID        string
	VersionID string
	SourceID  string
	Name      string
	Intro     string
	SortOrder int
}

// VersionSectionSetting mirrors SectionSetting inside a version. Both keys
// are version-scoped ids.
type VersionSectionSetting struct {
	VersionViewID    string
	VersionSectionID string
	Visible          bool
}

// VersionItemSetting mirrors ItemSetting inside a version.
type VersionItemSetting struct {
	VersionViewID string
	VersionItemID string
	Price         float64
	Total         float64
	Visible       bool
}

// ItemNode is an item plus its settings keyed by view id.
type ItemNode struct {
	Item     *Item
	Settings map[string]*ItemSetting
}

// SectionNode is a section, its per-view visibility keyed by view id, and
// its ordered items.
type SectionNode struct {
	Section    *Section
	Visibility map[string]bool
	Items      []*ItemNode
}

// EstimateTree is the full nested read of one estimate, consumed by
// editing UIs and the document-generation collaborator.
type EstimateTree struct {
	Estimate *Estimate
	Views    []*View
	Sections []*SectionNode
}

// ViewContent is the raw material for one view's public projection: the
// estimate, the view, ordered sections and items, and only that view's
// settings keyed by section/item id.
type ViewContent struct {
	Estimate        *Estimate
	View            *View
	Sections        []*Section
	Items           map[string][]*Item // keyed by section id, ordered
	SectionSettings map[string]*SectionSetting
	ItemSettings    map[string]*ItemSetting
}

// VersionTree is the full nested read of one frozen version.
type VersionTree struct {
	Version         *Version
	Views           []*VersionView
	Sections        []*VersionSection
	Items           map[string][]*VersionItem // keyed by version section id
	SectionSettings []*VersionSectionSetting
	ItemSettings    []*VersionItemSetting
}

// ItemUpdate carries optional item field changes; nil means unchanged.
type ItemUpdate struct {
	DisplayNo *string
	Name      *string
	Unit      *string
	Quantity  *float64
}

// ViewUpdate carries optional view field changes; nil means unchanged. A
// non-nil empty Password clears protection.
type ViewUpdate struct {
	Name     *string
	Password *string
	Intro    *string
}

// ItemSettingUpdate carries optional per-view item setting changes. Any
// write recomputes the stored total from the item's current quantity.
type ItemSettingUpdate struct {
	Price   *float64
	Visible *bool
}

// ItemImport is one line of a bulk content replacement. Prices maps view
// names to starting prices for that view.
type ItemImport struct {
	DisplayNo string
	Name      string
	Unit      string
	Quantity  float64
	Prices    map[string]float64
}

// SectionImport is one section of a bulk content replacement.
type SectionImport struct {
	Name  string
	Items []ItemImport
}

// EstimateStore owns estimate, section and item CRUD and ordering.
type EstimateStore interface {
	CreateEstimate(ctx context.Context, ownerID, title string) (*Estimate, error)
	GetEstimate(ctx context.Context, ownerID, id string) (*Estimate, error)
	ListEstimates(ctx context.Context, ownerID string) ([]*Estimate, error)
	DeleteEstimate(ctx context.Context, ownerID, id string) error
	GetEstimateTree(ctx context.Context, ownerID, id string) (*EstimateTree, error)

	CreateSection(ctx context.Context, ownerID, estimateID, name string) (*Section, error)
	RenameSection(ctx context.Context, ownerID, sectionID, name string) error
	DeleteSection(ctx context.Context, ownerID, sectionID string) error

	CreateItem(ctx context.Context, ownerID, sectionID, name, unit string, quantity float64) (*Item, error)
	UpdateItem(ctx context.Context, ownerID, itemID string, upd ItemUpdate) error
	DeleteItem(ctx context.Context, ownerID, itemID string) error

	// ReplaceContent swaps all sections and items of an estimate in one
	// transaction, optionally assigning starting prices into views by
	// name. Used by the spreadsheet-sync and AI-extraction collaborators.
	ReplaceContent(ctx context.Context, ownerID, estimateID string, sections []SectionImport) error
}

// ViewStore owns view lifecycle and the two settings tables.
type ViewStore interface {
	CreateView(ctx context.Context, ownerID, estimateID, name string) (*View, error)
	DuplicateView(ctx context.Context, ownerID, viewID string) (*View, error)
	UpdateView(ctx context.Context, ownerID, viewID string, upd ViewUpdate) error
	DeleteView(ctx context.Context, ownerID, viewID string) error

	SetSectionVisibility(ctx context.Context, ownerID, viewID, sectionID string, visible bool) error
	SetItemSetting(ctx context.Context, ownerID, viewID, itemID string, upd ItemSettingUpdate) error

	// Public read path: no owner, looked up by link token.
	GetViewByToken(ctx context.Context, token string) (*View, error)
	GetViewContent(ctx context.Context, viewID string) (*ViewContent, error)
}

// VersionStore owns snapshot creation, reads and restore.
type VersionStore interface {
	CreateVersion(ctx context.Context, ownerID, estimateID, name string) (*Version, error)
	ListVersions(ctx context.Context, ownerID, estimateID string) ([]*Version, error)
	GetVersionTree(ctx context.Context, ownerID, versionID string) (*VersionTree, error)
	RestoreVersion(ctx context.Context, ownerID, estimateID, versionID string) error
}

// Store combines every persistence concern. SQLiteStore implements it.
type Store interface {
	EstimateStore
	ViewStore
	VersionStore

	// Close releases any resources held by the store.
	Close() error
}
