// ABOUTME: Snapshot and restore of the full estimate graph as immutable versions
// ABOUTME: Two-pass id remapping keeps every frozen foreign key version-scoped

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scopebook/scopebook/internal/dbx"
)

// CreateVersion freezes the current estimate graph into a new immutable
// version. The version number is max(existing)+1, allocated inside the
// same transaction that writes the rows, so concurrent snapshots of one
// estimate serialize. Link tokens and passwords are never captured.
func (s *SQLiteStore) CreateVersion(ctx context.Context, ownerID, estimateID, name string) (*Version, error) {
	ver := &Version{
		ID:         newID(),
		EstimateID: estimateID,
		Name:       name,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}

	err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := estimateOwned(ctx, tx, ownerID, estimateID); err != nil {
			return err
		}

		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(number), 0) + 1 FROM versions WHERE estimate_id = ?`,
			estimateID,
		).Scan(&ver.Number)
		if err != nil {
			return fmt.Errorf("allocating version number: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO versions (id, estimate_id, number, name, created_at) VALUES (?, ?, ?, ?, ?)`,
			ver.ID, ver.EstimateID, ver.Number, ver.Name, fmtTime(ver.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting version: %w", err)
		}

		// First pass: mint version-scoped ids for every live entity and
		// record the live→frozen mapping.
		sections, err := listSections(ctx, tx, estimateID)
		if err != nil {
			return err
		}
		sectionIDs := make(map[string]string, len(sections))
		for _, sec := range sections {
			frozenID := newID()
			sectionIDs[sec.ID] = frozenID
			_, err = tx.ExecContext(ctx, `
				INSERT INTO version_sections (id, version_id, source_id, name, sort_order)
				VALUES (?, ?, ?, ?, ?)
			`, frozenID, ver.ID, sec.ID, sec.Name, sec.SortOrder)
			if err != nil {
				return fmt.Errorf("freezing section: %w", err)
			}
		}

		items, err := listItemsForEstimate(ctx, tx, estimateID)
		if err != nil {
			return err
		}
		itemIDs := make(map[string]string, len(items))
		for _, it := range items {
			frozenID := newID()
			itemIDs[it.ID] = frozenID
			_, err = tx.ExecContext(ctx, `
				INSERT INTO version_items (id, version_id, version_section_id, source_id, display_no, name, unit, quantity, sort_order)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, frozenID, ver.ID, sectionIDs[it.SectionID], it.ID, it.DisplayNo, it.Name, it.Unit, it.Quantity, it.SortOrder)
			if err != nil {
				return fmt.Errorf("freezing item: %w", err)
			}
		}

		views, err := listViews(ctx, tx, estimateID)
		if err != nil {
			return err
		}
		viewIDs := make(map[string]string, len(views))
		for _, v := range views {
			frozenID := newID()
			viewIDs[v.ID] = frozenID
			_, err = tx.ExecContext(ctx, `
				INSERT INTO version_views (id, version_id, source_id, name, intro, sort_order)
				VALUES (?, ?, ?, ?, ?, ?)
			`, frozenID, ver.ID, v.ID, v.Name, v.Intro, v.SortOrder)
			if err != nil {
				return fmt.Errorf("freezing view: %w", err)
			}
		}

		// Second pass: translate both keys of every settings row through
		// the maps. Settings rows can only reference live entities, so no
		// orphan can appear by construction.
		sectionSettings, err := readSettingPairs(ctx, tx, `
			SELECT vs.view_id, vs.section_id, vs.visible, 0, 0
			FROM view_sections vs
			JOIN views v ON v.id = vs.view_id
			WHERE v.estimate_id = ?`, estimateID)
		if err != nil {
			return fmt.Errorf("reading section settings: %w", err)
		}
		for _, p := range sectionSettings {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO version_view_sections (version_view_id, version_section_id, visible)
				VALUES (?, ?, ?)
			`, viewIDs[p.viewKey], sectionIDs[p.targetKey], p.visible)
			if err != nil {
				return fmt.Errorf("freezing section setting: %w", err)
			}
		}

		itemSettings, err := readSettingPairs(ctx, tx, `
			SELECT vi.view_id, vi.item_id, vi.visible, vi.price, vi.total
			FROM view_items vi
			JOIN views v ON v.id = vi.view_id
			WHERE v.estimate_id = ?`, estimateID)
		if err != nil {
			return fmt.Errorf("reading item settings: %w", err)
		}
		for _, p := range itemSettings {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO version_view_items (version_view_id, version_item_id, price, total, visible)
				VALUES (?, ?, ?, ?, ?)
			`, viewIDs[p.viewKey], itemIDs[p.targetKey], p.price, p.total, p.visible)
			if err != nil {
				return fmt.Errorf("freezing item setting: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("created version", "estimate", estimateID, "number", ver.Number)
	return ver, nil
}

// settingPair is one settings row read for id translation. viewKey and
// targetKey are the ids in the source table; price/total are zero for
// section settings.
type settingPair struct {
	viewKey   string
	targetKey string
	visible   bool
	price     float64
	total     float64
}

// readSettingPairs reads settings rows shaped as
// (view key, target key, visible, price, total).
func readSettingPairs(ctx context.Context, q dbx.DBTX, query string, arg any) ([]settingPair, error) {
	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []settingPair
	for rows.Next() {
		var p settingPair
		if err := rows.Scan(&p.viewKey, &p.targetKey, &p.visible, &p.price, &p.total); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// ListVersions returns an estimate's versions, newest number first.
func (s *SQLiteStore) ListVersions(ctx context.Context, ownerID, estimateID string) ([]*Version, error) {
	if err := estimateOwned(ctx, s.db, ownerID, estimateID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, estimate_id, number, name, created_at
		FROM versions
		WHERE estimate_id = ?
		ORDER BY number DESC
	`, estimateID)
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		ver, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, ver)
	}
	return versions, rows.Err()
}

// GetVersionTree returns the full frozen graph of one version.
func (s *SQLiteStore) GetVersionTree(ctx context.Context, ownerID, versionID string) (*VersionTree, error) {
	ver, err := s.getVersion(ctx, ownerID, versionID)
	if err != nil {
		return nil, err
	}

	tree := &VersionTree{
		Version: ver,
		Items:   make(map[string][]*VersionItem),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version_id, source_id, name, sort_order
		FROM version_sections WHERE version_id = ? ORDER BY sort_order, id
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("querying version sections: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sec VersionSection
		if err := rows.Scan(&sec.ID, &sec.VersionID, &sec.SourceID, &sec.Name, &sec.SortOrder); err != nil {
			return nil, fmt.Errorf("scanning version section: %w", err)
		}
		tree.Sections = append(tree.Sections, &sec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT id, version_id, version_section_id, source_id, display_no, name, unit, quantity, sort_order
		FROM version_items WHERE version_id = ? ORDER BY sort_order, id
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("querying version items: %w", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var it VersionItem
		if err := itemRows.Scan(&it.ID, &it.VersionID, &it.VersionSectionID, &it.SourceID,
			&it.DisplayNo, &it.Name, &it.Unit, &it.Quantity, &it.SortOrder); err != nil {
			return nil, fmt.Errorf("scanning version item: %w", err)
		}
		tree.Items[it.VersionSectionID] = append(tree.Items[it.VersionSectionID], &it)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	viewRows, err := s.db.QueryContext(ctx, `
		SELECT id, version_id, source_id, name, intro, sort_order
		FROM version_views WHERE version_id = ? ORDER BY sort_order, id
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("querying version views: %w", err)
	}
	defer viewRows.Close()
	for viewRows.Next() {
		var v VersionView
		if err := viewRows.Scan(&v.ID, &v.VersionID, &v.SourceID, &v.Name, &v.Intro, &v.SortOrder); err != nil {
			return nil, fmt.Errorf("scanning version view: %w", err)
		}
		tree.Views = append(tree.Views, &v)
	}
	if err := viewRows.Err(); err != nil {
		return nil, err
	}

	ssRows, err := s.db.QueryContext(ctx, `
		SELECT vvs.version_view_id, vvs.version_section_id, vvs.visible
		FROM version_view_sections vvs
		JOIN version_views vv ON vv.id = vvs.version_view_id
		WHERE vv.version_id = ?
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("querying version section settings: %w", err)
	}
	defer ssRows.Close()
	for ssRows.Next() {
		var setting VersionSectionSetting
		if err := ssRows.Scan(&setting.VersionViewID, &setting.VersionSectionID, &setting.Visible); err != nil {
			return nil, fmt.Errorf("scanning version section setting: %w", err)
		}
		tree.SectionSettings = append(tree.SectionSettings, &setting)
	}
	if err := ssRows.Err(); err != nil {
		return nil, err
	}

	isRows, err := s.db.QueryContext(ctx, `
		SELECT vvi.version_view_id, vvi.version_item_id, vvi.price, vvi.total, vvi.visible
		FROM version_view_items vvi
		JOIN version_views vv ON vv.id = vvi.version_view_id
		WHERE vv.version_id = ?
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("querying version item settings: %w", err)
	}
	defer isRows.Close()
	for isRows.Next() {
		var setting VersionItemSetting
		if err := isRows.Scan(&setting.VersionViewID, &setting.VersionItemID, &setting.Price, &setting.Total, &setting.Visible); err != nil {
			return nil, fmt.Errorf("scanning version item setting: %w", err)
		}
		tree.ItemSettings = append(tree.ItemSettings, &setting)
	}
	return tree, isRows.Err()
}

// RestoreVersion atomically replaces the estimate's live state with the
// version's frozen graph. Every entity gets a fresh live id and every view
// a fresh link token; passwords come back empty, so old public links stop
// resolving and protection has to be re-set by the owner. On any failure
// the transaction rolls back and the live state is untouched.
func (s *SQLiteStore) RestoreVersion(ctx context.Context, ownerID, estimateID, versionID string) error {
	err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := estimateOwned(ctx, tx, ownerID, estimateID); err != nil {
			return err
		}

		var verEstimate string
		err := tx.QueryRowContext(ctx, `SELECT estimate_id FROM versions WHERE id = ?`, versionID).Scan(&verEstimate)
		if err == sql.ErrNoRows || (err == nil && verEstimate != estimateID) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading version: %w", err)
		}

		if err := deleteLiveContent(ctx, tx, estimateID); err != nil {
			return err
		}

		// First pass: mint fresh live ids for every frozen entity.
		viewIDs := make(map[string]string)
		rows, err := tx.QueryContext(ctx, `
			SELECT id, name, intro, sort_order FROM version_views WHERE version_id = ? ORDER BY sort_order, id
		`, versionID)
		if err != nil {
			return fmt.Errorf("reading frozen views: %w", err)
		}
		type frozenView struct {
			name, intro string
			sortOrder   int
			liveID      string
		}
		var frozenViews []frozenView
		for rows.Next() {
			var id string
			var fv frozenView
			if err := rows.Scan(&id, &fv.name, &fv.intro, &fv.sortOrder); err != nil {
				rows.Close()
				return fmt.Errorf("scanning frozen view: %w", err)
			}
			fv.liveID = newID()
			viewIDs[id] = fv.liveID
			frozenViews = append(frozenViews, fv)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, fv := range frozenViews {
			token, err := newLinkToken()
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO views (id, estimate_id, name, link_token, password, intro, sort_order)
				VALUES (?, ?, ?, ?, '', ?, ?)
			`, fv.liveID, estimateID, fv.name, token, fv.intro, fv.sortOrder)
			if err != nil {
				return fmt.Errorf("restoring view: %w", err)
			}
		}

		sectionIDs := make(map[string]string)
		secRows, err := tx.QueryContext(ctx, `
			SELECT id, name, sort_order FROM version_sections WHERE version_id = ? ORDER BY sort_order, id
		`, versionID)
		if err != nil {
			return fmt.Errorf("reading frozen sections: %w", err)
		}
		type frozenSection struct {
			name      string
			sortOrder int
			liveID    string
		}
		var frozenSections []frozenSection
		for secRows.Next() {
			var id string
			var fs frozenSection
			if err := secRows.Scan(&id, &fs.name, &fs.sortOrder); err != nil {
				secRows.Close()
				return fmt.Errorf("scanning frozen section: %w", err)
			}
			fs.liveID = newID()
			sectionIDs[id] = fs.liveID
			frozenSections = append(frozenSections, fs)
		}
		secRows.Close()
		if err := secRows.Err(); err != nil {
			return err
		}
		for _, fs := range frozenSections {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO sections (id, estimate_id, name, sort_order) VALUES (?, ?, ?, ?)
			`, fs.liveID, estimateID, fs.name, fs.sortOrder)
			if err != nil {
				return fmt.Errorf("restoring section: %w", err)
			}
		}

		itemIDs := make(map[string]string)
		itRows, err := tx.QueryContext(ctx, `
			SELECT id, version_section_id, display_no, name, unit, quantity, sort_order
			FROM version_items WHERE version_id = ? ORDER BY sort_order, id
		`, versionID)
		if err != nil {
			return fmt.Errorf("reading frozen items: %w", err)
		}
		type frozenItem struct {
			sectionID, displayNo, name, unit string
			quantity                         float64
			sortOrder                        int
			liveID                           string
		}
		var frozenItems []frozenItem
		for itRows.Next() {
			var id string
			var fi frozenItem
			if err := itRows.Scan(&id, &fi.sectionID, &fi.displayNo, &fi.name, &fi.unit, &fi.quantity, &fi.sortOrder); err != nil {
				itRows.Close()
				return fmt.Errorf("scanning frozen item: %w", err)
			}
			fi.liveID = newID()
			itemIDs[id] = fi.liveID
			frozenItems = append(frozenItems, fi)
		}
		itRows.Close()
		if err := itRows.Err(); err != nil {
			return err
		}
		for _, fi := range frozenItems {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO items (id, section_id, display_no, name, unit, quantity, sort_order)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, fi.liveID, sectionIDs[fi.sectionID], fi.displayNo, fi.name, fi.unit, fi.quantity, fi.sortOrder)
			if err != nil {
				return fmt.Errorf("restoring item: %w", err)
			}
		}

		// Second pass: translate settings through the new id maps.
		sectionSettings, err := readSettingPairs(ctx, tx, `
			SELECT vvs.version_view_id, vvs.version_section_id, vvs.visible, 0, 0
			FROM version_view_sections vvs
			JOIN version_views vv ON vv.id = vvs.version_view_id
			WHERE vv.version_id = ?`, versionID)
		if err != nil {
			return fmt.Errorf("reading frozen section settings: %w", err)
		}
		for _, p := range sectionSettings {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO view_sections (view_id, section_id, visible) VALUES (?, ?, ?)
			`, viewIDs[p.viewKey], sectionIDs[p.targetKey], p.visible)
			if err != nil {
				return fmt.Errorf("restoring section setting: %w", err)
			}
		}

		itemSettings, err := readSettingPairs(ctx, tx, `
			SELECT vvi.version_view_id, vvi.version_item_id, vvi.visible, vvi.price, vvi.total
			FROM version_view_items vvi
			JOIN version_views vv ON vv.id = vvi.version_view_id
			WHERE vv.version_id = ?`, versionID)
		if err != nil {
			return fmt.Errorf("reading frozen item settings: %w", err)
		}
		for _, p := range itemSettings {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO view_items (view_id, item_id, price, total, visible) VALUES (?, ?, ?, ?, ?)
			`, viewIDs[p.viewKey], itemIDs[p.targetKey], p.price, p.total, p.visible)
			if err != nil {
				return fmt.Errorf("restoring item setting: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("restored version", "estimate", estimateID, "version", versionID)
	return nil
}

// getVersion reads one version, enforcing ownership of its estimate.
func (s *SQLiteStore) getVersion(ctx context.Context, ownerID, versionID string) (*Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ver.id, ver.estimate_id, ver.number, ver.name, ver.created_at
		FROM versions ver
		JOIN estimates e ON e.id = ver.estimate_id
		WHERE ver.id = ? AND e.owner_id = ?
	`, versionID, ownerID)
	return scanVersion(row)
}

func scanVersion(row rowScanner) (*Version, error) {
	var ver Version
	var createdAt string
	err := row.Scan(&ver.ID, &ver.EstimateID, &ver.Number, &ver.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning version: %w", err)
	}
	ver.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &ver, nil
}
