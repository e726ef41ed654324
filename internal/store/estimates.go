// ABOUTME: Estimate CRUD and the full nested tree read
// ABOUTME: Estimate creation also mints the initial view so every estimate always has one

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/scopebook/scopebook/internal/dbx"
)

// CreateEstimate creates an estimate for ownerID. Every estimate must have
// at least one view, so the initial "Main" view is minted in the same
// transaction.
func (s *SQLiteStore) CreateEstimate(ctx context.Context, ownerID, title string) (*Estimate, error) {
	title = strings.TrimSpace(title)
	if ownerID == "" || title == "" {
		return nil, fmt.Errorf("%w: owner and title are required", ErrValidation)
	}

	est := &Estimate{
		ID:        newID(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO estimates (id, owner_id, title, created_at) VALUES (?, ?, ?, ?)`,
			est.ID, est.OwnerID, est.Title, fmtTime(est.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting estimate: %w", err)
		}

		_, err = insertView(ctx, tx, est.ID, "Main")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("created estimate", "id", est.ID, "owner", ownerID)
	return est, nil
}

// GetEstimate retrieves an estimate by id.
// Returns ErrNotFound if it doesn't exist or isn't owned by ownerID.
func (s *SQLiteStore) GetEstimate(ctx context.Context, ownerID, id string) (*Estimate, error) {
	return scanEstimate(s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, created_at, synced_at
		FROM estimates
		WHERE id = ? AND owner_id = ?
	`, id, ownerID))
}

// ListEstimates returns all estimates for ownerID, newest first.
func (s *SQLiteStore) ListEstimates(ctx context.Context, ownerID string) ([]*Estimate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, created_at, synced_at
		FROM estimates
		WHERE owner_id = ?
		ORDER BY created_at DESC, id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying estimates: %w", err)
	}
	defer rows.Close()

	var estimates []*Estimate
	for rows.Next() {
		est, err := scanEstimate(rows)
		if err != nil {
			return nil, err
		}
		estimates = append(estimates, est)
	}
	return estimates, rows.Err()
}

// DeleteEstimate deletes an estimate and cascades every child row:
// versions, settings, items, sections and views.
func (s *SQLiteStore) DeleteEstimate(ctx context.Context, ownerID, id string) error {
	return s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := estimateOwned(ctx, tx, ownerID, id); err != nil {
			return err
		}

		stmts := []string{
			`DELETE FROM version_view_items WHERE version_view_id IN
				(SELECT id FROM version_views WHERE version_id IN (SELECT id FROM versions WHERE estimate_id = ?))`,
			`DELETE FROM version_view_sections WHERE version_view_id IN
				(SELECT id FROM version_views WHERE version_id IN (SELECT id FROM versions WHERE estimate_id = ?))`,
			`DELETE FROM version_items WHERE version_id IN (SELECT id FROM versions WHERE estimate_id = ?)`,
			`DELETE FROM version_sections WHERE version_id IN (SELECT id FROM versions WHERE estimate_id = ?)`,
			`DELETE FROM version_views WHERE version_id IN (SELECT id FROM versions WHERE estimate_id = ?)`,
			`DELETE FROM versions WHERE estimate_id = ?`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("deleting estimate versions: %w", err)
			}
		}

		if err := deleteLiveContent(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM estimates WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting estimate: %w", err)
		}
		return nil
	})
}

// deleteLiveContent removes every live child of an estimate: settings
// first, then items, sections and views. Shared by DeleteEstimate,
// ReplaceContent and RestoreVersion.
func deleteLiveContent(ctx context.Context, tx dbx.DBTX, estimateID string) error {
	stmts := []string{
		`DELETE FROM view_items WHERE view_id IN (SELECT id FROM views WHERE estimate_id = ?)`,
		`DELETE FROM view_sections WHERE view_id IN (SELECT id FROM views WHERE estimate_id = ?)`,
		`DELETE FROM items WHERE section_id IN (SELECT id FROM sections WHERE estimate_id = ?)`,
		`DELETE FROM sections WHERE estimate_id = ?`,
		`DELETE FROM views WHERE estimate_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, estimateID); err != nil {
			return fmt.Errorf("deleting estimate content: %w", err)
		}
	}
	return nil
}

// GetEstimateTree returns the full nested estimate: sections with items,
// each item carrying its settings keyed by view id, plus the views.
func (s *SQLiteStore) GetEstimateTree(ctx context.Context, ownerID, id string) (*EstimateTree, error) {
	est, err := s.GetEstimate(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	views, err := listViews(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	sections, err := listSections(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	tree := &EstimateTree{Estimate: est, Views: views}
	nodesBySection := make(map[string]*SectionNode, len(sections))
	for _, sec := range sections {
		node := &SectionNode{Section: sec, Visibility: make(map[string]bool)}
		// Missing settings rows read as visible.
		for _, v := range views {
			node.Visibility[v.ID] = true
		}
		nodesBySection[sec.ID] = node
		tree.Sections = append(tree.Sections, node)
	}

	itemNodes := make(map[string]*ItemNode)
	items, err := listItemsForEstimate(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		node := &ItemNode{Item: it, Settings: make(map[string]*ItemSetting)}
		itemNodes[it.ID] = node
		nodesBySection[it.SectionID].Items = append(nodesBySection[it.SectionID].Items, node)
	}

	// Overlay explicit section visibility rows.
	rows, err := s.db.QueryContext(ctx, `
		SELECT vs.view_id, vs.section_id, vs.visible
		FROM view_sections vs
		JOIN views v ON v.id = vs.view_id
		WHERE v.estimate_id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying section settings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var viewID, sectionID string
		var visible bool
		if err := rows.Scan(&viewID, &sectionID, &visible); err != nil {
			return nil, fmt.Errorf("scanning section setting: %w", err)
		}
		if node, ok := nodesBySection[sectionID]; ok {
			node.Visibility[viewID] = visible
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT vi.view_id, vi.item_id, vi.price, vi.total, vi.visible
		FROM view_items vi
		JOIN views v ON v.id = vi.view_id
		WHERE v.estimate_id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying item settings: %w", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var setting ItemSetting
		if err := itemRows.Scan(&setting.ViewID, &setting.ItemID, &setting.Price, &setting.Total, &setting.Visible); err != nil {
			return nil, fmt.Errorf("scanning item setting: %w", err)
		}
		if node, ok := itemNodes[setting.ItemID]; ok {
			cp := setting
			node.Settings[setting.ViewID] = &cp
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	return tree, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEstimate(row rowScanner) (*Estimate, error) {
	var est Estimate
	var createdAt string
	var syncedAt sql.NullString

	err := row.Scan(&est.ID, &est.OwnerID, &est.Title, &createdAt, &syncedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning estimate: %w", err)
	}

	est.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if syncedAt.Valid {
		t, err := parseTime(syncedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing synced_at: %w", err)
		}
		est.SyncedAt = &t
	}
	return &est, nil
}
