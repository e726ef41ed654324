// ABOUTME: View lifecycle, the two per-view settings tables and the backfill hooks
// ABOUTME: Keeps the views × sections/items settings matrix complete under every mutation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/scopebook/scopebook/internal/dbx"
)

// CreateView creates a view and seeds a default setting row for every
// existing section and item, all in one transaction.
func (s *SQLiteStore) CreateView(ctx context.Context, ownerID, estimateID, name string) (*View, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: view name is required", ErrValidation)
	}

	var view *View
	err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := estimateOwned(ctx, tx, ownerID, estimateID); err != nil {
			return err
		}
		var err error
		view, err = insertView(ctx, tx, estimateID, name)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("created view", "id", view.ID, "estimate", estimateID)
	return view, nil
}

// insertView mints a view with a fresh link token and seeds default
// settings for every section and item already in the estimate.
func insertView(ctx context.Context, tx dbx.DBTX, estimateID, name string) (*View, error) {
	token, err := newLinkToken()
	if err != nil {
		return nil, err
	}

	view := &View{
		ID:         newID(),
		EstimateID: estimateID,
		Name:       name,
		LinkToken:  token,
	}

	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_order), 0) + 1 FROM views WHERE estimate_id = ?`,
		estimateID,
	).Scan(&view.SortOrder)
	if err != nil {
		return nil, fmt.Errorf("allocating view sort order: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO views (id, estimate_id, name, link_token, password, intro, sort_order)
		VALUES (?, ?, ?, ?, '', '', ?)
	`, view.ID, view.EstimateID, view.Name, view.LinkToken, view.SortOrder)
	if err != nil {
		return nil, fmt.Errorf("inserting view: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO view_sections (view_id, section_id, visible)
		SELECT ?, id, 1 FROM sections WHERE estimate_id = ?
	`, view.ID, estimateID)
	if err != nil {
		return nil, fmt.Errorf("seeding section settings: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO view_items (view_id, item_id, price, total, visible)
		SELECT ?, i.id, 0, 0, 1
		FROM items i JOIN sections s ON s.id = i.section_id
		WHERE s.estimate_id = ?
	`, view.ID, estimateID)
	if err != nil {
		return nil, fmt.Errorf("seeding item settings: %w", err)
	}

	return view, nil
}

// DuplicateView creates a new view copying every settings row from the
// source view verbatim, prices included. The clone gets its own link
// token, no password, and the source's intro.
func (s *SQLiteStore) DuplicateView(ctx context.Context, ownerID, viewID string) (*View, error) {
	var view *View
	err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		estimateID, err := viewEstimate(ctx, tx, ownerID, viewID)
		if err != nil {
			return err
		}

		var srcName, srcIntro string
		err = tx.QueryRowContext(ctx, `SELECT name, intro FROM views WHERE id = ?`, viewID).
			Scan(&srcName, &srcIntro)
		if err != nil {
			return fmt.Errorf("reading source view: %w", err)
		}

		view, err = insertView(ctx, tx, estimateID, srcName+" (copy)")
		if err != nil {
			return err
		}
		view.Intro = srcIntro
		if _, err := tx.ExecContext(ctx, `UPDATE views SET intro = ? WHERE id = ?`, srcIntro, view.ID); err != nil {
			return fmt.Errorf("copying view intro: %w", err)
		}

		// Overwrite the seeded defaults with the source view's settings.
		_, err = tx.ExecContext(ctx, `
			UPDATE view_sections SET visible =
				(SELECT src.visible FROM view_sections src
				 WHERE src.view_id = ? AND src.section_id = view_sections.section_id)
			WHERE view_id = ? AND section_id IN
				(SELECT section_id FROM view_sections WHERE view_id = ?)
		`, viewID, view.ID, viewID)
		if err != nil {
			return fmt.Errorf("copying section settings: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE view_items SET
				price   = (SELECT src.price FROM view_items src WHERE src.view_id = ?1 AND src.item_id = view_items.item_id),
				total   = (SELECT src.total FROM view_items src WHERE src.view_id = ?1 AND src.item_id = view_items.item_id),
				visible = (SELECT src.visible FROM view_items src WHERE src.view_id = ?1 AND src.item_id = view_items.item_id)
			WHERE view_id = ?2 AND item_id IN
				(SELECT item_id FROM view_items WHERE view_id = ?1)
		`, viewID, view.ID)
		if err != nil {
			return fmt.Errorf("copying item settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("duplicated view", "source", viewID, "id", view.ID)
	return view, nil
}

// UpdateView applies the non-nil fields of upd. A non-nil empty Password
// clears protection.
func (s *SQLiteStore) UpdateView(ctx context.Context, ownerID, viewID string, upd ViewUpdate) error {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return fmt.Errorf("%w: view name is required", ErrValidation)
	}

	return s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := viewEstimate(ctx, tx, ownerID, viewID); err != nil {
			return err
		}

		set := []string{}
		args := []any{}
		if upd.Name != nil {
			set = append(set, "name = ?")
			args = append(args, strings.TrimSpace(*upd.Name))
		}
		if upd.Password != nil {
			set = append(set, "password = ?")
			args = append(args, strings.TrimSpace(*upd.Password))
		}
		if upd.Intro != nil {
			set = append(set, "intro = ?")
			args = append(args, *upd.Intro)
		}
		if len(set) == 0 {
			return nil
		}

		args = append(args, viewID)
		query := fmt.Sprintf("UPDATE views SET %s WHERE id = ?", strings.Join(set, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("updating view: %w", err)
		}
		return nil
	})
}

// DeleteView deletes a view and its settings rows. Refuses with
// ErrLastView when the view is the estimate's only one; the count check
// runs inside the delete transaction so concurrent deletes cannot both
// pass it.
func (s *SQLiteStore) DeleteView(ctx context.Context, ownerID, viewID string) error {
	return s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		estimateID, err := viewEstimate(ctx, tx, ownerID, viewID)
		if err != nil {
			return err
		}

		var count int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM views WHERE estimate_id = ?`, estimateID).Scan(&count)
		if err != nil {
			return fmt.Errorf("counting views: %w", err)
		}
		if count <= 1 {
			return ErrLastView
		}

		stmts := []string{
			`DELETE FROM view_items WHERE view_id = ?`,
			`DELETE FROM view_sections WHERE view_id = ?`,
			`DELETE FROM views WHERE id = ?`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, viewID); err != nil {
				return fmt.Errorf("deleting view: %w", err)
			}
		}
		return nil
	})
}

// backfillSectionSettings creates a default visible=true row for the new
// section in every existing view of the estimate. Invoked inside the same
// transaction as the section insert.
func backfillSectionSettings(ctx context.Context, tx dbx.DBTX, estimateID, sectionID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO view_sections (view_id, section_id, visible)
		SELECT id, ?, 1 FROM views WHERE estimate_id = ?
	`, sectionID, estimateID)
	if err != nil {
		return fmt.Errorf("backfilling section settings: %w", err)
	}
	return nil
}

// backfillItemSettings creates a default price=0/visible=true row for the
// new item in every existing view of the estimate.
func backfillItemSettings(ctx context.Context, tx dbx.DBTX, estimateID, itemID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO view_items (view_id, item_id, price, total, visible)
		SELECT id, ?, 0, 0, 1 FROM views WHERE estimate_id = ?
	`, itemID, estimateID)
	if err != nil {
		return fmt.Errorf("backfilling item settings: %w", err)
	}
	return nil
}

// SetSectionVisibility sets the visibility of a section within one view.
// Rejects pairs that do not belong to the same estimate.
func (s *SQLiteStore) SetSectionVisibility(ctx context.Context, ownerID, viewID, sectionID string, visible bool) error {
	return s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		viewEst, err := viewEstimate(ctx, tx, ownerID, viewID)
		if err != nil {
			return err
		}
		secEst, err := sectionEstimate(ctx, tx, ownerID, sectionID)
		if err != nil {
			return err
		}
		if viewEst != secEst {
			return fmt.Errorf("%w: view and section belong to different estimates", ErrValidation)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO view_sections (view_id, section_id, visible) VALUES (?, ?, ?)
			ON CONFLICT (view_id, section_id) DO UPDATE SET visible = excluded.visible
		`, viewID, sectionID, visible)
		if err != nil {
			return fmt.Errorf("setting section visibility: %w", err)
		}
		return nil
	})
}

// SetItemSetting applies price and/or visibility for an item within one
// view. The stored total is always recomputed as price × quantity with the
// quantity read fresh in the same transaction, so quantity edits are picked
// up on the next setting write but never retroactively.
func (s *SQLiteStore) SetItemSetting(ctx context.Context, ownerID, viewID, itemID string, upd ItemSettingUpdate) error {
	if upd.Price != nil && *upd.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrValidation)
	}

	return s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		viewEst, err := viewEstimate(ctx, tx, ownerID, viewID)
		if err != nil {
			return err
		}
		_, itemEst, err := itemSection(ctx, tx, ownerID, itemID)
		if err != nil {
			return err
		}
		if viewEst != itemEst {
			return fmt.Errorf("%w: view and item belong to different estimates", ErrValidation)
		}

		var quantity float64
		if err := tx.QueryRowContext(ctx, `SELECT quantity FROM items WHERE id = ?`, itemID).Scan(&quantity); err != nil {
			return fmt.Errorf("reading item quantity: %w", err)
		}

		// Defaults for a row that was never explicitly written.
		setting := ItemSetting{ViewID: viewID, ItemID: itemID, Visible: true}
		err = tx.QueryRowContext(ctx,
			`SELECT price, total, visible FROM view_items WHERE view_id = ? AND item_id = ?`,
			viewID, itemID,
		).Scan(&setting.Price, &setting.Total, &setting.Visible)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("reading item setting: %w", err)
		}

		if upd.Price != nil {
			setting.Price = *upd.Price
		}
		if upd.Visible != nil {
			setting.Visible = *upd.Visible
		}
		setting.Total = setting.Price * quantity

		_, err = tx.ExecContext(ctx, `
			INSERT INTO view_items (view_id, item_id, price, total, visible) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (view_id, item_id) DO UPDATE SET
				price = excluded.price, total = excluded.total, visible = excluded.visible
		`, viewID, itemID, setting.Price, setting.Total, setting.Visible)
		if err != nil {
			return fmt.Errorf("writing item setting: %w", err)
		}
		return nil
	})
}

// GetViewByToken resolves a public link token to its view. This is the
// only entity lookup that takes no owner: link tokens are the public
// surface.
func (s *SQLiteStore) GetViewByToken(ctx context.Context, token string) (*View, error) {
	return scanView(s.db.QueryRowContext(ctx, `
		SELECT id, estimate_id, name, link_token, password, intro, sort_order
		FROM views WHERE link_token = ?
	`, token))
}

// GetViewContent returns everything a projection of one view needs: the
// estimate, the view, ordered sections and items, and that view's settings
// keyed by section/item id.
func (s *SQLiteStore) GetViewContent(ctx context.Context, viewID string) (*ViewContent, error) {
	view, err := scanView(s.db.QueryRowContext(ctx, `
		SELECT id, estimate_id, name, link_token, password, intro, sort_order
		FROM views WHERE id = ?
	`, viewID))
	if err != nil {
		return nil, err
	}

	content := &ViewContent{
		View:            view,
		Items:           make(map[string][]*Item),
		SectionSettings: make(map[string]*SectionSetting),
		ItemSettings:    make(map[string]*ItemSetting),
	}

	var createdAt string
	var syncedAt sql.NullString
	est := &Estimate{}
	err = s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, created_at, synced_at FROM estimates WHERE id = ?
	`, view.EstimateID).Scan(&est.ID, &est.OwnerID, &est.Title, &createdAt, &syncedAt)
	if err != nil {
		return nil, fmt.Errorf("reading estimate for view: %w", err)
	}
	if est.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	content.Estimate = est

	if content.Sections, err = listSections(ctx, s.db, view.EstimateID); err != nil {
		return nil, err
	}
	items, err := listItemsForEstimate(ctx, s.db, view.EstimateID)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		content.Items[it.SectionID] = append(content.Items[it.SectionID], it)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT section_id, visible FROM view_sections WHERE view_id = ?`, viewID)
	if err != nil {
		return nil, fmt.Errorf("querying section settings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		setting := SectionSetting{ViewID: viewID}
		if err := rows.Scan(&setting.SectionID, &setting.Visible); err != nil {
			return nil, fmt.Errorf("scanning section setting: %w", err)
		}
		content.SectionSettings[setting.SectionID] = &setting
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := s.db.QueryContext(ctx,
		`SELECT item_id, price, total, visible FROM view_items WHERE view_id = ?`, viewID)
	if err != nil {
		return nil, fmt.Errorf("querying item settings: %w", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		setting := ItemSetting{ViewID: viewID}
		if err := itemRows.Scan(&setting.ItemID, &setting.Price, &setting.Total, &setting.Visible); err != nil {
			return nil, fmt.Errorf("scanning item setting: %w", err)
		}
		content.ItemSettings[setting.ItemID] = &setting
	}
	return content, itemRows.Err()
}

// listViews returns an estimate's views ordered by sort_order.
func listViews(ctx context.Context, q dbx.DBTX, estimateID string) ([]*View, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, estimate_id, name, link_token, password, intro, sort_order
		FROM views
		WHERE estimate_id = ?
		ORDER BY sort_order, id
	`, estimateID)
	if err != nil {
		return nil, fmt.Errorf("querying views: %w", err)
	}
	defer rows.Close()

	var views []*View
	for rows.Next() {
		view, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, rows.Err()
}

func scanView(row rowScanner) (*View, error) {
	var view View
	err := row.Scan(&view.ID, &view.EstimateID, &view.Name, &view.LinkToken, &view.Password, &view.Intro, &view.SortOrder)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning view: %w", err)
	}
	return &view, nil
}
