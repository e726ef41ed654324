// ABOUTME: Section CRUD with append-at-max ordering and explicit cascade deletes
// ABOUTME: Section creation backfills default settings into every view in the same transaction

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/scopebook/scopebook/internal/dbx"
)

// CreateSection appends a section to the estimate and, in the same
// transaction, backfills a visible=true setting into every existing view.
// The insert itself knows nothing about views; the backfill hook is the
// only view-aware step.
func (s *SQLiteStore) CreateSection(ctx context.Context, ownerID, estimateID, name string) (*Section, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: section name is required", ErrValidation)
	}

	var sec *Section
	err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := estimateOwned(ctx, tx, ownerID, estimateID); err != nil {
			return err
		}

		var err error
		sec, err = insertSection(ctx, tx, estimateID, name)
		if err != nil {
			return err
		}
		return backfillSectionSettings(ctx, tx, estimateID, sec.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("created section", "id", sec.ID, "estimate", estimateID)
	return sec, nil
}

// insertSection appends a section at max(sort_order)+1 among its siblings.
func insertSection(ctx context.Context, tx dbx.DBTX, estimateID, name string) (*Section, error) {
	sec := &Section{
		ID:         newID(),
		EstimateID: estimateID,
		Name:       name,
	}

	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_order), 0) + 1 FROM sections WHERE estimate_id = ?`,
		estimateID,
	).Scan(&sec.SortOrder)
	if err != nil {
		return nil, fmt.Errorf("allocating section sort order: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sections (id, estimate_id, name, sort_order) VALUES (?, ?, ?, ?)`,
		sec.ID, sec.EstimateID, sec.Name, sec.SortOrder,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting section: %w", err)
	}
	return sec, nil
}

// RenameSection updates a section's name.
func (s *SQLiteStore) RenameSection(ctx context.Context, ownerID, sectionID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: section name is required", ErrValidation)
	}

	return s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := sectionEstimate(ctx, tx, ownerID, sectionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sections SET name = ? WHERE id = ?`, name, sectionID); err != nil {
			return fmt.Errorf("renaming section: %w", err)
		}
		return nil
	})
}

// DeleteSection deletes a section, all items in it, and every settings row
// referencing the section or its items, for every view. Sibling sort
// orders are not renumbered; gaps are fine.
func (s *SQLiteStore) DeleteSection(ctx context.Context, ownerID, sectionID string) error {
	return s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := sectionEstimate(ctx, tx, ownerID, sectionID); err != nil {
			return err
		}

		stmts := []string{
			`DELETE FROM view_items WHERE item_id IN (SELECT id FROM items WHERE section_id = ?)`,
			`DELETE FROM view_sections WHERE section_id = ?`,
			`DELETE FROM items WHERE section_id = ?`,
			`DELETE FROM sections WHERE id = ?`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, sectionID); err != nil {
				return fmt.Errorf("deleting section: %w", err)
			}
		}
		return nil
	})
}

// listSections returns an estimate's sections ordered by sort_order.
func listSections(ctx context.Context, q dbx.DBTX, estimateID string) ([]*Section, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, estimate_id, name, sort_order
		FROM sections
		WHERE estimate_id = ?
		ORDER BY sort_order, id
	`, estimateID)
	if err != nil {
		return nil, fmt.Errorf("querying sections: %w", err)
	}
	defer rows.Close()

	var sections []*Section
	for rows.Next() {
		var sec Section
		if err := rows.Scan(&sec.ID, &sec.EstimateID, &sec.Name, &sec.SortOrder); err != nil {
			return nil, fmt.Errorf("scanning section: %w", err)
		}
		sections = append(sections, &sec)
	}
	return sections, rows.Err()
}
