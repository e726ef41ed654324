// ABOUTME: Item CRUD with shared quantity and append-at-max ordering
// ABOUTME: Item creation backfills default settings into every view in the same transaction

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/scopebook/scopebook/internal/dbx"
)

// CreateItem appends an item to the section and, in the same transaction,
// backfills a price=0/total=0/visible=true setting into every existing
// view of the estimate.
func (s *SQLiteStore) CreateItem(ctx context.Context, ownerID, sectionID, name, unit string, quantity float64) (*Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: item name is required", ErrValidation)
	}
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}

	var item *Item
	err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		estimateID, err := sectionEstimate(ctx, tx, ownerID, sectionID)
		if err != nil {
			return err
		}

		item, err = insertItem(ctx, tx, sectionID, name, unit, quantity)
		if err != nil {
			return err
		}
		return backfillItemSettings(ctx, tx, estimateID, item.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("created item", "id", item.ID, "section", sectionID)
	return item, nil
}

// insertItem appends an item at max(sort_order)+1 among its siblings.
func insertItem(ctx context.Context, tx dbx.DBTX, sectionID, name, unit string, quantity float64) (*Item, error) {
	item := &Item{
		ID:        newID(),
		SectionID: sectionID,
		Name:      name,
		Unit:      unit,
		Quantity:  quantity,
	}

	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_order), 0) + 1 FROM items WHERE section_id = ?`,
		sectionID,
	).Scan(&item.SortOrder)
	if err != nil {
		return nil, fmt.Errorf("allocating item sort order: %w", err)
	}
	item.DisplayNo = fmt.Sprintf("%d", item.SortOrder)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO items (id, section_id, display_no, name, unit, quantity, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.SectionID, item.DisplayNo, item.Name, item.Unit, item.Quantity, item.SortOrder)
	if err != nil {
		return nil, fmt.Errorf("inserting item: %w", err)
	}
	return item, nil
}

// UpdateItem applies the non-nil fields of upd. Changing quantity does NOT
// rewrite per-view totals; a total is only recomputed the next time a
// price or visibility write happens for that (view, item) pair.
func (s *SQLiteStore) UpdateItem(ctx context.Context, ownerID, itemID string, upd ItemUpdate) error {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return fmt.Errorf("%w: item name is required", ErrValidation)
	}
	if upd.Quantity != nil && *upd.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}

	return s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, _, err := itemSection(ctx, tx, ownerID, itemID); err != nil {
			return err
		}

		set := []string{}
		args := []any{}
		if upd.DisplayNo != nil {
			set = append(set, "display_no = ?")
			args = append(args, *upd.DisplayNo)
		}
		if upd.Name != nil {
			set = append(set, "name = ?")
			args = append(args, strings.TrimSpace(*upd.Name))
		}
		if upd.Unit != nil {
			set = append(set, "unit = ?")
			args = append(args, *upd.Unit)
		}
		if upd.Quantity != nil {
			set = append(set, "quantity = ?")
			args = append(args, *upd.Quantity)
		}
		if len(set) == 0 {
			return nil
		}

		args = append(args, itemID)
		query := fmt.Sprintf("UPDATE items SET %s WHERE id = ?", strings.Join(set, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("updating item: %w", err)
		}
		return nil
	})
}

// DeleteItem deletes an item and its settings rows in every view.
func (s *SQLiteStore) DeleteItem(ctx context.Context, ownerID, itemID string) error {
	return s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, _, err := itemSection(ctx, tx, ownerID, itemID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM view_items WHERE item_id = ?`, itemID); err != nil {
			return fmt.Errorf("deleting item settings: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, itemID); err != nil {
			return fmt.Errorf("deleting item: %w", err)
		}
		return nil
	})
}

// listItemsForEstimate returns every item of an estimate, ordered by
// section then item sort order.
func listItemsForEstimate(ctx context.Context, q dbx.DBTX, estimateID string) ([]*Item, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT i.id, i.section_id, i.display_no, i.name, i.unit, i.quantity, i.sort_order
		FROM items i
		JOIN sections s ON s.id = i.section_id
		WHERE s.estimate_id = ?
		ORDER BY s.sort_order, s.id, i.sort_order, i.id
	`, estimateID)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SectionID, &it.DisplayNo, &it.Name, &it.Unit, &it.Quantity, &it.SortOrder); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}
