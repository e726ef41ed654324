// ABOUTME: Bulk content replacement used by the spreadsheet-sync and AI-extraction collaborators
// ABOUTME: Swaps all sections/items of an estimate and assigns starting prices into named views

package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scopebook/scopebook/internal/dbx"
)

// ReplaceContent replaces every section and item of the estimate in one
// transaction, keeping the views. Each imported item may carry starting
// prices keyed by view name; matching views get a priced setting
// (total = price × quantity), everything else gets the defaults through
// the same backfill hooks as manual editing. The estimate's synced_at is
// updated on success.
func (s *SQLiteStore) ReplaceContent(ctx context.Context, ownerID, estimateID string, sections []SectionImport) error {
	for _, sec := range sections {
		if strings.TrimSpace(sec.Name) == "" {
			return fmt.Errorf("%w: section name is required", ErrValidation)
		}
		for _, it := range sec.Items {
			if strings.TrimSpace(it.Name) == "" {
				return fmt.Errorf("%w: item name is required", ErrValidation)
			}
			if it.Quantity < 0 {
				return fmt.Errorf("%w: quantity must not be negative", ErrValidation)
			}
			for _, price := range it.Prices {
				if price < 0 {
					return fmt.Errorf("%w: price must not be negative", ErrValidation)
				}
			}
		}
	}

	err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := estimateOwned(ctx, tx, ownerID, estimateID); err != nil {
			return err
		}

		views, err := listViews(ctx, tx, estimateID)
		if err != nil {
			return err
		}
		viewsByName := make(map[string]*View, len(views))
		for _, v := range views {
			viewsByName[v.Name] = v
		}
		for _, sec := range sections {
			for _, it := range sec.Items {
				for viewName := range it.Prices {
					if _, ok := viewsByName[viewName]; !ok {
						return fmt.Errorf("%w: unknown view %q", ErrValidation, viewName)
					}
				}
			}
		}

		// Old content goes first: settings, then items, then sections.
		stmts := []string{
			`DELETE FROM view_items WHERE view_id IN (SELECT id FROM views WHERE estimate_id = ?)`,
			`DELETE FROM view_sections WHERE view_id IN (SELECT id FROM views WHERE estimate_id = ?)`,
			`DELETE FROM items WHERE section_id IN (SELECT id FROM sections WHERE estimate_id = ?)`,
			`DELETE FROM sections WHERE estimate_id = ?`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, estimateID); err != nil {
				return fmt.Errorf("clearing estimate content: %w", err)
			}
		}

		for _, secImport := range sections {
			sec, err := insertSection(ctx, tx, estimateID, strings.TrimSpace(secImport.Name))
			if err != nil {
				return err
			}
			if err := backfillSectionSettings(ctx, tx, estimateID, sec.ID); err != nil {
				return err
			}

			for _, itImport := range secImport.Items {
				item, err := insertItem(ctx, tx, sec.ID, strings.TrimSpace(itImport.Name), itImport.Unit, itImport.Quantity)
				if err != nil {
					return err
				}
				if itImport.DisplayNo != "" {
					if _, err := tx.ExecContext(ctx, `UPDATE items SET display_no = ? WHERE id = ?`, itImport.DisplayNo, item.ID); err != nil {
						return fmt.Errorf("setting display number: %w", err)
					}
				}
				if err := backfillItemSettings(ctx, tx, estimateID, item.ID); err != nil {
					return err
				}

				for viewName, price := range itImport.Prices {
					view := viewsByName[viewName]
					_, err := tx.ExecContext(ctx, `
						UPDATE view_items SET price = ?, total = ? WHERE view_id = ? AND item_id = ?
					`, price, price*item.Quantity, view.ID, item.ID)
					if err != nil {
						return fmt.Errorf("assigning starting price: %w", err)
					}
				}
			}
		}

		_, err = tx.ExecContext(ctx, `UPDATE estimates SET synced_at = ? WHERE id = ?`,
			fmtTime(time.Now()), estimateID)
		if err != nil {
			return fmt.Errorf("updating synced_at: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("replaced estimate content", "estimate", estimateID, "sections", len(sections))
	return nil
}
