// ABOUTME: SQLite implementation of the store interfaces using modernc.org/sqlite
// ABOUTME: Owns schema creation, pragmas and the shared query helpers

package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/scopebook/scopebook/internal/dbx"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists (skip for in-memory databases)
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// _txlock=immediate makes write transactions take the writer lock at
	// BEGIN, so concurrent writers serialize instead of failing at COMMIT.
	db, err := sql.Open("sqlite", path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS estimates (
			id         TEXT PRIMARY KEY,
			owner_id   TEXT NOT NULL,
			title      TEXT NOT NULL,
			created_at TEXT NOT NULL,
			synced_at  TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_estimates_owner ON estimates(owner_id);

		CREATE TABLE IF NOT EXISTS sections (
			id          TEXT PRIMARY KEY,
			estimate_id TEXT NOT NULL REFERENCES estimates(id),
			name        TEXT NOT NULL,
			sort_order  INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sections_estimate ON sections(estimate_id, sort_order);

		CREATE TABLE IF NOT EXISTS items (
			id         TEXT PRIMARY KEY,
			section_id TEXT NOT NULL REFERENCES sections(id),
			display_no TEXT NOT NULL DEFAULT '',
			name       TEXT NOT NULL,
			unit       TEXT NOT NULL DEFAULT '',
			quantity   REAL NOT NULL DEFAULT 0,
			sort_order INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_items_section ON items(section_id, sort_order);

		CREATE TABLE IF NOT EXISTS views (
			id          TEXT PRIMARY KEY,
			estimate_id TEXT NOT NULL REFERENCES estimates(id),
			name        TEXT NOT NULL,
			link_token  TEXT NOT NULL UNIQUE,
			password    TEXT NOT NULL DEFAULT '',
			intro       TEXT NOT NULL DEFAULT '',
			sort_order  INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_views_estimate ON views(estimate_id, sort_order);
		CREATE INDEX IF NOT EXISTS idx_views_token ON views(link_token);

		CREATE TABLE IF NOT EXISTS view_sections (
			view_id    TEXT NOT NULL REFERENCES views(id),
			section_id TEXT NOT NULL REFERENCES sections(id),
			visible    INTEGER NOT NULL DEFAULT 1,

			PRIMARY KEY (view_id, section_id)
		);

		CREATE TABLE IF NOT EXISTS view_items (
			view_id TEXT NOT NULL REFERENCES views(id),
			item_id TEXT NOT NULL REFERENCES items(id),
			price   REAL NOT NULL DEFAULT 0,
			total   REAL NOT NULL DEFAULT 0,
			visible INTEGER NOT NULL DEFAULT 1,

			PRIMARY KEY (view_id, item_id)
		);

		CREATE TABLE IF NOT EXISTS versions (
			id          TEXT PRIMARY KEY,
			estimate_id TEXT NOT NULL REFERENCES estimates(id),
			number      INTEGER NOT NULL,
			name        TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL,

			UNIQUE (estimate_id, number)
		);

		CREATE TABLE IF NOT EXISTS version_sections (
			id         TEXT PRIMARY KEY,
			version_id TEXT NOT NULL REFERENCES versions(id),
			source_id  TEXT NOT NULL,
			name       TEXT NOT NULL,
			sort_order INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_version_sections ON version_sections(version_id, sort_order);

		CREATE TABLE IF NOT EXISTS version_items (
			id                 TEXT PRIMARY KEY,
			version_id         TEXT NOT NULL REFERENCES versions(id),
			version_section_id TEXT NOT NULL REFERENCES version_sections(id),
			source_id          TEXT NOT NULL,
			display_no         TEXT NOT NULL DEFAULT '',
			name               TEXT NOT NULL,
			unit               TEXT NOT NULL DEFAULT '',
			quantity           REAL NOT NULL DEFAULT 0,
			sort_order         INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_version_items ON version_items(version_section_id, sort_order);

		CREATE TABLE IF NOT EXISTS version_views (
			id         TEXT PRIMARY KEY,
			version_id TEXT NOT NULL REFERENCES versions(id),
			source_id  TEXT NOT NULL,
			name       TEXT NOT NULL,
			intro      TEXT NOT NULL DEFAULT '',
			sort_order INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_version_views ON version_views(version_id, sort_order);

		CREATE TABLE IF NOT EXISTS version_view_sections (
			version_view_id    TEXT NOT NULL REFERENCES version_views(id),
			version_section_id TEXT NOT NULL REFERENCES version_sections(id),
			visible            INTEGER NOT NULL DEFAULT 1,

			PRIMARY KEY (version_view_id, version_section_id)
		);

		CREATE TABLE IF NOT EXISTS version_view_items (
			version_view_id TEXT NOT NULL REFERENCES version_views(id),
			version_item_id TEXT NOT NULL REFERENCES version_items(id),
			price           REAL NOT NULL DEFAULT 0,
			total           REAL NOT NULL DEFAULT 0,
			visible         INTEGER NOT NULL DEFAULT 1,

			PRIMARY KEY (version_view_id, version_item_id)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// withTx runs fn inside a single write transaction.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.WithTx(ctx, s.db, nil, fn)
}

// newID mints a fresh uuid for any entity.
func newID() string {
	return uuid.NewString()
}

// newLinkToken mints a 32-character public link token.
func newLinkToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating link token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// fmtTime and parseTime keep all timestamps as RFC3339 UTC text.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// estimateOwned verifies the estimate exists and belongs to ownerID.
// Returns ErrNotFound otherwise; ownership is never disclosed separately.
func estimateOwned(ctx context.Context, q dbx.DBTX, ownerID, estimateID string) error {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM estimates WHERE id = ? AND owner_id = ?`,
		estimateID, ownerID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking estimate ownership: %w", err)
	}
	return nil
}

// sectionEstimate resolves a section to its estimate id, enforcing
// ownership of the estimate.
func sectionEstimate(ctx context.Context, q dbx.DBTX, ownerID, sectionID string) (string, error) {
	var estimateID string
	err := q.QueryRowContext(ctx, `
		SELECT s.estimate_id
		FROM sections s
		JOIN estimates e ON e.id = s.estimate_id
		WHERE s.id = ? AND e.owner_id = ?
	`, sectionID, ownerID).Scan(&estimateID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolving section estimate: %w", err)
	}
	return estimateID, nil
}

// itemSection resolves an item to its section and estimate ids, enforcing
// ownership of the estimate.
func itemSection(ctx context.Context, q dbx.DBTX, ownerID, itemID string) (sectionID, estimateID string, err error) {
	err = q.QueryRowContext(ctx, `
		SELECT i.section_id, s.estimate_id
		FROM items i
		JOIN sections s ON s.id = i.section_id
		JOIN estimates e ON e.id = s.estimate_id
		WHERE i.id = ? AND e.owner_id = ?
	`, itemID, ownerID).Scan(&sectionID, &estimateID)
	if err == sql.ErrNoRows {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("resolving item section: %w", err)
	}
	return sectionID, estimateID, nil
}

// viewEstimate resolves a view to its estimate id, enforcing ownership.
func viewEstimate(ctx context.Context, q dbx.DBTX, ownerID, viewID string) (string, error) {
	var estimateID string
	err := q.QueryRowContext(ctx, `
		SELECT v.estimate_id
		FROM views v
		JOIN estimates e ON e.id = v.estimate_id
		WHERE v.id = ? AND e.owner_id = ?
	`, viewID, ownerID).Scan(&estimateID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolving view estimate: %w", err)
	}
	return estimateID, nil
}
