package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/max-kamps/jpd-breader-sub000/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// Init initializes the SQLite database at baseDir/breader.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.breader.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	// Deck exports land here unless a path is given
	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Pragmas in the connection string apply to every pooled connection
	dbPath := filepath.Join(baseDir, "breader.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: cards
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS cards (
		  vid            INTEGER NOT NULL,
		  sid            INTEGER NOT NULL,
		  rid            INTEGER NOT NULL DEFAULT 0,
		  spelling       TEXT NOT NULL,
		  reading        TEXT NOT NULL,
		  meanings_json  TEXT,
		  state          TEXT NOT NULL,
		  modifier       TEXT,
		  frequency_rank INTEGER,
		  created_at     INTEGER NOT NULL,
		  updated_at     INTEGER NOT NULL,
		  PRIMARY KEY (vid, sid)
		);

		CREATE INDEX IF NOT EXISTS idx_cards_spelling
		ON cards(spelling);

		CREATE INDEX IF NOT EXISTS idx_cards_state_updated
		ON cards(state, updated_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: review log
	if version < 2 {
		schema := `
		CREATE TABLE IF NOT EXISTS reviews (
		  id           TEXT PRIMARY KEY,
		  vid          INTEGER NOT NULL,
		  sid          INTEGER NOT NULL,
		  action       TEXT NOT NULL,
		  grade        TEXT,
		  state_before TEXT NOT NULL,
		  state_after  TEXT NOT NULL,
		  created_at   INTEGER NOT NULL,
		  FOREIGN KEY (vid, sid) REFERENCES cards(vid, sid) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_reviews_card
		ON reviews(vid, sid, created_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
