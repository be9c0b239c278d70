package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// migrate ensures the database matches currentSchemaVersion, performing a
// forward-only migration when an older schema is found. If the database is
// corrupt (fails PRAGMA integrity_check) or migration itself fails, the
// corrupt file is renamed aside and a fresh database is built in its place.
func (s *Store) migrate() error {
	if err := s.integrityCheck(); err != nil {
		if err := s.rebuildFresh(); err != nil {
			return fmt.Errorf("rebuilding corrupt cache database: %w", err)
		}
		return s.runMigrations(0)
	}

	version, err := s.readSchemaVersion()
	if err != nil {
		// No meta table yet: either a brand-new file or a pre-schema
		// database. Either way, build from scratch.
		if err := s.createSchema(); err != nil {
			return fmt.Errorf("creating cache schema: %w", err)
		}
		version = currentSchemaVersion
	}

	if err := s.runMigrations(version); err != nil {
		if rebuildErr := s.rebuildFresh(); rebuildErr != nil {
			return fmt.Errorf("migration failed (%v) and rebuild failed: %w", err, rebuildErr)
		}
		return s.runMigrations(0)
	}

	return nil
}

func (s *Store) integrityCheck() error {
	var result string
	if err := s.db.QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("running integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func (s *Store) readSchemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("meta table has no schema_version row")
	}
	return version, err
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS entries (
			extension_id   TEXT NOT NULL,
			version        TEXT NOT NULL,
			payload        BLOB NOT NULL,
			stored_at      INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			hmac_tag       BLOB NOT NULL,
			analysis_id    TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (extension_id, version)
		);
		INSERT INTO meta (key, value) VALUES ('schema_version', 1)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value;
	`)
	return err
}

// runMigrations applies forward-only migrations from fromVersion to
// currentSchemaVersion. There is currently only schema version 1; future
// bumps add a case here without altering earlier cases, matching the
// teacher's additive ALTER TABLE migration style in tasks/store.go.
func (s *Store) runMigrations(fromVersion int) error {
	if fromVersion >= currentSchemaVersion {
		return nil
	}

	if fromVersion == 0 {
		if err := s.createSchema(); err != nil {
			return err
		}
		return nil
	}

	return fmt.Errorf("no migration path from schema version %d to %d", fromVersion, currentSchemaVersion)
}

// rebuildFresh renames the current database file aside (with a timestamp
// suffix, ) and opens a brand-new one in its place.
func (s *Store) rebuildFresh() error {
	path := filepath.Join(s.dir, dbFileName)

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing corrupt database before rename: %w", err)
	}

	corruptPath := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if err := os.Rename(path, corruptPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("renaming corrupt database aside: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return fmt.Errorf("opening replacement database: %w", err)
	}
	s.db = db

	return s.createSchema()
}
