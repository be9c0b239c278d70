// Package cache implements the local content-addressed verdict store:
// schema, HMAC-authenticated integrity, freshness policy, and migration
//. All mutating operations are expected to run on the Scan Engine's
// single writer goroutine; see the package doc on Store for the contract.
package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vscan/vscan/internal/model"
	"github.com/vscan/vscan/internal/vscanerr"
)

// currentSchemaVersion is bumped whenever the stored row shape changes.
// Each bump must have a matching branch in runMigrations().
const currentSchemaVersion = 1

// dbFileName is the verdict store's filename under cache_dir.
const dbFileName = "cache.db"

// Store persists ExtensionVerdicts keyed by (extension_id, version),
// authenticated with a per-installation HMAC key.
//
// Concurrency contract: Store is not internally synchronized against
// concurrent Store() calls from multiple goroutines. The Scan Engine
// guarantees only its single coordinator goroutine ever calls Store or
// Clear (migration runs inside Open); Lookup may additionally be called from that same
// goroutine between dispatch batches. Workers never hold a *Store.
type Store struct {
	db       *sql.DB
	dir      string
	key      []byte
	regenKey bool
}

// Open opens (creating if necessary) the cache database under dir,
// loading or generating the per-installation HMAC key and running
// migrations. If the key file was missing and had to be regenerated, the
// entire cache is treated as invalidated
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, vscanerr.New(vscanerr.CacheIO, fmt.Errorf("creating cache dir: %w", err))
	}

	key, regenerated, err := loadOrCreateKey(dir)
	if err != nil {
		return nil, vscanerr.New(vscanerr.CacheIO, err)
	}

	db, err := openDB(filepath.Join(dir, dbFileName))
	if err != nil {
		return nil, vscanerr.New(vscanerr.CacheIO, err)
	}

	s := &Store{db: db, dir: dir, key: key, regenKey: regenerated}

	if err := s.migrate(); err != nil {
		// migrate() already renamed the corrupt file aside and rebuilt;
		// a remaining error here means even the rebuild failed.
		return nil, vscanerr.New(vscanerr.CacheIO, err)
	}

	if regenerated {
		if err := s.clearLocked(); err != nil {
			return nil, vscanerr.New(vscanerr.CacheIO, fmt.Errorf("invalidating cache after key regeneration: %w", err))
		}
	}

	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline; sqlite serializes anyway
	return db, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RegeneratedKey reports whether Open had to mint a fresh HMAC key,
// meaning every prior cache entry is now unauthenticatable and will miss.
func (s *Store) RegeneratedKey() bool { return s.regenKey }

// Lookup returns the cached verdict for (extensionID, version) if it is
// present, authenticates under the current HMAC key, matches the current
// schema, and is younger than maxAge.
func (s *Store) Lookup(extensionID, version string, now time.Time, maxAge time.Duration) (model.ExtensionVerdict, bool) {
	row := s.db.QueryRow(`
		SELECT payload, stored_at, schema_version, hmac_tag
		FROM entries WHERE extension_id = ? AND version = ?
	`, extensionID, version)

	var payload, tag []byte
	var storedAtUnix int64
	var schemaVersion int
	if err := row.Scan(&payload, &storedAtUnix, &schemaVersion, &tag); err != nil {
		return model.ExtensionVerdict{}, false
	}

	if schemaVersion != currentSchemaVersion {
		return model.ExtensionVerdict{}, false
	}

	if !verifyTag(s.key, payload, schemaVersion, extensionID, version, tag) {
		return model.ExtensionVerdict{}, false
	}

	storedAt := time.Unix(storedAtUnix, 0).UTC()
	if now.Sub(storedAt) > maxAge {
		return model.ExtensionVerdict{}, false
	}

	verdict, err := unmarshalVerdict(payload)
	if err != nil {
		return model.ExtensionVerdict{}, false
	}
	return verdict, true
}

// Store upserts a verdict, computing its HMAC tag under the current key.
// Only source_status=success verdicts should ever be passed in;
// callers that persist failures anyway get no correctness guarantee other
// than what Lookup already enforces.
//
// Callers MUST invoke Store only from the engine's writer goroutine.
func (s *Store) Store(v model.ExtensionVerdict, now time.Time) error {
	payload, err := marshalVerdict(v)
	if err != nil {
		return vscanerr.New(vscanerr.CacheIO, err)
	}

	tag := computeTag(s.key, payload, currentSchemaVersion, v.ExtensionID, v.Version)

	_, err = s.db.Exec(`
		INSERT INTO entries (extension_id, version, payload, stored_at, schema_version, hmac_tag, analysis_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(extension_id, version) DO UPDATE SET
			payload=excluded.payload,
			stored_at=excluded.stored_at,
			schema_version=excluded.schema_version,
			hmac_tag=excluded.hmac_tag,
			analysis_id=excluded.analysis_id
	`, v.ExtensionID, v.Version, payload, now.Unix(), currentSchemaVersion, tag, v.AnalysisID)
	if err != nil {
		return vscanerr.New(vscanerr.CacheIO, fmt.Errorf("storing verdict for %s@%s: %w", v.ExtensionID, v.Version, err))
	}
	return nil
}

// Clear removes every cache entry, used after key regeneration or on an
// explicit operator request.
func (s *Store) Clear() error {
	return s.clearLocked()
}

func (s *Store) clearLocked() error {
	_, err := s.db.Exec(`DELETE FROM entries`)
	if err != nil {
		return fmt.Errorf("clearing cache entries: %w", err)
	}
	return nil
}

// Stats summarizes cache contents for operator-facing status output.
type Stats struct {
	Entries    int
	AvgAge     time.Duration
	StaleCount int
}

// Stats computes stats() against the given reference time and
// staleness threshold.
func (s *Store) Stats(now time.Time, staleAfter time.Duration) (Stats, error) {
	rows, err := s.db.Query(`SELECT stored_at FROM entries`)
	if err != nil {
		return Stats{}, fmt.Errorf("querying cache stats: %w", err)
	}
	defer rows.Close()

	var count int
	var totalAge time.Duration
	var stale int
	for rows.Next() {
		var storedAtUnix int64
		if err := rows.Scan(&storedAtUnix); err != nil {
			return Stats{}, fmt.Errorf("scanning cache stats row: %w", err)
		}
		age := now.Sub(time.Unix(storedAtUnix, 0).UTC())
		totalAge += age
		count++
		if age > staleAfter {
			stale++
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterating cache stats rows: %w", err)
	}

	st := Stats{Entries: count, StaleCount: stale}
	if count > 0 {
		st.AvgAge = totalAge / time.Duration(count)
	}
	return st, nil
}
