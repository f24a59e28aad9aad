// Package pinstore persists pinned clipboard entries in SQLite so they
// survive restarts. Pins are keyed by entry id: two entries with the same
// content are distinct pins, and a restored entry keeps the id it was
// pinned under.
package pinstore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"go.klb.dev/clipdeck/internal/crypto"
	"go.klb.dev/clipdeck/internal/entry"
)

// CurrentSchemaVersion is the latest schema version. Bump this when adding
// migrations.
const CurrentSchemaVersion = 2

const saltSize = 16

// ErrLocked is returned when loading a sealed payload without a passphrase.
var ErrLocked = errors.New("pinned entry is sealed; passphrase required")

// Options configures a Store.
type Options struct {
	// Passphrase, if set, seals every payload written from now on.
	Passphrase string
}

// Store is a SQLite-backed pin store.
type Store struct {
	db  *sql.DB
	key *crypto.Key
}

// Open opens or creates the database at path.
func Open(path string, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create pin store directory: %w", err)
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open pin store: %w", err)
	}
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	_ = os.Chmod(path, 0o600)

	s := &Store{db: db}
	if opts.Passphrase != "" {
		var salt []byte
		if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'salt'`).Scan(&salt); err != nil {
			db.Close()
			return nil, fmt.Errorf("read salt: %w", err)
		}
		if s.key, err = crypto.DeriveKey(opts.Passphrase, salt); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := userVersion(db)
	if err != nil {
		return err
	}

	if version < 1 {
		salt := make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("generate salt: %w", err)
		}
		schema := `
		CREATE TABLE IF NOT EXISTS pins (
		  content_key TEXT PRIMARY KEY,
		  entry_id    TEXT NOT NULL,
		  created_at  INTEGER NOT NULL,
		  pinned_at   INTEGER NOT NULL,
		  sealed      INTEGER NOT NULL DEFAULT 0,
		  payload     BLOB NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_pins_pinned_at ON pins(pinned_at);

		CREATE TABLE IF NOT EXISTS meta (
		  key   TEXT PRIMARY KEY,
		  value BLOB NOT NULL
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if _, err := db.Exec(`INSERT OR IGNORE INTO meta(key, value) VALUES ('salt', ?)`, salt); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}

	if version < 2 {
		// Version 1 keyed pins by content hash, which merged identical
		// entries into one pin. Re-key by entry id.
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		defer tx.Rollback()
		for _, stmt := range []string{
			`CREATE TABLE pins_v2 (
			  entry_id    TEXT PRIMARY KEY,
			  content_key TEXT NOT NULL,
			  created_at  INTEGER NOT NULL,
			  pinned_at   INTEGER NOT NULL,
			  sealed      INTEGER NOT NULL DEFAULT 0,
			  payload     BLOB NOT NULL
			)`,
			`INSERT OR IGNORE INTO pins_v2(entry_id, content_key, created_at, pinned_at, sealed, payload)
			  SELECT entry_id, content_key, created_at, pinned_at, sealed, payload FROM pins`,
			`DROP TABLE pins`,
			`ALTER TABLE pins_v2 RENAME TO pins`,
			`CREATE INDEX IF NOT EXISTS idx_pins_pinned_at ON pins(pinned_at)`,
			`PRAGMA user_version=2`,
		} {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("migration 2 failed: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
	}

	return nil
}

func verifyWALMode(db *sql.DB) error {
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&mode); err != nil {
		return fmt.Errorf("verify journal mode: %w", err)
	}
	if mode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", mode)
	}
	return nil
}

func userVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&v); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return v, nil
}

func setUserVersion(db *sql.DB, v int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", v)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

type rawJSON struct {
	Format uint32 `json:"format"`
	Data   []byte `json:"data"`
}

func (s *Store) encode(raws []entry.Raw) (payload []byte, sealed bool, err error) {
	rows := make([]rawJSON, len(raws))
	for i, r := range raws {
		rows[i] = rawJSON{Format: uint32(r.Format), Data: r.Data}
	}
	payload, err = json.Marshal(rows)
	if err != nil {
		return nil, false, fmt.Errorf("encode payload: %w", err)
	}
	if s.key == nil {
		return payload, false, nil
	}
	payload, err = crypto.Seal(payload, s.key)
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (s *Store) decode(payload []byte, sealed bool) ([]entry.Raw, error) {
	if sealed {
		if s.key == nil {
			return nil, ErrLocked
		}
		var err error
		if payload, err = crypto.Open(payload, s.key); err != nil {
			return nil, err
		}
	}
	var rows []rawJSON
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	raws := make([]entry.Raw, len(rows))
	for i, r := range rows {
		raws[i] = entry.Raw{Format: entry.Format(r.Format), Data: r.Data}
	}
	return raws, nil
}

// IsPersisted reports whether e itself is pinned in the store.
func (s *Store) IsPersisted(ctx context.Context, e *entry.Entry) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM pins WHERE entry_id = ?`, e.ID()).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("query pin: %w", err)
	}
	return true, nil
}

// Persist stores e. Persisting an entry that is already pinned is a no-op
// and keeps its original pin position.
func (s *Store) Persist(ctx context.Context, e *entry.Entry) error {
	payload, sealed, err := s.encode(e.Raws())
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pins(entry_id, content_key, created_at, pinned_at, sealed, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO NOTHING`,
		e.ID(), e.ContentKey(), e.Created().UnixNano(), time.Now().UnixNano(), sealed, payload)
	if err != nil {
		return fmt.Errorf("insert pin: %w", err)
	}
	return nil
}

// Delete removes e's pin, if any.
func (s *Store) Delete(ctx context.Context, e *entry.Entry) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pins WHERE entry_id = ?`, e.ID()); err != nil {
		return fmt.Errorf("delete pin: %w", err)
	}
	return nil
}

// Load returns every pinned entry in the order it was pinned.
func (s *Store) Load(ctx context.Context) ([]entry.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, created_at, sealed, payload
		FROM pins ORDER BY pinned_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("query pins: %w", err)
	}
	defer rows.Close()

	var out []entry.Snapshot
	for rows.Next() {
		var (
			id      string
			created int64
			sealed  bool
			payload []byte
		)
		if err := rows.Scan(&id, &created, &sealed, &payload); err != nil {
			return nil, fmt.Errorf("scan pin: %w", err)
		}
		raws, err := s.decode(payload, sealed)
		if err != nil {
			return nil, fmt.Errorf("pin %s: %w", id, err)
		}
		out = append(out, entry.Snapshot{ID: id, Created: time.Unix(0, created), Raws: raws})
	}
	return out, rows.Err()
}

// Count returns the number of pinned entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pins`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pins: %w", err)
	}
	return n, nil
}
