package pinstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipdeck/internal/crypto"
	"go.klb.dev/clipdeck/internal/entry"
)

func textEntry(s string) *entry.Entry {
	return entry.New([]entry.Item{{Format: entry.FormatText, Raw: []byte(s)}})
}

func openTemp(t *testing.T, opts Options) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "pins.db")
	s, err := Open(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestOpenMigrates(t *testing.T) {
	s, _ := openTemp(t, Options{})
	v, err := userVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode;").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestPersistByIdentity(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t, Options{})
	a := textEntry("a")

	ok, err := s.IsPersisted(ctx, a)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Persist(ctx, a))
	require.NoError(t, s.Persist(ctx, a))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err = s.IsPersisted(ctx, a.Clone())
	require.NoError(t, err)
	assert.False(t, ok, "a clone has its own identity")

	require.NoError(t, s.Delete(ctx, a))
	ok, _ = s.IsPersisted(ctx, a)
	assert.False(t, ok)
}

func TestSameContentIsSeparatePins(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t, Options{})
	a, b := textEntry("x"), textEntry("x")
	require.Equal(t, a.ContentKey(), b.ContentKey())

	require.NoError(t, s.Persist(ctx, a))
	ok, err := s.IsPersisted(ctx, b)
	require.NoError(t, err)
	assert.False(t, ok)

	// Removing a pin that was never made leaves the other one alone.
	require.NoError(t, s.Delete(ctx, b))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Persist(ctx, b))
	snaps, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, a.ID(), snaps[0].ID)
	assert.Equal(t, b.ID(), snaps[1].ID)
}

func TestMigrateFromContentKeyedSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pins.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE pins (
		  content_key TEXT PRIMARY KEY,
		  entry_id    TEXT NOT NULL,
		  created_at  INTEGER NOT NULL,
		  pinned_at   INTEGER NOT NULL,
		  sealed      INTEGER NOT NULL DEFAULT 0,
		  payload     BLOB NOT NULL
		)`,
		`CREATE TABLE meta (key TEXT PRIMARY KEY, value BLOB NOT NULL)`,
		`INSERT INTO meta(key, value) VALUES ('salt', x'00112233445566778899aabbccddeeff')`,
		`INSERT INTO pins VALUES ('k1', 'id-1', 1, 10, 0, '[{"format":1,"data":"aGk="}]')`,
		`PRAGMA user_version=1`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	require.NoError(t, db.Close())

	s, err := Open(path, Options{})
	require.NoError(t, err)
	defer s.Close()
	v, err := userVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)

	snaps, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "id-1", snaps[0].ID)
	assert.Equal(t, "hi", string(snaps[0].Raws[0].Data))

	restored := entry.Restore(snaps[0].ID, snaps[0].Created, nil, true)
	ok, err := s.IsPersisted(ctx, restored)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadInPinOrder(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t, Options{})
	a := entry.New([]entry.Item{
		{Format: entry.FormatText, Raw: []byte("a")},
		{Format: entry.FormatPNG, Raw: []byte{0x89, 'P', 'N', 'G'}},
	})
	b, c := textEntry("b"), textEntry("c")
	for _, e := range []*entry.Entry{b, a, c} {
		require.NoError(t, s.Persist(ctx, e))
	}
	require.NoError(t, s.Close())

	s2, err := Open(path, Options{})
	require.NoError(t, err)
	defer s2.Close()
	snaps, err := s2.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, b.ID(), snaps[0].ID)
	assert.Equal(t, a.ID(), snaps[1].ID)
	assert.Equal(t, c.ID(), snaps[2].ID)
	assert.Equal(t, a.Raws(), snaps[1].Raws)
	assert.True(t, a.Created().Equal(snaps[1].Created))
}

func TestSealedPayloads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pins.db")
	s, err := Open(path, Options{Passphrase: "secret"})
	require.NoError(t, err)
	a := textEntry("top secret")
	require.NoError(t, s.Persist(ctx, a))

	var payload []byte
	require.NoError(t, s.db.QueryRow(`SELECT payload FROM pins`).Scan(&payload))
	assert.NotContains(t, string(payload), "top secret")
	require.NoError(t, s.Close())

	locked, err := Open(path, Options{})
	require.NoError(t, err)
	_, err = locked.Load(ctx)
	assert.ErrorIs(t, err, ErrLocked)
	require.NoError(t, locked.Close())

	wrong, err := Open(path, Options{Passphrase: "nope"})
	require.NoError(t, err)
	_, err = wrong.Load(ctx)
	assert.ErrorIs(t, err, crypto.ErrOpen)
	require.NoError(t, wrong.Close())

	right, err := Open(path, Options{Passphrase: "secret"})
	require.NoError(t, err)
	defer right.Close()
	snaps, err := right.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "top secret", string(snaps[0].Raws[0].Data))
}
