package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteSession(testContext(t), SessionRecord{ID: "s1", Model: "m", Source: "names", CreatedSeq: 1}))
	sessions, err := s.ListSessions(testContext(t))
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)

		var version int
		require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
		assert.Equal(t, currentSchemaVersion, version)
		s.Close()
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	assert.Error(t, err)
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)
	tests := []struct{ name, want string }{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, s.verifyPragma(tt.name, tt.want))
		})
	}
}

func TestSchema_Tables(t *testing.T) {
	s := createTestStore(t)

	assert.Equal(t,
		[]string{"id", "model", "source", "created_seq"},
		getTableColumns(t, s.db, "sessions"))
	assert.Equal(t,
		[]string{"id", "session_id", "seq", "label", "fingerprint", "query", "arguments"},
		getTableColumns(t, s.db, "snapshots"))

	indexes := getTableIndexes(t, s.db, "snapshots")
	assert.Contains(t, indexes, "idx_snapshots_session_seq")
	assert.Contains(t, indexes, "idx_snapshots_fingerprint")
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Apply schema but NOT migrations (simulates pre-migration state)
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	db.Close()

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
	assert.True(t, slices.Contains(getTableIndexes(t, s.db, "snapshots"), "idx_snapshots_fingerprint"))
}

func TestConstraint_SnapshotRequiresSession(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteSnapshot(testContext(t), createTestSnapshot("snap1", "missing", 1, "name"))
	assert.Error(t, err)
}

func TestConstraint_UniqueSessionSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	require.NoError(t, s.WriteSession(ctx, SessionRecord{ID: "s1", Model: "m", Source: "names", CreatedSeq: 1}))
	require.NoError(t, s.WriteSnapshot(ctx, createTestSnapshot("a", "s1", 2, "name")))
	assert.Error(t, s.WriteSnapshot(ctx, createTestSnapshot("b", "s1", 2, "state")))
}

// Helper functions

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	require.NoError(t, err)
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue any
		require.NoError(t, rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk))
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	require.NoError(t, err)
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		indexes = append(indexes, name)
	}
	return indexes
}
