package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		_, err = NewValues(ctx, s, "actions", "actionName")
		require.NoError(t, err)
		_, err = NewPairs[int64](ctx, s, "activities", "time", "actionName")
		require.NoError(t, err)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"actions", "activities"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", table)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	// Try to open in non-existent directory
	path := "/nonexistent/dir/test.db"

	_, err := Open(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestClose_NilDB(t *testing.T) {
	s := &DB{db: nil}
	err := s.Close()
	if err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestSQL_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestDB(t)

	db := s.SQL()
	require.NotNil(t, db)
	assert.NoError(t, db.Ping())
}

// Pragma tests

func TestPragma_JournalMode(t *testing.T) {
	s := createTestDB(t)

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_Synchronous(t *testing.T) {
	s := createTestDB(t)

	// NORMAL = 1
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := createTestDB(t)

	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestPragma_ForeignKeys(t *testing.T) {
	s := createTestDB(t)

	// ON = 1
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

// Schema tests

func TestSchema_ValuesTable(t *testing.T) {
	s := createTestDB(t)
	_, err := NewValues(context.Background(), s, "notes", "note")
	require.NoError(t, err)

	columns := getTableColumns(t, s.db, "notes")
	assert.ElementsMatch(t, []string{"id", "note"}, columns)
}

func TestSchema_PairsTable(t *testing.T) {
	s := createTestDB(t)
	_, err := NewPairs[int64](context.Background(), s, "actionHierarchy", "parent", "child")
	require.NoError(t, err)

	columns := getTableColumns(t, s.db, "actionHierarchy")
	assert.ElementsMatch(t, []string{"id", "parent", "child"}, columns)

	indexes := getTableIndexes(t, s.db, "actionHierarchy")
	assert.Contains(t, indexes, "idx_actionHierarchy_parent")
}

func TestSchema_RejectsInvalidIdentifiers(t *testing.T) {
	s := createTestDB(t)
	ctx := context.Background()

	_, err := NewValues(ctx, s, "notes; DROP TABLE x", "note")
	assert.Error(t, err)

	_, err = NewPairs[string](ctx, s, "pairs", "key", "value col")
	assert.Error(t, err)
}

// Transaction tests

func TestInTx_CommitsOnSuccess(t *testing.T) {
	s := createTestDB(t)
	ctx := context.Background()
	pairs, err := NewPairs[int64](ctx, s, "activities", "time", "actionName")
	require.NoError(t, err)

	err = s.InTx(ctx, func(tx *Tx) error {
		_, err := pairs.With(tx).Insert(ctx, 10, 1)
		if err != nil {
			return err
		}
		_, err = pairs.With(tx).Insert(ctx, 10, 2)
		return err
	})
	require.NoError(t, err)

	rows, err := pairs.PageLeft(ctx, 0, 100, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := createTestDB(t)
	ctx := context.Background()
	pairs, err := NewPairs[int64](ctx, s, "activities", "time", "actionName")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.InTx(ctx, func(tx *Tx) error {
		if _, err := pairs.With(tx).Insert(ctx, 10, 1); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := pairs.PageLeft(ctx, 0, 100, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// Error classification tests

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, ErrNotFound},
		{"unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, ErrDuplicateKey},
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, ErrStorageUnavailable},
		{"other", errors.New("disk on fire"), ErrStorageUnavailable},
		{"canceled", context.Canceled, context.Canceled},
		{"newer schema", ErrSchemaTooNew, ErrSchemaTooNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Classify(tt.err), tt.want)
		})
	}

	assert.NoError(t, Classify(nil))
}

func TestClassify_KeepsDriverError(t *testing.T) {
	driverErr := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}
	err := Classify(driverErr)

	var got sqlite3.Error
	require.True(t, errors.As(err, &got))
	assert.Equal(t, sqlite3.ErrConstraintUnique, got.ExtendedCode)
}

// Schema version tests

func TestStampSchema_SetsUserVersion(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()

	version, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	require.NoError(t, s.StampSchema(ctx, 1))
	require.NoError(t, s.StampSchema(ctx, 1), "restamping the same version is a no-op")
	require.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestStampSchema_RefusesNewerDatabase(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.StampSchema(ctx, 3))

	err = s.StampSchema(ctx, 2)
	assert.ErrorIs(t, err, ErrSchemaTooNew)
	require.NoError(t, s.verifyPragma("user_version", "3"))
}

// Helper functions

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}
