package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentic-research/commentprep/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "comments.db"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.CreateSchemaIfAbsent(context.Background()))
	return s
}

func makeRecords(names ...string) []record.Record {
	out := make([]record.Record, len(names))
	for i, n := range names {
		out[i] = record.Record{Name: n, Body: "body of " + n, ParentID: "t3_root"}
	}
	return out
}

func countRows(t *testing.T, s *Store, where string) int {
	t.Helper()
	var n int
	q := "SELECT COUNT(*) FROM comments"
	if where != "" {
		q += " WHERE " + where
	}
	require.NoError(t, s.db.QueryRow(q).Scan(&n))
	return n
}

func TestSchemaMatchesRecordColumns(t *testing.T) {
	require.Len(t, columnTypes, len(record.Columns))
	for i, c := range columnTypes {
		assert.Equal(t, record.Columns[i], c.name)
	}
}

func TestStore_CreateSchemaIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateSchemaIfAbsent(context.Background()))
}

func TestStore_InsertAndSelect(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertBatch(ctx, makeRecords("a1", "a2", "a3")))
	assert.Equal(t, 3, countRows(t, s, "is_locked = 0"))

	rows, err := s.SelectUnclaimed(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a1", rows[0].Name)
	assert.Equal(t, "body of a1", rows[0].Body)

	rows, err = s.SelectUnclaimed(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestStore_InsertBatchEmpty(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertBatch(context.Background(), nil))
	assert.Equal(t, 0, countRows(t, s, ""))
}

func TestStore_DuplicateNamesTolerated(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertBatch(context.Background(), makeRecords("dup", "dup")))
	assert.Equal(t, 2, countRows(t, s, "name = 'dup'"))
}

func TestStore_ClaimAndWriteSanitized(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertBatch(ctx, makeRecords("a1", "a2", "a3")))

	rows, err := s.SelectUnclaimed(ctx, 2)
	require.NoError(t, err)
	ids := []int64{rows[0].RowID, rows[1].RowID}
	require.NoError(t, s.Claim(ctx, ids))

	rest, err := s.SelectUnclaimed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "a3", rest[0].Name)

	results := []Result{{RowID: ids[0], Sanitized: "x"}, {RowID: ids[1], Sanitized: "y"}}
	require.NoError(t, s.WriteSanitized(ctx, results))
	// Write-back is idempotent.
	require.NoError(t, s.WriteSanitized(ctx, results))

	var got string
	require.NoError(t, s.db.QueryRow("SELECT sanitized_body FROM comments WHERE rowid = ?", ids[1]).Scan(&got))
	assert.Equal(t, "y", got)
}

func TestStore_UpdateField(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertBatch(ctx, makeRecords("a1")))
	rows, err := s.SelectUnclaimed(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, s.UpdateField(ctx, rows[0].RowID, "sanitized_body", "clean"))
	assert.Equal(t, 1, countRows(t, s, "sanitized_body = 'clean'"))

	err = s.UpdateField(ctx, rows[0].RowID, "body; DROP TABLE comments", "x")
	require.ErrorIs(t, err, ErrUnknownColumn)
}

func TestStore_BuildIndex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ix := Index{Name: "comments_parent_id", Column: "parent_id"}

	require.NoError(t, s.BuildIndex(ctx, ix, true))
	require.NoError(t, s.BuildIndex(ctx, ix, true), "if-absent build is idempotent")
	require.Error(t, s.BuildIndex(ctx, ix, false), "plain build fails on an existing index")

	var n int
	require.NoError(t, s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?", ix.Name).Scan(&n))
	assert.Equal(t, 1, n)

	require.ErrorIs(t, s.BuildIndex(ctx, Index{Name: "bad", Column: "nope"}, true), ErrUnknownColumn)
}

func TestStore_BusyWhileAnotherWriterHoldsLock(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	other, err := sql.Open("sqlite", s.Path())
	require.NoError(t, err)
	defer func() { _ = other.Close() }()

	conn, err := other.Conn(ctx)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
	require.NoError(t, err)

	err = s.InsertBatch(ctx, makeRecords("blocked"))
	require.Error(t, err)
	assert.True(t, IsBusy(err), "expected busy, got %v", err)

	_, err = conn.ExecContext(ctx, "ROLLBACK")
	require.NoError(t, err)
	require.NoError(t, s.InsertBatch(ctx, makeRecords("unblocked")))
	assert.Equal(t, 1, countRows(t, s, ""))
}

func TestStore_StatsAndRequeue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var names []string
	for i := range 5 {
		names = append(names, fmt.Sprintf("c%d", i))
	}
	require.NoError(t, s.InsertBatch(ctx, makeRecords(names...)))

	rows, err := s.SelectUnclaimed(ctx, 4)
	require.NoError(t, err)
	require.NoError(t, s.Claim(ctx, []int64{rows[0].RowID, rows[1].RowID, rows[2].RowID, rows[3].RowID}))
	// A body that sanitizes to nothing is still a finished row.
	require.NoError(t, s.WriteSanitized(ctx, []Result{
		{RowID: rows[0].RowID, Sanitized: "done"},
		{RowID: rows[1].RowID, Sanitized: ""},
	}))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 5, Unclaimed: 1, Claimed: 4, Orphaned: 2}, st)

	n, err := s.Requeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 5, Unclaimed: 3, Claimed: 2, Orphaned: 0}, st)

	var locked int
	require.NoError(t, s.db.QueryRow("SELECT is_locked FROM comments WHERE rowid = ?", rows[1].RowID).Scan(&locked))
	assert.Equal(t, 1, locked, "empty write-back must not be requeued")
}

func TestStore_InsertLeavesSanitizedBodyNull(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	recs := makeRecords("fresh", "preset")
	recs[1].SanitizedBody = "already clean"
	require.NoError(t, s.InsertBatch(ctx, recs))

	assert.Equal(t, 1, countRows(t, s, "sanitized_body IS NULL AND name = 'fresh'"))
	assert.Equal(t, 1, countRows(t, s, "sanitized_body = 'already clean'"))
}

func TestOpen_RejectsURIDelimitersInPath(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a?mode=ro.db", "a#b.db", "a%3Fb.db"} {
		_, err := Open(context.Background(), filepath.Join(dir, name), Options{})
		require.ErrorIs(t, err, ErrInvalidPath, name)
	}
	_, err := Open(context.Background(), "", Options{})
	require.ErrorIs(t, err, ErrInvalidPath)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is created for a rejected path")
}
