package index

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/agentic-research/commentprep/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTarget struct {
	built []string
	fail  string
}

func (r *recordingTarget) BuildIndex(_ context.Context, ix store.Index, _ bool) error {
	if ix.Name == r.fail {
		return errors.New("boom")
	}
	r.built = append(r.built, ix.Name)
	return nil
}

func TestBuilder_BuildsDefaultsInOrder(t *testing.T) {
	rt := &recordingTarget{}
	require.NoError(t, NewBuilder(rt, Options{Logger: slog.New(slog.DiscardHandler)}).BuildAll(context.Background()))
	assert.Equal(t, []string{"comments_parent_id", "comments_name", "comments_is_locked"}, rt.built)
}

func TestBuilder_StopsAtFirstFailure(t *testing.T) {
	rt := &recordingTarget{fail: "comments_name"}
	err := NewBuilder(rt, Options{Logger: slog.New(slog.DiscardHandler)}).BuildAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"comments_parent_id"}, rt.built)
}

func TestBuilder_SQLiteRerun(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "comments.db"), store.Options{})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.CreateSchemaIfAbsent(ctx))

	logger := slog.New(slog.DiscardHandler)
	require.NoError(t, NewBuilder(s, Options{IfAbsent: true, Logger: logger}).BuildAll(ctx))
	require.NoError(t, NewBuilder(s, Options{IfAbsent: true, Logger: logger}).BuildAll(ctx))

	err = NewBuilder(s, Options{IfAbsent: false, Logger: logger}).BuildAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "comments_parent_id")
}
