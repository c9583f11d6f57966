package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStorage(t.TempDir())
	require.NoError(t, err)

	handle, err := s.Store(ctx, []byte("snapshot-bytes"))
	require.NoError(t, err)
	assert.Contains(t, handle, snapshotExt)

	blob, err := s.Fetch(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, []byte("snapshot-bytes"), blob)

	handles, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{handle}, handles)

	require.NoError(t, s.Delete(ctx, handle))
	handles, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, handles)

	_, err = s.Fetch(ctx, handle)
	require.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestFSStorage_DeleteAbsentHandleIsNoError(t *testing.T) {
	s, err := NewFSStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Delete(context.Background(), "never-stored.snap"))
}

func TestFSStorage_ListIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStorage(dir)
	require.NoError(t, err)

	ctx := context.Background()
	handle, err := s.Store(ctx, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a snapshot"), 0o644))

	handles, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{handle}, handles)
}
