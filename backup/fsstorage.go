package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const snapshotExt = ".snap"

// FSStorage keeps each snapshot as one file in a directory. Handles are
// file names of the form <unix-nano>-<uuid>.snap, so lexicographic order
// follows creation order.
type FSStorage struct {
	dir string
}

// NewFSStorage creates the snapshot directory if needed.
func NewFSStorage(dir string) (*FSStorage, error) {
	if dir == "" {
		return nil, fmt.Errorf("backup directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &FSStorage{dir: dir}, nil
}

// Store implements Storage. The blob is written to a temp file and renamed
// into place so a crash mid-write never leaves a half snapshot behind.
func (s *FSStorage) Store(ctx context.Context, blob []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	handle := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.NewString(), snapshotExt)

	tmp, err := os.CreateTemp(s.dir, ".snap-*")
	if err != nil {
		return "", fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err = tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	if err = os.Rename(tmpPath, filepath.Join(s.dir, handle)); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("finalize snapshot: %w", err)
	}

	return handle, nil
}

// List implements Storage. Handles come back sorted oldest first.
func (s *FSStorage) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var handles []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshotExt) {
			continue
		}
		handles = append(handles, e.Name())
	}
	sort.Strings(handles)
	return handles, nil
}

// Fetch implements Storage.
func (s *FSStorage) Fetch(ctx context.Context, handle string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(handle)))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, handle)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return blob, nil
}

// Delete implements Storage. Deleting an absent handle is not an error.
func (s *FSStorage) Delete(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(s.dir, filepath.Base(handle)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
