package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/denster32/dogtv-datacore/logger"
)

// fileStore is a DurableStore backed by a single JSON document on disk.
// The whole key space is held in memory and rewritten atomically
// (temp file + rename) on every mutation, so a crash mid-write can never
// leave a torn document behind. The special path ":memory:" keeps the
// store purely in memory, which tests rely on.
type fileStore struct {
	path     string
	inMemory bool
	log      *logger.Logger

	mu      sync.RWMutex
	entries map[string][]byte
}

type filePersistedState struct {
	Entries map[string][]byte `json:"entries"`
}

// NewFileStore opens (or creates) a file-backed DurableStore at path.
func NewFileStore(path string, log *logger.Logger) (DurableStore, error) {
	if path == "" {
		path = ":memory:"
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &fileStore{
		path:     path,
		inMemory: path == ":memory:",
		log:      log,
		entries:  make(map[string][]byte),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) load() error {
	if s.inMemory {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: read store file: %w", ErrPersistence, err)
	}

	var st filePersistedState
	if err = json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("%w: decode store file: %w", ErrPersistence, err)
	}
	if st.Entries == nil {
		st.Entries = make(map[string][]byte)
	}
	s.entries = st.Entries

	s.log.Debug().Str("path", s.path).Int("keys", len(s.entries)).Msg("file store loaded")
	return nil
}

// persist writes the full document to a temp file and renames it over the
// target. Caller must hold s.mu.
func (s *fileStore) persist() error {
	if s.inMemory {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create store dir: %w", ErrPersistence, err)
		}
	}

	payload, err := json.Marshal(filePersistedState{Entries: s.entries})
	if err != nil {
		return fmt.Errorf("%w: encode store: %w", ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(dir, ".datacore-*")
	if err != nil {
		return fmt.Errorf("%w: create temp store file: %w", ErrPersistence, err)
	}
	tmpPath := tmp.Name()

	if _, err = tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: write temp store file: %w", ErrPersistence, err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: close temp store file: %w", ErrPersistence, err)
	}
	if err = os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: replace store file: %w", ErrPersistence, err)
	}

	return nil
}

func (s *fileStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.entries[key]
	cp := make([]byte, len(value))
	copy(cp, value)
	s.entries[key] = cp

	if err := s.persist(); err != nil {
		// roll the in-memory state back so memory and disk agree
		if existed {
			s.entries[key] = prev
		} else {
			delete(s.entries, key)
		}
		return err
	}
	return nil
}

func (s *fileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, nil
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.entries[key]
	if !existed {
		return nil
	}
	delete(s.entries, key)

	if err := s.persist(); err != nil {
		s.entries[key] = prev
		return err
	}
	return nil
}

func (s *fileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys, nil
}
