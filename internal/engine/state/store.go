// Package state provides the persistence backends the download registry
// serializes into.
package state

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/surge-downloader/localcopy/internal/registry"
)

// Backend kinds accepted by Open.
const (
	KindSQLite = "sqlite"
	KindBadger = "badger"
	KindMemory = "memory"
)

// Store is a registry backend that owns resources.
type Store interface {
	registry.Backend
	io.Closer
}

// Open opens the backend of the given kind under dir.
func Open(kind, dir string) (Store, error) {
	switch kind {
	case KindSQLite, "":
		return OpenSQLite(filepath.Join(dir, "localcopy.db"))
	case KindBadger:
		return OpenBadger(filepath.Join(dir, "badger"))
	case KindMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", kind)
	}
}

// MemoryStore keeps values in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, registry.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Set(values map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range values {
		s.data[k] = append([]byte(nil), v...)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
