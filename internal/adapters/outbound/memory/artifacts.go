package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-listing/internal/domain/entity"
	"github.com/archon-research/stl-listing/internal/ports/outbound"
)

var _ outbound.ArtifactArchive = (*ArtifactStore)(nil)

// ArtifactStore keeps archived artifacts in memory, keyed by artifact key.
type ArtifactStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewArtifactStore creates an empty artifact store.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{objects: make(map[string][]byte)}
}

// Archive stores a copy of canonical unless the digest is already archived.
func (s *ArtifactStore) Archive(ctx context.Context, digest common.Hash, canonical []byte) (string, bool, error) {
	key := entity.ArtifactKey(digest)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok {
		return key, false, nil
	}
	s.objects[key] = append([]byte(nil), canonical...)
	return key, true, nil
}

// Get returns the bytes stored under key.
func (s *ArtifactStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Len returns the number of stored artifacts.
func (s *ArtifactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
