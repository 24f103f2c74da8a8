// Package memory provides in-memory implementations of the outbound ports.
// Useful for testing and for running the API without infrastructure.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-listing/internal/domain/entity"
	"github.com/archon-research/stl-listing/internal/ports/outbound"
)

// Compile-time check that SubmissionRepository implements outbound.SubmissionRepository
var _ outbound.SubmissionRepository = (*SubmissionRepository)(nil)

// SubmissionRepository is an in-memory implementation of the outbound.SubmissionRepository port.
type SubmissionRepository struct {
	mu      sync.RWMutex
	records map[common.Hash]*entity.SubmissionRecord
	// order preserves insertion order for ties on CreatedAt.
	order []common.Hash
}

// NewSubmissionRepository creates a new in-memory repository.
func NewSubmissionRepository() *SubmissionRepository {
	return &SubmissionRepository{
		records: make(map[common.Hash]*entity.SubmissionRecord),
	}
}

// HealthCheck verifies the repository is operational.
func (r *SubmissionRepository) HealthCheck(ctx context.Context) error {
	return nil
}

// SaveSubmission stores a copy of the record unless the digest is already present.
func (r *SubmissionRepository) SaveSubmission(ctx context.Context, record *entity.SubmissionRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[record.Digest]; ok {
		return false, nil
	}
	r.records[record.Digest] = cloneRecord(record)
	r.order = append(r.order, record.Digest)
	return true, nil
}

// GetSubmission returns the submission with the given digest, or nil.
func (r *SubmissionRepository) GetSubmission(ctx context.Context, digest common.Hash) (*entity.SubmissionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[digest]
	if !ok {
		return nil, nil
	}
	return cloneRecord(record), nil
}

// ListSubmissionsByAsset returns every submission listing the asset, oldest first.
func (r *SubmissionRepository) ListSubmissionsByAsset(ctx context.Context, asset common.Address) ([]*entity.SubmissionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entity.SubmissionRecord
	for _, digest := range r.order {
		record := r.records[digest]
		for _, a := range record.Assets {
			if a == asset {
				out = append(out, cloneRecord(record))
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func cloneRecord(r *entity.SubmissionRecord) *entity.SubmissionRecord {
	c := *r
	c.Payload = append([]byte(nil), r.Payload...)
	c.Assets = append([]common.Address(nil), r.Assets...)
	return &c
}
