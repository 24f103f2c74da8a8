package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-listing/internal/domain/entity"
)

// SubmissionRepository persists encoded submissions. Submissions are
// immutable: there is no update or delete.
type SubmissionRepository interface {
	// SaveSubmission stores the record. It returns false without error when a
	// submission with the same digest already exists.
	SaveSubmission(ctx context.Context, record *entity.SubmissionRecord) (bool, error)

	// GetSubmission returns the submission with the given digest, or nil if none exists.
	GetSubmission(ctx context.Context, digest common.Hash) (*entity.SubmissionRecord, error)

	// ListSubmissionsByAsset returns every submission that listed the asset, oldest first.
	ListSubmissionsByAsset(ctx context.Context, asset common.Address) ([]*entity.SubmissionRecord, error)
}
