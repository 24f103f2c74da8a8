package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// ArtifactArchive stores the canonical bytes of submissions, one artifact per
// digest under entity.ArtifactKey. Archived artifacts are never overwritten.
type ArtifactArchive interface {
	// Archive stores canonical under the digest's key unless an artifact is
	// already there. It returns the key and whether this call wrote it.
	Archive(ctx context.Context, digest common.Hash, canonical []byte) (key string, written bool, err error)
}
