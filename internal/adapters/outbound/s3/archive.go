// Package s3 archives canonical submission artifacts to AWS S3.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-listing/internal/domain/entity"
	"github.com/archon-research/stl-listing/internal/ports/outbound"
)

// immutableCacheControl marks digest-addressed objects as never changing.
const immutableCacheControl = "public, max-age=31536000, immutable"

// putObjectAPI is the S3 operation the archive needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ outbound.ArtifactArchive = (*ArtifactArchive)(nil)

// ArtifactArchive writes canonical submissions to one bucket. Objects are
// created with If-None-Match, so each digest is written at most once.
type ArtifactArchive struct {
	client putObjectAPI
	bucket string
	logger *slog.Logger
}

// NewArtifactArchive creates an archive on bucket. optFns customise the S3
// client, e.g. a LocalStack endpoint.
func NewArtifactArchive(cfg aws.Config, bucket string, logger *slog.Logger, optFns ...func(*s3.Options)) (*ArtifactArchive, error) {
	return newArtifactArchive(s3.NewFromConfig(cfg, optFns...), bucket, logger)
}

func newArtifactArchive(client putObjectAPI, bucket string, logger *slog.Logger) (*ArtifactArchive, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactArchive{
		client: client,
		bucket: bucket,
		logger: logger.With("component", "s3-archive", "bucket", bucket),
	}, nil
}

// Bucket returns the archive bucket.
func (a *ArtifactArchive) Bucket() string {
	return a.bucket
}

// Archive uploads canonical under the digest's key. An existing object is
// left untouched and reported as written=false.
func (a *ArtifactArchive) Archive(ctx context.Context, digest common.Hash, canonical []byte) (string, bool, error) {
	key := entity.ArtifactKey(digest)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(a.bucket),
		Key:               aws.String(key),
		Body:              bytes.NewReader(canonical),
		ContentType:       aws.String("application/json"),
		CacheControl:      aws.String(immutableCacheControl),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		Metadata:          map[string]string{"digest": digest.Hex()},
		IfNoneMatch:       aws.String("*"),
	})
	if err != nil {
		if alreadyArchived(err) {
			a.logger.Debug("artifact already archived", "digest", digest.Hex(), "key", key)
			return key, false, nil
		}
		return "", false, fmt.Errorf("archiving %s to s3://%s/%s: %w", digest.Hex(), a.bucket, key, err)
	}

	a.logger.Debug("archived artifact", "digest", digest.Hex(), "key", key, "bytes", len(canonical))
	return key, true, nil
}

// alreadyArchived reports whether err is S3 refusing an If-None-Match write.
func alreadyArchived(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "412":
		return true
	}
	return false
}
