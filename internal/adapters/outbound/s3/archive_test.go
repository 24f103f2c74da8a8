package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-listing/internal/domain/entity"
	"github.com/archon-research/stl-listing/internal/testutil"
)

var testDigest = common.HexToHash("0x6f1c4b7d0e2a9f3358a1e0c2b4d6f8091a2b3c4d5e6f708192a3b4c5d6e7f809")

type mockPutObjectAPI struct {
	putObjectFunc func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

func (m *mockPutObjectAPI) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putObjectFunc != nil {
		return m.putObjectFunc(ctx, params, optFns...)
	}
	return &s3.PutObjectOutput{}, nil
}

func newTestArchive(t *testing.T, client putObjectAPI) *ArtifactArchive {
	t.Helper()
	archive, err := newArtifactArchive(client, "listing-artifacts", testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("newArtifactArchive failed: %v", err)
	}
	return archive
}

func TestNewArtifactArchive(t *testing.T) {
	archive, err := NewArtifactArchive(aws.Config{}, "listing-artifacts", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if archive.client == nil || archive.logger == nil {
		t.Error("expected client and logger to be set")
	}
	if archive.Bucket() != "listing-artifacts" {
		t.Errorf("unexpected bucket %s", archive.Bucket())
	}

	if _, err := NewArtifactArchive(aws.Config{}, "", nil); err == nil {
		t.Error("expected error for empty bucket")
	}
}

func TestArchive_WritesDigestKeyedObject(t *testing.T) {
	var captured *s3.PutObjectInput
	var body []byte
	mock := &mockPutObjectAPI{
		putObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			captured = params
			data, err := io.ReadAll(params.Body)
			if err != nil {
				t.Fatalf("failed to read body: %v", err)
			}
			body = data
			return &s3.PutObjectOutput{}, nil
		},
	}
	archive := newTestArchive(t, mock)

	key, written, err := archive.Archive(context.Background(), testDigest, []byte(`{"version":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !written {
		t.Error("expected written=true")
	}
	if key != entity.ArtifactKey(testDigest) {
		t.Errorf("unexpected key %s", key)
	}
	if aws.ToString(captured.Bucket) != "listing-artifacts" || aws.ToString(captured.Key) != key {
		t.Errorf("unexpected target %s/%s", aws.ToString(captured.Bucket), aws.ToString(captured.Key))
	}
	if aws.ToString(captured.IfNoneMatch) != "*" {
		t.Error("expected conditional write")
	}
	if captured.ChecksumAlgorithm != types.ChecksumAlgorithmSha256 {
		t.Errorf("expected sha256 checksum, got %q", captured.ChecksumAlgorithm)
	}
	if captured.Metadata["digest"] != testDigest.Hex() {
		t.Errorf("expected digest metadata, got %v", captured.Metadata)
	}
	if !strings.Contains(aws.ToString(captured.CacheControl), "immutable") {
		t.Errorf("expected immutable cache control, got %q", aws.ToString(captured.CacheControl))
	}
	if string(body) != `{"version":1}` {
		t.Errorf("unexpected body %s", body)
	}
}

func TestArchive_AlreadyArchived(t *testing.T) {
	codes := []string{"PreconditionFailed", "412"}
	for _, code := range codes {
		t.Run(code, func(t *testing.T) {
			mock := &mockPutObjectAPI{
				putObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
					return nil, &smithy.GenericAPIError{Code: code, Message: "At least one of the pre-conditions you specified did not hold"}
				},
			}
			archive := newTestArchive(t, mock)

			key, written, err := archive.Archive(context.Background(), testDigest, []byte("x"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if written {
				t.Error("expected written=false")
			}
			if key != entity.ArtifactKey(testDigest) {
				t.Errorf("expected the existing key, got %q", key)
			}
		})
	}
}

func TestArchive_Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"transport", errors.New("access denied")},
		{"concurrent conditional write", &smithy.GenericAPIError{Code: "ConditionalRequestConflict", Message: "access denied"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockPutObjectAPI{
				putObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
					return nil, tt.err
				},
			}
			archive := newTestArchive(t, mock)

			key, _, err := archive.Archive(context.Background(), testDigest, []byte("x"))
			if err == nil {
				t.Fatal("expected error")
			}
			if key != "" {
				t.Errorf("expected no key on failure, got %q", key)
			}
			if !strings.Contains(err.Error(), "access denied") || !strings.Contains(err.Error(), testDigest.Hex()) {
				t.Errorf("expected wrapped error naming the digest, got %v", err)
			}
		})
	}
}
