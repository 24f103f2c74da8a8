package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/stl-listing/internal/domain/entity"
	"github.com/archon-research/stl-listing/internal/ports/outbound"
)

// Compile-time check that SubmissionRepository implements outbound.SubmissionRepository
var _ outbound.SubmissionRepository = (*SubmissionRepository)(nil)

const selectSubmission = `
SELECT s.digest, s.canonical, s.warnings, s.created_at,
       (SELECT array_agg(a.asset ORDER BY a.position)
          FROM listing_submission_asset a
         WHERE a.digest = s.digest)
  FROM listing_submission s`

// SubmissionRepository stores submissions in PostgreSQL. It only ever inserts.
type SubmissionRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSubmissionRepository creates a new PostgreSQL submission repository.
func NewSubmissionRepository(pool *pgxpool.Pool, logger *slog.Logger) (*SubmissionRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionRepository{
		pool:   pool,
		logger: logger.With("component", "submission-repository"),
	}, nil
}

// SaveSubmission inserts the submission and its asset index rows in one
// transaction. An existing digest is left untouched and reported as false.
func (r *SubmissionRepository) SaveSubmission(ctx context.Context, record *entity.SubmissionRecord) (bool, error) {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var inserted bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO listing_submission (digest, payload, canonical, warnings, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (digest) DO NOTHING`,
			record.Digest.Bytes(), record.Payload, record.Payload, record.Warnings, createdAt)
		if err != nil {
			return fmt.Errorf("failed to insert submission: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		inserted = true

		rows := make([][]any, len(record.Assets))
		for i, asset := range record.Assets {
			rows[i] = []any{record.Digest.Bytes(), asset.Bytes(), i}
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"listing_submission_asset"},
			[]string{"digest", "asset", "position"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("failed to insert submission assets: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if inserted {
		record.CreatedAt = createdAt
		r.logger.Debug("stored submission", "digest", record.Digest.Hex(), "assets", len(record.Assets))
	}
	return inserted, nil
}

// GetSubmission returns the submission with the given digest, or nil.
func (r *SubmissionRepository) GetSubmission(ctx context.Context, digest common.Hash) (*entity.SubmissionRecord, error) {
	row := r.pool.QueryRow(ctx, selectSubmission+` WHERE s.digest = $1`, digest.Bytes())
	record, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission %s: %w", digest.Hex(), err)
	}
	return record, nil
}

// ListSubmissionsByAsset returns every submission listing the asset, oldest first.
func (r *SubmissionRepository) ListSubmissionsByAsset(ctx context.Context, asset common.Address) ([]*entity.SubmissionRecord, error) {
	rows, err := r.pool.Query(ctx, selectSubmission+`
		WHERE EXISTS (
			SELECT 1 FROM listing_submission_asset x
			 WHERE x.digest = s.digest AND x.asset = $1)
		ORDER BY s.created_at ASC, s.digest ASC`, asset.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions for %s: %w", asset.Hex(), err)
	}
	defer rows.Close()

	var records []*entity.SubmissionRecord
	for rows.Next() {
		record, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submissions: %w", err)
	}
	return records, nil
}

func scanSubmission(row pgx.Row) (*entity.SubmissionRecord, error) {
	var (
		digest    []byte
		canonical []byte
		warnings  int
		createdAt time.Time
		assets    [][]byte
	)
	if err := row.Scan(&digest, &canonical, &warnings, &createdAt, &assets); err != nil {
		return nil, err
	}

	record := &entity.SubmissionRecord{
		Digest:    common.BytesToHash(digest),
		Payload:   canonical,
		Warnings:  warnings,
		CreatedAt: createdAt.UTC(),
		Assets:    make([]common.Address, 0, len(assets)),
	}
	for _, a := range assets {
		record.Assets = append(record.Assets, common.BytesToAddress(a))
	}
	return record, nil
}
