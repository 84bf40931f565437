package repository

import (
	"context"
	"database/sql"
	"errors"

	"oil-forecaster/core/apperrors"
	"oil-forecaster/core/models"
)

const modelArtifactsSchema = `
	CREATE TABLE IF NOT EXISTS model_artifacts (
		id         BIGSERIAL PRIMARY KEY,
		job_id     TEXT        NOT NULL,
		version    BIGINT      NOT NULL,
		payload    JSONB       NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// ArtifactRepository handles database operations for archived models
type ArtifactRepository struct {
	db *DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// EnsureSchema creates the artifact table if it does not exist
func (r *ArtifactRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, modelArtifactsSchema)
	return err
}

// CreateArtifact stores a serialised model
func (r *ArtifactRepository) CreateArtifact(ctx context.Context, jobID string, version int64, payload []byte) error {
	query := `
		INSERT INTO model_artifacts (job_id, version, payload, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	_, err := r.db.ExecContext(ctx, query, jobID, version, string(payload))
	return err
}

// GetLatestArtifact retrieves the most recently stored model
func (r *ArtifactRepository) GetLatestArtifact(ctx context.Context) (*models.ModelArtifact, error) {
	query := `
		SELECT id, job_id, version, payload, created_at
		FROM model_artifacts
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	var artifact models.ModelArtifact
	var payload string
	err := r.db.QueryRowContext(ctx, query).Scan(
		&artifact.ID,
		&artifact.JobID,
		&artifact.Version,
		&payload,
		&artifact.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("get latest artifact", "model_artifacts")
	}
	if err != nil {
		return nil, err
	}
	artifact.Payload = []byte(payload)
	return &artifact, nil
}

// ListArtifacts lists stored models newest first, without payloads
func (r *ArtifactRepository) ListArtifacts(ctx context.Context, limit int) ([]models.ModelArtifact, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, job_id, version, created_at
		FROM model_artifacts
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []models.ModelArtifact
	for rows.Next() {
		var artifact models.ModelArtifact
		if err := rows.Scan(&artifact.ID, &artifact.JobID, &artifact.Version, &artifact.CreatedAt); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, rows.Err()
}
