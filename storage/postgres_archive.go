package storage

import (
	"context"
	"fmt"

	"oil-forecaster/core/models"
	"oil-forecaster/core/modelstore"
	"oil-forecaster/core/repository"
)

// PostgresArchive keeps every published model in the model_artifacts table
type PostgresArchive struct {
	repo *repository.ArtifactRepository
}

// NewPostgresArchive creates the archive and ensures its table exists
func NewPostgresArchive(ctx context.Context, db *repository.DB) (*PostgresArchive, error) {
	repo := repository.NewArtifactRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("create model_artifacts table: %w", err)
	}
	return &PostgresArchive{repo: repo}, nil
}

// Location describes the archive
func (a *PostgresArchive) Location() string {
	return "postgres:model_artifacts"
}

// Save inserts the model as a new artifact row
func (a *PostgresArchive) Save(ctx context.Context, model *modelstore.PublishedModel) error {
	b, err := EncodeModel(model)
	if err != nil {
		return err
	}
	if err := a.repo.CreateArtifact(ctx, model.JobID, model.Version, b); err != nil {
		return fmt.Errorf("insert model artifact: %w", err)
	}
	return nil
}

// Load decodes the newest artifact
func (a *PostgresArchive) Load(ctx context.Context) (*modelstore.PublishedModel, error) {
	artifact, err := a.repo.GetLatestArtifact(ctx)
	if err != nil {
		return nil, err
	}
	return DecodeModel(artifact.Payload)
}

// History lists the newest archived versions without decoding them
func (a *PostgresArchive) History(ctx context.Context, limit int) ([]models.ModelArtifact, error) {
	artifacts, err := a.repo.ListArtifacts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list model artifacts: %w", err)
	}
	return artifacts, nil
}
