package main

import (
	"context"
	"errors"
	"fmt"

	"oil-forecaster/config"
	"oil-forecaster/core/apperrors"
	"oil-forecaster/core/modelstore"
	"oil-forecaster/core/repository"
	"oil-forecaster/providers/aws"
	"oil-forecaster/storage"

	"go.uber.org/zap"
)

// components are the persistence collaborators every subcommand shares
type components struct {
	dataset storage.DatasetSource
	archive storage.ModelArchive
	closers []func() error
}

func buildComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	c := &components{}

	var s3Client *aws.Client
	s3 := func() (*aws.Client, error) {
		if s3Client != nil {
			return s3Client, nil
		}
		client, err := aws.NewClient(ctx, aws.ClientConfig{
			Region:         cfg.AWSRegion,
			Endpoint:       cfg.S3Endpoint,
			ForcePathStyle: cfg.S3ForcePathStyle,
		})
		if err != nil {
			return nil, err
		}
		s3Client = client
		return client, nil
	}

	switch {
	case cfg.DefaultDataset == "":
	case aws.IsURI(cfg.DefaultDataset):
		client, err := s3()
		if err != nil {
			return nil, err
		}
		dataset, err := storage.NewS3Dataset(client, cfg.DefaultDataset)
		if err != nil {
			return nil, err
		}
		c.dataset = dataset
	default:
		c.dataset = storage.NewFileDataset(cfg.DefaultDataset)
	}

	switch {
	case cfg.DatabaseURL != "":
		db, err := repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, db.Close)
		archive, err := storage.NewPostgresArchive(ctx, db)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.archive = archive
	case aws.IsURI(cfg.ModelArchiveDir):
		client, err := s3()
		if err != nil {
			return nil, err
		}
		archive, err := storage.NewS3Archive(client, cfg.ModelArchiveDir)
		if err != nil {
			return nil, err
		}
		c.archive = archive
	default:
		c.archive = storage.NewFileArchive(cfg.ModelArchiveDir)
	}

	logger.Debug("persistence configured",
		zap.Bool("default_dataset", c.dataset != nil),
		zap.String("archive", c.archive.Location()),
	)
	return c, nil
}

// restoreModel publishes the archived model into store. A missing archive
// leaves the store empty and is not an error.
func (c *components) restoreModel(ctx context.Context, store *modelstore.Store) (bool, error) {
	model, err := c.archive.Load(ctx)
	if errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load archived model: %w", err)
	}
	if err := store.Publish(model); err != nil {
		return false, fmt.Errorf("restore archived model: %w", err)
	}
	return true, nil
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
	c.closers = nil
}
