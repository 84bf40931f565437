package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"oil-forecaster/core/apperrors"
	"oil-forecaster/providers/aws"
)

// DatasetSource is a readable dataset, either a local file or an S3 object
type DatasetSource interface {
	Name() string
	Exists(ctx context.Context) (bool, error)
	Read(ctx context.Context) ([]byte, error)
}

// FileDataset is a dataset on local disk
type FileDataset struct {
	path string
}

// NewFileDataset creates a dataset source for path
func NewFileDataset(path string) *FileDataset {
	return &FileDataset{path: path}
}

// Name returns the file's base name
func (d *FileDataset) Name() string {
	return filepath.Base(d.path)
}

// Exists reports whether the file is present and regular
func (d *FileDataset) Exists(ctx context.Context) (bool, error) {
	info, err := os.Stat(d.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Read returns the file contents
func (d *FileDataset) Read(ctx context.Context) ([]byte, error) {
	b, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		return nil, &apperrors.Error{Op: "read dataset", ID: d.path, Err: apperrors.ErrDatasetNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", d.path, err)
	}
	return b, nil
}

// S3Dataset is a dataset stored as an S3 object
type S3Dataset struct {
	client *aws.Client
	bucket string
	key    string
}

// NewS3Dataset creates a dataset source for s3://bucket/key
func NewS3Dataset(client *aws.Client, uri string) (*S3Dataset, error) {
	bucket, key, err := aws.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("dataset uri %q has no object key", uri)
	}
	return &S3Dataset{client: client, bucket: bucket, key: key}, nil
}

// Name returns the object key's base name
func (d *S3Dataset) Name() string {
	return filepath.Base(d.key)
}

// Exists reports whether the object is present
func (d *S3Dataset) Exists(ctx context.Context) (bool, error) {
	return d.client.Exists(ctx, d.bucket, d.key)
}

// Read downloads the object
func (d *S3Dataset) Read(ctx context.Context) ([]byte, error) {
	b, err := d.client.GetObject(ctx, d.bucket, d.key)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrDatasetNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
