package storage

import (
	"context"
	"strings"

	"oil-forecaster/core/modelstore"
	"oil-forecaster/providers/aws"
)

// S3Archive keeps the latest model as a single S3 object
type S3Archive struct {
	client *aws.Client
	bucket string
	key    string
}

// NewS3Archive creates an archive for s3://bucket/prefix; the model is stored at prefix/model.json
func NewS3Archive(client *aws.Client, uri string) (*S3Archive, error) {
	bucket, prefix, err := aws.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	key := "model.json"
	if prefix = strings.TrimSuffix(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return &S3Archive{client: client, bucket: bucket, key: key}, nil
}

// Location returns the object URI
func (a *S3Archive) Location() string {
	return "s3://" + a.bucket + "/" + a.key
}

// Save uploads the model
func (a *S3Archive) Save(ctx context.Context, model *modelstore.PublishedModel) error {
	b, err := EncodeModel(model)
	if err != nil {
		return err
	}
	return a.client.PutObject(ctx, a.bucket, a.key, b, "application/json")
}

// Load downloads and decodes the model
func (a *S3Archive) Load(ctx context.Context) (*modelstore.PublishedModel, error) {
	b, err := a.client.GetObject(ctx, a.bucket, a.key)
	if err != nil {
		return nil, err
	}
	return DecodeModel(b)
}
