// Package storage persists published models and locates the default dataset.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"oil-forecaster/core/apperrors"
	"oil-forecaster/core/modelstore"

	"github.com/gofrs/flock"
)

const archiveFormatVersion = 1

// ModelArchive saves published models and loads the latest one back
type ModelArchive interface {
	Save(ctx context.Context, model *modelstore.PublishedModel) error
	// Load returns the latest archived model, or an apperrors.ErrNotFound error
	Load(ctx context.Context) (*modelstore.PublishedModel, error)
	Location() string
}

type archiveEnvelope struct {
	FormatVersion int                        `json:"format_version"`
	SavedAt       time.Time                  `json:"saved_at"`
	Model         *modelstore.PublishedModel `json:"model"`
}

// EncodeModel serialises a model for archiving
func EncodeModel(model *modelstore.PublishedModel) ([]byte, error) {
	b, err := json.MarshalIndent(archiveEnvelope{
		FormatVersion: archiveFormatVersion,
		SavedAt:       time.Now().UTC(),
		Model:         model,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal model: %w", err)
	}
	return append(b, '\n'), nil
}

// DecodeModel parses and validates an archived model
func DecodeModel(data []byte) (*modelstore.PublishedModel, error) {
	var env archiveEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse archived model: %w", err)
	}
	if env.FormatVersion != archiveFormatVersion {
		return nil, fmt.Errorf("unsupported archive format %d", env.FormatVersion)
	}
	if err := env.Model.Validate(); err != nil {
		return nil, fmt.Errorf("archived model is invalid: %w", err)
	}
	return env.Model, nil
}

// FileArchive keeps the latest model as a JSON file in a directory
type FileArchive struct {
	dir string
}

// NewFileArchive creates an archive rooted at dir
func NewFileArchive(dir string) *FileArchive {
	return &FileArchive{dir: dir}
}

// Location returns the archive directory
func (a *FileArchive) Location() string {
	return a.dir
}

// Path returns the model file path
func (a *FileArchive) Path() string {
	return filepath.Join(a.dir, "model.json")
}

// Save writes the model atomically: a temp file renamed over model.json while
// holding an exclusive lock, so concurrent saves never interleave.
func (a *FileArchive) Save(ctx context.Context, model *modelstore.PublishedModel) error {
	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	b, err := EncodeModel(model)
	if err != nil {
		return err
	}

	lock := flock.New(filepath.Join(a.dir, "model.lock"))
	ok, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquire archive lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("archive %s is locked", a.dir)
	}
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(a.dir, "model.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp model file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp model file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp model file: %w", err)
	}
	if err := os.Rename(tmpName, a.Path()); err != nil {
		return fmt.Errorf("rename model file: %w", err)
	}
	return nil
}

// Load reads model.json
func (a *FileArchive) Load(ctx context.Context) (*modelstore.PublishedModel, error) {
	b, err := os.ReadFile(a.Path())
	if os.IsNotExist(err) {
		return nil, apperrors.NotFound("load model", a.Path())
	}
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	return DecodeModel(b)
}
