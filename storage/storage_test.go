package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"oil-forecaster/core/apperrors"
	"oil-forecaster/core/models"
	"oil-forecaster/core/modelstore"
	"oil-forecaster/core/repository"
	"oil-forecaster/training/mlp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel(jobID string, version int64) *modelstore.PublishedModel {
	return &modelstore.PublishedModel{
		Version: version,
		JobID:   jobID,
		Network: &mlp.Network{
			Inputs: 2,
			Layers: []mlp.Layer{{
				Inputs:     2,
				Units:      1,
				Activation: mlp.ActivationLinear,
				Weights:    []float64{0.5, -0.25},
				Bias:       []float64{1},
			}},
		},
		Scaler:            &mlp.StandardScaler{Mean: []float64{1, 2}, Scale: []float64{3, 4}},
		FeatureNames:      []string{"P_downhole", "Q_liquid"},
		TargetName:        "debit_oil_t_per_day",
		Metrics:           models.EvaluationMetrics{R2: 0.9, MAE: 1, MSE: 2, RMSE: 1.4142},
		FeatureImportance: map[string]models.ImportanceScore{"Q_liquid": {Mean: 3, Std: 0.1}},
		TrainedAt:         time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFileArchive_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	archive := NewFileArchive(dir)
	ctx := context.Background()

	_, err := archive.Load(ctx)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	want := testModel("job-1", 3)
	require.NoError(t, archive.Save(ctx, want))
	assert.FileExists(t, archive.Path())

	got, err := archive.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, archive.Save(ctx, testModel("job-2", 4)))
	got, err = archive.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-2", got.JobID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "temp files are cleaned up")
	}
}

func TestFileArchive_ConcurrentSaves(t *testing.T) {
	archive := NewFileArchive(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, archive.Save(ctx, testModel("job", int64(i+1))))
		}(i)
	}
	wg.Wait()

	got, err := archive.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job", got.JobID)
}

func TestDecodeModel_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{"},
		{"wrong format", `{"format_version": 9, "model": {}}`},
		{"invalid model", `{"format_version": 1, "model": {"feature_names": ["a"]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeModel([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestFileDataset(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "Volve production data.csv")

	ds := NewFileDataset(path)
	assert.Equal(t, "Volve production data.csv", ds.Name())

	ok, err := ds.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = ds.Read(ctx)
	assert.ErrorIs(t, err, apperrors.ErrDatasetNotFound)

	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))
	ok, err = ds.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	data, err := ds.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	ok, err = NewFileDataset(dir).Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "directories are not datasets")
}

func TestPostgresArchive(t *testing.T) {
	url := os.Getenv("ARCHIVE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ARCHIVE_TEST_DATABASE_URL not set")
	}
	db, err := repository.NewDB(url)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	archive, err := NewPostgresArchive(ctx, db)
	require.NoError(t, err)

	require.NoError(t, archive.Save(ctx, testModel("job-a", 1)))
	require.NoError(t, archive.Save(ctx, testModel("job-b", 2)))

	got, err := archive.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-b", got.JobID)
	assert.Equal(t, int64(2), got.Version)

	history, err := archive.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "job-b", history[0].JobID)
	assert.Equal(t, "job-a", history[1].JobID)
	assert.Nil(t, history[0].Payload)
}
