package spec

import (
	"os"
	"path/filepath"
	"testing"

	"oil-forecaster/training/mlp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTrainingSpec(t *testing.T) {
	spec := DefaultTrainingSpec()
	require.NoError(t, spec.Validate())

	params := spec.TrainerParams()
	def := mlp.DefaultParams()
	assert.Equal(t, def.Epochs, params.Epochs)
	assert.Equal(t, def.HiddenLayers, params.HiddenLayers)
	assert.Equal(t, def.Seed, spec.Seed())
	assert.Equal(t, 0.2, spec.Training.Data.TestFraction)
	assert.True(t, spec.CorrelationEnabled())
	assert.True(t, spec.ImportanceEnabled())
}

func TestParseTrainingSpec(t *testing.T) {
	spec, err := ParseTrainingSpec(`
training:
  model:
    hidden_layers: [16, 8]
    epochs: 25
    learning_rate: 0.005
  data:
    test_fraction: 0.25
    seed: 0
  analysis:
    correlation: false
    importance:
      enabled: false
`)
	require.NoError(t, err)

	params := spec.TrainerParams()
	assert.Equal(t, []int{16, 8}, params.HiddenLayers)
	assert.Equal(t, 25, params.Epochs)
	assert.Equal(t, 0.005, params.LearningRate)
	assert.Equal(t, mlp.DefaultParams().BatchSize, params.BatchSize)
	assert.Equal(t, uint64(0), spec.Seed(), "explicit zero seed is kept")
	assert.Equal(t, 0.25, spec.Training.Data.TestFraction)
	assert.False(t, spec.CorrelationEnabled())
	assert.False(t, spec.ImportanceEnabled())
}

func TestParseTrainingSpec_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "training: [unclosed"},
		{"negative epochs", "training:\n  model:\n    epochs: -1\n"},
		{"zero-unit layer", "training:\n  model:\n    hidden_layers: [8, 0]\n"},
		{"test fraction too large", "training:\n  data:\n    test_fraction: 1.5\n"},
		{"negative repeats", "training:\n  analysis:\n    importance:\n      repeats: -2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTrainingSpec(tt.yaml)
			assert.Error(t, err)
		})
	}
}

func TestLoadTrainingSpec(t *testing.T) {
	spec, err := LoadTrainingSpec("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTrainingSpec(), spec)

	path := filepath.Join(t.TempDir(), "training.yaml")
	require.NoError(t, os.WriteFile(path, []byte("training:\n  model:\n    epochs: 3\n"), 0o644))
	spec, err = LoadTrainingSpec(path)
	require.NoError(t, err)
	assert.Equal(t, 3, spec.Training.Model.Epochs)

	_, err = LoadTrainingSpec(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
