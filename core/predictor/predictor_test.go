package predictor

import (
	"math"
	"testing"

	"oil-forecaster/core/apperrors"
	"oil-forecaster/core/modelstore"
	"oil-forecaster/training/mlp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sumModel predicts a + 2b - 1 after scaling by (x - 1) / 2
func sumModel() *modelstore.PublishedModel {
	return &modelstore.PublishedModel{
		JobID: "job",
		Network: &mlp.Network{
			Inputs: 2,
			Layers: []mlp.Layer{{
				Inputs:     2,
				Units:      1,
				Activation: mlp.ActivationLinear,
				Weights:    []float64{1, 2},
				Bias:       []float64{-1},
			}},
		},
		Scaler:       &mlp.StandardScaler{Mean: []float64{1, 1}, Scale: []float64{2, 2}},
		FeatureNames: []string{"a", "b"},
		TargetName:   "y",
	}
}

func TestPredict_NoModel(t *testing.T) {
	p := NewPredictor(modelstore.NewStore())

	_, err := p.Predict(map[string]float64{"a": 1})
	assert.ErrorIs(t, err, apperrors.ErrModelUnavailable)
}

func TestPredict(t *testing.T) {
	store := modelstore.NewStore()
	require.NoError(t, store.Publish(sumModel()))
	p := NewPredictor(store)

	tests := []struct {
		name    string
		inputs  map[string]float64
		want    float64
		missing []string
	}{
		{"all features", map[string]float64{"a": 5, "b": 9}, 2 + 8 - 1, nil},
		{"unknown inputs ignored", map[string]float64{"a": 5, "b": 9, "extra": 100}, 9, nil},
		{"missing feature defaults to zero", map[string]float64{"a": 7}, 3 - 1 - 1, []string{"b"}},
		{"negative output clamped", map[string]float64{"a": -9, "b": -9}, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Predict(tt.inputs)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, res.Value, 1e-9)
			assert.Equal(t, tt.missing, res.Missing)
			assert.Equal(t, int64(1), res.ModelVersion)
		})
	}
}

func TestPredict_NonFiniteOutput(t *testing.T) {
	model := sumModel()
	model.Network.Layers[0].Bias = []float64{math.Inf(1)}
	store := modelstore.NewStore()
	require.NoError(t, store.Publish(model))

	_, err := NewPredictor(store).Predict(map[string]float64{"a": 1, "b": 1})
	assert.ErrorIs(t, err, apperrors.ErrPredictionError)
}

func TestPredict_UsesLatestModel(t *testing.T) {
	store := modelstore.NewStore()
	require.NoError(t, store.Publish(sumModel()))
	p := NewPredictor(store)

	next := sumModel()
	next.Network.Layers[0].Bias = []float64{100}
	require.NoError(t, store.Publish(next))

	res, err := p.Predict(map[string]float64{"a": 1, "b": 1})
	require.NoError(t, err)
	assert.InDelta(t, 100, res.Value, 1e-9)
	assert.Equal(t, int64(2), res.ModelVersion)
}
