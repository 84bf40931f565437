package predictor

import (
	"errors"
	"math"

	"oil-forecaster/core/apperrors"
	"oil-forecaster/core/modelstore"
)

// Predictor evaluates the currently published model
type Predictor struct {
	store *modelstore.Store
}

// NewPredictor creates a predictor reading from store
func NewPredictor(store *modelstore.Store) *Predictor {
	return &Predictor{store: store}
}

// Result is one prediction and the model version that produced it
type Result struct {
	Value        float64
	ModelVersion int64
	Missing      []string
}

// Predict builds a feature vector in the model's feature order from named
// inputs and runs it through the scaler and network. Features absent from
// inputs default to zero and are listed in Result.Missing; unknown inputs are
// ignored. Negative outputs are clamped to zero.
func (p *Predictor) Predict(inputs map[string]float64) (Result, error) {
	model, err := p.store.Current()
	if errors.Is(err, modelstore.ErrEmpty) {
		return Result{}, apperrors.New("predict", apperrors.ErrModelUnavailable, "train a model first")
	}
	if err != nil {
		return Result{}, &apperrors.Error{Op: "predict", Err: apperrors.ErrPredictionError, Detail: err.Error()}
	}

	vector := make([]float64, len(model.FeatureNames))
	var missing []string
	for i, name := range model.FeatureNames {
		v, ok := inputs[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		vector[i] = v
	}

	scaled, err := model.Scaler.TransformRow(vector)
	if err != nil {
		return Result{}, &apperrors.Error{Op: "predict", Err: apperrors.ErrPredictionError, Detail: err.Error()}
	}
	raw, err := model.Network.Predict(scaled)
	if err != nil {
		return Result{}, &apperrors.Error{Op: "predict", Err: apperrors.ErrPredictionError, Detail: err.Error()}
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return Result{}, apperrors.New("predict", apperrors.ErrPredictionError, "model produced a non-finite value")
	}

	return Result{
		Value:        math.Max(0, raw),
		ModelVersion: model.Version,
		Missing:      missing,
	}, nil
}
