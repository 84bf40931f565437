package handlers

import (
	"encoding/json"
	"net/http"

	"oil-forecaster/api/rest/respond"
	"oil-forecaster/core/monitoring"
	"oil-forecaster/core/predictor"
)

// PredictionHandler serves inference requests
type PredictionHandler struct {
	predictor *predictor.Predictor
	unit      string
	metrics   *monitoring.MetricsExporter
}

// NewPredictionHandler creates a new prediction handler
func NewPredictionHandler(p *predictor.Predictor, unit string, metrics *monitoring.MetricsExporter) *PredictionHandler {
	return &PredictionHandler{predictor: p, unit: unit, metrics: metrics}
}

// PredictionResponse represents a prediction
type PredictionResponse struct {
	Prediction   float64 `json:"prediction"`
	Unit         string  `json:"unit"`
	ModelVersion int64   `json:"model_version"`
}

// Predict handles POST /api/predict.
// The body is an object of named numeric features.
func (h *PredictionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var features map[string]float64
	if err := json.NewDecoder(r.Body).Decode(&features); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.predictor.Predict(features)
	h.metrics.Prediction(err)
	if err != nil {
		writeAppError(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, PredictionResponse{
		Prediction:   result.Value,
		Unit:         h.unit,
		ModelVersion: result.ModelVersion,
	})
}
