package handlers

import (
	"net/http"
	"time"

	"oil-forecaster/api/rest/respond"
	"oil-forecaster/core/models"
	"oil-forecaster/core/modelstore"
	"oil-forecaster/training/mlp"
	"oil-forecaster/training/pipeline"
)

// ModelHandler describes the published model
type ModelHandler struct {
	store        *modelstore.Store
	hiddenLayers []int
}

// NewModelHandler creates a new model handler. hiddenLayers describes the
// architecture reported before any model exists.
func NewModelHandler(store *modelstore.Store, hiddenLayers []int) *ModelHandler {
	return &ModelHandler{store: store, hiddenLayers: hiddenLayers}
}

// ModelInfoResponse represents the model info
type ModelInfoResponse struct {
	FeatureNames []string                  `json:"feature_names"`
	TargetName   string                    `json:"target_name"`
	Architecture map[string]interface{}    `json:"architecture"`
	Metrics      *models.EvaluationMetrics `json:"metrics"`
	ModelExists  bool                      `json:"model_exists"`
	Version      int64                     `json:"version,omitempty"`
	JobID        string                    `json:"job_id,omitempty"`
	TrainedAt    *time.Time                `json:"trained_at,omitempty"`
}

// GetModelInfo handles GET /api/model/info. It never fails: without a model
// it reports the default features and architecture with model_exists false.
func (h *ModelHandler) GetModelInfo(w http.ResponseWriter, r *http.Request) {
	model, err := h.store.Current()
	if err != nil {
		respond.JSON(w, http.StatusOK, ModelInfoResponse{
			FeatureNames: pipeline.FeatureNames,
			TargetName:   pipeline.TargetName,
			Architecture: map[string]interface{}{"layers": mlp.DefaultArchitecture(h.hiddenLayers)},
			ModelExists:  false,
		})
		return
	}

	metrics := model.Metrics
	trainedAt := model.TrainedAt
	respond.JSON(w, http.StatusOK, ModelInfoResponse{
		FeatureNames: model.FeatureNames,
		TargetName:   model.TargetName,
		Architecture: map[string]interface{}{"layers": model.Network.Architecture()},
		Metrics:      &metrics,
		ModelExists:  true,
		Version:      model.Version,
		JobID:        model.JobID,
		TrainedAt:    &trainedAt,
	})
}

// GetFeatureImportance handles GET /api/model/feature-importance
func (h *ModelHandler) GetFeatureImportance(w http.ResponseWriter, r *http.Request) {
	model, err := h.store.Current()
	if err != nil {
		respond.Error(w, http.StatusNotFound, "NOT_FOUND", "Model not found. Please train the model first.")
		return
	}
	if !model.HasImportance() {
		respond.Error(w, http.StatusNotFound, "NOT_FOUND", "Feature importance not available. Please retrain the model.")
		return
	}
	respond.JSON(w, http.StatusOK, model.FeatureImportance)
}
