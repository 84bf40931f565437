package routes

import (
	"net/http"
	"time"

	"oil-forecaster/api/rest/handlers"
	"oil-forecaster/api/rest/middleware"
	"oil-forecaster/core/executor"
	"oil-forecaster/core/modelstore"
	"oil-forecaster/core/monitoring"
	"oil-forecaster/core/predictor"
	"oil-forecaster/core/repository"
	"oil-forecaster/core/stream"
	"oil-forecaster/storage"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Dependencies are the components the HTTP API is built on
type Dependencies struct {
	Orchestrator   *executor.Orchestrator
	JobRepo        *repository.JobRepository
	Streams        *stream.Server
	Store          *modelstore.Store
	Predictor      *predictor.Predictor
	DefaultDataset storage.DatasetSource
	Metrics        *monitoring.MetricsExporter
	Monitor        *monitoring.JobMonitor
	Logger         *zap.Logger

	PredictionUnit   string
	PredictRateLimit float64
	CORSOrigins      []string
	FlushDelay       time.Duration
	HiddenLayers     []int
}

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	trainingHandler := handlers.NewTrainingHandler(deps.Orchestrator, deps.JobRepo, deps.Streams, deps.Monitor, deps.FlushDelay, logger)
	predictionHandler := handlers.NewPredictionHandler(deps.Predictor, deps.PredictionUnit, deps.Metrics)
	modelHandler := handlers.NewModelHandler(deps.Store, deps.HiddenLayers)
	datasetHandler := handlers.NewDatasetHandler(deps.DefaultDataset)
	dashboardHandler := handlers.NewDashboardHandler(deps.JobRepo, deps.Store, deps.Metrics)

	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(deps.CORSOrigins))

	api := r.PathPrefix("/api").Subrouter()

	// Training endpoints
	api.HandleFunc("/train", trainingHandler.SubmitTraining).Methods("POST", "OPTIONS")
	api.HandleFunc("/training/progress", trainingHandler.StreamProgress).Methods("GET")
	api.HandleFunc("/training", trainingHandler.ListJobs).Methods("GET")
	api.HandleFunc("/training/{id}", trainingHandler.GetJob).Methods("GET")
	api.HandleFunc("/training/{id}/progress", trainingHandler.StreamProgress).Methods("GET")
	api.HandleFunc("/training/{id}/events", trainingHandler.PollEvents).Methods("GET")

	// Model endpoints
	limit := middleware.RateLimit(deps.PredictRateLimit, 0)
	api.Handle("/predict", limit(http.HandlerFunc(predictionHandler.Predict))).Methods("POST", "OPTIONS")
	api.HandleFunc("/model/info", modelHandler.GetModelInfo).Methods("GET")
	api.HandleFunc("/model/feature-importance", modelHandler.GetFeatureImportance).Methods("GET")

	// Data and dashboard endpoints
	api.HandleFunc("/default-dataset", datasetHandler.GetDefaultDataset).Methods("GET")
	api.HandleFunc("/dashboard", dashboardHandler.GetSummary).Methods("GET")

	r.HandleFunc("/metrics", dashboardHandler.GetMetrics).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
}
