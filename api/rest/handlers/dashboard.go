package handlers

import (
	"net/http"

	"oil-forecaster/api/rest/respond"
	"oil-forecaster/core/modelstore"
	"oil-forecaster/core/monitoring"
	"oil-forecaster/core/repository"
)

// DashboardHandler handles dashboard API requests
type DashboardHandler struct {
	jobRepo *repository.JobRepository
	store   *modelstore.Store
	metrics *monitoring.MetricsExporter
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(
	jobRepo *repository.JobRepository,
	store *modelstore.Store,
	metrics *monitoring.MetricsExporter,
) *DashboardHandler {
	return &DashboardHandler{
		jobRepo: jobRepo,
		store:   store,
		metrics: metrics,
	}
}

// GetSummary handles GET /api/dashboard
func (h *DashboardHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	counts := h.jobRepo.CountByStatus()
	total := 0
	for _, n := range counts {
		total += n
	}

	recent := h.jobRepo.ListJobs(nil, 5)
	recentItems := make([]map[string]interface{}, len(recent))
	for i, job := range recent {
		recentItems[i] = map[string]interface{}{
			"id":         job.ID,
			"status":     job.Status,
			"source":     job.Source,
			"created_at": job.CreatedAt,
		}
	}

	model := map[string]interface{}{"exists": false}
	if current, err := h.store.Current(); err == nil {
		model = map[string]interface{}{
			"exists":     true,
			"version":    current.Version,
			"job_id":     current.JobID,
			"trained_at": current.TrainedAt,
			"metrics":    current.Metrics,
		}
	}

	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"jobs": map[string]interface{}{
			"total":     total,
			"by_status": counts,
			"recent":    recentItems,
		},
		"model":    model,
		"counters": h.metrics.Snapshot(),
	})
}

// GetMetrics handles GET /metrics in Prometheus text format
func (h *DashboardHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.metrics.GetPrometheusMetrics()))
}
