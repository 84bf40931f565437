package monitoring

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"oil-forecaster/core/models"
	"oil-forecaster/core/modelstore"
	"oil-forecaster/core/repository"
)

// MetricsExporter counts service activity and renders it for Prometheus.
// All recording methods are safe on a nil receiver so components can run without metrics.
type MetricsExporter struct {
	jobRepo *repository.JobRepository
	store   *modelstore.Store

	jobsSubmitted    atomic.Int64
	jobsCompleted    atomic.Int64
	jobsFailed       atomic.Int64
	jobsPruned       atomic.Int64
	eventsDelivered  atomic.Int64
	streamsActive    atomic.Int64
	streamTimeouts   atomic.Int64
	predictions      atomic.Int64
	predictionErrors atomic.Int64
	modelsPublished  atomic.Int64
	archiveFailures  atomic.Int64
}

// NewMetricsExporter creates a new metrics exporter
func NewMetricsExporter(jobRepo *repository.JobRepository, store *modelstore.Store) *MetricsExporter {
	return &MetricsExporter{
		jobRepo: jobRepo,
		store:   store,
	}
}

// JobSubmitted records an accepted training submission
func (me *MetricsExporter) JobSubmitted() {
	if me != nil {
		me.jobsSubmitted.Add(1)
	}
}

// JobFinished records a job reaching a terminal status
func (me *MetricsExporter) JobFinished(status models.JobStatus) {
	if me == nil {
		return
	}
	if status == models.JobStatusCompleted {
		me.jobsCompleted.Add(1)
	} else {
		me.jobsFailed.Add(1)
	}
}

// JobsPruned records jobs evicted by retention
func (me *MetricsExporter) JobsPruned(n int) {
	if me != nil {
		me.jobsPruned.Add(int64(n))
	}
}

// ModelPublished records a model swap
func (me *MetricsExporter) ModelPublished() {
	if me != nil {
		me.modelsPublished.Add(1)
	}
}

// ArchiveFailed records a model that could not be persisted
func (me *MetricsExporter) ArchiveFailed() {
	if me != nil {
		me.archiveFailures.Add(1)
	}
}

// StreamOpened records a new progress subscriber
func (me *MetricsExporter) StreamOpened() {
	if me != nil {
		me.streamsActive.Add(1)
	}
}

// StreamClosed records a subscriber going away
func (me *MetricsExporter) StreamClosed() {
	if me != nil {
		me.streamsActive.Add(-1)
	}
}

// StreamTimedOut records a subscriber that gave up waiting for the first event
func (me *MetricsExporter) StreamTimedOut() {
	if me != nil {
		me.streamTimeouts.Add(1)
	}
}

// EventDelivered records one progress event handed to a subscriber
func (me *MetricsExporter) EventDelivered() {
	if me != nil {
		me.eventsDelivered.Add(1)
	}
}

// Prediction records a predict call and whether it failed
func (me *MetricsExporter) Prediction(err error) {
	if me == nil {
		return
	}
	me.predictions.Add(1)
	if err != nil {
		me.predictionErrors.Add(1)
	}
}

// Snapshot is a point-in-time copy of the counters
type Snapshot struct {
	JobsSubmitted    int64 `json:"jobs_submitted"`
	JobsCompleted    int64 `json:"jobs_completed"`
	JobsFailed       int64 `json:"jobs_failed"`
	JobsPruned       int64 `json:"jobs_pruned"`
	EventsDelivered  int64 `json:"events_delivered"`
	StreamsActive    int64 `json:"streams_active"`
	StreamTimeouts   int64 `json:"stream_timeouts"`
	Predictions      int64 `json:"predictions"`
	PredictionErrors int64 `json:"prediction_errors"`
	ModelsPublished  int64 `json:"models_published"`
	ArchiveFailures  int64 `json:"archive_failures"`
}

// Snapshot returns the current counter values
func (me *MetricsExporter) Snapshot() Snapshot {
	if me == nil {
		return Snapshot{}
	}
	return Snapshot{
		JobsSubmitted:    me.jobsSubmitted.Load(),
		JobsCompleted:    me.jobsCompleted.Load(),
		JobsFailed:       me.jobsFailed.Load(),
		JobsPruned:       me.jobsPruned.Load(),
		EventsDelivered:  me.eventsDelivered.Load(),
		StreamsActive:    me.streamsActive.Load(),
		StreamTimeouts:   me.streamTimeouts.Load(),
		Predictions:      me.predictions.Load(),
		PredictionErrors: me.predictionErrors.Load(),
		ModelsPublished:  me.modelsPublished.Load(),
		ArchiveFailures:  me.archiveFailures.Load(),
	}
}

// GetPrometheusMetrics returns metrics in Prometheus text format
func (me *MetricsExporter) GetPrometheusMetrics() string {
	var b strings.Builder
	s := me.Snapshot()

	counter := func(name, help string, v int64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", name, help, name, name, v)
	}

	counter("forecaster_jobs_submitted_total", "Training jobs accepted", s.JobsSubmitted)
	counter("forecaster_jobs_completed_total", "Training jobs that completed", s.JobsCompleted)
	counter("forecaster_jobs_failed_total", "Training jobs that ended in error", s.JobsFailed)
	counter("forecaster_jobs_pruned_total", "Finished jobs evicted by retention", s.JobsPruned)
	counter("forecaster_progress_events_delivered_total", "Progress events delivered to subscribers", s.EventsDelivered)
	gauge("forecaster_progress_streams_active", "Open progress subscriptions", s.StreamsActive)
	counter("forecaster_progress_stream_timeouts_total", "Subscriptions that timed out waiting for a first event", s.StreamTimeouts)
	counter("forecaster_predictions_total", "Predict calls", s.Predictions)
	counter("forecaster_prediction_errors_total", "Predict calls that failed", s.PredictionErrors)
	counter("forecaster_models_published_total", "Models published to the store", s.ModelsPublished)
	counter("forecaster_model_archive_failures_total", "Published models that could not be archived", s.ArchiveFailures)

	if me == nil {
		return b.String()
	}

	if me.jobRepo != nil {
		counts := me.jobRepo.CountByStatus()
		statuses := make([]string, 0, len(counts))
		for status := range counts {
			statuses = append(statuses, string(status))
		}
		sort.Strings(statuses)

		b.WriteString("# HELP forecaster_jobs Jobs currently held, by status\n")
		b.WriteString("# TYPE forecaster_jobs gauge\n")
		for _, status := range statuses {
			fmt.Fprintf(&b, "forecaster_jobs{status=\"%s\"} %d\n", status, counts[models.JobStatus(status)])
		}
	}

	if me.store != nil {
		gauge("forecaster_model_version", "Version of the published model, 0 when none", me.store.Version())
		if model, err := me.store.Current(); err == nil {
			b.WriteString("# HELP forecaster_model_r2 Held-out R2 of the published model\n")
			b.WriteString("# TYPE forecaster_model_r2 gauge\n")
			fmt.Fprintf(&b, "forecaster_model_r2 %.6f\n", model.Metrics.R2)
			b.WriteString("# HELP forecaster_model_rmse Held-out RMSE of the published model\n")
			b.WriteString("# TYPE forecaster_model_rmse gauge\n")
			fmt.Fprintf(&b, "forecaster_model_rmse %.6f\n", model.Metrics.RMSE)
		}
	}

	return b.String()
}
