package monitoring

import (
	"context"
	"time"

	"oil-forecaster/core/models"
	"oil-forecaster/core/repository"

	"go.uber.org/zap"
)

// JobMonitor periodically evicts finished jobs under the retention policy
type JobMonitor struct {
	jobRepo  *repository.JobRepository
	policy   repository.RetentionPolicy
	interval time.Duration
	metrics  *MetricsExporter
	logger   *zap.Logger
}

// NewJobMonitor creates a new job monitor
func NewJobMonitor(
	jobRepo *repository.JobRepository,
	policy repository.RetentionPolicy,
	interval time.Duration,
	metrics *MetricsExporter,
	logger *zap.Logger,
) *JobMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobMonitor{
		jobRepo:  jobRepo,
		policy:   policy,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
	}
}

// Start runs the sweep loop until ctx is cancelled
func (jm *JobMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(jm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jm.Sweep()
		}
	}
}

// Sweep prunes once and returns the number of jobs removed
func (jm *JobMonitor) Sweep() int {
	if jm.policy.MaxJobs <= 0 && jm.policy.TTL <= 0 {
		return 0
	}
	removed := jm.jobRepo.Prune(jm.policy)
	if removed > 0 {
		jm.metrics.JobsPruned(removed)
		jm.logger.Info("pruned finished jobs",
			zap.Int("removed", removed),
			zap.Int("max_jobs", jm.policy.MaxJobs),
			zap.Duration("ttl", jm.policy.TTL),
		)
	}
	return removed
}

// GetJobMetrics returns progress metrics for a job
func (jm *JobMonitor) GetJobMetrics(jobID string) (*JobMetrics, error) {
	job, err := jm.jobRepo.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	log, err := jm.jobRepo.GetLog(jobID)
	if err != nil {
		return nil, err
	}

	metrics := &JobMetrics{
		JobID:     jobID,
		Status:    job.Status,
		Events:    log.Len(),
		StartTime: job.StartedAt,
	}
	if last, ok := log.Last(); ok {
		metrics.LastEpoch = last.Iteration
		metrics.LastLoss = last.Loss
		metrics.LastValLoss = last.ValLoss
	}
	if job.StartedAt != nil {
		end := time.Now()
		if job.CompletedAt != nil {
			end = *job.CompletedAt
		}
		metrics.ElapsedTime = end.Sub(*job.StartedAt)
	}
	return metrics, nil
}

// JobMetrics represents job monitoring metrics
type JobMetrics struct {
	JobID       string           `json:"job_id"`
	Status      models.JobStatus `json:"status"`
	Events      int              `json:"events"`
	LastEpoch   int              `json:"last_epoch"`
	LastLoss    float64          `json:"last_loss"`
	LastValLoss float64          `json:"last_val_loss"`
	StartTime   *time.Time       `json:"start_time,omitempty"`
	ElapsedTime time.Duration    `json:"elapsed_ns"`
}
