package repository

import (
	"sort"
	"sync"
	"time"

	"oil-forecaster/core/apperrors"
	"oil-forecaster/core/models"

	"github.com/google/uuid"
)

// JobRepository is the in-memory registry of training jobs.
//
// The map lock is held only for lookups and membership changes; status and
// log mutations take the per-job lock, so work on different jobs never blocks.
type JobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*jobEntry
	now  func() time.Time
}

type jobEntry struct {
	mu  sync.RWMutex
	job models.Job
	log *ProgressLog
}

// NewJobRepository creates an empty job repository
func NewJobRepository() *JobRepository {
	return &JobRepository{
		jobs: make(map[string]*jobEntry),
		now:  time.Now,
	}
}

// CreateJob registers a new job in the starting state with an empty progress log
func (r *JobRepository) CreateJob(source string) models.Job {
	now := r.now().UTC()
	entry := &jobEntry{
		job: models.Job{
			ID:        uuid.NewString(),
			Status:    models.JobStatusStarting,
			Source:    source,
			CreatedAt: now,
			UpdatedAt: now,
		},
		log: NewProgressLog(),
	}

	r.mu.Lock()
	for {
		if _, exists := r.jobs[entry.job.ID]; !exists {
			break
		}
		entry.job.ID = uuid.NewString()
	}
	r.jobs[entry.job.ID] = entry
	r.mu.Unlock()

	return entry.job
}

func (r *JobRepository) entry(op, id string) (*jobEntry, error) {
	r.mu.RLock()
	entry, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound(op, id)
	}
	return entry, nil
}

// GetJob retrieves a copy of the job by ID
func (r *JobRepository) GetJob(id string) (models.Job, error) {
	entry, err := r.entry("get job", id)
	if err != nil {
		return models.Job{}, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.job, nil
}

// GetLog returns the progress log owned by the job
func (r *JobRepository) GetLog(id string) (*ProgressLog, error) {
	entry, err := r.entry("get log", id)
	if err != nil {
		return nil, err
	}
	return entry.log, nil
}

// UpdateJobStatus moves a job to a non-terminal status.
// Terminal statuses are only reachable through AppendEvent with a terminal event,
// which keeps the status and the log's closing event in step.
func (r *JobRepository) UpdateJobStatus(id string, to models.JobStatus) error {
	entry, err := r.entry("update status", id)
	if err != nil {
		return err
	}
	if to.IsTerminal() {
		return apperrors.New("update status", apperrors.ErrInvalidTransition, "terminal status %q requires a terminal event", to)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return r.transitionLocked(entry, to, "")
}

func (r *JobRepository) transitionLocked(entry *jobEntry, to models.JobStatus, detail string) error {
	from := entry.job.Status
	if from == to {
		return nil
	}
	if !from.CanTransition(to) {
		return &apperrors.Error{
			Op:     "update status",
			ID:     entry.job.ID,
			Err:    apperrors.ErrInvalidTransition,
			Detail: string(from) + " -> " + string(to),
		}
	}

	now := r.now().UTC()
	entry.job.Status = to
	entry.job.UpdatedAt = now
	switch {
	case to == models.JobStatusTraining:
		entry.job.StartedAt = &now
	case to.IsTerminal():
		entry.job.CompletedAt = &now
		entry.job.Error = detail
	}
	return nil
}

// AppendEvent appends event to the job's log. A terminal event also moves the
// job to that status; both happen under the job lock so a job gets exactly one
// terminal event, and a second attempt fails with ErrInvalidTransition.
func (r *JobRepository) AppendEvent(id string, event models.ProgressEvent) error {
	entry, err := r.entry("append event", id)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.job.Status.IsTerminal() {
		return &apperrors.Error{
			Op:     "append event",
			ID:     id,
			Err:    apperrors.ErrInvalidTransition,
			Detail: "job already " + string(entry.job.Status),
		}
	}
	if event.IsTerminal() {
		if err := r.transitionLocked(entry, event.Status, event.Error); err != nil {
			return err
		}
	} else if entry.job.Status == models.JobStatusStarting {
		if err := r.transitionLocked(entry, models.JobStatusTraining, ""); err != nil {
			return err
		}
	}
	event.Status = entry.job.Status
	return entry.log.Append(event)
}

// ListJobs lists jobs newest first, optionally filtered by status
func (r *JobRepository) ListJobs(status *models.JobStatus, limit int) []models.Job {
	r.mu.RLock()
	entries := make([]*jobEntry, 0, len(r.jobs))
	for _, entry := range r.jobs {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	jobs := make([]models.Job, 0, len(entries))
	for _, entry := range entries {
		entry.mu.RLock()
		job := entry.job
		entry.mu.RUnlock()
		if status != nil && job.Status != *status {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}

// CountByStatus returns the number of jobs in each status
func (r *JobRepository) CountByStatus() map[models.JobStatus]int {
	counts := map[models.JobStatus]int{
		models.JobStatusStarting:  0,
		models.JobStatusTraining:  0,
		models.JobStatusCompleted: 0,
		models.JobStatusError:     0,
	}
	for _, job := range r.ListJobs(nil, 0) {
		counts[job.Status]++
	}
	return counts
}

// RetentionPolicy bounds how many finished jobs the repository keeps.
// Zero values disable the corresponding limit.
type RetentionPolicy struct {
	MaxJobs int
	TTL     time.Duration
}

// Prune evicts finished jobs that exceed the retention policy and returns how
// many were removed. Jobs that have not reached a terminal status are never evicted.
func (r *JobRepository) Prune(policy RetentionPolicy) int {
	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	type finished struct {
		id string
		at time.Time
	}
	var done []finished
	removed := 0
	for id, entry := range r.jobs {
		entry.mu.RLock()
		job := entry.job
		entry.mu.RUnlock()
		if !job.Status.IsTerminal() || job.CompletedAt == nil {
			continue
		}
		if policy.TTL > 0 && now.Sub(*job.CompletedAt) > policy.TTL {
			delete(r.jobs, id)
			removed++
			continue
		}
		done = append(done, finished{id: id, at: *job.CompletedAt})
	}

	if policy.MaxJobs > 0 && len(r.jobs) > policy.MaxJobs {
		sort.Slice(done, func(i, j int) bool { return done[i].at.Before(done[j].at) })
		for _, f := range done {
			if len(r.jobs) <= policy.MaxJobs {
				break
			}
			delete(r.jobs, f.id)
			removed++
		}
	}
	return removed
}
