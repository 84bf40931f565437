package models

import "time"

// Job represents one training run submitted to the service
type Job struct {
	ID          string
	Status      JobStatus
	Error       string // Set only when Status is JobStatusError
	Source      string // Upload file name or default dataset reference
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusStarting  JobStatus = "starting"
	JobStatusTraining  JobStatus = "training"
	JobStatusCompleted JobStatus = "completed"
	JobStatusError     JobStatus = "error"
)

// IsTerminal reports whether no further transitions are allowed from s
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// Valid reports whether s is one of the known statuses
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusStarting, JobStatusTraining, JobStatusCompleted, JobStatusError:
		return true
	}
	return false
}

// CanTransition reports whether a job in status s may move to next
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.IsTerminal() || !next.Valid() {
		return false
	}
	switch s {
	case JobStatusStarting:
		return next != JobStatusStarting
	case JobStatusTraining:
		return next != JobStatusStarting
	}
	return false
}
