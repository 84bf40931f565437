package models

import "time"

// ModelArtifact is a persisted, serialised model
type ModelArtifact struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	Version   int64     `json:"version"`
	Payload   []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
