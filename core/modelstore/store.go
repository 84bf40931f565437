// Package modelstore holds the model currently used for inference.
package modelstore

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"oil-forecaster/core/models"
	"oil-forecaster/training/mlp"
)

// ErrEmpty is returned by Current before any model has been published
var ErrEmpty = errors.New("no model published")

// PublishedModel is one training run's fitted network, scaler and metadata.
// It is never modified after Publish; a new run publishes a new value.
type PublishedModel struct {
	Version           int64                             `json:"version"`
	JobID             string                            `json:"job_id"`
	Network           *mlp.Network                      `json:"network"`
	Scaler            *mlp.StandardScaler               `json:"scaler"`
	FeatureNames      []string                          `json:"feature_names"`
	TargetName        string                            `json:"target_name"`
	Metrics           models.EvaluationMetrics          `json:"metrics"`
	FeatureImportance map[string]models.ImportanceScore `json:"feature_importance,omitempty"`
	TrainedAt         time.Time                         `json:"trained_at"`
}

// Validate checks the network, scaler and feature names agree on dimensions
func (m *PublishedModel) Validate() error {
	if m == nil {
		return fmt.Errorf("model is nil")
	}
	if err := m.Network.Validate(); err != nil {
		return err
	}
	if m.Scaler == nil || len(m.Scaler.Mean) != len(m.Scaler.Scale) {
		return fmt.Errorf("scaler is missing or inconsistent")
	}
	if m.Scaler.Dims() != m.Network.Inputs || len(m.FeatureNames) != m.Network.Inputs {
		return fmt.Errorf("feature count mismatch: %d names, scaler %d, network %d",
			len(m.FeatureNames), m.Scaler.Dims(), m.Network.Inputs)
	}
	return nil
}

// HasImportance reports whether the run computed feature importance
func (m *PublishedModel) HasImportance() bool {
	return len(m.FeatureImportance) > 0
}

// Store publishes models with a single atomic pointer swap so readers always
// see a complete tuple without taking a lock.
type Store struct {
	current atomic.Pointer[PublishedModel]
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// Publish validates m, stamps it with the next version and makes it current.
// A non-zero m.Version is kept when it is ahead of the current version.
// The caller must not modify m afterwards.
func (s *Store) Publish(m *PublishedModel) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("publish model: %w", err)
	}
	requested := m.Version
	for {
		old := s.current.Load()
		var cur int64
		if old != nil {
			cur = old.Version
		}
		m.Version = max(cur+1, requested)
		if s.current.CompareAndSwap(old, m) {
			return nil
		}
	}
}

// Current returns the published model or ErrEmpty
func (s *Store) Current() (*PublishedModel, error) {
	m := s.current.Load()
	if m == nil {
		return nil, ErrEmpty
	}
	return m, nil
}

// Version returns the version of the current model, 0 when empty
func (s *Store) Version() int64 {
	if m := s.current.Load(); m != nil {
		return m.Version
	}
	return 0
}
