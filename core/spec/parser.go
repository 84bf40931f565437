package spec

import (
	"fmt"
	"os"

	"oil-forecaster/training/mlp"

	"gopkg.in/yaml.v3"
)

// TrainingSpec represents the YAML training specification
type TrainingSpec struct {
	Training TrainingSpecSection `yaml:"training"`
}

// TrainingSpecSection represents the training section of a training spec
type TrainingSpecSection struct {
	Model    TrainingSpecModel    `yaml:"model"`
	Data     TrainingSpecData     `yaml:"data"`
	Analysis TrainingSpecAnalysis `yaml:"analysis"`
}

// TrainingSpecModel represents network and optimiser settings
type TrainingSpecModel struct {
	HiddenLayers []int   `yaml:"hidden_layers"`
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"learning_rate"`
	Patience     int     `yaml:"patience"`
}

// TrainingSpecData represents how rows are partitioned
type TrainingSpecData struct {
	TestFraction       float64 `yaml:"test_fraction"`
	ValidationFraction float64 `yaml:"validation_fraction"`
	Seed               *uint64 `yaml:"seed,omitempty"`
}

// TrainingSpecAnalysis represents the optional post-training analyses
type TrainingSpecAnalysis struct {
	Correlation *bool                  `yaml:"correlation,omitempty"`
	Importance  TrainingSpecImportance `yaml:"importance"`
}

// TrainingSpecImportance configures permutation importance
type TrainingSpecImportance struct {
	Enabled *bool `yaml:"enabled,omitempty"`
	Repeats int   `yaml:"repeats"`
}

// DefaultTrainingSpec returns the training spec used when none is configured
func DefaultTrainingSpec() *TrainingSpec {
	spec := &TrainingSpec{}
	spec.applyDefaults()
	return spec
}

// ParseTrainingSpec parses a YAML training specification, filling defaults for omitted fields
func ParseTrainingSpec(specYAML string) (*TrainingSpec, error) {
	var spec TrainingSpec
	if err := yaml.Unmarshal([]byte(specYAML), &spec); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	spec.applyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// LoadTrainingSpec reads and parses a training spec file.
// An empty path yields the defaults.
func LoadTrainingSpec(path string) (*TrainingSpec, error) {
	if path == "" {
		return DefaultTrainingSpec(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read training spec: %w", err)
	}
	return ParseTrainingSpec(string(data))
}

func (s *TrainingSpec) applyDefaults() {
	def := mlp.DefaultParams()
	m := &s.Training.Model
	if len(m.HiddenLayers) == 0 {
		m.HiddenLayers = def.HiddenLayers
	}
	if m.Epochs == 0 {
		m.Epochs = def.Epochs
	}
	if m.BatchSize == 0 {
		m.BatchSize = def.BatchSize
	}
	if m.LearningRate == 0 {
		m.LearningRate = def.LearningRate
	}
	if m.Patience == 0 {
		m.Patience = def.Patience
	}

	d := &s.Training.Data
	if d.TestFraction == 0 {
		d.TestFraction = 0.2
	}
	if d.ValidationFraction == 0 {
		d.ValidationFraction = def.ValidationFraction
	}
	if d.Seed == nil {
		seed := def.Seed
		d.Seed = &seed
	}

	a := &s.Training.Analysis
	if a.Correlation == nil {
		enabled := true
		a.Correlation = &enabled
	}
	if a.Importance.Enabled == nil {
		enabled := true
		a.Importance.Enabled = &enabled
	}
	if a.Importance.Repeats == 0 {
		a.Importance.Repeats = 5
	}
}

// Validate rejects settings the trainer cannot run with
func (s *TrainingSpec) Validate() error {
	m := s.Training.Model
	if m.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", m.Epochs)
	}
	if m.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", m.BatchSize)
	}
	if m.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %g", m.LearningRate)
	}
	if m.Patience <= 0 {
		return fmt.Errorf("patience must be positive, got %d", m.Patience)
	}
	if len(m.HiddenLayers) == 0 {
		return fmt.Errorf("hidden_layers must not be empty")
	}
	for i, units := range m.HiddenLayers {
		if units <= 0 {
			return fmt.Errorf("hidden layer %d has %d units", i, units)
		}
	}

	d := s.Training.Data
	if d.TestFraction <= 0 || d.TestFraction >= 1 {
		return fmt.Errorf("test_fraction must be in (0, 1), got %g", d.TestFraction)
	}
	if d.ValidationFraction <= 0 || d.ValidationFraction >= 1 {
		return fmt.Errorf("validation_fraction must be in (0, 1), got %g", d.ValidationFraction)
	}
	if s.Training.Analysis.Importance.Repeats < 0 {
		return fmt.Errorf("importance repeats must not be negative")
	}
	return nil
}

// TrainerParams converts the training spec into trainer parameters
func (s *TrainingSpec) TrainerParams() mlp.Params {
	m := s.Training.Model
	return mlp.Params{
		Epochs:             m.Epochs,
		BatchSize:          m.BatchSize,
		LearningRate:       m.LearningRate,
		Patience:           m.Patience,
		HiddenLayers:       append([]int(nil), m.HiddenLayers...),
		ValidationFraction: s.Training.Data.ValidationFraction,
		Seed:               s.Seed(),
	}
}

// Seed returns the partition and initialisation seed
func (s *TrainingSpec) Seed() uint64 {
	if s.Training.Data.Seed == nil {
		return mlp.DefaultParams().Seed
	}
	return *s.Training.Data.Seed
}

// CorrelationEnabled reports whether a correlation snapshot is emitted before training
func (s *TrainingSpec) CorrelationEnabled() bool {
	return s.Training.Analysis.Correlation == nil || *s.Training.Analysis.Correlation
}

// ImportanceEnabled reports whether permutation importance is computed after training
func (s *TrainingSpec) ImportanceEnabled() bool {
	imp := s.Training.Analysis.Importance
	return (imp.Enabled == nil || *imp.Enabled) && imp.Repeats > 0
}
