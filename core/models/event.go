package models

import "math"

// ProgressEvent is one immutable report of training progress.
//
// The JSON shape is the wire format of the progress stream.
type ProgressEvent struct {
	Iteration         int                        `json:"epoch"`
	Loss              float64                    `json:"loss"`
	ValLoss           float64                    `json:"val_loss"`
	MAE               float64                    `json:"mae"`
	ValMAE            float64                    `json:"val_mae"`
	Status            JobStatus                  `json:"status"`
	Metrics           *EvaluationMetrics         `json:"metrics,omitempty"`
	FeatureImportance map[string]ImportanceScore `json:"feature_importance,omitempty"`
	Correlation       *CorrelationSnapshot       `json:"correlation_data,omitempty"`
	Error             string                     `json:"error,omitempty"`
}

// IsTerminal reports whether the event closes its job's log
func (e ProgressEvent) IsTerminal() bool {
	return e.Status.IsTerminal()
}

// Sanitized returns a copy safe for JSON encoding: NaN and infinities become 0.
func (e ProgressEvent) Sanitized() ProgressEvent {
	e.Loss = Finite(e.Loss)
	e.ValLoss = Finite(e.ValLoss)
	e.MAE = Finite(e.MAE)
	e.ValMAE = Finite(e.ValMAE)
	return e
}

// ProgressSink receives progress events from code that knows nothing about delivery
type ProgressSink interface {
	Append(event ProgressEvent) error
}

// EvaluationMetrics are the held-out test metrics of a finished training run
type EvaluationMetrics struct {
	R2   float64 `json:"r2"`
	MAE  float64 `json:"mae"`
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
}

// ImportanceScore is the permutation importance of one feature
type ImportanceScore struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// CorrelationSnapshot summarises pairwise Pearson correlation over the cleaned dataset.
// Matrix rows and columns follow Columns, which lists the features then the target.
type CorrelationSnapshot struct {
	Columns           []string           `json:"columns"`
	Matrix            [][]float64        `json:"matrix"`
	TargetCorrelation map[string]float64 `json:"target_correlation"`
	Rows              int                `json:"rows"`
}

// Finite maps NaN and infinities to zero
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
