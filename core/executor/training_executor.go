package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"oil-forecaster/core/apperrors"
	"oil-forecaster/core/models"
	"oil-forecaster/core/modelstore"
	"oil-forecaster/core/monitoring"
	"oil-forecaster/core/repository"
	"oil-forecaster/core/spec"
	"oil-forecaster/training/analysis"
	"oil-forecaster/training/mlp"
	"oil-forecaster/training/pipeline"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// DatasetSource provides the dataset used when a submission carries no data
type DatasetSource interface {
	Name() string
	Exists(ctx context.Context) (bool, error)
	Read(ctx context.Context) ([]byte, error)
}

// ModelArchive persists published models
type ModelArchive interface {
	Save(ctx context.Context, model *modelstore.PublishedModel) error
}

// ModelTrainer fits a network to normalised features, reporting each iteration to sink
type ModelTrainer interface {
	Fit(ctx context.Context, x *mat.Dense, y []float64, sink models.ProgressSink) (*mlp.Network, *mlp.History, error)
}

// TransformFunc turns raw uploaded bytes into a dataset
type TransformFunc func(raw []byte) (*pipeline.Dataset, error)

var errOrchestratorStopped = errors.New("orchestrator stopped")

// Input is a training submission. Empty Data selects the default dataset.
type Input struct {
	Data []byte
	Name string
}

// Options wires the orchestrator's collaborators. Nil Spec, Trainer and
// Transform fall back to the built-in ones; a nil DefaultDataset rejects
// submissions without data and a nil Archive skips persistence.
type Options struct {
	Spec           *spec.TrainingSpec
	Trainer        ModelTrainer
	Transform      TransformFunc
	DefaultDataset DatasetSource
	Archive        ModelArchive
	Metrics        *monitoring.MetricsExporter
	Logger         *zap.Logger
}

// Orchestrator runs training jobs in the background and records their
// progress in the job repository. Each job ends with exactly one terminal
// event; a successful job publishes its model before that event is appended.
type Orchestrator struct {
	jobRepo   *repository.JobRepository
	store     *modelstore.Store
	spec      *spec.TrainingSpec
	trainer   ModelTrainer
	transform TransformFunc
	dataset   DatasetSource
	archive   ModelArchive
	metrics   *monitoring.MetricsExporter
	logger    *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// mu orders wg.Add in Submit against Shutdown
	mu      sync.Mutex
	stopped bool

	// publishMu makes publish, archive and the Completed append one step, so
	// the job whose Completed event is appended last is the one the store holds
	publishMu sync.Mutex
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(jobRepo *repository.JobRepository, store *modelstore.Store, opts Options) *Orchestrator {
	if opts.Spec == nil {
		opts.Spec = spec.DefaultTrainingSpec()
	}
	if opts.Trainer == nil {
		opts.Trainer = mlp.NewTrainer(opts.Spec.TrainerParams())
	}
	if opts.Transform == nil {
		opts.Transform = pipeline.Transform
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		jobRepo:   jobRepo,
		store:     store,
		spec:      opts.Spec,
		trainer:   opts.Trainer,
		transform: opts.Transform,
		dataset:   opts.DefaultDataset,
		archive:   opts.Archive,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// Spec returns the training spec jobs run with
func (o *Orchestrator) Spec() *spec.TrainingSpec {
	return o.spec
}

// DefaultDatasetAvailable reports whether submissions without data can run
func (o *Orchestrator) DefaultDatasetAvailable(ctx context.Context) bool {
	if o.dataset == nil {
		return false
	}
	ok, err := o.dataset.Exists(ctx)
	return err == nil && ok
}

// Submit registers a job and starts training in the background. It returns
// as soon as the job exists; data problems surface as the job's terminal
// error event. Only a missing default dataset fails the call itself.
func (o *Orchestrator) Submit(ctx context.Context, input Input) (models.Job, error) {
	source := input.Name
	if len(input.Data) == 0 {
		if o.dataset == nil {
			return models.Job{}, apperrors.New("submit", apperrors.ErrDatasetNotFound, "no upload and no default dataset configured")
		}
		ok, err := o.dataset.Exists(ctx)
		if err != nil {
			return models.Job{}, fmt.Errorf("check default dataset: %w", err)
		}
		if !ok {
			return models.Job{}, apperrors.New("submit", apperrors.ErrDatasetNotFound, "default dataset %s not found", o.dataset.Name())
		}
		source = o.dataset.Name()
	}
	if source == "" {
		source = "upload"
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return models.Job{}, errOrchestratorStopped
	}
	job := o.jobRepo.CreateJob(source)
	o.wg.Add(1)
	o.mu.Unlock()

	o.metrics.JobSubmitted()
	o.logger.Info("training job submitted",
		zap.String("job_id", job.ID),
		zap.String("source", source),
		zap.Int("bytes", len(input.Data)),
	)

	go o.run(job.ID, input)

	return job, nil
}

// Shutdown cancels running jobs and waits for them to record their terminal
// event, or for ctx to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// jobSink forwards trainer progress into the job's log and remembers the
// last iteration so a failure event can carry it.
type jobSink struct {
	repo *repository.JobRepository
	id   string

	mu   sync.Mutex
	last int
}

func (s *jobSink) Append(event models.ProgressEvent) error {
	if event.IsTerminal() {
		return apperrors.New("append event", apperrors.ErrInvalidTransition, "trainer may not emit terminal events")
	}
	if err := s.repo.AppendEvent(s.id, event); err != nil {
		return err
	}
	s.mu.Lock()
	s.last = max(s.last, event.Iteration)
	s.mu.Unlock()
	return nil
}

func (s *jobSink) lastIteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (o *Orchestrator) run(jobID string, input Input) {
	defer o.wg.Done()

	logger := o.logger.With(zap.String("job_id", jobID))
	sink := &jobSink{repo: o.jobRepo, id: jobID}
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("training panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			o.fail(logger, jobID, sink, fmt.Errorf("internal error: %v", r))
		}
	}()

	model, final, err := o.train(o.baseCtx, logger, jobID, input, sink)
	if err == nil {
		err = o.publish(logger, jobID, model, final)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			err = fmt.Errorf("training cancelled: server shutting down")
		}
		o.fail(logger, jobID, sink, err)
		return
	}
	o.metrics.JobFinished(models.JobStatusCompleted)
	logger.Info("training job completed",
		zap.Int("epochs", final.Iteration),
		zap.Float64("r2", final.Metrics.R2),
		zap.Float64("mae", final.Metrics.MAE),
		zap.Float64("rmse", final.Metrics.RMSE),
		zap.Duration("elapsed", time.Since(started)),
	)
}

// train runs every phase of a job up to model publication and returns the
// trained model with the completion event still to be appended.
func (o *Orchestrator) train(ctx context.Context, logger *zap.Logger, jobID string, input Input, sink *jobSink) (*modelstore.PublishedModel, models.ProgressEvent, error) {
	raw := input.Data
	if len(raw) == 0 {
		var err error
		raw, err = o.dataset.Read(ctx)
		if err != nil {
			return nil, models.ProgressEvent{}, fmt.Errorf("load default dataset: %w", err)
		}
	}

	ds, err := o.transform(raw)
	if err != nil {
		return nil, models.ProgressEvent{}, err
	}
	logger.Info("dataset prepared",
		zap.Int("rows", ds.Len()),
		zap.Int("rows_read", ds.RowsRead),
		zap.Int("rows_dropped", ds.RowsDropped),
	)
	if err := o.jobRepo.UpdateJobStatus(jobID, models.JobStatusTraining); err != nil {
		return nil, models.ProgressEvent{}, err
	}

	if o.spec.CorrelationEnabled() {
		snapshot := analysis.Correlate(ds.FeatureNames, ds.TargetName, ds.X, ds.Y)
		if err := sink.Append(models.ProgressEvent{
			Iteration:   0,
			Status:      models.JobStatusTraining,
			Correlation: snapshot,
		}); err != nil {
			return nil, models.ProgressEvent{}, fmt.Errorf("record correlation: %w", err)
		}
	}

	seed := o.spec.Seed()
	part, err := pipeline.Split(ds.Len(), o.spec.Training.Data.TestFraction, seed)
	if err != nil {
		return nil, models.ProgressEvent{}, apperrors.DataError("%v", err)
	}
	trainRows, trainY := pipeline.Rows(ds.X, ds.Y, part.Train)
	testRows, testY := pipeline.Rows(ds.X, ds.Y, part.Test)

	scaler := mlp.FitScaler(toDense(trainRows, len(ds.FeatureNames)))
	trainX, err := scaler.Transform(toDense(trainRows, len(ds.FeatureNames)))
	if err != nil {
		return nil, models.ProgressEvent{}, err
	}
	testX, err := scaler.Transform(toDense(testRows, len(ds.FeatureNames)))
	if err != nil {
		return nil, models.ProgressEvent{}, err
	}

	logger.Info("training started", zap.Int("train_rows", len(trainY)), zap.Int("test_rows", len(testY)))
	network, history, err := o.trainer.Fit(ctx, trainX, trainY, sink)
	if err != nil {
		return nil, models.ProgressEvent{}, fmt.Errorf("train model: %w", err)
	}

	metrics := analysis.Evaluate(testY, network.PredictBatch(testX))
	var importance map[string]models.ImportanceScore
	if o.spec.ImportanceEnabled() {
		importance = analysis.PermutationImportance(network, testX, testY, ds.FeatureNames,
			o.spec.Training.Analysis.Importance.Repeats, seed)
	}

	model := &modelstore.PublishedModel{
		JobID:             jobID,
		Network:           network,
		Scaler:            scaler,
		FeatureNames:      append([]string(nil), ds.FeatureNames...),
		TargetName:        ds.TargetName,
		Metrics:           metrics,
		FeatureImportance: importance,
		TrainedAt:         time.Now().UTC(),
	}
	last := history.Last()
	return model, models.ProgressEvent{
		Iteration:         max(last.Epoch, sink.lastIteration()),
		Loss:              last.Loss,
		ValLoss:           last.ValLoss,
		MAE:               last.MAE,
		ValMAE:            last.ValMAE,
		Status:            models.JobStatusCompleted,
		Metrics:           &metrics,
		FeatureImportance: importance,
	}, nil
}

// publish swaps model into the store, archives it and appends the Completed
// event. Archive failures only warn: the model is already live.
func (o *Orchestrator) publish(logger *zap.Logger, jobID string, model *modelstore.PublishedModel, final models.ProgressEvent) error {
	o.publishMu.Lock()
	defer o.publishMu.Unlock()

	if err := o.store.Publish(model); err != nil {
		return err
	}
	o.metrics.ModelPublished()
	logger.Info("model published", zap.Int64("version", model.Version))

	if o.archive != nil {
		if err := o.archive.Save(o.baseCtx, model); err != nil {
			o.metrics.ArchiveFailed()
			logger.Warn("failed to archive model", zap.Error(err))
		}
	}

	if err := o.jobRepo.AppendEvent(jobID, final); err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	return nil
}

// fail appends the job's terminal error event
func (o *Orchestrator) fail(logger *zap.Logger, jobID string, sink *jobSink, cause error) {
	event := models.ProgressEvent{
		Iteration: sink.lastIteration(),
		Status:    models.JobStatusError,
		Error:     cause.Error(),
	}
	if err := o.jobRepo.AppendEvent(jobID, event); err != nil {
		logger.Error("failed to record job error", zap.Error(err), zap.NamedError("cause", cause))
		return
	}
	o.metrics.JobFinished(models.JobStatusError)
	logger.Error("training job failed", zap.String("code", apperrors.Code(cause)), zap.Error(cause))
}

func toDense(rows [][]float64, cols int) *mat.Dense {
	data := make([]float64, 0, len(rows)*cols)
	for _, row := range rows {
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data)
}
