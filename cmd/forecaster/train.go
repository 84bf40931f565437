package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"
	"time"

	"oil-forecaster/core/executor"
	"oil-forecaster/core/models"
	"oil-forecaster/core/modelstore"
	"oil-forecaster/core/monitoring"
	"oil-forecaster/core/repository"
	"oil-forecaster/core/spec"
	"oil-forecaster/core/stream"

	"github.com/spf13/cobra"
)

func newTrainCommand(ctx *commandContext) *cobra.Command {
	var dataPath string
	var specPath string
	var every int

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model locally and archive it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if specPath == "" {
				specPath = cfg.TrainingSpec
			}
			trainingSpec, err := spec.LoadTrainingSpec(specPath)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			comps, err := buildComponents(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Close()

			input := executor.Input{}
			if dataPath != "" {
				data, err := os.ReadFile(dataPath)
				if err != nil {
					return fmt.Errorf("read dataset: %w", err)
				}
				input = executor.Input{Data: data, Name: filepath.Base(dataPath)}
			}

			jobRepo := repository.NewJobRepository()
			store := modelstore.NewStore()
			metrics := monitoring.NewMetricsExporter(jobRepo, store)
			opts := executor.Options{
				Spec:    trainingSpec,
				Archive: comps.archive,
				Metrics: metrics,
				Logger:  logger,
			}
			if comps.dataset != nil {
				opts.DefaultDataset = comps.dataset
			}
			orchestrator := executor.NewOrchestrator(jobRepo, store, opts)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				_ = orchestrator.Shutdown(shutdownCtx)
			}()

			job, err := orchestrator.Submit(runCtx, input)
			if err != nil {
				return err
			}

			streams := stream.NewServer(jobRepo, stream.Config{Mode: stream.ModeNotify}, metrics)
			sub, err := streams.Subscribe(job.ID, 0)
			if err != nil {
				return err
			}
			defer sub.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Training job %s on %s\n", job.ID, job.Source)
			final, err := followProgress(runCtx, sub, out, every)
			if err != nil {
				return err
			}
			if final.Status == models.JobStatusError {
				return fmt.Errorf("training failed: %s", final.Error)
			}

			model, err := store.Current()
			if err != nil {
				return err
			}
			fmt.Fprint(out, renderModelSummary(model, comps.archive.Location()))
			if model.HasImportance() {
				fmt.Fprint(out, renderImportance(model.FeatureImportance))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "csv", "", "CSV dataset to train on (defaults to DEFAULT_DATASET)")
	cmd.Flags().StringVar(&specPath, "spec", "", "Training spec YAML (defaults to TRAINING_SPEC)")
	cmd.Flags().IntVar(&every, "every", 10, "Print every Nth epoch")
	return cmd
}

// followProgress prints events until the job's terminal event and returns it
func followProgress(ctx context.Context, sub *stream.Subscription, out io.Writer, every int) (models.ProgressEvent, error) {
	if every <= 0 {
		every = 1
	}
	var last models.ProgressEvent
	for {
		item, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			return last, nil
		}
		if err != nil {
			return last, err
		}
		event := item.Event
		last = event

		switch {
		case event.Correlation != nil:
			fmt.Fprintf(out, "Correlation computed over %d rows\n", event.Correlation.Rows)
		case event.IsTerminal():
		case event.Iteration%every == 0 || event.Iteration == 1:
			fmt.Fprintf(out, "epoch %4d  loss %.4f  val_loss %.4f  mae %.4f  val_mae %.4f\n",
				event.Iteration, event.Loss, event.ValLoss, event.MAE, event.ValMAE)
		}
	}
}

func renderModelSummary(model *modelstore.PublishedModel, location string) string {
	rows := [][]string{
		{"Version", strconv.FormatInt(model.Version, 10)},
		{"Job", model.JobID},
		{"Trained", model.TrainedAt.Format(time.RFC3339)},
		{"Features", strconv.Itoa(len(model.FeatureNames))},
		{"R²", formatFloat(model.Metrics.R2)},
		{"MAE", formatFloat(model.Metrics.MAE)},
		{"RMSE", formatFloat(model.Metrics.RMSE)},
		{"MSE", formatFloat(model.Metrics.MSE)},
		{"Archive", location},
	}
	return renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

func renderImportance(scores map[string]models.ImportanceScore) string {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return scores[names[i]].Mean > scores[names[j]].Mean
	})
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		s := scores[name]
		rows = append(rows, []string{name, formatFloat(s.Mean), formatFloat(s.Std)})
	}
	return renderTable([]string{"Feature", "Importance", "Std"}, rows, []columnAlignment{alignLeft, alignRight, alignRight})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
