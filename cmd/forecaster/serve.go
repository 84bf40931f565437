package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oil-forecaster/api/rest/routes"
	"oil-forecaster/core/executor"
	"oil-forecaster/core/modelstore"
	"oil-forecaster/core/monitoring"
	"oil-forecaster/core/predictor"
	"oil-forecaster/core/repository"
	"oil-forecaster/core/spec"
	"oil-forecaster/core/stream"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
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

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			trainingSpec, err := spec.LoadTrainingSpec(cfg.TrainingSpec)
			if err != nil {
				return err
			}

			comps, err := buildComponents(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Close()

			store := modelstore.NewStore()
			restored, err := comps.restoreModel(runCtx, store)
			if err != nil {
				logger.Warn("starting without archived model", zap.Error(err))
			} else if restored {
				logger.Info("archived model restored",
					zap.Int64("version", store.Version()),
					zap.String("archive", comps.archive.Location()),
				)
			}

			jobRepo := repository.NewJobRepository()
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

			streams := stream.NewServer(jobRepo, stream.Config{
				Mode:         stream.Mode(cfg.StreamMode),
				PollInterval: cfg.StreamPollInterval,
				MaxWait:      cfg.StreamMaxWait,
			}, metrics)

			monitor := monitoring.NewJobMonitor(jobRepo, repository.RetentionPolicy{
				MaxJobs: cfg.JobRetentionMax,
				TTL:     cfg.JobRetentionTTL,
			}, cfg.JobSweepInterval, metrics, logger)
			go monitor.Start(runCtx)

			r := mux.NewRouter()
			routes.SetupRoutes(r, routes.Dependencies{
				Orchestrator:     orchestrator,
				JobRepo:          jobRepo,
				Streams:          streams,
				Store:            store,
				Predictor:        predictor.NewPredictor(store),
				DefaultDataset:   comps.dataset,
				Metrics:          metrics,
				Monitor:          monitor,
				Logger:           logger,
				PredictionUnit:   cfg.PredictionUnit,
				PredictRateLimit: cfg.PredictRateLimit,
				CORSOrigins:      cfg.CORSOrigins,
				FlushDelay:       cfg.StreamFlushDelay,
				HiddenLayers:     trainingSpec.Training.Model.HiddenLayers,
			})

			server := &http.Server{
				Addr:              cfg.Addr(),
				Handler:           r,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting server", zap.String("addr", server.Addr), zap.String("stream_mode", cfg.StreamMode))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err, ok := <-errCh:
				if ok {
					return fmt.Errorf("server failed: %w", err)
				}
			case <-runCtx.Done():
			}

			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()

			// Running jobs record their terminal event before open streams are cut.
			if err := orchestrator.Shutdown(shutdownCtx); err != nil {
				logger.Warn("training jobs did not stop in time", zap.Error(err))
			}
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			logger.Info("server exited")
			return nil
		},
	}
}
