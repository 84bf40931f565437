package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"oil-forecaster/api/rest/respond"
	"oil-forecaster/core/executor"
	"oil-forecaster/core/models"
	"oil-forecaster/core/monitoring"
	"oil-forecaster/core/repository"
	"oil-forecaster/core/stream"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DefaultMaxUpload bounds an uploaded training CSV
const DefaultMaxUpload = 64 << 20

// TrainingHandler handles training job HTTP requests
type TrainingHandler struct {
	orchestrator *executor.Orchestrator
	jobRepo      *repository.JobRepository
	streams      *stream.Server
	monitor      *monitoring.JobMonitor
	flushDelay   time.Duration
	maxUpload    int64
	logger       *zap.Logger
}

// NewTrainingHandler creates a new training handler
func NewTrainingHandler(
	orchestrator *executor.Orchestrator,
	jobRepo *repository.JobRepository,
	streams *stream.Server,
	monitor *monitoring.JobMonitor,
	flushDelay time.Duration,
	logger *zap.Logger,
) *TrainingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrainingHandler{
		orchestrator: orchestrator,
		jobRepo:      jobRepo,
		streams:      streams,
		monitor:      monitor,
		flushDelay:   flushDelay,
		maxUpload:    DefaultMaxUpload,
		logger:       logger,
	}
}

// SubmitTrainingResponse represents the response after submitting a job
type SubmitTrainingResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SubmitTraining handles POST /api/train.
// The CSV comes from the multipart field "file" or the raw request body;
// without either the default dataset is used.
func (h *TrainingHandler) SubmitTraining(w http.ResponseWriter, r *http.Request) {
	input, err := h.readUpload(w, r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeBadRequest, err.Error())
		return
	}

	job, err := h.orchestrator.Submit(r.Context(), input)
	if err != nil {
		writeAppError(w, err)
		return
	}

	respond.JSON(w, http.StatusAccepted, SubmitTrainingResponse{
		TaskID:  job.ID,
		Status:  "started",
		Message: "Training started successfully",
	})
}

func (h *TrainingHandler) readUpload(w http.ResponseWriter, r *http.Request) (executor.Input, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return executor.Input{}, fmt.Errorf("invalid multipart form: %w", err)
		}
		file, header, err := r.FormFile("file")
		if errors.Is(err, http.ErrMissingFile) {
			return executor.Input{}, nil
		}
		if err != nil {
			return executor.Input{}, fmt.Errorf("read upload: %w", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return executor.Input{}, fmt.Errorf("read upload: %w", err)
		}
		return executor.Input{Data: data, Name: header.Filename}, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return executor.Input{}, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return executor.Input{}, nil
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload.csv"
	}
	return executor.Input{Data: data, Name: name}, nil
}

// StreamProgress handles GET /api/training/progress?task_id= and
// GET /api/training/{id}/progress as a server-sent event stream.
func (h *TrainingHandler) StreamProgress(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	if jobID == "" {
		jobID = r.URL.Query().Get("task_id")
	}
	if jobID == "" {
		respond.Error(w, http.StatusBadRequest, respond.CodeBadRequest, "task_id is required")
		return
	}

	sub, err := h.streams.Subscribe(jobID, resumeOffset(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	defer sub.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		respond.Error(w, http.StatusInternalServerError, "INTERNAL", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := h.logger.With(zap.String("job_id", jobID))
	ctx := r.Context()
	for {
		item, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Debug("progress subscriber left", zap.Int("cursor", sub.Cursor()), zap.Error(err))
			return
		}
		if err := writeSSE(w, item); err != nil {
			logger.Debug("progress write failed", zap.Error(err))
			return
		}
		flusher.Flush()
	}

	if sub.TimedOut() {
		logger.Warn("progress subscriber timed out waiting for first event")
	}
	if h.flushDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(h.flushDelay):
		}
	}
}

// resumeOffset reads the next index to deliver from Last-Event-ID or ?from=
func resumeOffset(r *http.Request) int {
	if last := r.Header.Get("Last-Event-ID"); last != "" {
		if n, err := strconv.Atoi(last); err == nil && n >= 0 {
			return n + 1
		}
	}
	if from := r.URL.Query().Get("from"); from != "" {
		if n, err := strconv.Atoi(from); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}

func writeSSE(w io.Writer, item stream.Item) error {
	if item.Index < 0 {
		data, err := json.Marshal(map[string]string{"error": item.Event.Error})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
		return err
	}
	data, err := json.Marshal(item.Event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", item.Index, data)
	return err
}

// indexedEvent is a progress event with its log index
type indexedEvent struct {
	Index int `json:"index"`
	models.ProgressEvent
}

// PollEvents handles GET /api/training/{id}/events?since=N&wait=true
func (h *TrainingHandler) PollEvents(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	since := 0
	if s := r.URL.Query().Get("since"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			respond.Error(w, http.StatusBadRequest, respond.CodeBadRequest, "since must be a non-negative integer")
			return
		}
		since = n
	}
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))

	batch, err := h.streams.Fetch(r.Context(), jobID, since, wait)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		writeAppError(w, err)
		return
	}

	events := make([]indexedEvent, len(batch.Events))
	for i, item := range batch.Events {
		events[i] = indexedEvent{Index: item.Index, ProgressEvent: item.Event}
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"next":   batch.Next,
		"status": batch.Status,
		"done":   batch.Done,
	})
}

// GetJob handles GET /api/training/{id}
func (h *TrainingHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	job, err := h.jobRepo.GetJob(jobID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	response := map[string]interface{}{
		"id":     job.ID,
		"status": job.Status,
		"source": job.Source,
		"timestamps": map[string]interface{}{
			"created_at":  job.CreatedAt,
			"started_at":  job.StartedAt,
			"finished_at": job.CompletedAt,
		},
	}
	if job.Error != "" {
		response["error"] = job.Error
	}
	if h.monitor != nil {
		if progress, err := h.monitor.GetJobMetrics(jobID); err == nil {
			response["progress"] = progress
		}
	}

	respond.JSON(w, http.StatusOK, response)
}

// ListJobs handles GET /api/training
func (h *TrainingHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		n, err := strconv.Atoi(limitParam)
		if err != nil || n <= 0 {
			respond.Error(w, http.StatusBadRequest, respond.CodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var status *models.JobStatus
	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		s := models.JobStatus(statusParam)
		if !s.Valid() {
			respond.Error(w, http.StatusBadRequest, respond.CodeBadRequest, "unknown status "+statusParam)
			return
		}
		status = &s
	}

	jobs := h.jobRepo.ListJobs(status, limit)
	items := make([]map[string]interface{}, len(jobs))
	for i, job := range jobs {
		items[i] = map[string]interface{}{
			"id":         job.ID,
			"status":     job.Status,
			"source":     job.Source,
			"created_at": job.CreatedAt,
		}
	}

	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}
