// Package stream serves job progress logs to any number of independent
// subscribers, replaying history and then tailing live events.
package stream

import (
	"context"
	"io"
	"sync"
	"time"

	"oil-forecaster/core/models"
	"oil-forecaster/core/monitoring"
	"oil-forecaster/core/repository"
)

// Mode selects how a subscriber waits for new events
type Mode string

const (
	// ModeNotify wakes subscribers as soon as an event is appended
	ModeNotify Mode = "notify"
	// ModePoll re-checks the log on a fixed interval
	ModePoll Mode = "poll"
)

// TimeoutMessage is the error carried by the synthetic event sent when no
// progress ever appears
const TimeoutMessage = "Timeout waiting for training to start"

// Config tunes subscriber waiting
type Config struct {
	Mode         Mode
	PollInterval time.Duration
	// MaxWait bounds the total time a subscriber waits for a job's first event
	MaxWait time.Duration
	// LongPollTimeout bounds a single waiting Fetch
	LongPollTimeout time.Duration
}

// DefaultConfig returns the notify-mode defaults
func DefaultConfig() Config {
	return Config{
		Mode:            ModeNotify,
		PollInterval:    500 * time.Millisecond,
		MaxWait:         5 * time.Minute,
		LongPollTimeout: 30 * time.Second,
	}
}

// Server hands out subscriptions over the job repository's progress logs
type Server struct {
	repo    *repository.JobRepository
	cfg     Config
	metrics *monitoring.MetricsExporter
}

// NewServer creates a stream server; zero config fields take the defaults
func NewServer(repo *repository.JobRepository, cfg Config, metrics *monitoring.MetricsExporter) *Server {
	def := DefaultConfig()
	if cfg.Mode != ModePoll {
		cfg.Mode = ModeNotify
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = def.MaxWait
	}
	if cfg.LongPollTimeout <= 0 {
		cfg.LongPollTimeout = def.LongPollTimeout
	}
	return &Server{repo: repo, cfg: cfg, metrics: metrics}
}

// Config returns the effective configuration
func (s *Server) Config() Config {
	return s.cfg
}

// Item is one delivered event and its index in the job's log.
// The synthetic timeout event has Index -1.
type Item struct {
	Index int
	Event models.ProgressEvent
}

// Subscription is one subscriber's cursor over a job's progress log.
// It is not safe for concurrent use; each caller subscribes separately.
type Subscription struct {
	server   *Server
	jobID    string
	log      *repository.ProgressLog
	cursor   int
	pending  []models.ProgressEvent
	deadline time.Time
	done     bool
	timedOut bool
	close    sync.Once
}

// Subscribe opens a subscription to job id starting at log index from.
// Unknown ids fail immediately with a not-found error.
func (s *Server) Subscribe(id string, from int) (*Subscription, error) {
	log, err := s.repo.GetLog(id)
	if err != nil {
		return nil, err
	}
	if from < 0 {
		from = 0
	}
	s.metrics.StreamOpened()
	return &Subscription{
		server:   s,
		jobID:    id,
		log:      log,
		cursor:   from,
		deadline: time.Now().Add(s.cfg.MaxWait),
	}, nil
}

// JobID returns the subscribed job
func (sub *Subscription) JobID() string {
	return sub.jobID
}

// Cursor returns the index of the next event to deliver
func (sub *Subscription) Cursor() int {
	return sub.cursor
}

// TimedOut reports whether the subscription ended on the first-event timeout
func (sub *Subscription) TimedOut() bool {
	return sub.timedOut
}

// Close releases the subscription. It never affects the job.
func (sub *Subscription) Close() {
	sub.close.Do(sub.server.metrics.StreamClosed)
}

// Next returns the next event in log order, blocking until one is appended.
// After the terminal event it returns io.EOF. If the log stays empty past
// MaxWait it returns a synthetic error event once, then io.EOF. A cancelled
// ctx ends the wait with ctx.Err().
func (sub *Subscription) Next(ctx context.Context) (Item, error) {
	for {
		if sub.done {
			return Item{}, io.EOF
		}
		if len(sub.pending) > 0 {
			event := sub.pending[0]
			sub.pending = sub.pending[1:]
			item := Item{Index: sub.cursor, Event: event}
			sub.cursor++
			if event.IsTerminal() {
				sub.done = true
				sub.pending = nil
			}
			sub.server.metrics.EventDelivered()
			return item, nil
		}

		events, changed := sub.log.Since(sub.cursor)
		if len(events) > 0 {
			sub.pending = events
			continue
		}
		if sub.log.Terminal() {
			// resumed past the terminal event
			sub.done = true
			continue
		}

		waitEmpty := sub.log.Len() == 0
		if waitEmpty && !time.Now().Before(sub.deadline) {
			sub.done = true
			sub.timedOut = true
			sub.server.metrics.StreamTimedOut()
			return Item{
				Index: -1,
				Event: models.ProgressEvent{Status: models.JobStatusError, Error: TimeoutMessage},
			}, nil
		}
		if err := sub.wait(ctx, changed, waitEmpty); err != nil {
			return Item{}, err
		}
	}
}

func (sub *Subscription) wait(ctx context.Context, changed <-chan struct{}, bounded bool) error {
	var timeout time.Duration
	var notify <-chan struct{}
	switch sub.server.cfg.Mode {
	case ModePoll:
		timeout = sub.server.cfg.PollInterval
	default:
		notify = changed
	}
	if bounded {
		remaining := time.Until(sub.deadline)
		if timeout == 0 || remaining < timeout {
			timeout = remaining
		}
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-notify:
	case <-timer:
	}
	return nil
}

// Batch is the result of one Fetch
type Batch struct {
	Events []Item
	Next   int
	Status models.JobStatus
	Done   bool
}

// Fetch returns the events of job id from index since onwards. With wait set
// and nothing new, it blocks until an event arrives, LongPollTimeout passes or
// ctx ends; the last two return an empty batch.
func (s *Server) Fetch(ctx context.Context, id string, since int, wait bool) (Batch, error) {
	log, err := s.repo.GetLog(id)
	if err != nil {
		return Batch{}, err
	}
	if since < 0 {
		since = 0
	}

	events, changed := log.Since(since)
	if len(events) == 0 && wait && !log.Terminal() {
		waitCtx, cancel := context.WithTimeout(ctx, s.cfg.LongPollTimeout)
		defer cancel()

		var tick <-chan time.Time
		if s.cfg.Mode == ModePoll {
			ticker := time.NewTicker(s.cfg.PollInterval)
			defer ticker.Stop()
			tick = ticker.C
			changed = nil
		}
	loop:
		for {
			select {
			case <-waitCtx.Done():
				break loop
			case <-changed:
			case <-tick:
			}
			events, changed = log.Since(since)
			if len(events) > 0 || log.Terminal() {
				break
			}
			if s.cfg.Mode == ModePoll {
				changed = nil
			}
		}
	}

	batch := Batch{Next: since, Events: make([]Item, 0, len(events))}
	for i, event := range events {
		batch.Events = append(batch.Events, Item{Index: since + i, Event: event})
		if event.IsTerminal() {
			batch.Done = true
		}
	}
	batch.Next = since + len(events)
	if batch.Next >= log.Len() && log.Terminal() {
		batch.Done = true
	}

	job, err := s.repo.GetJob(id)
	if err == nil {
		batch.Status = job.Status
	} else if last, ok := log.Last(); ok {
		batch.Status = last.Status
	}
	return batch, nil
}
