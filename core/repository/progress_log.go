package repository

import (
	"sync"

	"oil-forecaster/core/apperrors"
	"oil-forecaster/core/models"
)

// ProgressLog is the append-only history of one job's progress events.
//
// Readers never see a partially appended event: every read takes the lock and
// copies the slice prefix it returns. Appends close the current change channel,
// waking every subscriber blocked on it.
type ProgressLog struct {
	mu       sync.RWMutex
	events   []models.ProgressEvent
	changed  chan struct{}
	terminal bool
}

// NewProgressLog creates an empty progress log
func NewProgressLog() *ProgressLog {
	return &ProgressLog{changed: make(chan struct{})}
}

// Append adds an event to the end of the log.
// Nothing may follow a terminal event.
func (l *ProgressLog) Append(event models.ProgressEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(event)
}

func (l *ProgressLog) appendLocked(event models.ProgressEvent) error {
	if l.terminal {
		return apperrors.New("append", apperrors.ErrInvalidTransition, "log already closed by a terminal event")
	}
	if n := len(l.events); n > 0 && event.Iteration < l.events[n-1].Iteration {
		event.Iteration = l.events[n-1].Iteration
	}
	l.events = append(l.events, event.Sanitized())
	l.terminal = event.IsTerminal()

	close(l.changed)
	l.changed = make(chan struct{})
	return nil
}

// Len returns the number of events appended so far
func (l *ProgressLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// At returns the event at index i
func (l *ProgressLog) At(i int) (models.ProgressEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.events) {
		return models.ProgressEvent{}, false
	}
	return l.events[i], true
}

// Terminal reports whether the log has been closed by a terminal event
func (l *ProgressLog) Terminal() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.terminal
}

// Last returns the most recent event, if any
func (l *ProgressLog) Last() (models.ProgressEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.events) == 0 {
		return models.ProgressEvent{}, false
	}
	return l.events[len(l.events)-1], true
}

// Since returns a copy of the events from index cursor onwards, together with a
// channel that is closed on the next append. Taking both under one lock means a
// caller that finds nothing new cannot miss the append it is about to wait for.
func (l *ProgressLog) Since(cursor int) ([]models.ProgressEvent, <-chan struct{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(l.events) {
		return nil, l.changed
	}
	out := make([]models.ProgressEvent, len(l.events)-cursor)
	copy(out, l.events[cursor:])
	return out, l.changed
}

// Snapshot returns a copy of the whole log
func (l *ProgressLog) Snapshot() []models.ProgressEvent {
	events, _ := l.Since(0)
	return events
}
