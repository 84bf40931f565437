package repository

import (
	"math"
	"sync"
	"testing"
	"time"

	"oil-forecaster/core/apperrors"
	"oil-forecaster/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressLog_AppendAndRead(t *testing.T) {
	log := NewProgressLog()

	_, ok := log.Last()
	assert.False(t, ok)

	for i := 1; i <= 3; i++ {
		require.NoError(t, log.Append(models.ProgressEvent{Iteration: i, Status: models.JobStatusTraining}))
	}

	assert.Equal(t, 3, log.Len())
	ev, ok := log.At(1)
	require.True(t, ok)
	assert.Equal(t, 2, ev.Iteration)
	_, ok = log.At(3)
	assert.False(t, ok)

	last, ok := log.Last()
	require.True(t, ok)
	assert.Equal(t, 3, last.Iteration)

	events, _ := log.Since(1)
	require.Len(t, events, 2)
	assert.Equal(t, 2, events[0].Iteration)

	events, _ = log.Since(10)
	assert.Empty(t, events)
	assert.Len(t, log.Snapshot(), 3)
}

func TestProgressLog_ClosedAfterTerminal(t *testing.T) {
	log := NewProgressLog()
	require.NoError(t, log.Append(models.ProgressEvent{Status: models.JobStatusError, Error: "boom"}))
	assert.True(t, log.Terminal())

	err := log.Append(models.ProgressEvent{Iteration: 1, Status: models.JobStatusTraining})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Equal(t, 1, log.Len())
}

func TestProgressLog_IterationNeverDecreases(t *testing.T) {
	log := NewProgressLog()
	require.NoError(t, log.Append(models.ProgressEvent{Iteration: 5, Status: models.JobStatusTraining}))
	require.NoError(t, log.Append(models.ProgressEvent{Iteration: 2, Status: models.JobStatusError}))

	last, _ := log.Last()
	assert.Equal(t, 5, last.Iteration)
}

func TestProgressLog_SanitizesNonFinite(t *testing.T) {
	log := NewProgressLog()
	require.NoError(t, log.Append(models.ProgressEvent{
		Iteration: 1,
		Loss:      math.NaN(),
		ValLoss:   math.Inf(1),
		Status:    models.JobStatusTraining,
	}))

	ev, _ := log.At(0)
	assert.Equal(t, 0.0, ev.Loss)
	assert.Equal(t, 0.0, ev.ValLoss)
}

func TestProgressLog_SinceWakesWaiters(t *testing.T) {
	log := NewProgressLog()
	events, changed := log.Since(0)
	require.Empty(t, events)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = log.Append(models.ProgressEvent{Iteration: 1, Status: models.JobStatusTraining})
	}()

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by append")
	}
	wg.Wait()

	events, _ = log.Since(0)
	assert.Len(t, events, 1)
}
