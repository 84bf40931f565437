package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"oil-forecaster/core/apperrors"
	"oil-forecaster/core/models"
	"oil-forecaster/core/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func training(epoch int) models.ProgressEvent {
	return models.ProgressEvent{Iteration: epoch, Loss: float64(10 - epoch), Status: models.JobStatusTraining}
}

// drain reads a subscription to the end
func drain(t *testing.T, ctx context.Context, sub *Subscription) []Item {
	t.Helper()
	var items []Item
	for {
		item, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			return items
		}
		require.NoError(t, err)
		items = append(items, item)
	}
}

func TestSubscribe_UnknownJob(t *testing.T) {
	srv := NewServer(repository.NewJobRepository(), DefaultConfig(), nil)

	_, err := srv.Subscribe("missing", 0)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = srv.Fetch(context.Background(), "missing", 0, false)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSubscription_ReplaysFinishedJob(t *testing.T) {
	repo := repository.NewJobRepository()
	job := repo.CreateJob("upload")
	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.AppendEvent(job.ID, training(i)))
	}
	require.NoError(t, repo.AppendEvent(job.ID, models.ProgressEvent{Iteration: 3, Status: models.JobStatusCompleted}))

	srv := NewServer(repo, DefaultConfig(), nil)
	sub, err := srv.Subscribe(job.ID, 0)
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	items := drain(t, ctx, sub)

	require.Len(t, items, 4)
	for i, item := range items {
		assert.Equal(t, i, item.Index)
	}
	assert.Equal(t, models.JobStatusCompleted, items[3].Event.Status)
	assert.Equal(t, 4, sub.Cursor())
	assert.False(t, sub.TimedOut())
}

func TestSubscription_ResumeFrom(t *testing.T) {
	repo := repository.NewJobRepository()
	job := repo.CreateJob("upload")
	require.NoError(t, repo.AppendEvent(job.ID, training(1)))
	require.NoError(t, repo.AppendEvent(job.ID, training(2)))
	require.NoError(t, repo.AppendEvent(job.ID, models.ProgressEvent{Iteration: 2, Status: models.JobStatusError, Error: "boom"}))

	srv := NewServer(repo, DefaultConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	t.Run("mid log", func(t *testing.T) {
		sub, err := srv.Subscribe(job.ID, 2)
		require.NoError(t, err)
		items := drain(t, ctx, sub)
		require.Len(t, items, 1)
		assert.Equal(t, 2, items[0].Index)
		assert.Equal(t, "boom", items[0].Event.Error)
	})

	t.Run("past the end", func(t *testing.T) {
		sub, err := srv.Subscribe(job.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, drain(t, ctx, sub))
	})
}

func TestSubscription_IdenticalSubscribers(t *testing.T) {
	for _, mode := range []Mode{ModeNotify, ModePoll} {
		t.Run(string(mode), func(t *testing.T) {
			repo := repository.NewJobRepository()
			job := repo.CreateJob("upload")
			srv := NewServer(repo, Config{Mode: mode, PollInterval: 5 * time.Millisecond, MaxWait: 5 * time.Second}, nil)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			const subscribers = 4
			results := make([][]Item, subscribers)
			var wg sync.WaitGroup
			for i := 0; i < subscribers; i++ {
				sub, err := srv.Subscribe(job.ID, 0)
				require.NoError(t, err)
				wg.Add(1)
				go func(i int, sub *Subscription) {
					defer wg.Done()
					defer sub.Close()
					for {
						item, err := sub.Next(ctx)
						if err != nil {
							return
						}
						results[i] = append(results[i], item)
					}
				}(i, sub)
			}

			for epoch := 1; epoch <= 20; epoch++ {
				require.NoError(t, repo.AppendEvent(job.ID, training(epoch)))
				if epoch%5 == 0 {
					time.Sleep(time.Millisecond)
				}
			}
			require.NoError(t, repo.AppendEvent(job.ID, models.ProgressEvent{Iteration: 20, Status: models.JobStatusCompleted}))
			wg.Wait()

			require.Len(t, results[0], 21)
			for i := 1; i < subscribers; i++ {
				assert.Equal(t, results[0], results[i])
			}
			assert.True(t, results[0][20].Event.IsTerminal())
		})
	}
}

func TestSubscription_TimeoutWhileEmpty(t *testing.T) {
	repo := repository.NewJobRepository()
	job := repo.CreateJob("upload")
	srv := NewServer(repo, Config{MaxWait: 30 * time.Millisecond}, nil)

	sub, err := srv.Subscribe(job.ID, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	item, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, -1, item.Index)
	assert.Equal(t, models.JobStatusError, item.Event.Status)
	assert.Equal(t, TimeoutMessage, item.Event.Error)
	assert.True(t, sub.TimedOut())

	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)

	// the job itself is untouched
	got, err := repo.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusStarting, got.Status)
}

func TestSubscription_NoTimeoutOnceStarted(t *testing.T) {
	repo := repository.NewJobRepository()
	job := repo.CreateJob("upload")
	require.NoError(t, repo.AppendEvent(job.ID, training(1)))
	srv := NewServer(repo, Config{MaxWait: 10 * time.Millisecond}, nil)

	sub, err := srv.Subscribe(job.ID, 0)
	require.NoError(t, err)

	item, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, item.Index)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, sub.TimedOut())
}

func TestSubscription_DisconnectDoesNotAffectOthers(t *testing.T) {
	repo := repository.NewJobRepository()
	job := repo.CreateJob("upload")
	srv := NewServer(repo, DefaultConfig(), nil)

	leaving, err := srv.Subscribe(job.ID, 0)
	require.NoError(t, err)
	staying, err := srv.Subscribe(job.ID, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := leaving.Next(ctx)
		errCh <- err
	}()
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled subscriber did not return")
	}
	leaving.Close()
	leaving.Close()

	require.NoError(t, repo.AppendEvent(job.ID, training(1)))
	require.NoError(t, repo.AppendEvent(job.ID, models.ProgressEvent{Iteration: 1, Status: models.JobStatusCompleted}))

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	assert.Len(t, drain(t, waitCtx, staying), 2)
}

func TestFetch(t *testing.T) {
	repo := repository.NewJobRepository()
	job := repo.CreateJob("upload")
	srv := NewServer(repo, Config{LongPollTimeout: 30 * time.Millisecond}, nil)
	ctx := context.Background()

	t.Run("empty without wait", func(t *testing.T) {
		batch, err := srv.Fetch(ctx, job.ID, 0, false)
		require.NoError(t, err)
		assert.Empty(t, batch.Events)
		assert.Equal(t, 0, batch.Next)
		assert.Equal(t, models.JobStatusStarting, batch.Status)
		assert.False(t, batch.Done)
	})

	t.Run("long poll times out empty", func(t *testing.T) {
		start := time.Now()
		batch, err := srv.Fetch(ctx, job.ID, 0, true)
		require.NoError(t, err)
		assert.Empty(t, batch.Events)
		assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	})

	t.Run("long poll wakes on append", func(t *testing.T) {
		go func() {
			time.Sleep(5 * time.Millisecond)
			_ = repo.AppendEvent(job.ID, training(1))
		}()
		longCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		slow := NewServer(repo, Config{LongPollTimeout: time.Second}, nil)
		batch, err := slow.Fetch(longCtx, job.ID, 0, true)
		require.NoError(t, err)
		require.Len(t, batch.Events, 1)
		assert.Equal(t, 1, batch.Next)
		assert.Equal(t, models.JobStatusTraining, batch.Status)
	})

	t.Run("done after terminal", func(t *testing.T) {
		require.NoError(t, repo.AppendEvent(job.ID, models.ProgressEvent{Iteration: 1, Status: models.JobStatusCompleted}))
		batch, err := srv.Fetch(ctx, job.ID, 1, true)
		require.NoError(t, err)
		require.Len(t, batch.Events, 1)
		assert.Equal(t, 1, batch.Events[0].Index)
		assert.True(t, batch.Done)
		assert.Equal(t, models.JobStatusCompleted, batch.Status)

		batch, err = srv.Fetch(ctx, job.ID, 2, true)
		require.NoError(t, err)
		assert.Empty(t, batch.Events)
		assert.True(t, batch.Done)
	})
}
