package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vidbrief/internal/models"
)

// blockingPipeline blocks each run until release is closed.
type blockingPipeline struct {
	started chan struct{}
	release chan struct{}
	runs    atomic.Int32
	err     error
}

func newBlockingPipeline() *blockingPipeline {
	return &blockingPipeline{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (p *blockingPipeline) Run(ctx context.Context, trigger models.RunTrigger) (*RunReport, error) {
	p.runs.Add(1)
	p.started <- struct{}{}
	select {
	case <-p.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &RunReport{Trigger: trigger, Status: models.RunStatusEmpty}, p.err
}

func TestRunner_TryRun(t *testing.T) {
	p := newBlockingPipeline()
	close(p.release)
	r := NewRunner(context.Background(), p)

	report, err := r.TryRun(context.Background(), models.RunTriggerAPI)
	require.NoError(t, err)
	assert.Equal(t, models.RunTriggerAPI, report.Trigger)
	assert.False(t, r.Running())
	assert.Same(t, report, r.LastReport())
}

func TestRunner_RejectsConcurrentRuns(t *testing.T) {
	p := newBlockingPipeline()
	r := NewRunner(context.Background(), p)

	require.NoError(t, r.Go(models.RunTriggerWebhook))
	<-p.started
	assert.True(t, r.Running())

	_, err := r.TryRun(context.Background(), models.RunTriggerAPI)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.ErrorIs(t, r.Go(models.RunTriggerSchedule), ErrRunInProgress)

	close(p.release)
	r.Wait()
	assert.False(t, r.Running())
	assert.Equal(t, int32(1), p.runs.Load())
	require.NotNil(t, r.LastReport())
	assert.Equal(t, models.RunTriggerWebhook, r.LastReport().Trigger)

	_, err = r.TryRun(context.Background(), models.RunTriggerAPI)
	assert.NoError(t, err, "runner accepts a new run once the previous one finished")
}

func TestRunner_ReleasesAfterError(t *testing.T) {
	p := newBlockingPipeline()
	p.err = errors.New("inbox unreachable")
	close(p.release)
	r := NewRunner(context.Background(), p)

	_, err := r.TryRun(context.Background(), models.RunTriggerCLI)
	assert.EqualError(t, err, "inbox unreachable")
	assert.False(t, r.Running())
}

func TestRunner_BaseContextCancelsBackgroundRun(t *testing.T) {
	p := newBlockingPipeline()
	base, cancel := context.WithCancel(context.Background())
	r := NewRunner(base, p)

	require.NoError(t, r.Go(models.RunTriggerWebhook))
	<-p.started
	cancel()

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("background run did not stop after cancel")
	}
	assert.False(t, r.Running())
	assert.Nil(t, r.LastReport())
}

func TestRunner_RequestQueuesOneFollowUp(t *testing.T) {
	p := newBlockingPipeline()
	r := NewRunner(context.Background(), p)

	assert.True(t, r.Request(models.RunTriggerWebhook))
	<-p.started

	assert.False(t, r.Request(models.RunTriggerWebhook))
	assert.False(t, r.Request(models.RunTriggerWebhook), "repeated requests coalesce")

	close(p.release)
	<-p.started
	r.Wait()

	assert.Equal(t, int32(2), p.runs.Load())
	assert.False(t, r.Running())
}
