package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jmylchreest/vidbrief/internal/models"
)

// Pipeline is the part of Orchestrator a Runner drives.
type Pipeline interface {
	Run(ctx context.Context, trigger models.RunTrigger) (*RunReport, error)
}

// Runner guarantees at most one pipeline run at a time. The HTTP trigger,
// the webhook and the scheduler all share one Runner.
type Runner struct {
	pipeline Pipeline
	logger   *slog.Logger
	base     context.Context
	wg       sync.WaitGroup

	mu             sync.Mutex
	running        bool
	pending        bool
	pendingTrigger models.RunTrigger
	last           *RunReport
}

// NewRunner creates a Runner. Background runs derive their context from
// base, so canceling base stops them.
func NewRunner(base context.Context, pipeline Pipeline) *Runner {
	if base == nil {
		base = context.Background()
	}
	return &Runner{pipeline: pipeline, logger: slog.Default(), base: base}
}

// WithLogger sets the logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

func (r *Runner) acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

// finish records report and either releases the runner or hands back the
// queued follow-up trigger, keeping the runner held.
func (r *Runner) finish(report *RunReport) (models.RunTrigger, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if report != nil {
		r.last = report
	}
	if r.pending && r.base.Err() == nil {
		r.pending = false
		return r.pendingTrigger, true
	}
	r.pending = false
	r.running = false
	return "", false
}

// TryRun runs the pipeline synchronously, or returns ErrRunInProgress.
func (r *Runner) TryRun(ctx context.Context, trigger models.RunTrigger) (*RunReport, error) {
	if !r.acquire() {
		return nil, ErrRunInProgress
	}

	report, err := r.pipeline.Run(ctx, trigger)
	if next, ok := r.finish(report); ok {
		r.spawn(next)
	}
	return report, err
}

// Go starts a run in the background and returns immediately. It returns
// ErrRunInProgress when a run is already active.
func (r *Runner) Go(trigger models.RunTrigger) error {
	if !r.acquire() {
		return ErrRunInProgress
	}
	r.spawn(trigger)
	return nil
}

// Request starts a background run, or queues a single follow-up run when
// one is active so changes made after its inbox listing are still seen. It
// reports whether a run started immediately.
func (r *Runner) Request(trigger models.RunTrigger) bool {
	r.mu.Lock()
	if r.running {
		r.pending = true
		r.pendingTrigger = trigger
		r.mu.Unlock()
		return false
	}
	r.running = true
	r.mu.Unlock()

	r.spawn(trigger)
	return true
}

// spawn runs the pipeline in the background. The caller holds the runner.
func (r *Runner) spawn(trigger models.RunTrigger) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			report, err := r.pipeline.Run(r.base, trigger)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("background run failed",
					slog.String("trigger", string(trigger)),
					slog.String("error", err.Error()))
			}

			next, ok := r.finish(report)
			if !ok {
				return
			}
			trigger = next
		}
	}()
}

// Running reports whether a run is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LastReport returns the report of the most recently finished run, or nil.
func (r *Runner) LastReport() *RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Wait blocks until background runs have returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
