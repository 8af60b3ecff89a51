// Package scheduler watches the inbox on a cron schedule and triggers
// pipeline runs when the schedule is due.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/vidbrief/internal/config"
	"github.com/jmylchreest/vidbrief/internal/models"
	"github.com/jmylchreest/vidbrief/internal/pipeline"
	"github.com/jmylchreest/vidbrief/pkg/format"
)

// DefaultSyncInterval is how often the schedule is checked.
const DefaultSyncInterval = time.Minute

// Trigger starts a pipeline run. *pipeline.Runner satisfies it.
type Trigger interface {
	TryRun(ctx context.Context, trigger models.RunTrigger) (*pipeline.RunReport, error)
}

// Scheduler checks a cron expression every sync interval and runs the
// pipeline once for each due firing. Firings missed while a run is in
// progress coalesce into a single run.
type Scheduler struct {
	mu sync.Mutex

	trigger  Trigger
	logger   *slog.Logger
	parser   cron.Parser
	expr     string
	schedule cron.Schedule

	syncInterval time.Duration
	now          func() time.Time
	lastCheck    time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler from the schedule config.
func New(trigger Trigger, cfg config.ScheduleConfig) (*Scheduler, error) {
	s := &Scheduler{
		trigger:      trigger,
		logger:       slog.Default(),
		parser:       newParser(),
		syncInterval: cfg.SyncInterval,
		now:          time.Now,
	}
	if s.syncInterval <= 0 {
		s.syncInterval = DefaultSyncInterval
	}

	expr, err := NormalizeCronExpression(cfg.Cron)
	if err != nil {
		return nil, err
	}
	schedule, err := s.parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cfg.Cron, err)
	}
	s.expr = expr
	s.schedule = schedule
	return s, nil
}

func newParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// Start begins the background sync loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.lastCheck = s.now()

	s.wg.Add(1)
	go s.syncLoop(s.ctx)

	s.logger.Info("inbox watch started",
		slog.String("cron", s.expr),
		slog.String("schedule", format.CronDescription(s.expr)),
		slog.Time("next_run", s.schedule.Next(s.lastCheck)),
		slog.Duration("sync_interval", s.syncInterval))
	return nil
}

// Stop stops the sync loop and waits for an in-flight check to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info("inbox watch stopped")
}

// Next returns the next firing after now.
func (s *Scheduler) Next() time.Time {
	return s.schedule.Next(s.now())
}

func (s *Scheduler) syncLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

// check runs the pipeline when a firing has passed since the last check.
func (s *Scheduler) check(ctx context.Context) {
	if !s.isDue(s.now()) {
		return
	}

	report, err := s.trigger.TryRun(ctx, models.RunTriggerSchedule)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.logger.Debug("scheduled run skipped, a run is already in progress")
	case err != nil:
		s.logger.Error("scheduled run failed", slog.String("error", err.Error()))
	case report != nil:
		s.logger.Info("scheduled run finished",
			slog.String("run_id", report.RunID.String()),
			slog.String("status", string(report.Status)))
	}
}

// isDue reports whether a firing falls in (lastCheck, now] and advances
// lastCheck to now.
func (s *Scheduler) isDue(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.schedule.Next(s.lastCheck)
	if next.After(now) {
		return false
	}
	s.lastCheck = now
	return true
}

// ValidateCron validates a cron expression.
func ValidateCron(expr string) error {
	normalized, err := NormalizeCronExpression(expr)
	if err != nil {
		return err
	}
	_, err = newParser().Parse(normalized)
	return err
}

// NormalizeCronExpression trims an expression to the 5-field form. A
// 6-field expression whose leading seconds field is 0 has it stripped;
// descriptors such as @hourly pass through.
func NormalizeCronExpression(expr string) (string, error) {
	fields := strings.Fields(expr)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty cron expression")
	}
	if strings.HasPrefix(fields[0], "@") {
		return strings.Join(fields, " "), nil
	}

	switch len(fields) {
	case 5:
		return strings.Join(fields, " "), nil
	case 6:
		if fields[0] != "0" {
			return "", fmt.Errorf("cron expression %q: sub-minute schedules are not supported", expr)
		}
		return strings.Join(fields[1:], " "), nil
	default:
		return "", fmt.Errorf("cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}
}
