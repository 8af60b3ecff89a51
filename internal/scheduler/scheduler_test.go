package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vidbrief/internal/config"
	"github.com/jmylchreest/vidbrief/internal/models"
	"github.com/jmylchreest/vidbrief/internal/pipeline"
)

type mockTrigger struct {
	mu       sync.Mutex
	triggers []models.RunTrigger
	err      error
}

func (m *mockTrigger) TryRun(_ context.Context, trigger models.RunTrigger) (*pipeline.RunReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers = append(m.triggers, trigger)
	if m.err != nil {
		return nil, m.err
	}
	return &pipeline.RunReport{RunID: models.NewULID(), Trigger: trigger, Status: models.RunStatusEmpty}, nil
}

func (m *mockTrigger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.triggers)
}

func TestNormalizeCronExpression(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"5-field pass through", "*/5 * * * *", "*/5 * * * *", false},
		{"extra whitespace collapsed", "  0   9 * * 1-5 ", "0 9 * * 1-5", false},
		{"6-field zero seconds stripped", "0 */10 * * * *", "*/10 * * * *", false},
		{"descriptor", "@hourly", "@hourly", false},
		{"every descriptor", "@every 15m", "@every 15m", false},
		{"empty", "", "", true},
		{"sub-minute seconds", "30 * * * * *", "", true},
		{"too few fields", "* * *", "", true},
		{"too many fields", "0 0 0 * * * *", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeCronExpression(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateCron(t *testing.T) {
	assert.NoError(t, ValidateCron("*/5 * * * *"))
	assert.NoError(t, ValidateCron("@daily"))
	assert.Error(t, ValidateCron("61 * * * *"))
	assert.Error(t, ValidateCron("invalid"))
}

func TestNew_InvalidCron(t *testing.T) {
	_, err := New(&mockTrigger{}, config.ScheduleConfig{Cron: "not a cron"})
	assert.Error(t, err)
}

func TestScheduler_IsDue(t *testing.T) {
	s, err := New(&mockTrigger{}, config.ScheduleConfig{Cron: "*/5 * * * *"})
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC)
	s.lastCheck = base

	assert.False(t, s.isDue(base.Add(time.Minute)), "10:02 is before the 10:05 firing")
	assert.True(t, s.isDue(base.Add(4*time.Minute)), "10:05 firing is due")
	assert.False(t, s.isDue(base.Add(5*time.Minute)), "10:05 firing only fires once")
	assert.True(t, s.isDue(base.Add(20*time.Minute)), "missed firings coalesce into one")
	assert.False(t, s.isDue(base.Add(21*time.Minute)))
}

func TestScheduler_CheckTriggersRun(t *testing.T) {
	trigger := &mockTrigger{}
	s, err := New(trigger, config.ScheduleConfig{Cron: "@hourly"})
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	s.lastCheck = now

	s.check(context.Background())
	assert.Equal(t, 0, trigger.count())

	now = now.Add(31 * time.Minute)
	s.check(context.Background())
	require.Equal(t, 1, trigger.count())
	assert.Equal(t, models.RunTriggerSchedule, trigger.triggers[0])
}

func TestScheduler_RunInProgressIsIgnored(t *testing.T) {
	trigger := &mockTrigger{err: pipeline.ErrRunInProgress}
	s, err := New(trigger, config.ScheduleConfig{Cron: "* * * * *"})
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	s.now = func() time.Time { return now }
	s.lastCheck = now.Add(-time.Minute)

	assert.NotPanics(t, func() { s.check(context.Background()) })
	assert.Equal(t, 1, trigger.count())
}

func TestScheduler_StartStop(t *testing.T) {
	trigger := &mockTrigger{}
	s, err := New(trigger, config.ScheduleConfig{Cron: "@every 1s", SyncInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx), "double start should error")

	require.Eventually(t, func() bool { return trigger.count() > 0 }, 3*time.Second, 10*time.Millisecond)
	s.Stop()

	require.NoError(t, s.Start(ctx), "can restart after stop")
	s.Stop()
}

func TestScheduler_Next(t *testing.T) {
	s, err := New(&mockTrigger{}, config.ScheduleConfig{Cron: "0 9 * * *"})
	require.NoError(t, err)

	s.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local) }
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local), s.Next())
}
