package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherpanel/backend/internal/config"
	"github.com/featherpanel/backend/internal/models"
)

func newTestScheduler(t *testing.T) *SnapshotSchedulerService {
	t.Helper()
	return NewSnapshotSchedulerService(&config.Config{StorageRoot: t.TempDir()}, nil)
}

func TestCalculateNextRun(t *testing.T) {
	schedule := &models.SnapshotSchedule{Name: "nightly", CronExpr: "0 3 * * *"}

	next, err := CalculateNextRun(schedule)
	require.NoError(t, err)
	assert.Equal(t, 3, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.True(t, next.After(time.Now()))
}

func TestCalculateNextRunInvalidExpression(t *testing.T) {
	schedule := &models.SnapshotSchedule{Name: "broken", CronExpr: "not a cron"}

	_, err := CalculateNextRun(schedule)
	assert.Error(t, err)
}

func TestIsDue(t *testing.T) {
	svc := newTestScheduler(t)
	now := time.Date(2025, 6, 15, 3, 0, 30, 0, time.UTC)

	nightly := &models.SnapshotSchedule{Name: "nightly", CronExpr: "0 3 * * *"}
	assert.True(t, svc.isDue(nightly, now))

	// Not the scheduled minute.
	assert.False(t, svc.isDue(nightly, now.Add(time.Minute)))
	assert.False(t, svc.isDue(nightly, now.Add(time.Hour)))

	// Already ran inside this minute window.
	lastRun := time.Date(2025, 6, 15, 3, 0, 5, 0, time.UTC)
	ran := &models.SnapshotSchedule{Name: "nightly", CronExpr: "0 3 * * *", LastRunAt: &lastRun}
	assert.False(t, svc.isDue(ran, now))

	// A run from a previous window does not block this one.
	previous := time.Date(2025, 6, 14, 3, 0, 5, 0, time.UTC)
	rested := &models.SnapshotSchedule{Name: "nightly", CronExpr: "0 3 * * *", LastRunAt: &previous}
	assert.True(t, svc.isDue(rested, now))

	invalid := &models.SnapshotSchedule{Name: "broken", CronExpr: "bad"}
	assert.False(t, svc.isDue(invalid, now))
}

func TestIsDueEveryMinute(t *testing.T) {
	svc := newTestScheduler(t)
	every := &models.SnapshotSchedule{Name: "every-minute", CronExpr: "* * * * *"}

	now := time.Date(2025, 6, 15, 12, 34, 10, 0, time.UTC)
	assert.True(t, svc.isDue(every, now))
}
