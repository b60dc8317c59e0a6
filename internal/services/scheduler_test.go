package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mescon/motion/internal/db"
	"github.com/mescon/motion/internal/domain"
	"github.com/mescon/motion/internal/testutil"
)

func newTestScheduler(t *testing.T) (*SchedulerService, *registryFixture) {
	t.Helper()
	f := newTestRegistry(t)
	s := NewSchedulerService(f.repo, f.reg, f.eb, SchedulerConfig{
		MaintenanceSchedule: "0 3 * * *",
		RetentionDays:       30,
	})
	s.Start()
	t.Cleanup(s.Stop)
	return s, f
}

// =============================================================================
// NewSchedulerService tests
// =============================================================================

func TestNewSchedulerService(t *testing.T) {
	f := newTestRegistry(t)
	s := NewSchedulerService(f.repo, f.reg, f.eb, SchedulerConfig{})

	require.NotNil(t, s)
	assert.Equal(t, f.repo, s.repo)
	assert.NotNil(t, s.cron, "cron should be initialized")
	assert.NotNil(t, s.jobs, "jobs map should be initialized")
}

func TestSchedulerService_Start_RegistersMaintenance(t *testing.T) {
	s, _ := newTestScheduler(t)

	// The maintenance job is the only entry until a schedule is added
	assert.Len(t, s.cron.Entries(), 1)
	assert.Empty(t, s.Schedules(""))
}

func TestSchedulerService_Start_InvalidMaintenanceSchedule(t *testing.T) {
	f := newTestRegistry(t)
	s := NewSchedulerService(f.repo, f.reg, f.eb, SchedulerConfig{MaintenanceSchedule: "whenever"})
	s.Start()
	defer s.Stop()

	assert.Empty(t, s.cron.Entries())
}

// =============================================================================
// AddSchedule tests
// =============================================================================

func TestSchedulerService_AddSchedule(t *testing.T) {
	s, f := newTestScheduler(t)
	h, err := f.reg.Create(MotionSpec{Target: 1})
	require.NoError(t, err)
	id := h.ID().String()

	schedID, err := s.AddSchedule(id, "*/5 * * * *")
	require.NoError(t, err)
	assert.Greater(t, schedID, int64(0))

	list := s.Schedules(id)
	require.Len(t, list, 1)
	assert.Equal(t, schedID, list[0].ID)
	assert.Equal(t, id, list[0].MotionID)
	assert.Equal(t, "*/5 * * * *", list[0].CronExpression)
	assert.False(t, list[0].NextRun.IsZero(), "next run should be computed")

	stored, err := f.repo.LoadSchedules()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, id, stored[0].MotionID)
}

func TestSchedulerService_AddSchedule_InvalidCron(t *testing.T) {
	s, f := newTestScheduler(t)
	h, err := f.reg.Create(MotionSpec{Target: 1})
	require.NoError(t, err)

	for _, expr := range []string{"", "not a cron", "* * *", "61 * * * *"} {
		_, err := s.AddSchedule(h.ID().String(), expr)
		assert.ErrorIs(t, err, ErrInvalidCron, "expr %q", expr)
	}
	assert.Empty(t, s.Schedules(""))
}

func TestSchedulerService_AddSchedule_UnknownMotion(t *testing.T) {
	s, _ := newTestScheduler(t)

	_, err := s.AddSchedule("00000000-0000-0000-0000-000000000001", "@hourly")
	assert.ErrorIs(t, err, ErrMotionNotFound)
}

func TestSchedulerService_JobStartsMotion(t *testing.T) {
	s, f := newTestScheduler(t)
	h, err := f.reg.Create(MotionSpec{Target: 7, DurationMs: ms(0)})
	require.NoError(t, err)

	schedID, err := s.AddSchedule(h.ID().String(), "@daily")
	require.NoError(t, err)

	s.mu.Lock()
	job := s.jobs[schedID]
	s.mu.Unlock()
	s.cron.Entry(job.entryID).Job.Run()

	require.Eventually(t, func() bool {
		return f.eb.EventCount(domain.MotionCompleted) == 1
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, float32(7), h.Value())
}

// =============================================================================
// DeleteSchedule tests
// =============================================================================

func TestSchedulerService_DeleteSchedule(t *testing.T) {
	s, f := newTestScheduler(t)
	h, err := f.reg.Create(MotionSpec{Target: 1})
	require.NoError(t, err)

	schedID, err := s.AddSchedule(h.ID().String(), "@hourly")
	require.NoError(t, err)

	require.NoError(t, s.DeleteSchedule(schedID))
	assert.Empty(t, s.Schedules(""))
	assert.Len(t, s.cron.Entries(), 1, "only the maintenance job should remain")

	assert.ErrorIs(t, s.DeleteSchedule(schedID), ErrScheduleNotFound)
}

// =============================================================================
// LoadSchedules tests
// =============================================================================

func TestSchedulerService_LoadSchedules(t *testing.T) {
	f := newTestRegistry(t)
	h, err := f.reg.Create(MotionSpec{Target: 1})
	require.NoError(t, err)
	_, err = f.repo.SaveSchedule(h.ID().String(), "@hourly")
	require.NoError(t, err)

	// A stored motion that is not registered: its schedule is skipped
	orphan := "00000000-0000-0000-0000-0000000000cc"
	require.NoError(t, f.repo.SaveMotion(db.MotionRecord{ID: orphan, Target: 1, Easing: "linear"}))
	_, err = f.repo.SaveSchedule(orphan, "@hourly")
	require.NoError(t, err)

	s := NewSchedulerService(f.repo, f.reg, f.eb, SchedulerConfig{})
	require.NoError(t, s.LoadSchedules())

	list := s.Schedules("")
	require.Len(t, list, 1)
	assert.Equal(t, h.ID().String(), list[0].MotionID)

	// Reloading replaces rather than duplicates
	require.NoError(t, s.LoadSchedules())
	assert.Len(t, s.Schedules(""), 1)
}

func TestSchedulerService_RemovedMotionIsUnscheduled(t *testing.T) {
	s, f := newTestScheduler(t)
	a, err := f.reg.Create(MotionSpec{Target: 1})
	require.NoError(t, err)
	b, err := f.reg.Create(MotionSpec{Target: 2})
	require.NoError(t, err)

	_, err = s.AddSchedule(a.ID().String(), "@hourly")
	require.NoError(t, err)
	_, err = s.AddSchedule(b.ID().String(), "@hourly")
	require.NoError(t, err)

	// MockEventBus delivers MotionRemoved synchronously
	require.NoError(t, f.reg.Remove(a.ID().String()))

	list := s.Schedules("")
	require.Len(t, list, 1)
	assert.Equal(t, b.ID().String(), list[0].MotionID)

	stored, err := f.repo.LoadSchedules()
	require.NoError(t, err)
	assert.Len(t, stored, 1, "schedule rows cascade with the motion")
}

func TestSchedulerService_RunMaintenance(t *testing.T) {
	s, f := newTestScheduler(t)

	old := testutil.NewStartedEvent(0, 1, testutil.WithCreatedAt(time.Now().AddDate(0, 0, -60)))
	_, err := testutil.SeedEvent(f.repo.DB, old)
	require.NoError(t, err)

	s.runMaintenance()

	count, err := testutil.CountEventsByType(f.repo.DB, domain.MotionStarted)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "events past retention should be pruned")
}
