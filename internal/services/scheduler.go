package services

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mescon/motion/internal/db"
	"github.com/mescon/motion/internal/domain"
	"github.com/mescon/motion/internal/eventbus"
	"github.com/mescon/motion/internal/logger"
)

// ErrInvalidCron is returned for expressions cron.ParseStandard rejects.
var ErrInvalidCron = errors.New("invalid cron expression")

// ErrScheduleNotFound is returned for unknown schedule IDs.
var ErrScheduleNotFound = errors.New("schedule not found")

// ScheduleInfo describes a cron job that starts a motion.
type ScheduleInfo struct {
	ID             int64     `json:"id"`
	MotionID       string    `json:"motion_id"`
	CronExpression string    `json:"cron_expression"`
	NextRun        time.Time `json:"next_run"`
}

// SchedulerConfig holds the maintenance settings.
type SchedulerConfig struct {
	// MaintenanceSchedule is a standard cron expression; empty disables maintenance.
	MaintenanceSchedule string
	// RetentionDays is passed to RunMaintenance; 0 keeps every event.
	RetentionDays int
}

type scheduledJob struct {
	entryID  cron.EntryID
	motionID string
	expr     string
}

type SchedulerService struct {
	repo     *db.Repository
	registry *MotionRegistry
	eb       eventbus.Publisher
	cfg      SchedulerConfig
	cron     *cron.Cron
	jobs     map[int64]scheduledJob
	mu       sync.Mutex
}

func NewSchedulerService(repo *db.Repository, registry *MotionRegistry, eb eventbus.Publisher, cfg SchedulerConfig) *SchedulerService {
	return &SchedulerService{
		repo:     repo,
		registry: registry,
		eb:       eb,
		cfg:      cfg,
		cron:     cron.New(),
		jobs:     make(map[int64]scheduledJob),
	}
}

func (s *SchedulerService) Start() {
	logger.Infof("Starting Scheduler Service...")
	if s.eb != nil {
		s.eb.Subscribe(domain.MotionRemoved, func(e domain.Event) {
			s.dropMotion(e.AggregateID)
		})
	}
	if s.cfg.MaintenanceSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.MaintenanceSchedule, s.runMaintenance); err != nil {
			logger.Errorf("Invalid maintenance schedule %q: %v", s.cfg.MaintenanceSchedule, err)
		}
	}
	s.cron.Start()
	if err := s.LoadSchedules(); err != nil {
		logger.Errorf("Failed to load schedules: %v", err)
	}
}

// Stop halts the cron runner and waits for running jobs.
func (s *SchedulerService) Stop() {
	<-s.cron.Stop().Done()
}

func (s *SchedulerService) runMaintenance() {
	logger.Infof("Running scheduled database maintenance")
	if err := s.repo.RunMaintenance(s.cfg.RetentionDays); err != nil {
		logger.Errorf("Database maintenance failed: %v", err)
	}
}

// LoadSchedules replaces the running jobs with the enabled schedules in the
// database. Schedules for motions that are not registered are skipped.
func (s *SchedulerService) LoadSchedules() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Clear existing jobs
	for _, job := range s.jobs {
		s.cron.Remove(job.entryID)
	}
	s.jobs = make(map[int64]scheduledJob)

	records, err := s.repo.LoadSchedules()
	if err != nil {
		return err
	}

	count := 0
	for _, rec := range records {
		if err := s.addJob(rec.ID, rec.MotionID, rec.CronExpression); err != nil {
			logger.Errorf("Failed to add job for schedule %d: %v", rec.ID, err)
			continue
		}
		count++
	}
	logger.Infof("Loaded %d active motion schedules", count)
	return nil
}

func (s *SchedulerService) addJob(scheduleID int64, motionID, cronExpr string) error {
	if _, err := s.registry.Handle(motionID); err != nil {
		return fmt.Errorf("motion %s: %w", motionID, err)
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		logger.Infof("Executing scheduled start for motion %s (Schedule ID: %d)", motionID, scheduleID)
		if err := s.registry.Start(motionID); err != nil {
			logger.Errorf("Scheduled start failed for motion %s: %v", motionID, err)
		}
	})
	if err != nil {
		return err
	}

	s.jobs[scheduleID] = scheduledJob{entryID: entryID, motionID: motionID, expr: cronExpr}
	return nil
}

// AddSchedule stores a cron expression that starts motionID and schedules it.
func (s *SchedulerService) AddSchedule(motionID, cronExpr string) (int64, error) {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCron, err)
	}
	if _, err := s.registry.Handle(motionID); err != nil {
		return 0, err
	}

	id, err := s.repo.SaveSchedule(motionID, cronExpr)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.addJob(id, motionID, cronExpr); err != nil {
		return id, fmt.Errorf("saved to DB but failed to schedule: %w", err)
	}
	return id, nil
}

// DeleteSchedule removes a schedule from the database and the cron runner.
func (s *SchedulerService) DeleteSchedule(id int64) error {
	if err := s.repo.DeleteSchedule(id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrScheduleNotFound
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		s.cron.Remove(job.entryID)
		delete(s.jobs, id)
	}
	return nil
}

// Schedules returns the active jobs for motionID, or every job when
// motionID is empty, ordered by ID.
func (s *SchedulerService) Schedules(motionID string) []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ScheduleInfo, 0, len(s.jobs))
	for id, job := range s.jobs {
		if motionID != "" && job.motionID != motionID {
			continue
		}
		out = append(out, ScheduleInfo{
			ID:             id,
			MotionID:       job.motionID,
			CronExpression: job.expr,
			NextRun:        s.cron.Entry(job.entryID).Next,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// dropMotion unschedules every job of a removed motion. The rows go with the
// motion through the foreign key.
func (s *SchedulerService) dropMotion(motionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.motionID == motionID {
			s.cron.Remove(job.entryID)
			delete(s.jobs, id)
			logger.Debugf("Unscheduled schedule %d of removed motion %s", id, motionID)
		}
	}
}
