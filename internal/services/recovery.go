package services

import (
	"github.com/mescon/motion/internal/db"
	"github.com/mescon/motion/internal/domain"
	"github.com/mescon/motion/internal/logger"
)

// RecoveryService restarts runs that were in flight when the process stopped.
// A run is in flight when the journal holds a MotionStarted or
// MotionRestarted for it with no later MotionCompleted or MotionRemoved.
type RecoveryService struct {
	repo     *db.Repository
	registry *MotionRegistry
}

// NewRecoveryService creates a new recovery service.
func NewRecoveryService(repo *db.Repository, registry *MotionRegistry) *RecoveryService {
	return &RecoveryService{repo: repo, registry: registry}
}

// InterruptedMotions returns the IDs of motions whose last run never
// completed, in the order the runs began.
func (s *RecoveryService) InterruptedMotions() ([]string, error) {
	// Event IDs are autoincrement, so they order events more reliably than
	// created_at, which can collide within a millisecond.
	rows, err := db.QueryWithRetry(s.repo.DB, `
		SELECT e.aggregate_id
		FROM events e
		WHERE e.aggregate_type = ?
		AND e.event_type IN (?, ?)
		AND NOT EXISTS (
			SELECT 1 FROM events e2
			WHERE e2.aggregate_id = e.aggregate_id
			AND e2.event_type IN (?, ?)
			AND e2.id > e.id
		)
		GROUP BY e.aggregate_id
		ORDER BY MIN(e.id) ASC
	`, domain.AggregateMotion,
		domain.MotionStarted, domain.MotionRestarted,
		domain.MotionCompleted, domain.MotionRemoved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			logger.Warnf("Failed to scan interrupted motion: %v", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResumeInterrupted starts every interrupted motion that is still
// registered. It should be called after Restore. Returns the number resumed.
func (s *RecoveryService) ResumeInterrupted() (int, error) {
	ids, err := s.InterruptedMotions()
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, id := range ids {
		if err := s.registry.Start(id); err != nil {
			logger.Debugf("Not resuming motion %s: %v", id, err)
			continue
		}
		resumed++
		logger.Infof("Resumed interrupted motion %s", id)
	}
	if resumed > 0 {
		logger.Infof("Recovery complete: %d interrupted runs resumed", resumed)
	}
	return resumed, nil
}
