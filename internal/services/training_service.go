package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"phishguard/internal/database"
	"phishguard/internal/models"
)

const digestLockKey = "lock:training:digest"

// TrainingService schedules reinforced training for readers whose verdict
// was flagged. One assignment exists per tracking id.
type TrainingService struct {
	scheduler  gocron.Scheduler
	db         *database.DB
	delay      time.Duration
	digestCron string

	publisher  Publisher
	analytics  *AnalyticsService
	metrics    *Metrics
	redis      *RedisService
	instanceID string
	now        func() time.Time
}

// ParseDigestCron validates a standard five-field cron expression
func ParseDigestCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidCron, expr, err)
	}
	return schedule, nil
}

// NewTrainingService creates a new training service
func NewTrainingService(db *database.DB, delay time.Duration, digestCron string) (*TrainingService, error) {
	if digestCron != "" {
		if _, err := ParseDigestCron(digestCron); err != nil {
			return nil, err
		}
	}

	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &TrainingService{
		scheduler:  scheduler,
		db:         db,
		delay:      delay,
		digestCron: strings.TrimSpace(digestCron),
		instanceID: uuid.New().String(),
		now:        time.Now,
	}, nil
}

// SetPublisher sets the event publisher
func (s *TrainingService) SetPublisher(p Publisher) { s.publisher = p }

// SetAnalytics sets the snapshot source for the digest
func (s *TrainingService) SetAnalytics(a *AnalyticsService) { s.analytics = a }

// SetMetrics sets the metrics sink
func (s *TrainingService) SetMetrics(m *Metrics) { s.metrics = m }

// SetRedis enables the cross-instance digest lock
func (s *TrainingService) SetRedis(r *RedisService) { s.redis = r }

// Start registers the digest job, re-arms pending assignments and starts the scheduler
func (s *TrainingService) Start(ctx context.Context) error {
	log.Println("⏰ [TRAINING] Starting training scheduler...")

	if s.digestCron != "" {
		if _, err := s.scheduler.NewJob(
			gocron.CronJob(s.digestCron, false),
			gocron.NewTask(func() {
				if err := s.RunDigest(context.Background()); err != nil {
					log.Printf("⚠️  [TRAINING] Digest failed: %v", err)
				}
			}),
			gocron.WithName("training-digest"),
		); err != nil {
			return fmt.Errorf("failed to register digest job: %w", err)
		}
	}

	pending, err := s.Pending(ctx)
	if err != nil {
		return err
	}
	for _, a := range pending {
		if err := s.scheduleAssignment(a.TrackingID, a.DueAt); err != nil {
			log.Printf("⚠️  [TRAINING] Failed to re-arm assignment for %s: %v", a.TrackingID, err)
		}
	}

	s.scheduler.Start()
	log.Printf("✅ [TRAINING] Training scheduler started (%d pending assignments)", len(pending))
	return nil
}

// Stop stops the scheduler
func (s *TrainingService) Stop() error {
	log.Println("⏹️ [TRAINING] Stopping training scheduler...")
	return s.scheduler.Shutdown()
}

// ScheduleReinforcement creates a pending assignment due after the configured
// delay. Returns false when the tracking id already has one.
func (s *TrainingService) ScheduleReinforcement(ctx context.Context, trackingID, reason string) (bool, error) {
	trackingID = strings.TrimSpace(trackingID)
	if trackingID == "" {
		return false, fmt.Errorf("%w: trackingId is required", ErrInvalidReport)
	}

	now := s.now().UTC().Truncate(time.Second)
	dueAt := now.Add(s.delay)

	result, err := s.db.ExecContext(ctx, s.db.InsertIgnore()+` INTO training_assignments
		(tracking_id, reason, status, due_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		trackingID, reason, models.TrainingStatusPending, dueAt, now)
	if err != nil {
		return false, fmt.Errorf("failed to create training assignment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return false, nil
	}

	s.metrics.RecordTrainingAssignment(models.TrainingStatusPending)
	log.Printf("📅 [TRAINING] Reinforced training for %s due %s (reason: %s)", trackingID, dueAt.Format(time.RFC3339), reason)

	if err := s.scheduleAssignment(trackingID, dueAt); err != nil {
		return true, err
	}

	s.publish(ctx, MessageTrainingScheduled, trackingID, map[string]interface{}{
		"reason": reason,
		"dueAt":  dueAt,
	})
	return true, nil
}

func (s *TrainingService) scheduleAssignment(trackingID string, dueAt time.Time) error {
	start := gocron.OneTimeJobStartDateTime(dueAt)
	if !dueAt.After(s.now()) {
		start = gocron.OneTimeJobStartImmediately()
	}

	_, err := s.scheduler.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(func() {
			if _, err := s.Assign(context.Background(), trackingID); err != nil {
				log.Printf("⚠️  [TRAINING] Failed to assign training for %s: %v", trackingID, err)
			}
		}),
		gocron.WithName("training-"+trackingID),
		gocron.WithTags(trackingID),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule training job: %w", err)
	}
	return nil
}

// Assign moves a pending assignment to assigned. Returns false when it was
// not pending.
func (s *TrainingService) Assign(ctx context.Context, trackingID string) (bool, error) {
	now := s.now().UTC().Truncate(time.Second)
	result, err := s.db.ExecContext(ctx,
		`UPDATE training_assignments SET status = ?, assigned_at = ? WHERE tracking_id = ? AND status = ?`,
		models.TrainingStatusAssigned, now, trackingID, models.TrainingStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to assign training: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return false, nil
	}

	s.metrics.RecordTrainingAssignment(models.TrainingStatusAssigned)
	log.Printf("✅ [TRAINING] Reinforced training assigned for %s", trackingID)

	s.publish(ctx, MessageTrainingAssigned, trackingID, map[string]interface{}{
		"assignedAt": now,
	})
	return true, nil
}

// Cancel withdraws a pending assignment
func (s *TrainingService) Cancel(ctx context.Context, trackingID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE training_assignments SET status = ? WHERE tracking_id = ? AND status = ?`,
		models.TrainingStatusCancelled, trackingID, models.TrainingStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to cancel training: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		s.scheduler.RemoveByTags(trackingID)
		s.metrics.RecordTrainingAssignment(models.TrainingStatusCancelled)
	}
	return n > 0, nil
}

// Assignment returns the assignment for a tracking id
func (s *TrainingService) Assignment(ctx context.Context, trackingID string) (*models.TrainingAssignment, error) {
	rows, err := s.query(ctx, "WHERE tracking_id = ?", strings.TrimSpace(trackingID))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrAssignmentNotFound
	}
	return &rows[0], nil
}

// Pending returns all assignments still waiting to be assigned, soonest first
func (s *TrainingService) Pending(ctx context.Context) ([]models.TrainingAssignment, error) {
	return s.query(ctx, "WHERE status = ? ORDER BY due_at ASC", models.TrainingStatusPending)
}

func (s *TrainingService) query(ctx context.Context, where string, args ...interface{}) ([]models.TrainingAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tracking_id, reason, status, due_at, assigned_at, created_at
		FROM training_assignments `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query training assignments: %w", err)
	}
	defer rows.Close()

	var assignments []models.TrainingAssignment
	for rows.Next() {
		var a models.TrainingAssignment
		var assignedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.TrackingID, &a.Reason, &a.Status, &a.DueAt, &assignedAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan training assignment: %w", err)
		}
		if assignedAt.Valid {
			t := assignedAt.Time
			a.AssignedAt = &t
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// RunDigest summarises the last week of assignments and flagged reads. With
// Redis configured only one instance runs it per schedule tick.
func (s *TrainingService) RunDigest(ctx context.Context) error {
	if s.redis != nil {
		acquired, err := s.redis.AcquireLock(ctx, digestLockKey, s.instanceID, 10*time.Minute)
		if err != nil {
			return fmt.Errorf("failed to acquire digest lock: %w", err)
		}
		if !acquired {
			log.Println("⏭️ [TRAINING] Digest already running on another instance")
			return nil
		}
		defer s.redis.ReleaseLock(context.Background(), digestLockKey, s.instanceID)
	}

	since := s.now().UTC().Add(-7 * 24 * time.Hour).Truncate(time.Second)

	counts := make(map[string]int64)
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM training_assignments WHERE created_at >= ? GROUP BY status`, since)
	if err != nil {
		return fmt.Errorf("failed to count assignments: %w", err)
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan assignment count: %w", err)
		}
		counts[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	flagged, err := s.analytics.FlaggedByReason(ctx, since)
	if err != nil {
		log.Printf("⚠️  [TRAINING] Digest without analytics: %v", err)
		flagged = map[string]int64{}
	}

	log.Printf("📊 [TRAINING] Weekly digest: pending=%d assigned=%d cancelled=%d flagged=%v",
		counts[models.TrainingStatusPending], counts[models.TrainingStatusAssigned],
		counts[models.TrainingStatusCancelled], flagged)

	s.publish(ctx, MessageTrainingDigestDone, "", map[string]interface{}{
		"since":       since,
		"assignments": counts,
		"flagged":     flagged,
	})
	return nil
}

func (s *TrainingService) publish(ctx context.Context, msgType, trackingID string, payload map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ChannelTrainingAssignments, msgType, trackingID, payload); err != nil {
		log.Printf("⚠️  [TRAINING] Failed to publish %s: %v", msgType, err)
	}
}
