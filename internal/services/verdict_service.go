package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"phishguard/internal/database"
	"phishguard/internal/models"
	"phishguard/internal/reading"
)

// Verdict messages returned to the reporting client
const (
	VerdictRecordedText = "Reading verdict recorded"
	FastReadWarningText = "It looks like this was read very quickly. Please take a moment to review the content carefully."
)

// PolicySource provides the live evaluation policy
type PolicySource interface {
	Current() (reading.Policy, reading.Thresholds)
}

// TrainingScheduler schedules reinforced training for flagged readers
type TrainingScheduler interface {
	ScheduleReinforcement(ctx context.Context, trackingID, reason string) (bool, error)
}

// VerdictService records reading reports and serves the latest verdict per
// tracking id. The verdict is recomputed here; the client's fastRead is only
// kept for comparison.
type VerdictService struct {
	db        *database.DB
	policies  PolicySource
	cache     *cache.Cache
	metrics   *Metrics
	analytics *AnalyticsService
	publisher Publisher
	training  TrainingScheduler
	now       func() time.Time
}

// NewVerdictService creates a new verdict service
func NewVerdictService(db *database.DB, policies PolicySource) *VerdictService {
	return &VerdictService{
		db:       db,
		policies: policies,
		cache:    cache.New(10*time.Minute, 20*time.Minute),
		now:      time.Now,
	}
}

// SetMetrics sets the metrics sink
func (s *VerdictService) SetMetrics(m *Metrics) { s.metrics = m }

// SetAnalytics sets the snapshot history sink
func (s *VerdictService) SetAnalytics(a *AnalyticsService) { s.analytics = a }

// SetPublisher sets the event publisher
func (s *VerdictService) SetPublisher(p Publisher) { s.publisher = p }

// SetTrainingScheduler sets the reinforced training scheduler
func (s *VerdictService) SetTrainingScheduler(t TrainingScheduler) { s.training = t }

// ValidateReport checks a received report
func ValidateReport(r models.ReadingReport) error {
	if strings.TrimSpace(r.TrackingID) == "" {
		return fmt.Errorf("%w: trackingId is required", ErrInvalidReport)
	}
	numbers := map[string]float64{
		"timeSpent":      r.TimeSpent,
		"scrollDepth":    r.ScrollDepth,
		"focusTime":      r.FocusTime,
		"secondsPerWord": r.SecondsPerWord,
		"wordsPerMinute": r.WordsPerMinute,
	}
	for name, v := range numbers {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidReport, name)
		}
	}
	if r.WordCount < 0 || r.BlurCount < 0 || r.ScrollEvents < 0 {
		return fmt.Errorf("%w: counts must be non-negative", ErrInvalidReport)
	}
	return nil
}

// Report implements reading.Reporter for in-process delivery
func (s *VerdictService) Report(ctx context.Context, report models.ReadingReport) (*models.ReadingVerdictResponse, error) {
	return s.Submit(ctx, report)
}

// Submit validates a report, recomputes the verdict and stores it as the
// latest verdict for the tracking id
func (s *VerdictService) Submit(ctx context.Context, report models.ReadingReport) (*models.ReadingVerdictResponse, error) {
	if err := ValidateReport(report); err != nil {
		return nil, err
	}
	report.TrackingID = strings.TrimSpace(report.TrackingID)

	policy, thresholds := s.policies.Current()
	verdict := reading.Evaluate(policy, reading.SignalsFromReport(report, thresholds.MinSecondsPerWord))

	if verdict.FastRead != report.FastRead {
		log.Printf("⚠️  [VERDICT] Client/server disagreement for %s: client=%t server=%t policy=%s",
			report.TrackingID, report.FastRead, verdict.FastRead, verdict.Policy)
		s.metrics.RecordDisagreement()
	}

	record, err := s.store(ctx, report, verdict)
	if err != nil {
		s.metrics.RecordReportFailure("store")
		return nil, err
	}

	s.cache.Set(record.TrackingID, record, cache.DefaultExpiration)
	s.metrics.RecordVerdict(verdict.Policy, verdict.FastRead, verdict.Reason, verdict.SecondsPerWord)

	// Optional sinks never fail the report
	if err := s.analytics.RecordSnapshot(ctx, report, record); err != nil {
		s.metrics.RecordReportFailure("analytics")
	}
	s.publish(ctx, record)

	if verdict.FastRead && s.training != nil {
		if _, err := s.training.ScheduleReinforcement(ctx, record.TrackingID, verdict.Reason); err != nil {
			log.Printf("⚠️  [VERDICT] Failed to schedule reinforced training for %s: %v", record.TrackingID, err)
			s.metrics.RecordReportFailure("training")
		}
	}

	resp := &models.ReadingVerdictResponse{
		Success:  true,
		FastRead: verdict.FastRead,
		Message:  VerdictRecordedText,
		Reason:   verdict.Reason,
	}
	if verdict.FastRead {
		resp.Message = FastReadWarningText
	}
	return resp, nil
}

func (s *VerdictService) store(ctx context.Context, report models.ReadingReport, v reading.Verdict) (*models.ReadingVerdictRecord, error) {
	now := s.now().UTC().Truncate(time.Second)
	db := s.db

	columns := []string{
		"time_spent_seconds", "word_count", "scroll_depth_percent", "focus_time_seconds",
		"blur_count", "seconds_per_word", "words_per_minute", "fast_read",
		"client_fast_read", "reason", "policy", "updated_at",
	}
	assignments := make([]string, 0, len(columns)+1)
	for _, col := range columns {
		assignments = append(assignments, col+" = "+db.Excluded(col))
	}
	assignments = append(assignments, "report_count = report_count + 1")

	query := `INSERT INTO reading_verdicts (
			tracking_id, ` + strings.Join(columns, ", ") + `, report_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?) ` +
		db.OnConflict("tracking_id") + " " + strings.Join(assignments, ", ")

	_, err := db.ExecContext(ctx, query,
		report.TrackingID,
		v.TimeSpentSeconds, v.WordCount, v.ScrollDepthPercent, v.FocusTimeSeconds,
		v.BlurCount, v.SecondsPerWord, v.WordsPerMinute, v.FastRead,
		report.FastRead, v.Reason, v.Policy, now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store reading verdict: %w", err)
	}

	return s.load(ctx, report.TrackingID)
}

// Latest returns the latest verdict for a tracking id
func (s *VerdictService) Latest(ctx context.Context, trackingID string) (*models.ReadingVerdictRecord, error) {
	trackingID = strings.TrimSpace(trackingID)
	if cached, ok := s.cache.Get(trackingID); ok {
		record := *cached.(*models.ReadingVerdictRecord)
		return &record, nil
	}

	record, err := s.load(ctx, trackingID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(trackingID, record, cache.DefaultExpiration)

	copied := *record
	return &copied, nil
}

func (s *VerdictService) load(ctx context.Context, trackingID string) (*models.ReadingVerdictRecord, error) {
	var r models.ReadingVerdictRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT tracking_id, time_spent_seconds, word_count, scroll_depth_percent, focus_time_seconds,
			blur_count, seconds_per_word, words_per_minute, fast_read, client_fast_read,
			reason, policy, report_count, created_at, updated_at
		FROM reading_verdicts WHERE tracking_id = ?
	`, trackingID).Scan(
		&r.TrackingID, &r.TimeSpentSeconds, &r.WordCount, &r.ScrollDepthPercent, &r.FocusTimeSeconds,
		&r.BlurCount, &r.SecondsPerWord, &r.WordsPerMinute, &r.FastRead, &r.ClientFastRead,
		&r.Reason, &r.Policy, &r.ReportCount, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVerdictNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reading verdict: %w", err)
	}
	return &r, nil
}

// Invalidate drops the cached verdict, e.g. after another instance recorded one
func (s *VerdictService) Invalidate(trackingID string) {
	s.cache.Delete(trackingID)
}

// DeleteOlderThan removes verdicts not updated since cutoff
func (s *VerdictService) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM reading_verdicts WHERE updated_at < ?", cutoff.UTC().Truncate(time.Second))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old verdicts: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		s.cache.Flush()
	}
	return n, nil
}

func (s *VerdictService) publish(ctx context.Context, r *models.ReadingVerdictRecord) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, ChannelReadingVerdicts, MessageVerdictRecorded, r.TrackingID, map[string]interface{}{
		"fastRead":       r.FastRead,
		"reason":         r.Reason,
		"policy":         r.Policy,
		"secondsPerWord": r.SecondsPerWord,
		"reportCount":    r.ReportCount,
	})
	if err != nil {
		log.Printf("⚠️  [VERDICT] Failed to publish verdict for %s: %v", r.TrackingID, err)
		s.metrics.RecordReportFailure("publish")
	}
}
