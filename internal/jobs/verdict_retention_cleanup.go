package jobs

import (
	"context"
	"log"
	"time"
)

// VerdictPruner deletes stored verdicts last updated before a cutoff
type VerdictPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// VerdictRetentionJob deletes reading verdicts older than the retention window
type VerdictRetentionJob struct {
	verdicts      VerdictPruner
	retentionDays int
	now           func() time.Time
}

// NewVerdictRetentionJob creates a new verdict retention job. A non-positive
// retention keeps verdicts forever.
func NewVerdictRetentionJob(verdicts VerdictPruner, retentionDays int) *VerdictRetentionJob {
	return &VerdictRetentionJob{
		verdicts:      verdicts,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// Run deletes expired verdicts
func (j *VerdictRetentionJob) Run(ctx context.Context) error {
	if j.verdicts == nil || j.retentionDays <= 0 {
		return nil
	}

	cutoff := j.now().UTC().AddDate(0, 0, -j.retentionDays)
	deleted, err := j.verdicts.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	log.Printf("[RETENTION] Deleted %d reading verdicts older than %s", deleted, cutoff.Format("2006-01-02"))
	return nil
}

// GetNextRunTime returns when the job should run next (daily at 3 AM UTC)
func (j *VerdictRetentionJob) GetNextRunTime() time.Time {
	now := j.now().UTC()
	nextRun := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, time.UTC)
	if !now.Before(nextRun) {
		nextRun = nextRun.Add(24 * time.Hour)
	}
	return nextRun
}
