package jobs

import (
	"context"
	"log"
	"time"

	"phishguard/internal/reading"
	"phishguard/internal/services"
)

// IdleSessionReaperJob closes reading sessions that have sent no event
// within the idle timeout. Closing the connection triggers the final flush;
// sessions without a connection are flushed and destroyed here.
type IdleSessionReaperJob struct {
	sessions    *services.SessionManager
	idleTimeout time.Duration
	interval    time.Duration
	lastRun     time.Time
	now         func() time.Time
}

// NewIdleSessionReaperJob creates a new idle session reaper
func NewIdleSessionReaperJob(sessions *services.SessionManager, idleTimeout, interval time.Duration) *IdleSessionReaperJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &IdleSessionReaperJob{
		sessions:    sessions,
		idleTimeout: idleTimeout,
		interval:    interval,
		now:         time.Now,
	}
}

// Run closes every idle session
func (j *IdleSessionReaperJob) Run(ctx context.Context) error {
	j.lastRun = j.now()
	if j.idleTimeout <= 0 {
		return nil
	}

	idle := j.sessions.Idle(j.lastRun.Add(-j.idleTimeout))
	for _, s := range idle {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Printf("🧹 [REAPER] Closing idle reading session %s (tracking %s, last activity %s)",
			s.ID, s.TrackingID, s.LastActivity().Format(time.RFC3339))

		if s.Close != nil {
			s.Close()
			continue
		}
		if s.Collector != nil {
			s.Collector.Flush(ctx, reading.TriggerClose)
			s.Collector.Destroy()
		}
		j.sessions.Remove(s.ID)
	}

	if len(idle) > 0 {
		log.Printf("✅ [REAPER] Closed %d idle reading sessions", len(idle))
	}
	return nil
}

// GetNextRunTime returns when this job should next execute
func (j *IdleSessionReaperJob) GetNextRunTime() time.Time {
	if j.lastRun.IsZero() {
		return time.Now().Add(j.interval)
	}
	return j.lastRun.Add(j.interval)
}
