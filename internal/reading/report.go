package reading

import (
	"context"

	"phishguard/internal/models"
)

// Trigger names what caused a flush
type Trigger string

const (
	TriggerPeriodic     Trigger = "periodic"
	TriggerBeforeUnload Trigger = "beforeunload"
	TriggerPageHide     Trigger = "pagehide"
	TriggerHidden       Trigger = "hidden"
	TriggerClose        Trigger = "close"
	TriggerManual       Trigger = "manual"
)

// Reporter delivers a verdict report to the reporting collaborator.
// The returned response carries the collaborator's authoritative fastRead.
type Reporter interface {
	Report(ctx context.Context, report models.ReadingReport) (*models.ReadingVerdictResponse, error)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(ctx context.Context, report models.ReadingReport) (*models.ReadingVerdictResponse, error)

// Report calls f
func (f ReporterFunc) Report(ctx context.Context, report models.ReadingReport) (*models.ReadingVerdictResponse, error) {
	return f(ctx, report)
}

// NewReport builds the wire payload for a snapshot and its verdict
func NewReport(s Snapshot, v Verdict, trigger Trigger) models.ReadingReport {
	opened, closed := s.OpenedAt, s.ClosedAt
	r := models.ReadingReport{
		TrackingID:     s.TrackingID,
		TimeSpent:      v.TimeSpentSeconds,
		WordCount:      v.WordCount,
		ScrollDepth:    v.ScrollDepthPercent,
		FocusTime:      v.FocusTimeSeconds,
		SecondsPerWord: v.SecondsPerWord,
		FastRead:       v.FastRead,
		BlurCount:      v.BlurCount,
		ScrollEvents:   s.ScrollEvents,
		WordsPerMinute: v.WordsPerMinute,
		Reason:         v.Reason,
		Policy:         v.Policy,
		Trigger:        string(trigger),
	}
	if !opened.IsZero() {
		r.OpenedAt = &opened
	}
	if !closed.IsZero() {
		r.ClosedAt = &closed
	}
	return r
}

// SignalsFromReport rebuilds evaluator input from a received report so the
// collaborator can recompute the verdict with its own threshold.
func SignalsFromReport(r models.ReadingReport, minSecondsPerWord float64) Signals {
	return Signals{
		TimeSpentSeconds:   r.TimeSpent,
		FocusTimeSeconds:   r.FocusTime,
		ScrollDepthPercent: r.ScrollDepth,
		WordCount:          r.WordCount,
		BlurCount:          r.BlurCount,
		ScrollEvents:       r.ScrollEvents,
		MinSecondsPerWord:  minSecondsPerWord,
	}
}
