package reading

import (
	"math"
	"time"
)

// Snapshot is the frozen state of a session at one finalize call.
type Snapshot struct {
	TrackingID         string
	OpenedAt           time.Time
	ClosedAt           time.Time
	WordCount          int
	FocusTime          time.Duration // includes the in-flight focus interval
	ScrollDepthPercent float64
	BlurCount          int
	ScrollEvents       int
	MinSecondsPerWord  float64
}

// TimeSpentSeconds is the wall-clock time between open and this finalize
func (s Snapshot) TimeSpentSeconds() float64 {
	if s.ClosedAt.Before(s.OpenedAt) {
		return 0
	}
	return s.ClosedAt.Sub(s.OpenedAt).Seconds()
}

// FocusTimeSeconds is the accumulated focused time in seconds
func (s Snapshot) FocusTimeSeconds() float64 {
	if s.FocusTime < 0 {
		return 0
	}
	return s.FocusTime.Seconds()
}

// Signals converts the snapshot into evaluator input
func (s Snapshot) Signals() Signals {
	return Signals{
		TimeSpentSeconds:   s.TimeSpentSeconds(),
		FocusTimeSeconds:   s.FocusTimeSeconds(),
		ScrollDepthPercent: s.ScrollDepthPercent,
		WordCount:          s.WordCount,
		BlurCount:          s.BlurCount,
		ScrollEvents:       s.ScrollEvents,
		MinSecondsPerWord:  s.MinSecondsPerWord,
	}
}

// session is the mutable per-view state owned by a Collector
type session struct {
	trackingID        string
	openedAt          time.Time
	closedAt          time.Time
	wordCount         int
	focusAccumulated  time.Duration
	scrollDepth       float64
	blurCount         int
	scrollEvents      int
	minSecondsPerWord float64

	focused        bool
	lastFocusStart time.Time
}

// loseFocus closes the current focus interval. Returns false when focus was
// already lost, so a blur and a visibilitychange for the same switch count once.
func (s *session) loseFocus(now time.Time) bool {
	if !s.focused {
		return false
	}
	if d := now.Sub(s.lastFocusStart); d > 0 {
		s.focusAccumulated += d
	}
	s.focused = false
	s.blurCount++
	return true
}

func (s *session) gainFocus(now time.Time) bool {
	if s.focused {
		return false
	}
	s.focused = true
	s.lastFocusStart = now
	return true
}

// raiseScroll keeps the high-water mark; smaller samples are ignored
func (s *session) raiseScroll(percent float64) {
	if percent > s.scrollDepth {
		s.scrollDepth = percent
	}
}

func (s *session) snapshot(now time.Time) Snapshot {
	focus := s.focusAccumulated
	if s.focused {
		if d := now.Sub(s.lastFocusStart); d > 0 {
			focus += d
		}
	}
	return Snapshot{
		TrackingID:         s.trackingID,
		OpenedAt:           s.openedAt,
		ClosedAt:           s.closedAt,
		WordCount:          s.wordCount,
		FocusTime:          focus,
		ScrollDepthPercent: s.scrollDepth,
		BlurCount:          s.blurCount,
		ScrollEvents:       s.scrollEvents,
		MinSecondsPerWord:  s.minSecondsPerWord,
	}
}

// ScrollPercent converts a sample to vertical progress in 0-100.
// ok is false when the sample cannot be measured (no document height, NaN).
// Content shorter than the viewport is fully visible and reports 100.
func ScrollPercent(s ScrollSample) (percent float64, ok bool) {
	if !finite(s.Top) || !finite(s.Height) || !finite(s.Viewport) {
		return 0, false
	}
	if s.Height <= 0 {
		return 0, false
	}
	scrollable := s.Height - s.Viewport
	if scrollable <= 0 {
		return 100, true
	}
	return clamp(s.Top/scrollable*100, 0, 100), true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func clamp(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}
