package reading

import (
	"fmt"
	"strings"

	"phishguard/internal/models"
)

// Policy names
const (
	PolicyCorroborated = "corroborated"
	PolicyRate         = "rate"
)

// DefaultMinSecondsPerWord is the deployment default for the per-word time
// threshold: 3 seconds per word, roughly 200 words per minute.
const DefaultMinSecondsPerWord = 3.0

// Thresholds configures both policies
type Thresholds struct {
	MinSecondsPerWord float64

	// corroborated policy
	LowScrollPercent float64
	ShortFocusRatio  float64
	MaxBlurCount     int

	// rate policy
	MaxWordsPerMinute float64
	MinWordsPerMinute float64
	SlowWindowSeconds float64
	MinScrollEvents   int
}

// DefaultThresholds returns the documented defaults
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSecondsPerWord: DefaultMinSecondsPerWord,
		LowScrollPercent:  50,
		ShortFocusRatio:   0.5,
		MaxBlurCount:      5,
		MaxWordsPerMinute: 400,
		MinWordsPerMinute: 150,
		SlowWindowSeconds: 60,
		MinScrollEvents:   3,
	}
}

// Policy turns sanitized signals into a judgement
type Policy interface {
	Name() string
	Judge(in Signals, d Derived) Judgement
}

// CorroboratedPolicy flags a read only when the per-word time is below the
// threshold and at least one corroborating signal agrees.
type CorroboratedPolicy struct {
	LowScrollPercent float64
	ShortFocusRatio  float64
	MaxBlurCount     int
}

// Name implements Policy
func (CorroboratedPolicy) Name() string { return PolicyCorroborated }

// Judge implements Policy
func (p CorroboratedPolicy) Judge(in Signals, d Derived) Judgement {
	var f Flags
	f.TooFast = d.SecondsPerWord < in.MinSecondsPerWord
	f.LowScroll = in.ScrollDepthPercent < p.LowScrollPercent
	f.ShortFocus = in.FocusTimeSeconds < in.TimeSpentSeconds*p.ShortFocusRatio
	f.ManyBlurs = in.BlurCount > p.MaxBlurCount

	j := Judgement{Flags: f}
	j.FastRead = f.TooFast && (f.LowScroll || f.ShortFocus || f.ManyBlurs)
	if j.FastRead {
		j.Reason = models.ReasonReadingTooFast
	}
	return j
}

// RatePolicy judges on words per minute: too fast outright, or too slow
// within a short window with almost no scrolling.
type RatePolicy struct {
	MaxWordsPerMinute float64
	MinWordsPerMinute float64
	SlowWindowSeconds float64
	MinScrollEvents   int
}

// Name implements Policy
func (RatePolicy) Name() string { return PolicyRate }

// Judge implements Policy
func (p RatePolicy) Judge(in Signals, d Derived) Judgement {
	var f Flags
	f.TooFast = d.WordsPerMinute > p.MaxWordsPerMinute
	f.TooSlow = d.WordsPerMinute < p.MinWordsPerMinute && in.TimeSpentSeconds < p.SlowWindowSeconds
	f.MinimalInteraction = in.ScrollEvents < p.MinScrollEvents

	j := Judgement{Flags: f}
	switch {
	case f.TooFast:
		j.FastRead = true
		j.Reason = models.ReasonReadingTooFast
	case f.TooSlow && f.MinimalInteraction:
		j.FastRead = true
		j.Reason = models.ReasonInsufficientEngagement
	}
	return j
}

// DefaultPolicy is the canonical corroborated policy with default thresholds
func DefaultPolicy() Policy {
	p, _ := NewPolicy(PolicyCorroborated, DefaultThresholds())
	return p
}

// NewPolicy builds a policy by name. An unknown name returns the corroborated
// policy together with ErrUnknownPolicy so callers can log and carry on.
func NewPolicy(name string, t Thresholds) (Policy, error) {
	corroborated := CorroboratedPolicy{
		LowScrollPercent: t.LowScrollPercent,
		ShortFocusRatio:  t.ShortFocusRatio,
		MaxBlurCount:     t.MaxBlurCount,
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyCorroborated:
		return corroborated, nil
	case PolicyRate:
		return RatePolicy{
			MaxWordsPerMinute: t.MaxWordsPerMinute,
			MinWordsPerMinute: t.MinWordsPerMinute,
			SlowWindowSeconds: t.SlowWindowSeconds,
			MinScrollEvents:   t.MinScrollEvents,
		}, nil
	default:
		return corroborated, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}
