package models

import "time"

// Reason tags attached to a reading verdict
const (
	ReasonNone                   = ""
	ReasonReadingTooFast         = "READING_TOO_FAST"
	ReasonInsufficientEngagement = "INSUFFICIENT_ENGAGEMENT"
)

// ReadingReport is the verdict payload a reading client sends to the collaborator.
// The first seven fields are the required contract; the rest are optional refinements
// that let the server recompute with every corroborating signal.
type ReadingReport struct {
	TrackingID     string  `json:"trackingId"`
	TimeSpent      float64 `json:"timeSpent"`   // seconds
	WordCount      int     `json:"wordCount"`
	ScrollDepth    float64 `json:"scrollDepth"` // 0-100
	FocusTime      float64 `json:"focusTime"`   // seconds
	SecondsPerWord float64 `json:"secondsPerWord"`
	FastRead       bool    `json:"fastRead"`

	BlurCount      int        `json:"blurCount,omitempty"`
	ScrollEvents   int        `json:"scrollEvents,omitempty"`
	WordsPerMinute float64    `json:"wordsPerMinute,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	Policy         string     `json:"policy,omitempty"`
	Trigger        string     `json:"trigger,omitempty"` // periodic, pagehide, beforeunload, hidden, close
	OpenedAt       *time.Time `json:"openedAt,omitempty"`
	ClosedAt       *time.Time `json:"closedAt,omitempty"`
}

// ReadingVerdictResponse is returned to the reporting client.
// FastRead is the server's recomputed value and is authoritative.
type ReadingVerdictResponse struct {
	Success  bool   `json:"success"`
	FastRead bool   `json:"fastRead"`
	Message  string `json:"message"`
	Reason   string `json:"reason,omitempty"`
}

// ReadingVerdictRecord is the latest stored verdict for a tracking id
type ReadingVerdictRecord struct {
	TrackingID         string    `json:"trackingId"`
	TimeSpentSeconds   float64   `json:"timeSpentSeconds"`
	WordCount          int       `json:"wordCount"`
	ScrollDepthPercent float64   `json:"scrollDepthPercent"`
	FocusTimeSeconds   float64   `json:"focusTimeSeconds"`
	BlurCount          int       `json:"blurCount"`
	SecondsPerWord     float64   `json:"secondsPerWord"`
	WordsPerMinute     float64   `json:"wordsPerMinute"`
	FastRead           bool      `json:"fastRead"`
	ClientFastRead     bool      `json:"clientFastRead"`
	Reason             string    `json:"reason,omitempty"`
	Policy             string    `json:"policy"`
	ReportCount        int       `json:"reportCount"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// ReadingPolicyInfo describes the active evaluation policy for clients that judge locally
type ReadingPolicyInfo struct {
	Policy            string  `json:"policy"`
	MinSecondsPerWord float64 `json:"minSecondsPerWord"`
	LowScrollPercent  float64 `json:"lowScrollPercent"`
	ShortFocusRatio   float64 `json:"shortFocusRatio"`
	MaxBlurCount      int     `json:"maxBlurCount"`
	MaxWordsPerMinute float64 `json:"maxWordsPerMinute"`
	MinWordsPerMinute float64 `json:"minWordsPerMinute"`
	SlowWindowSeconds float64 `json:"slowWindowSeconds"`
	MinScrollEvents   int     `json:"minScrollEvents"`
}
