package models

// Reading stream message types sent by the client
const (
	ReadingMsgOpen         = "open"
	ReadingMsgFocus        = "focus"
	ReadingMsgBlur         = "blur"
	ReadingMsgVisibility   = "visibility"
	ReadingMsgScroll       = "scroll"
	ReadingMsgBeforeUnload = "beforeunload"
	ReadingMsgPageHide     = "pagehide"
	ReadingMsgPing         = "ping"
)

// ReadingClientMessage is one event from the reading client over /ws/reading
type ReadingClientMessage struct {
	Type string `json:"type"`

	// open
	TrackingID        string  `json:"trackingId,omitempty"`
	MinSecondsPerWord float64 `json:"minSecondsPerWord,omitempty"` // per-session threshold, server default when absent
	WordCount         *int    `json:"wordCount,omitempty"`         // client-computed count
	Content           string  `json:"content,omitempty"`           // raw document for server-side counting, base64 for pdf
	ContentType       string  `json:"contentType,omitempty"`       // text, html, markdown, pdf
	Container         string  `json:"container,omitempty"`         // content container selector for html

	// visibility
	Hidden bool `json:"hidden,omitempty"`

	// scroll
	ScrollTop      float64 `json:"scrollTop,omitempty"`
	ScrollHeight   float64 `json:"scrollHeight,omitempty"`
	ViewportHeight float64 `json:"viewportHeight,omitempty"`
}

// ReadingServerMessage is sent back to the reading client
type ReadingServerMessage struct {
	Type         string                  `json:"type"` // "opened", "verdict", "pong", "error"
	SessionID    string                  `json:"sessionId,omitempty"`
	WordCount    int                     `json:"wordCount,omitempty"`
	Verdict      *ReadingVerdictResponse `json:"verdict,omitempty"`
	Report       *ReadingReport          `json:"report,omitempty"`
	ErrorCode    string                  `json:"errorCode,omitempty"`
	ErrorMessage string                  `json:"errorMessage,omitempty"`
}
