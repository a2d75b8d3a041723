package reading

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"phishguard/internal/models"
)

// Collector defaults
const (
	DefaultFlushInterval  = 30 * time.Second
	DefaultScrollDebounce = 150 * time.Millisecond
	DefaultReportTimeout  = 5 * time.Second
)

// ReportHook is called after a report was delivered successfully
type ReportHook func(report models.ReadingReport, resp *models.ReadingVerdictResponse)

// Option configures a Collector
type Option func(*Collector)

// WithClock replaces the system clock
func WithClock(clock Clock) Option {
	return func(c *Collector) { c.clock = clock }
}

// WithReporter sets where flushed verdicts are delivered
func WithReporter(r Reporter) Option {
	return func(c *Collector) { c.reporter = r }
}

// WithReportHook observes successful deliveries
func WithReportHook(h ReportHook) Option {
	return func(c *Collector) { c.onReport = h }
}

// WithPolicy sets the evaluation policy used on flush
func WithPolicy(p Policy) Option {
	return func(c *Collector) { c.policy = p }
}

// WithFlushInterval sets the periodic flush interval; <= 0 disables it
func WithFlushInterval(d time.Duration) Option {
	return func(c *Collector) { c.flushInterval = d }
}

// WithScrollDebounce sets the scroll debounce; <= 0 applies samples immediately
func WithScrollDebounce(d time.Duration) Option {
	return func(c *Collector) { c.scrollDebounce = d }
}

// WithLogger sets the collector logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// WithInitialFocus sets whether the document has focus when the session opens
func WithInitialFocus(focused bool) Option {
	return func(c *Collector) { c.initialFocus = focused }
}

// WithFlushOnHidden controls whether visibility loss flushes a snapshot
func WithFlushOnHidden(enabled bool) Option {
	return func(c *Collector) { c.flushOnHidden = enabled }
}

// Collector accumulates reading signals for one document view. It owns its
// listeners and timers; Destroy releases both.
type Collector struct {
	target         EventTarget
	counter        WordCounter
	clock          Clock
	policy         Policy
	reporter       Reporter
	onReport       ReportHook
	logger         *slog.Logger
	flushInterval  time.Duration
	scrollDebounce time.Duration
	reportTimeout  time.Duration
	initialFocus   bool
	flushOnHidden  bool

	mu            sync.Mutex
	hiddenFlushed bool
	s             session
	last          Snapshot
	started       bool
	destroyed     bool
	pendingScroll *ScrollSample
	scrollTimer   Timer
	flushTimer    Timer
	removers      []func()
	inflight      int
	idle          *sync.Cond
}

// NewCollector creates a collector bound to target. counter is consulted
// exactly once, at Start.
func NewCollector(target EventTarget, counter WordCounter, opts ...Option) *Collector {
	c := &Collector{
		target:         target,
		counter:        counter,
		clock:          SystemClock,
		flushInterval:  DefaultFlushInterval,
		scrollDebounce: DefaultScrollDebounce,
		reportTimeout:  DefaultReportTimeout,
		initialFocus:   true,
		flushOnHidden:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.policy == nil {
		c.policy = DefaultPolicy()
	}
	c.idle = sync.NewCond(&c.mu)
	return c
}

// Start opens the session: records the open time, counts words, registers
// listeners and arms the periodic flush.
func (c *Collector) Start(trackingID string, minSecondsPerWord float64) error {
	trackingID = strings.TrimSpace(trackingID)
	if trackingID == "" {
		return ErrMissingTrackingID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return ErrCollectorDestroyed
	}
	if c.started {
		return ErrAlreadyStarted
	}
	if !finite(minSecondsPerWord) || minSecondsPerWord <= 0 {
		minSecondsPerWord = DefaultMinSecondsPerWord
	}

	now := c.clock.Now()
	c.s = session{
		trackingID:        trackingID,
		openedAt:          now,
		closedAt:          now,
		wordCount:         c.countWords(),
		minSecondsPerWord: minSecondsPerWord,
		focused:           c.initialFocus,
		lastFocusStart:    now,
	}
	c.last = c.s.snapshot(now)
	c.started = true

	if c.target != nil {
		for _, t := range []EventType{EventFocus, EventBlur, EventVisibilityChange, EventScroll, EventBeforeUnload, EventPageHide} {
			c.removers = append(c.removers, c.target.AddListener(t, c.handle))
		}
	}
	c.armFlushLocked()

	c.logger.Debug("reading session started", "tracking_id", trackingID, "word_count", c.s.wordCount)
	return nil
}

// countWords never fails: any error or panic from the counter yields 0
func (c *Collector) countWords() (n int) {
	if c.counter == nil {
		return 0
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("word counter panicked, using 0", "panic", r)
			n = 0
		}
	}()

	n, err := c.counter.CountWords()
	if err != nil {
		c.logger.Warn("word count unavailable, using 0", "error", err)
		return 0
	}
	if n < 0 {
		return 0
	}
	return n
}

func (c *Collector) handle(ev Event) {
	switch ev.Type {
	case EventFocus:
		c.OnFocus()
	case EventBlur:
		c.OnBlur()
	case EventVisibilityChange:
		c.OnVisibilityChange(ev.Hidden)
	case EventScroll:
		c.OnScroll(ev.Scroll)
	case EventBeforeUnload:
		c.Flush(context.Background(), TriggerBeforeUnload)
	case EventPageHide:
		c.Flush(context.Background(), TriggerPageHide)
	}
}

func (c *Collector) activeLocked() bool {
	return c.started && !c.destroyed
}

// OnFocus records the start of a focus interval
func (c *Collector) OnFocus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeLocked() {
		c.s.gainFocus(c.clock.Now())
	}
}

// OnBlur closes the focus interval and counts the switch
func (c *Collector) OnBlur() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeLocked() {
		c.s.loseFocus(c.clock.Now())
	}
}

// OnVisibilityChange treats hidden as blur and visible as focus. Becoming
// hidden also flushes a snapshot when enabled, once per hidden period, even
// if a blur already took focus away.
func (c *Collector) OnVisibilityChange(hidden bool) {
	c.mu.Lock()
	if !c.activeLocked() {
		c.mu.Unlock()
		return
	}
	now := c.clock.Now()
	if !hidden {
		c.s.gainFocus(now)
		c.hiddenFlushed = false
		c.mu.Unlock()
		return
	}
	c.s.loseFocus(now)
	flush := c.flushOnHidden && !c.hiddenFlushed
	if flush {
		c.hiddenFlushed = true
	}
	c.mu.Unlock()

	if flush {
		c.Flush(context.Background(), TriggerHidden)
	}
}

// OnScroll records a scroll sample. Every sample counts as a scroll event;
// depth is debounced and only the last sample of a burst is measured.
func (c *Collector) OnScroll(sample ScrollSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activeLocked() {
		return
	}

	c.s.scrollEvents++
	c.pendingScroll = &sample
	if c.scrollDebounce <= 0 {
		c.applyPendingScrollLocked()
		return
	}
	if c.scrollTimer != nil {
		c.scrollTimer.Stop()
	}
	c.scrollTimer = c.clock.AfterFunc(c.scrollDebounce, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.activeLocked() {
			c.applyPendingScrollLocked()
		}
	})
}

func (c *Collector) applyPendingScrollLocked() {
	if c.scrollTimer != nil {
		c.scrollTimer.Stop()
		c.scrollTimer = nil
	}
	if c.pendingScroll == nil {
		return
	}
	sample := *c.pendingScroll
	c.pendingScroll = nil

	if percent, ok := ScrollPercent(sample); ok {
		c.s.raiseScroll(percent)
	}
}

// Finalize freezes the current metrics. It may be called any number of
// times; each call measures from the open time to now.
func (c *Collector) Finalize() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalizeLocked()
}

func (c *Collector) finalizeLocked() Snapshot {
	if !c.activeLocked() {
		return c.last
	}
	c.applyPendingScrollLocked()

	now := c.clock.Now()
	if now.Before(c.s.openedAt) {
		now = c.s.openedAt
	}
	c.s.closedAt = now
	c.last = c.s.snapshot(now)
	return c.last
}

// Flush finalizes, evaluates and hands the report to the reporter without
// waiting for delivery. Delivery failures are logged and dropped.
func (c *Collector) Flush(ctx context.Context, trigger Trigger) (Verdict, Snapshot) {
	c.mu.Lock()
	if !c.activeLocked() {
		last := c.last
		c.mu.Unlock()
		return Verdict{}, last
	}
	snap := c.finalizeLocked()
	policy, reporter := c.policy, c.reporter
	// Counted under the lock so a concurrent Wait cannot miss it.
	if reporter != nil {
		c.inflight++
	}
	c.mu.Unlock()

	verdict := Evaluate(policy, snap.Signals())
	c.logger.Debug("reading session flushed",
		"tracking_id", snap.TrackingID,
		"trigger", string(trigger),
		"time_spent", verdict.TimeSpentSeconds,
		"seconds_per_word", verdict.SecondsPerWord,
		"fast_read", verdict.FastRead,
	)

	if reporter != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		report := NewReport(snap, verdict, trigger)
		go c.deliver(context.WithoutCancel(ctx), reporter, report)
	}
	return verdict, snap
}

func (c *Collector) deliver(ctx context.Context, reporter Reporter, report models.ReadingReport) {
	defer c.deliveryDone()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("verdict delivery panicked", "tracking_id", report.TrackingID, "panic", r)
		}
	}()

	if c.reportTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.reportTimeout)
		defer cancel()
	}

	resp, err := reporter.Report(ctx, report)
	if err != nil {
		c.logger.Warn("verdict delivery failed", "tracking_id", report.TrackingID, "trigger", report.Trigger, "error", err)
		return
	}
	if c.onReport != nil {
		c.onReport(report, resp)
	}
}

func (c *Collector) armFlushLocked() {
	if c.flushInterval <= 0 || !c.activeLocked() {
		return
	}
	c.flushTimer = c.clock.AfterFunc(c.flushInterval, func() {
		c.Flush(context.Background(), TriggerPeriodic)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.armFlushLocked()
	})
}

// Destroy removes every listener and stops all timers. The last snapshot
// stays readable through Finalize.
func (c *Collector) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	if c.started {
		c.finalizeLocked()
	}
	c.destroyed = true
	removers := c.removers
	c.removers = nil
	if c.scrollTimer != nil {
		c.scrollTimer.Stop()
		c.scrollTimer = nil
	}
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	c.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
}

// Wait blocks until every in-flight delivery has returned
func (c *Collector) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.inflight > 0 {
		c.idle.Wait()
	}
}

func (c *Collector) deliveryDone() {
	c.mu.Lock()
	c.inflight--
	if c.inflight == 0 {
		c.idle.Broadcast()
	}
	c.mu.Unlock()
}

// TrackingID returns the session's tracking id, empty before Start
func (c *Collector) TrackingID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s.trackingID
}

// SetPolicy swaps the policy used by later flushes
func (c *Collector) SetPolicy(p Policy) {
	if p == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = p
}
