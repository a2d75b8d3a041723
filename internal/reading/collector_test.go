package reading

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phishguard/internal/models"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, firing due timers in order
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []models.ReadingReport
	err     error
}

func (r *recordingReporter) Report(_ context.Context, report models.ReadingReport) (*models.ReadingVerdictResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	if r.err != nil {
		return nil, r.err
	}
	return &models.ReadingVerdictResponse{Success: true, FastRead: report.FastRead}, nil
}

func (r *recordingReporter) all() []models.ReadingReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ReadingReport, len(r.reports))
	copy(out, r.reports)
	return out
}

func newTestCollector(t *testing.T, words int, opts ...Option) (*Collector, *Dispatcher, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	d := NewDispatcher()
	opts = append([]Option{WithClock(clock)}, opts...)
	c := NewCollector(d, StaticWordCount(words), opts...)
	require.NoError(t, c.Start("trk-123", 3))
	t.Cleanup(c.Destroy)
	return c, d, clock
}

func scroll(top, height, viewport float64) Event {
	return Event{Type: EventScroll, Scroll: ScrollSample{Top: top, Height: height, Viewport: viewport}}
}

func TestCollector_StartValidation(t *testing.T) {
	c := NewCollector(NewDispatcher(), StaticWordCount(10))
	assert.ErrorIs(t, c.Start("  ", 3), ErrMissingTrackingID)

	require.NoError(t, c.Start("trk", 3))
	assert.ErrorIs(t, c.Start("trk", 3), ErrAlreadyStarted)

	c.Destroy()
	d := NewCollector(NewDispatcher(), nil)
	d.Destroy()
	assert.ErrorIs(t, d.Start("trk", 3), ErrCollectorDestroyed)
}

func TestCollector_WordCountComputedOnce(t *testing.T) {
	calls := 0
	counter := WordCounterFunc(func() (int, error) {
		calls++
		return 42 * calls, nil
	})
	clock := newFakeClock()
	c := NewCollector(NewDispatcher(), counter, WithClock(clock))
	require.NoError(t, c.Start("trk", 3))
	defer c.Destroy()

	clock.Advance(time.Second)
	first := c.Finalize()
	clock.Advance(time.Second)
	second := c.Finalize()

	assert.Equal(t, 1, calls)
	assert.Equal(t, 42, first.WordCount)
	assert.Equal(t, 42, second.WordCount)
}

func TestCollector_MissingContainerDegradesToZero(t *testing.T) {
	counter := WordCounterFunc(func() (int, error) {
		return 0, errors.New("no content container")
	})
	c := NewCollector(NewDispatcher(), counter, WithClock(newFakeClock()))
	require.NoError(t, c.Start("trk", 3))
	defer c.Destroy()

	snap := c.Finalize()
	assert.Zero(t, snap.WordCount)

	v, _ := c.Flush(context.Background(), TriggerManual)
	assert.False(t, v.FastRead)
	assert.Zero(t, v.SecondsPerWord)
}

func TestCollector_PanickingCounterDegradesToZero(t *testing.T) {
	counter := WordCounterFunc(func() (int, error) {
		panic("document detached")
	})
	c := NewCollector(nil, counter, WithClock(newFakeClock()))
	require.NoError(t, c.Start("trk", 3))
	defer c.Destroy()

	assert.Zero(t, c.Finalize().WordCount)
}

func TestCollector_ScrollHighWaterMark(t *testing.T) {
	c, d, clock := newTestCollector(t, 100, WithScrollDebounce(0))

	for _, top := range []float64{100, 600, 300, 0, 450} {
		d.Dispatch(scroll(top, 1100, 100))
		clock.Advance(10 * time.Millisecond)
	}

	snap := c.Finalize()
	assert.InDelta(t, 60.0, snap.ScrollDepthPercent, 1e-9)
	assert.Equal(t, 5, snap.ScrollEvents)
}

func TestCollector_ScrollMonotonicAcrossSamples(t *testing.T) {
	c, d, clock := newTestCollector(t, 100, WithScrollDebounce(0))

	prev := 0.0
	for _, top := range []float64{50, 20, 900, 10, 400, 1000, 0} {
		d.Dispatch(scroll(top, 1100, 100))
		clock.Advance(time.Millisecond)
		cur := c.Finalize().ScrollDepthPercent
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
	assert.Equal(t, 100.0, prev)
}

func TestCollector_ScrollDebounceKeepsLastSample(t *testing.T) {
	c, d, clock := newTestCollector(t, 100)

	d.Dispatch(scroll(100, 1100, 100))
	clock.Advance(50 * time.Millisecond)
	d.Dispatch(scroll(200, 1100, 100))
	clock.Advance(50 * time.Millisecond)
	d.Dispatch(scroll(500, 1100, 100))

	// Nothing applied yet: the burst is still settling.
	clock.Advance(100 * time.Millisecond)
	c.mu.Lock()
	depth := c.s.scrollDepth
	c.mu.Unlock()
	assert.Zero(t, depth)

	clock.Advance(60 * time.Millisecond)
	snap := c.Finalize()
	assert.InDelta(t, 50.0, snap.ScrollDepthPercent, 1e-9)
	assert.Equal(t, 3, snap.ScrollEvents)
}

func TestCollector_ContinuousScrollCountsEverySample(t *testing.T) {
	c, d, clock := newTestCollector(t, 100)

	// A steady scroll at 50ms intervals never lets the debounce settle.
	for i := 1; i <= 40; i++ {
		d.Dispatch(scroll(float64(i)*25, 1100, 100))
		clock.Advance(50 * time.Millisecond)
	}
	clock.Advance(48 * time.Second)

	snap := c.Finalize()
	assert.Equal(t, 40, snap.ScrollEvents)
	assert.InDelta(t, 100.0, snap.ScrollDepthPercent, 1e-9)

	rate, err := NewPolicy(PolicyRate, DefaultThresholds())
	require.NoError(t, err)
	v := Evaluate(rate, snap.Signals())
	assert.False(t, v.Flags.MinimalInteraction)
	assert.False(t, v.FastRead)
}

func TestCollector_FinalizeAppliesPendingScroll(t *testing.T) {
	c, d, _ := newTestCollector(t, 100)

	d.Dispatch(scroll(1000, 1100, 100))
	assert.Equal(t, 100.0, c.Finalize().ScrollDepthPercent)
}

func TestCollector_UnmeasurableScrollIgnored(t *testing.T) {
	c, d, _ := newTestCollector(t, 100, WithScrollDebounce(0))

	d.Dispatch(scroll(0, 0, 800))
	assert.Zero(t, c.Finalize().ScrollDepthPercent)

	d.Dispatch(scroll(0, 500, 800))
	assert.Equal(t, 100.0, c.Finalize().ScrollDepthPercent)
}

func TestCollector_FinalizeIdempotent(t *testing.T) {
	c, _, clock := newTestCollector(t, 100)

	clock.Advance(20 * time.Second)
	first := c.Finalize()
	clock.Advance(3 * time.Second)
	second := c.Finalize()

	assert.Equal(t, first.OpenedAt, second.OpenedAt)
	assert.InDelta(t, 20.0, first.TimeSpentSeconds(), 1e-9)
	assert.InDelta(t, 3.0, second.TimeSpentSeconds()-first.TimeSpentSeconds(), 1e-9)
	assert.InDelta(t, 23.0, second.FocusTimeSeconds(), 1e-9)
	assert.False(t, second.ClosedAt.Before(second.OpenedAt))

	third := c.Finalize()
	assert.Equal(t, second.TimeSpentSeconds(), third.TimeSpentSeconds())
	assert.Equal(t, second.FocusTime, third.FocusTime)
}

func TestCollector_FocusAccounting(t *testing.T) {
	c, d, clock := newTestCollector(t, 100, WithFlushOnHidden(false))

	clock.Advance(10 * time.Second)
	d.Dispatch(Event{Type: EventBlur})
	// Same switch reported twice by the page.
	d.Dispatch(Event{Type: EventVisibilityChange, Hidden: true})
	clock.Advance(20 * time.Second)
	d.Dispatch(Event{Type: EventVisibilityChange, Hidden: false})
	d.Dispatch(Event{Type: EventFocus})
	clock.Advance(5 * time.Second)

	snap := c.Finalize()
	assert.Equal(t, 1, snap.BlurCount)
	assert.InDelta(t, 15.0, snap.FocusTimeSeconds(), 1e-9)
	assert.InDelta(t, 35.0, snap.TimeSpentSeconds(), 1e-9)
}

func TestCollector_InitiallyUnfocused(t *testing.T) {
	c, d, clock := newTestCollector(t, 100, WithInitialFocus(false))

	clock.Advance(5 * time.Second)
	d.Dispatch(Event{Type: EventBlur})
	d.Dispatch(Event{Type: EventFocus})
	clock.Advance(5 * time.Second)

	snap := c.Finalize()
	assert.Zero(t, snap.BlurCount)
	assert.InDelta(t, 5.0, snap.FocusTimeSeconds(), 1e-9)
}

func TestCollector_BackgroundedSessionFlaggedOnFlush(t *testing.T) {
	rep := &recordingReporter{}
	c, d, clock := newTestCollector(t, 500, WithReporter(rep), WithFlushInterval(0), WithFlushOnHidden(false))

	d.Dispatch(scroll(1000, 1100, 100))
	clock.Advance(10 * time.Second)
	d.Dispatch(Event{Type: EventBlur})
	clock.Advance(20 * time.Second)

	v, snap := c.Flush(context.Background(), TriggerManual)
	c.Wait()

	assert.InDelta(t, 30.0, snap.TimeSpentSeconds(), 1e-9)
	assert.InDelta(t, 10.0, v.FocusTimeSeconds, 1e-9)
	assert.True(t, v.Flags.ShortFocus)
	assert.True(t, v.FastRead)

	reports := rep.all()
	require.Len(t, reports, 1)
	assert.Equal(t, "trk-123", reports[0].TrackingID)
	assert.True(t, reports[0].FastRead)
	assert.Equal(t, 500, reports[0].WordCount)
	assert.Equal(t, string(TriggerManual), reports[0].Trigger)
}

func TestCollector_PeriodicFlush(t *testing.T) {
	rep := &recordingReporter{}
	c, _, clock := newTestCollector(t, 100, WithReporter(rep), WithFlushInterval(30*time.Second))

	clock.Advance(95 * time.Second)
	c.Wait()

	reports := rep.all()
	require.Len(t, reports, 3)
	sort.Slice(reports, func(i, j int) bool { return reports[i].TimeSpent < reports[j].TimeSpent })
	for i, r := range reports {
		assert.Equal(t, string(TriggerPeriodic), r.Trigger)
		assert.InDelta(t, float64(30*(i+1)), r.TimeSpent, 1e-9)
	}

	c.Destroy()
	clock.Advance(time.Minute)
	c.Wait()
	assert.Len(t, rep.all(), 3)
}

func TestCollector_UnloadEventsFlush(t *testing.T) {
	rep := &recordingReporter{}
	_, d, clock := newTestCollector(t, 100, WithReporter(rep), WithFlushInterval(0))

	clock.Advance(4 * time.Second)
	d.Dispatch(Event{Type: EventBeforeUnload})
	clock.Advance(time.Second)
	d.Dispatch(Event{Type: EventPageHide})

	require.Eventually(t, func() bool { return len(rep.all()) == 2 }, time.Second, 5*time.Millisecond)
	triggers := []string{rep.all()[0].Trigger, rep.all()[1].Trigger}
	assert.ElementsMatch(t, []string{string(TriggerBeforeUnload), string(TriggerPageHide)}, triggers)
}

func TestCollector_HiddenFlushesOnce(t *testing.T) {
	rep := &recordingReporter{}
	c, d, clock := newTestCollector(t, 100, WithReporter(rep), WithFlushInterval(0))

	clock.Advance(time.Second)
	d.Dispatch(Event{Type: EventVisibilityChange, Hidden: true})
	d.Dispatch(Event{Type: EventVisibilityChange, Hidden: true})
	c.Wait()

	reports := rep.all()
	require.Len(t, reports, 1)
	assert.Equal(t, string(TriggerHidden), reports[0].Trigger)
}

func TestCollector_HiddenAfterBlurStillFlushes(t *testing.T) {
	rep := &recordingReporter{}
	c, d, clock := newTestCollector(t, 100, WithReporter(rep), WithFlushInterval(0))

	clock.Advance(2 * time.Second)
	d.Dispatch(Event{Type: EventBlur})
	d.Dispatch(Event{Type: EventVisibilityChange, Hidden: true})
	d.Dispatch(Event{Type: EventVisibilityChange, Hidden: true})
	c.Wait()

	reports := rep.all()
	require.Len(t, reports, 1)
	assert.Equal(t, string(TriggerHidden), reports[0].Trigger)
	assert.Equal(t, 1, reports[0].BlurCount)

	// A new hidden period after the page came back flushes again.
	d.Dispatch(Event{Type: EventVisibilityChange, Hidden: false})
	clock.Advance(time.Second)
	d.Dispatch(Event{Type: EventBlur})
	d.Dispatch(Event{Type: EventVisibilityChange, Hidden: true})
	c.Wait()
	assert.Len(t, rep.all(), 2)
}

func TestCollector_WaitCoversConcurrentFlushes(t *testing.T) {
	rep := &recordingReporter{}
	c, _, _ := newTestCollector(t, 100, WithReporter(rep), WithFlushInterval(0))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Flush(context.Background(), TriggerManual)
		}()
		go func() {
			defer wg.Done()
			c.Wait()
		}()
	}
	wg.Wait()
	c.Wait()
	assert.Len(t, rep.all(), 8)
}

func TestCollector_DeliveryFailureSwallowed(t *testing.T) {
	rep := &recordingReporter{err: errors.New("network down")}
	hookCalls := 0
	c, _, _ := newTestCollector(t, 100,
		WithReporter(rep),
		WithReportHook(func(models.ReadingReport, *models.ReadingVerdictResponse) { hookCalls++ }),
	)

	assert.NotPanics(t, func() {
		c.Flush(context.Background(), TriggerManual)
		c.Wait()
	})
	assert.Len(t, rep.all(), 1)
	assert.Zero(t, hookCalls)
}

func TestCollector_PanickingReporterRecovered(t *testing.T) {
	rep := ReporterFunc(func(context.Context, models.ReadingReport) (*models.ReadingVerdictResponse, error) {
		panic("transport torn down")
	})
	c, _, _ := newTestCollector(t, 100, WithReporter(rep))

	assert.NotPanics(t, func() {
		c.Flush(context.Background(), TriggerPageHide)
		c.Wait()
	})
}

func TestCollector_DestroyRemovesListeners(t *testing.T) {
	c, d, clock := newTestCollector(t, 100, WithScrollDebounce(0))
	require.Equal(t, 6, d.ListenerCount())

	clock.Advance(10 * time.Second)
	c.Destroy()
	assert.Zero(t, d.ListenerCount())

	before := c.Finalize()
	assert.Zero(t, d.Dispatch(scroll(1000, 1100, 100)))
	assert.Zero(t, d.Dispatch(Event{Type: EventBlur}))
	clock.Advance(10 * time.Second)

	after := c.Finalize()
	assert.Equal(t, before, after)
	assert.InDelta(t, 10.0, after.TimeSpentSeconds(), 1e-9)

	// Second destroy is a no-op.
	assert.NotPanics(t, c.Destroy)
}

func TestCollector_RepeatedSessionsDoNotLeakListeners(t *testing.T) {
	d := NewDispatcher()
	clock := newFakeClock()
	for i := 0; i < 20; i++ {
		c := NewCollector(d, StaticWordCount(10), WithClock(clock))
		require.NoError(t, c.Start("trk", 3))
		c.Destroy()
	}
	assert.Zero(t, d.ListenerCount())
}

func TestCollector_ThresholdTravelsWithSession(t *testing.T) {
	clock := newFakeClock()
	c := NewCollector(nil, StaticWordCount(10), WithClock(clock))
	require.NoError(t, c.Start("trk", 0.25))
	defer c.Destroy()
	assert.Equal(t, 0.25, c.Finalize().MinSecondsPerWord)

	other := NewCollector(nil, StaticWordCount(10), WithClock(clock))
	require.NoError(t, other.Start("trk", -1))
	defer other.Destroy()
	assert.Equal(t, DefaultMinSecondsPerWord, other.Finalize().MinSecondsPerWord)
}
