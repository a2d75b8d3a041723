package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"phishguard/internal/config"
	"phishguard/internal/content"
	"phishguard/internal/logging"
	"phishguard/internal/models"
	"phishguard/internal/reading"
	"phishguard/internal/services"
)

// Server message types on /ws/reading
const (
	ReadingMsgOpened  = "opened"
	ReadingMsgVerdict = "verdict"
	ReadingMsgPong    = "pong"
	ReadingMsgError   = "error"
)

// ReadingWebSocketHandler drives one reading collector per WebSocket
// connection. The page forwards its DOM events; the collector runs here.
type ReadingWebSocketHandler struct {
	sessions *services.SessionManager
	reporter reading.Reporter
	policies services.PolicySource
	cfg      config.ReadingConfig
	metrics  *services.Metrics
}

// NewReadingWebSocketHandler creates a new reading WebSocket handler
func NewReadingWebSocketHandler(
	sessions *services.SessionManager,
	reporter reading.Reporter,
	policies services.PolicySource,
	cfg config.ReadingConfig,
	metrics *services.Metrics,
) *ReadingWebSocketHandler {
	return &ReadingWebSocketHandler{
		sessions: sessions,
		reporter: reporter,
		policies: policies,
		cfg:      cfg,
		metrics:  metrics,
	}
}

// readingConn is the per-connection state. collector and session are only
// touched from the read loop.
type readingConn struct {
	id         string
	dispatcher *reading.Dispatcher
	collector  *reading.Collector
	session    *services.LiveSession
	limiter    *rate.Limiter

	writeChan chan models.ReadingServerMessage
	done      chan struct{}
	closeOnce sync.Once
	closeFn   func()
}

func (h *ReadingWebSocketHandler) newConn(id string) *readingConn {
	eventRate := h.cfg.EventRate
	if eventRate <= 0 {
		eventRate = 50
	}
	burst := h.cfg.EventBurst
	if burst <= 0 {
		burst = int(eventRate) * 2
	}

	return &readingConn{
		id:         id,
		dispatcher: reading.NewDispatcher(),
		limiter:    rate.NewLimiter(rate.Limit(eventRate), burst),
		writeChan:  make(chan models.ReadingServerMessage, 32),
		done:       make(chan struct{}),
	}
}

// send queues a message without blocking the caller
func (rc *readingConn) send(msg models.ReadingServerMessage) {
	select {
	case <-rc.done:
	case rc.writeChan <- msg:
	default:
		log.Printf("⚠️  [READING-WS] Write buffer full for %s, dropping %s", rc.id, msg.Type)
	}
}

func (rc *readingConn) sendError(code, message string) {
	rc.send(models.ReadingServerMessage{
		Type:         ReadingMsgError,
		SessionID:    rc.id,
		ErrorCode:    code,
		ErrorMessage: message,
	})
}

func (rc *readingConn) close() {
	rc.closeOnce.Do(func() {
		if rc.closeFn != nil {
			rc.closeFn()
		}
	})
}

// Handle handles a new WebSocket connection
func (h *ReadingWebSocketHandler) Handle(c *websocket.Conn) {
	rc := h.newConn(uuid.New().String())
	rc.closeFn = func() { c.Close() }

	defer func() {
		close(rc.done)
		h.teardown(rc)
	}()

	idle := h.cfg.IdleTimeout
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	c.SetReadDeadline(time.Now().Add(idle))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(idle))
		return nil
	})

	go h.pingLoop(c, rc)
	go h.writeLoop(c, rc)

	h.readLoop(c, rc, idle)
}

func (h *ReadingWebSocketHandler) readLoop(c *websocket.Conn, rc *readingConn, idle time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [READING-WS] Panic in readLoop for %s: %v", rc.id, r)
		}
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("⚠️  [READING-WS] Read error for %s: %v", rc.id, err)
			}
			return
		}
		c.SetReadDeadline(time.Now().Add(idle))
		h.handleMessage(rc, raw)
	}
}

func (h *ReadingWebSocketHandler) writeLoop(c *websocket.Conn, rc *readingConn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [READING-WS] Panic in writeLoop for %s: %v", rc.id, r)
		}
	}()

	for {
		select {
		case <-rc.done:
			return
		case msg := <-rc.writeChan:
			if err := c.WriteJSON(msg); err != nil {
				log.Printf("⚠️  [READING-WS] Write error for %s: %v", rc.id, err)
				return
			}
			h.metrics.RecordWebSocketMessage(msg.Type, "outbound")
		}
	}
}

// pingLoop keeps the connection alive through proxies while the reader is idle
func (h *ReadingWebSocketHandler) pingLoop(c *websocket.Conn, rc *readingConn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-rc.done:
			return
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

// handleMessage applies one client message to the connection's collector
func (h *ReadingWebSocketHandler) handleMessage(rc *readingConn, raw []byte) {
	if !rc.limiter.Allow() {
		h.metrics.RecordWebSocketMessage("throttled", "dropped")
		return
	}

	var msg models.ReadingClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		rc.sendError("invalid_format", "Invalid message format")
		return
	}
	h.metrics.RecordWebSocketMessage(msg.Type, "inbound")

	switch msg.Type {
	case models.ReadingMsgPing:
		// A client heartbeat keeps an idle reader's session alive.
		if rc.session != nil {
			rc.session.Touch(time.Now())
		}
		rc.send(models.ReadingServerMessage{Type: ReadingMsgPong})
		return
	case models.ReadingMsgOpen:
		h.open(rc, msg)
		return
	}

	if rc.collector == nil {
		rc.sendError("not_open", "Send an open message first")
		return
	}
	rc.session.Touch(time.Now())

	switch msg.Type {
	case models.ReadingMsgFocus:
		rc.dispatcher.Dispatch(reading.Event{Type: reading.EventFocus})
	case models.ReadingMsgBlur:
		rc.dispatcher.Dispatch(reading.Event{Type: reading.EventBlur})
	case models.ReadingMsgVisibility:
		rc.dispatcher.Dispatch(reading.Event{Type: reading.EventVisibilityChange, Hidden: msg.Hidden})
	case models.ReadingMsgScroll:
		rc.dispatcher.Dispatch(reading.Event{Type: reading.EventScroll, Scroll: reading.ScrollSample{
			Top:      msg.ScrollTop,
			Height:   msg.ScrollHeight,
			Viewport: msg.ViewportHeight,
		}})
	case models.ReadingMsgBeforeUnload:
		rc.dispatcher.Dispatch(reading.Event{Type: reading.EventBeforeUnload})
	case models.ReadingMsgPageHide:
		rc.dispatcher.Dispatch(reading.Event{Type: reading.EventPageHide})
	default:
		rc.sendError("unknown_type", "Unknown message type: "+msg.Type)
	}
}

func (h *ReadingWebSocketHandler) open(rc *readingConn, msg models.ReadingClientMessage) {
	if rc.collector != nil {
		rc.sendError("already_open", "A reading session is already open on this connection")
		return
	}

	var counter reading.WordCounter
	if msg.WordCount != nil {
		counter = reading.StaticWordCount(*msg.WordCount)
	} else {
		raw := msg.Content
		if content.IsPDF(msg.ContentType) {
			decoded, err := base64.StdEncoding.DecodeString(raw)
			if err != nil {
				rc.sendError("unsupported_content", "PDF content must be base64 encoded")
				return
			}
			raw = string(decoded)
		}
		c, err := content.ForType(msg.ContentType, raw, msg.Container)
		if err != nil {
			rc.sendError("unsupported_content", err.Error())
			return
		}
		counter = c
	}

	policy, thresholds := h.policies.Current()
	threshold := msg.MinSecondsPerWord
	if threshold <= 0 {
		threshold = thresholds.MinSecondsPerWord
	}

	opts := []reading.Option{
		reading.WithPolicy(policy),
		reading.WithFlushInterval(h.cfg.FlushInterval),
		reading.WithScrollDebounce(h.cfg.ScrollDebounce),
		reading.WithFlushOnHidden(h.cfg.FlushOnHidden),
		reading.WithLogger(logging.WithSession(msg.TrackingID, rc.id)),
		reading.WithReportHook(func(report models.ReadingReport, resp *models.ReadingVerdictResponse) {
			rc.send(models.ReadingServerMessage{
				Type:      ReadingMsgVerdict,
				SessionID: rc.id,
				Verdict:   resp,
				Report:    &report,
			})
		}),
	}
	if h.reporter != nil {
		opts = append(opts, reading.WithReporter(h.reporter))
	}

	collector := reading.NewCollector(rc.dispatcher, counter, opts...)
	if err := collector.Start(msg.TrackingID, threshold); err != nil {
		rc.sendError("invalid_open", err.Error())
		return
	}

	now := time.Now()
	rc.collector = collector
	rc.session = &services.LiveSession{
		ID:         rc.id,
		TrackingID: collector.TrackingID(),
		Collector:  collector,
		StartedAt:  now,
		Close:      rc.close,
	}
	h.sessions.Add(rc.session)
	h.metrics.RecordSessionStart()

	rc.send(models.ReadingServerMessage{
		Type:      ReadingMsgOpened,
		SessionID: rc.id,
		WordCount: collector.Finalize().WordCount,
	})
}

// teardown flushes the final report and releases the collector
func (h *ReadingWebSocketHandler) teardown(rc *readingConn) {
	if rc.collector == nil {
		return
	}
	rc.collector.Flush(context.Background(), reading.TriggerClose)
	rc.collector.Destroy()
	rc.collector = nil
	rc.session = nil
	h.sessions.Remove(rc.id)
	h.metrics.RecordSessionEnd()
}
