package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skypro1111/interp-service/internal/metrics"
	"github.com/skypro1111/interp-service/internal/pipeline"
	"github.com/skypro1111/interp-service/internal/protocol"
	"github.com/skypro1111/interp-service/internal/stream"
)

const (
	writeTimeout = 5 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 20 * time.Second

	// maxMessageSize bounds one binary audio message
	maxMessageSize = 1 << 20

	eventQueueSize = 256
)

// originAllowed accepts requests without an Origin header and, when an
// allow-list is configured, only the listed origins
func (h *HTTPServer) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(h.origins) == 0 {
		return true
	}
	_, ok := h.origins[origin]
	return ok
}

// handleWebsocket implements the /ws endpoint: one connection is one session
func (h *HTTPServer) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.originAllowed(r) {
		h.metrics.RecordHTTPError(r.Method, "/ws", "client_error")
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	conn := newEventConn(ws, h.logger, h.metrics)

	session, err := h.streamMgr.CreateSession(conn)
	if err != nil {
		h.logger.Warn("Rejecting conversation",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		conn.writeNow(protocol.ErrorEvent(err))
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(writeTimeout))
		return
	}
	conn.sessionID = session.ID

	h.logger.Info("Conversation connected",
		slog.String("session_id", session.ID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		conn.run()
	}()

	conn.send(protocol.Event{
		Type:      protocol.EventSessionStarted,
		SessionID: session.ID,
		Time:      time.Now().UTC(),
	})

	h.readLoop(ws, conn, session)

	// Stop delivering events before the session is torn down, so no
	// processing goroutine blocks on a dead connection
	conn.stop()
	h.streamMgr.RemoveSession(session.ID)
	<-writerDone

	h.logger.Info("Conversation disconnected", slog.String("session_id", session.ID))
}

func (h *HTTPServer) readLoop(ws *websocket.Conn, conn *eventConn, session *stream.Session) {
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("Websocket read error",
					slog.String("session_id", session.ID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(pongWait))

		switch messageType {
		case websocket.BinaryMessage:
			h.metrics.RecordWebsocketMessage("in", "audio")
			if err := session.Deliver(data); err != nil {
				if errors.Is(err, stream.ErrSessionClosed) {
					return
				}
				conn.send(protocol.ErrorEvent(err))
			}

		case websocket.TextMessage:
			control, err := protocol.ParseControl(data)
			if err != nil {
				h.metrics.RecordWebsocketMessage("in", "invalid")
				conn.send(protocol.ErrorEvent(err))
				continue
			}
			h.metrics.RecordWebsocketMessage("in", control.Type)
			h.handleControl(conn, session, control)
		}
	}
}

func (h *HTTPServer) handleControl(conn *eventConn, session *stream.Session, control *protocol.Control) {
	switch control.Type {
	case protocol.ControlReset:
		session.Reset()
		conn.send(protocol.SegmentEvent(protocol.EventConversationReset, 0))

	case protocol.ControlEnd:
		session.End()
		conn.send(protocol.SegmentEvent(protocol.EventConversationEnded, 0))

	case protocol.ControlFlush:
		session.Flush()

	case protocol.ControlEdit:
		rec, err := session.EditTranslation(control.SegmentID, control.Text)
		if err != nil {
			conn.send(protocol.ErrorEvent(err))
			return
		}
		conn.send(protocol.RecordEvent(protocol.EventTranslationEdited, rec))
	}
}

// eventConn serializes session events onto one websocket. It implements
// stream.Listener; callbacks enqueue and a single writer goroutine writes.
type eventConn struct {
	ws        *websocket.Conn
	logger    *slog.Logger
	metrics   *metrics.Metrics
	sessionID string

	events   chan protocol.Event
	done     chan struct{}
	stopOnce sync.Once
}

func newEventConn(ws *websocket.Conn, logger *slog.Logger, m *metrics.Metrics) *eventConn {
	return &eventConn{
		ws:      ws,
		logger:  logger,
		metrics: m,
		events:  make(chan protocol.Event, eventQueueSize),
		done:    make(chan struct{}),
	}
}

// send queues an event; it drops the event once the connection is stopping
func (c *eventConn) send(ev protocol.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *eventConn) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// run writes queued events and keepalive pings until stopped
func (c *eventConn) run() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.drain()
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.fail(err)
				return
			}

		case ev := <-c.events:
			if err := c.writeNow(ev); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

// drain writes whatever was queued before the stop
func (c *eventConn) drain() {
	for {
		select {
		case ev := <-c.events:
			if err := c.writeNow(ev); err != nil {
				return
			}
		default:
			return
		}
	}
}

// fail stops the connection after a write error; closing the socket
// unblocks the reader
func (c *eventConn) fail(err error) {
	c.logger.Warn("Websocket write failed",
		slog.String("session_id", c.sessionID),
		slog.String("error", err.Error()),
	)
	c.stop()
	c.ws.Close()
}

func (c *eventConn) writeNow(ev protocol.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c.metrics.RecordWebsocketMessage("out", ev.Type)
	return nil
}

func (c *eventConn) OnSegmentStarted(segmentID uint64) {
	c.send(protocol.SegmentEvent(protocol.EventSegmentStarted, segmentID))
}

func (c *eventConn) OnSegmentPartial(segmentID uint64, text string) {
	ev := protocol.SegmentEvent(protocol.EventSegmentPartial, segmentID)
	ev.Text = text
	c.send(ev)
}

func (c *eventConn) OnSegmentCancelled(segmentID uint64) {
	c.send(protocol.SegmentEvent(protocol.EventSegmentCancelled, segmentID))
}

func (c *eventConn) OnSegmentFailed(segmentID uint64, reason pipeline.Reason, err error) {
	ev := protocol.SegmentEvent(protocol.EventSegmentFailed, segmentID)
	ev.Reason = string(reason)
	if err != nil {
		ev.Error = err.Error()
	}
	c.send(ev)
}

func (c *eventConn) OnTranslationProvisional(rec pipeline.Record) {
	c.send(protocol.RecordEvent(protocol.EventTranslationProvisional, rec))
}

func (c *eventConn) OnTranslationFinal(rec pipeline.Record) {
	c.send(protocol.RecordEvent(protocol.EventTranslationFinal, rec))
}

func (c *eventConn) OnQualityPassFailed(rec pipeline.Record) {
	c.send(protocol.RecordEvent(protocol.EventQualityPassFailed, rec))
}
