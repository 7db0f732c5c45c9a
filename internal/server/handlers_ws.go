package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"fire/command/internal/dispatch"
	"fire/command/internal/realtime"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const replyBuffer = 16

// streamConn is one connected monitoring client. Only the write pump writes
// to conn; the read pump hands replies over through replies.
type streamConn struct {
	conn    *websocket.Conn
	queue   *realtime.Queue
	replies chan realtime.Event
	log     zerolog.Logger
}

// handleEventStream godoc
// @Title Event stream
// @Description Upgrades to a WebSocket. The first frame is a SNAPSHOT of active calls and the summary; NEW_CALL, STATUS_UPDATE, PRIORITY_UPDATE, LOCATION_UPDATE, SUMMARY_UPDATE and SYSTEM_ALERT follow for subscribed topics. Clients may send SUBSCRIBE, UNSUBSCRIBE, STATUS_UPDATE and LOCATION_UPDATE frames and receive a COMMAND_RESULT for each.
// @Resource Realtime
// @Param access_token query string false "Bearer token when the Authorization header cannot be set"
// @Success 101
// @Route /v1/ws [get]
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	id := uuid.NewString()
	c := &streamConn{
		conn:    conn,
		queue:   realtime.NewQueue(id, s.cfg.WS.SendQueue, realtime.DefaultTopics...),
		replies: make(chan realtime.Event, replyBuffer),
		log:     s.log.With().Str("subscriber_id", id).Str("actor", actor(r)).Logger(),
	}

	// Registered before the snapshot is read so no change falls in between.
	s.hub.Register(c.queue)
	defer func() {
		s.hub.Unregister(id)
		c.queue.Close(nil)
		_ = conn.Close()
		c.log.Info().Msg("event stream closed")
	}()
	c.log.Info().Str("remote", r.RemoteAddr).Msg("event stream opened")

	calls, err := s.coord.ActiveCalls(r.Context())
	if err != nil {
		c.log.Error().Err(err).Msg("loading snapshot")
		s.closeStream(c, websocket.CloseInternalServerErr, "snapshot unavailable")
		return
	}
	summary := s.coord.Summary()
	if err := s.writeEvent(c, realtime.SnapshotEvent(calls, summary)); err != nil {
		c.log.Debug().Err(err).Msg("writing snapshot")
		return
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		s.readPump(r.Context(), c)
	}()
	s.writePump(c, realtime.NewFence(calls, summary), readDone)
}

func (s *Server) readPump(ctx context.Context, c *streamConn) {
	pongWait := s.cfg.WS.PongWait
	c.conn.SetReadLimit(s.cfg.WS.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("event stream read failed")
			}
			return
		}

		reply := s.handleClientMessage(ctx, c.queue, data)
		select {
		case c.replies <- realtime.ResultEvent(reply):
		case <-c.queue.Done():
			return
		}
	}
}

// writePump skips queued events the snapshot already covered so a client
// never sees a call or the summary step back.
func (s *Server) writePump(c *streamConn, fence realtime.Fence, readDone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod(s.cfg.WS.PongWait))
	defer ticker.Stop()

	for {
		select {
		case ev := <-c.queue.Events():
			if fence.Covers(ev) {
				continue
			}
			if err := s.writeEvent(c, ev); err != nil {
				c.log.Debug().Err(err).Msg("event stream write failed")
				return
			}
		case ev := <-c.replies:
			if err := s.writeEvent(c, ev); err != nil {
				c.log.Debug().Err(err).Msg("event stream write failed")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WS.WriteWait)); err != nil {
				return
			}
		case <-c.queue.Done():
			reason := c.queue.Err()
			switch {
			case errors.Is(reason, realtime.ErrConnectionDropped):
				s.closeStream(c, websocket.CloseTryAgainLater, "send queue overflow")
			case reason != nil:
				s.closeStream(c, websocket.CloseGoingAway, reason.Error())
			}
			return
		case <-readDone:
			return
		}
	}
}

func (s *Server) writeEvent(c *streamConn, ev realtime.Event) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WS.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(ev)
}

func (s *Server) closeStream(c *streamConn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WS.WriteWait))
}

// handleClientMessage applies one inbound frame and builds its COMMAND_RESULT.
func (s *Server) handleClientMessage(ctx context.Context, q *realtime.Queue, data []byte) realtime.CommandResult {
	var msg realtime.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		wsMessagesTotal.WithLabelValues("unknown", "invalid").Inc()
		return realtime.CommandResult{Error: errInvalidPayload}
	}

	result := realtime.CommandResult{RequestID: msg.RequestID, CallID: msg.CallID}
	fail := func(err error) realtime.CommandResult {
		wsMessagesTotal.WithLabelValues(string(msg.Type), "rejected").Inc()
		result.Error = err.Error()
		return result
	}

	if err := s.validate.Struct(msg); err != nil {
		return fail(err)
	}
	if err := msg.Check(); err != nil {
		return fail(err)
	}

	var (
		res dispatch.Result
		err error
	)
	switch msg.Type {
	case realtime.MsgSubscribe:
		q.Subscribe(msg.Topic)
		res.Outcome = dispatch.OutcomeAccepted
	case realtime.MsgUnsubscribe:
		q.Unsubscribe(msg.Topic)
		res.Outcome = dispatch.OutcomeAccepted
	case realtime.MsgStatusUpdate:
		var ev dispatch.Event
		if ev, err = dispatch.ParseEvent(msg.Status); err == nil {
			res, err = s.coord.AdvanceStatus(ctx, msg.CallID, ev)
		}
	case realtime.MsgLocationUpdate:
		res, err = s.coord.ReportLocation(ctx, msg.CallID, *msg.Latitude, *msg.Longitude)
	}
	if err != nil {
		return fail(err)
	}

	wsMessagesTotal.WithLabelValues(string(msg.Type), "accepted").Inc()
	result.Outcome = string(res.Outcome)
	if res.Call.ID != "" {
		view := realtime.NewCallView(res.Call)
		result.Call = &view
	}
	return result
}

// checkOrigin allows same-origin requests, clients that send no Origin and
// the configured CORS origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(s.cfg.CORSOrigins, "*") || slices.Contains(s.cfg.CORSOrigins, origin) {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

func pingPeriod(pongWait time.Duration) time.Duration {
	return (pongWait * 9) / 10
}
