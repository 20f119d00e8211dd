package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcfalli/TickSTockAppV2-sub016/internal/broadcaster"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/logging"
	"github.com/mcfalli/TickSTockAppV2-sub016/internal/models"
)

// clientRequest is the inbound control message vocabulary.
type clientRequest struct {
	Action        string   `json:"action"`
	Symbols       []string `json:"symbols,omitempty"`
	Kinds         []string `json:"kinds,omitempty"`
	PatternTypes  []string `json:"pattern_types,omitempty"`
	MinConfidence float64  `json:"min_confidence,omitempty"`
	FlowID        string   `json:"flow_id,omitempty"`
}

// Session is one live websocket connection. Its Send side is the
// broadcaster sink: a bounded buffer drained by the write pump, so a slow
// reader backs up only its own buffer.
type Session struct {
	id   string
	conn *websocket.Conn
	hub  *Hub
	log  *logging.Logger

	send chan *models.Outbound
	done chan struct{}
}

func newSession(id string, conn *websocket.Conn, hub *Hub, log *logging.Logger) *Session {
	return &Session{
		id:   id,
		conn: conn,
		hub:  hub,
		log:  log,
		send: make(chan *models.Outbound, hub.cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

// ID returns the connection id assigned at upgrade time.
func (s *Session) ID() string { return s.id }

// Send queues an outbound message without blocking. A full buffer means
// this consumer is too slow; the message is dropped for this connection
// only. Once the session is torn down, Send reports the closed state so
// the skip is not miscounted as a slow consumer.
func (s *Session) Send(msg *models.Outbound) error {
	select {
	case <-s.done:
		return broadcaster.ErrSessionClosed
	default:
	}
	select {
	case s.send <- msg:
		return nil
	default:
		return broadcaster.ErrSlowConsumer
	}
}

// readPump consumes control messages until the connection drops.
func (s *Session) readPump(ctx context.Context) {
	defer s.hub.drop(s)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.DebugContext(ctx, "session read error", "connection_id", s.id, "error", err)
			}
			return
		}
		s.handleRequest(ctx, data)
	}
}

func (s *Session) handleRequest(ctx context.Context, data []byte) {
	var req clientRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendError("bad_request", "request is not valid JSON")
		return
	}

	switch req.Action {
	case "subscribe":
		sub := models.NewSubscription(s.id, req.Symbols, req.Kinds, req.PatternTypes, req.MinConfidence)
		s.hub.registry.UpdateFilter(sub)
		s.log.InfoContext(ctx, "session filter updated",
			"connection_id", s.id,
			"symbols", len(req.Symbols), "kinds", len(req.Kinds),
			"min_confidence", req.MinConfidence)

	case "ping":
		_ = s.Send(&models.Outbound{Type: models.OutboundPong})

	case "status":
		_ = s.Send(&models.Outbound{Type: models.OutboundStatus, Data: s.hub.status()})

	case "trace":
		if req.FlowID == "" {
			s.sendError("bad_request", "trace requires flow_id")
			return
		}
		recs := s.hub.tracer.Trace(req.FlowID)
		_ = s.Send(&models.Outbound{
			Type: models.OutboundStatus,
			Data: map[string]any{"flow_id": req.FlowID, "checkpoints": recs},
		})

	default:
		s.sendError("unknown_action", "unsupported action: "+req.Action)
	}
}

func (s *Session) sendError(code, msg string) {
	_ = s.Send(&models.Outbound{Type: models.OutboundError, Code: code, Message: msg})
}

// writePump serializes all writes to the connection: queued outbound
// messages and keepalive pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout))
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}
