package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clipforge/clipforge/internal/events"
	"github.com/clipforge/clipforge/pkg/models"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsPingInterval    = 15 * time.Second
	wsPongWait        = 45 * time.Second
	wsWriteWait       = 10 * time.Second

	// outboundBuffer holds per-connection events (liveness replies,
	// malformed-frame errors) that bypass the session ring.
	outboundBuffer = 16
)

// wsConn is one attached websocket connection.
type wsConn struct {
	server    *Server
	conn      *websocket.Conn
	sessionID string
	userID    string
	sub       *events.Subscriber

	// out carries connection-scoped events to the writer pump.
	out    chan *models.Event
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// handleWS attaches a client to a session stream at /ws/{sessionID}.
// Query parameters: user_id (optional), last_event_id (optional replay
// cursor).
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/ws/")
	sessionID = strings.Trim(sessionID, "/")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.sessions.GetOrCreate(sessionID)
	lastSeen := r.URL.Query().Get("last_event_id")
	sub, replay := s.bus.Subscribe(sessionID, lastSeen)

	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		server:    s,
		conn:      conn,
		sessionID: sessionID,
		userID:    r.URL.Query().Get("user_id"),
		sub:       sub,
		out:       make(chan *models.Event, outboundBuffer),
		ctx:       ctx,
		cancel:    cancel,
		logger:    s.logger.With("session_id", sessionID),
	}

	// connection_established is stamped but not buffered: it belongs to
	// this connection only and must be the first frame on the socket. It
	// and the replay batch are written synchronously before the pumps take
	// over, so live events cannot overtake either.
	established := s.bus.Stamp(sessionID, &models.Event{Type: models.EventConnectionEstablished})
	if !c.writeEvent(established) {
		c.close()
		return
	}
	for _, ev := range replay {
		if !c.writeEvent(ev) {
			c.close()
			return
		}
	}
	c.logger.Info("connection attached", "replayed", len(replay), "last_event_id", lastSeen)

	go c.writePump()
	go c.readPump()
}

func (c *wsConn) close() {
	c.cancel()
	c.server.bus.Unsubscribe(c.sessionID, c.sub.ID)
	_ = c.conn.Close()
}

// writePump serializes outbound traffic after attach: connection-scoped
// events, the live stream, and keepalive pings.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.out:
			if !c.writeEvent(ev) {
				return
			}
		case ev, ok := <-c.sub.Events():
			if !ok {
				// Detached by the bus (slow consumer or session teardown).
				return
			}
			if !c.writeEvent(ev) {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) writeEvent(ev *models.Event) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteJSON(ev); err != nil {
		c.logger.Debug("write failed, detaching", "error", err)
		return false
	}
	return true
}

// readPump consumes inbound frames until the connection drops.
func (c *wsConn) readPump() {
	defer c.close()

	c.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read failed", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		c.handleFrame(data)
	}
}

// handleFrame validates and dispatches one inbound frame. Malformed frames
// produce a connection-scoped error event, never a disconnect.
func (c *wsConn) handleFrame(data []byte) {
	if err := validateInbound(data); err != nil {
		c.sendDirect(&models.Event{
			Type:  models.EventError,
			Error: &models.ErrorPayload{Message: "malformed message: " + err.Error()},
		})
		return
	}

	var msg models.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendDirect(&models.Event{
			Type:  models.EventError,
			Error: &models.ErrorPayload{Message: "malformed message: " + err.Error()},
		})
		return
	}

	switch msg.Type {
	case models.InboundPing:
		c.sendDirect(&models.Event{Type: models.EventPong})

	case models.InboundHeartbeat:
		c.server.sessions.Touch(c.sessionID)
		c.sendDirect(&models.Event{Type: models.EventHeartbeatAck})

	case models.InboundUserMessage:
		if strings.TrimSpace(msg.Content) == "" {
			c.sendDirect(&models.Event{
				Type:  models.EventError,
				Error: &models.ErrorPayload{Message: "user_message requires content"},
			})
			return
		}
		frontend := parseFrontendState(msg.FrontendState, c.logger)
		go c.runTurn(msg.Content, frontend)

	case models.InboundSuggestion:
		go c.runTurn(suggestionPrompt(msg), nil)

	case models.InboundContextUpdate:
		if len(msg.Data) > 0 {
			c.applyContextUpdate(msg.ContextType, msg.Data)
		}
	}
}

// applyContextUpdate merges an inbound context_update into the bucket its
// context_type names. Unrecognized types land in the generic context
// bucket.
func (c *wsConn) applyContextUpdate(contextType string, data map[string]any) {
	switch contextType {
	case "preferences":
		c.server.sessions.MergePreferences(c.sessionID, data)
	case "ai_context":
		c.server.sessions.MergeAIContext(c.sessionID, data)
	case "frontend_state":
		c.server.sessions.SyncFrontendState(c.sessionID, data)
	default:
		c.server.sessions.UpdateContext(c.sessionID, data)
	}
}

// runTurn drives the orchestrator for one user turn. The turn outlives
// this connection on purpose: a reconnecting client replays what it
// missed.
func (c *wsConn) runTurn(content string, frontend map[string]any) {
	if err := c.server.orch.HandleUserMessage(context.Background(), c.sessionID, content, frontend); err != nil {
		if err == context.Canceled {
			return
		}
		c.logger.Warn("turn failed", "error", err)
	}
}

// sendDirect stamps and queues a connection-scoped event.
func (c *wsConn) sendDirect(ev *models.Event) {
	c.server.bus.Stamp(c.sessionID, ev)
	select {
	case c.out <- ev:
	case <-c.ctx.Done():
	}
}

func parseFrontendState(raw json.RawMessage, logger *slog.Logger) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var state map[string]any
	if err := json.Unmarshal(raw, &state); err != nil {
		logger.Debug("ignoring unparseable frontend_state", "error", err)
		return nil
	}
	return state
}

// suggestionPrompt turns an accepted suggestion into a user turn.
func suggestionPrompt(msg models.InboundMessage) string {
	var b strings.Builder
	b.WriteString("Apply the suggested action")
	if msg.SuggestionType != "" {
		fmt.Fprintf(&b, " (%s)", msg.SuggestionType)
	}
	if len(msg.Action) > 0 {
		if data, err := json.Marshal(msg.Action); err == nil {
			b.WriteString(": ")
			b.Write(data)
		}
	}
	return b.String()
}
