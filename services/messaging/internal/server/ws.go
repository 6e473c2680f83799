package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"snapstreak/pkg/domain"
	"snapstreak/pkg/realtime"
	"snapstreak/services/messaging/internal/app"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 16
)

// Websocket event names. Client -> server events carry an intent; server ->
// client events mirror what happened to everyone in the affected rooms.
const (
	evSendMessage  = "sendMessage"
	evMarkAsRead   = "markAsRead"
	evTyping       = "typing"
	evNewMessage   = "newMessage"
	evMessagesRead = "messagesRead"
	evUserTyping   = "userTyping"
	evError        = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin is already governed by the token requirement; the
	// handshake accepts any origin like the HTTP API does.
	CheckOrigin: func(*http.Request) bool { return true },
}

type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsAck is the reply to a client-initiated event. Broadcast envelopes carry
// only event+data; acks add the success flag.
type wsAck struct {
	Event   string `json:"event"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func userRoom(userID string) string {
	return "user_" + userID
}

func envelope(event string, data any) []byte {
	payload, err := json.Marshal(map[string]any{"event": event, "data": data})
	if err != nil {
		slog.Warn("websocket payload not serializable", "event", event, "err", err)
		return nil
	}
	return payload
}

// handleWS upgrades the connection and joins the user's room. One room per
// user: every device of the user shares the same event stream, and a
// counterpart's events reach all of them at once.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := realtime.NewClient(userRoom(userID))
	s.hub.Register(client)

	go s.writePump(conn, client)
	s.readPump(conn, client, userID)
}

// readPump consumes client events until the connection drops. It runs on the
// handler goroutine; the hub unregister on exit closes the outbox, which in
// turn stops the write pump.
func (s *Server) readPump(conn *websocket.Conn, client *realtime.Client, userID string) {
	defer func() {
		s.hub.Unregister(client)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "user", userID, "err", err)
			}
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.reply(client, evError, nil, "invalid event envelope")
			continue
		}
		s.dispatch(client, userID, env)
	}
}

// dispatch runs one client event. Every outcome is answered with an ack
// envelope on the initiating connection; nothing an event does can take the
// connection down.
func (s *Server) dispatch(client *realtime.Client, userID string, env wsEnvelope) {
	ctx := context.Background()
	switch env.Event {
	case evSendMessage:
		if !s.allowSend(userID) {
			s.reply(client, env.Event, nil, "too many messages, slow down")
			return
		}
		var req app.SendMessageRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			s.reply(client, env.Event, nil, "invalid sendMessage payload")
			return
		}
		msg, err := s.messages.Send(ctx, userID, req)
		if err != nil {
			s.reply(client, env.Event, nil, err.Error())
			return
		}
		s.reply(client, env.Event, msg, "")
		s.emitNewMessage(msg)

	case evMarkAsRead:
		var req struct {
			SenderID string `json:"senderId"`
		}
		if err := json.Unmarshal(env.Data, &req); err != nil || req.SenderID == "" {
			s.reply(client, env.Event, nil, "invalid markAsRead payload")
			return
		}
		if err := s.messages.MarkAsRead(ctx, userID, req.SenderID); err != nil {
			s.reply(client, env.Event, nil, err.Error())
			return
		}
		s.reply(client, env.Event, map[string]string{"senderId": req.SenderID}, "")
		s.emitMessagesRead(userID, req.SenderID)

	case evTyping:
		var req struct {
			ReceiverID string `json:"receiverId"`
			IsTyping   bool   `json:"isTyping"`
		}
		if err := json.Unmarshal(env.Data, &req); err != nil || req.ReceiverID == "" {
			return
		}
		// Presence only, nothing persisted.
		s.emitTo(req.ReceiverID, evUserTyping, map[string]any{
			"userId":   userID,
			"isTyping": req.IsTyping,
		})

	default:
		s.reply(client, evError, nil, "unknown event: "+env.Event)
	}
}

// reply sends an ack envelope to the socket that initiated the event. Other
// devices of the same user only see the room broadcasts. An empty errMsg
// means success.
func (s *Server) reply(client *realtime.Client, event string, data any, errMsg string) {
	ack := wsAck{Event: event, Success: errMsg == "", Data: data, Error: errMsg}
	payload, err := json.Marshal(ack)
	if err != nil {
		slog.Warn("websocket ack not serializable", "event", event, "err", err)
		return
	}
	s.hub.EmitClient(client, payload)
}

// writePump drains the client outbox onto the socket and keeps the
// connection alive with pings. It exits when the hub closes the outbox.
func (s *Server) writePump(conn *websocket.Conn, client *realtime.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case payload, ok := <-client.Outbox():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) emitTo(userID, event string, data any) {
	if payload := envelope(event, data); payload != nil {
		s.hub.Emit(userRoom(userID), payload)
	}
}

// emitNewMessage notifies both participants: the receiver's devices get the
// message, the sender's other devices stay in sync.
func (s *Server) emitNewMessage(msg domain.Message) {
	s.emitTo(msg.ReceiverID, evNewMessage, msg)
	s.emitTo(msg.SenderID, evNewMessage, msg)
}

// emitMessagesRead tells the original sender their messages were read.
func (s *Server) emitMessagesRead(readerID, senderID string) {
	data := map[string]string{"readerId": readerID, "senderId": senderID}
	s.emitTo(senderID, evMessagesRead, data)
	s.emitTo(readerID, evMessagesRead, data)
}
