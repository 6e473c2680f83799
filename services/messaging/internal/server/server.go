package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"snapstreak/internal/ratelimit"
	"snapstreak/internal/usertoken"
	"snapstreak/internal/util"
	"snapstreak/pkg/domain"
	"snapstreak/pkg/realtime"
	"snapstreak/pkg/store"
	"snapstreak/services/messaging/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Messages      *app.Messages
	Friends       *app.Friends
	Users         store.Store
	Hub           *realtime.Hub
	TokenVerifier *usertoken.Verifier
	// SendLimiter bounds message sends per user. Nil disables limiting.
	SendLimiter *ratelimit.FixedWindowLimiter
}

// Server exposes the messaging REST endpoints and the websocket gateway.
type Server struct {
	messages      *app.Messages
	friends       *app.Friends
	users         store.Store
	hub           *realtime.Hub
	tokenVerifier *usertoken.Verifier
	sendLimiter   *ratelimit.FixedWindowLimiter
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		messages:      cfg.Messages,
		friends:       cfg.Friends,
		users:         cfg.Users,
		hub:           cfg.Hub,
		tokenVerifier: cfg.TokenVerifier,
		sendLimiter:   cfg.SendLimiter,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("messaging",
		util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

// allowSend applies the per-user send quota. The limiter fails closed, so a
// Redis outage throttles sends instead of opening the floodgates.
func (s *Server) allowSend(userID string) bool {
	return s.sendLimiter == nil || s.sendLimiter.Allow(userID)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.Handle("POST /messages", s.withUser(s.handleSendMessage))
	s.mux.Handle("GET /messages", s.withUser(s.handleAllMessages))
	s.mux.Handle("GET /messages/conversations", s.withUser(s.handleConversations))
	s.mux.Handle("GET /messages/thread/{userId}", s.withUser(s.handleThread))
	s.mux.Handle("PATCH /messages/read/{senderId}", s.withUser(s.handleMarkAsRead))
	s.mux.Handle("GET /messages/{id}", s.withUser(s.handleGetMessage))
	s.mux.Handle("PATCH /messages/{id}", s.withUser(s.handleUpdateMessage))
	s.mux.Handle("DELETE /messages/{id}", s.withUser(s.handleDeleteMessage))

	s.mux.Handle("PUT /users/me", s.withUser(s.handleSyncUser))

	s.mux.Handle("POST /friends", s.withUser(s.handleCreateFriend))
	s.mux.Handle("GET /friends", s.withUser(s.handleListFriends))
	s.mux.Handle("GET /friends/requests", s.withUser(s.handleFriendRequests))
	s.mux.Handle("PATCH /friends/accept/{requesterId}", s.withUser(s.handleAcceptFriend))
	s.mux.Handle("DELETE /friends/{friendId}", s.withUser(s.handleRemoveFriend))

	s.mux.Handle("GET /ws", s.withUser(s.handleWS))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

// withUser authenticates the request and passes the verified user ID on.
// Every route except the health check requires a valid token; there is no
// fallback to client-asserted identities.
func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, err := s.tokenVerifier.VerifySubject(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, userID string) {
	if !s.allowSend(userID) {
		writeError(w, http.StatusTooManyRequests, "too many messages, slow down")
		return
	}
	var req app.SendMessageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	msg, err := s.messages.Send(r.Context(), userID, req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	s.emitNewMessage(msg)
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleAllMessages(w http.ResponseWriter, r *http.Request, userID string) {
	page, limit := pagination(r)
	writeJSON(w, http.StatusOK, s.messages.ListThread(r.Context(), userID, "", page, limit))
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request, userID string) {
	page, limit := pagination(r)
	writeJSON(w, http.StatusOK, s.messages.Conversations(r.Context(), userID, page, limit))
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request, userID string) {
	otherID := r.PathValue("userId")
	page, limit := pagination(r)
	writeJSON(w, http.StatusOK, s.messages.ListThread(r.Context(), userID, otherID, page, limit))
}

func (s *Server) handleMarkAsRead(w http.ResponseWriter, r *http.Request, userID string) {
	senderID := r.PathValue("senderId")
	if err := s.messages.MarkAsRead(r.Context(), userID, senderID); err != nil {
		writeAppError(w, err)
		return
	}
	s.emitMessagesRead(userID, senderID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request, userID string) {
	msg, err := s.messages.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request, userID string) {
	var req app.UpdateMessageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	msg, err := s.messages.Update(r.Context(), userID, r.PathValue("id"), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.messages.Remove(r.Context(), userID, r.PathValue("id")); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type syncUserRequest struct {
	Email string `json:"email"`
}

// handleSyncUser upserts the caller's row of the user projection. Accounts
// are owned by the auth service; clients call this after login so friend
// requests by email can resolve locally.
func (s *Server) handleSyncUser(w http.ResponseWriter, r *http.Request, userID string) {
	var req syncUserRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	user := domain.User{ID: userID, Email: strings.TrimSpace(req.Email), CreatedAt: time.Now().UTC()}
	if err := s.users.SaveUser(user); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleCreateFriend(w http.ResponseWriter, r *http.Request, userID string) {
	var req app.CreateFriendRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	edge, err := s.friends.Create(userID, req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request, userID string) {
	page, limit := pagination(r)
	var accepted *bool
	if v := r.URL.Query().Get("accepted"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "accepted must be a boolean")
			return
		}
		accepted = &parsed
	}
	edges, total, err := s.friends.Friendships(userID, accepted, page, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": edges, "total": total})
}

func (s *Server) handleFriendRequests(w http.ResponseWriter, r *http.Request, userID string) {
	page, limit := pagination(r)
	edges, total, err := s.friends.Requests(userID, page, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": edges, "total": total})
}

func (s *Server) handleAcceptFriend(w http.ResponseWriter, r *http.Request, userID string) {
	edge, err := s.friends.Accept(userID, r.PathValue("requesterId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, edge)
}

func (s *Server) handleRemoveFriend(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.friends.Remove(userID, r.PathValue("friendId")); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pagination(r *http.Request) (page, limit int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	limit, _ = strconv.Atoi(q.Get("limit"))
	return page, limit
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrReceiverMissing),
		errors.Is(err, app.ErrSelfMessage),
		errors.Is(err, app.ErrEmptyMessage),
		errors.Is(err, app.ErrFriendTargetMissing),
		errors.Is(err, app.ErrSelfFriendship):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNotFriends),
		errors.Is(err, app.ErrRequestPending),
		errors.Is(err, app.ErrBlocked),
		errors.Is(err, app.ErrNotParticipant),
		errors.Is(err, app.ErrNotReceiver):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrMessageNotFound),
		errors.Is(err, app.ErrUserNotFound),
		errors.Is(err, app.ErrFriendRequestNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token != "" {
			return token, true
		}
	}
	// Browser websocket clients cannot set headers on the handshake.
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}
