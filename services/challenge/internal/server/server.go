package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"snapstreak/internal/usertoken"
	"snapstreak/internal/util"
	"snapstreak/services/challenge/internal/app"
	"snapstreak/services/challenge/internal/classifier"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Challenges    *app.Challenges
	TokenVerifier *usertoken.Verifier
}

// Server exposes the challenge engine's HTTP endpoints.
type Server struct {
	challenges    *app.Challenges
	tokenVerifier *usertoken.Verifier
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		challenges:    cfg.Challenges,
		tokenVerifier: cfg.TokenVerifier,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("challenge",
		util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /challenges/today", s.withUser(s.handleToday))
	s.mux.Handle("GET /challenges", s.withUser(s.handleHistory))
	s.mux.Handle("POST /challenges/submit", s.withUser(s.handleSubmit))
	s.mux.Handle("POST /challenges/{id}/submit", s.withUser(s.handleSubmit))
	s.mux.Handle("GET /streak", s.withUser(s.handleStreak))
	s.mux.Handle("GET /achievements", s.withUser(s.handleAchievements))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

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

func (s *Server) handleToday(w http.ResponseWriter, _ *http.Request, userID string) {
	challenge, err := s.challenges.Today(userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	streak, err := s.challenges.Streak(userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenge": challenge, "streak": streak})
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request, userID string) {
	history, err := s.challenges.History(userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	streak, err := s.challenges.Streak(userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	achievements, err := s.challenges.Achievements(userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":         history,
		"total":        len(history),
		"streak":       streak,
		"achievements": achievements,
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, userID string) {
	var req app.SubmitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// A challenge id in the path wins over one in the body.
	if id := r.PathValue("id"); id != "" {
		req.ChallengeID = id
	}
	res, err := s.challenges.Submit(r.Context(), userID, req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStreak(w http.ResponseWriter, _ *http.Request, userID string) {
	streak, err := s.challenges.Streak(userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, streak)
}

func (s *Server) handleAchievements(w http.ResponseWriter, _ *http.Request, userID string) {
	achievements, err := s.challenges.Achievements(userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": achievements, "total": len(achievements)})
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
	case errors.Is(err, app.ErrImageMissing):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrChallengeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrChallengeExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, classifier.ErrNoDetection):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, classifier.ErrUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
