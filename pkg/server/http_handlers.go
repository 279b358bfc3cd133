package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/norichat/norichat/pkg/auth"
	"github.com/norichat/norichat/pkg/database"
)

const (
	maxUsernameLen = 32
	maxPasswordLen = 128
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type serverJSON struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	OwnerID int64  `json:"owner_id"`
}

type channelJSON struct {
	ID       int64  `json:"id"`
	ServerID int64  `json:"server_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

type memberJSON struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type messageJSON struct {
	ID        int64  `json:"id"`
	ChannelID int64  `json:"channel_id"`
	AuthorID  int64  `json:"author_id"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	TS        int64  `json:"ts"`
}

type createChannelRequest struct {
	ServerID int64  `json:"server_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requireAuth resolves the bearer token to a user id, or writes a 401.
func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (int64, bool) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	userID, err := s.tokens.Validate(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return 0, false
	}
	return userID, true
}

// requireMembership additionally checks membership in the server named by
// the server_id query parameter, writing 400/403/500 as appropriate.
func (s *Server) requireMembership(w http.ResponseWriter, r *http.Request, userID int64) (int64, bool) {
	serverID, err := strconv.ParseInt(r.URL.Query().Get("server_id"), 10, 64)
	if err != nil || serverID <= 0 {
		writeError(w, http.StatusBadRequest, "server_id required")
		return 0, false
	}
	ok, err := s.db.HasMembership(userID, serverID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return 0, false
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a member of this server")
		return 0, false
	}
	return serverID, true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if creds.Username == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}
	if len(creds.Username) > maxUsernameLen || len(creds.Password) > maxPasswordLen {
		writeError(w, http.StatusBadRequest, "username or password too long")
		return
	}

	hash, err := auth.HashPassword(creds.Password, s.passwordScheme)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := s.db.CreateUser(creds.Username, hash)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateUsername) {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	// Every registered user joins the default server.
	if err := s.db.AddMembership(user.ID, database.DefaultServerID); err != nil {
		log.Printf("failed to add default membership for user %d: %v", user.ID, err)
	}

	token, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, UserID: user.ID, Username: user.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if creds.Username == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}

	user, err := s.db.FindUserByUsername(creds.Username)
	if err != nil || !auth.VerifyPassword(creds.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	// Idempotent; repairs accounts created before the default server existed.
	if err := s.db.AddMembership(user.ID, database.DefaultServerID); err != nil {
		log.Printf("failed to refresh default membership for user %d: %v", user.ID, err)
	}

	token, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, UserID: user.ID, Username: user.Username})
}

func (s *Server) handleGetServers(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireAuth(w, r)
	if !ok {
		return
	}

	servers, err := s.db.GetUserServers(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list servers")
		return
	}
	out := make([]serverJSON, 0, len(servers))
	for _, sv := range servers {
		out = append(out, serverJSON{ID: sv.ID, Name: sv.Name, OwnerID: sv.OwnerID})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetChannels(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	serverID, ok := s.requireMembership(w, r, userID)
	if !ok {
		return
	}

	channels, err := s.db.GetServerChannels(serverID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list channels")
		return
	}
	out := make([]channelJSON, 0, len(channels))
	for _, ch := range channels {
		out = append(out, channelJSON{ID: ch.ID, ServerID: ch.ServerID, Name: ch.Name, Type: ch.Type})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireAuth(w, r)
	if !ok {
		return
	}

	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ServerID <= 0 || req.Name == "" {
		writeError(w, http.StatusBadRequest, "server_id and name required")
		return
	}
	if req.Type != "text" && req.Type != "voice" {
		writeError(w, http.StatusBadRequest, "type must be text or voice")
		return
	}

	member, err := s.db.HasMembership(userID, req.ServerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "not a member of this server")
		return
	}

	channel, err := s.db.CreateChannel(req.ServerID, req.Name, req.Type)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create channel")
		return
	}
	writeJSON(w, http.StatusCreated, channelJSON{
		ID: channel.ID, ServerID: channel.ServerID, Name: channel.Name, Type: channel.Type,
	})
}

func (s *Server) handleGetMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	serverID, ok := s.requireMembership(w, r, userID)
	if !ok {
		return
	}

	members, err := s.db.GetServerMembers(serverID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	out := make([]memberJSON, 0, len(members))
	for _, m := range members {
		out = append(out, memberJSON{ID: m.ID, Username: m.Username})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAuth(w, r); !ok {
		return
	}

	channelID, err := strconv.ParseInt(r.URL.Query().Get("channel_id"), 10, 64)
	if err != nil || channelID <= 0 {
		writeError(w, http.StatusBadRequest, "channel_id required")
		return
	}

	limit := s.config.Limits.HistoryDefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		// Out-of-range values fall back to the default rather than erroring.
		if parsed >= 1 && parsed <= s.config.Limits.HistoryMaxLimit {
			limit = parsed
		}
	}

	messages, err := s.db.GetMessages(channelID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	// Fetched newest-first; returned in chronological order.
	out := make([]messageJSON, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		out = append(out, messageJSON{
			ID: m.ID, ChannelID: m.ChannelID, AuthorID: m.AuthorID,
			Author: m.AuthorName, Content: m.Content, TS: m.TS,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}
